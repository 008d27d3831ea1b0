package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/streed/notesai/internal/api"
	"github.com/streed/notesai/internal/auth"
	"github.com/streed/notesai/internal/logger"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP API server",
	Long: `Start the HTTP API server. Every endpoint under /api/v1 except /health
requires a bearer token from 'notesai user token <name>'.

The server also runs the background task workers that index notes and
produce summaries, resuming any tasks left unfinished by a previous run.

Examples:
  notesai serve                              # Start on localhost:8080
  notesai serve --host 0.0.0.0 --port 3000   # Start on all interfaces, port 3000`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHost, "host", "localhost", "Host to bind the server to")
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "Port to bind the server to")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger.Info("Initializing HTTP API server...")

	authn, err := auth.New(appConfig.JWTSecret, appConfig.TokenTTL())
	if err != nil {
		return fmt.Errorf("%w (run 'notesai init' or 'notesai config set jwt-secret <secret>')", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := startWorkers(ctx); err != nil {
		return err
	}

	apiServer := api.NewAPIServer(svc, authn)

	errChan := make(chan error, 1)
	go func() {
		errChan <- apiServer.Start(serveHost, servePort)
	}()

	fmt.Printf("\n🚀 notesai HTTP API Server\n")
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Printf("📍 Server URL: http://%s:%d/api/v1/\n", serveHost, servePort)
	fmt.Printf("🔍 Health:     http://%s:%d/api/v1/health\n", serveHost, servePort)
	fmt.Printf("📊 Metrics:    http://%s:%d/metrics\n", serveHost, servePort)
	fmt.Printf("🧠 Embeddings: %s\n", svc.Embedder.ProviderID())
	fmt.Printf("\n🎯 Example:\n")
	fmt.Printf("   TOKEN=$(notesai user token <name>)\n")
	fmt.Printf("   curl -H \"Authorization: Bearer $TOKEN\" 'http://%s:%d/api/v1/search/?q=groceries'\n", serveHost, servePort)
	fmt.Printf("\n✋ Press Ctrl+C to stop the server\n")
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal, shutting down gracefully...")
		if err := apiServer.Stop(); err != nil {
			logger.Error("Error during server shutdown: %v", err)
			return err
		}
		logger.Info("Server stopped successfully")
		return nil
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error: %v", err)
			return err
		}
		return nil
	}
}

// startWorkers runs the task queue for commands that live long enough to
// drain it.
func startWorkers(ctx context.Context) error {
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start task workers: %w", err)
	}
	return nil
}
