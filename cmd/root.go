package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/streed/notesai/internal/config"
	"github.com/streed/notesai/internal/database"
	interrors "github.com/streed/notesai/internal/errors"
	"github.com/streed/notesai/internal/logger"
	"github.com/streed/notesai/internal/models"
	"github.com/streed/notesai/internal/services"
)

var (
	db        *database.DB
	svc       *services.Services
	appConfig *config.Config
	debugFlag bool
	userFlag  string
	Version   = "dev" // Version is set from main.go
)

var rootCmd = &cobra.Command{
	Use:     "notesai",
	Short:   "Multi-user notes with semantic search",
	Version: Version,
	Long: `notesai stores notes per user, embeds every note when it is saved and
answers natural-language queries by cosine similarity over those embeddings.

First time users should run 'notesai init' and then 'notesai user create <name>'.`,
	SilenceUsage: true,
}

func Execute() error {
	rootCmd.Version = Version
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initAppConfig)
	cobra.OnFinalize(closeApp)
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&userFlag, "user", "u", os.Getenv("NOTESAI_USER"), "User (id or username) to act as")
}

// skipsApp reports whether the invoked command runs without a database.
func skipsApp() bool {
	if len(os.Args) < 2 {
		return true
	}
	switch os.Args[1] {
	case "init", "config", "help", "completion", "--help", "-h", "--version", "-v":
		return true
	}
	return false
}

func initAppConfig() {
	if skipsApp() {
		if debugFlag {
			logger.SetDebugMode(true)
		}
		return
	}

	var err error
	appConfig, err = config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		fmt.Fprintf(os.Stderr, "Please run 'notesai init' to set up the configuration.\n")
		os.Exit(1)
	}

	if debugFlag || appConfig.Debug {
		logger.SetDebugMode(true)
		logger.Debug("Configuration loaded from: %s", func() string {
			path, _ := config.GetConfigPath()
			return path
		}())
		logger.Debug("Data directory: %s", appConfig.DataDirectory)
		logger.Debug("Embedding provider: %s", appConfig.EmbeddingProvider)
		logger.Debug("Async indexing: %v", appConfig.AsyncIndexing)
	}

	db, err = database.New(appConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing database: %v\n", err)
		os.Exit(1)
	}

	svc, err = services.New(appConfig, db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing services: %v\n", err)
		if errors.Is(err, interrors.ErrMissingCredential) {
			fmt.Fprintf(os.Stderr, "Set the provider API key with 'notesai config set' or in the environment.\n")
		}
		os.Exit(1)
	}
}

func closeApp() {
	if svc != nil {
		if err := svc.Close(); err != nil {
			logger.Error("Failed to stop background tasks: %v", err)
		}
	}
	if db != nil {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database: %v", err)
		}
	}
}

// currentUser resolves --user. With no flag a single-user install needs no
// selection.
func currentUser(ctx context.Context) (*models.User, error) {
	if userFlag != "" {
		u, err := svc.Users.Resolve(ctx, userFlag)
		if err != nil {
			return nil, fmt.Errorf("user %q: %w", userFlag, err)
		}
		return u, nil
	}

	users, err := svc.Users.List(ctx)
	if err != nil {
		return nil, err
	}
	switch len(users) {
	case 0:
		return nil, fmt.Errorf("no users yet: run 'notesai user create <name>' first")
	case 1:
		return users[0], nil
	}
	return nil, fmt.Errorf("%d users exist: choose one with --user", len(users))
}
