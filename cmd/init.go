package cmd

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/streed/notesai/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize notesai configuration",
	Long: `Initialize notesai configuration interactively or with flags.
This command writes the configuration file, creates the data directory and
generates the secret used to sign API tokens.`,
	RunE: runInit,
}

var (
	initDataDir     string
	initProvider    string
	initInteractive bool
	initForce       bool
)

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVar(&initDataDir, "data-dir", "", "Data directory for storing the notes database")
	initCmd.Flags().StringVar(&initProvider, "provider", "", "Embedding provider: local, gemini or openai")
	initCmd.Flags().BoolVarP(&initInteractive, "interactive", "i", false, "Run interactive setup")
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing configuration without asking")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath, err := config.GetConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	reader := bufio.NewReader(os.Stdin)

	if _, err := os.Stat(configPath); err == nil && !initForce {
		fmt.Printf("Configuration already exists at: %s\n", configPath)
		fmt.Print("Do you want to overwrite it? (y/N): ")

		response, _ := reader.ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Println("Configuration initialization cancelled.")
			return nil
		}
	}

	if initInteractive {
		fmt.Println("=== notesai Configuration Setup ===")
		fmt.Println()

		defaultDataDir := config.GetDefaultDataDirectory()
		fmt.Printf("Data directory [%s]: ", defaultDataDir)
		input, _ := reader.ReadString('\n')
		if input = strings.TrimSpace(input); input != "" {
			initDataDir = expandPath(input)
		}

		fmt.Printf("Embedding provider (local/gemini/openai) [local]: ")
		input, _ = reader.ReadString('\n')
		if input = strings.TrimSpace(strings.ToLower(input)); input != "" {
			initProvider = input
		}
	} else if initDataDir != "" {
		initDataDir = expandPath(initDataDir)
	}

	secret, err := newSecret()
	if err != nil {
		return fmt.Errorf("failed to generate token secret: %w", err)
	}

	cfg, err := config.InitializeConfig(initDataDir, initProvider, secret)
	if err != nil {
		return fmt.Errorf("failed to initialize configuration: %w", err)
	}

	fmt.Println("\n=== Configuration Summary ===")
	fmt.Printf("Config file:         %s\n", configPath)
	fmt.Printf("Data directory:      %s\n", cfg.DataDirectory)
	fmt.Printf("Database path:       %s\n", cfg.GetDatabasePath())
	fmt.Printf("Embedding provider:  %s\n", cfg.EmbeddingProvider)
	fmt.Printf("Summarization:       %v (%s)\n", cfg.EnableSummarization, cfg.SummarizationProvider)
	fmt.Println("SQLite-vec:          Built-in (via Go bindings)")

	fmt.Println("\nConfiguration initialized successfully!")
	switch cfg.EmbeddingProvider {
	case config.ProviderOpenAI:
		fmt.Println("Set OPENAI_API_KEY (environment or .env) or run 'notesai config set openai-api-key <key>'.")
	case config.ProviderGemini:
		fmt.Println("Set GEMINI_API_KEY (environment or .env) or run 'notesai config set gemini-api-key <key>'.")
	}
	fmt.Println("Next: 'notesai user create <name>' to add the first user.")
	return nil
}

func newSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(homeDir, path[2:])
		}
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return absPath
}
