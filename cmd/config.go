package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/streed/notesai/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage notesai configuration",
	Long:  `View and manage notesai configuration settings.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current notesai configuration settings. API keys and secrets are masked.`,
	RunE:  runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	RunE:  runConfigPath,
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Print one configuration value",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a configuration value",
	Long: `Set a specific configuration value.

Available keys:
  - data-dir: Data directory for storing the notes database
  - embedding-provider: local, gemini or openai
  - openai-api-key, openai-base-url, openai-embedding-model
  - gemini-api-key, gemini-embedding-model
  - provider-timeout: Seconds before a provider call is abandoned
  - provider-max-retries: Retries for transient provider failures
  - async-indexing: Embed notes in the background (true/false)
  - auto-reindex-on-search: Re-embed stale notes during search (true/false)
  - task-workers: Background task workers
  - enable-summarization, summarization-provider, summarization-model, ollama-endpoint
  - jwt-secret, token-ttl-hours
  - debug: Enable/disable debug logging (true/false)
  - editor: Default editor for notes (e.g., "vim", "code --wait")`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	configPath, err := config.GetConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	fmt.Println("=== notesai Configuration ===")
	fmt.Printf("Config file: %s\n\n", configPath)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, key := range config.Keys() {
		value, _ := cfg.Get(key)
		if value == "" {
			value = "-"
		}
		fmt.Fprintf(w, "%s:\t%s\n", key, value)
	}
	return w.Flush()
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	configPath, err := config.GetConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	fmt.Println(configPath)
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	value, err := cfg.Get(args[0])
	if err != nil {
		return err
	}
	fmt.Println(value)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if key == "data-dir" {
		value = expandPath(value)
	}

	needsReindex, err := cfg.Set(key, value)
	if err != nil {
		return err
	}
	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Printf("Configuration updated: %s\n", key)
	if needsReindex {
		fmt.Println("\n⚠️  Existing embeddings no longer match the configured model.")
		fmt.Println("Run 'notesai reindex' to re-embed your notes.")
	}
	return nil
}
