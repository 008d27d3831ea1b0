package cmd

import (
	"github.com/spf13/cobra"

	"github.com/streed/notesai/internal/logger"
	"github.com/streed/notesai/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server for LLM integration",
	Long: `Start a Model Context Protocol (MCP) server on stdio so an LLM client can
work with one user's notes. Choose the user with --user.

Tools:
- add_note, update_note, delete_note: manage notes (saving embeds them)
- get_note, list_notes: read notes
- search_notes: semantic search
- summarize_note: queue a summary

Resources:
- notes://recent: Most recently created notes
- notes://stats: Counts and embedding providers

To use with an MCP client, add:
{
  "mcpServers": {
    "notesai": {
      "command": "notesai",
      "args": ["mcp", "--user", "alice"]
    }
  }
}`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	user, err := currentUser(ctx)
	if err != nil {
		return err
	}
	if err := startWorkers(ctx); err != nil {
		return err
	}

	logger.Info("Starting MCP server...")
	notesServer := mcp.NewNotesServer(svc, user, Version)

	logger.Info("MCP server ready. Listening on stdio...")
	if err := notesServer.Serve(); err != nil {
		if err.Error() != "EOF" {
			logger.Error("MCP server error: %v", err)
			return err
		}
	}

	logger.Info("MCP server shutting down")
	return nil
}
