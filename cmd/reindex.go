package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/streed/notesai/internal/constants"
	"github.com/streed/notesai/internal/services"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Re-embed notes with the configured provider",
	Long: `Recompute note embeddings with the currently configured embedding provider.

Run this after switching embedding-provider: search refuses to compare vectors
from different providers until every note is re-embedded. --stale limits the
run to notes that are unindexed or embedded by another provider.`,
	RunE: runReindex,
}

var (
	reindexStale       bool
	reindexAllUsers    bool
	reindexConcurrency int
)

func init() {
	rootCmd.AddCommand(reindexCmd)
	reindexCmd.Flags().BoolVar(&reindexStale, "stale", false, "Only notes that are unindexed or from another provider")
	reindexCmd.Flags().BoolVar(&reindexAllUsers, "all-users", false, "Reindex every user's notes")
	reindexCmd.Flags().IntVarP(&reindexConcurrency, "concurrency", "j", constants.ReindexConcurrency, "Notes embedded in parallel")
}

func runReindex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	scope := services.ReindexScope{OnlyStale: reindexStale}
	if !reindexAllUsers {
		user, err := currentUser(ctx)
		if err != nil {
			return err
		}
		scope.UserID = user.ID
	}

	fmt.Printf("Reindexing with provider: %s\n", svc.Embedder.ProviderID())
	if reindexStale {
		fmt.Println("Only stale notes will be re-embedded.")
	}

	res, err := svc.Notes.ReindexMany(ctx, scope, reindexConcurrency, func(done, total int) {
		if done%10 == 0 || done == total {
			fmt.Printf("Progress: %d/%d notes\n", done, total)
		}
	})
	if err != nil {
		return fmt.Errorf("reindex failed: %w", err)
	}

	if res.Total == 0 {
		fmt.Println("No notes to reindex.")
		return nil
	}
	fmt.Printf("\nReindexing complete: %d/%d notes successfully reindexed.\n", res.Succeeded, res.Total)
	if res.Failed > 0 {
		return fmt.Errorf("%d notes failed to reindex and remain marked failed", res.Failed)
	}
	return nil
}
