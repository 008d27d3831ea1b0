package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/streed/notesai/internal/constants"
	interrors "github.com/streed/notesai/internal/errors"
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search notes by meaning",
	Long: `Rank your notes by cosine similarity between the query's embedding and
each note's stored embedding.

Examples:
  notesai search "groceries to buy"
  notesai search -l 10 "deployment runbook"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

var (
	searchLimit    int
	searchShowFull bool
)

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "l", constants.DefaultSearchLimit, "Maximum number of results")
	searchCmd.Flags().BoolVar(&searchShowFull, "full", false, "Show full note content")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	user, err := currentUser(ctx)
	if err != nil {
		return err
	}
	query := strings.Join(args, " ")

	results, err := svc.Search.Search(ctx, user.ID, query, searchLimit)
	if errors.Is(err, interrors.ErrProviderMismatch) {
		return err
	}
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("No notes found.")
		return nil
	}

	fmt.Printf("Found %d notes for %q:\n\n", len(results), query)
	for i, r := range results {
		fmt.Printf("%d. [%d] %s (score %.4f)\n", i+1, r.ID, r.Title, r.Score)
		body := r.Content
		if !searchShowFull {
			body = truncate(strings.ReplaceAll(body, "\n", " "), constants.SearchPreviewLength)
		}
		fmt.Printf("   %s\n\n", body)
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
