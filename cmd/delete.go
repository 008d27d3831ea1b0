package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	interrors "github.com/streed/notesai/internal/errors"
	"github.com/streed/notesai/internal/logger"
)

var deleteCmd = &cobra.Command{
	Use:   "delete [note IDs...]",
	Short: "Move one or more notes to the trash",
	Long: `Delete notes by their IDs. Deleted notes leave lists and search results
but keep their content and versions; 'notesai restore' brings them back.

By default, you will be prompted for confirmation before deletion.
Use --force to skip the confirmation prompt.`,
	Args:    cobra.MinimumNArgs(1),
	Aliases: []string{"rm", "remove"},
	RunE:    runDelete,
}

var restoreCmd = &cobra.Command{
	Use:   "restore [note IDs...]",
	Short: "Restore notes from the trash",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRestore,
}

var forceDelete bool

func init() {
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(restoreCmd)
	deleteCmd.Flags().BoolVarP(&forceDelete, "force", "f", false, "Skip confirmation prompt")
}

func parseNoteIDs(args []string) ([]int, error) {
	ids := make([]int, 0, len(args))
	for _, arg := range args {
		id, err := strconv.Atoi(arg)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", interrors.ErrInvalidNoteID, arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	ids, err := parseNoteIDs(args)
	if err != nil {
		return err
	}
	user, err := currentUser(ctx)
	if err != nil {
		return err
	}

	if !forceDelete {
		fmt.Println("The following notes will be moved to the trash:")
		for _, id := range ids {
			note, err := svc.Notes.Get(ctx, user.ID, id)
			if err != nil {
				return fmt.Errorf("note %d: %w", id, err)
			}
			fmt.Printf("  [%d] %s\n", note.ID, note.Title)
		}
		fmt.Print("\nAre you sure? (y/N): ")
		reader := bufio.NewReader(os.Stdin)
		response, _ := reader.ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Println("Deletion cancelled.")
			return nil
		}
	}

	failed := 0
	for _, id := range ids {
		if err := svc.Notes.Delete(ctx, user.ID, id); err != nil {
			logger.Error("Failed to delete note %d: %v", id, err)
			fmt.Printf("❌ Failed to delete note %d: %v\n", id, err)
			failed++
			continue
		}
		fmt.Printf("🗑  Deleted note %d\n", id)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d notes could not be deleted", failed, len(ids))
	}
	return nil
}

func runRestore(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	ids, err := parseNoteIDs(args)
	if err != nil {
		return err
	}
	user, err := currentUser(ctx)
	if err != nil {
		return err
	}

	for _, id := range ids {
		note, err := svc.Notes.Restore(ctx, user.ID, id)
		if err != nil {
			return fmt.Errorf("failed to restore note %d: %w", id, err)
		}
		fmt.Printf("♻️  Restored note %d: %s\n", note.ID, note.Title)
	}
	return nil
}
