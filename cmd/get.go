package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	interrors "github.com/streed/notesai/internal/errors"
)

var getCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Get a note by ID",
	Long:  `Display the full content of a note by its ID, with its tags and summary.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("%w: %s", interrors.ErrInvalidNoteID, args[0])
	}
	user, err := currentUser(ctx)
	if err != nil {
		return err
	}

	note, err := svc.Notes.Get(ctx, user.ID, id)
	if err != nil {
		return fmt.Errorf("failed to get note: %w", err)
	}
	tags, err := svc.Tags.TagsForNote(ctx, note.ID)
	if err != nil {
		return err
	}

	rule := strings.Repeat("=", 80)
	fmt.Println(rule)
	fmt.Printf("ID: %d%s\n", note.ID, noteMarkers(note))
	fmt.Printf("Title: %s\n", note.Title)
	if note.FolderID != nil {
		fmt.Printf("Folder: %d\n", *note.FolderID)
	}
	if len(tags) > 0 {
		fmt.Printf("Tags: %s\n", strings.Join(tags, ", "))
	}
	fmt.Printf("Created: %s\n", note.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("Updated: %s\n", note.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Println(rule)

	if note.Summary != nil {
		fmt.Println("📝 Summary:")
		fmt.Println(*note.Summary)
		fmt.Println(strings.Repeat("-", 80))
	}

	fmt.Println(note.Content)
	fmt.Println()
	return nil
}
