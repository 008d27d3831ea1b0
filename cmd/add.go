package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/streed/notesai/internal/models"
	"github.com/streed/notesai/internal/services"
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a new note",
	Long: `Add a new note with a title and content. The note is embedded for
search when it is saved.

Content can be provided in several ways:
1. Via --content flag: notesai add -t "Title" -c "Content"
2. Via stdin: echo "Content" | notesai add -t "Title"
3. Via editor (default in a terminal): notesai add -t "Title"`,
	RunE: runAdd,
}

var (
	title     string
	content   string
	useEditor bool
	folderID  int
	favorite  bool
)

func init() {
	rootCmd.AddCommand(addCmd)
	addCmd.Flags().StringVarP(&title, "title", "t", "", "Note title (at most 20 characters)")
	addCmd.Flags().StringVarP(&content, "content", "c", "", "Note content")
	addCmd.Flags().IntVar(&folderID, "folder", 0, "Folder ID to file the note under")
	addCmd.Flags().BoolVar(&favorite, "favorite", false, "Mark the note as a favorite")
	addCmd.Flags().BoolVarP(&useEditor, "editor", "e", false, "Use editor for content input")
	addCmd.Flags().StringVar(&editorName, "editor-cmd", "", "Specify editor to use (overrides $EDITOR)")
}

func runAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	user, err := currentUser(ctx)
	if err != nil {
		return err
	}

	body, err := readContent(content, title, useEditor)
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}

	in := services.NoteInput{Title: title, Content: body, Favorite: favorite}
	if folderID > 0 {
		in.FolderID = &folderID
	}

	note, err := svc.Notes.Create(ctx, user.ID, in)
	if err := reportIndexing(note, err); err != nil {
		return fmt.Errorf("failed to create note: %w", err)
	}

	fmt.Printf("Note created successfully!\n")
	fmt.Printf("ID: %d\n", note.ID)
	fmt.Printf("Title: %s\n", note.Title)
	fmt.Printf("Index: %s\n", note.IndexStatus)
	return nil
}

// reportIndexing prints a warning for a note that was saved without an
// embedding and returns any other error unchanged.
func reportIndexing(note *models.Note, err error) error {
	var indexErr *services.IndexError
	if err == nil {
		return nil
	}
	if !errors.As(err, &indexErr) || note == nil {
		return err
	}
	fmt.Printf("⚠️  %v\n", indexErr)
	if indexErr.TaskID != "" {
		fmt.Println("   It will be indexed the next time 'notesai serve' runs, or run 'notesai reindex --stale'.")
	}
	return nil
}
