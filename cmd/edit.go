package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	interrors "github.com/streed/notesai/internal/errors"
	"github.com/streed/notesai/internal/services"
)

var editCmd = &cobra.Command{
	Use:     "edit [id]",
	Aliases: []string{"update"},
	Short:   "Edit a note",
	Long: `Edit a note's title, content, folder or favorite flag.

Without --content the note opens in your editor. Changing the content keeps
the new text as a version and re-embeds the note; a title-only change does not.`,
	Args: cobra.ExactArgs(1),
	RunE: runEdit,
}

var (
	editTitle    string
	editContent  string
	editFolder   int
	editNoFolder bool
	editFavorite string
	editNoEditor bool
)

func init() {
	rootCmd.AddCommand(editCmd)
	editCmd.Flags().StringVarP(&editTitle, "title", "t", "", "New title")
	editCmd.Flags().StringVarP(&editContent, "content", "c", "", "New content")
	editCmd.Flags().IntVar(&editFolder, "folder", 0, "Move the note to this folder")
	editCmd.Flags().BoolVar(&editNoFolder, "no-folder", false, "Remove the note from its folder")
	editCmd.Flags().StringVar(&editFavorite, "favorite", "", "Set favorite (true/false)")
	editCmd.Flags().BoolVar(&editNoEditor, "no-editor", false, "Only apply flags, never open the editor")
	editCmd.Flags().StringVar(&editorName, "editor-cmd", "", "Specify editor to use (overrides $EDITOR)")
}

func runEdit(cmd *cobra.Command, args []string) error {
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
		return err
	}

	var upd services.NoteUpdate
	if cmd.Flags().Changed("title") {
		upd.Title = &editTitle
	}
	switch {
	case cmd.Flags().Changed("content"):
		upd.Content = &editContent
	case !editNoEditor && !anyEditFlag(cmd):
		edited, err := editTemplate(note.Title, note.Content)
		if err != nil {
			return err
		}
		if edited == note.Content {
			fmt.Println("No changes made.")
			return nil
		}
		upd.Content = &edited
	}
	if editNoFolder {
		upd.ClearFolder = true
	} else if editFolder > 0 {
		upd.FolderID = &editFolder
	}
	if editFavorite != "" {
		fav, err := strconv.ParseBool(editFavorite)
		if err != nil {
			return fmt.Errorf("%w: %s", interrors.ErrInvalidBoolean, editFavorite)
		}
		upd.Favorite = &fav
	}

	updated, err := svc.Notes.Update(ctx, user.ID, id, upd)
	if err := reportIndexing(updated, err); err != nil {
		return fmt.Errorf("failed to update note: %w", err)
	}

	fmt.Printf("Note %d updated successfully!\n", updated.ID)
	fmt.Printf("Title: %s\n", updated.Title)
	fmt.Printf("Index: %s\n", updated.IndexStatus)
	return nil
}

func anyEditFlag(cmd *cobra.Command) bool {
	for _, name := range []string{"title", "folder", "no-folder", "favorite"} {
		if cmd.Flags().Changed(name) {
			return true
		}
	}
	return false
}
