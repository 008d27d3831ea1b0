package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/streed/notesai/internal/constants"
	interrors "github.com/streed/notesai/internal/errors"
)

var versionsCmd = &cobra.Command{
	Use:   "versions [id]",
	Short: "Show a note's version history",
	Long:  `List the versions recorded each time the note's content changed, oldest first.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runVersions,
}

var versionsFull bool

func init() {
	rootCmd.AddCommand(versionsCmd)
	versionsCmd.Flags().BoolVar(&versionsFull, "full", false, "Show full content of each version")
}

func runVersions(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("%w: %s", interrors.ErrInvalidNoteID, args[0])
	}
	user, err := currentUser(ctx)
	if err != nil {
		return err
	}

	versions, err := svc.Notes.Versions(ctx, user.ID, id)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		fmt.Printf("Note %d has no recorded versions.\n", id)
		return nil
	}

	for i, v := range versions {
		fmt.Printf("v%d  %s  %s\n", i+1, v.VersionCreatedAt.Local().Format("2006-01-02 15:04:05"), v.Title)
		body := v.Content
		if !versionsFull {
			body = truncate(strings.ReplaceAll(body, "\n", " "), constants.PreviewLength)
		}
		fmt.Printf("    %s\n", body)
	}
	return nil
}
