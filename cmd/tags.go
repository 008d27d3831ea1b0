package cmd

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	interrors "github.com/streed/notesai/internal/errors"
)

var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "Manage note tags",
	Long: `Manage your tags. Tag names are unique per user.

Commands:
  list                     List your tags
  create <name>            Create a tag
  assign <note-id> <tag-id>  Attach a tag to a note`,
}

var tagsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your tags",
	RunE:  runTagsList,
}

var tagsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a tag",
	Args:  cobra.ExactArgs(1),
	RunE:  runTagsCreate,
}

var tagsAssignCmd = &cobra.Command{
	Use:   "assign <note-id> <tag-id>",
	Short: "Attach a tag to a note",
	Long: `Attach one of your tags to one of your notes.

Example:
  notesai tags assign 123 4`,
	Args: cobra.ExactArgs(2),
	RunE: runTagsAssign,
}

func init() {
	rootCmd.AddCommand(tagsCmd)
	tagsCmd.AddCommand(tagsListCmd)
	tagsCmd.AddCommand(tagsCreateCmd)
	tagsCmd.AddCommand(tagsAssignCmd)
}

func runTagsList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	user, err := currentUser(ctx)
	if err != nil {
		return err
	}
	tags, err := svc.Tags.List(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("failed to list tags: %w", err)
	}
	if len(tags) == 0 {
		fmt.Println("No tags found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintf(w, "ID\tNAME\n")
	for _, t := range tags {
		fmt.Fprintf(w, "%d\t%s\n", t.ID, t.Name)
	}
	return w.Flush()
}

func runTagsCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	user, err := currentUser(ctx)
	if err != nil {
		return err
	}
	tag, err := svc.Tags.Create(ctx, user.ID, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("🏷️  Created tag %q (ID: %d)\n", tag.Name, tag.ID)
	return nil
}

func runTagsAssign(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	noteID, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("%w: %s", interrors.ErrInvalidNoteID, args[0])
	}
	tagID, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("%w: invalid tag ID %s", interrors.ErrValidation, args[1])
	}
	user, err := currentUser(ctx)
	if err != nil {
		return err
	}

	if _, err := svc.Tags.Assign(ctx, user.ID, tagID, noteID); err != nil {
		return err
	}
	fmt.Printf("✅ Tagged note %d with tag %d\n", noteID, tagID)
	return nil
}
