package cmd

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	interrors "github.com/streed/notesai/internal/errors"
)

var foldersCmd = &cobra.Command{
	Use:     "folders",
	Aliases: []string{"folder"},
	Short:   "Manage folders",
}

var foldersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your folders",
	RunE:  runFoldersList,
}

var foldersCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a folder",
	Args:  cobra.ExactArgs(1),
	RunE:  runFoldersCreate,
}

var foldersDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a folder and every note in it",
	Args:  cobra.ExactArgs(1),
	RunE:  runFoldersDelete,
}

func init() {
	rootCmd.AddCommand(foldersCmd)
	foldersCmd.AddCommand(foldersListCmd)
	foldersCmd.AddCommand(foldersCreateCmd)
	foldersCmd.AddCommand(foldersDeleteCmd)
}

func runFoldersList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	user, err := currentUser(ctx)
	if err != nil {
		return err
	}
	folders, err := svc.Folders.List(ctx, user.ID)
	if err != nil {
		return err
	}
	if len(folders) == 0 {
		fmt.Println("No folders found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintf(w, "ID\tNAME\tCREATED\n")
	for _, f := range folders {
		fmt.Fprintf(w, "%d\t%s\t%s\n", f.ID, f.Name, f.CreatedAt.Local().Format("2006-01-02"))
	}
	return w.Flush()
}

func runFoldersCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	user, err := currentUser(ctx)
	if err != nil {
		return err
	}
	f, err := svc.Folders.Create(ctx, user.ID, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("📁 Created folder %q (ID: %d)\n", f.Name, f.ID)
	return nil
}

func runFoldersDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("%w: %s", interrors.ErrInvalidFolderID, args[0])
	}
	user, err := currentUser(ctx)
	if err != nil {
		return err
	}
	if err := svc.Folders.Delete(ctx, user.ID, id); err != nil {
		return err
	}
	fmt.Printf("🗑  Deleted folder %d\n", id)
	return nil
}
