package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/streed/notesai/internal/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Database migration management",
	Long: `Manage database migrations and schema changes.

Migrations run automatically when the application starts; these commands are
for inspecting and troubleshooting the schema.`,
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of database migrations",
	RunE:  showMigrationStatus,
}

var migrateRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run pending database migrations",
	RunE:  runMigrations,
}

var migrateRollbackCmd = &cobra.Command{
	Use:   "rollback [migration ID]",
	Short: "Revert one applied migration",
	Args:  cobra.ExactArgs(1),
	RunE:  rollbackMigration,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
	migrateCmd.AddCommand(migrateRunCmd)
	migrateCmd.AddCommand(migrateRollbackCmd)
}

func showMigrationStatus(cmd *cobra.Command, args []string) error {
	status, err := migrations.NewMigrationRunner(db.Conn()).GetMigrationStatus()
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintf(w, "MIGRATION ID\tSTATUS\tAPPLIED AT\tDESCRIPTION\n")
	fmt.Fprintf(w, "------------\t------\t----------\t-----------\n")

	applied := 0
	for _, m := range status {
		statusText, at := "PENDING", "-"
		if m.Applied {
			applied++
			statusText = "APPLIED"
			if m.AppliedAt != nil {
				at = m.AppliedAt.Local().Format("2006-01-02 15:04")
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.ID, statusText, at, m.Description)
	}
	w.Flush()

	fmt.Printf("\nTotal migrations: %d\n", len(status))
	fmt.Printf("Applied: %d\n", applied)
	fmt.Printf("Pending: %d\n", len(status)-applied)
	return nil
}

func runMigrations(cmd *cobra.Command, args []string) error {
	n, err := migrations.NewMigrationRunner(db.Conn()).RunMigrations()
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	fmt.Printf("Applied %d migrations.\n", n)
	return nil
}

func rollbackMigration(cmd *cobra.Command, args []string) error {
	if err := migrations.NewMigrationRunner(db.Conn()).RollbackMigration(args[0]); err != nil {
		return fmt.Errorf("failed to roll back %s: %w", args[0], err)
	}
	fmt.Printf("Rolled back migration %s\n", args[0])
	return nil
}
