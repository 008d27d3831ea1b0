package migrations

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/streed/notesai/internal/logger"
)

// Migration represents a single schema change
type Migration struct {
	ID          string                 // Sortable identifier, e.g. "001_note_embeddings"
	Description string                 // Human-readable description
	Up          func(tx *sql.Tx) error // Apply
	Down        func(tx *sql.Tx) error // Revert (optional)
}

// MigrationStatus represents the status of a migration
type MigrationStatus struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Applied     bool       `json:"applied"`
	AppliedAt   *time.Time `json:"applied_at,omitempty"`
}

// MigrationRunner applies migrations in ID order, one transaction each.
type MigrationRunner struct {
	db         *sql.DB
	migrations []Migration
}

func NewMigrationRunner(db *sql.DB) *MigrationRunner {
	return newRunner(db, getAllMigrations())
}

func newRunner(db *sql.DB, ms []Migration) *MigrationRunner {
	sorted := make([]Migration, len(ms))
	copy(sorted, ms)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return &MigrationRunner{db: db, migrations: sorted}
}

func (mr *MigrationRunner) createMigrationsTable() error {
	_, err := mr.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			id TEXT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

// applied maps migration IDs to the time they were applied
func (mr *MigrationRunner) applied() (map[string]time.Time, error) {
	rows, err := mr.db.Query("SELECT id, applied_at FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var id string
		var at time.Time
		if err := rows.Scan(&id, &at); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		out[id] = at
	}
	return out, rows.Err()
}

// inTx runs fn in a transaction and rolls back on error.
func (mr *MigrationRunner) inTx(fn func(tx *sql.Tx) error) error {
	tx, err := mr.db.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("Failed to rollback transaction: %v", rbErr)
		}
		return err
	}
	return tx.Commit()
}

// RunMigrations applies every pending migration and returns how many ran.
func (mr *MigrationRunner) RunMigrations() (int, error) {
	if err := mr.createMigrationsTable(); err != nil {
		return 0, err
	}
	applied, err := mr.applied()
	if err != nil {
		return 0, err
	}

	count := 0
	for _, m := range mr.migrations {
		if _, ok := applied[m.ID]; ok {
			continue
		}
		logger.Info("Running migration: %s - %s", m.ID, m.Description)

		err := mr.inTx(func(tx *sql.Tx) error {
			if err := m.Up(tx); err != nil {
				return err
			}
			_, err := tx.Exec(
				"INSERT INTO schema_migrations (id, description, applied_at) VALUES (?, ?, ?)",
				m.ID, m.Description, time.Now().UTC(),
			)
			return err
		})
		if err != nil {
			return count, fmt.Errorf("migration %s failed: %w", m.ID, err)
		}
		count++
	}

	if count > 0 {
		logger.Info("Applied %d migrations", count)
	} else {
		logger.Debug("Database schema is up to date")
	}
	return count, nil
}

// GetMigrationStatus returns the status of all known migrations
func (mr *MigrationRunner) GetMigrationStatus() ([]MigrationStatus, error) {
	if err := mr.createMigrationsTable(); err != nil {
		return nil, err
	}
	applied, err := mr.applied()
	if err != nil {
		return nil, err
	}

	status := make([]MigrationStatus, 0, len(mr.migrations))
	for _, m := range mr.migrations {
		s := MigrationStatus{ID: m.ID, Description: m.Description}
		if at, ok := applied[m.ID]; ok {
			s.Applied = true
			at := at
			s.AppliedAt = &at
		}
		status = append(status, s)
	}
	return status, nil
}

// RollbackMigration reverts a single applied migration.
func (mr *MigrationRunner) RollbackMigration(id string) error {
	var target *Migration
	for i := range mr.migrations {
		if mr.migrations[i].ID == id {
			target = &mr.migrations[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("migration %s not found", id)
	}
	if target.Down == nil {
		return fmt.Errorf("migration %s does not support rollback", id)
	}

	applied, err := mr.applied()
	if err != nil {
		return err
	}
	if _, ok := applied[id]; !ok {
		return fmt.Errorf("migration %s is not applied", id)
	}

	logger.Info("Rolling back migration: %s", id)
	err = mr.inTx(func(tx *sql.Tx) error {
		if err := target.Down(tx); err != nil {
			return err
		}
		_, err := tx.Exec("DELETE FROM schema_migrations WHERE id = ?", id)
		return err
	})
	if err != nil {
		return fmt.Errorf("rollback %s failed: %w", id, err)
	}
	return nil
}
