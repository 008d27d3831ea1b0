package migrations

import (
	"database/sql"
	"fmt"
)

// getAllMigrations returns all available migrations in order
func getAllMigrations() []Migration {
	return []Migration{
		{
			ID:          "000_initial_schema",
			Description: "Create users, folders, notes, versions, tags and note-tags",
			Up:          migration000Up,
			Down:        migration000Down,
		},
		{
			ID:          "001_note_embeddings",
			Description: "Store one embedding per note with its provider",
			Up:          migration001Up,
			Down:        migration001Down,
		},
		{
			ID:          "002_tasks",
			Description: "Persist background task state",
			Up:          migration002Up,
			Down:        migration002Down,
		},
		// Add new migrations here in chronological order
	}
}

func execAll(tx *sql.Tx, stmts ...string) error {
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("%w\n%s", err, stmt)
		}
	}
	return nil
}

func migration000Up(tx *sql.Tx) error {
	return execAll(tx,
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS folders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS notes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			folder_id INTEGER,
			title TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			favorite BOOLEAN NOT NULL DEFAULT 0,
			is_deleted BOOLEAN NOT NULL DEFAULT 0,
			summary TEXT,
			index_status TEXT NOT NULL DEFAULT 'pending',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
			FOREIGN KEY (folder_id) REFERENCES folders(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notes_user ON notes(user_id, is_deleted)`,
		`CREATE TABLE IF NOT EXISTS note_versions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			note_id INTEGER NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			version_created_at DATETIME NOT NULL,
			FOREIGN KEY (note_id) REFERENCES notes(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_note_versions_note ON note_versions(note_id)`,
		`CREATE TABLE IF NOT EXISTS tags (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			UNIQUE (name, user_id),
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS note_tags (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tag_id INTEGER NOT NULL,
			note_id INTEGER NOT NULL,
			UNIQUE (tag_id, note_id),
			FOREIGN KEY (tag_id) REFERENCES tags(id) ON DELETE CASCADE,
			FOREIGN KEY (note_id) REFERENCES notes(id) ON DELETE CASCADE
		)`,
	)
}

func migration000Down(tx *sql.Tx) error {
	return execAll(tx,
		`DROP TABLE IF EXISTS note_tags`,
		`DROP TABLE IF EXISTS tags`,
		`DROP TABLE IF EXISTS note_versions`,
		`DROP TABLE IF EXISTS notes`,
		`DROP TABLE IF EXISTS folders`,
		`DROP TABLE IF EXISTS users`,
	)
}

// note_id is the primary key: at most one embedding per note.
func migration001Up(tx *sql.Tx) error {
	return execAll(tx,
		`CREATE TABLE IF NOT EXISTS note_embeddings (
			note_id INTEGER PRIMARY KEY,
			embedding BLOB NOT NULL,
			dimensions INTEGER NOT NULL,
			provider TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY (note_id) REFERENCES notes(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_note_embeddings_provider ON note_embeddings(provider)`,
	)
}

func migration001Down(tx *sql.Tx) error {
	return execAll(tx,
		`DROP INDEX IF EXISTS idx_note_embeddings_provider`,
		`DROP TABLE IF EXISTS note_embeddings`,
	)
}

func migration002Up(tx *sql.Tx) error {
	return execAll(tx,
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			user_id INTEGER NOT NULL,
			note_id INTEGER NOT NULL,
			status TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			result TEXT,
			error TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,
	)
}

func migration002Down(tx *sql.Tx) error {
	return execAll(tx,
		`DROP INDEX IF EXISTS idx_tasks_status`,
		`DROP TABLE IF EXISTS tasks`,
	)
}
