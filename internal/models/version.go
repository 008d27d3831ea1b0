package models

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/streed/notesai/internal/database"
)

// NoteVersion is an append-only snapshot written when content changes.
type NoteVersion struct {
	ID               int       `json:"id"`
	NoteID           int       `json:"note_id"`
	Title            string    `json:"title"`
	Content          string    `json:"content"`
	VersionCreatedAt time.Time `json:"version_created_at"`
}

type VersionRepository struct {
	db database.Querier
}

func NewVersionRepository(db database.Querier) *VersionRepository {
	return &VersionRepository{db: db}
}

func (r *VersionRepository) WithTx(tx *sql.Tx) *VersionRepository {
	return &VersionRepository{db: tx}
}

func (r *VersionRepository) Append(ctx context.Context, noteID int, title, content string) (*NoteVersion, error) {
	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx,
		"INSERT INTO note_versions (note_id, title, content, version_created_at) VALUES (?, ?, ?, ?)",
		noteID, title, content, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to append note version: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get insert id: %w", err)
	}
	return &NoteVersion{ID: int(id), NoteID: noteID, Title: title, Content: content, VersionCreatedAt: now}, nil
}

// ListForNote returns versions oldest first.
func (r *VersionRepository) ListForNote(ctx context.Context, noteID int) ([]*NoteVersion, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, note_id, title, content, version_created_at FROM note_versions WHERE note_id = ? ORDER BY id",
		noteID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list note versions: %w", err)
	}
	defer rows.Close()

	versions := []*NoteVersion{}
	for rows.Next() {
		var v NoteVersion
		if err := rows.Scan(&v.ID, &v.NoteID, &v.Title, &v.Content, &v.VersionCreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan note version: %w", err)
		}
		versions = append(versions, &v)
	}
	return versions, rows.Err()
}

func (r *VersionRepository) Count(ctx context.Context, noteID int) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM note_versions WHERE note_id = ?", noteID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count note versions: %w", err)
	}
	return n, nil
}
