package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/streed/notesai/internal/constants"
	"github.com/streed/notesai/internal/database"
	interrors "github.com/streed/notesai/internal/errors"
)

// IndexStatus tracks whether a note's current content is searchable.
type IndexStatus string

const (
	IndexPending IndexStatus = "pending"
	IndexIndexed IndexStatus = "indexed"
	IndexFailed  IndexStatus = "failed"
)

type Note struct {
	ID          int         `json:"id"`
	UserID      int         `json:"user_id"`
	FolderID    *int        `json:"folder_id,omitempty"`
	Title       string      `json:"title"`
	Content     string      `json:"content"`
	Favorite    bool        `json:"favorite"`
	IsDeleted   bool        `json:"is_deleted"`
	Summary     *string     `json:"summary,omitempty"`
	IndexStatus IndexStatus `json:"index_status"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Validate checks field bounds. Content must be non-blank.
func (n *Note) Validate() error {
	if utf8.RuneCountInString(n.Title) > constants.MaxNoteTitleLength {
		return fmt.Errorf("%w: title must be at most %d characters", interrors.ErrValidation, constants.MaxNoteTitleLength)
	}
	if strings.TrimSpace(n.Content) == "" {
		return interrors.ErrEmptyContent
	}
	if utf8.RuneCountInString(n.Content) > constants.MaxNoteContentLength {
		return fmt.Errorf("%w: content must be at most %d characters", interrors.ErrValidation, constants.MaxNoteContentLength)
	}
	return nil
}

// Preview returns at most n runes of content.
func (n *Note) Preview(length int) string {
	r := []rune(n.Content)
	if len(r) <= length {
		return n.Content
	}
	return string(r[:length]) + "..."
}

type NoteRepository struct {
	db database.Querier
}

func NewNoteRepository(db database.Querier) *NoteRepository {
	return &NoteRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *NoteRepository) WithTx(tx *sql.Tx) *NoteRepository {
	return &NoteRepository{db: tx}
}

const noteColumns = "id, user_id, folder_id, title, content, favorite, is_deleted, summary, index_status, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(s rowScanner) (*Note, error) {
	var (
		n        Note
		folderID sql.NullInt64
		summary  sql.NullString
		status   string
	)
	err := s.Scan(&n.ID, &n.UserID, &folderID, &n.Title, &n.Content, &n.Favorite, &n.IsDeleted,
		&summary, &status, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if folderID.Valid {
		id := int(folderID.Int64)
		n.FolderID = &id
	}
	if summary.Valid {
		s := summary.String
		n.Summary = &s
	}
	n.IndexStatus = IndexStatus(status)
	return &n, nil
}

// Create inserts note and fills in its ID and timestamps.
func (r *NoteRepository) Create(ctx context.Context, note *Note) error {
	now := time.Now().UTC()
	if note.IndexStatus == "" {
		note.IndexStatus = IndexPending
	}
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO notes (user_id, folder_id, title, content, favorite, is_deleted, summary, index_status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?, ?)`,
		note.UserID, note.FolderID, note.Title, note.Content, note.Favorite, note.Summary, note.IndexStatus, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create note: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get insert id: %w", err)
	}
	note.ID = int(id)
	note.IsDeleted = false
	note.CreatedAt = now
	note.UpdatedAt = now
	return nil
}

// Get returns the user's note, including soft-deleted ones.
func (r *NoteRepository) Get(ctx context.Context, userID, id int) (*Note, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+noteColumns+" FROM notes WHERE id = ? AND user_id = ?", id, userID)
	note, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interrors.ErrNoteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get note: %w", err)
	}
	return note, nil
}

// GetByID looks a note up without an owner check. Only for background work
// that already holds a trusted note id.
func (r *NoteRepository) GetByID(ctx context.Context, id int) (*Note, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+noteColumns+" FROM notes WHERE id = ?", id)
	note, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interrors.ErrNoteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get note: %w", err)
	}
	return note, nil
}

// ListOptions filters List. Zero values mean no filter.
type ListOptions struct {
	FolderID       *int
	FavoritesOnly  bool
	IncludeDeleted bool
	Limit          int
	Offset         int
}

// List returns the user's notes, newest first.
func (r *NoteRepository) List(ctx context.Context, userID int, opts ListOptions) ([]*Note, error) {
	query := "SELECT " + noteColumns + " FROM notes WHERE user_id = ?"
	args := []interface{}{userID}

	if !opts.IncludeDeleted {
		query += " AND is_deleted = 0"
	}
	if opts.FolderID != nil {
		query += " AND folder_id = ?"
		args = append(args, *opts.FolderID)
	}
	if opts.FavoritesOnly {
		query += " AND favorite = 1"
	}
	query += " ORDER BY created_at DESC, id DESC"

	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, opts.Offset)
		}
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	notes := []*Note{}
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, note)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return notes, nil
}

// Update writes the user-editable fields and index status of note and bumps
// updated_at. The summary is owned by SetSummary and never written here.
func (r *NoteRepository) Update(ctx context.Context, note *Note) error {
	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx,
		`UPDATE notes SET folder_id = ?, title = ?, content = ?, favorite = ?, is_deleted = ?,
		 index_status = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		note.FolderID, note.Title, note.Content, note.Favorite, note.IsDeleted,
		note.IndexStatus, now, note.ID, note.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update note: %w", err)
	}
	if err := expectOneRow(result, interrors.ErrNoteNotFound); err != nil {
		return err
	}
	note.UpdatedAt = now
	return nil
}

// SetIndexStatus changes only the index status; updated_at is left alone.
func (r *NoteRepository) SetIndexStatus(ctx context.Context, id int, status IndexStatus) error {
	result, err := r.db.ExecContext(ctx, "UPDATE notes SET index_status = ? WHERE id = ?", status, id)
	if err != nil {
		return fmt.Errorf("failed to set index status: %w", err)
	}
	return expectOneRow(result, interrors.ErrNoteNotFound)
}

// SetSummary stores a generated summary; updated_at is left alone.
func (r *NoteRepository) SetSummary(ctx context.Context, id int, summary string) error {
	result, err := r.db.ExecContext(ctx, "UPDATE notes SET summary = ? WHERE id = ?", summary, id)
	if err != nil {
		return fmt.Errorf("failed to set summary: %w", err)
	}
	return expectOneRow(result, interrors.ErrNoteNotFound)
}

// IDsByStatus lists non-deleted note ids with the given index status.
func (r *NoteRepository) IDsByStatus(ctx context.Context, statuses ...IndexStatus) ([]int, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
	args := make([]interface{}, len(statuses))
	for i, s := range statuses {
		args[i] = s
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT id FROM notes WHERE is_deleted = 0 AND index_status IN ("+placeholders+") ORDER BY id", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes by status: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// AllIDs lists every non-deleted note id, optionally for one user (userID 0 = all).
func (r *NoteRepository) AllIDs(ctx context.Context, userID int) ([]int, error) {
	query := "SELECT id FROM notes WHERE is_deleted = 0"
	args := []interface{}{}
	if userID != 0 {
		query += " AND user_id = ?"
		args = append(args, userID)
	}
	rows, err := r.db.QueryContext(ctx, query+" ORDER BY id", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list note ids: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

func scanIDs(rows *sql.Rows) ([]int, error) {
	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func expectOneRow(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
