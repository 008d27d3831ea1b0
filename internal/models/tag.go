package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/streed/notesai/internal/constants"
	"github.com/streed/notesai/internal/database"
	interrors "github.com/streed/notesai/internal/errors"
)

type Tag struct {
	ID     int    `json:"id"`
	UserID int    `json:"-"`
	Name   string `json:"name"`
}

type NoteTag struct {
	ID     int `json:"id"`
	TagID  int `json:"tag"`
	NoteID int `json:"note"`
}

type TagRepository struct {
	db database.Querier
}

func NewTagRepository(db database.Querier) *TagRepository {
	return &TagRepository{db: db}
}

func (r *TagRepository) Create(ctx context.Context, userID int, name string) (*Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name required", interrors.ErrValidation)
	}
	if utf8.RuneCountInString(name) > constants.MaxTagNameLength {
		return nil, fmt.Errorf("%w: name must be at most %d characters", interrors.ErrValidation, constants.MaxTagNameLength)
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) > 0 FROM tags WHERE name = ? AND user_id = ?", name, userID,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check tag: %w", err)
	}
	if exists {
		return nil, interrors.ErrDuplicateTag
	}

	result, err := r.db.ExecContext(ctx, "INSERT INTO tags (user_id, name) VALUES (?, ?)", userID, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create tag: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get insert id: %w", err)
	}
	return &Tag{ID: int(id), UserID: userID, Name: name}, nil
}

func (r *TagRepository) Get(ctx context.Context, userID, id int) (*Tag, error) {
	var t Tag
	err := r.db.QueryRowContext(ctx,
		"SELECT id, user_id, name FROM tags WHERE id = ? AND user_id = ?", id, userID,
	).Scan(&t.ID, &t.UserID, &t.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interrors.ErrTagNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tag: %w", err)
	}
	return &t, nil
}

func (r *TagRepository) List(ctx context.Context, userID int) ([]*Tag, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, user_id, name FROM tags WHERE user_id = ? ORDER BY name", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	defer rows.Close()

	tags := []*Tag{}
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.UserID, &t.Name); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, &t)
	}
	return tags, rows.Err()
}

// Assign links a tag to a note. Both must belong to userID.
func (r *TagRepository) Assign(ctx context.Context, userID, tagID, noteID int) (*NoteTag, error) {
	if _, err := r.Get(ctx, userID, tagID); err != nil {
		return nil, err
	}
	var owner int
	err := r.db.QueryRowContext(ctx, "SELECT user_id FROM notes WHERE id = ?", noteID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && owner != userID) {
		return nil, interrors.ErrNoteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check note: %w", err)
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) > 0 FROM note_tags WHERE tag_id = ? AND note_id = ?", tagID, noteID,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check note tag: %w", err)
	}
	if exists {
		return nil, interrors.ErrDuplicateNoteTag
	}

	result, err := r.db.ExecContext(ctx, "INSERT INTO note_tags (tag_id, note_id) VALUES (?, ?)", tagID, noteID)
	if err != nil {
		return nil, fmt.Errorf("failed to assign tag: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get insert id: %w", err)
	}
	return &NoteTag{ID: int(id), TagID: tagID, NoteID: noteID}, nil
}

// ListAssignments returns every note-tag link on the user's notes.
func (r *TagRepository) ListAssignments(ctx context.Context, userID int) ([]*NoteTag, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT nt.id, nt.tag_id, nt.note_id
		FROM note_tags nt
		JOIN notes n ON n.id = nt.note_id
		WHERE n.user_id = ?
		ORDER BY nt.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list note tags: %w", err)
	}
	defer rows.Close()

	out := []*NoteTag{}
	for rows.Next() {
		var nt NoteTag
		if err := rows.Scan(&nt.ID, &nt.TagID, &nt.NoteID); err != nil {
			return nil, fmt.Errorf("failed to scan note tag: %w", err)
		}
		out = append(out, &nt)
	}
	return out, rows.Err()
}

// TagsForNote returns tag names on a note, sorted.
func (r *TagRepository) TagsForNote(ctx context.Context, noteID int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT t.name FROM tags t
		JOIN note_tags nt ON nt.tag_id = t.id
		WHERE nt.note_id = ?
		ORDER BY t.name`, noteID)
	if err != nil {
		return nil, fmt.Errorf("failed to get tags for note: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
