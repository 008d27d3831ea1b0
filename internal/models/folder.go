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

type Folder struct {
	ID        int       `json:"id"`
	UserID    int       `json:"-"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type FolderRepository struct {
	db database.Querier
}

func NewFolderRepository(db database.Querier) *FolderRepository {
	return &FolderRepository{db: db}
}

func validateFolderName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name required", interrors.ErrValidation)
	}
	if utf8.RuneCountInString(name) > constants.MaxFolderNameLength {
		return fmt.Errorf("%w: name must be at most %d characters", interrors.ErrValidation, constants.MaxFolderNameLength)
	}
	return nil
}

func (r *FolderRepository) Create(ctx context.Context, userID int, name string) (*Folder, error) {
	if err := validateFolderName(name); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx,
		"INSERT INTO folders (user_id, name, created_at) VALUES (?, ?, ?)", userID, name, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create folder: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get insert id: %w", err)
	}
	return &Folder{ID: int(id), UserID: userID, Name: name, CreatedAt: now}, nil
}

func (r *FolderRepository) Get(ctx context.Context, userID, id int) (*Folder, error) {
	var f Folder
	err := r.db.QueryRowContext(ctx,
		"SELECT id, user_id, name, created_at FROM folders WHERE id = ? AND user_id = ?", id, userID,
	).Scan(&f.ID, &f.UserID, &f.Name, &f.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interrors.ErrFolderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get folder: %w", err)
	}
	return &f, nil
}

func (r *FolderRepository) List(ctx context.Context, userID int) ([]*Folder, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, user_id, name, created_at FROM folders WHERE user_id = ? ORDER BY id", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	defer rows.Close()

	folders := []*Folder{}
	for rows.Next() {
		var f Folder
		if err := rows.Scan(&f.ID, &f.UserID, &f.Name, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan folder: %w", err)
		}
		folders = append(folders, &f)
	}
	return folders, rows.Err()
}

// Delete removes the folder; its notes go with it through the foreign key cascade.
func (r *FolderRepository) Delete(ctx context.Context, userID, id int) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM folders WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete folder: %w", err)
	}
	return expectOneRow(result, interrors.ErrFolderNotFound)
}
