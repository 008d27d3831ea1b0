package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/streed/notesai/internal/constants"
	"github.com/streed/notesai/internal/database"
	interrors "github.com/streed/notesai/internal/errors"
)

type User struct {
	ID        int       `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

type UserRepository struct {
	db database.Querier
}

func NewUserRepository(db database.Querier) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, username string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" || len(username) > constants.MaxUsernameLength {
		return nil, fmt.Errorf("%w: username must be 1-%d characters", interrors.ErrValidation, constants.MaxUsernameLength)
	}
	if _, err := r.GetByUsername(ctx, username); err == nil {
		return nil, interrors.ErrDuplicateUser
	} else if !errors.Is(err, interrors.ErrUserNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx, "INSERT INTO users (username, created_at) VALUES (?, ?)", username, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get insert id: %w", err)
	}
	return &User{ID: int(id), Username: username, CreatedAt: now}, nil
}

func (r *UserRepository) Get(ctx context.Context, id int) (*User, error) {
	return r.getOne(ctx, "SELECT id, username, created_at FROM users WHERE id = ?", id)
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*User, error) {
	return r.getOne(ctx, "SELECT id, username, created_at FROM users WHERE username = ?", username)
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg any) (*User, error) {
	var u User
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Username, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interrors.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

func (r *UserRepository) List(ctx context.Context) ([]*User, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, username, created_at FROM users ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []*User{}
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

// Resolve accepts either a numeric id or a username.
func (r *UserRepository) Resolve(ctx context.Context, ref string) (*User, error) {
	var id int
	if _, err := fmt.Sscanf(ref, "%d", &id); err == nil && fmt.Sprint(id) == ref {
		return r.Get(ctx, id)
	}
	return r.GetByUsername(ctx, ref)
}
