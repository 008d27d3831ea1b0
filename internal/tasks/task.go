// Package tasks runs background work (summaries, index retries) on a bounded
// worker pool and records each task's state in the database.
package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/streed/notesai/internal/database"
	interrors "github.com/streed/notesai/internal/errors"
)

type Kind string

const (
	KindSummarize Kind = "summarize"
	KindIndex     Kind = "index"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

type Task struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	UserID    int       `json:"-"`
	NoteID    int       `json:"note_id"`
	Status    Status    `json:"status"`
	Attempts  int       `json:"attempts"`
	Result    *string   `json:"result,omitempty"`
	Error     *string   `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (t *Task) Done() bool {
	return t.Status == StatusSucceeded || t.Status == StatusFailed
}

type Repository struct {
	db database.Querier
}

func NewRepository(db database.Querier) *Repository {
	return &Repository{db: db}
}

const taskColumns = "id, kind, user_id, note_id, status, attempts, result, error, created_at, updated_at"

func scanTask(row interface{ Scan(...any) error }) (*Task, error) {
	var (
		t              Task
		kind, status   string
		result, errMsg sql.NullString
	)
	if err := row.Scan(&t.ID, &kind, &t.UserID, &t.NoteID, &status, &t.Attempts, &result, &errMsg, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Kind = Kind(kind)
	t.Status = Status(status)
	if result.Valid {
		t.Result = &result.String
	}
	if errMsg.Valid {
		t.Error = &errMsg.String
	}
	return &t, nil
}

// Create stores a new pending task with a fresh UUID.
func (r *Repository) Create(ctx context.Context, kind Kind, userID, noteID int) (*Task, error) {
	now := time.Now().UTC()
	t := &Task{
		ID:        uuid.NewString(),
		Kind:      kind,
		UserID:    userID,
		NoteID:    noteID,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO tasks ("+taskColumns+") VALUES (?, ?, ?, ?, ?, 0, NULL, NULL, ?, ?)",
		t.ID, string(kind), userID, noteID, string(StatusPending), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	return t, nil
}

// Get returns the user's task.
func (r *Repository) Get(ctx context.Context, userID int, id string) (*Task, error) {
	t, err := scanTask(r.db.QueryRowContext(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE id = ? AND user_id = ?", id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interrors.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

// Save writes the task's mutable state.
func (r *Repository) Save(ctx context.Context, t *Task) error {
	t.UpdatedAt = time.Now().UTC()
	result, err := r.db.ExecContext(ctx,
		"UPDATE tasks SET status = ?, attempts = ?, result = ?, error = ?, updated_at = ? WHERE id = ?",
		string(t.Status), t.Attempts, t.Result, t.Error, t.UpdatedAt, t.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return interrors.ErrTaskNotFound
	}
	return nil
}

// Unfinished lists tasks left pending or running, oldest first. Used to
// resume work after a restart.
func (r *Repository) Unfinished(ctx context.Context) ([]*Task, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE status IN (?, ?) ORDER BY created_at, id",
		string(StatusPending), string(StatusRunning))
	if err != nil {
		return nil, fmt.Errorf("failed to list unfinished tasks: %w", err)
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
