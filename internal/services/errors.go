package services

import (
	"fmt"

	interrors "github.com/streed/notesai/internal/errors"
)

// IndexError means the note was saved but its embedding could not be
// computed. The note is marked failed and TaskID names the queued retry.
type IndexError struct {
	NoteID int
	TaskID string
	Err    error
}

func (e *IndexError) Error() string {
	if e.TaskID != "" {
		return fmt.Sprintf("note %d saved but not indexed (retry task %s): %v", e.NoteID, e.TaskID, e.Err)
	}
	return fmt.Sprintf("note %d saved but not indexed: %v", e.NoteID, e.Err)
}

func (e *IndexError) Unwrap() error {
	return e.Err
}

func (e *IndexError) Is(target error) bool {
	return target == interrors.ErrIndexing
}
