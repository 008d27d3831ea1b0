// Package search ranks a user's notes by semantic similarity to a query.
package search

import (
	"context"

	"github.com/streed/notesai/internal/embeddings"
)

// CandidateSource yields the notes a search may return. The embedding store
// scans every candidate; an approximate index can satisfy the same contract.
type CandidateSource interface {
	Candidates(ctx context.Context, userID int) ([]embeddings.Candidate, error)
}

// Reindexer recomputes one note's stored embedding from its current content
// with the configured provider. Search uses it to refresh stale candidates.
type Reindexer interface {
	Reindex(ctx context.Context, noteID int) error
}

// Result is one ranked note. The vector is never part of it.
type Result struct {
	ID      int     `json:"id"`
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}
