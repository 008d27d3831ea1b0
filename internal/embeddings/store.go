package embeddings

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"

	"github.com/streed/notesai/internal/constants"
	"github.com/streed/notesai/internal/database"
	interrors "github.com/streed/notesai/internal/errors"
	"github.com/streed/notesai/internal/logger"
)

// Embedding is the stored vector for one note.
type Embedding struct {
	NoteID     int
	Vector     []float32
	Dimensions int
	Provider   ProviderID
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Candidate is a searchable note joined with its embedding.
type Candidate struct {
	NoteID   int
	Title    string
	Content  string
	Vector   []float32
	Provider ProviderID
}

// Store persists one embedding per note in note_embeddings. Vectors are kept
// in the sqlite-vec float32 BLOB layout.
type Store struct {
	db database.Querier
}

func NewStore(db database.Querier) *Store {
	return &Store{db: db}
}

// WithTx returns a store whose writes join tx.
func (s *Store) WithTx(tx *sql.Tx) *Store {
	return &Store{db: tx}
}

// Encode serializes a vector as little-endian float32.
func Encode(vec []float32) ([]byte, error) {
	return sqlite_vec.SerializeFloat32(vec)
}

// Decode is the inverse of Encode.
func Decode(data []byte) ([]float32, error) {
	if len(data)%constants.BytesPerFloat32 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", interrors.ErrInvalidEmbeddingLength, len(data))
	}
	vec := make([]float32, len(data)/constants.BytesPerFloat32)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}

func (s *Store) Get(ctx context.Context, noteID int) (*Embedding, error) {
	var (
		e    Embedding
		blob []byte
		prov string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT note_id, embedding, dimensions, provider, created_at, updated_at FROM note_embeddings WHERE note_id = ?",
		noteID,
	).Scan(&e.NoteID, &blob, &e.Dimensions, &prov, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interrors.ErrEmbeddingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get embedding: %w", err)
	}
	if e.Vector, err = Decode(blob); err != nil {
		return nil, err
	}
	e.Provider = ProviderID(prov)
	return &e, nil
}

// Put inserts or replaces the note's embedding. Writing the same vector and
// provider again leaves the row untouched.
func (s *Store) Put(ctx context.Context, noteID int, vec []float32, provider ProviderID) error {
	blob, err := Encode(vec)
	if err != nil {
		return fmt.Errorf("failed to serialize embedding: %w", err)
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO note_embeddings (note_id, embedding, dimensions, provider, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(note_id) DO UPDATE SET
			embedding = excluded.embedding,
			dimensions = excluded.dimensions,
			provider = excluded.provider,
			updated_at = excluded.updated_at
		WHERE note_embeddings.embedding IS NOT excluded.embedding
		   OR note_embeddings.provider IS NOT excluded.provider`,
		noteID, blob, len(vec), string(provider), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to store embedding: %w", err)
	}
	return nil
}

// Delete removes the note's embedding. Deleting a missing row is not an error.
func (s *Store) Delete(ctx context.Context, noteID int) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM note_embeddings WHERE note_id = ?", noteID); err != nil {
		return fmt.Errorf("failed to delete embedding: %w", err)
	}
	return nil
}

// Candidates returns the user's non-deleted notes that have an embedding,
// ordered by note id.
func (s *Store) Candidates(ctx context.Context, userID int) ([]Candidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT n.id, n.title, n.content, e.embedding, e.provider
		FROM notes n
		JOIN note_embeddings e ON e.note_id = n.id
		WHERE n.user_id = ? AND n.is_deleted = 0
		ORDER BY n.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidates: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var (
			c    Candidate
			blob []byte
			prov string
		)
		if err := rows.Scan(&c.NoteID, &c.Title, &c.Content, &blob, &prov); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		c.Vector, err = Decode(blob)
		if err != nil {
			logger.Warn("Skipping note %d: %v", c.NoteID, err)
			continue
		}
		c.Provider = ProviderID(prov)
		out = append(out, c)
	}
	return out, rows.Err()
}

// ProviderCounts reports how many stored embeddings each provider produced.
func (s *Store) ProviderCounts(ctx context.Context) (map[ProviderID]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT provider, COUNT(*) FROM note_embeddings GROUP BY provider")
	if err != nil {
		return nil, fmt.Errorf("failed to count embeddings: %w", err)
	}
	defer rows.Close()

	counts := make(map[ProviderID]int)
	for rows.Next() {
		var (
			p string
			n int
		)
		if err := rows.Scan(&p, &n); err != nil {
			return nil, err
		}
		counts[ProviderID(p)] = n
	}
	return counts, rows.Err()
}

// StaleNoteIDs lists non-deleted notes whose embedding came from a provider
// other than current.
func (s *Store) StaleNoteIDs(ctx context.Context, current ProviderID) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT n.id FROM notes n
		JOIN note_embeddings e ON e.note_id = n.id
		WHERE n.is_deleted = 0 AND e.provider != ?
		ORDER BY n.id`, string(current))
	if err != nil {
		return nil, fmt.Errorf("failed to list stale embeddings: %w", err)
	}
	defer rows.Close()

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
