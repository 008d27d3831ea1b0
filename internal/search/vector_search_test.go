package search

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streed/notesai/internal/config"
	"github.com/streed/notesai/internal/database"
	"github.com/streed/notesai/internal/embeddings"
	interrors "github.com/streed/notesai/internal/errors"
	"github.com/streed/notesai/internal/metrics"
	"github.com/streed/notesai/internal/models"
)

// fakeEmbedder returns fixed vectors per text.
type fakeEmbedder struct {
	id      embeddings.ProviderID
	vectors map[string][]float32
	calls   int
}

func (f *fakeEmbedder) ProviderID() embeddings.ProviderID { return f.id }

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	v, ok := f.vectors[text]
	if !ok {
		return nil, &embeddings.ProviderError{Provider: f.id, Op: "embed", Err: errors.New("no vector for " + text)}
	}
	return v, nil
}

type sliceSource []embeddings.Candidate

func (s sliceSource) Candidates(ctx context.Context, userID int) ([]embeddings.Candidate, error) {
	out := make([]embeddings.Candidate, len(s))
	copy(out, s)
	return out, nil
}

// reindexingSource serves candidates and re-embeds them in place on Reindex.
type reindexingSource struct {
	cands     []embeddings.Candidate
	emb       *fakeEmbedder
	reindexed []int
}

func (s *reindexingSource) Candidates(ctx context.Context, userID int) ([]embeddings.Candidate, error) {
	out := make([]embeddings.Candidate, len(s.cands))
	copy(out, s.cands)
	return out, nil
}

func (s *reindexingSource) Reindex(ctx context.Context, noteID int) error {
	for i := range s.cands {
		if s.cands[i].NoteID != noteID {
			continue
		}
		vec, err := s.emb.Embed(ctx, s.cands[i].Content)
		if err != nil {
			return err
		}
		s.cands[i].Vector = vec
		s.cands[i].Provider = s.emb.id
		s.reindexed = append(s.reindexed, noteID)
		return nil
	}
	return interrors.ErrNoteNotFound
}

// noopReindexer succeeds without touching anything.
type noopReindexer struct{}

func (noopReindexer) Reindex(ctx context.Context, noteID int) error { return nil }

func TestSearchEmptyQuery(t *testing.T) {
	vs := NewVectorSearch(&fakeEmbedder{id: "fake"}, sliceSource{}, nil, Options{})
	for _, q := range []string{"", "   ", "\n\t"} {
		_, err := vs.Search(context.Background(), 1, q, 5)
		assert.ErrorIs(t, err, interrors.ErrEmptyQuery)
	}
}

func TestSearchMilkBeforeDog(t *testing.T) {
	emb := &fakeEmbedder{id: "fake", vectors: map[string][]float32{
		"dairy": {0.9, 0.1},
	}}
	src := sliceSource{
		{NoteID: 1, Title: "Milk", Content: "buy milk", Vector: []float32{1, 0}, Provider: "fake"},
		{NoteID: 2, Title: "Dog", Content: "walk dog", Vector: []float32{0, 1}, Provider: "fake"},
	}
	vs := NewVectorSearch(emb, src, nil, Options{})

	results, err := vs.Search(context.Background(), 1, "dairy", 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].ID)
	assert.Equal(t, "buy milk", results[0].Content)
	assert.InDelta(t, 0.994, results[0].Score, 1e-3)
	assert.Equal(t, 2, results[1].ID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestSearchTopKAndOrdering(t *testing.T) {
	emb := &fakeEmbedder{id: "fake", vectors: map[string][]float32{"q": {1, 0}}}
	src := sliceSource{
		{NoteID: 1, Vector: []float32{0, 1}, Provider: "fake"},
		{NoteID: 2, Vector: []float32{1, 1}, Provider: "fake"},
		{NoteID: 3, Vector: []float32{1, 0}, Provider: "fake"},
		{NoteID: 4, Vector: []float32{2, 2}, Provider: "fake"}, // ties with 2
		{NoteID: 5, Vector: []float32{-1, 0}, Provider: "fake"},
	}
	vs := NewVectorSearch(emb, src, nil, Options{})

	results, err := vs.Search(context.Background(), 1, "q", 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []int{3, 2, 4}, []int{results[0].ID, results[1].ID, results[2].ID})

	all, err := vs.Search(context.Background(), 1, "q", 0)
	require.NoError(t, err)
	assert.Len(t, all, 5, "default limit covers every candidate here")
	for i := 1; i < len(all); i++ {
		assert.GreaterOrEqual(t, all[i-1].Score, all[i].Score)
	}
	assert.Equal(t, 5, all[4].ID)
}

func TestSearchSkipsIncomparableCandidates(t *testing.T) {
	m := metrics.New()
	emb := &fakeEmbedder{id: "fake", vectors: map[string][]float32{"q": {1, 0}}}
	src := sliceSource{
		{NoteID: 1, Vector: []float32{1, 0, 0}, Provider: "fake"},
		{NoteID: 2, Vector: []float32{0, 0}, Provider: "fake"},
		{NoteID: 3, Vector: []float32{1, 0}, Provider: "fake"},
	}
	vs := NewVectorSearch(emb, src, nil, Options{Metrics: m})

	results, err := vs.Search(context.Background(), 1, "q", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 3, results[0].ID)
}

func TestSearchProviderMismatch(t *testing.T) {
	emb := &fakeEmbedder{id: "openai", vectors: map[string][]float32{
		"q":        {1, 0},
		"buy milk": {0.9, 0.1},
	}}
	cands := []embeddings.Candidate{
		{NoteID: 1, Content: "buy milk", Vector: []float32{1, 0, 0, 0}, Provider: "local"},
		{NoteID: 2, Content: "other", Vector: []float32{0, 1}, Provider: "openai"},
	}

	src := &reindexingSource{cands: cands, emb: emb}
	vs := NewVectorSearch(emb, src, src, Options{})
	_, err := vs.Search(context.Background(), 1, "q", 5)
	require.ErrorIs(t, err, interrors.ErrProviderMismatch)
	var merr *MismatchError
	require.True(t, errors.As(err, &merr))
	assert.Equal(t, []ProviderCount{{Provider: "local", Count: 1}}, merr.Stale)
	assert.Contains(t, err.Error(), "reindex")
	assert.Empty(t, src.reindexed)

	vs = NewVectorSearch(emb, src, src, Options{AutoReindex: true})
	results, err := vs.Search(context.Background(), 1, "q", 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].ID)
	assert.InDelta(t, 0.994, results[0].Score, 1e-3)
	assert.Equal(t, []int{1}, src.reindexed)
}

func TestSearchAutoReindexStillStale(t *testing.T) {
	emb := &fakeEmbedder{id: "openai", vectors: map[string][]float32{"q": {1, 0}}}
	src := sliceSource{
		{NoteID: 1, Content: "buy milk", Vector: []float32{1, 0}, Provider: "local"},
	}

	vs := NewVectorSearch(emb, src, noopReindexer{}, Options{AutoReindex: true})
	_, err := vs.Search(context.Background(), 1, "q", 5)
	assert.ErrorIs(t, err, interrors.ErrProviderMismatch)
}

func TestSearchProviderFailure(t *testing.T) {
	vs := NewVectorSearch(&fakeEmbedder{id: "fake"}, sliceSource{}, nil, Options{})
	_, err := vs.Search(context.Background(), 1, "unknown", 5)
	assert.ErrorIs(t, err, interrors.ErrProvider)
}

func TestSearchAgainstStore(t *testing.T) {
	dir := t.TempDir()
	db, err := database.New(&config.Config{DataDirectory: dir, DatabasePath: filepath.Join(dir, "test.db")})
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	users := models.NewUserRepository(db.Conn())
	notes := models.NewNoteRepository(db.Conn())
	store := embeddings.NewStore(db.Conn())

	alice, err := users.Create(ctx, "alice")
	require.NoError(t, err)
	bob, err := users.Create(ctx, "bob")
	require.NoError(t, err)

	local := embeddings.NewLocalProvider(0)
	put := func(userID int, title, content string) *models.Note {
		n := &models.Note{UserID: userID, Title: title, Content: content}
		require.NoError(t, notes.Create(ctx, n))
		vec, err := local.Embed(ctx, content)
		require.NoError(t, err)
		require.NoError(t, store.Put(ctx, n.ID, vec, embeddings.ProviderLocal))
		return n
	}

	milk := put(alice.ID, "Milk", "buy milk and cheese at the dairy store")
	put(alice.ID, "Dog", "walk the dog in the park")
	gone := put(alice.ID, "Old milk", "buy milk and cheese at the dairy store")
	put(bob.ID, "Bob milk", "buy milk and cheese at the dairy store")

	gone.IsDeleted = true
	require.NoError(t, notes.Update(ctx, gone))

	gw := embeddings.NewGateway(local, nil)
	vs := NewVectorSearch(gw, store, nil, Options{})
	results, err := vs.Search(ctx, alice.ID, "milk cheese dairy", 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, milk.ID, results[0].ID)
	for _, r := range results {
		assert.NotEqual(t, gone.ID, r.ID)
	}
}
