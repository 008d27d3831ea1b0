package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streed/notesai/internal/config"
	"github.com/streed/notesai/internal/database"
	"github.com/streed/notesai/internal/embeddings"
	interrors "github.com/streed/notesai/internal/errors"
	"github.com/streed/notesai/internal/models"
	"github.com/streed/notesai/internal/summarize"
	"github.com/streed/notesai/internal/tasks"
)

// fakeProvider returns fixed vectors for known texts and falls back to the
// local model for everything else.
type fakeProvider struct {
	id      embeddings.ProviderID
	vectors map[string][]float32
	failing atomic.Bool
	calls   atomic.Int32
	local   *embeddings.LocalProvider
	// hook runs at the start of every Embed; set it before any goroutines.
	hook    func(text string)
}

func newFakeProvider(id embeddings.ProviderID, vectors map[string][]float32) *fakeProvider {
	return &fakeProvider{id: id, vectors: vectors, local: embeddings.NewLocalProvider(0)}
}

func (f *fakeProvider) ID() embeddings.ProviderID { return f.id }
func (f *fakeProvider) Dimensions() int           { return 0 }

func (f *fakeProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	if f.hook != nil {
		f.hook(text)
	}
	if f.failing.Load() {
		return nil, &embeddings.ProviderError{Provider: f.id, Op: "embed", StatusCode: 503, Err: errors.New("backend unavailable")}
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return f.local.Embed(ctx, text)
}

type fakeSummarizer struct{}

func (fakeSummarizer) Model() string { return "fake" }
func (fakeSummarizer) Summarize(ctx context.Context, content string) (*summarize.SummaryResult, error) {
	return &summarize.SummaryResult{Summary: "summary: " + content, Model: "fake"}, nil
}

type fixture struct {
	cfg  *config.Config
	db   *database.DB
	svc  *Services
	prov *fakeProvider
	user *models.User
}

func newFixture(t *testing.T, prov *fakeProvider, mutate ...func(*config.Config)) *fixture {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		DataDirectory: dir,
		DatabasePath:  filepath.Join(dir, "test.db"),
		TaskWorkers:   2,
	}
	for _, m := range mutate {
		m(cfg)
	}
	db, err := database.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return newFixtureOn(t, cfg, db, prov)
}

func newFixtureOn(t *testing.T, cfg *config.Config, db *database.DB, prov *fakeProvider) *fixture {
	t.Helper()
	svc, err := New(cfg, db, WithProvider(prov), WithSummarizer(fakeSummarizer{}))
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })

	f := &fixture{cfg: cfg, db: db, svc: svc, prov: prov}
	u, err := svc.Users.GetByUsername(context.Background(), "alice")
	if err != nil {
		u, err = svc.Users.Create(context.Background(), "alice")
		require.NoError(t, err)
	}
	f.user = u
	return f
}

func (f *fixture) create(t *testing.T, title, content string) *models.Note {
	t.Helper()
	n, err := f.svc.Notes.Create(context.Background(), f.user.ID, NoteInput{Title: title, Content: content})
	require.NoError(t, err)
	return n
}

func (f *fixture) versionCount(t *testing.T, id int) int {
	t.Helper()
	n, err := models.NewVersionRepository(f.db.Conn()).Count(context.Background(), id)
	require.NoError(t, err)
	return n
}

func strPtr(s string) *string { return &s }

// gate blocks the first Embed of text until released.
type gate struct {
	text    string
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGate(text string) *gate {
	return &gate{text: text, entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gate) hook(text string) {
	if text != g.text {
		return
	}
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
}

func TestCreateStoresEmbedding(t *testing.T) {
	f := newFixture(t, newFakeProvider("fake", map[string][]float32{"buy milk": {1, 0}}))
	ctx := context.Background()

	note := f.create(t, "Milk", "buy milk")
	assert.Equal(t, models.IndexIndexed, note.IndexStatus)
	assert.Equal(t, 0, f.versionCount(t, note.ID))

	emb, err := f.svc.Store.Get(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, emb.Vector)
	assert.Equal(t, embeddings.ProviderID("fake"), emb.Provider)

	stored, err := f.svc.Notes.Get(ctx, f.user.ID, note.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IndexIndexed, stored.IndexStatus)
}

func TestCreateValidates(t *testing.T) {
	f := newFixture(t, newFakeProvider("fake", nil))
	ctx := context.Background()

	_, err := f.svc.Notes.Create(ctx, f.user.ID, NoteInput{Content: "   "})
	assert.ErrorIs(t, err, interrors.ErrEmptyContent)

	_, err = f.svc.Notes.Create(ctx, f.user.ID, NoteInput{Title: "this title is far too long", Content: "x"})
	assert.ErrorIs(t, err, interrors.ErrValidation)

	missing := 999
	_, err = f.svc.Notes.Create(ctx, f.user.ID, NoteInput{Content: "x", FolderID: &missing})
	assert.ErrorIs(t, err, interrors.ErrFolderNotFound)
	assert.Zero(t, f.prov.calls.Load(), "invalid notes are never embedded")
}

func TestUpdateUnchangedContentWritesNothing(t *testing.T) {
	f := newFixture(t, newFakeProvider("fake", nil))
	ctx := context.Background()
	note := f.create(t, "Milk", "buy milk")

	before, err := f.svc.Store.Get(ctx, note.ID)
	require.NoError(t, err)
	calls := f.prov.calls.Load()
	time.Sleep(5 * time.Millisecond)

	updated, err := f.svc.Notes.Update(ctx, f.user.ID, note.ID, NoteUpdate{
		Title:   strPtr("Dairy"),
		Content: strPtr("buy milk"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Dairy", updated.Title)

	after, err := f.svc.Store.Get(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Vector, after.Vector)
	assert.True(t, before.UpdatedAt.Equal(after.UpdatedAt))
	assert.Equal(t, 0, f.versionCount(t, note.ID))
	assert.Equal(t, calls, f.prov.calls.Load(), "no re-embedding")
}

func TestUpdateChangedContentVersionsAndReembeds(t *testing.T) {
	f := newFixture(t, newFakeProvider("fake", map[string][]float32{
		"buy milk":     {1, 0},
		"walk the dog": {0, 1},
	}))
	ctx := context.Background()
	note := f.create(t, "Milk", "buy milk")

	_, err := f.svc.Notes.Update(ctx, f.user.ID, note.ID, NoteUpdate{
		Title:   strPtr("Dog"),
		Content: strPtr("walk the dog"),
	})
	require.NoError(t, err)

	versions, err := f.svc.Notes.Versions(ctx, f.user.ID, note.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, "walk the dog", versions[0].Content)
	assert.Equal(t, "Dog", versions[0].Title)

	emb, err := f.svc.Store.Get(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, emb.Vector)
}

func TestEmbedFailureKeepsNoteAndQueuesRetry(t *testing.T) {
	prov := newFakeProvider("fake", map[string][]float32{"buy milk": {1, 0}})
	f := newFixture(t, prov)
	ctx := context.Background()

	prov.failing.Store(true)
	note, err := f.svc.Notes.Create(ctx, f.user.ID, NoteInput{Title: "Milk", Content: "buy milk"})
	require.Error(t, err)
	require.NotNil(t, note, "the note is saved even though indexing failed")

	var ierr *IndexError
	require.True(t, errors.As(err, &ierr))
	assert.Equal(t, note.ID, ierr.NoteID)
	assert.NotEmpty(t, ierr.TaskID)
	assert.ErrorIs(t, err, interrors.ErrIndexing)
	assert.ErrorIs(t, err, interrors.ErrProvider)
	assert.Equal(t, models.IndexFailed, note.IndexStatus)

	_, err = f.svc.Store.Get(ctx, note.ID)
	assert.ErrorIs(t, err, interrors.ErrEmbeddingNotFound)

	task, err := f.svc.Tasks.Get(ctx, f.user.ID, ierr.TaskID)
	require.NoError(t, err)
	assert.Equal(t, tasks.KindIndex, task.Kind)
	assert.Equal(t, tasks.StatusPending, task.Status)

	// Backend recovers; the queued retry indexes the note.
	prov.failing.Store(false)
	require.NoError(t, f.svc.Start(ctx))
	require.Eventually(t, func() bool {
		n, err := f.svc.Notes.Get(ctx, f.user.ID, note.ID)
		return err == nil && n.IndexStatus == models.IndexIndexed
	}, 5*time.Second, 10*time.Millisecond)

	emb, err := f.svc.Store.Get(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, emb.Vector)
}

func TestEmbedFailureOnUpdateDropsStaleVector(t *testing.T) {
	prov := newFakeProvider("fake", nil)
	f := newFixture(t, prov)
	ctx := context.Background()
	note := f.create(t, "Milk", "buy milk")

	prov.failing.Store(true)
	updated, err := f.svc.Notes.Update(ctx, f.user.ID, note.ID, NoteUpdate{Content: strPtr("walk the dog")})
	var ierr *IndexError
	require.True(t, errors.As(err, &ierr))
	require.NotNil(t, updated)
	assert.Equal(t, "walk the dog", updated.Content)
	assert.Equal(t, models.IndexFailed, updated.IndexStatus)

	assert.Equal(t, 1, f.versionCount(t, note.ID))
	_, err = f.svc.Store.Get(ctx, note.ID)
	assert.ErrorIs(t, err, interrors.ErrEmbeddingNotFound, "no vector for content the note no longer has")
}

func TestDeleteRestoreScenario(t *testing.T) {
	f := newFixture(t, newFakeProvider("fake", map[string][]float32{
		"buy milk":       {1, 0},
		"walk the dog":   {0, 1},
		"purchase dairy": {0.9, 0.1},
	}))
	ctx := context.Background()
	milk := f.create(t, "Milk", "buy milk")
	dog := f.create(t, "Dog", "walk the dog")

	results, err := f.svc.Search.Search(ctx, f.user.ID, "purchase dairy", 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, milk.ID, results[0].ID)
	assert.InDelta(t, 0.994, results[0].Score, 1e-3)

	before, err := f.svc.Store.Get(ctx, milk.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.Notes.Delete(ctx, f.user.ID, milk.ID))
	results, err = f.svc.Search.Search(ctx, f.user.ID, "purchase dairy", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, dog.ID, results[0].ID)

	listed, err := f.svc.Notes.List(ctx, f.user.ID, models.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	restored, err := f.svc.Notes.Restore(ctx, f.user.ID, milk.ID)
	require.NoError(t, err)
	assert.False(t, restored.IsDeleted)

	after, err := f.svc.Store.Get(ctx, milk.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Vector, after.Vector)
	assert.True(t, before.UpdatedAt.Equal(after.UpdatedAt))

	results, err = f.svc.Search.Search(ctx, f.user.ID, "purchase dairy", 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, milk.ID, results[0].ID)
}

func TestProviderSwitchScenario(t *testing.T) {
	vectors := map[string][]float32{
		"buy milk":       {1, 0},
		"walk the dog":   {0, 1},
		"purchase dairy": {0.9, 0.1},
	}
	f := newFixture(t, newFakeProvider("local", nil))
	ctx := context.Background()
	milk := f.create(t, "Milk", "buy milk")
	f.create(t, "Dog", "walk the dog")

	// Same database, new provider.
	switched := newFixtureOn(t, f.cfg, f.db, newFakeProvider("openai", vectors))
	_, err := switched.svc.Search.Search(ctx, f.user.ID, "purchase dairy", 5)
	require.ErrorIs(t, err, interrors.ErrProviderMismatch)
	assert.Contains(t, err.Error(), "2 from local")

	res, err := switched.svc.Notes.ReindexMany(ctx, ReindexScope{OnlyStale: true}, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, &ReindexResult{Total: 2, Succeeded: 2}, res)

	results, err := switched.svc.Search.Search(ctx, f.user.ID, "purchase dairy", 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, milk.ID, results[0].ID)

	res, err = switched.svc.Notes.ReindexMany(ctx, ReindexScope{OnlyStale: true}, 2, nil)
	require.NoError(t, err)
	assert.Zero(t, res.Total, "nothing left to reindex")
}

func TestProviderSwitchAutoReindex(t *testing.T) {
	vectors := map[string][]float32{
		"buy milk":       {1, 0},
		"walk the dog":   {0, 1},
		"purchase dairy": {0.9, 0.1},
	}
	f := newFixture(t, newFakeProvider("local", nil))
	ctx := context.Background()
	milk := f.create(t, "Milk", "buy milk")
	f.create(t, "Dog", "walk the dog")

	f.cfg.AutoReindexOnSearch = true
	switched := newFixtureOn(t, f.cfg, f.db, newFakeProvider("openai", vectors))
	results, err := switched.svc.Search.Search(ctx, f.user.ID, "purchase dairy", 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, milk.ID, results[0].ID)

	emb, err := switched.svc.Store.Get(ctx, milk.ID)
	require.NoError(t, err)
	assert.Equal(t, embeddings.ProviderID("openai"), emb.Provider)
}

func TestAutoReindexSearchDoesNotOverwriteConcurrentEdit(t *testing.T) {
	f := newFixture(t, newFakeProvider("local", nil))
	ctx := context.Background()
	note := f.create(t, "Race", "old content")

	f.cfg.AutoReindexOnSearch = true
	prov := newFakeProvider("openai", nil)
	g := newGate("old content")
	prov.hook = g.hook
	switched := newFixtureOn(t, f.cfg, f.db, prov)

	searched := make(chan error, 1)
	go func() {
		_, err := switched.svc.Search.Search(ctx, f.user.ID, "anything", 5)
		searched <- err
	}()
	<-g.entered

	updated := make(chan error, 1)
	go func() {
		_, err := switched.svc.Notes.Update(ctx, f.user.ID, note.ID, NoteUpdate{Content: strPtr("new content")})
		updated <- err
	}()
	time.Sleep(20 * time.Millisecond)
	close(g.release)

	require.NoError(t, <-searched)
	require.NoError(t, <-updated)

	stored, err := switched.svc.Notes.Get(ctx, f.user.ID, note.ID)
	require.NoError(t, err)
	assert.Equal(t, "new content", stored.Content)
	assert.Equal(t, models.IndexIndexed, stored.IndexStatus)

	want, err := prov.Embed(ctx, "new content")
	require.NoError(t, err)
	emb, err := switched.svc.Store.Get(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, want, emb.Vector)
	assert.Equal(t, embeddings.ProviderID("openai"), emb.Provider)
}

func TestSummaryKeptAcrossConcurrentUpdate(t *testing.T) {
	prov := newFakeProvider("fake", nil)
	g := newGate("edited content")
	prov.hook = g.hook
	f := newFixture(t, prov)
	ctx := context.Background()
	note := f.create(t, "Sum", "original content")

	updated := make(chan error, 1)
	go func() {
		_, err := f.svc.Notes.Update(ctx, f.user.ID, note.ID, NoteUpdate{Content: strPtr("edited content")})
		updated <- err
	}()
	<-g.entered

	require.NoError(t, f.svc.Notes.SetSummary(ctx, note.ID, "a short summary"))
	close(g.release)
	require.NoError(t, <-updated)

	// Favorite and soft-delete write from their own snapshot too.
	_, err := f.svc.Notes.ToggleFavorite(ctx, f.user.ID, note.ID)
	require.NoError(t, err)
	require.NoError(t, f.svc.Notes.Delete(ctx, f.user.ID, note.ID))

	stored, err := f.svc.Notes.Get(ctx, f.user.ID, note.ID)
	require.NoError(t, err)
	assert.Equal(t, "edited content", stored.Content)
	require.NotNil(t, stored.Summary)
	assert.Equal(t, "a short summary", *stored.Summary)
}

func TestOwnerScoping(t *testing.T) {
	f := newFixture(t, newFakeProvider("fake", nil))
	ctx := context.Background()
	note := f.create(t, "Mine", "private thoughts")

	bob, err := f.svc.Users.Create(ctx, "bob")
	require.NoError(t, err)

	_, err = f.svc.Notes.Get(ctx, bob.ID, note.ID)
	assert.ErrorIs(t, err, interrors.ErrNoteNotFound)
	_, err = f.svc.Notes.Update(ctx, bob.ID, note.ID, NoteUpdate{Content: strPtr("hijacked")})
	assert.ErrorIs(t, err, interrors.ErrNoteNotFound)
	assert.ErrorIs(t, f.svc.Notes.Delete(ctx, bob.ID, note.ID), interrors.ErrNoteNotFound)
	_, err = f.svc.Notes.ToggleFavorite(ctx, bob.ID, note.ID)
	assert.ErrorIs(t, err, interrors.ErrNoteNotFound)
	_, err = f.svc.Notes.Versions(ctx, bob.ID, note.ID)
	assert.ErrorIs(t, err, interrors.ErrNoteNotFound)

	results, err := f.svc.Search.Search(ctx, bob.ID, "private thoughts", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestToggleFavorite(t *testing.T) {
	f := newFixture(t, newFakeProvider("fake", nil))
	ctx := context.Background()
	note := f.create(t, "Fav", "content")

	fav, err := f.svc.Notes.ToggleFavorite(ctx, f.user.ID, note.ID)
	require.NoError(t, err)
	assert.True(t, fav)
	fav, err = f.svc.Notes.ToggleFavorite(ctx, f.user.ID, note.ID)
	require.NoError(t, err)
	assert.False(t, fav)
}

func TestConcurrentUpdatesKeepEmbeddingInStep(t *testing.T) {
	prov := newFakeProvider("fake", nil)
	f := newFixture(t, prov)
	ctx := context.Background()
	note := f.create(t, "Race", "start")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Notes.Update(ctx, f.user.ID, note.ID, NoteUpdate{Content: strPtr(fmt.Sprintf("content %d", i))})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	final, err := f.svc.Notes.Get(ctx, f.user.ID, note.ID)
	require.NoError(t, err)
	want, err := prov.Embed(ctx, final.Content)
	require.NoError(t, err)
	emb, err := f.svc.Store.Get(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, want, emb.Vector)

	versions, err := f.svc.Notes.Versions(ctx, f.user.ID, note.ID)
	require.NoError(t, err)
	require.Len(t, versions, 8)
	assert.Equal(t, final.Content, versions[len(versions)-1].Content)
	assert.Zero(t, f.svc.Notes.locks.size())
}

func TestAsyncIndexing(t *testing.T) {
	prov := newFakeProvider("openai", map[string][]float32{"buy milk": {1, 0}})
	f := newFixture(t, prov, func(c *config.Config) { c.AsyncIndexing = true })
	ctx := context.Background()

	note := f.create(t, "Milk", "buy milk")
	assert.Equal(t, models.IndexPending, note.IndexStatus)
	assert.Zero(t, prov.calls.Load())

	require.NoError(t, f.svc.Start(ctx))
	require.Eventually(t, func() bool {
		_, err := f.svc.Store.Get(ctx, note.ID)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	n, err := f.svc.Notes.Get(ctx, f.user.ID, note.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IndexIndexed, n.IndexStatus)
}

func TestSummarizeQueuesTask(t *testing.T) {
	f := newFixture(t, newFakeProvider("fake", nil))
	ctx := context.Background()
	note := f.create(t, "Long", "a long note about many things")
	require.NoError(t, f.svc.Start(ctx))

	task, err := f.svc.Notes.Summarize(ctx, f.user.ID, note.ID)
	require.NoError(t, err)
	assert.Equal(t, tasks.KindSummarize, task.Kind)

	require.Eventually(t, func() bool {
		n, err := f.svc.Notes.Get(ctx, f.user.ID, note.ID)
		return err == nil && n.Summary != nil
	}, 5*time.Second, 10*time.Millisecond)

	n, err := f.svc.Notes.Get(ctx, f.user.ID, note.ID)
	require.NoError(t, err)
	assert.Equal(t, "summary: a long note about many things", *n.Summary)
}

func TestSummarizeDisabled(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{DataDirectory: dir, DatabasePath: filepath.Join(dir, "test.db")}
	db, err := database.New(cfg)
	require.NoError(t, err)
	defer db.Close()

	svc, err := New(cfg, db, WithProvider(newFakeProvider("fake", nil)))
	require.NoError(t, err)
	defer svc.Close()

	_, err = svc.Notes.Summarize(context.Background(), 1, 1)
	assert.ErrorIs(t, err, interrors.ErrSummarizationDisabled)
}

func TestKeyedMutex(t *testing.T) {
	k := newKeyedMutex()
	var inside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock(1)
			defer unlock()
			assert.Equal(t, int32(1), inside.Add(1))
			time.Sleep(time.Millisecond)
			inside.Add(-1)
		}()
	}

	// Other keys do not wait.
	unlock := k.Lock(2)
	unlock()

	wg.Wait()
	assert.Zero(t, k.size())
}
