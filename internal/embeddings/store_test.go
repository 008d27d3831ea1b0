package embeddings

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streed/notesai/internal/config"
	"github.com/streed/notesai/internal/database"
	interrors "github.com/streed/notesai/internal/errors"
	"github.com/streed/notesai/internal/models"
)

func setupStore(t *testing.T) (*sql.DB, *Store) {
	t.Helper()
	dir := t.TempDir()
	db, err := database.New(&config.Config{DataDirectory: dir, DatabasePath: filepath.Join(dir, "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db.Conn(), NewStore(db.Conn())
}

func addNote(t *testing.T, db *sql.DB, userID int, title, content string) *models.Note {
	t.Helper()
	n := &models.Note{UserID: userID, Title: title, Content: content}
	require.NoError(t, models.NewNoteRepository(db).Create(context.Background(), n))
	return n
}

func TestEncodeDecode(t *testing.T) {
	vec := []float32{0.5, -1.25, 3}
	blob, err := Encode(vec)
	require.NoError(t, err)
	assert.Len(t, blob, 12)

	back, err := Decode(blob)
	require.NoError(t, err)
	assert.Equal(t, vec, back)

	_, err = Decode([]byte{1, 2, 3})
	assert.ErrorIs(t, err, interrors.ErrInvalidEmbeddingLength)
}

func TestStorePutGetDelete(t *testing.T) {
	db, store := setupStore(t)
	ctx := context.Background()
	u, err := models.NewUserRepository(db).Create(ctx, "alice")
	require.NoError(t, err)
	n := addNote(t, db, u.ID, "Milk", "buy milk")

	_, err = store.Get(ctx, n.ID)
	assert.ErrorIs(t, err, interrors.ErrEmbeddingNotFound)

	require.NoError(t, store.Put(ctx, n.ID, []float32{1, 0}, ProviderLocal))
	first, err := store.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, first.Vector)
	assert.Equal(t, 2, first.Dimensions)
	assert.Equal(t, ProviderLocal, first.Provider)

	time.Sleep(5 * time.Millisecond)

	// Same vector and provider: no write
	require.NoError(t, store.Put(ctx, n.ID, []float32{1, 0}, ProviderLocal))
	same, err := store.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.True(t, first.UpdatedAt.Equal(same.UpdatedAt))

	require.NoError(t, store.Put(ctx, n.ID, []float32{0, 1, 0}, ProviderOpenAI))
	changed, err := store.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 0}, changed.Vector)
	assert.Equal(t, 3, changed.Dimensions)
	assert.Equal(t, ProviderOpenAI, changed.Provider)
	assert.True(t, changed.UpdatedAt.After(first.UpdatedAt))
	assert.True(t, changed.CreatedAt.Equal(first.CreatedAt))

	require.NoError(t, store.Delete(ctx, n.ID))
	_, err = store.Get(ctx, n.ID)
	assert.ErrorIs(t, err, interrors.ErrEmbeddingNotFound)
	assert.NoError(t, store.Delete(ctx, n.ID))
}

func TestStoreCandidates(t *testing.T) {
	db, store := setupStore(t)
	ctx := context.Background()
	users := models.NewUserRepository(db)
	alice, err := users.Create(ctx, "alice")
	require.NoError(t, err)
	bob, err := users.Create(ctx, "bob")
	require.NoError(t, err)

	n1 := addNote(t, db, alice.ID, "One", "first")
	n2 := addNote(t, db, alice.ID, "Two", "second")
	deleted := addNote(t, db, alice.ID, "Gone", "deleted")
	unindexed := addNote(t, db, alice.ID, "Bare", "no vector")
	other := addNote(t, db, bob.ID, "Bob", "bob's")
	_ = unindexed

	for _, id := range []int{n2.ID, n1.ID, deleted.ID, other.ID} {
		require.NoError(t, store.Put(ctx, id, []float32{1, 1}, ProviderLocal))
	}
	deleted.IsDeleted = true
	require.NoError(t, models.NewNoteRepository(db).Update(ctx, deleted))

	cands, err := store.Candidates(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, cands, 2)
	assert.Equal(t, n1.ID, cands[0].NoteID)
	assert.Equal(t, "first", cands[0].Content)
	assert.Equal(t, n2.ID, cands[1].NoteID)
	assert.Equal(t, ProviderLocal, cands[1].Provider)

	// A corrupt row is skipped rather than failing the whole load.
	_, err = db.ExecContext(ctx, "UPDATE note_embeddings SET embedding = ? WHERE note_id = ?", []byte{1, 2, 3}, n2.ID)
	require.NoError(t, err)
	cands, err = store.Candidates(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, n1.ID, cands[0].NoteID)
}

func TestStoreProviderBookkeeping(t *testing.T) {
	db, store := setupStore(t)
	ctx := context.Background()
	u, err := models.NewUserRepository(db).Create(ctx, "alice")
	require.NoError(t, err)

	a := addNote(t, db, u.ID, "A", "a")
	b := addNote(t, db, u.ID, "B", "b")
	c := addNote(t, db, u.ID, "C", "c")
	require.NoError(t, store.Put(ctx, a.ID, []float32{1}, ProviderLocal))
	require.NoError(t, store.Put(ctx, b.ID, []float32{1, 2}, ProviderOpenAI))
	require.NoError(t, store.Put(ctx, c.ID, []float32{1, 2}, ProviderOpenAI))

	counts, err := store.ProviderCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[ProviderID]int{ProviderLocal: 1, ProviderOpenAI: 2}, counts)

	stale, err := store.StaleNoteIDs(ctx, ProviderOpenAI)
	require.NoError(t, err)
	assert.Equal(t, []int{a.ID}, stale)

	stale, err = store.StaleNoteIDs(ctx, ProviderLocal)
	require.NoError(t, err)
	assert.Equal(t, []int{b.ID, c.ID}, stale)
}

func TestStoreWithTxRollsBack(t *testing.T) {
	db, store := setupStore(t)
	ctx := context.Background()
	u, err := models.NewUserRepository(db).Create(ctx, "alice")
	require.NoError(t, err)
	n := addNote(t, db, u.ID, "A", "a")

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, store.WithTx(tx).Put(ctx, n.ID, []float32{1}, ProviderLocal))
	require.NoError(t, tx.Rollback())

	_, err = store.Get(ctx, n.ID)
	assert.ErrorIs(t, err, interrors.ErrEmbeddingNotFound)
}
