package models

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streed/notesai/internal/config"
	"github.com/streed/notesai/internal/database"
	interrors "github.com/streed/notesai/internal/errors"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	tempDir := t.TempDir()
	db, err := database.New(&config.Config{
		DataDirectory: tempDir,
		DatabasePath:  filepath.Join(tempDir, "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db.Conn()
}

func createUser(t *testing.T, db *sql.DB, name string) *User {
	t.Helper()
	u, err := NewUserRepository(db).Create(context.Background(), name)
	require.NoError(t, err)
	return u
}

func TestNoteRepositoryCreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	alice := createUser(t, db, "alice")
	repo := NewNoteRepository(db)

	note := &Note{UserID: alice.ID, Title: "Groceries", Content: "buy milk"}
	require.NoError(t, repo.Create(ctx, note))
	assert.NotZero(t, note.ID)
	assert.Equal(t, IndexPending, note.IndexStatus)
	assert.False(t, note.CreatedAt.IsZero())

	got, err := repo.Get(ctx, alice.ID, note.ID)
	require.NoError(t, err)
	assert.Equal(t, "Groceries", got.Title)
	assert.Equal(t, "buy milk", got.Content)
	assert.Nil(t, got.FolderID)
	assert.Nil(t, got.Summary)
}

func TestNoteRepositoryOwnerScoping(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	repo := NewNoteRepository(db)

	note := &Note{UserID: alice.ID, Content: "private"}
	require.NoError(t, repo.Create(ctx, note))

	_, err := repo.Get(ctx, bob.ID, note.ID)
	assert.ErrorIs(t, err, interrors.ErrNoteNotFound)

	note.UserID = bob.ID
	note.Content = "stolen"
	assert.ErrorIs(t, repo.Update(ctx, note), interrors.ErrNoteNotFound)

	list, err := repo.List(ctx, bob.ID, ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestNoteRepositoryListFilters(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	alice := createUser(t, db, "alice")
	repo := NewNoteRepository(db)
	folder, err := NewFolderRepository(db).Create(ctx, alice.ID, "work")
	require.NoError(t, err)

	a := &Note{UserID: alice.ID, Content: "a", FolderID: &folder.ID}
	b := &Note{UserID: alice.ID, Content: "b", Favorite: true}
	c := &Note{UserID: alice.ID, Content: "c"}
	for _, n := range []*Note{a, b, c} {
		require.NoError(t, repo.Create(ctx, n))
	}
	c.IsDeleted = true
	require.NoError(t, repo.Update(ctx, c))

	all, err := repo.List(ctx, alice.ID, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	withDeleted, err := repo.List(ctx, alice.ID, ListOptions{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Len(t, withDeleted, 3)

	favs, err := repo.List(ctx, alice.ID, ListOptions{FavoritesOnly: true})
	require.NoError(t, err)
	require.Len(t, favs, 1)
	assert.Equal(t, b.ID, favs[0].ID)

	inFolder, err := repo.List(ctx, alice.ID, ListOptions{FolderID: &folder.ID})
	require.NoError(t, err)
	require.Len(t, inFolder, 1)
	assert.Equal(t, a.ID, inFolder[0].ID)

	limited, err := repo.List(ctx, alice.ID, ListOptions{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestNoteRepositoryStatusAndSummary(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	alice := createUser(t, db, "alice")
	repo := NewNoteRepository(db)

	n1 := &Note{UserID: alice.ID, Content: "one"}
	n2 := &Note{UserID: alice.ID, Content: "two", IndexStatus: IndexIndexed}
	require.NoError(t, repo.Create(ctx, n1))
	require.NoError(t, repo.Create(ctx, n2))

	require.NoError(t, repo.SetIndexStatus(ctx, n1.ID, IndexFailed))
	ids, err := repo.IDsByStatus(ctx, IndexFailed, IndexPending)
	require.NoError(t, err)
	assert.Equal(t, []int{n1.ID}, ids)

	require.NoError(t, repo.SetSummary(ctx, n2.ID, "short"))
	got, err := repo.GetByID(ctx, n2.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Summary)
	assert.Equal(t, "short", *got.Summary)

	// A stale copy written back keeps the stored summary.
	stale := *n2
	stale.Title = "renamed"
	require.NoError(t, repo.Update(ctx, &stale))
	got, err = repo.GetByID(ctx, n2.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)
	require.NotNil(t, got.Summary)
	assert.Equal(t, "short", *got.Summary)

	assert.ErrorIs(t, repo.SetIndexStatus(ctx, 9999, IndexFailed), interrors.ErrNoteNotFound)

	all, err := repo.AllIDs(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{n1.ID, n2.ID}, all)
}

func TestVersionRepository(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	alice := createUser(t, db, "alice")
	note := &Note{UserID: alice.ID, Content: "v0"}
	require.NoError(t, NewNoteRepository(db).Create(ctx, note))

	versions := NewVersionRepository(db)
	_, err := versions.Append(ctx, note.ID, "t1", "v1")
	require.NoError(t, err)
	_, err = versions.Append(ctx, note.ID, "t2", "v2")
	require.NoError(t, err)

	list, err := versions.ListForNote(ctx, note.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "v1", list[0].Content)
	assert.Equal(t, "v2", list[1].Content)

	count, err := versions.Count(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestFolderDeleteCascadesToNotes(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	folders := NewFolderRepository(db)
	notes := NewNoteRepository(db)

	_, err := folders.Create(ctx, alice.ID, "this folder name is too long")
	assert.ErrorIs(t, err, interrors.ErrValidation)

	f, err := folders.Create(ctx, alice.ID, "inbox")
	require.NoError(t, err)
	n := &Note{UserID: alice.ID, FolderID: &f.ID, Content: "in folder"}
	require.NoError(t, notes.Create(ctx, n))

	assert.ErrorIs(t, folders.Delete(ctx, bob.ID, f.ID), interrors.ErrFolderNotFound)
	require.NoError(t, folders.Delete(ctx, alice.ID, f.ID))

	_, err = notes.Get(ctx, alice.ID, n.ID)
	assert.ErrorIs(t, err, interrors.ErrNoteNotFound)
}

func TestTagRepository(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	tags := NewTagRepository(db)
	notes := NewNoteRepository(db)

	tag, err := tags.Create(ctx, alice.ID, "work")
	require.NoError(t, err)

	_, err = tags.Create(ctx, alice.ID, "work")
	assert.ErrorIs(t, err, interrors.ErrDuplicateTag)

	// Same name is fine for another user
	_, err = tags.Create(ctx, bob.ID, "work")
	assert.NoError(t, err)

	n := &Note{UserID: alice.ID, Content: "tagged"}
	require.NoError(t, notes.Create(ctx, n))

	_, err = tags.Assign(ctx, alice.ID, tag.ID, n.ID)
	require.NoError(t, err)
	_, err = tags.Assign(ctx, alice.ID, tag.ID, n.ID)
	assert.ErrorIs(t, err, interrors.ErrDuplicateNoteTag)

	_, err = tags.Assign(ctx, bob.ID, tag.ID, n.ID)
	assert.ErrorIs(t, err, interrors.ErrTagNotFound)

	names, err := tags.TagsForNote(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"work"}, names)

	links, err := tags.ListAssignments(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, links, 1)

	links, err = tags.ListAssignments(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestUserRepository(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	users := NewUserRepository(db)

	alice, err := users.Create(ctx, "alice")
	require.NoError(t, err)

	_, err = users.Create(ctx, "alice")
	assert.ErrorIs(t, err, interrors.ErrDuplicateUser)

	_, err = users.Create(ctx, "  ")
	assert.ErrorIs(t, err, interrors.ErrValidation)

	byName, err := users.Resolve(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, byName.ID)

	byID, err := users.Resolve(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Username)

	_, err = users.Resolve(ctx, "nobody")
	assert.ErrorIs(t, err, interrors.ErrUserNotFound)
}
