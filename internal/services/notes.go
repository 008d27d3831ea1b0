package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/streed/notesai/internal/constants"
	"github.com/streed/notesai/internal/database"
	"github.com/streed/notesai/internal/embeddings"
	interrors "github.com/streed/notesai/internal/errors"
	"github.com/streed/notesai/internal/logger"
	"github.com/streed/notesai/internal/models"
	"github.com/streed/notesai/internal/tasks"
)

// Enqueuer hands background work to the task queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, kind tasks.Kind, userID, noteID int) (*tasks.Task, error)
}

// NoteInput is the payload for Create.
type NoteInput struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	FolderID *int   `json:"folder"`
	Favorite bool   `json:"favorite"`
}

// NoteUpdate changes only the fields that are set.
type NoteUpdate struct {
	Title       *string `json:"title"`
	Content     *string `json:"content"`
	FolderID    *int    `json:"folder"`
	ClearFolder bool    `json:"-"`
	Favorite    *bool   `json:"favorite"`
}

// NotesService owns every note mutation and keeps each note's embedding and
// version log in step with its content.
type NotesService struct {
	db       *database.DB
	notes    *models.NoteRepository
	versions *models.VersionRepository
	folders  *models.FolderRepository
	store    *embeddings.Store
	embedder embeddings.Embedder
	queue    Enqueuer
	async    bool
	summary  bool
	locks    *keyedMutex
}

type NotesOptions struct {
	Embedder embeddings.Embedder
	Queue    Enqueuer
	// AsyncIndexing defers embedding to the task queue.
	AsyncIndexing bool
	Summaries     bool
}

func NewNotesService(db *database.DB, opts NotesOptions) *NotesService {
	conn := db.Conn()
	return &NotesService{
		db:       db,
		notes:    models.NewNoteRepository(conn),
		versions: models.NewVersionRepository(conn),
		folders:  models.NewFolderRepository(conn),
		store:    embeddings.NewStore(conn),
		embedder: opts.Embedder,
		queue:    opts.Queue,
		async:    opts.AsyncIndexing && opts.Queue != nil,
		summary:  opts.Summaries,
		locks:    newKeyedMutex(),
	}
}

func (s *NotesService) Get(ctx context.Context, userID, id int) (*models.Note, error) {
	return s.notes.Get(ctx, userID, id)
}

func (s *NotesService) List(ctx context.Context, userID int, opts models.ListOptions) ([]*models.Note, error) {
	return s.notes.List(ctx, userID, opts)
}

// Versions returns the note's history, oldest first.
func (s *NotesService) Versions(ctx context.Context, userID, id int) ([]*models.NoteVersion, error) {
	if _, err := s.notes.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	return s.versions.ListForNote(ctx, id)
}

func (s *NotesService) checkFolder(ctx context.Context, userID int, folderID *int) error {
	if folderID == nil {
		return nil
	}
	_, err := s.folders.Get(ctx, userID, *folderID)
	return err
}

// embed computes the vector for content unless indexing is deferred to the
// task queue. A nil vector with a nil error means deferred.
func (s *NotesService) embed(ctx context.Context, content string) ([]float32, error) {
	if s.async {
		return nil, nil
	}
	return s.embedder.Embed(ctx, content)
}

func statusFor(vec []float32, embedErr error) models.IndexStatus {
	switch {
	case embedErr != nil:
		return models.IndexFailed
	case vec == nil:
		return models.IndexPending
	}
	return models.IndexIndexed
}

// writeEmbedding stores vec, or drops the stale vector when there is none.
func (s *NotesService) writeEmbedding(ctx context.Context, tx *sql.Tx, noteID int, vec []float32) error {
	store := s.store.WithTx(tx)
	if vec == nil {
		return store.Delete(ctx, noteID)
	}
	return store.Put(ctx, noteID, vec, s.embedder.ProviderID())
}

// afterWrite queues indexing for notes saved without a vector and builds the
// error the caller sees for a failed embed.
func (s *NotesService) afterWrite(ctx context.Context, note *models.Note, embedErr error) error {
	if note.IndexStatus == models.IndexIndexed {
		return nil
	}
	var taskID string
	if s.queue != nil {
		t, err := s.queue.Enqueue(ctx, tasks.KindIndex, note.UserID, note.ID)
		if err != nil {
			logger.Error("Failed to queue indexing for note %d: %v", note.ID, err)
		} else {
			taskID = t.ID
		}
	}
	if embedErr == nil {
		logger.Debug("Note %d queued for indexing (task %s)", note.ID, taskID)
		return nil
	}
	logger.Warn("Note %d saved without an embedding: %v", note.ID, embedErr)
	return &IndexError{NoteID: note.ID, TaskID: taskID, Err: embedErr}
}

// Create saves a new note together with its embedding. If the embedding
// cannot be computed the note is still saved, marked failed, and returned
// alongside an *IndexError.
func (s *NotesService) Create(ctx context.Context, userID int, in NoteInput) (*models.Note, error) {
	note := &models.Note{
		UserID:   userID,
		FolderID: in.FolderID,
		Title:    in.Title,
		Content:  in.Content,
		Favorite: in.Favorite,
	}
	if err := note.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkFolder(ctx, userID, in.FolderID); err != nil {
		return nil, err
	}

	vec, embedErr := s.embed(ctx, note.Content)
	note.IndexStatus = statusFor(vec, embedErr)

	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		if err := s.notes.WithTx(tx).Create(ctx, note); err != nil {
			return err
		}
		if vec != nil {
			return s.writeEmbedding(ctx, tx, note.ID, vec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("Created note %d for user %d (%s)", note.ID, userID, note.IndexStatus)
	return note, s.afterWrite(ctx, note, embedErr)
}

// Update applies changes to the user's note. A content change appends a
// version with the new title and content and re-embeds in the same
// transaction; an unchanged content leaves versions and the embedding alone.
func (s *NotesService) Update(ctx context.Context, userID, id int, upd NoteUpdate) (*models.Note, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	note, err := s.notes.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	oldContent := note.Content

	if upd.Title != nil {
		note.Title = *upd.Title
	}
	if upd.Content != nil {
		note.Content = *upd.Content
	}
	if upd.Favorite != nil {
		note.Favorite = *upd.Favorite
	}
	if upd.ClearFolder {
		note.FolderID = nil
	} else if upd.FolderID != nil {
		if err := s.checkFolder(ctx, userID, upd.FolderID); err != nil {
			return nil, err
		}
		note.FolderID = upd.FolderID
	}
	if err := note.Validate(); err != nil {
		return nil, err
	}

	if note.Content == oldContent {
		if err := s.notes.Update(ctx, note); err != nil {
			return nil, err
		}
		return note, nil
	}

	vec, embedErr := s.embed(ctx, note.Content)
	note.IndexStatus = statusFor(vec, embedErr)

	err = s.db.InTx(ctx, func(tx *sql.Tx) error {
		if err := s.notes.WithTx(tx).Update(ctx, note); err != nil {
			return err
		}
		if _, err := s.versions.WithTx(tx).Append(ctx, note.ID, note.Title, note.Content); err != nil {
			return err
		}
		return s.writeEmbedding(ctx, tx, note.ID, vec)
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("Updated note %d content (%s)", note.ID, note.IndexStatus)
	return note, s.afterWrite(ctx, note, embedErr)
}

func (s *NotesService) setDeleted(ctx context.Context, userID, id int, deleted bool) (*models.Note, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	note, err := s.notes.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	note.IsDeleted = deleted
	if err := s.notes.Update(ctx, note); err != nil {
		return nil, err
	}
	return note, nil
}

// Delete soft-deletes the note. Its embedding is kept for a later restore.
func (s *NotesService) Delete(ctx context.Context, userID, id int) error {
	_, err := s.setDeleted(ctx, userID, id, true)
	return err
}

func (s *NotesService) Restore(ctx context.Context, userID, id int) (*models.Note, error) {
	return s.setDeleted(ctx, userID, id, false)
}

// ToggleFavorite flips the favorite flag and returns the new value.
func (s *NotesService) ToggleFavorite(ctx context.Context, userID, id int) (bool, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	note, err := s.notes.Get(ctx, userID, id)
	if err != nil {
		return false, err
	}
	note.Favorite = !note.Favorite
	if err := s.notes.Update(ctx, note); err != nil {
		return false, err
	}
	return note.Favorite, nil
}

// Reindex recomputes one note's embedding with the configured provider and
// marks it indexed. On failure the note is marked failed and the error is
// returned so the caller can retry.
func (s *NotesService) Reindex(ctx context.Context, id int) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	note, err := s.notes.GetByID(ctx, id)
	if err != nil {
		return err
	}

	vec, err := s.embedder.Embed(ctx, note.Content)
	if err != nil {
		if serr := s.notes.SetIndexStatus(ctx, id, models.IndexFailed); serr != nil {
			logger.Error("Failed to mark note %d failed: %v", id, serr)
		}
		return err
	}

	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		if err := s.writeEmbedding(ctx, tx, id, vec); err != nil {
			return err
		}
		return s.notes.WithTx(tx).SetIndexStatus(ctx, id, models.IndexIndexed)
	})
}

// ReindexResult summarises a bulk reindex.
type ReindexResult struct {
	Total     int
	Succeeded int
	Failed    int
}

// ReindexScope picks which notes ReindexMany touches.
type ReindexScope struct {
	UserID int // 0 for every user
	// OnlyStale limits the run to notes that are unindexed or embedded by
	// another provider.
	OnlyStale bool
}

// ReindexMany re-embeds notes with bounded parallelism. Individual failures
// are counted, logged and left marked failed.
func (s *NotesService) ReindexMany(ctx context.Context, scope ReindexScope, concurrency int, progress func(done, total int)) (*ReindexResult, error) {
	ids, err := s.reindexTargets(ctx, scope)
	if err != nil {
		return nil, err
	}
	if concurrency <= 0 {
		concurrency = constants.ReindexConcurrency
	}

	res := &ReindexResult{Total: len(ids)}
	var succeeded, failed, done int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, id := range ids {
		g.Go(func() error {
			err := s.Reindex(gctx, id)
			switch {
			case err == nil:
				atomic.AddInt64(&succeeded, 1)
			case gctx.Err() != nil:
				return gctx.Err()
			default:
				logger.Warn("Failed to reindex note %d: %v", id, err)
				atomic.AddInt64(&failed, 1)
			}
			if progress != nil {
				progress(int(atomic.AddInt64(&done, 1)), len(ids))
			}
			return nil
		})
	}
	err = g.Wait()

	res.Succeeded = int(succeeded)
	res.Failed = int(failed)
	return res, err
}

func (s *NotesService) reindexTargets(ctx context.Context, scope ReindexScope) ([]int, error) {
	all, err := s.notes.AllIDs(ctx, scope.UserID)
	if err != nil {
		return nil, err
	}
	if !scope.OnlyStale {
		return all, nil
	}

	inScope := make(map[int]bool, len(all))
	for _, id := range all {
		inScope[id] = true
	}

	unindexed, err := s.notes.IDsByStatus(ctx, models.IndexPending, models.IndexFailed)
	if err != nil {
		return nil, err
	}
	stale, err := s.store.StaleNoteIDs(ctx, s.embedder.ProviderID())
	if err != nil {
		return nil, err
	}

	seen := make(map[int]bool)
	var ids []int
	for _, id := range append(unindexed, stale...) {
		if inScope[id] && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Summarize queues an LLM summary for the note and returns the task handle.
func (s *NotesService) Summarize(ctx context.Context, userID, id int) (*tasks.Task, error) {
	if !s.summary {
		return nil, interrors.ErrSummarizationDisabled
	}
	note, err := s.notes.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if s.queue == nil {
		return nil, errors.New("task queue is not running")
	}
	return s.queue.Enqueue(ctx, tasks.KindSummarize, userID, note.ID)
}

// SetSummary stores a finished summary.
func (s *NotesService) SetSummary(ctx context.Context, id int, summary string) error {
	if err := s.notes.SetSummary(ctx, id, summary); err != nil {
		return fmt.Errorf("failed to store summary for note %d: %w", id, err)
	}
	return nil
}
