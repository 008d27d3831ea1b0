package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/streed/notesai/internal/config"
	"github.com/streed/notesai/internal/constants"
	"github.com/streed/notesai/internal/database"
	"github.com/streed/notesai/internal/embeddings"
	"github.com/streed/notesai/internal/logger"
	"github.com/streed/notesai/internal/metrics"
	"github.com/streed/notesai/internal/models"
	"github.com/streed/notesai/internal/search"
	"github.com/streed/notesai/internal/summarize"
	"github.com/streed/notesai/internal/tasks"
)

// Services contains all the service dependencies
type Services struct {
	Config   *config.Config
	DB       *database.DB
	Metrics  *metrics.Metrics
	Embedder *embeddings.Gateway
	Store    *embeddings.Store
	Notes    *NotesService
	Search   *search.VectorSearch
	Tasks    *tasks.Queue
	Folders  *models.FolderRepository
	Tags     *models.TagRepository
	Users    *models.UserRepository

	summarizer summarize.Summarizer
}

type Option func(*options)

type options struct {
	provider   embeddings.Provider
	summarizer summarize.Summarizer
	metrics    *metrics.Metrics
}

// WithProvider replaces the configured embedding provider.
func WithProvider(p embeddings.Provider) Option {
	return func(o *options) { o.provider = p }
}

func WithSummarizer(s summarize.Summarizer) Option {
	return func(o *options) { o.summarizer = s }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// New wires the application. The embedding provider is resolved here, once,
// so a bad provider configuration fails at startup.
func New(cfg *config.Config, db *database.DB, opts ...Option) (*Services, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = metrics.New()
	}
	if o.provider == nil {
		p, err := embeddings.NewProvider(cfg)
		if err != nil {
			return nil, err
		}
		o.provider = p
	}
	if o.summarizer == nil && cfg.EnableSummarization {
		s, err := summarize.New(cfg)
		if err != nil {
			// Notes and search work without a summarizer.
			logger.Warn("Summarization unavailable: %v", err)
		} else {
			o.summarizer = s
		}
	}

	conn := db.Conn()
	gateway := embeddings.NewGateway(o.provider, o.metrics)
	store := embeddings.NewStore(conn)

	queue := tasks.NewQueue(tasks.NewRepository(conn), tasks.Options{
		Workers:     cfg.TaskWorkers,
		Depth:       constants.DefaultTaskQueueDepth,
		MaxAttempts: constants.MaxIndexAttempts,
		Metrics:     o.metrics,
	})

	svc := &Services{
		Config:   cfg,
		DB:       db,
		Metrics:  o.metrics,
		Embedder: gateway,
		Store:    store,
		Tasks:    queue,
		Folders:  models.NewFolderRepository(conn),
		Tags:     models.NewTagRepository(conn),
		Users:    models.NewUserRepository(conn),

		summarizer: o.summarizer,
	}

	// Hosted providers are slow enough to be worth deferring; the local
	// model always embeds inline.
	async := cfg.AsyncIndexing && gateway.ProviderID() != embeddings.ProviderLocal
	svc.Notes = NewNotesService(db, NotesOptions{
		Embedder:      gateway,
		Queue:         queue,
		AsyncIndexing: async,
		Summaries:     o.summarizer != nil,
	})
	svc.Search = search.NewVectorSearch(gateway, store, svc.Notes, search.Options{
		AutoReindex: cfg.AutoReindexOnSearch,
		Metrics:     o.metrics,
	})

	queue.Handle(tasks.KindIndex, svc.runIndex, true)
	if o.summarizer != nil {
		queue.Handle(tasks.KindSummarize, svc.runSummarize, false)
	}

	logger.Debug("Services ready (embedding provider %s, async indexing %v)", gateway.ProviderID(), async)
	return svc, nil
}

// Start launches background workers.
func (s *Services) Start(ctx context.Context) error {
	return s.Tasks.Start(ctx)
}

// Close waits for queued work to finish.
func (s *Services) Close() error {
	if err := s.Tasks.Close(); err != nil && !errors.Is(err, tasks.ErrQueueClosed) {
		return err
	}
	return nil
}

func (s *Services) runIndex(ctx context.Context, t *tasks.Task) (string, error) {
	if err := s.Notes.Reindex(ctx, t.NoteID); err != nil {
		return "", err
	}
	return fmt.Sprintf("note %d indexed with %s", t.NoteID, s.Embedder.ProviderID()), nil
}

func (s *Services) runSummarize(ctx context.Context, t *tasks.Task) (string, error) {
	note, err := s.Notes.Get(ctx, t.UserID, t.NoteID)
	if err != nil {
		return "", err
	}
	res, err := s.summarizer.Summarize(ctx, note.Content)
	if err != nil {
		return "", err
	}
	if err := s.Notes.SetSummary(ctx, note.ID, res.Summary); err != nil {
		return "", err
	}
	logger.Debug("Summarized note %d with %s (%d -> %d chars)", note.ID, res.Model, res.OriginalLength, res.SummaryLength)
	return res.Summary, nil
}
