package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/streed/notesai/internal/constants"
	"github.com/streed/notesai/internal/logger"
	"github.com/streed/notesai/internal/metrics"
)

// Handler performs one task and returns its result text.
type Handler func(ctx context.Context, t *Task) (string, error)

type Options struct {
	Workers int
	Depth   int
	// MaxAttempts bounds retries for kinds registered as retryable.
	MaxAttempts int
	BaseDelay   time.Duration
	Metrics     *metrics.Metrics
}

type registration struct {
	handler   Handler
	retryable bool
}

// Queue is a bounded pool of workers fed from a buffered channel. Task state
// lives in the database, so a task that does not fit in the buffer stays
// pending and is picked up by the next Start.
type Queue struct {
	repo     *Repository
	opts     Options
	handlers map[Kind]registration

	mu     sync.Mutex
	jobs   chan *Task
	queued map[string]struct{}
	closed bool
	group  *errgroup.Group
}

var ErrQueueClosed = errors.New("task queue is closed")

func NewQueue(repo *Repository, opts Options) *Queue {
	if opts.Workers <= 0 {
		opts.Workers = constants.DefaultTaskWorkers
	}
	if opts.Depth <= 0 {
		opts.Depth = constants.DefaultTaskQueueDepth
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = constants.MaxIndexAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	return &Queue{
		repo:     repo,
		opts:     opts,
		handlers: make(map[Kind]registration),
		jobs:     make(chan *Task, opts.Depth),
		queued:   make(map[string]struct{}),
	}
}

// Handle registers the handler for kind. Must be called before Start.
func (q *Queue) Handle(kind Kind, h Handler, retryable bool) {
	q.handlers[kind] = registration{handler: h, retryable: retryable}
}

// Start launches the workers and requeues tasks a previous process left
// unfinished. Workers stop when ctx is cancelled or after Close.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.group != nil {
		q.mu.Unlock()
		return errors.New("task queue already started")
	}
	g, gctx := errgroup.WithContext(ctx)
	q.group = g
	q.mu.Unlock()

	// Load leftovers before any worker can change their status.
	pending, err := q.repo.Unfinished(ctx)
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		logger.Info("Resuming %d unfinished tasks", len(pending))
	}
	for _, t := range pending {
		q.submit(t)
	}

	for i := 0; i < q.opts.Workers; i++ {
		g.Go(func() error {
			q.work(gctx)
			return nil
		})
	}
	logger.Debug("Task queue started with %d workers", q.opts.Workers)
	return nil
}

// Enqueue records a new task and hands it to the workers.
func (q *Queue) Enqueue(ctx context.Context, kind Kind, userID, noteID int) (*Task, error) {
	if _, ok := q.handlers[kind]; !ok {
		return nil, fmt.Errorf("no handler registered for task kind %q", kind)
	}
	t, err := q.repo.Create(ctx, kind, userID, noteID)
	if err != nil {
		return nil, err
	}
	if !q.submit(t) {
		logger.Warn("Task %s (%s) left pending: queue full or closed", t.ID, kind)
	}
	return t, nil
}

func (q *Queue) Get(ctx context.Context, userID int, id string) (*Task, error) {
	return q.repo.Get(ctx, userID, id)
}

func (q *Queue) submit(t *Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	if _, dup := q.queued[t.ID]; dup {
		return true
	}
	select {
	case q.jobs <- t:
		q.queued[t.ID] = struct{}{}
		return true
	default:
		return false
	}
}

func (q *Queue) release(id string) {
	q.mu.Lock()
	delete(q.queued, id)
	q.mu.Unlock()
}

// Close stops accepting tasks, lets the workers finish what is buffered and
// waits for them.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.closed = true
	close(q.jobs)
	g := q.group
	q.mu.Unlock()

	if g == nil {
		return nil
	}
	return g.Wait()
}

func (q *Queue) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-q.jobs:
			if !ok {
				return
			}
			q.run(ctx, t)
		}
	}
}

func (q *Queue) run(ctx context.Context, t *Task) {
	defer q.release(t.ID)

	reg, ok := q.handlers[t.Kind]
	if !ok {
		q.finish(ctx, t, "", fmt.Errorf("no handler registered for task kind %q", t.Kind))
		return
	}

	for {
		t.Status = StatusRunning
		t.Attempts++
		if err := q.repo.Save(ctx, t); err != nil {
			logger.Error("Failed to mark task %s running: %v", t.ID, err)
		}

		result, err := reg.handler(ctx, t)
		if err == nil {
			q.finish(ctx, t, result, nil)
			return
		}
		if !reg.retryable || t.Attempts >= q.opts.MaxAttempts || ctx.Err() != nil {
			q.finish(ctx, t, "", err)
			return
		}

		delay := q.opts.BaseDelay << (t.Attempts - 1)
		logger.Warn("Task %s (%s, note %d) attempt %d failed: %v; retrying in %v",
			t.ID, t.Kind, t.NoteID, t.Attempts, err, delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			// Leave it running; the next Start resumes it.
			return
		case <-timer.C:
		}
	}
}

func (q *Queue) finish(ctx context.Context, t *Task, result string, err error) {
	if err != nil {
		msg := err.Error()
		t.Status = StatusFailed
		t.Error = &msg
		logger.Error("Task %s (%s, note %d) failed after %d attempts: %v", t.ID, t.Kind, t.NoteID, t.Attempts, err)
	} else {
		t.Status = StatusSucceeded
		t.Result = &result
		t.Error = nil
		logger.Debug("Task %s (%s, note %d) succeeded", t.ID, t.Kind, t.NoteID)
	}
	// Record the outcome even if the queue is shutting down.
	if serr := q.repo.Save(context.WithoutCancel(ctx), t); serr != nil {
		logger.Error("Failed to save task %s: %v", t.ID, serr)
	}
	q.opts.Metrics.TaskFinished(string(t.Kind), string(t.Status))
}
