package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/streed/notesai/internal/constants"
	"github.com/streed/notesai/internal/embeddings"
	interrors "github.com/streed/notesai/internal/errors"
	"github.com/streed/notesai/internal/logger"
	"github.com/streed/notesai/internal/metrics"
)

type Options struct {
	// AutoReindex re-embeds candidates from another provider instead of
	// failing the search.
	AutoReindex bool
	Metrics     *metrics.Metrics
}

type VectorSearch struct {
	embedder  embeddings.Embedder
	source    CandidateSource
	reindexer Reindexer
	opts      Options
}

func NewVectorSearch(embedder embeddings.Embedder, source CandidateSource, reindexer Reindexer, opts Options) *VectorSearch {
	return &VectorSearch{
		embedder:  embedder,
		source:    source,
		reindexer: reindexer,
		opts:      opts,
	}
}

// MismatchError reports candidates whose vectors came from a provider other
// than the configured one.
type MismatchError struct {
	Current ProviderCount
	Stale   []ProviderCount
}

type ProviderCount struct {
	Provider embeddings.ProviderID
	Count    int
}

func (e *MismatchError) Error() string {
	parts := make([]string, 0, len(e.Stale))
	total := 0
	for _, s := range e.Stale {
		parts = append(parts, fmt.Sprintf("%d from %s", s.Count, s.Provider))
		total += s.Count
	}
	return fmt.Sprintf("%d notes have embeddings from another provider (%s); configured provider is %s, run `notesai reindex`",
		total, strings.Join(parts, ", "), e.Current.Provider)
}

func (e *MismatchError) Is(target error) bool {
	return target == interrors.ErrProviderMismatch
}

type scored struct {
	c     embeddings.Candidate
	score float64
}

// Search returns up to topK of the user's notes, most similar first. topK <= 0
// means the default.
func (vs *VectorSearch) Search(ctx context.Context, userID int, query string, topK int) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, interrors.ErrEmptyQuery
	}
	if topK <= 0 {
		topK = constants.DefaultSearchLimit
	}
	start := time.Now()

	logger.Debug("Performing vector search for user %d: %q", userID, query)
	queryVec, err := vs.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	candidates, err := vs.candidates(ctx, userID)
	if err != nil {
		return nil, err
	}

	results := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		score, err := embeddings.CosineSimilarity(queryVec, c.Vector)
		if err != nil {
			var reason string
			switch {
			case errors.Is(err, interrors.ErrDimensionMismatch):
				reason = "dimension_mismatch"
			case errors.Is(err, interrors.ErrDegenerateVector):
				reason = "degenerate"
			default:
				return nil, err
			}
			logger.Warn("Skipping note %d in search: %v", c.NoteID, err)
			vs.opts.Metrics.SkippedCandidate(reason)
			continue
		}
		results = append(results, scored{c: c, score: score})
	}

	// Candidates arrive in note-id order; a stable sort keeps ties that way.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})
	if len(results) > topK {
		results = results[:topK]
	}

	out := make([]Result, len(results))
	for i, r := range results {
		out[i] = Result{ID: r.c.NoteID, Title: r.c.Title, Content: r.c.Content, Score: r.score}
	}

	vs.opts.Metrics.ObserveSearch(time.Since(start), len(candidates))
	logger.Debug("Search scanned %d candidates, returning %d in %v", len(candidates), len(out), time.Since(start))
	return out, nil
}

// candidates loads the user's candidates and deals with vectors embedded by a
// different provider: they are reindexed and reloaded when AutoReindex is on,
// otherwise the search fails with a *MismatchError.
func (vs *VectorSearch) candidates(ctx context.Context, userID int) ([]embeddings.Candidate, error) {
	candidates, err := vs.source.Candidates(ctx, userID)
	if err != nil {
		return nil, err
	}
	stale := vs.stale(candidates)
	if len(stale) == 0 {
		return candidates, nil
	}
	if !vs.opts.AutoReindex || vs.reindexer == nil {
		return nil, vs.mismatch(candidates, stale)
	}

	// Vectors must come from each note's current content, not from the
	// snapshot loaded above; Reindex re-reads it under the note's lock.
	logger.Info("Re-embedding %d notes with %s before searching", len(stale), vs.embedder.ProviderID())
	for _, i := range stale {
		if err := vs.reindexer.Reindex(ctx, candidates[i].NoteID); err != nil {
			return nil, fmt.Errorf("failed to re-embed note %d: %w", candidates[i].NoteID, err)
		}
	}
	vs.opts.Metrics.Reembedded(len(stale))

	candidates, err = vs.source.Candidates(ctx, userID)
	if err != nil {
		return nil, err
	}
	if stale := vs.stale(candidates); len(stale) > 0 {
		return nil, vs.mismatch(candidates, stale)
	}
	return candidates, nil
}

func (vs *VectorSearch) stale(candidates []embeddings.Candidate) []int {
	current := vs.embedder.ProviderID()
	var idx []int
	for i, c := range candidates {
		if c.Provider != current {
			idx = append(idx, i)
		}
	}
	return idx
}

func (vs *VectorSearch) mismatch(candidates []embeddings.Candidate, stale []int) *MismatchError {
	counts := make(map[embeddings.ProviderID]int)
	for _, i := range stale {
		counts[candidates[i].Provider]++
	}
	merr := &MismatchError{Current: ProviderCount{Provider: vs.embedder.ProviderID(), Count: len(candidates) - len(stale)}}
	for p, n := range counts {
		merr.Stale = append(merr.Stale, ProviderCount{Provider: p, Count: n})
	}
	sort.Slice(merr.Stale, func(i, j int) bool { return merr.Stale[i].Provider < merr.Stale[j].Provider })
	return merr
}
