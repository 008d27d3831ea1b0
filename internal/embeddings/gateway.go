package embeddings

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	interrors "github.com/streed/notesai/internal/errors"
	"github.com/streed/notesai/internal/logger"
	"github.com/streed/notesai/internal/metrics"
)

// Gateway is the single entry point for producing embeddings. It validates
// what the provider returns and normalises every failure into *ProviderError.
type Gateway struct {
	provider Provider
	metrics  *metrics.Metrics
}

func NewGateway(p Provider, m *metrics.Metrics) *Gateway {
	return &Gateway{provider: p, metrics: m}
}

func (g *Gateway) ProviderID() ProviderID {
	return g.provider.ID()
}

func (g *Gateway) Dimensions() int {
	return g.provider.Dimensions()
}

func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	id := g.provider.ID()
	start := time.Now()

	vec, err := g.provider.Embed(ctx, text)
	if err == nil {
		err = validateVector(vec)
	}
	g.metrics.ObserveEmbed(string(id), time.Since(start), err)

	if err != nil {
		var pe *ProviderError
		if !errors.As(err, &pe) {
			pe = &ProviderError{Provider: id, Op: "embed", Err: err}
		}
		logger.Warn("Embedding via %s failed after %v: %v", id, time.Since(start), pe)
		return nil, pe
	}

	logger.Debug("Embedded %d chars via %s (%d dims) in %v", len(text), id, len(vec), time.Since(start))
	return vec, nil
}

func validateVector(vec []float32) error {
	if len(vec) == 0 {
		return errors.New("provider returned an empty vector")
	}
	var norm float64
	for i, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("provider returned a non-finite value at index %d", i)
		}
		norm += f * f
	}
	if norm == 0 {
		return interrors.ErrDegenerateVector
	}
	return nil
}
