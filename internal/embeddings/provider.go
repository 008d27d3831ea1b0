// Package embeddings turns note text into vectors, compares them and keeps
// one stored vector per note.
package embeddings

import (
	"context"
	"fmt"
	"net/http"

	"github.com/streed/notesai/internal/config"
	interrors "github.com/streed/notesai/internal/errors"
	"github.com/streed/notesai/internal/httpclient"
)

// ProviderID names the backend that produced a vector. Stored alongside every
// embedding so vectors from different providers are never compared.
type ProviderID string

const (
	ProviderLocal  ProviderID = config.ProviderLocal
	ProviderGemini ProviderID = config.ProviderGemini
	ProviderOpenAI ProviderID = config.ProviderOpenAI
)

// Provider is one embedding backend.
type Provider interface {
	ID() ProviderID
	// Dimensions is the expected vector length, or 0 if the backend decides.
	Dimensions() int
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Embedder is what the rest of the application depends on. *Gateway is the
// production implementation.
type Embedder interface {
	ProviderID() ProviderID
	Embed(ctx context.Context, text string) ([]float32, error)
}

// NewProvider resolves the configured provider. Called once at startup; a
// missing credential is reported here rather than on the first note save.
func NewProvider(cfg *config.Config) (Provider, error) {
	client := httpclient.New(
		httpclient.WithTimeout(cfg.ProviderTimeout()),
		httpclient.WithMaxRetries(cfg.ProviderMaxRetries),
	)

	switch cfg.EmbeddingProvider {
	case "", config.ProviderLocal:
		return NewLocalProvider(0), nil
	case config.ProviderOpenAI:
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIEmbeddingModel,
			Client:  client,
		})
	case config.ProviderGemini:
		return NewGeminiProvider(context.Background(), GeminiConfig{
			APIKey:  cfg.GeminiAPIKey,
			BaseURL: cfg.GeminiBaseURL,
			Model:   cfg.GeminiEmbeddingModel,
			Timeout: cfg.ProviderTimeout(),
			Retry:   client,
		})
	}
	return nil, fmt.Errorf("%w: %q", interrors.ErrUnknownProvider, cfg.EmbeddingProvider)
}

// ProviderError wraps every failure coming out of a provider. It matches
// interrors.ErrProvider with errors.Is.
type ProviderError struct {
	Provider   ProviderID
	Op         string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s failed (HTTP %d %s): %v", e.Provider, e.Op, e.StatusCode, http.StatusText(e.StatusCode), e.Err)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func (e *ProviderError) Is(target error) bool {
	return target == interrors.ErrProvider
}
