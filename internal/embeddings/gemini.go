package embeddings

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/genai"

	"github.com/streed/notesai/internal/constants"
	interrors "github.com/streed/notesai/internal/errors"
	"github.com/streed/notesai/internal/httpclient"
)

type GeminiConfig struct {
	APIKey  string
	Model   string // default text-embedding-004
	BaseURL string // empty means the SDK default endpoint
	Timeout time.Duration
	// Retry supplies the backoff policy; the SDK owns the transport.
	Retry *httpclient.Client
}

// GeminiProvider embeds through the Gemini API using the genai SDK.
type GeminiProvider struct {
	client *genai.Client
	model  string
	retry  *httpclient.Client
}

func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: gemini_api_key (or GEMINI_API_KEY) is required for the gemini provider", interrors.ErrMissingCredential)
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-004"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry == nil {
		cfg.Retry = httpclient.New()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  &http.Client{Timeout: cfg.Timeout},
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiProvider{client: client, model: cfg.Model, retry: cfg.Retry}, nil
}

func (p *GeminiProvider) ID() ProviderID  { return ProviderGemini }
func (p *GeminiProvider) Dimensions() int { return constants.GeminiEmbeddingDims }

func (p *GeminiProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	var values []float32
	err := p.retry.Retry(ctx, func(ctx context.Context) (int, error) {
		resp, err := p.client.Models.EmbedContent(ctx, p.model, genai.Text(text), nil)
		if err != nil {
			var apiErr genai.APIError
			if errors.As(err, &apiErr) {
				return apiErr.Code, &ProviderError{Provider: ProviderGemini, Op: "embed", StatusCode: apiErr.Code, Err: errors.New(apiErr.Message)}
			}
			return 0, err
		}
		if len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
			return http.StatusOK, &ProviderError{Provider: ProviderGemini, Op: "embed", Err: errors.New("response contained no embeddings")}
		}
		values = resp.Embeddings[0].Values
		return http.StatusOK, nil
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}
