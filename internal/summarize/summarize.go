// Package summarize produces short LLM summaries of notes.
package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/streed/notesai/internal/config"
	interrors "github.com/streed/notesai/internal/errors"
	"github.com/streed/notesai/internal/httpclient"
	"github.com/streed/notesai/internal/logger"
)

// Summarizer turns note content into a few sentences.
type Summarizer interface {
	Summarize(ctx context.Context, content string) (*SummaryResult, error)
	Model() string
}

// SummaryResult contains the summarized content
type SummaryResult struct {
	Summary        string
	OriginalLength int
	SummaryLength  int
	Model          string
}

func Prompt(content string) string {
	return "Summarize the following note in 3–5 sentences:\n\n" + content
}

// New returns the configured summarizer.
func New(cfg *config.Config) (Summarizer, error) {
	client := httpclient.New(
		httpclient.WithTimeout(2*cfg.ProviderTimeout()),
		httpclient.WithMaxRetries(cfg.ProviderMaxRetries),
	)
	switch cfg.SummarizationProvider {
	case "", config.SummarizerOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("%w: openai_api_key (or OPENAI_API_KEY) is required for summarization", interrors.ErrMissingCredential)
		}
		return &OpenAISummarizer{
			apiKey:  cfg.OpenAIAPIKey,
			baseURL: strings.TrimRight(orDefault(cfg.OpenAIBaseURL, "https://api.openai.com/v1"), "/"),
			model:   orDefault(cfg.SummarizationModel, "gpt-4.1-mini"),
			client:  client,
		}, nil
	case config.SummarizerOllama:
		return &OllamaSummarizer{
			endpoint:    strings.TrimRight(cfg.OllamaEndpoint, "/"),
			model:       orDefault(cfg.SummarizationModel, "llama3.2:latest"),
			maxTokens:   500,
			temperature: 0.3,
			client:      client,
		}, nil
	}
	return nil, fmt.Errorf("%w: unknown summarization provider %q", interrors.ErrValidation, cfg.SummarizationProvider)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func result(content, summary, model string) *SummaryResult {
	return &SummaryResult{
		Summary:        summary,
		OriginalLength: len(content),
		SummaryLength:  len(summary),
		Model:          model,
	}
}

// OpenAISummarizer uses the chat completions endpoint.
type OpenAISummarizer struct {
	apiKey  string
	baseURL string
	model   string
	client  *httpclient.Client
}

func (s *OpenAISummarizer) Model() string { return s.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (s *OpenAISummarizer) Summarize(ctx context.Context, content string) (*SummaryResult, error) {
	body, err := json.Marshal(chatRequest{
		Model:    s.model,
		Messages: []chatMessage{{Role: "user", Content: Prompt(content)}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	respBody, status, err := send(s.client, req)
	if err != nil {
		return nil, err
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil && status == http.StatusOK {
		return nil, fmt.Errorf("%w: failed to parse response: %v", interrors.ErrSummarizer, err)
	}
	if status != http.StatusOK {
		msg := strings.TrimSpace(string(respBody))
		if parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		return nil, fmt.Errorf("%w: OpenAI returned %d: %s", interrors.ErrSummarizer, status, msg)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("%w: response contained no choices", interrors.ErrSummarizer)
	}

	summary := strings.TrimSpace(parsed.Choices[0].Message.Content)
	return result(content, summary, s.model), nil
}

// OllamaSummarizer calls a local Ollama server.
type OllamaSummarizer struct {
	endpoint    string
	model       string
	maxTokens   int
	temperature float32
	client      *httpclient.Client
}

func (s *OllamaSummarizer) Model() string { return s.model }

func (s *OllamaSummarizer) Summarize(ctx context.Context, content string) (*SummaryResult, error) {
	if s.endpoint == "" {
		return nil, fmt.Errorf("%w: Ollama endpoint not configured", interrors.ErrSummarizer)
	}

	payload := map[string]interface{}{
		"model":       s.model,
		"prompt":      Prompt(content),
		"temperature": s.temperature,
		"stream":      false,
		"options": map[string]interface{}{
			"num_predict": s.maxTokens,
		},
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"/api/generate", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, status, err := send(s.client, req)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: Ollama API returned %d: %s", interrors.ErrSummarizer, status, strings.TrimSpace(string(body)))
	}

	var parsed struct {
		Response string `json:"response"`
		Done     bool   `json:"done"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: failed to parse response: %v", interrors.ErrSummarizer, err)
	}

	summary := strings.TrimSpace(parsed.Response)
	return result(content, summary, s.model), nil
}

func send(client *httpclient.Client, req *http.Request) ([]byte, int, error) {
	logger.Debug("Requesting summary from %s", req.URL)
	start := time.Now()

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", interrors.ErrSummarizer, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response: %w", err)
	}
	logger.Debug("Summary response status: %d, time: %v", resp.StatusCode, time.Since(start))
	return body, resp.StatusCode, nil
}
