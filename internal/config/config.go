package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/streed/notesai/internal/constants"
	interrors "github.com/streed/notesai/internal/errors"
)

// Embedding provider identifiers accepted by EmbeddingProvider.
const (
	ProviderLocal  = "local"
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Summarization backends.
const (
	SummarizerOpenAI = "openai"
	SummarizerOllama = "ollama"
)

type Config struct {
	DatabasePath  string `json:"database_path,omitempty"`
	DataDirectory string `json:"data_directory,omitempty"`

	// Embedding provider gateway
	EmbeddingProvider      string `json:"embedding_provider"`
	OpenAIAPIKey           string `json:"openai_api_key,omitempty"`
	OpenAIBaseURL          string `json:"openai_base_url,omitempty"`
	OpenAIEmbeddingModel   string `json:"openai_embedding_model,omitempty"`
	GeminiAPIKey           string `json:"gemini_api_key,omitempty"`
	GeminiBaseURL          string `json:"gemini_base_url,omitempty"`
	GeminiEmbeddingModel   string `json:"gemini_embedding_model,omitempty"`
	ProviderTimeoutSeconds int    `json:"provider_timeout_seconds"`
	ProviderMaxRetries     int    `json:"provider_max_retries"`

	// Indexing behaviour
	AsyncIndexing       bool `json:"async_indexing"`
	AutoReindexOnSearch bool `json:"auto_reindex_on_search"`
	TaskWorkers         int  `json:"task_workers"`

	// Summarization
	EnableSummarization   bool   `json:"enable_summarization"`
	SummarizationProvider string `json:"summarization_provider,omitempty"`
	SummarizationModel    string `json:"summarization_model,omitempty"`
	OllamaEndpoint        string `json:"ollama_endpoint,omitempty"`

	// Auth
	JWTSecret     string `json:"jwt_secret,omitempty"`
	TokenTTLHours int    `json:"token_ttl_hours"`

	Debug  bool   `json:"debug"`
	Editor string `json:"editor,omitempty"`
}

// getDefaultConfig returns a fresh copy of the default configuration
func getDefaultConfig() Config {
	return Config{
		DatabasePath:  "", // Will be set to DataDirectory/notes.db
		DataDirectory: "", // Will be set to ~/.local/share/notesai

		EmbeddingProvider:      ProviderLocal,
		OpenAIBaseURL:          "https://api.openai.com/v1",
		OpenAIEmbeddingModel:   "text-embedding-3-small",
		GeminiEmbeddingModel:   "text-embedding-004",
		ProviderTimeoutSeconds: 30,
		ProviderMaxRetries:     3,

		AsyncIndexing:       false,
		AutoReindexOnSearch: false,
		TaskWorkers:         constants.DefaultTaskWorkers,

		EnableSummarization:   true,
		SummarizationProvider: SummarizerOpenAI,
		SummarizationModel:    "gpt-4.1-mini",
		OllamaEndpoint:        "http://localhost:11434",

		TokenTTLHours: 24,
		Debug:         false,
	}
}

func GetConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get config directory: %w", err)
	}
	return filepath.Join(configDir, "notesai", "config.json"), nil
}

func GetDefaultDataDirectory() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".", ".notesai")
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "notesai")
}

func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	// .env files next to the config and in the working directory
	if err := LoadDotEnv(filepath.Join(filepath.Dir(configPath), ".env"), ".env"); err != nil {
		return nil, err
	}

	cfg := getDefaultConfig()
	data, err := os.ReadFile(configPath)
	switch {
	case os.IsNotExist(err):
		// defaults only
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		cfg = Config{}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		cfg.applyDefaults()
	}

	if cfg.DataDirectory == "" {
		cfg.DataDirectory = GetDefaultDataDirectory()
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = filepath.Join(cfg.DataDirectory, "notes.db")
	}
	cfg.applyEnv()

	return &cfg, nil
}

// applyDefaults fills zero values left by an older or partial config file.
func (c *Config) applyDefaults() {
	defaults := getDefaultConfig()
	if c.EmbeddingProvider == "" {
		c.EmbeddingProvider = defaults.EmbeddingProvider
	}
	if c.OpenAIBaseURL == "" {
		c.OpenAIBaseURL = defaults.OpenAIBaseURL
	}
	if c.OpenAIEmbeddingModel == "" {
		c.OpenAIEmbeddingModel = defaults.OpenAIEmbeddingModel
	}
	if c.GeminiEmbeddingModel == "" {
		c.GeminiEmbeddingModel = defaults.GeminiEmbeddingModel
	}
	if c.ProviderTimeoutSeconds <= 0 {
		c.ProviderTimeoutSeconds = defaults.ProviderTimeoutSeconds
	}
	if c.ProviderMaxRetries < 0 {
		c.ProviderMaxRetries = defaults.ProviderMaxRetries
	}
	if c.TaskWorkers <= 0 {
		c.TaskWorkers = defaults.TaskWorkers
	}
	if c.SummarizationProvider == "" {
		c.SummarizationProvider = defaults.SummarizationProvider
	}
	if c.SummarizationModel == "" {
		c.SummarizationModel = defaults.SummarizationModel
	}
	if c.OllamaEndpoint == "" {
		c.OllamaEndpoint = defaults.OllamaEndpoint
	}
	if c.TokenTTLHours <= 0 {
		c.TokenTTLHours = defaults.TokenTTLHours
	}
}

// applyEnv lets secrets come from the environment instead of the config file.
// Values already in the file win.
func (c *Config) applyEnv() {
	if c.OpenAIAPIKey == "" {
		c.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.GeminiAPIKey == "" {
		c.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	}
	if c.JWTSecret == "" {
		c.JWTSecret = os.Getenv("NOTESAI_JWT_SECRET")
	}
	if p := os.Getenv("NOTESAI_EMBEDDING_PROVIDER"); p != "" {
		c.EmbeddingProvider = p
	}
}

// LoadDotEnv loads the first existing files among paths. Variables already in
// the environment are not overwritten.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

func Save(cfg *Config) error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	// Create config directory if it doesn't exist
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if cfg.DataDirectory != "" {
		if err := os.MkdirAll(cfg.DataDirectory, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write config file with secure permissions
	if err := os.WriteFile(configPath, data, constants.ConfigFileMode); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// InitializeConfig writes a fresh config file. Empty arguments keep defaults.
func InitializeConfig(dataDir, provider, jwtSecret string) (*Config, error) {
	cfg := getDefaultConfig()

	if dataDir != "" {
		cfg.DataDirectory = dataDir
	} else {
		cfg.DataDirectory = GetDefaultDataDirectory()
	}
	cfg.DatabasePath = filepath.Join(cfg.DataDirectory, "notes.db")

	if provider != "" {
		if err := ValidateProvider(provider); err != nil {
			return nil, err
		}
		cfg.EmbeddingProvider = provider
	}
	cfg.JWTSecret = jwtSecret

	if err := Save(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func ValidateProvider(p string) error {
	switch p {
	case ProviderLocal, ProviderGemini, ProviderOpenAI:
		return nil
	}
	return fmt.Errorf("%w: %q (use local, gemini or openai)", interrors.ErrUnknownProvider, p)
}

func (c *Config) GetDatabasePath() string {
	if c.DatabasePath != "" {
		return c.DatabasePath
	}
	return filepath.Join(c.DataDirectory, "notes.db")
}

func (c *Config) GetOllamaAPIURL(endpoint string) string {
	return fmt.Sprintf("%s/api/%s", strings.TrimRight(c.OllamaEndpoint, "/"), endpoint)
}

func (c *Config) ProviderTimeout() time.Duration {
	if c.ProviderTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.ProviderTimeoutSeconds) * time.Second
}

func (c *Config) TokenTTL() time.Duration {
	if c.TokenTTLHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.TokenTTLHours) * time.Hour
}

// Set assigns a value by its CLI key name. It reports whether the change
// invalidates stored embeddings.
func (c *Config) Set(key, value string) (needsReindex bool, err error) {
	switch key {
	case "data-dir":
		c.DataDirectory = value
		c.DatabasePath = "" // Will be regenerated
	case "embedding-provider":
		if err := ValidateProvider(value); err != nil {
			return false, err
		}
		needsReindex = c.EmbeddingProvider != value
		c.EmbeddingProvider = value
	case "openai-api-key":
		c.OpenAIAPIKey = value
	case "openai-base-url":
		c.OpenAIBaseURL = value
	case "openai-embedding-model":
		needsReindex = c.EmbeddingProvider == ProviderOpenAI && c.OpenAIEmbeddingModel != value
		c.OpenAIEmbeddingModel = value
	case "gemini-api-key":
		c.GeminiAPIKey = value
	case "gemini-base-url":
		c.GeminiBaseURL = value
	case "gemini-embedding-model":
		needsReindex = c.EmbeddingProvider == ProviderGemini && c.GeminiEmbeddingModel != value
		c.GeminiEmbeddingModel = value
	case "provider-timeout":
		n, err := parsePositiveInt(value)
		if err != nil {
			return false, err
		}
		c.ProviderTimeoutSeconds = n
	case "provider-max-retries":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return false, fmt.Errorf("%w: provider-max-retries must be a non-negative integer", interrors.ErrValidation)
		}
		c.ProviderMaxRetries = n
	case "async-indexing":
		b, err := ParseBool(value)
		if err != nil {
			return false, err
		}
		c.AsyncIndexing = b
	case "auto-reindex-on-search":
		b, err := ParseBool(value)
		if err != nil {
			return false, err
		}
		c.AutoReindexOnSearch = b
	case "task-workers":
		n, err := parsePositiveInt(value)
		if err != nil {
			return false, err
		}
		c.TaskWorkers = n
	case "enable-summarization":
		b, err := ParseBool(value)
		if err != nil {
			return false, err
		}
		c.EnableSummarization = b
	case "summarization-provider":
		if value != SummarizerOpenAI && value != SummarizerOllama {
			return false, fmt.Errorf("%w: summarization-provider must be openai or ollama", interrors.ErrValidation)
		}
		c.SummarizationProvider = value
	case "summarization-model":
		c.SummarizationModel = value
	case "ollama-endpoint":
		c.OllamaEndpoint = value
	case "jwt-secret":
		c.JWTSecret = value
	case "token-ttl-hours":
		n, err := parsePositiveInt(value)
		if err != nil {
			return false, err
		}
		c.TokenTTLHours = n
	case "debug":
		b, err := ParseBool(value)
		if err != nil {
			return false, err
		}
		c.Debug = b
	case "editor":
		c.Editor = value
	default:
		return false, fmt.Errorf("%w: %s", interrors.ErrUnknownConfigKey, key)
	}
	return needsReindex, nil
}

// Get returns the string form of a setting. Secrets are masked.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "data-dir":
		return c.DataDirectory, nil
	case "database-path":
		return c.GetDatabasePath(), nil
	case "embedding-provider":
		return c.EmbeddingProvider, nil
	case "openai-api-key":
		return mask(c.OpenAIAPIKey), nil
	case "openai-base-url":
		return c.OpenAIBaseURL, nil
	case "openai-embedding-model":
		return c.OpenAIEmbeddingModel, nil
	case "gemini-api-key":
		return mask(c.GeminiAPIKey), nil
	case "gemini-base-url":
		return c.GeminiBaseURL, nil
	case "gemini-embedding-model":
		return c.GeminiEmbeddingModel, nil
	case "provider-timeout":
		return strconv.Itoa(c.ProviderTimeoutSeconds), nil
	case "provider-max-retries":
		return strconv.Itoa(c.ProviderMaxRetries), nil
	case "async-indexing":
		return strconv.FormatBool(c.AsyncIndexing), nil
	case "auto-reindex-on-search":
		return strconv.FormatBool(c.AutoReindexOnSearch), nil
	case "task-workers":
		return strconv.Itoa(c.TaskWorkers), nil
	case "enable-summarization":
		return strconv.FormatBool(c.EnableSummarization), nil
	case "summarization-provider":
		return c.SummarizationProvider, nil
	case "summarization-model":
		return c.SummarizationModel, nil
	case "ollama-endpoint":
		return c.OllamaEndpoint, nil
	case "jwt-secret":
		return mask(c.JWTSecret), nil
	case "token-ttl-hours":
		return strconv.Itoa(c.TokenTTLHours), nil
	case "debug":
		return strconv.FormatBool(c.Debug), nil
	case "editor":
		return c.Editor, nil
	}
	return "", fmt.Errorf("%w: %s", interrors.ErrUnknownConfigKey, key)
}

// Keys lists every key accepted by Get, in display order.
func Keys() []string {
	return []string{
		"data-dir", "database-path", "embedding-provider",
		"openai-api-key", "openai-base-url", "openai-embedding-model",
		"gemini-api-key", "gemini-base-url", "gemini-embedding-model",
		"provider-timeout", "provider-max-retries",
		"async-indexing", "auto-reindex-on-search", "task-workers",
		"enable-summarization", "summarization-provider", "summarization-model", "ollama-endpoint",
		"jwt-secret", "token-ttl-hours", "debug", "editor",
	}
}

func ParseBool(value string) (bool, error) {
	switch strings.ToLower(value) {
	case constants.BoolTrue, constants.BoolOne, constants.BoolYes:
		return true, nil
	case constants.BoolFalse, constants.BoolZero, constants.BoolNo:
		return false, nil
	}
	return false, fmt.Errorf("%w: %s", interrors.ErrInvalidBoolean, value)
}

func parsePositiveInt(value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: expected a positive integer, got %q", interrors.ErrValidation, value)
	}
	return n, nil
}

func mask(secret string) string {
	if secret == "" {
		return "(not set)"
	}
	if len(secret) <= 8 {
		return "********"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}
