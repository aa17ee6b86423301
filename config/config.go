package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"docrag/internal/domain"
)

// Config holds all configuration for the document Q&A tool.
type Config struct {
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Retrieve   RetrieveConfig   `yaml:"retrieve"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Retry      RetryConfig      `yaml:"retry"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ChunkingConfig holds text segmentation configuration.
type ChunkingConfig struct {
	Size    int `yaml:"size"`    // chunk size in characters
	Overlap int `yaml:"overlap"` // characters shared between consecutive chunks
}

// EmbeddingConfig holds embedding model configuration.
type EmbeddingConfig struct {
	Provider     string `yaml:"provider"` // "openai", "ollama", "mock"
	Model        string `yaml:"model"`
	BaseURL      string `yaml:"base_url"`
	APIKeyEnv    string `yaml:"api_key_env"` // Environment variable for API key
	Dimension    int    `yaml:"dimension"`
	BatchSize    int    `yaml:"batch_size"`
	MaxItemChars int    `yaml:"max_item_chars"` // texts longer than this are rejected per-item
}

// GenerationConfig holds generation model configuration.
type GenerationConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// RetrieveConfig holds query-time configuration.
type RetrieveConfig struct {
	TopK            int     `yaml:"top_k"`             // chunks retrieved per question
	PerDocTopK      int     `yaml:"per_doc_top_k"`     // chunks per document in comparisons
	RelevanceFloor  float64 `yaml:"relevance_floor"`   // best match below this is "nothing relevant"
	MaxContextChars int     `yaml:"max_context_chars"` // context budget, truncated at chunk boundaries
}

// IngestConfig holds ingestion configuration.
type IngestConfig struct {
	Includes    []string `yaml:"includes"`
	Excludes    []string `yaml:"excludes"`
	Concurrency int      `yaml:"concurrency"` // parallel document ingests
}

// RetryConfig holds the shared backoff discipline for external calls.
type RetryConfig struct {
	BaseDelayMs int     `yaml:"base_delay_ms"`
	MaxDelayMs  int     `yaml:"max_delay_ms"`
	MaxAttempts int     `yaml:"max_attempts"`
	Jitter      float64 `yaml:"jitter"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Chunking: ChunkingConfig{
			Size:    1000,
			Overlap: 200,
		},
		Embedding: EmbeddingConfig{
			Provider:     "openai",
			Model:        "text-embedding-3-small",
			BaseURL:      "https://api.openai.com/v1",
			APIKeyEnv:    "OPENAI_API_KEY",
			Dimension:    1536,
			BatchSize:    100,
			MaxItemChars: 32000,
		},
		Generation: GenerationConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			BaseURL:     "https://api.openai.com/v1",
			APIKeyEnv:   "OPENAI_API_KEY",
			Temperature: 0.3,
			MaxTokens:   2048,
		},
		Retrieve: RetrieveConfig{
			TopK:            5,
			PerDocTopK:      3,
			RelevanceFloor:  0.25,
			MaxContextChars: 12000,
		},
		Ingest: IngestConfig{
			Includes:    []string{"**/*.pdf", "**/*.txt", "**/*.md"},
			Excludes:    []string{"**/.*/**"},
			Concurrency: 2,
		},
		Retry: RetryConfig{
			BaseDelayMs: 500,
			MaxDelayMs:  8000,
			MaxAttempts: 4,
			Jitter:      0.2,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate checks parameter sanity. Called once at startup; any failure
// is a *domain.ConfigError.
func (c *Config) Validate() error {
	if c.Chunking.Size <= 0 {
		return &domain.ConfigError{Field: "chunking.size", Reason: "must be positive"}
	}
	if c.Chunking.Overlap < 0 {
		return &domain.ConfigError{Field: "chunking.overlap", Reason: "must not be negative"}
	}
	if c.Chunking.Overlap >= c.Chunking.Size {
		return &domain.ConfigError{Field: "chunking.overlap", Reason: "must be smaller than chunking.size"}
	}
	if c.Embedding.BatchSize <= 0 {
		return &domain.ConfigError{Field: "embedding.batch_size", Reason: "must be positive"}
	}
	if c.Retrieve.TopK <= 0 {
		return &domain.ConfigError{Field: "retrieve.top_k", Reason: "must be positive"}
	}
	if c.Retrieve.MaxContextChars <= 0 {
		return &domain.ConfigError{Field: "retrieve.max_context_chars", Reason: "must be positive"}
	}
	if c.Retry.MaxAttempts <= 0 {
		return &domain.ConfigError{Field: "retry.max_attempts", Reason: "must be positive"}
	}
	if c.Ingest.Concurrency <= 0 {
		return &domain.ConfigError{Field: "ingest.concurrency", Reason: "must be positive"}
	}
	return nil
}

// RetryDelays converts the retry section into durations.
func (c *Config) RetryDelays() (base, max time.Duration) {
	return time.Duration(c.Retry.BaseDelayMs) * time.Millisecond,
		time.Duration(c.Retry.MaxDelayMs) * time.Millisecond
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for docrag.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "docrag.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".docrag", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// IndexDBPath returns the path to the index database.
func IndexDBPath(dir string) string {
	return filepath.Join(dir, ".docrag", "index.db")
}

// EnsureDataDir ensures the .docrag directory exists.
func EnsureDataDir(dir string) error {
	return os.MkdirAll(filepath.Join(dir, ".docrag"), 0755)
}
