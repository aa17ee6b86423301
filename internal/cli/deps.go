package cli

import (
	"fmt"
	"strings"

	"docrag/config"
	"docrag/internal/adapter/embedding"
	"docrag/internal/adapter/llm"
	"docrag/internal/adapter/store"
	"docrag/internal/port"
	"docrag/internal/retry"
)

func retryPolicy(cfg *config.Config) retry.Policy {
	policy := retry.DefaultPolicy()
	policy.BaseDelay, policy.MaxDelay = cfg.RetryDelays()
	policy.MaxAttempts = cfg.Retry.MaxAttempts
	policy.Jitter = cfg.Retry.Jitter
	return policy
}

func openIndex(dir string) (*store.BoltIndex, error) {
	if err := config.EnsureDataDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create .docrag directory: %w", err)
	}
	idx, err := store.NewBoltIndex(config.IndexDBPath(dir))
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	return idx, nil
}

func newEmbedder(cfg *config.Config) (port.Embedder, error) {
	embCfg := embedding.Config{
		BaseURL:      cfg.Embedding.BaseURL,
		APIKeyEnv:    cfg.Embedding.APIKeyEnv,
		Model:        cfg.Embedding.Model,
		Dimension:    cfg.Embedding.Dimension,
		BatchSize:    cfg.Embedding.BatchSize,
		MaxItemChars: cfg.Embedding.MaxItemChars,
		Policy:       retryPolicy(cfg),
		Logger:       logger,
	}

	switch cfg.Embedding.Provider {
	case "openai":
		return embedding.NewOpenAIEmbedder(embCfg)
	case "ollama":
		return embedding.NewOllamaEmbedder(embCfg), nil
	case "mock":
		return embedding.NewMockEmbedder(cfg.Embedding.Dimension), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Embedding.Provider)
	}
}

// resolveDocID accepts a full document id, a unique id prefix, or a
// document name, and returns the full id.
func resolveDocID(idx port.Index, key string) (string, error) {
	infos, err := idx.Documents()
	if err != nil {
		return "", err
	}

	var matches []string
	for _, info := range infos {
		if info.ID == key {
			return info.ID, nil
		}
		if info.Name == key || strings.HasPrefix(info.ID, key) {
			matches = append(matches, info.ID)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return "", fmt.Errorf("no such document: %s (try 'docrag list')", key)
	default:
		return "", fmt.Errorf("ambiguous document %q matches %d documents", key, len(matches))
	}
}

func newLLM(cfg *config.Config) (port.LLM, error) {
	llmCfg := llm.Config{
		BaseURL:     cfg.Generation.BaseURL,
		APIKeyEnv:   cfg.Generation.APIKeyEnv,
		Model:       cfg.Generation.Model,
		Temperature: cfg.Generation.Temperature,
		MaxTokens:   cfg.Generation.MaxTokens,
		Policy:      retryPolicy(cfg),
		Logger:      logger,
	}

	switch cfg.Generation.Provider {
	case "openai":
		return llm.NewOpenAILLM(llmCfg)
	case "ollama":
		return llm.NewOllamaLLM(llmCfg), nil
	case "mock":
		return llm.NewMockLLM(), nil
	default:
		return nil, fmt.Errorf("unsupported generation provider: %s", cfg.Generation.Provider)
	}
}
