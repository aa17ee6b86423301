package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"docrag/internal/domain"
	"docrag/internal/port"
	"docrag/internal/retry"
)

// OpenAIEmbedder talks to an OpenAI-compatible embeddings endpoint.
// Requests are batched up to BatchSize; output order always matches
// input order regardless of batching. Rate limits and transient service
// errors are retried with the shared backoff policy.
type OpenAIEmbedder struct {
	apiKey       string
	model        string
	baseURL      string
	batchSize    int
	maxItemChars int
	client       *http.Client
	policy       retry.Policy
	log          zerolog.Logger

	// dimension is configured up front or learned from the first
	// response; concurrent Embed calls share it.
	mu        sync.Mutex
	dimension int
}

// Config configures the embeddings client.
type Config struct {
	BaseURL      string
	APIKeyEnv    string
	Model        string
	Dimension    int
	BatchSize    int
	MaxItemChars int
	Timeout      time.Duration
	Policy       retry.Policy
	Logger       zerolog.Logger
}

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingResponse struct {
	Data  []embeddingData `json:"data"`
	Error *apiError       `json:"error,omitempty"`
}

type embeddingData struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func NewOpenAIEmbedder(cfg Config) (*OpenAIEmbedder, error) {
	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("API key not found in environment variable: %s", cfg.APIKeyEnv)
	}
	return newEmbedder(apiKey, cfg), nil
}

// NewOllamaEmbedder targets a local Ollama server, which needs no key.
func NewOllamaEmbedder(cfg Config) *OpenAIEmbedder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434/v1"
	}
	return newEmbedder("ollama", cfg)
}

func newEmbedder(apiKey string, cfg Config) *OpenAIEmbedder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &OpenAIEmbedder{
		apiKey:       apiKey,
		model:        cfg.Model,
		baseURL:      cfg.BaseURL,
		dimension:    cfg.Dimension,
		batchSize:    cfg.BatchSize,
		maxItemChars: cfg.MaxItemChars,
		client:       &http.Client{Timeout: cfg.Timeout},
		policy:       cfg.Policy,
		log:          cfg.Logger,
	}
}

// Embed generates one vector per input text, in input order. Oversized
// texts and per-item rejections are reported through
// *domain.BatchEmbedError so the caller can skip the bad items; retry
// exhaustion fails the whole call with *domain.EmbeddingUnavailableError.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string, kind port.Input) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(texts))
	itemErrors := make(map[int]error)

	// Reject oversized texts up front; everything else goes to the API.
	var pending []int
	for i, text := range texts {
		if e.maxItemChars > 0 && utf8.RuneCountInString(text) > e.maxItemChars {
			itemErrors[i] = &domain.EmbeddingRejectedError{
				Err: fmt.Errorf("text of %d characters exceeds limit of %d", utf8.RuneCountInString(text), e.maxItemChars),
			}
			continue
		}
		pending = append(pending, i)
	}

	for start := 0; start < len(pending); start += e.batchSize {
		end := start + e.batchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		batchTexts := make([]string, len(batch))
		for j, idx := range batch {
			batchTexts[j] = texts[idx]
		}

		e.log.Debug().Int("batch", len(batchTexts)).Str("kind", string(kind)).Msg("embedding batch")

		embeddings, err := e.embedWithRetry(ctx, batchTexts)
		if err == nil {
			for j, idx := range batch {
				vectors[idx] = embeddings[j]
			}
			continue
		}

		var rejected *domain.EmbeddingRejectedError
		if !errors.As(err, &rejected) {
			return nil, err
		}

		// The service refused the batch. If a single item is at fault,
		// isolate it by embedding the items one by one so the rest of
		// the document can proceed.
		if len(batch) == 1 {
			itemErrors[batch[0]] = err
			continue
		}
		e.log.Warn().Err(err).Int("batch", len(batch)).Msg("batch rejected, isolating items")
		for _, idx := range batch {
			single, err := e.embedWithRetry(ctx, []string{texts[idx]})
			if err != nil {
				if !errors.As(err, &rejected) {
					return nil, err
				}
				itemErrors[idx] = err
				continue
			}
			vectors[idx] = single[0]
		}
	}

	if len(itemErrors) > 0 {
		if len(texts) == 1 {
			return nil, itemErrors[0]
		}
		return nil, &domain.BatchEmbedError{Vectors: vectors, ItemErrors: itemErrors}
	}
	return vectors, nil
}

// embedWithRetry runs one batch through the backoff policy and maps the
// terminal error into the failure taxonomy.
func (e *OpenAIEmbedder) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var embeddings [][]float32
	attempts, err := e.policy.Do(ctx, func() error {
		var callErr error
		embeddings, callErr = e.embedBatch(ctx, texts)
		return callErr
	})
	if err == nil {
		return embeddings, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	var transient *retry.TransientError
	if errors.As(err, &transient) {
		return nil, &domain.EmbeddingUnavailableError{Attempts: attempts, Err: transient.Err}
	}
	return nil, &domain.EmbeddingRejectedError{Err: err}
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := embeddingRequest{
		Input: texts,
		Model: e.model,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, retry.Transient(fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retry.Transient(fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, retry.Transient(apiErr)
		}
		return nil, apiErr
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(body, &embResp); err != nil {
		bodyPreview := string(body)
		if len(bodyPreview) > 200 {
			bodyPreview = bodyPreview[:200]
		}
		return nil, retry.Transient(fmt.Errorf("failed to parse response (body: %s): %w", bodyPreview, err))
	}

	if embResp.Error != nil {
		return nil, fmt.Errorf("API error: %s", embResp.Error.Message)
	}

	if len(embResp.Data) != len(texts) {
		return nil, fmt.Errorf("API returned %d embeddings for %d inputs", len(embResp.Data), len(texts))
	}

	embeddings := make([][]float32, len(texts))
	for _, data := range embResp.Data {
		if data.Index < 0 || data.Index >= len(embeddings) {
			return nil, fmt.Errorf("API returned out-of-range index %d", data.Index)
		}
		embeddings[data.Index] = data.Embedding
	}

	if len(embeddings) > 0 {
		e.mu.Lock()
		if e.dimension == 0 {
			e.dimension = len(embeddings[0])
		}
		e.mu.Unlock()
	}

	return embeddings, nil
}

func (e *OpenAIEmbedder) Dimension() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dimension
}

func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}

// MockEmbedder returns deterministic vectors derived from the text,
// for tests and offline runs.
type MockEmbedder struct {
	dimension int
}

func NewMockEmbedder(dimension int) *MockEmbedder {
	return &MockEmbedder{dimension: dimension}
}

func (e *MockEmbedder) Embed(ctx context.Context, texts []string, kind port.Input) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i := range texts {
		embeddings[i] = make([]float32, e.dimension)

		for j, r := range texts[i] {
			if j < e.dimension {
				embeddings[i][j] = float32(r) / 1000.0
			}
		}
	}
	return embeddings, nil
}

func (e *MockEmbedder) Dimension() int {
	return e.dimension
}

func (e *MockEmbedder) ModelName() string {
	return "mock"
}
