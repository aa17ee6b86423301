package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"docrag/internal/domain"
	"docrag/internal/retry"
)

// OpenAILLM talks to an OpenAI-compatible chat-completions endpoint,
// sharing the retry discipline of the embedding client.
type OpenAILLM struct {
	apiKey      string
	model       string
	baseURL     string
	temperature float64
	maxTokens   int
	client      *http.Client
	policy      retry.Policy
	log         zerolog.Logger
}

// Config configures the generation client.
type Config struct {
	BaseURL     string
	APIKeyEnv   string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	Policy      retry.Policy
	Logger      zerolog.Logger
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Error   *apiError    `json:"error,omitempty"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func NewOpenAILLM(cfg Config) (*OpenAILLM, error) {
	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("API key not found in environment variable: %s", cfg.APIKeyEnv)
	}
	return newLLM(apiKey, cfg), nil
}

// NewOllamaLLM targets a local Ollama server, which needs no key.
func NewOllamaLLM(cfg Config) *OpenAILLM {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434/v1"
	}
	return newLLM("ollama", cfg)
}

func newLLM(apiKey string, cfg Config) *OpenAILLM {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &OpenAILLM{
		apiKey:      apiKey,
		model:       cfg.Model,
		baseURL:     cfg.BaseURL,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		client:      &http.Client{Timeout: cfg.Timeout},
		policy:      cfg.Policy,
		log:         cfg.Logger,
	}
}

func (l *OpenAILLM) Generate(ctx context.Context, prompt string) (string, error) {
	return l.complete(ctx, []chatMessage{
		{Role: "user", Content: prompt},
	})
}

func (l *OpenAILLM) GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return l.complete(ctx, []chatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	})
}

func (l *OpenAILLM) ModelName() string {
	return l.model
}

func (l *OpenAILLM) complete(ctx context.Context, messages []chatMessage) (string, error) {
	var text string
	attempts, err := l.policy.Do(ctx, func() error {
		var callErr error
		text, callErr = l.call(ctx, messages)
		return callErr
	})
	if err == nil {
		return text, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	var transient *retry.TransientError
	if errors.As(err, &transient) {
		return "", &domain.GenerationUnavailableError{Attempts: attempts, Err: transient.Err}
	}
	return "", &domain.GenerationRejectedError{Err: err}
}

func (l *OpenAILLM) call(ctx context.Context, messages []chatMessage) (string, error) {
	reqBody := chatRequest{
		Model:       l.model,
		Messages:    messages,
		Temperature: l.temperature,
		MaxTokens:   l.maxTokens,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+l.apiKey)

	resp, err := l.client.Do(req)
	if err != nil {
		return "", retry.Transient(fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", retry.Transient(fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return "", retry.Transient(apiErr)
		}
		return "", apiErr
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", retry.Transient(fmt.Errorf("failed to parse response: %w", err))
	}

	if chatResp.Error != nil {
		return "", fmt.Errorf("API error: %s", chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("API returned no choices")
	}

	return chatResp.Choices[0].Message.Content, nil
}

// MockLLM replays canned responses, for tests and offline runs. When
// Responses runs out it echoes a digest of the prompt.
type MockLLM struct {
	Responses []string
	Prompts   []string
	calls     int
}

func NewMockLLM(responses ...string) *MockLLM {
	return &MockLLM{Responses: responses}
}

func (l *MockLLM) Generate(ctx context.Context, prompt string) (string, error) {
	return l.GenerateWithSystem(ctx, "", prompt)
}

func (l *MockLLM) GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	l.Prompts = append(l.Prompts, userPrompt)
	if l.calls < len(l.Responses) {
		resp := l.Responses[l.calls]
		l.calls++
		return resp, nil
	}
	l.calls++
	if len(userPrompt) > 40 {
		userPrompt = userPrompt[:40]
	}
	return "mock: " + userPrompt, nil
}

func (l *MockLLM) ModelName() string {
	return "mock"
}
