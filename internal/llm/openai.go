package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ggmhub/hub/internal/logger"
	"github.com/ggmhub/hub/internal/retry"
)

const (
	// DefaultRequestTimeout bounds one generation call; local models are slow.
	DefaultRequestTimeout = 120 * time.Second
	// DefaultMaxRetries is the number of attempts for a generation call.
	DefaultMaxRetries = 3
)

// OpenAIConfig configures an OpenAI-compatible chat completions endpoint.
type OpenAIConfig struct {
	Name       string
	BaseURL    string // e.g. http://localhost:11434/v1 or https://api.openai.com/v1
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// OpenAIProvider implements Provider against /chat/completions.
type OpenAIProvider struct {
	client *http.Client
	config OpenAIConfig
	retry  retry.Config
	logger *logger.Logger
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type modelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// httpError keeps the "status=NNN" form IsRetryable understands.
type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("HTTP error: status=%d, body=%s", e.StatusCode, e.Body)
}

func NewOpenAIProvider(cfg OpenAIConfig, log *logger.Logger) *OpenAIProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRequestTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Model
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if log == nil {
		log = logger.Nop()
	}
	log = log.Component("llm").With(logger.Field{Key: "provider", Value: cfg.Name})

	return &OpenAIProvider{
		client: &http.Client{Timeout: cfg.Timeout},
		config: cfg,
		retry: retry.Config{
			MaxAttempts:    cfg.MaxRetries,
			InitialBackoff: 2 * time.Second,
			MaxBackoff:     20 * time.Second,
			Logger:         log,
		},
		logger: log,
	}
}

func (p *OpenAIProvider) Name() string { return p.config.Name }

func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       p.config.Model,
		Messages:    req.Messages(),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	p.logger.DebugCtx(ctx, "sending generation request",
		logger.Field{Key: "model", Value: p.config.Model},
		logger.Field{Key: "prompt_length", Value: len(req.Prompt)})

	resp, err := retry.Do(ctx, p.retry, func(ctx context.Context) (*chatResponse, error) {
		return p.doChat(ctx, body)
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("empty response: no choices")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("empty response content")
	}
	return content, nil
}

func (p *OpenAIProvider) doChat(ctx context.Context, body []byte) (*chatResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	p.authorize(httpReq)

	respBody, err := p.send(httpReq)
	if err != nil {
		return nil, err
	}

	var resp chatResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to unmarshal response: %w", err))
	}
	if resp.Error != nil {
		return nil, retry.Permanent(fmt.Errorf("API error: %s: %s", resp.Error.Type, resp.Error.Message))
	}
	return &resp, nil
}

// Ping lists models and checks the configured one is served. Ollama
// reports tags with a ":latest" suffix, so a bare model name also matches.
func (p *OpenAIProvider) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.BaseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	p.authorize(httpReq)

	respBody, err := p.send(httpReq)
	if err != nil {
		return err
	}

	var models modelsResponse
	if err := json.Unmarshal(respBody, &models); err != nil {
		return fmt.Errorf("failed to unmarshal models: %w", err)
	}
	for _, m := range models.Data {
		if m.ID == p.config.Model || strings.TrimSuffix(m.ID, ":latest") == p.config.Model {
			return nil
		}
	}
	return fmt.Errorf("model %s not served by %s", p.config.Model, p.config.Name)
}

func (p *OpenAIProvider) authorize(req *http.Request) {
	if p.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}
}

func (p *OpenAIProvider) send(req *http.Request) ([]byte, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &httpError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
