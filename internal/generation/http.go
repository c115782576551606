package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// HTTPConfig holds settings for the chat-completions backend.
type HTTPConfig struct {
	// BaseURL is the API root, e.g. https://api.example.com/v1.
	BaseURL string
	APIKey  string
	Model   string
	// Timeout bounds a single generation call.
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
}

// DefaultHTTPConfig returns conservative generation settings.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Model:       "qwen-plus",
		Timeout:     20 * time.Second,
		Temperature: 0.3,
		MaxTokens:   2000,
	}
}

// HTTPBackend calls an OpenAI-compatible chat-completions endpoint.
type HTTPBackend struct {
	cfg    HTTPConfig
	client *http.Client
	logger *zap.Logger
	tracer trace.Tracer
}

// NewHTTPBackend creates the backend client.
func NewHTTPBackend(cfg HTTPConfig, logger *zap.Logger) (*HTTPBackend, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("generation: base URL is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("generation: model is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultHTTPConfig().Timeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPBackend{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
		tracer: otel.Tracer("generation-backend"),
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate performs one chat-completions round trip.
func (b *HTTPBackend) Generate(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	ctx, span := b.tracer.Start(ctx, "generate",
		trace.WithAttributes(
			attribute.String("model", b.cfg.Model),
			attribute.Int("turns", len(req.Turns)),
		))
	defer span.End()

	messages := make([]chatMessage, 0, len(req.Turns)+2)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	for _, t := range req.Turns {
		messages = append(messages, chatMessage{Role: t.Role, Content: t.Content})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(chatRequest{
		Model:       b.cfg.Model,
		Messages:    messages,
		Temperature: b.cfg.Temperature,
		MaxTokens:   b.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		b.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if b.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.cfg.APIKey)
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("backend call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("backend status %d", resp.StatusCode)
		span.RecordError(err)
		return "", err
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("backend error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("backend returned no choices")
	}

	b.logger.Debug("generation complete",
		zap.String("model", b.cfg.Model),
		zap.Int("prompt_bytes", len(req.Prompt)))
	return parsed.Choices[0].Message.Content, nil
}
