// Package ollama connects the agent to a local model server speaking the
// Ollama API. Both the multimodal OCR engine and the LLM classifier engine
// talk to the model through it; requests go through langchaingo's ollama
// backend behind a shared rate limit.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tmc/langchaingo/llms"
	lcollama "github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/schema"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL     = "http://127.0.0.1:11434"
	defaultTimeout     = 60 * time.Second
	defaultMaxRetries  = 2
	defaultBaseBackoff = 500 * time.Millisecond
	defaultRateLimit   = 2.0 // requests per second
	defaultBurst       = 2
)

// ImageMIMEType is the encoding images are sent in
const ImageMIMEType = "image/png"

// Config configures the client
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	RateLimit  float64 // requests per second; 0 uses the default
	MaxRetries int     // negative disables retries; 0 uses the default
}

// GenerateRequest is one non-streaming completion
type GenerateRequest struct {
	Model       string
	System      string
	Prompt      string
	Images      [][]byte // PNG encoded
	Format      string   // "json" constrains the answer to JSON
	Temperature float64
}

type backendKey struct {
	model  string
	format string
}

// Client calls the model server with rate limiting and retries. One
// langchaingo backend is kept per model and answer format.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter

	mu       sync.Mutex
	backends map[backendKey]*lcollama.LLM
}

// NewClient creates a client
func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	limit := cfg.RateLimit
	if limit <= 0 {
		limit = defaultRateLimit
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	} else if retries == 0 {
		retries = defaultMaxRetries
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &retryTransport{
				base:       http.DefaultTransport,
				maxRetries: retries,
				backoff:    defaultBaseBackoff,
			},
		},
		limiter:  rate.NewLimiter(rate.Limit(limit), defaultBurst),
		backends: make(map[backendKey]*lcollama.LLM),
	}
}

// BaseURL returns the server address
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) backend(model, format string) (*lcollama.LLM, error) {
	if model == "" {
		return nil, errors.New("model name is required")
	}
	key := backendKey{model: model, format: format}

	c.mu.Lock()
	defer c.mu.Unlock()
	if llm, ok := c.backends[key]; ok {
		return llm, nil
	}

	opts := []lcollama.Option{
		lcollama.WithModel(model),
		lcollama.WithServerURL(c.baseURL),
		lcollama.WithHTTPClient(c.httpClient),
	}
	if format != "" {
		opts = append(opts, lcollama.WithFormat(format))
	}
	llm, err := lcollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create model backend: %w", err)
	}
	c.backends[key] = llm
	return llm, nil
}

// Generate runs a non-streaming completion and returns the model's text
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter error: %w", err)
	}
	llm, err := c.backend(req.Model, req.Format)
	if err != nil {
		return "", err
	}

	resp, err := llm.GenerateContent(ctx, messages(req), llms.WithTemperature(req.Temperature))
	if err != nil {
		return "", fmt.Errorf("model request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("model returned no answer")
	}
	return resp.Choices[0].Content, nil
}

func messages(req GenerateRequest) []llms.MessageContent {
	var msgs []llms.MessageContent
	if req.System != "" {
		msgs = append(msgs, llms.TextParts(schema.ChatMessageTypeSystem, req.System))
	}

	parts := make([]llms.ContentPart, 0, len(req.Images)+1)
	for _, img := range req.Images {
		parts = append(parts, llms.BinaryPart(ImageMIMEType, img))
	}
	parts = append(parts, llms.TextPart(req.Prompt))
	return append(msgs, llms.MessageContent{Role: schema.ChatMessageTypeHuman, Parts: parts})
}

// HealthCheck verifies the server answers for model with a one-token
// completion. An unknown model fails the check.
func (c *Client) HealthCheck(ctx context.Context, model string) error {
	llm, err := c.backend(model, "")
	if err != nil {
		return err
	}
	_, err = llm.GenerateContent(ctx,
		[]llms.MessageContent{llms.TextParts(schema.ChatMessageTypeHuman, "ping")},
		llms.WithMaxTokens(1))
	if err != nil {
		return fmt.Errorf("model %q unavailable at %s: %w", model, c.baseURL, err)
	}
	return nil
}
