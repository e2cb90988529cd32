// Package llm wraps the Gemini API behind the small surface the
// questioning service needs: one text-in/text-out generation call and one
// embedding call.
//
// The model is treated as a pure, possibly-slow, possibly-failing text
// transducer. Timeouts and cancellation arrive via the caller's context;
// a shared rate limiter smooths request bursts across concurrent callers.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// Default rate limit for model calls. Gemini free-tier allows 10 RPM;
// paid tiers considerably more. One request per second with a small burst
// keeps well under typical quotas without starving batch generation.
const (
	defaultRequestsPerSecond = 1
	defaultBurst             = 3
)

// Config configures the Gemini client.
type Config struct {
	// APIKey authenticates against the Gemini API. Required.
	APIKey string

	// Model is the generation model name (e.g. "gemini-2.5-flash").
	Model string

	// EmbedderModel is the embedding model name.
	EmbedderModel string

	// Temperature for generation, in [0, 2].
	Temperature float32

	// Limiter overrides the default rate limiter. Nil uses the default.
	Limiter *rate.Limiter
}

// Client calls the Gemini API for generation and embeddings.
//
// Client is safe for concurrent use by multiple goroutines.
type Client struct {
	client      *genai.Client
	model       string
	embedder    string
	temperature float32
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// NewClient creates a Gemini-backed Client.
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	limiter := cfg.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Limit(defaultRequestsPerSecond), defaultBurst)
	}

	return &Client{
		client:      gc,
		model:       cfg.Model,
		embedder:    cfg.EmbedderModel,
		temperature: cfg.Temperature,
		limiter:     limiter,
		logger:      logger,
	}, nil
}

// Generate sends prompt to the generation model and returns the raw text
// response, trimmed. The response may contain markdown fences or prose
// around any JSON payload; parsing is the caller's concern.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			Temperature: genai.Ptr(c.temperature),
		})
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("empty model response")
	}

	c.logger.Debug("generated content", "model", c.model, "response_length", len(text))
	return text, nil
}

// Embed returns the embedding vector for text, truncated to the
// vectorstore dimensionality via OutputDimensionality.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	dim := int32(768)
	resp, err := c.client.Models.EmbedContent(ctx, c.embedder,
		genai.Text(text),
		&genai.EmbedContentConfig{
			OutputDimensionality: &dim,
		})
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}

	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}
	return resp.Embeddings[0].Values, nil
}
