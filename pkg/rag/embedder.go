// Package rag provides the retrieval layer: embedding generation,
// multi-table cosine-similarity search over the pgvector example tables,
// and formatting of retrieved exemplars for prompt injection.
package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"
)

// DefaultDimension is the embedding dimension of the example tables.
const DefaultDimension = 768

// EmbedderProvider turns text into a dense, L2-normalized vector of a
// fixed dimension.
type EmbedderProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	GetDimension() int
}

// EmbedderConfig configures the HTTP embedding service client.
type EmbedderConfig struct {
	Host       string `yaml:"host"`        // embedding service endpoint
	Model      string `yaml:"model"`       // model name
	Dimension  int    `yaml:"dimension"`   // embedding dimension
	Timeout    int    `yaml:"timeout"`     // request timeout in seconds
	MaxRetries int    `yaml:"max_retries"` // max retry attempts
}

// Validate implements config validation for EmbedderConfig.
func (c *EmbedderConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("dimension must be positive")
	}
	return nil
}

// SetDefaults implements config defaults for EmbedderConfig.
func (c *EmbedderConfig) SetDefaults() {
	if c.Model == "" {
		c.Model = "m3e-base"
	}
	if c.Dimension == 0 {
		c.Dimension = DefaultDimension
	}
	if c.Timeout == 0 {
		c.Timeout = 30
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
}

// HTTPEmbedder calls an embedding service over HTTP. The underlying
// client is built lazily on first use and reused afterwards.
type HTTPEmbedder struct {
	config EmbedderConfig

	initOnce sync.Once
	client   *http.Client
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// NewHTTPEmbedder creates an embedder from config.
func NewHTTPEmbedder(cfg EmbedderConfig) (*HTTPEmbedder, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid embedder config: %w", err)
	}
	return &HTTPEmbedder{config: cfg}, nil
}

// GetDimension returns the embedding dimension.
func (e *HTTPEmbedder) GetDimension() int {
	return e.config.Dimension
}

// Embed generates the L2-normalized vector for a text. Transient request
// failures are retried with linear backoff inside the embedder; callers
// above treat a final failure as a degraded retrieval.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.initOnce.Do(func() {
		e.client = &http.Client{
			Timeout: time.Duration(e.config.Timeout) * time.Second,
		}
		slog.Debug("Embedding client initialized", "host", e.config.Host, "model", e.config.Model)
	})

	payload, err := json.Marshal(embedRequest{Model: e.config.Model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embed request: %w", err)
	}

	var resp *http.Response
	for attempt := 0; attempt < e.config.MaxRetries; attempt++ {
		req, rerr := http.NewRequestWithContext(ctx, http.MethodPost, e.config.Host+"/api/embeddings", bytes.NewReader(payload))
		if rerr != nil {
			return nil, fmt.Errorf("failed to create embed request: %w", rerr)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err = e.client.Do(req)
		if err == nil {
			break
		}

		slog.Debug("Embedding request retry", "attempt", attempt+1, "error", err)
		if attempt < e.config.MaxRetries-1 {
			select {
			case <-time.After(time.Duration(attempt+1) * time.Second):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding service returned status %d: %s", resp.StatusCode, string(body))
	}

	var response embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}
	if len(response.Embedding) == 0 {
		return nil, fmt.Errorf("received empty embedding")
	}
	if len(response.Embedding) != e.config.Dimension {
		return nil, fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(response.Embedding), e.config.Dimension)
	}

	return normalizeL2(response.Embedding), nil
}

// normalizeL2 scales a vector to unit length. Zero vectors pass through
// unchanged.
func normalizeL2(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return vec
	}
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}
