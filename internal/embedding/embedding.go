// Package embedding converts text to fixed-length vectors via a local
// Ollama server, using the official client from github.com/ollama/ollama/api.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

// ErrNoEmbedding indicates the backend responded without an embedding field.
var ErrNoEmbedding = errors.New("embedding backend returned no embedding")

// Client wraps the Ollama embeddings endpoint for a single configured model.
//
// Client is safe for concurrent use; the underlying HTTP client carries all
// state.
type Client struct {
	api    *api.Client
	model  string
	logger *slog.Logger
}

// New creates an embedding client for the given Ollama host and model.
func New(host, model string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	base, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("parsing ollama host %q: %w", host, err)
	}
	return &Client{
		api:    api.NewClient(base, http.DefaultClient),
		model:  model,
		logger: logger,
	}, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

// EnsureModel checks that the configured model is present locally, pulling
// it if missing. Pull progress is logged at debug. Failure here is reported
// to the caller, who logs it and moves on: individual Embed calls will then
// fail with their own errors.
func (c *Client) EnsureModel(ctx context.Context) error {
	list, err := c.api.List(ctx)
	if err != nil {
		return fmt.Errorf("listing models: %w", err)
	}
	for _, m := range list.Models {
		if m.Name == c.model || strings.TrimSuffix(m.Name, ":latest") == c.model {
			return nil
		}
	}

	c.logger.Info("pulling embedding model", "model", c.model)
	err = c.api.Pull(ctx, &api.PullRequest{Model: c.model}, func(p api.ProgressResponse) error {
		c.logger.Debug("pull progress", "status", p.Status, "completed", p.Completed, "total", p.Total)
		return nil
	})
	if err != nil {
		return fmt.Errorf("pulling model %q: %w", c.model, err)
	}
	return nil
}

// Embed returns the vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.api.Embeddings(ctx, &api.EmbeddingRequest{
		Model:  c.model,
		Prompt: text,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	if len(resp.Embedding) == 0 {
		return nil, ErrNoEmbedding
	}

	vec := make([]float32, len(resp.Embedding))
	for i, v := range resp.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}
