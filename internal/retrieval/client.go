// Package retrieval wraps the Gemini backend for document question answering
// and plain prompt completion.
//
// Document answering runs against a named file-search store: files are
// uploaded once (each ingestion operation polled to completion) and questions
// are answered with generation scoped to the store's contents. The backend
// seam is an interface so tests exercise the orchestration (memoization,
// polling, progress) without network access; gemini.go adapts the real SDK.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/krz-tech/agent-rag/internal/config"
)

// NoAnswerFallback is returned when the backend produces empty text for a
// document question. An empty answer is not an error.
const NoAnswerFallback = "No answer found in the documents."

// Default polling parameters for asynchronous ingestion operations.
const (
	DefaultPollInterval = 2 * time.Second
	DefaultMaxPollWait  = 10 * time.Minute
)

// StoreInfo identifies a file-search store: the backend-assigned resource
// name plus the human-chosen display name.
type StoreInfo struct {
	ID          string
	DisplayName string
}

// Operation is an asynchronous ingestion handle polled until completion.
type Operation interface {
	Done() bool
}

// backend is the slice of the Gemini SDK this package consumes. Interfaces
// live with the consumer; the production implementation is geminiBackend.
type backend interface {
	ListStores(ctx context.Context) ([]StoreInfo, error)
	CreateStore(ctx context.Context, displayName string) (string, error)
	DeleteStore(ctx context.Context, id string, force bool) error
	StartUpload(ctx context.Context, path, storeID string) (Operation, error)
	PollUpload(ctx context.Context, op Operation) (Operation, error)
	Generate(ctx context.Context, model, prompt string, opts GenerateOptions) (string, error)
}

// GenerateOptions scope a generation call. A non-empty StoreID attaches the
// file-search tool restricted to that store.
type GenerateOptions struct {
	StoreID     string
	Temperature *float32
}

// ProgressFunc receives (index starting at 1, total, filename) before each
// file upload starts. Operator feedback only, never flow control.
type ProgressFunc func(current, total int, filename string)

// Client orchestrates file-search stores and generation.
//
// Client is safe for concurrent use; the memoized current-store id is the
// only mutable state.
type Client struct {
	api            backend
	logger         *slog.Logger
	answerModel    string
	reasoningModel string
	pollInterval   time.Duration
	maxPollWait    time.Duration

	mu           sync.Mutex
	currentStore string
}

// NewClient constructs a Client against the real Gemini backend. The API key
// is required here, at the point of use.
func NewClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Client, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, config.ErrMissingAPIKey
	}
	api, err := newGeminiBackend(ctx, cfg.GeminiAPIKey)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return newClient(api, cfg.AnswerModel, cfg.ReasoningModel, logger), nil
}

// newClient wires an arbitrary backend; tests inject fakes here.
func newClient(api backend, answerModel, reasoningModel string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if answerModel == "" {
		answerModel = config.DefaultAnswerModel
	}
	if reasoningModel == "" {
		reasoningModel = config.DefaultReasoningModel
	}
	return &Client{
		api:            api,
		logger:         logger,
		answerModel:    answerModel,
		reasoningModel: reasoningModel,
		pollInterval:   DefaultPollInterval,
		maxPollWait:    DefaultMaxPollWait,
	}
}

// FindStore scans the backend's store list for an exact display-name match.
func (c *Client) FindStore(ctx context.Context, displayName string) (id string, ok bool, err error) {
	stores, err := c.api.ListStores(ctx)
	if err != nil {
		return "", false, fmt.Errorf("listing stores: %w", err)
	}
	for _, s := range stores {
		if s.DisplayName == displayName {
			return s.ID, true, nil
		}
	}
	return "", false, nil
}

// CreateStore creates a new empty store and returns its backend id.
func (c *Client) CreateStore(ctx context.Context, displayName string) (string, error) {
	id, err := c.api.CreateStore(ctx, displayName)
	if err != nil {
		return "", fmt.Errorf("creating store %q: %w", displayName, err)
	}
	return id, nil
}

// GetOrCreateStore returns the id of the store named displayName, creating
// it if absent, and memoizes it as the client's current store. Calling twice
// with the same name returns the same id.
func (c *Client) GetOrCreateStore(ctx context.Context, displayName string) (string, error) {
	id, ok, err := c.FindStore(ctx, displayName)
	if err != nil {
		return "", err
	}
	if !ok {
		id, err = c.CreateStore(ctx, displayName)
		if err != nil {
			return "", err
		}
	}
	c.mu.Lock()
	c.currentStore = id
	c.mu.Unlock()
	return id, nil
}

// CurrentStore returns the memoized store id, if any.
func (c *Client) CurrentStore() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentStore
}

// Upload submits files for ingestion in input order, polling each operation
// to completion, and returns the names of the files that were uploaded.
// Files that no longer exist are skipped. Uploads are intentionally
// sequential: indexing happens once at startup and predictable progress
// beats throughput there.
func (c *Client) Upload(ctx context.Context, files []string, storeID string, onProgress ProgressFunc) ([]string, error) {
	uploaded := make([]string, 0, len(files))
	total := len(files)

	for i, path := range files {
		name := filepath.Base(path)
		// Skip before reporting progress so a vanished file never shows up
		// as being indexed.
		if _, err := os.Stat(path); err != nil {
			c.logger.Warn("skipping vanished file", "path", path)
			continue
		}
		if onProgress != nil {
			onProgress(i+1, total, name)
		}

		op, err := c.api.StartUpload(ctx, path, storeID)
		if err != nil {
			return uploaded, fmt.Errorf("uploading %s: %w", name, err)
		}
		if err := c.awaitUpload(ctx, op); err != nil {
			return uploaded, fmt.Errorf("ingesting %s: %w", name, err)
		}
		uploaded = append(uploaded, name)
	}
	return uploaded, nil
}

// awaitUpload polls op at pollInterval until done, bounded by maxPollWait.
func (c *Client) awaitUpload(ctx context.Context, op Operation) error {
	deadline := time.Now().Add(c.maxPollWait)
	for !op.Done() {
		if time.Now().After(deadline) {
			return fmt.Errorf("ingestion did not complete within %s", c.maxPollWait)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.pollInterval):
		}
		next, err := c.api.PollUpload(ctx, op)
		if err != nil {
			return fmt.Errorf("polling ingestion: %w", err)
		}
		op = next
	}
	return nil
}

// Ask answers a question using only the given store's contents. Empty
// backend text maps to NoAnswerFallback; backend failures propagate.
func (c *Client) Ask(ctx context.Context, question, storeID string) (string, error) {
	text, err := c.api.Generate(ctx, c.answerModel, question, GenerateOptions{StoreID: storeID})
	if err != nil {
		return "", fmt.Errorf("querying documents: %w", err)
	}
	if text == "" {
		return NoAnswerFallback, nil
	}
	return text, nil
}

// Generate runs an unscoped completion with the reasoning model.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	temp := float32(0.7)
	text, err := c.api.Generate(ctx, c.reasoningModel, prompt, GenerateOptions{Temperature: &temp})
	if err != nil {
		return "", fmt.Errorf("generating content: %w", err)
	}
	return text, nil
}

// DeleteStore deletes a store and clears the memoized current store if it
// matches.
func (c *Client) DeleteStore(ctx context.Context, id string, force bool) error {
	if err := c.api.DeleteStore(ctx, id, force); err != nil {
		return fmt.Errorf("deleting store %s: %w", id, err)
	}
	c.mu.Lock()
	if c.currentStore == id {
		c.currentStore = ""
	}
	c.mu.Unlock()
	return nil
}
