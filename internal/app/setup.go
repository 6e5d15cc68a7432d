package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/schollz/progressbar/v3"

	"github.com/krz-tech/agent-rag/internal/config"
	"github.com/krz-tech/agent-rag/internal/docsource"
	"github.com/krz-tech/agent-rag/internal/embedding"
	"github.com/krz-tech/agent-rag/internal/experience"
	"github.com/krz-tech/agent-rag/internal/retrieval"
	"github.com/krz-tech/agent-rag/internal/server"
	"github.com/krz-tech/agent-rag/internal/storename"
)

// setupExperiences wires the embedding client and the pgvector store. Any
// failure returns nil; the code-pattern tools then report themselves
// unavailable.
func setupExperiences(ctx context.Context, cfg *config.Config, logger *slog.Logger) *experience.Store {
	embedder, err := embedding.New(cfg.OllamaHost, cfg.OllamaModel, logger)
	if err != nil {
		logger.Warn("experience store unavailable: bad ollama host", "error", err)
		return nil
	}

	// A failed pull is survivable when the model is already present locally,
	// so this only warns.
	if err := embedder.EnsureModel(ctx); err != nil {
		logger.Warn("could not ensure embedding model", "model", embedder.Model(), "error", err)
	}

	store, err := experience.Connect(ctx, cfg.DatabaseURL, embedder, logger)
	if err != nil {
		logger.Warn("experience store unavailable", "error", err)
		return nil
	}

	logger.Info("experience store ready", "embedding_model", embedder.Model())
	return store
}

// documentIndexer is the slice of the retrieval client the startup path
// uses. Satisfied by *retrieval.Client.
type documentIndexer interface {
	FindStore(ctx context.Context, displayName string) (id string, ok bool, err error)
	DeleteStore(ctx context.Context, id string, force bool) error
	GetOrCreateStore(ctx context.Context, displayName string) (string, error)
	Upload(ctx context.Context, files []string, storeID string, onProgress retrieval.ProgressFunc) ([]string, error)
}

// resolveDocumentStore finds or builds the file-search store for the
// configured documentation source.
//
// An existing store is reused as-is unless force reindex is set: reuse skips
// cloning and uploading entirely, so restarts stay fast and free.
func resolveDocumentStore(ctx context.Context, cfg *config.Config, gen documentIndexer, logger *slog.Logger) (*server.StoreHandle, error) {
	name := storeName(cfg)

	id, exists, err := gen.FindStore(ctx, name)
	if err != nil {
		return nil, err
	}

	if exists && !cfg.ForceReindex {
		logger.Info("reusing existing document store", "store", name, "id", id)
		return &server.StoreHandle{DisplayName: name, ID: id}, nil
	}

	if exists && cfg.ForceReindex {
		logger.Info("force reindex requested, deleting existing store", "store", name)
		if err := gen.DeleteStore(ctx, id, true); err != nil {
			return nil, fmt.Errorf("deleting store for reindex: %w", err)
		}
	}

	files, cleanup, err := loadDocuments(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	id, err = gen.GetOrCreateStore(ctx, name)
	if err != nil {
		return nil, err
	}

	uploaded, err := gen.Upload(ctx, files, id, uploadProgress(len(files)))
	if err != nil {
		return nil, fmt.Errorf("indexing documents: %w", err)
	}
	logger.Info("document store indexed", "store", name, "files", len(uploaded))

	return &server.StoreHandle{DisplayName: name, ID: id}, nil
}

// storeName resolves the display name: explicit override first, then the
// repository URL, then the local path.
func storeName(cfg *config.Config) string {
	switch {
	case cfg.StoreName != "":
		return cfg.StoreName
	case cfg.RepoURL != "":
		return storename.FromURL(cfg.RepoURL)
	default:
		return storename.FromPath(cfg.LocalDocsPath)
	}
}

// loadDocuments collects the document files from the configured source. The
// repository source takes precedence; its cleanup removes the clone.
func loadDocuments(ctx context.Context, cfg *config.Config) ([]string, func(), error) {
	if cfg.RepoURL != "" {
		return docsource.LoadFromRepository(ctx, cfg.RepoURL, cfg.DocsPath, cfg.Branch, docsource.DefaultCloneTimeout)
	}
	files, err := docsource.LoadFromLocal(cfg.LocalDocsPath)
	return files, func() {}, err
}

// uploadProgress renders an indexing progress bar on stderr. Stdout stays
// reserved for MCP framing.
func uploadProgress(total int) retrieval.ProgressFunc {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("indexing"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	return func(current, total int, filename string) {
		bar.Describe(fmt.Sprintf("indexing %s", filename))
		_ = bar.Add(1)
	}
}
