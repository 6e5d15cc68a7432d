// Package app assembles the server's dependencies from configuration.
//
// Setup is deliberately tolerant: each capability (generation, experience
// store, document store) is established independently, and a failure
// downgrades the corresponding tools to "unavailable" responses instead of
// refusing to start. A documentation server with a broken database is still
// a documentation server.
package app

import (
	"context"
	"log/slog"

	"github.com/krz-tech/agent-rag/internal/config"
	"github.com/krz-tech/agent-rag/internal/experience"
	"github.com/krz-tech/agent-rag/internal/retrieval"
	"github.com/krz-tech/agent-rag/internal/server"
)

// App holds the assembled runtime dependencies. Any field may be nil.
type App struct {
	Gen         *retrieval.Client
	Experiences *experience.Store
	DocStore    *server.StoreHandle

	logger *slog.Logger
}

// Setup builds all capabilities. The returned App is always usable; Close
// must be called on it regardless of which capabilities came up.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{logger: logger}

	if cfg.IsAuthEnabled() {
		logger.Info("bearer authentication enabled")
	}

	gen, err := retrieval.NewClient(ctx, cfg, logger)
	if err != nil {
		logger.Warn("generative client unavailable", "error", err)
	} else {
		a.Gen = gen
	}

	a.Experiences = setupExperiences(ctx, cfg, logger)

	if a.Gen == nil {
		logger.Warn("skipping document store setup: no generative client")
	} else if !cfg.HasDocumentSource() {
		logger.Info("no document source configured, document tools disabled")
	} else {
		handle, err := resolveDocumentStore(ctx, cfg, a.Gen, logger)
		if err != nil {
			logger.Warn("document store setup failed, document tools disabled", "error", err)
		} else {
			a.DocStore = handle
		}
	}

	return a
}

// ServerConfig adapts the assembled capabilities into a server.Config,
// leaving interfaces nil rather than holding typed-nil implementations.
func (a *App) ServerConfig(name, version string) server.Config {
	sc := server.Config{
		Name:     name,
		Version:  version,
		Logger:   a.logger,
		DocStore: a.DocStore,
	}
	if a.Gen != nil {
		sc.Generator = a.Gen
	}
	if a.Experiences != nil {
		sc.Experiences = a.Experiences
	}
	return sc
}

// Close releases whatever came up during Setup.
func (a *App) Close() {
	if a.Experiences != nil {
		a.Experiences.Close()
	}
}
