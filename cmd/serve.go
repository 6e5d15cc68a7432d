package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/krz-tech/agent-rag/internal/app"
	"github.com/krz-tech/agent-rag/internal/config"
	"github.com/krz-tech/agent-rag/internal/server"
)

// defaultAddr is the default listen address for serve mode.
const defaultAddr = "127.0.0.1:8080"

// Server timeout configuration.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 2 * time.Minute // streamable HTTP keeps responses open
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 30 * time.Second
)

// runServe initializes and starts the MCP server over streamable HTTP.
func runServe() error {
	cfg, err := config.Get()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	addr := defaultAddr
	if len(os.Args) > 2 {
		addr = os.Args[2]
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := slog.Default()
	logger.Info("starting HTTP MCP server", "version", Version)

	a := app.Setup(ctx, cfg, logger)
	defer a.Close()

	srv, err := server.New(a.ServerConfig(serverName, Version))
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.HTTPHandler(cfg.AuthToken),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	logger.Info("HTTP server ready", "addr", addr, "auth", cfg.IsAuthEnabled())

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down HTTP server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server: %w", err)
	}
}
