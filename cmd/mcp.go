package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	mcpSdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/krz-tech/agent-rag/internal/app"
	"github.com/krz-tech/agent-rag/internal/config"
	"github.com/krz-tech/agent-rag/internal/server"
)

const serverName = "agent-rag"

// runMCP initializes and starts the MCP server on stdio transport.
func runMCP() error {
	cfg, err := config.Get()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("starting MCP server", "version", Version)

	a := app.Setup(ctx, cfg, slog.Default())
	defer a.Close()

	srv, err := server.New(a.ServerConfig(serverName, Version))
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	slog.Info("MCP server ready", "name", serverName, "version", Version, "transport", "stdio")

	if err := srv.Run(ctx, &mcpSdk.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server error: %w", err)
	}

	slog.Info("MCP server shut down gracefully")
	return nil
}
