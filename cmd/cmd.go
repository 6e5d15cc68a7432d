// Package cmd provides the CLI commands for the agent-rag server.
//
// Commands:
//   - mcp: MCP server on stdio transport (for IDE/agent integration)
//   - serve: MCP server over streamable HTTP
//
// Signal handling and graceful shutdown are implemented for both commands
// via context cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/krz-tech/agent-rag/internal/log"
)

// Execute is the main entry point for the agent-rag CLI.
func Execute() error {
	// Initialize logger once at entry point. Stderr only: stdout carries the
	// MCP protocol in stdio mode.
	slog.SetDefault(log.New(log.Config{
		Level: logLevel(),
	}))

	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "mcp":
		return runMCP()
	case "serve":
		return runServe()
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

func logLevel() slog.Level {
	if os.Getenv("DEBUG") != "" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("agent-rag - Retrieval-augmented MCP server for coding agents")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  agent-rag mcp          Start MCP server on stdio (for Claude Desktop/Cursor)")
	fmt.Println("  agent-rag serve [addr] Start MCP server over HTTP (default: 127.0.0.1:8080)")
	fmt.Println("  agent-rag --version    Show version information")
	fmt.Println("  agent-rag --help       Show this help")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY         Required: Gemini API key")
	fmt.Println("  RAG_REPO_URL           Git repository to index documentation from")
	fmt.Println("  RAG_DOCS_PATH          Docs subfolder within the repository (default: Docs)")
	fmt.Println("  RAG_BRANCH             Branch to clone (default: main)")
	fmt.Println("  RAG_LOCAL_DOCS_PATH    Local docs folder (alternative to RAG_REPO_URL)")
	fmt.Println("  RAG_STORE_NAME         Override the derived document store name")
	fmt.Println("  RAG_FORCE_REINDEX      Rebuild the store even if it already exists")
	fmt.Println("  DATABASE_URL           PostgreSQL URL for the experience store")
	fmt.Println("  OLLAMA_HOST            Ollama base URL (default: http://localhost:11434)")
	fmt.Println("  OLLAMA_MODEL           Embedding model (default: nomic-embed-text)")
	fmt.Println("  AUTH_TOKEN             Bearer token required in serve mode when set")
	fmt.Println("  DEBUG                  Enable debug logging")
}
