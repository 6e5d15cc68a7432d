// Package server implements the agent-rag MCP server.
//
// Four tools are exposed: ask_project_document, get_store_info,
// ask_code_pattern, and tell_code_pattern, plus a schema-template helper.
// Handlers follow the net/http.Handler style: direct inline handling, no
// conversion layer. Every expected failure becomes a user-facing text
// result; handlers never surface an exception to the transport for a
// condition the calling agent can act on.
//
// The server owns the process-wide state handles (document store, experience
// store, generator). They are established once at startup and read-only
// afterwards, so handlers need no locking.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/krz-tech/agent-rag/internal/experience"
)

// Generator is the generation surface handlers consume. Satisfied by
// *retrieval.Client.
type Generator interface {
	// Ask answers a question using only the given store's contents.
	Ask(ctx context.Context, question, storeID string) (string, error)

	// Generate runs an unscoped completion for reasoning over retrieved
	// experience context.
	Generate(ctx context.Context, prompt string) (string, error)
}

// Experiences is the experience-store surface handlers consume. Satisfied by
// *experience.Store.
type Experiences interface {
	Add(ctx context.Context, rec experience.Record) (string, error)
	Search(ctx context.Context, queryText string, limit int) ([]experience.Match, error)
}

// StoreHandle identifies the resolved document store.
type StoreHandle struct {
	DisplayName string
	ID          string
}

// Config holds server construction parameters. Generator, Experiences and
// DocStore may each be nil: the corresponding tools then report themselves
// unavailable instead of failing.
type Config struct {
	Name    string
	Version string
	Logger  *slog.Logger

	Generator   Generator
	Experiences Experiences
	DocStore    *StoreHandle
}

// Server wraps the MCP SDK server and the tool state handles.
type Server struct {
	mcpServer   *mcp.Server
	logger      *slog.Logger
	gen         Generator
	experiences Experiences
	docStore    *StoreHandle
}

const instructions = `This server provides retrieval-augmented tools for AI coding agents.

Use ask_project_document to get answers grounded in the indexed project
documentation. Use ask_code_pattern to retrieve advice based on previously
recorded coding experiences, and tell_code_pattern to report the outcome of
a coding attempt so future requests can learn from it.`

// New creates the MCP server and registers all tools.
func New(cfg Config) (*Server, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("server name is required")
	}
	if cfg.Version == "" {
		return nil, fmt.Errorf("server version is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, &mcp.ServerOptions{Instructions: instructions}),
		logger:      cfg.Logger,
		gen:         cfg.Generator,
		experiences: cfg.Experiences,
		docStore:    cfg.DocStore,
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("registering tools: %w", err)
	}
	return s, nil
}

// Run serves MCP on the given transport. Blocking.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.mcpServer.Run(ctx, transport)
}

// MCP exposes the underlying SDK server for HTTP handler construction.
func (s *Server) MCP() *mcp.Server {
	return s.mcpServer
}

// streamableHandler builds the bare streamable HTTP transport handler.
// Every request is served by the same stateful server instance.
func (s *Server) streamableHandler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcpServer
	}, nil)
}

// AskDocumentInput is the input schema for ask_project_document.
type AskDocumentInput struct {
	Question string `json:"question" jsonschema:"Your question about the project documentation. Be specific for better results."`
}

// CodePatternInput is the input schema for ask_code_pattern and
// tell_code_pattern.
type CodePatternInput struct {
	RequestData string `json:"request_data" jsonschema:"Request payload in the compact structured format or JSON, with a top-level 'request' key."`
}

// EmptyInput is the input schema for tools taking no arguments.
type EmptyInput struct{}

func (s *Server) registerTools() error {
	askDocSchema, err := jsonschema.For[AskDocumentInput](nil)
	if err != nil {
		return fmt.Errorf("schema for ask_project_document: %w", err)
	}
	patternSchema, err := jsonschema.For[CodePatternInput](nil)
	if err != nil {
		return fmt.Errorf("schema for code pattern tools: %w", err)
	}
	emptySchema, err := jsonschema.For[EmptyInput](nil)
	if err != nil {
		return fmt.Errorf("schema for empty input: %w", err)
	}

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: "ask_project_document",
		Description: "Ask questions about the project documentation. " +
			"Answers are generated from semantic search over the indexed documents.",
		InputSchema: askDocSchema,
	}, s.AskDocument)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_store_info",
		Description: "Get the display name and backend id of the current document store.",
		InputSchema: emptySchema,
	}, s.GetStoreInfo)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: "ask_code_pattern",
		Description: "Ask for code pattern advice grounded in previously recorded " +
			"coding experiences. Read-only: nothing is stored.",
		InputSchema: patternSchema,
	}, s.AskCodePattern)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: "tell_code_pattern",
		Description: "Report the outcome of a coding attempt so it can be learned. " +
			"Failure reports additionally retrieve remediation advice from prior successes.",
		InputSchema: patternSchema,
	}, s.TellCodePattern)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_request_schema_template",
		Description: "Get the payload template for ask_code_pattern and tell_code_pattern requests.",
		InputSchema: emptySchema,
	}, s.GetRequestSchemaTemplate)

	return nil
}

// textResult builds a success text response.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// errorResult builds a user-facing failure response. The text is the whole
// contract: no stack traces, no internal detail beyond the message.
func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}
}
