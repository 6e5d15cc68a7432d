package server

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/krz-tech/agent-rag/internal/experience"
	"github.com/krz-tech/agent-rag/internal/request"
)

// answerTimeout bounds document answering and reasoning calls. A timed-out
// call produces a distinct message so the agent can retry with a narrower
// query instead of assuming the backend is down.
const answerTimeout = 60 * time.Second

// Fixed user-facing messages. These are contract: tests and agents match on
// them.
const (
	msgDocsNotInitialized = "Error: Document store is not initialized. " +
		"Configure RAG_REPO_URL or RAG_LOCAL_DOCS_PATH and restart the server."
	msgAnswerTimeout = "Error: Processing timed out (60s limit). " +
		"Please try a more specific query."
	msgNoStore = "No document store is currently initialized."
	msgExperienceUnavailable = "Error: Experience store is not available " +
		"(database connection failed)."
	msgGeneratorUnavailable = "Error: Generative client is not available."
	msgParseFailure         = "Error: could not parse request_data. " +
		"Provide the compact structured format or JSON with a top-level 'request' key."
	msgNoPrecedent = "No prior successful experience found for this pattern."
)

//go:embed request_schema.yaml
var requestSchemaTemplate string

// AskDocument handles the ask_project_document tool call.
func (s *Server) AskDocument(ctx context.Context, _ *mcp.CallToolRequest, in AskDocumentInput) (*mcp.CallToolResult, any, error) {
	if s.gen == nil || s.docStore == nil {
		return errorResult(msgDocsNotInitialized), nil, nil
	}

	askCtx, cancel := context.WithTimeout(ctx, answerTimeout)
	defer cancel()

	answer, err := s.gen.Ask(askCtx, in.Question, s.docStore.ID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return errorResult(msgAnswerTimeout), nil, nil
		}
		s.logger.Warn("documentation query failed", "error", err)
		return errorResult(fmt.Sprintf("Error: documentation query failed: %v", err)), nil, nil
	}
	return textResult(answer), nil, nil
}

// GetStoreInfo handles the get_store_info tool call.
func (s *Server) GetStoreInfo(_ context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, any, error) {
	if s.docStore == nil {
		return textResult(msgNoStore), nil, nil
	}
	return textResult(fmt.Sprintf("Document Store: %s\nStore ID: %s",
		s.docStore.DisplayName, s.docStore.ID)), nil, nil
}

// GetRequestSchemaTemplate handles the get_request_schema_template tool call.
func (s *Server) GetRequestSchemaTemplate(_ context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, any, error) {
	return textResult(requestSchemaTemplate), nil, nil
}

// AskCodePattern handles the ask_code_pattern tool call. Read/advise only:
// it searches prior experiences and reasons over them, never writes.
func (s *Server) AskCodePattern(ctx context.Context, _ *mcp.CallToolRequest, in CodePatternInput) (*mcp.CallToolResult, any, error) {
	if s.experiences == nil {
		return errorResult(msgExperienceUnavailable), nil, nil
	}
	if s.gen == nil {
		return errorResult(msgGeneratorUnavailable), nil, nil
	}

	payload, err := request.Parse(in.RequestData)
	if err != nil {
		return errorResult(msgParseFailure), nil, nil
	}

	matches, err := s.experiences.Search(ctx, searchQuery(payload), experience.DefaultSearchLimit)
	if err != nil {
		s.logger.Warn("experience search failed", "error", err)
		return errorResult(fmt.Sprintf("Error: experience search failed: %v", err)), nil, nil
	}

	genCtx, cancel := context.WithTimeout(ctx, answerTimeout)
	defer cancel()

	advice, err := s.gen.Generate(genCtx, advicePrompt(payload, matches))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return errorResult(msgAnswerTimeout), nil, nil
		}
		s.logger.Warn("pattern reasoning failed", "error", err)
		return errorResult(fmt.Sprintf("Error: pattern analysis failed: %v", err)), nil, nil
	}
	return textResult(advice), nil, nil
}

// TellCodePattern handles the tell_code_pattern tool call: the learn
// side-effect. The record is stored unconditionally; failure reports
// additionally look for prior successes to ground a remediation suggestion.
func (s *Server) TellCodePattern(ctx context.Context, _ *mcp.CallToolRequest, in CodePatternInput) (*mcp.CallToolResult, any, error) {
	if s.experiences == nil {
		return errorResult(msgExperienceUnavailable), nil, nil
	}

	payload, err := request.Parse(in.RequestData)
	if err != nil {
		return errorResult(msgParseFailure), nil, nil
	}

	rec := experience.RecordFromPayload(payload)
	id, err := s.experiences.Add(ctx, rec)
	if err != nil {
		s.logger.Warn("recording experience failed", "error", err)
		return errorResult(fmt.Sprintf("Error: failed to record experience: %v", err)), nil, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Experience recorded (ID: %s).", id)

	switch {
	case payload.IsSuccess():
		b.WriteString("\nSuccess acknowledged. This pattern is now retrievable for future requests.")

	case payload.Result() == request.ResultFailed:
		advice, adviceErr := s.remediate(ctx, payload)
		if adviceErr != nil {
			s.logger.Warn("remediation lookup failed", "error", adviceErr)
			fmt.Fprintf(&b, "\nRemediation lookup failed: %v", adviceErr)
		} else {
			b.WriteString("\n" + advice)
		}
	}

	return textResult(b.String()), nil, nil
}

// remediate searches prior successful experiences matching the failed
// request and, when any exist, asks the generator for a grounded fix.
func (s *Server) remediate(ctx context.Context, payload request.Payload) (string, error) {
	matches, err := s.experiences.Search(ctx, searchQuery(payload), experience.DefaultSearchLimit)
	if err != nil {
		return "", fmt.Errorf("searching precedents: %w", err)
	}

	var successes []experience.Match
	for _, m := range matches {
		if m.Success {
			successes = append(successes, m)
		}
	}
	if len(successes) == 0 {
		return msgNoPrecedent, nil
	}

	if s.gen == nil {
		return msgGeneratorUnavailable, nil
	}

	genCtx, cancel := context.WithTimeout(ctx, answerTimeout)
	defer cancel()

	advice, err := s.gen.Generate(genCtx, remediationPrompt(payload, successes))
	if err != nil {
		return "", fmt.Errorf("generating remediation: %w", err)
	}
	return advice, nil
}
