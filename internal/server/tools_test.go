package server

import (
	"context"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/krz-tech/agent-rag/internal/experience"
	"github.com/krz-tech/agent-rag/internal/log"
)

type fakeGenerator struct {
	askAnswer    string
	askErr       error
	askCalls     int
	lastQuestion string
	lastStoreID  string

	genAnswer  string
	genErr     error
	genCalls   int
	lastPrompt string
}

func (g *fakeGenerator) Ask(_ context.Context, question, storeID string) (string, error) {
	g.askCalls++
	g.lastQuestion = question
	g.lastStoreID = storeID
	return g.askAnswer, g.askErr
}

func (g *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.genCalls++
	g.lastPrompt = prompt
	return g.genAnswer, g.genErr
}

type fakeExperiences struct {
	addCalls    int
	lastRecord  experience.Record
	addErr      error
	searchCalls int
	lastQuery   string
	matches     []experience.Match
	searchErr   error
}

func (e *fakeExperiences) Add(_ context.Context, rec experience.Record) (string, error) {
	e.addCalls++
	e.lastRecord = rec
	if e.addErr != nil {
		return "", e.addErr
	}
	return "rec-1", nil
}

func (e *fakeExperiences) Search(_ context.Context, queryText string, _ int) ([]experience.Match, error) {
	e.searchCalls++
	e.lastQuery = queryText
	return e.matches, e.searchErr
}

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	cfg.Name = "agent-rag"
	cfg.Version = "test"
	cfg.Logger = log.NewNop()
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) != 1 {
		t.Fatalf("got %d content items, want 1", len(res.Content))
	}
	tc, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want *mcp.TextContent", res.Content[0])
	}
	return tc.Text
}

const successPayload = `{
  "request": {
    "language": "go",
    "framework": "chi",
    "design_context": {"pattern": "middleware"},
    "content": {"feature_details": "request logging", "result": "SUCCESS"}
  }
}`

const failedPayload = `{
  "request": {
    "language": "go",
    "framework": "chi",
    "design_context": {"pattern": "middleware"},
    "content": {"feature_details": "request logging", "result": "FAILED"}
  }
}`

func TestAskDocumentWithoutStore(t *testing.T) {
	gen := &fakeGenerator{}
	s := newTestServer(t, Config{Generator: gen})

	res, _, err := s.AskDocument(context.Background(), nil, AskDocumentInput{Question: "q"})
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if !res.IsError {
		t.Error("expected IsError result")
	}
	if got := resultText(t, res); got != msgDocsNotInitialized {
		t.Errorf("text = %q", got)
	}
	if gen.askCalls != 0 {
		t.Errorf("askCalls = %d, want 0", gen.askCalls)
	}
}

func TestAskDocument(t *testing.T) {
	gen := &fakeGenerator{askAnswer: "the config lives in config.yaml"}
	s := newTestServer(t, Config{
		Generator: gen,
		DocStore:  &StoreHandle{DisplayName: "my-docs", ID: "stores/my-docs"},
	})

	res, _, err := s.AskDocument(context.Background(), nil, AskDocumentInput{Question: "where is the config?"})
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %s", resultText(t, res))
	}
	if got := resultText(t, res); got != gen.askAnswer {
		t.Errorf("text = %q", got)
	}
	if gen.lastStoreID != "stores/my-docs" {
		t.Errorf("storeID = %q", gen.lastStoreID)
	}
}

func TestAskDocumentTimeout(t *testing.T) {
	gen := &fakeGenerator{askErr: context.DeadlineExceeded}
	s := newTestServer(t, Config{
		Generator: gen,
		DocStore:  &StoreHandle{DisplayName: "d", ID: "stores/d"},
	})

	res, _, err := s.AskDocument(context.Background(), nil, AskDocumentInput{Question: "q"})
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if got := resultText(t, res); got != msgAnswerTimeout {
		t.Errorf("text = %q, want timeout message", got)
	}
}

func TestGetStoreInfo(t *testing.T) {
	s := newTestServer(t, Config{})
	res, _, _ := s.GetStoreInfo(context.Background(), nil, EmptyInput{})
	if got := resultText(t, res); got != msgNoStore {
		t.Errorf("text = %q", got)
	}

	s = newTestServer(t, Config{DocStore: &StoreHandle{DisplayName: "my-docs", ID: "stores/abc"}})
	res, _, _ = s.GetStoreInfo(context.Background(), nil, EmptyInput{})
	got := resultText(t, res)
	if !strings.Contains(got, "my-docs") || !strings.Contains(got, "stores/abc") {
		t.Errorf("text = %q", got)
	}
}

func TestGetRequestSchemaTemplate(t *testing.T) {
	s := newTestServer(t, Config{})
	res, _, _ := s.GetRequestSchemaTemplate(context.Background(), nil, EmptyInput{})
	got := resultText(t, res)
	if !strings.Contains(got, "request:") || !strings.Contains(got, "design_context") {
		t.Errorf("template looks wrong: %q", got)
	}
}

func TestAskCodePatternWithoutStore(t *testing.T) {
	s := newTestServer(t, Config{Generator: &fakeGenerator{}})
	res, _, _ := s.AskCodePattern(context.Background(), nil, CodePatternInput{RequestData: successPayload})
	if got := resultText(t, res); got != msgExperienceUnavailable {
		t.Errorf("text = %q", got)
	}
}

func TestAskCodePatternParseFailure(t *testing.T) {
	exp := &fakeExperiences{}
	s := newTestServer(t, Config{Generator: &fakeGenerator{}, Experiences: exp})

	res, _, _ := s.AskCodePattern(context.Background(), nil, CodePatternInput{RequestData: "not a valid payload {{{"})
	if got := resultText(t, res); got != msgParseFailure {
		t.Errorf("text = %q", got)
	}
	if exp.searchCalls != 0 {
		t.Errorf("searchCalls = %d, want 0", exp.searchCalls)
	}
}

func TestAskCodePattern(t *testing.T) {
	gen := &fakeGenerator{genAnswer: "use chi middleware chaining"}
	exp := &fakeExperiences{matches: []experience.Match{
		{Record: experience.Record{Language: "go", Pattern: "middleware", CodeResult: `{"summary":"wrap"}`, Success: true}, Distance: 0.12},
	}}
	s := newTestServer(t, Config{Generator: gen, Experiences: exp})

	res, _, err := s.AskCodePattern(context.Background(), nil, CodePatternInput{RequestData: successPayload})
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if got := resultText(t, res); got != gen.genAnswer {
		t.Errorf("text = %q", got)
	}

	if !strings.Contains(exp.lastQuery, "Language: go") || !strings.Contains(exp.lastQuery, "Pattern: middleware") {
		t.Errorf("search query = %q", exp.lastQuery)
	}
	if !strings.Contains(gen.lastPrompt, `"language": "go"`) {
		t.Errorf("prompt missing request body: %q", gen.lastPrompt)
	}
	if !strings.Contains(gen.lastPrompt, "Distance: 0.1200") {
		t.Errorf("prompt missing match context: %q", gen.lastPrompt)
	}
}

func TestTellCodePatternSuccess(t *testing.T) {
	gen := &fakeGenerator{}
	exp := &fakeExperiences{}
	s := newTestServer(t, Config{Generator: gen, Experiences: exp})

	res, _, err := s.TellCodePattern(context.Background(), nil, CodePatternInput{RequestData: successPayload})
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	got := resultText(t, res)
	if !strings.Contains(got, "rec-1") {
		t.Errorf("text missing record id: %q", got)
	}
	if exp.addCalls != 1 {
		t.Errorf("addCalls = %d, want 1", exp.addCalls)
	}
	if !exp.lastRecord.Success {
		t.Error("stored record should be marked successful")
	}
	// A success report never triggers retrieval or generation.
	if exp.searchCalls != 0 || gen.genCalls != 0 {
		t.Errorf("searchCalls = %d, genCalls = %d, want 0/0", exp.searchCalls, gen.genCalls)
	}
}

func TestTellCodePatternFailureWithPrecedent(t *testing.T) {
	gen := &fakeGenerator{genAnswer: "the middleware order was wrong"}
	exp := &fakeExperiences{matches: []experience.Match{
		{Record: experience.Record{Pattern: "middleware", Success: false}, Distance: 0.1},
		{Record: experience.Record{Pattern: "middleware", Success: true, CodeResult: "good code"}, Distance: 0.2},
	}}
	s := newTestServer(t, Config{Generator: gen, Experiences: exp})

	res, _, err := s.TellCodePattern(context.Background(), nil, CodePatternInput{RequestData: failedPayload})
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	got := resultText(t, res)
	if !strings.Contains(got, "rec-1") || !strings.Contains(got, gen.genAnswer) {
		t.Errorf("text = %q", got)
	}
	if exp.addCalls != 1 {
		t.Errorf("addCalls = %d, want 1 (failures are stored too)", exp.addCalls)
	}
	// Only the successful precedent reaches the remediation prompt.
	if !strings.Contains(gen.lastPrompt, "good code") {
		t.Errorf("prompt missing successful precedent: %q", gen.lastPrompt)
	}
	if strings.Contains(gen.lastPrompt, "Experience 2") {
		t.Errorf("failed match leaked into prompt: %q", gen.lastPrompt)
	}
}

func TestTellCodePatternFailureWithoutPrecedent(t *testing.T) {
	gen := &fakeGenerator{}
	exp := &fakeExperiences{matches: []experience.Match{
		{Record: experience.Record{Pattern: "middleware", Success: false}, Distance: 0.1},
	}}
	s := newTestServer(t, Config{Generator: gen, Experiences: exp})

	res, _, err := s.TellCodePattern(context.Background(), nil, CodePatternInput{RequestData: failedPayload})
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	got := resultText(t, res)
	if !strings.Contains(got, msgNoPrecedent) {
		t.Errorf("text = %q, want no-precedent message", got)
	}
	if gen.genCalls != 0 {
		t.Errorf("genCalls = %d, want 0 (nothing to ground remediation on)", gen.genCalls)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Config{Version: "1"}); err == nil {
		t.Error("missing name should fail")
	}
	if _, err := New(Config{Name: "x"}); err == nil {
		t.Error("missing version should fail")
	}
}

// memoryExperiences is a stateful in-memory store for end-to-end flows.
type memoryExperiences struct {
	records []experience.Record
}

func (e *memoryExperiences) Add(_ context.Context, rec experience.Record) (string, error) {
	e.records = append(e.records, rec)
	return "rec-mem", nil
}

func (e *memoryExperiences) Search(_ context.Context, _ string, _ int) ([]experience.Match, error) {
	var out []experience.Match
	for _, r := range e.records {
		out = append(out, experience.Match{Record: r, Distance: 0.1})
	}
	return out, nil
}

func TestTellThenAskFlow(t *testing.T) {
	gen := &fakeGenerator{genAnswer: "reuse the module-level instance"}
	exp := &memoryExperiences{}
	s := newTestServer(t, Config{Generator: gen, Experiences: exp})

	tell := `{
	  "request": {
	    "language": "python",
	    "framework": "fastapi",
	    "design_context": {"pattern": "singleton"},
	    "content": {
	      "feature_details": "shared settings object",
	      "result": "SUCCESS",
	      "code": {"summary": "module-level instance with lru_cache"}
	    }
	  }
	}`
	if _, _, err := s.TellCodePattern(context.Background(), nil, CodePatternInput{RequestData: tell}); err != nil {
		t.Fatalf("TellCodePattern failed: %v", err)
	}

	ask := `{
	  "request": {
	    "language": "python",
	    "framework": "fastapi",
	    "design_context": {"pattern": "singleton"},
	    "content": {"feature_details": "how to implement a singleton"}
	  }
	}`
	res, _, err := s.AskCodePattern(context.Background(), nil, CodePatternInput{RequestData: ask})
	if err != nil {
		t.Fatalf("AskCodePattern failed: %v", err)
	}
	if got := resultText(t, res); got != gen.genAnswer {
		t.Errorf("text = %q", got)
	}
	// The advice prompt must be grounded in the previously stored pattern.
	if !strings.Contains(gen.lastPrompt, "lru_cache") {
		t.Errorf("prompt missing stored pattern: %q", gen.lastPrompt)
	}
	if !strings.Contains(gen.lastPrompt, "Pattern: singleton") {
		t.Errorf("prompt missing pattern context: %q", gen.lastPrompt)
	}
}
