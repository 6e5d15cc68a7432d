package request

import (
	"errors"
	"testing"
)

const yamlPayload = `
request:
  language: go
  framework: chi
  design_context:
    pattern: middleware
  content:
    feature_details: request logging
    result: SUCCESS
    code:
      summary: wrap handler
  reproduction:
    input_sample: GET /items
  metrics:
    execution_time_ms: 42
`

const jsonPayload = `{
  "request": {
    "language": "go",
    "framework": "chi",
    "design_context": {"pattern": "middleware"},
    "content": {
      "feature_details": "request logging",
      "result": "SUCCESS",
      "code": {"summary": "wrap handler"}
    },
    "reproduction": {"input_sample": "GET /items"},
    "metrics": {"execution_time_ms": 42}
  }
}`

func TestParseFormatsAgree(t *testing.T) {
	doubleEncoded := `"{\"request\": {\"language\": \"go\", \"framework\": \"chi\", \"design_context\": {\"pattern\": \"middleware\"}, \"content\": {\"feature_details\": \"request logging\", \"result\": \"SUCCESS\"}, \"metrics\": {\"execution_time_ms\": 42}}}"`

	for _, tt := range []struct {
		name string
		raw  string
	}{
		{"yaml", yamlPayload},
		{"json", jsonPayload},
		{"double encoded json", doubleEncoded},
	} {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse(tt.raw)
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if got := p.Language(); got != "go" {
				t.Errorf("Language() = %q, want go", got)
			}
			if got := p.Framework(); got != "chi" {
				t.Errorf("Framework() = %q, want chi", got)
			}
			if got := p.Pattern(); got != "middleware" {
				t.Errorf("Pattern() = %q, want middleware", got)
			}
			if !p.IsSuccess() {
				t.Error("IsSuccess() = false, want true")
			}
			if got := p.ExecutionTimeMS(); got != 42 {
				t.Errorf("ExecutionTimeMS() = %v, want 42", got)
			}
		})
	}
}

func TestParseUnparsable(t *testing.T) {
	for _, raw := range []string{
		"not a valid payload {{{",
		`"just a plain string"`,
		"[1, 2, 3]",
		"",
	} {
		p, err := Parse(raw)
		if !errors.Is(err, ErrUnparsable) {
			t.Errorf("Parse(%q) error = %v, want ErrUnparsable", raw, err)
		}
		if p != nil {
			t.Errorf("Parse(%q) returned non-nil payload on error", raw)
		}
	}
}

func TestAccessorsOnMissingFields(t *testing.T) {
	p, err := Parse(`{"request": {}}`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if p.Language() != "" || p.Framework() != "" || p.Pattern() != "" {
		t.Error("missing fields should yield empty strings")
	}
	if p.IsSuccess() {
		t.Error("missing result should not be success")
	}
	if p.Result() == ResultFailed {
		t.Error("missing result should not read as FAILED")
	}
	if p.ExecutionTimeMS() != 0 {
		t.Error("missing metrics should yield 0")
	}
	if p.Code() != nil || p.InputSample() != nil {
		t.Error("missing structures should be nil")
	}
}

func TestResultTokenIsStrict(t *testing.T) {
	for _, result := range []string{"success", "Success", "OK", "FAILED", ""} {
		p := Payload{"request": map[string]any{
			"content": map[string]any{"result": result},
		}}
		if p.IsSuccess() {
			t.Errorf("result %q should not count as success", result)
		}
	}
}

func TestParseYAMLIntegerMetrics(t *testing.T) {
	// The YAML decoder hands integers through as int, not float64.
	p, err := Parse("request:\n  metrics:\n    execution_time_ms: 7\n")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if got := p.ExecutionTimeMS(); got != 7 {
		t.Errorf("ExecutionTimeMS() = %v, want 7", got)
	}
}
