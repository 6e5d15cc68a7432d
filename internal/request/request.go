// Package request decodes tool-call payloads for the code-pattern tools.
//
// Agents send payloads in whichever serialization costs them the fewest
// tokens, so decoding is an explicit ordered list of attempts: the compact
// line-oriented format (YAML), then JSON, then JSON that was itself
// JSON-encoded (a common client mistake). The first attempt producing a
// mapping wins. Anything else collapses to ErrUnparsable; the parser never
// panics and never lets a decode error escape as anything but that sentinel.
package request

import (
	"encoding/json"
	"errors"

	"gopkg.in/yaml.v3"
)

// ErrUnparsable indicates the payload is not a mapping in any accepted
// format. Callers render a user-facing message; they never crash the tool
// call.
var ErrUnparsable = errors.New("request payload is not valid YAML or JSON")

// Canonical result tokens. Success is derived strictly from ResultSuccess;
// any other or missing value is failure/unknown.
const (
	ResultSuccess = "SUCCESS"
	ResultFailed  = "FAILED"
)

// Payload is a decoded request mapping. Accessors are permissive: unknown or
// missing fields yield zero values, mirroring the loosely validated schema.
type Payload map[string]any

// Parse decodes raw into a Payload.
func Parse(raw string) (Payload, error) {
	// Attempt 1: compact line-oriented format. YAML also accepts most JSON,
	// which is fine; both routes end at the same mapping.
	var m map[string]any
	if err := yaml.Unmarshal([]byte(raw), &m); err == nil && m != nil {
		return Payload(m), nil
	}

	// Attempt 2: JSON, including the double-encoded case where the document
	// is a JSON string containing JSON.
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		switch t := v.(type) {
		case map[string]any:
			return Payload(t), nil
		case string:
			var inner map[string]any
			if err := json.Unmarshal([]byte(t), &inner); err == nil && inner != nil {
				return Payload(inner), nil
			}
		}
	}

	return nil, ErrUnparsable
}

// Request returns the nested "request" mapping, or nil.
func (p Payload) Request() map[string]any {
	return asMap(p["request"])
}

// Language returns request.language.
func (p Payload) Language() string {
	return asString(p.Request()["language"])
}

// Framework returns request.framework.
func (p Payload) Framework() string {
	return asString(p.Request()["framework"])
}

// Pattern returns request.design_context.pattern.
func (p Payload) Pattern() string {
	return asString(asMap(p.Request()["design_context"])["pattern"])
}

// FeatureDetails returns request.content.feature_details.
func (p Payload) FeatureDetails() string {
	return asString(asMap(p.Request()["content"])["feature_details"])
}

// Result returns request.content.result.
func (p Payload) Result() string {
	return asString(asMap(p.Request()["content"])["result"])
}

// IsSuccess reports whether the payload declares the canonical success token.
func (p Payload) IsSuccess() bool {
	return p.Result() == ResultSuccess
}

// Code returns request.content.code, which may be any structure.
func (p Payload) Code() any {
	return asMap(p.Request()["content"])["code"]
}

// InputSample returns request.reproduction.input_sample.
func (p Payload) InputSample() any {
	return asMap(p.Request()["reproduction"])["input_sample"]
}

// ExecutionTimeMS returns request.metrics.execution_time_ms, tolerating the
// integer/float ambiguity of both decoders.
func (p Payload) ExecutionTimeMS() float64 {
	switch v := asMap(p.Request()["metrics"])["execution_time_ms"].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
