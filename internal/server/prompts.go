package server

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/krz-tech/agent-rag/internal/experience"
	"github.com/krz-tech/agent-rag/internal/request"
)

// searchQuery builds the free-text query the experience store is searched
// with. Mirrors Record.EmbedText so stored records and queries live in the
// same embedding space.
func searchQuery(p request.Payload) string {
	return fmt.Sprintf("Language: %s Framework: %s Pattern: %s Feature: %s",
		p.Language(), p.Framework(), p.Pattern(), p.FeatureDetails())
}

// formatMatches renders search hits into the context block embedded in
// reasoning prompts.
func formatMatches(matches []experience.Match) string {
	if len(matches) == 0 {
		return "No similar past experiences found.\n"
	}

	var b strings.Builder
	b.WriteString("Found similar past experiences:\n")
	for i, m := range matches {
		fmt.Fprintf(&b, "\n--- Experience %d (Distance: %.4f) ---\n", i+1, m.Distance)
		fmt.Fprintf(&b, "Language: %s\n", m.Language)
		fmt.Fprintf(&b, "Framework: %s\n", m.Framework)
		fmt.Fprintf(&b, "Pattern: %s\n", m.Pattern)
		fmt.Fprintf(&b, "Code Result: %s\n", m.CodeResult)
		fmt.Fprintf(&b, "Success: %t\n", m.Success)
	}
	return b.String()
}

// requestJSON renders the request body for prompt embedding. Marshal errors
// degrade to an empty object; the prompt still carries the context block.
func requestJSON(p request.Payload) string {
	body, err := json.MarshalIndent(p.Request(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(body)
}

// advicePrompt asks the model for pattern guidance grounded in retrieved
// experiences.
func advicePrompt(p request.Payload, matches []experience.Match) string {
	return fmt.Sprintf(`You are an expert software engineer assistant.
Analyze the following request and the provided past experiences.
Use the past experiences to recommend the best code pattern for the request.

CURRENT REQUEST:
%s

PAST EXPERIENCES:
%s

Provide a helpful response, including code examples if applicable.`,
		requestJSON(p), formatMatches(matches))
}

// remediationPrompt asks the model to explain a reported failure using only
// prior successful experiences as grounding.
func remediationPrompt(p request.Payload, successes []experience.Match) string {
	return fmt.Sprintf(`You are an expert software engineer assistant.
The following request reports a FAILED coding attempt.
Prior successful experiences with the same pattern are listed below.
Explain the likely cause of the failure and suggest a fix grounded in those successes.

FAILED REQUEST:
%s

PRIOR SUCCESSFUL EXPERIENCES:
%s

Keep the suggestion concrete and include corrected code where possible.`,
		requestJSON(p), formatMatches(successes))
}
