// Package tools provides the tool registry and the built-in tools offered
// to the reasoning model.
//
// Tools receive their arguments as raw JSON (the model produces them, so
// they are untrusted) and return text. Tools that surface references wrap
// their output in the Envelope so the agent loop can unpack content and
// sources uniformly without per-tool special cases.
package tools

import (
	"context"
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/docent-ai/docent/internal/llm"
)

// Tool is a callable capability exposed to the model.
type Tool interface {
	// Definition returns the tool's name, description and parameter schema.
	// The description is what the model uses to decide when to call it.
	Definition() llm.ToolSpec

	// Execute runs the tool. args is a JSON object; implementations must
	// tolerate missing fields rather than failing the whole turn.
	Execute(ctx context.Context, args json.RawMessage) (string, error)
}

// queryArgs is the shared argument shape of both built-in tools.
type queryArgs struct {
	Query string `json:"query"`
}

// queryParameters builds the JSON schema for a single-query tool.
func queryParameters(description string) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"query": {
				Type:        "string",
				Description: description,
			},
		},
		Required: []string{"query"},
	}
}
