package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/docent-ai/docent/internal/llm"
	"github.com/docent-ai/docent/internal/log"
	"github.com/docent-ai/docent/internal/session"
)

// WebSearchToolName is the registered name of the live web-search tool.
const WebSearchToolName = "web_search"

// WebSearchTool answers from a search-augmented completion.
type WebSearchTool struct {
	searcher llm.Searcher
	logger   log.Logger
}

var _ Tool = (*WebSearchTool)(nil)

// NewWebSearchTool creates the web search tool.
func NewWebSearchTool(searcher llm.Searcher, logger log.Logger) *WebSearchTool {
	if logger == nil {
		logger = log.NewNop()
	}
	return &WebSearchTool{searcher: searcher, logger: logger}
}

// Definition describes the tool to the model.
func (w *WebSearchTool) Definition() llm.ToolSpec {
	return llm.ToolSpec{
		Name: WebSearchToolName,
		Description: "Search the web for up-to-date information. " +
			"Use this for current events, recent changes, or facts not covered by local documents.",
		Parameters: queryParameters(
			"The search query. Include any important context from the conversation."),
	}
}

// Execute runs the search and returns a web_result envelope.
func (w *WebSearchTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a queryArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &a); err != nil {
			w.logger.Debug("unparsable web_search arguments, using empty query", "error", err)
		}
	}

	result, err := w.searcher.Search(ctx, a.Query)
	if err != nil {
		return "", fmt.Errorf("web search: %w", err)
	}

	answer := result.Answer
	if answer == "" {
		answer = "The web search returned no usable answer."
	}

	sources := make([]session.Source, len(result.Results))
	for i, r := range result.Results {
		sources[i] = session.Source{
			ID: r.URL,
			Metadata: map[string]any{
				"title": r.Title,
				"url":   r.URL,
				"text":  r.Snippet,
			},
		}
	}

	env := Envelope{Kind: KindWebResult, Sources: sources, Content: answer}
	return env.Encode()
}
