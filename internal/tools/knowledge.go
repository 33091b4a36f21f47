package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/docent-ai/docent/internal/llm"
	"github.com/docent-ai/docent/internal/log"
	"github.com/docent-ai/docent/internal/rag"
	"github.com/docent-ai/docent/internal/session"
)

// KnowledgeToolName is the registered name of the knowledge-base query tool.
const KnowledgeToolName = "rag_query"

const resultSeparator = "\n-------------------------\n\n"

// PassageSearcher is the slice of the retriever this tool consumes.
// Interfaces are defined by the consumer; *rag.Retriever satisfies it.
type PassageSearcher interface {
	Search(ctx context.Context, query string, topK int) ([]session.Source, error)
}

var _ PassageSearcher = (*rag.Retriever)(nil)

// KnowledgeTool queries the passage index directly.
//
// It deliberately bypasses the confidence gate: a tool call is an explicit
// request from the model for whatever the index holds, not a default answer
// path that needs hallucination guarding.
type KnowledgeTool struct {
	retriever PassageSearcher
	topK      int
	logger    log.Logger
}

var _ Tool = (*KnowledgeTool)(nil)

// NewKnowledgeTool creates the knowledge-base query tool.
func NewKnowledgeTool(retriever PassageSearcher, topK int, logger log.Logger) *KnowledgeTool {
	if logger == nil {
		logger = log.NewNop()
	}
	return &KnowledgeTool{retriever: retriever, topK: topK, logger: logger}
}

// Definition describes the tool to the model.
func (k *KnowledgeTool) Definition() llm.ToolSpec {
	return llm.ToolSpec{
		Name: KnowledgeToolName,
		Description: "Retrieve relevant passages from the local knowledge base. " +
			"Use this instead of web_search for questions about documents, PDFs, or internal knowledge.",
		Parameters: queryParameters(
			"The semantic search query. Include as much context from the user question as needed."),
	}
}

// Execute runs the index query and returns a rag_result envelope.
func (k *KnowledgeTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a queryArgs
	// Malformed or empty arguments degrade to an empty query, which simply
	// yields no results; a bad argument payload never fails the turn.
	if len(args) > 0 {
		if err := json.Unmarshal(args, &a); err != nil {
			k.logger.Debug("unparsable rag_query arguments, using empty query", "error", err)
		}
	}

	sources, err := k.retriever.Search(ctx, a.Query, k.topK)
	if err != nil {
		return "", fmt.Errorf("knowledge base search: %w", err)
	}

	env := Envelope{Kind: KindRAGResult, Sources: sources}
	if len(sources) == 0 {
		env.Sources = []session.Source{}
		env.Content = fmt.Sprintf("No relevant knowledge base results found for query: %q.", a.Query)
		return env.Encode()
	}

	formatted := make([]string, len(sources))
	for i, src := range sources {
		formatted[i] = formatResult(i+1, src)
	}

	env.Content = fmt.Sprintf("Knowledge base results for: %q\n\n%s\n\n"+
		"Use these passages when they clearly relate to the question; "+
		"cite them as sources only if they actually support the answer.",
		a.Query, strings.Join(formatted, resultSeparator))
	return env.Encode()
}

// formatResult renders one result with a header the model can cite from.
func formatResult(rank int, src session.Source) string {
	parts := []string{fmt.Sprintf("Result %d", rank), "ID: " + src.ID}

	if title := resultTitle(src); title != "" {
		parts = append(parts, "Title: "+title)
	}
	if pages := resultPages(src.Metadata); pages != "" {
		parts = append(parts, "Page(s): "+pages)
	}
	if src.Score > 0 {
		parts = append(parts, fmt.Sprintf("Score: %.3f", src.Score))
	}

	snippet, _ := src.Metadata["text"].(string)
	if snippet == "" {
		snippet = "[No text snippet available in metadata]"
	}

	return strings.Join(parts, " | ") + "\n\n" + snippet
}

func resultTitle(src session.Source) string {
	if s, ok := src.Metadata["source_path"].(string); ok && s != "" {
		return s
	}
	if s, ok := src.Metadata["doc_id"].(string); ok && s != "" {
		return s
	}
	return ""
}

func resultPages(metadata map[string]any) string {
	from, okFrom := metadata["page_from"]
	to, okTo := metadata["page_to"]
	switch {
	case okFrom && okTo:
		return fmt.Sprintf("%v-%v", from, to)
	case okFrom:
		return fmt.Sprintf("%v", from)
	default:
		return ""
	}
}
