// Package llm defines the contracts for the reasoning model, the embedding
// service and the search-augmented completion, together with an
// OpenAI-compatible implementation.
//
// The orchestrator core depends only on the interfaces in this file; the
// go-openai backed implementation lives in openai.go. Retry with exponential
// backoff and proactive rate limiting belong to this layer, below the agent
// loop: the loop itself never retries a model call.
package llm

import (
	"context"
	"errors"

	"github.com/google/jsonschema-go/jsonschema"
)

// Message roles. These mirror the chat-completion wire protocol.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ErrUpstream wraps transport failures from the model provider.
// A failed completion aborts the request; callers check with errors.Is.
var ErrUpstream = errors.New("upstream model failure")

// ToolCall is a tool invocation requested by the model.
//
// RawArguments is the untrusted argument payload exactly as produced by the
// model. It may not be valid JSON; deciding how to degrade is the caller's
// responsibility, not this package's.
type ToolCall struct {
	ID           string
	Name         string
	RawArguments string
}

// ToolSpec describes a callable tool offered to the model.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
}

// Message is one entry in a chat transcript.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall // set on assistant messages that request tools
	ToolCallID string     // set on tool messages carrying a result
}

// Request is a completion request.
// When Tools is non-empty the model may answer with tool calls instead of
// (or in addition to) text; tool selection is automatic.
type Request struct {
	Messages    []Message
	Tools       []ToolSpec
	Temperature float32
}

// Response is a completed model turn.
type Response struct {
	Message Message
}

// StreamFunc receives incremental text fragments during a streaming
// completion, in production order. Returning an error aborts the stream.
type StreamFunc func(ctx context.Context, fragment string) error

// Client is the reasoning-model contract.
type Client interface {
	// Complete performs a single blocking completion.
	Complete(ctx context.Context, req Request) (*Response, error)

	// CompleteStream performs a completion, delivering text fragments to fn
	// as they are produced. The returned response carries the full
	// concatenated text, identical to what a non-streamed call would return.
	CompleteStream(ctx context.Context, req Request, fn StreamFunc) (*Response, error)
}

// Embedder is the embedding-service contract.
// Embeddings are deterministic per model version.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// WebResult is a single reference surfaced by a web search.
type WebResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// SearchResult is the outcome of a search-augmented completion.
type SearchResult struct {
	Answer  string
	Results []WebResult
}

// Searcher is the live web-search contract, backed by a search-augmented
// completion rather than a scraper.
type Searcher interface {
	Search(ctx context.Context, query string) (*SearchResult, error)
}

// NewUserMessage builds a user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewSystemMessage builds a system message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewAssistantMessage builds an assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// NewToolMessage builds a tool-result message bound to the originating call.
func NewToolMessage(callID, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: callID}
}
