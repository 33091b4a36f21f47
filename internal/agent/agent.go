// Package agent implements the plan, act, finalize loop that lets the
// reasoning model call tools before producing its answer.
//
// The loop makes at most two model calls per request. The planning call
// offers tool definitions with automatic selection; if the model answers
// directly the loop is done. Otherwise every requested tool call is executed
// and the finalize call resends the transcript with the tool results, this
// time without tool definitions, forcing a natural-language answer.
package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/docent-ai/docent/internal/llm"
	"github.com/docent-ai/docent/internal/log"
	"github.com/docent-ai/docent/internal/session"
	"github.com/docent-ai/docent/internal/tools"
)

const systemPrompt = "You are an assistant with access to function tools.\n" +
	"- Use `rag_query` to look up information in the local knowledge base (PDFs, documents, internal content, lab sheets, etc).\n" +
	"- Use `web_search` ONLY for up-to-date or web-based information (news, weather, very recent events, things not in the local docs).\n" +
	"- Prefer `rag_query` when the user asks about known documents or material that could plausibly be in the indexed knowledge base.\n" +
	"- Do NOT guess when you can use a tool; call the tool, inspect the results, then answer.\n"

// emptyArgs replaces tool-call arguments that do not parse as JSON.
// A malformed argument payload degrades one call, never the whole turn.
var emptyArgs = json.RawMessage("{}")

// Result is the terminal outcome of one loop run.
//
// Sources are accumulated across tool calls in call order, duplicates
// preserved: two tools surfacing the same passage is signal, not noise.
type Result struct {
	Answer  string
	Sources []session.Source
}

// SourceFunc is invoked exactly once per streamed run, as soon as the
// turn's sources are known and strictly before any answer text is
// delivered. Returning an error aborts the run.
type SourceFunc func(ctx context.Context, sources []session.Source) error

// Agent drives the tool loop against a reasoning model and a tool registry.
type Agent struct {
	client   llm.Client
	registry *tools.Registry
	logger   log.Logger
}

// New creates an agent. The registry must be fully populated; it is read
// concurrently and never modified.
func New(client llm.Client, registry *tools.Registry, logger log.Logger) *Agent {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Agent{client: client, registry: registry, logger: logger}
}

// Run executes the loop and returns the final answer with its sources.
// Model transport failures abort the run; the loop itself never retries.
func (a *Agent) Run(ctx context.Context, history []llm.Message, message string) (*Result, error) {
	return a.run(ctx, history, message, nil, nil)
}

// RunStream executes the loop, reporting sources through onSources before
// streaming the answer text through onToken. The returned result carries the
// full answer, equal to the concatenation of all delivered fragments.
func (a *Agent) RunStream(ctx context.Context, history []llm.Message, message string, onSources SourceFunc, onToken llm.StreamFunc) (*Result, error) {
	return a.run(ctx, history, message, onSources, onToken)
}

func (a *Agent) run(ctx context.Context, history []llm.Message, message string, onSources SourceFunc, onToken llm.StreamFunc) (*Result, error) {
	base := make([]llm.Message, 0, len(history)+2)
	base = append(base, llm.NewSystemMessage(systemPrompt))
	base = append(base, history...)
	base = append(base, llm.NewUserMessage(message))

	planned, err := a.client.Complete(ctx, llm.Request{
		Messages: base,
		Tools:    a.registry.Definitions(),
	})
	if err != nil {
		return nil, fmt.Errorf("planning call: %w", err)
	}

	calls := planned.Message.ToolCalls
	if len(calls) == 0 {
		// The model answered directly. Empty text is a valid answer.
		res := &Result{Answer: planned.Message.Content, Sources: []session.Source{}}
		if onSources != nil {
			if err := onSources(ctx, res.Sources); err != nil {
				return nil, err
			}
		}
		if onToken != nil && res.Answer != "" {
			if err := onToken(ctx, res.Answer); err != nil {
				return nil, err
			}
		}
		return res, nil
	}

	toolMessages, sources := a.act(ctx, calls)

	final := make([]llm.Message, 0, len(base)+1+len(toolMessages))
	final = append(final, base...)
	final = append(final, planned.Message)
	final = append(final, toolMessages...)

	if onSources != nil {
		if err := onSources(ctx, sources); err != nil {
			return nil, err
		}
	}

	req := llm.Request{Messages: final}
	var answered *llm.Response
	if onToken != nil {
		answered, err = a.client.CompleteStream(ctx, req, onToken)
	} else {
		answered, err = a.client.Complete(ctx, req)
	}
	if err != nil {
		return nil, fmt.Errorf("finalize call: %w", err)
	}

	return &Result{Answer: answered.Message.Content, Sources: sources}, nil
}

// toolOutcome is the unpacked result of one tool call.
type toolOutcome struct {
	content string
	sources []session.Source
}

// act executes all requested tool calls, fanning out concurrently and
// joining before return. Results keep call order regardless of completion
// order, and each tool message is bound to its originating call id.
func (a *Agent) act(ctx context.Context, calls []llm.ToolCall) ([]llm.Message, []session.Source) {
	outcomes := make([]toolOutcome, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			outcomes[i] = a.execute(gctx, call)
			return nil
		})
	}
	// No goroutine returns an error; tool failures are folded into the
	// outcomes so a single bad call cannot cancel its siblings.
	_ = g.Wait()

	messages := make([]llm.Message, len(calls))
	sources := make([]session.Source, 0)
	for i, call := range calls {
		messages[i] = llm.NewToolMessage(call.ID, outcomes[i].content)
		sources = append(sources, outcomes[i].sources...)
	}
	return messages, sources
}

// execute runs one tool call. Every failure mode degrades to tool content
// the model can read; nothing here aborts the turn.
func (a *Agent) execute(ctx context.Context, call llm.ToolCall) toolOutcome {
	args := json.RawMessage(call.RawArguments)
	if len(args) == 0 || !json.Valid(args) {
		a.logger.Warn("malformed tool-call arguments, substituting empty set",
			"tool", call.Name, "call_id", call.ID)
		args = emptyArgs
	}

	raw, err := a.registry.Execute(ctx, call.Name, args)
	if err != nil {
		a.logger.Warn("tool execution failed", "tool", call.Name, "call_id", call.ID, "error", err)
		return toolOutcome{content: fmt.Sprintf("Tool %s failed: %v", call.Name, err)}
	}

	env, ok := tools.ParseEnvelope(raw)
	if !ok {
		// Not an envelope: use the text verbatim, no sources.
		return toolOutcome{content: raw}
	}
	return toolOutcome{content: env.Content, sources: env.Sources}
}
