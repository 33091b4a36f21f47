// Package rag provides the retrieval gate and the context assembler.
//
// The gate decides whether retrieved passages are trustworthy enough to
// ground an answer. When they are not, the caller must short-circuit to
// FallbackAnswer without ever invoking the reasoning model: low-signal
// queries get a fixed, deterministic reply instead of a hallucination.
package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/docent-ai/docent/internal/index"
	"github.com/docent-ai/docent/internal/llm"
	"github.com/docent-ai/docent/internal/log"
	"github.com/docent-ai/docent/internal/session"
)

// FallbackAnswer is the fixed reply for low-confidence retrievals.
// It is returned verbatim and recorded as a normal assistant turn.
const FallbackAnswer = "I'm not confident I can answer that from the loaded documents. " +
	"Try rephrasing the question or adding more relevant documents."

// Policy holds the gate's tunable values.
// The defaults live in the config package; nothing here is hard-coded.
type Policy struct {
	TopK     int     // passages fetched per query
	MinScore float64 // best-score threshold for confidence
}

// Outcome is the result of a gated retrieval.
type Outcome struct {
	Sources   []session.Source
	Confident bool
}

// Retriever embeds queries and fetches candidate passages.
type Retriever struct {
	embedder llm.Embedder
	index    index.Index
	policy   Policy
	logger   log.Logger
}

// NewRetriever creates a Retriever.
func NewRetriever(embedder llm.Embedder, idx index.Index, policy Policy, logger log.Logger) *Retriever {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Retriever{embedder: embedder, index: idx, policy: policy, logger: logger}
}

// Retrieve runs the gated retrieval for a user question.
//
// The retrieval query folds the recent history in front of the current
// question so follow-ups ("what about page two?") still recall the right
// passages. Confidence requires at least one match whose best score meets
// the policy threshold; the index returns matches best-first, so only the
// first score is consulted.
func (r *Retriever) Retrieve(ctx context.Context, question string, history []session.Turn) (*Outcome, error) {
	query := BuildQuery(question, history)

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed retrieval query: %w", err)
	}

	matches, err := r.index.Query(ctx, vector, r.policy.TopK)
	if err != nil {
		return nil, fmt.Errorf("query passage index: %w", err)
	}

	sources := toSources(matches)

	confident := len(matches) > 0 && matches[0].Score >= r.policy.MinScore
	if !confident {
		var best float64
		if len(matches) > 0 {
			best = matches[0].Score
		}
		r.logger.Debug("retrieval below confidence threshold",
			"matches", len(matches),
			"best_score", best,
			"min_score", r.policy.MinScore,
		)
	}

	return &Outcome{Sources: sources, Confident: confident}, nil
}

// Search performs an ungated index lookup.
// The knowledge-base tool uses this path: an explicit tool call is a
// deliberate request for whatever the index holds, so the confidence gate
// does not apply.
func (r *Retriever) Search(ctx context.Context, query string, topK int) ([]session.Source, error) {
	if topK < 1 {
		topK = r.policy.TopK
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed search query: %w", err)
	}

	matches, err := r.index.Query(ctx, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("query passage index: %w", err)
	}

	return toSources(matches), nil
}

// BuildQuery renders the composite retrieval query: a compact transcript of
// the recent turns followed by the current question.
func BuildQuery(question string, history []session.Turn) string {
	if len(history) == 0 {
		return question
	}

	var b strings.Builder
	b.WriteString("Conversation history:\n")
	for _, turn := range history {
		if turn.Role == session.RoleUser {
			b.WriteString("User: ")
		} else {
			b.WriteString("Assistant: ")
		}
		b.WriteString(turn.Content)
		b.WriteByte('\n')
	}
	b.WriteString("\nCurrent question:\n")
	b.WriteString(question)
	return b.String()
}

func toSources(matches []index.Match) []session.Source {
	sources := make([]session.Source, len(matches))
	for i, m := range matches {
		sources[i] = session.Source{
			ID:       m.ID,
			Score:    m.Score,
			Metadata: m.Metadata,
		}
	}
	return sources
}
