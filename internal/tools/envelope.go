package tools

import (
	"encoding/json"
	"strings"

	"github.com/docent-ai/docent/internal/session"
)

// Envelope kinds for the built-in tools.
const (
	KindRAGResult = "rag_result"
	KindWebResult = "web_result"
)

// Envelope is the self-describing structured result a tool returns.
//
// Content is what the model reads; Sources are the references the tool
// surfaced. Serializing the envelope as the tool's text output lets the
// agent loop detect and unpack structured results uniformly. Output that
// fails to parse as an envelope is treated as plain tool content with zero
// sources, never as an error.
type Envelope struct {
	Kind    string           `json:"kind"`
	Sources []session.Source `json:"sources"`
	Content string           `json:"content"`
}

// Encode serializes the envelope for return from a tool.
func (e *Envelope) Encode() (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ParseEnvelope attempts to decode tool output as an Envelope.
// The second return is false when the output is not a well-formed envelope;
// callers then use the raw text verbatim.
func ParseEnvelope(raw string) (*Envelope, bool) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}

	var env Envelope
	if err := json.Unmarshal([]byte(trimmed), &env); err != nil {
		return nil, false
	}
	if env.Kind == "" {
		return nil, false
	}
	return &env, true
}
