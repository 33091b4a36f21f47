// Package session provides conversation session persistence.
//
// A session is an ordered list of turns keyed by an opaque id. Sessions are
// mutated only by appending turns; a turn is immutable once appended. The
// orchestrator holds a transient in-memory copy per request and never assumes
// it is fresh.
package session

import (
	"time"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Source is a retrieved passage or tool-surfaced reference.
// It is never mutated after creation and may legitimately appear in more
// than one turn.
type Source struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score,omitempty"` // relevance in [0,1] when known
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Turn is one message within a session.
type Turn struct {
	Role    Role     `json:"role"`
	Content string   `json:"content"`
	Sources []Source `json:"sources,omitempty"` // assistant turns only
}

// Session is an ordered conversation history.
type Session struct {
	ID        string    `json:"id"`
	Turns     []Turn    `json:"turns"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Title derives a short display title from the first user turn,
// or "New Chat" for an empty session. Truncation counts runes, not bytes,
// so a multi-byte character is never split into invalid UTF-8.
func (s *Session) Title() string {
	const maxTitleLen = 40
	if len(s.Turns) == 0 || s.Turns[0].Content == "" {
		return "New Chat"
	}
	title := s.Turns[0].Content
	if runes := []rune(title); len(runes) > maxTitleLen {
		title = string(runes[:maxTitleLen])
	}
	return title
}

// RecentTurns returns the last n turns in chronological order, or all turns
// if the session holds fewer than n. The returned slice aliases the
// session's turn list; callers must not modify it.
func RecentTurns(s *Session, n int) []Turn {
	if n <= 0 {
		return nil
	}
	if len(s.Turns) <= n {
		return s.Turns
	}
	return s.Turns[len(s.Turns)-n:]
}
