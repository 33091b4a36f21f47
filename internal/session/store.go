package session

import (
	"context"
	"errors"
)

// ErrNotFound indicates the requested session does not exist.
var ErrNotFound = errors.New("session not found")

// Store is the durable session mapping.
//
// Implementations must provide per-id read-your-writes consistency.
// No cross-request locking is specified: two requests appending to the same
// session concurrently race on turn order, but AppendTurn must never lose a
// turn (append-only writes).
type Store interface {
	// Create creates a new empty session with a generated id.
	Create(ctx context.Context) (*Session, error)

	// Get returns the session with the given id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Session, error)

	// AppendTurn durably appends one turn and returns the updated session.
	// The passed session is not modified.
	AppendTurn(ctx context.Context, s *Session, turn Turn) (*Session, error)

	// List returns all sessions ordered by most recently updated first.
	// Turn lists may be truncated to what List needs (first turn for titles).
	List(ctx context.Context) ([]*Session, error)
}

// appended returns a copy of s with the turn appended.
// Shared helper so every Store implementation mutates the same way.
func appended(s *Session, turn Turn) *Session {
	out := *s
	out.Turns = make([]Turn, 0, len(s.Turns)+1)
	out.Turns = append(out.Turns, s.Turns...)
	out.Turns = append(out.Turns, turn)
	return &out
}
