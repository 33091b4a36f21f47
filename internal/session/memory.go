package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store implementation.
//
// It is intended for tests and local development; it provides the same
// append-only semantics as the Postgres store but no durability.
// Safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

// Create creates a new empty session.
func (m *MemoryStore) Create(_ context.Context) (*Session, error) {
	now := time.Now().UTC()
	s := &Session{
		ID:        uuid.NewString(),
		Turns:     []Turn{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	return copySession(s), nil
}

// Get returns the session with the given id.
func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	return copySession(s), nil
}

// AppendTurn appends a turn to the stored session.
// The append goes to the stored state, not the caller's possibly stale copy,
// so concurrent appenders never overwrite each other's turns.
func (m *MemoryStore) AppendTurn(_ context.Context, s *Session, turn Turn) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.sessions[s.ID]
	if !ok {
		return nil, ErrNotFound
	}

	updated := appended(stored, turn)
	updated.UpdatedAt = time.Now().UTC()
	m.sessions[s.ID] = updated

	return copySession(updated), nil
}

// List returns all sessions, most recently updated first.
func (m *MemoryStore) List(_ context.Context) ([]*Session, error) {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, copySession(s))
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// copySession returns a deep-enough copy: the turn slice is duplicated so
// callers cannot mutate stored state through the returned session.
func copySession(s *Session) *Session {
	out := *s
	out.Turns = make([]Turn, len(s.Turns))
	copy(out.Turns, s.Turns)
	return &out
}
