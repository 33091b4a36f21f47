package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docent-ai/docent/internal/log"
)

// PostgresStore is the Postgres-backed Store implementation.
//
// Turns are stored as a JSONB array per session. AppendTurn issues an atomic
// in-database append (turns || new_turn) rather than rewriting the whole
// list from the caller's in-memory copy, so two requests racing on the same
// session id cannot lose each other's turns; only their relative order is
// unspecified.
//
// Safe for concurrent use.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a Store backed by the given connection pool.
func NewPostgresStore(pool *pgxpool.Pool, logger log.Logger) *PostgresStore {
	if logger == nil {
		logger = log.NewNop()
	}
	return &PostgresStore{pool: pool, logger: logger}
}

// Create inserts a new empty session.
func (p *PostgresStore) Create(ctx context.Context) (*Session, error) {
	var (
		s   Session
		raw []byte
	)
	err := p.pool.QueryRow(ctx, `
		INSERT INTO sessions (turns)
		VALUES ('[]'::jsonb)
		RETURNING id, turns, created_at, updated_at
	`).Scan(&s.ID, &raw, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if err := json.Unmarshal(raw, &s.Turns); err != nil {
		return nil, fmt.Errorf("decode turns: %w", err)
	}

	p.logger.Debug("created session", "id", s.ID)
	return &s, nil
}

// Get retrieves a session by id. An id that is not a UUID cannot exist in
// the store, so it reports ErrNotFound rather than a cast error from the
// database.
func (p *PostgresStore) Get(ctx context.Context, id string) (*Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	var (
		s   Session
		raw []byte
	)
	err := p.pool.QueryRow(ctx, `
		SELECT id, turns, created_at, updated_at
		FROM sessions
		WHERE id = $1
	`, id).Scan(&s.ID, &raw, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	if err := json.Unmarshal(raw, &s.Turns); err != nil {
		return nil, fmt.Errorf("decode turns: %w", err)
	}
	return &s, nil
}

// AppendTurn atomically appends one turn to the stored turn list.
func (p *PostgresStore) AppendTurn(ctx context.Context, s *Session, turn Turn) (*Session, error) {
	turnJSON, err := json.Marshal(turn)
	if err != nil {
		return nil, fmt.Errorf("encode turn: %w", err)
	}

	var (
		raw       []byte
		updatedAt time.Time
	)
	err = p.pool.QueryRow(ctx, `
		UPDATE sessions
		SET turns = turns || jsonb_build_array($2::jsonb),
		    updated_at = now()
		WHERE id = $1
		RETURNING turns, updated_at
	`, s.ID, turnJSON).Scan(&raw, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("append turn to session %s: %w", s.ID, err)
	}

	updated := &Session{
		ID:        s.ID,
		CreatedAt: s.CreatedAt,
		UpdatedAt: updatedAt,
	}
	if err := json.Unmarshal(raw, &updated.Turns); err != nil {
		return nil, fmt.Errorf("decode turns: %w", err)
	}
	return updated, nil
}

// List returns all sessions ordered by most recent activity.
// Only the first turn of each session is fetched; List feeds the session
// picker, which needs ids and titles, not full histories.
func (p *PostgresStore) List(ctx context.Context) ([]*Session, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id,
		       COALESCE(turns -> 0, 'null'::jsonb),
		       created_at,
		       updated_at
		FROM sessions
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		var (
			s   Session
			raw []byte
		)
		if err := rows.Scan(&s.ID, &raw, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		var first *Turn
		if err := json.Unmarshal(raw, &first); err != nil {
			return nil, fmt.Errorf("decode first turn: %w", err)
		}
		if first != nil {
			s.Turns = []Turn{*first}
		}
		out = append(out, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}
