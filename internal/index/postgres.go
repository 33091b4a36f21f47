package index

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/docent-ai/docent/internal/log"
)

// PostgresIndex is the pgvector-backed passage index.
//
// Similarity uses cosine distance; the reported score is 1 - distance so
// callers see the conventional higher-is-better similarity in [0,1].
// Namespaces partition passages so multiple corpora can share one table.
//
// Safe for concurrent use.
type PostgresIndex struct {
	pool      *pgxpool.Pool
	namespace string
	logger    log.Logger
}

var _ Store = (*PostgresIndex)(nil)

// NewPostgresIndex creates an index over the given pool and namespace.
func NewPostgresIndex(pool *pgxpool.Pool, namespace string, logger log.Logger) *PostgresIndex {
	if logger == nil {
		logger = log.NewNop()
	}
	return &PostgresIndex{pool: pool, namespace: namespace, logger: logger}
}

// Query returns the topK nearest passages with metadata.
func (p *PostgresIndex) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	if topK < 1 {
		topK = 1
	}

	rows, err := p.pool.Query(ctx, `
		SELECT id, metadata, 1 - (embedding <=> $1) AS score
		FROM passages
		WHERE namespace = $2
		ORDER BY embedding <=> $1
		LIMIT $3
	`, pgvector.NewVector(vector), p.namespace, topK)
	if err != nil {
		return nil, fmt.Errorf("query passages: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			m   Match
			raw []byte
		)
		if err := rows.Scan(&m.ID, &raw, &m.Score); err != nil {
			return nil, fmt.Errorf("scan passage: %w", err)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &m.Metadata); err != nil {
				return nil, fmt.Errorf("decode passage metadata: %w", err)
			}
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query passages: %w", err)
	}

	p.logger.Debug("vector query", "namespace", p.namespace, "top_k", topK, "matches", len(matches))
	return matches, nil
}

// Upsert inserts or replaces a passage by id within the namespace.
func (p *PostgresIndex) Upsert(ctx context.Context, passage Passage) error {
	metadataJSON, err := json.Marshal(passage.Metadata)
	if err != nil {
		return fmt.Errorf("encode passage metadata: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO passages (id, namespace, metadata, embedding)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id, namespace)
		DO UPDATE SET metadata = EXCLUDED.metadata,
		              embedding = EXCLUDED.embedding
	`, passage.ID, p.namespace, metadataJSON, pgvector.NewVector(passage.Embedding))
	if err != nil {
		return fmt.Errorf("upsert passage %q: %w", passage.ID, err)
	}
	return nil
}
