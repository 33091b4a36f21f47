// Package index provides the passage vector index used by retrieval.
//
// The orchestrator only ever queries the index; writes come from the
// external ingestion pipeline, which gets an Upsert so the contract is
// complete. The Postgres implementation stores passage metadata as JSONB
// and the embedding as a pgvector column.
package index

import (
	"context"
)

// Match is one ranked result from a vector query.
type Match struct {
	ID       string
	Score    float64 // cosine similarity in [0,1], higher is better
	Metadata map[string]any
}

// Passage is an indexed document chunk.
// Metadata carries the display and provenance fields retrieval renders:
// text, source_path, doc_id, page_from, page_to.
type Passage struct {
	ID        string
	Metadata  map[string]any
	Embedding []float32
}

// Index is the read side of the vector index.
type Index interface {
	// Query returns the topK nearest passages to the given vector,
	// best first, with metadata included.
	Query(ctx context.Context, vector []float32, topK int) ([]Match, error)
}

// Store extends Index with the write path used by ingestion.
type Store interface {
	Index

	// Upsert inserts or replaces a passage by id.
	Upsert(ctx context.Context, p Passage) error
}
