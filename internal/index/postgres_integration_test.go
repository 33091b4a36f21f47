//go:build integration

package index_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docent-ai/docent/internal/index"
	"github.com/docent-ai/docent/internal/testutil"
)

// unitVector builds a 1536-dim vector pointing mostly along the given axis.
func unitVector(axis int) []float32 {
	v := make([]float32, 1536)
	v[axis] = 1
	return v
}

func TestPostgresIndex(t *testing.T) {
	testDB, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	idx := index.NewPostgresIndex(testDB.Pool, "v1", nil)

	passages := []index.Passage{
		{ID: "doc-1#0", Embedding: unitVector(0),
			Metadata: map[string]any{"source_path": "a.pdf", "text": "first"}},
		{ID: "doc-1#1", Embedding: unitVector(1),
			Metadata: map[string]any{"source_path": "a.pdf", "text": "second"}},
		{ID: "doc-2#0", Embedding: unitVector(2),
			Metadata: map[string]any{"source_path": "b.pdf", "text": "third"}},
	}
	for _, p := range passages {
		require.NoError(t, idx.Upsert(ctx, p))
	}

	t.Run("nearest first with similarity score", func(t *testing.T) {
		matches, err := idx.Query(ctx, unitVector(0), 2)
		require.NoError(t, err)
		require.Len(t, matches, 2)

		assert.Equal(t, "doc-1#0", matches[0].ID)
		assert.InDelta(t, 1.0, matches[0].Score, 1e-4)
		assert.Greater(t, matches[0].Score, matches[1].Score)
		assert.Equal(t, "first", matches[0].Metadata["text"])
	})

	t.Run("namespace isolation", func(t *testing.T) {
		other := index.NewPostgresIndex(testDB.Pool, "v2", nil)
		matches, err := other.Query(ctx, unitVector(0), 5)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("upsert replaces by id", func(t *testing.T) {
		updated := index.Passage{
			ID:        "doc-1#0",
			Embedding: unitVector(0),
			Metadata:  map[string]any{"source_path": "a.pdf", "text": "rewritten"},
		}
		require.NoError(t, idx.Upsert(ctx, updated))

		matches, err := idx.Query(ctx, unitVector(0), 1)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "rewritten", matches[0].Metadata["text"])
	})
}
