package rag

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docent-ai/docent/internal/session"
)

func TestRenderContextFullMetadata(t *testing.T) {
	sources := []session.Source{
		{
			ID: "chunk-1",
			Metadata: map[string]any{
				"source_path": "handbook.pdf",
				"page_from":   float64(3),
				"page_to":     float64(5),
				"text":        "Refunds are issued within 30 days.",
			},
		},
	}

	out := RenderContext(sources)

	assert.Contains(t, out, "Source 1: handbook.pdf (pages 3-5)")
	assert.Contains(t, out, "Refunds are issued within 30 days.")
}

func TestRenderContextTitleFallbacks(t *testing.T) {
	tests := []struct {
		name     string
		metadata map[string]any
		want     string
	}{
		{"source_path wins", map[string]any{"source_path": "a.pdf", "doc_id": "d1"}, "Source 1: a.pdf"},
		{"doc_id fallback", map[string]any{"doc_id": "d1"}, "Source 1: d1"},
		{"placeholder fallback", map[string]any{}, "Source 1: Unknown document"},
		{"nil metadata", nil, "Source 1: Unknown document"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := RenderContext([]session.Source{{ID: "x", Metadata: tt.metadata}})
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestRenderContextPageZeroIsLegitimate(t *testing.T) {
	out := RenderContext([]session.Source{{
		ID:       "x",
		Metadata: map[string]any{"doc_id": "d1", "page_from": float64(0), "page_to": float64(0)},
	}})
	assert.Contains(t, out, "(pages 0-0)")
}

func TestRenderContextPageSuffixRequiresBothBounds(t *testing.T) {
	out := RenderContext([]session.Source{{
		ID:       "x",
		Metadata: map[string]any{"doc_id": "d1", "page_from": float64(2)},
	}})
	assert.NotContains(t, out, "pages")
}

func TestRenderContextSnippetPlaceholder(t *testing.T) {
	out := RenderContext([]session.Source{{ID: "x", Metadata: map[string]any{"doc_id": "d1"}}})
	assert.Contains(t, out, noSnippetPlaceholder)
}

func TestRenderContextRankOrderAndSeparator(t *testing.T) {
	var sources []session.Source
	for i := 1; i <= 3; i++ {
		sources = append(sources, session.Source{
			ID:       fmt.Sprintf("chunk-%d", i),
			Metadata: map[string]any{"doc_id": fmt.Sprintf("doc-%d", i), "text": fmt.Sprintf("body %d", i)},
		})
	}

	out := RenderContext(sources)
	blocks := strings.Split(out, blockSeparator)
	require.Len(t, blocks, 3)
	for i, block := range blocks {
		assert.True(t, strings.HasPrefix(block, fmt.Sprintf("Source %d: doc-%d", i+1, i+1)),
			"block %d should carry its rank header, got %q", i, block)
	}
}

func TestRenderContextEmpty(t *testing.T) {
	assert.Empty(t, RenderContext(nil))
}

func TestRenderContextIntegerPagesFromNativeInts(t *testing.T) {
	out := RenderContext([]session.Source{{
		ID:       "x",
		Metadata: map[string]any{"doc_id": "d1", "page_from": 1, "page_to": 2},
	}})
	assert.Contains(t, out, "(pages 1-2)")
}
