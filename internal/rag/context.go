package rag

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/docent-ai/docent/internal/session"
)

// blockSeparator joins rendered source blocks.
const blockSeparator = "\n\n---\n\n"

// noSnippetPlaceholder stands in for passages whose snippet text was not
// stored in metadata.
const noSnippetPlaceholder = "[no text stored in metadata]"

// RenderContext renders retrieved sources into the textual context block
// handed to the model.
//
// Each source gets a header "Source i: <title>[ (pages F-T)]" in rank order.
// The title falls back through source_path, then doc_id, then a fixed
// placeholder. The page suffix appears only when both bounds are present;
// page zero is a legitimate value. No truncation happens here: bounding
// context size is the caller's policy.
func RenderContext(sources []session.Source) string {
	blocks := make([]string, len(sources))
	for i, src := range sources {
		blocks[i] = renderBlock(i+1, src)
	}
	return strings.Join(blocks, blockSeparator)
}

func renderBlock(rank int, src session.Source) string {
	header := fmt.Sprintf("Source %d: %s%s", rank, sourceTitle(src), pageSuffix(src.Metadata))

	body := metaString(src.Metadata, "text")
	if body == "" {
		body = noSnippetPlaceholder
	}

	return header + "\n" + body
}

// sourceTitle resolves a display title for a source.
func sourceTitle(src session.Source) string {
	if title := metaString(src.Metadata, "source_path"); title != "" {
		return title
	}
	if title := metaString(src.Metadata, "doc_id"); title != "" {
		return title
	}
	return "Unknown document"
}

// pageSuffix renders " (pages F-T)" when both page bounds exist.
func pageSuffix(metadata map[string]any) string {
	from, okFrom := metaNumber(metadata, "page_from")
	to, okTo := metaNumber(metadata, "page_to")
	if !okFrom || !okTo {
		return ""
	}
	return fmt.Sprintf(" (pages %s-%s)", formatPage(from), formatPage(to))
}

// metaString reads a string-valued metadata field.
func metaString(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	if s, ok := metadata[key].(string); ok {
		return s
	}
	return ""
}

// metaNumber reads a numeric metadata field. JSON decoding yields float64,
// but ingested values may also arrive as native ints.
func metaNumber(metadata map[string]any, key string) (float64, bool) {
	if metadata == nil {
		return 0, false
	}
	switch v := metadata[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// formatPage renders a page number without a trailing ".0" for whole values.
func formatPage(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
