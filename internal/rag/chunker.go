package rag

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

// separators are tried in order; the empty separator splits into runes.
var separators = []string{"\n\n", "\n", ". ", " ", ""}

// Chunk splits text into pieces of at most size runes, neighbours sharing
// up to overlap runes. Cuts prefer paragraph, line, sentence and word
// boundaries in that order.
func Chunk(text string, size, overlap int) ([]string, error) {
	text = strings.TrimSpace(text)
	if text == "" || size <= 0 {
		return nil, nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(size),
		textsplitter.WithChunkOverlap(overlap),
		textsplitter.WithSeparators(separators),
	)
	parts, err := splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("split text: %w", err)
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}
