package core

import (
	"errors"
	"strings"
)

const (
	DefaultMaxChars     = 12000
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 120
)

var ErrInvalidChunkConfig = errors.New("chunk overlap must be smaller than chunk size")

// NormalizeWhitespace collapses every whitespace run to a single space and
// trims both ends.
func NormalizeWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// TruncateChars keeps at most max characters (code points) from the start
// of text.
func TruncateChars(text string, max int) string {
	if max <= 0 {
		return ""
	}
	count := 0
	for i := range text {
		if count == max {
			return text[:i]
		}
		count++
	}
	return text
}

// ChunkText normalizes text and cuts it into windows of size characters,
// advancing by size-overlap each step until the window start passes the end.
// Whitespace-only text yields no chunks.
func ChunkText(text string, size, overlap int) ([]Chunk, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, ErrInvalidChunkConfig
	}

	runes := []rune(NormalizeWhitespace(text))
	if len(runes) == 0 {
		return nil, nil
	}

	step := size - overlap
	chunks := make([]Chunk, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, Chunk{Text: string(runes[start:end]), Index: len(chunks)})
	}
	return chunks, nil
}
