// Package vecindex builds and refreshes the documentation/test vector store.
// It splits source files into overlapping character windows and registers
// them in a vecstore.Store under deterministic snippet ids, so re-indexing a
// changed file is idempotent and never leaks stale chunks.
package vecindex

import (
	"errors"
	"strings"
)

const (
	// DefaultChunkSize is the maximum characters per chunk.
	DefaultChunkSize = 800

	// DefaultChunkOverlap is the characters shared between adjacent chunks.
	DefaultChunkOverlap = 200
)

// Validation errors
var (
	ErrInvalidChunkSize = errors.New("vecindex: chunk size must be positive")
	ErrInvalidOverlap   = errors.New("vecindex: overlap must be non-negative and smaller than chunk size")
)

// Chunk is a deterministic slice of a newline-normalized source document.
// Start and End are character offsets into the normalized text.
type Chunk struct {
	Text  string
	Start int
	End   int
}

// NormalizeNewlines unifies Windows and old-Mac line endings to \n.
func NormalizeNewlines(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}

// ChunkText splits text into contiguous windows of at most chunkSize
// characters, advancing by chunkSize-overlap each step. The final window
// ends exactly at the text length. Empty input yields no chunks.
func ChunkText(text string, chunkSize, overlap int) ([]Chunk, error) {
	if chunkSize <= 0 {
		return nil, ErrInvalidChunkSize
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, ErrInvalidOverlap
	}

	runes := []rune(NormalizeNewlines(text))
	length := len(runes)
	if length == 0 {
		return nil, nil
	}

	var chunks []Chunk
	start := 0
	for start < length {
		end := start + chunkSize
		if end > length {
			end = length
		}
		chunks = append(chunks, Chunk{
			Text:  string(runes[start:end]),
			Start: start,
			End:   end,
		})
		if end == length {
			break
		}
		start = end - overlap
	}
	return chunks, nil
}
