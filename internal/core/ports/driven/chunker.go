package driven

import "github.com/custodia-labs/librarian/internal/core/domain"

// Chunker splits chapter text into overlapping word windows.
// Chunks carry ordinals and byte offsets into text; IDs and vector
// positions are left for the caller.
type Chunker interface {
	Chunks(text string) []domain.Chunk
}
