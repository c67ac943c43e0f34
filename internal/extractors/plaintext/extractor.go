// Package plaintext provides an Extractor for plain text books.
// The whole file becomes a single chapter.
package plaintext

import (
	"context"
	"os"
	"strings"

	"github.com/custodia-labs/librarian/internal/core/domain"
	"github.com/custodia-labs/librarian/internal/core/ports/driven"
	"github.com/custodia-labs/librarian/internal/extractors"
)

// Ensure Extractor implements the interface.
var _ driven.Extractor = (*Extractor)(nil)

// Extractor handles plain text books.
type Extractor struct{}

// New creates a new plain text extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extensions returns the file extensions this extractor handles.
func (e *Extractor) Extensions() []string {
	return []string{".txt", ".text"}
}

// Extract reads the file at path as one chapter titled from the file name.
func (e *Extractor) Extract(ctx context.Context, path string) (*domain.Extraction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.NewExtractionError(domain.ExtractionCorrupt, path, err)
	}

	text := strings.ToValidUTF8(string(data), "�")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	title := extractors.TitleFromPath(path)

	chapters := []domain.ExtractedChapter{{Title: title, Text: text}}
	toc := []domain.TOCEntry{{Title: title, Ordinal: 1, Level: 1}}
	return extractors.Assemble(path, title, "", toc, chapters)
}
