package driven

import (
	"context"

	"github.com/custodia-labs/librarian/internal/core/domain"
)

// Extractor opens a book file and recovers its table of contents and chapter text.
// Failures are reported as *domain.ExtractionError and never panic.
type Extractor interface {
	// Extract reads the file at path.
	Extract(ctx context.Context, path string) (*domain.Extraction, error)

	// Extensions lists the file extensions handled, lower case with a leading dot.
	Extensions() []string
}

// ExtractorRegistry selects an extractor for a file.
type ExtractorRegistry interface {
	// Register adds an extractor for each of its extensions.
	Register(e Extractor)

	// For returns the extractor for path, or an Unsupported ExtractionError.
	For(path string) (Extractor, error)

	// Supports reports whether an extractor is registered for path.
	Supports(path string) bool
}
