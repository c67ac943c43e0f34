package driven

import (
	"context"

	"github.com/custodia-labs/librarian/internal/core/domain"
)

// Catalog is the read-only library catalog. The pipeline never writes to it.
type Catalog interface {
	// Entries returns every catalog entry ordered by ascending CatalogID.
	Entries(ctx context.Context) ([]domain.CatalogEntry, error)

	// Name identifies the catalog in logs.
	Name() string

	// Close releases resources.
	Close() error
}
