package driving

import (
	"context"

	"github.com/custodia-labs/librarian/internal/core/domain"
)

// SearchService provides semantic search to external actors.
type SearchService interface {
	// Search returns books ranked by their best matching chunk.
	Search(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.SearchResult, error)
}
