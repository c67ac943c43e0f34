package driving

import (
	"context"

	"github.com/custodia-labs/librarian/internal/core/domain"
)

// IndexingService runs the indexing pipeline.
type IndexingService interface {
	// Run indexes the catalog and blocks until the run ends.
	// Cancelling ctx aborts after the in-flight commit.
	Run(ctx context.Context, opts domain.IndexOptions) (*domain.RunSummary, error)

	// Start launches Run in the background.
	// Returns domain.ErrIndexingInProgress when a run is active.
	Start(ctx context.Context, opts domain.IndexOptions) error

	// Cancel asks the active run to stop after the books in flight.
	Cancel()

	// Wait blocks until the background run ends and returns its result.
	Wait() (*domain.RunSummary, error)

	// Status reports progress from the last durable checkpoint.
	Status(ctx context.Context) (*domain.IndexStatus, error)
}
