package driven

import (
	"context"

	"github.com/custodia-labs/librarian/internal/core/domain"
)

// VectorIndex stores chunk vectors and answers cosine similarity queries.
// Vectors are L2-normalised by the index on the way in and on query.
// Positions are assigned in increasing order and never reused.
type VectorIndex interface {
	// Add appends vectors and returns their positions in input order.
	Add(ctx context.Context, vectors [][]float32) ([]int64, error)

	// Remove deletes vectors. Their positions stay retired.
	Remove(ctx context.Context, positions []int64) error

	// Search returns at most k hits by descending similarity,
	// ties broken by lower position.
	Search(ctx context.Context, query []float32, k int) ([]domain.VectorHit, error)

	// Positions returns every live position in ascending order.
	Positions() []int64

	// Len returns the number of live vectors.
	Len() int

	// Dimensions returns the fixed vector size.
	Dimensions() int

	// PairingID identifies the metadata store this index belongs to.
	PairingID() string

	// Save writes the index to path atomically.
	Save(path string) error
}
