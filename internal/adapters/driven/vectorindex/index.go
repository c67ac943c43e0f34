package vectorindex

import (
	"container/heap"
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/custodia-labs/librarian/internal/core/domain"
	"github.com/custodia-labs/librarian/internal/core/ports/driven"
	"github.com/custodia-labs/librarian/internal/logger"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// DefaultIVFThreshold is the live vector count above which partitions are trained.
const DefaultIVFThreshold = 1_000_000

// DefaultProbes is the number of partitions scanned per query.
const DefaultProbes = 8

// Index is an in-memory vector index with file persistence.
type Index struct {
	mu sync.RWMutex

	dim     int
	pairing uuid.UUID

	// next is the position handed to the next added vector.
	next int64

	// Slots hold vectors in insertion order, so positions ascend with slot.
	positions []int64
	vectors   []float32
	live      []bool
	slot      map[int64]int
	count     int

	ivf          *ivf
	ivfThreshold int
	probes       int
}

// Option configures an Index.
type Option func(*Index)

// WithIVF sets the auto-training threshold and the number of probed partitions.
func WithIVF(threshold, probes int) Option {
	return func(ix *Index) {
		if threshold > 0 {
			ix.ivfThreshold = threshold
		}
		if probes > 0 {
			ix.probes = probes
		}
	}
}

// WithPairingID sets the identifier shared with the metadata store.
func WithPairingID(id uuid.UUID) Option {
	return func(ix *Index) {
		ix.pairing = id
	}
}

// New creates an empty index for vectors of dim dimensions.
func New(dim int, opts ...Option) (*Index, error) {
	if dim < 1 {
		return nil, fmt.Errorf("%w: dimension must be positive", domain.ErrInvalidInput)
	}
	ix := &Index{
		dim:          dim,
		pairing:      uuid.New(),
		slot:         make(map[int64]int),
		ivfThreshold: DefaultIVFThreshold,
		probes:       DefaultProbes,
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix, nil
}

// Dimensions returns the fixed vector size.
func (ix *Index) Dimensions() int {
	return ix.dim
}

// PairingID identifies the metadata store this index belongs to.
func (ix *Index) PairingID() string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.pairing.String()
}

// Len returns the number of live vectors.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.count
}

// Next returns the position the next added vector will receive.
func (ix *Index) Next() int64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.next
}

// Partitioned reports whether the inverted-file layer is active.
func (ix *Index) Partitioned() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.ivf != nil
}

// Positions returns every live position in ascending order.
func (ix *Index) Positions() []int64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make([]int64, 0, ix.count)
	for s, pos := range ix.positions {
		if ix.live[s] {
			out = append(out, pos)
		}
	}
	return out
}

// Contains reports whether pos is live.
func (ix *Index) Contains(pos int64) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	s, ok := ix.slot[pos]
	return ok && ix.live[s]
}

// Add appends vectors and returns their positions in input order.
func (ix *Index) Add(ctx context.Context, vectors [][]float32) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for i, v := range vectors {
		if len(v) != ix.dim {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, want %d",
				domain.ErrInvalidInput, i, len(v), ix.dim)
		}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	out := make([]int64, len(vectors))
	for i, v := range vectors {
		pos := ix.next
		ix.next++
		ix.appendSlot(pos, Normalize(v))
		out[i] = pos
	}

	if ix.ivf == nil && ix.count > ix.ivfThreshold {
		logger.Info("vector index: %d live vectors, training partitions", ix.count)
		ix.trainLocked(defaultLists(ix.count))
	}
	return out, nil
}

// appendSlot stores a normalised vector (caller must hold lock).
func (ix *Index) appendSlot(pos int64, v []float32) {
	s := len(ix.positions)
	ix.positions = append(ix.positions, pos)
	ix.vectors = append(ix.vectors, v...)
	ix.live = append(ix.live, true)
	ix.slot[pos] = s
	ix.count++
	if ix.ivf != nil {
		ix.ivf.assign(s, v)
	}
}

// Remove deletes vectors. Unknown positions are ignored and removed
// positions are never handed out again.
func (ix *Index) Remove(ctx context.Context, positions []int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	for _, pos := range positions {
		s, ok := ix.slot[pos]
		if !ok || !ix.live[s] {
			continue
		}
		ix.live[s] = false
		delete(ix.slot, pos)
		ix.count--
	}

	if dead := len(ix.positions) - ix.count; dead > 1024 && dead > ix.count {
		ix.compactLocked()
	}
	return nil
}

// compactLocked drops removed slots (caller must hold lock).
func (ix *Index) compactLocked() {
	positions := make([]int64, 0, ix.count)
	vectors := make([]float32, 0, ix.count*ix.dim)
	for s, pos := range ix.positions {
		if !ix.live[s] {
			continue
		}
		positions = append(positions, pos)
		vectors = append(vectors, ix.vector(s)...)
	}

	ix.positions = positions
	ix.vectors = vectors
	ix.live = make([]bool, len(positions))
	ix.slot = make(map[int64]int, len(positions))
	for s, pos := range positions {
		ix.live[s] = true
		ix.slot[pos] = s
	}
	if ix.ivf != nil {
		ix.ivf.reassign(ix)
	}
}

// vector returns the stored vector at slot s.
func (ix *Index) vector(s int) []float32 {
	return ix.vectors[s*ix.dim : (s+1)*ix.dim]
}

// Train builds the inverted-file layer with nlist partitions.
// A non-positive nlist picks a size from the live count.
func (ix *Index) Train(ctx context.Context, nlist int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if nlist <= 0 {
		nlist = defaultLists(ix.count)
	}
	if ix.count == 0 {
		return fmt.Errorf("%w: cannot train an empty index", domain.ErrInvalidInput)
	}
	ix.trainLocked(nlist)
	return nil
}

func (ix *Index) trainLocked(nlist int) {
	ix.ivf = trainIVF(ix, nlist)
}

// Search returns at most k hits by descending similarity, ties broken by
// lower position.
func (ix *Index) Search(ctx context.Context, query []float32, k int) ([]domain.VectorHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(query) != ix.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, want %d",
			domain.ErrInvalidInput, len(query), ix.dim)
	}
	if k < 1 {
		return nil, nil
	}
	q := Normalize(query)

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if k > ix.count {
		k = ix.count
	}
	if k == 0 {
		return nil, nil
	}

	h := make(hitHeap, 0, k)
	consider := func(s int) {
		if !ix.live[s] {
			return
		}
		hit := domain.VectorHit{Pos: ix.positions[s], Similarity: float64(dot(q, ix.vector(s)))}
		if len(h) < k {
			heap.Push(&h, hit)
			return
		}
		if worse(h[0], hit) {
			h[0] = hit
			heap.Fix(&h, 0)
		}
	}

	if ix.ivf != nil {
		for _, list := range ix.ivf.nearest(q, ix.probes) {
			for _, s := range ix.ivf.lists[list] {
				consider(s)
			}
		}
	} else {
		for s := range ix.positions {
			consider(s)
		}
	}

	hits := []domain.VectorHit(h)
	sort.Slice(hits, func(i, j int) bool { return worse(hits[j], hits[i]) })
	return hits, nil
}

// Normalize returns v scaled to unit length. A zero vector is returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		copy(out, v)
		return out
	}
	inv := 1 / math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// worse reports whether a ranks below b.
func worse(a, b domain.VectorHit) bool {
	if a.Similarity != b.Similarity {
		return a.Similarity < b.Similarity
	}
	return a.Pos > b.Pos
}

// hitHeap is a min-heap with the worst hit on top.
type hitHeap []domain.VectorHit

func (h hitHeap) Len() int           { return len(h) }
func (h hitHeap) Less(i, j int) bool { return worse(h[i], h[j]) }
func (h hitHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *hitHeap) Push(x any)        { *h = append(*h, x.(domain.VectorHit)) }
func (h *hitHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
