package vectorindex

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/librarian/internal/core/domain"
)

func randomVectors(rng *rand.Rand, n, dim int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dim)
		for d := range v {
			v[d] = rng.Float32()*2 - 1
		}
		out[i] = v
	}
	return out
}

func newTestIndex(t *testing.T, dim int, opts ...Option) *Index {
	t.Helper()
	ix, err := New(dim, opts...)
	require.NoError(t, err)
	return ix
}

func TestNew_RejectsZeroDimension(t *testing.T) {
	_, err := New(0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestIndex_AddAssignsIncreasingPositions(t *testing.T) {
	ctx := context.Background()
	ix := newTestIndex(t, 4)

	first, err := ix.Add(ctx, randomVectors(rand.New(rand.NewSource(1)), 3, 4))
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1, 2}, first)

	require.NoError(t, ix.Remove(ctx, []int64{2}))

	second, err := ix.Add(ctx, randomVectors(rand.New(rand.NewSource(2)), 2, 4))
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 4}, second, "removed positions are never reused")
	assert.Equal(t, 4, ix.Len())
	assert.Equal(t, []int64{0, 1, 3, 4}, ix.Positions())
	assert.False(t, ix.Contains(2))
}

func TestIndex_AddRejectsWrongDimension(t *testing.T) {
	ix := newTestIndex(t, 4)
	_, err := ix.Add(context.Background(), [][]float32{{1, 2, 3}})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Equal(t, 0, ix.Len())
}

func TestIndex_SearchFindsInsertedVectorFirst(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))
	ix := newTestIndex(t, 16)
	vectors := randomVectors(rng, 200, 16)

	positions, err := ix.Add(ctx, vectors)
	require.NoError(t, err)

	for i, v := range vectors {
		hits, err := ix.Search(ctx, v, 5)
		require.NoError(t, err)
		require.NotEmpty(t, hits)
		assert.Equal(t, positions[i], hits[0].Pos)
		assert.InDelta(t, 1.0, hits[0].Similarity, 1e-5)
	}
}

func TestIndex_SearchOrderingAndTies(t *testing.T) {
	ctx := context.Background()
	ix := newTestIndex(t, 2)

	_, err := ix.Add(ctx, [][]float32{
		{0, 1},  // 0
		{1, 0},  // 1
		{2, 0},  // 2 same direction as 1
		{1, 1},  // 3
		{-1, 0}, // 4
	})
	require.NoError(t, err)

	hits, err := ix.Search(ctx, []float32{1, 0}, 4)
	require.NoError(t, err)
	require.Len(t, hits, 4)

	assert.Equal(t, int64(1), hits[0].Pos, "tie goes to the lower position")
	assert.Equal(t, int64(2), hits[1].Pos)
	assert.Equal(t, int64(3), hits[2].Pos)
	assert.Equal(t, int64(0), hits[3].Pos)
	assert.InDelta(t, hits[0].Similarity, hits[1].Similarity, 1e-7)
	assert.InDelta(t, 0.7071, hits[2].Similarity, 1e-3)
}

func TestIndex_SearchBounds(t *testing.T) {
	ctx := context.Background()
	ix := newTestIndex(t, 3)

	hits, err := ix.Search(ctx, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, hits, "empty index")

	_, err = ix.Add(ctx, [][]float32{{1, 0, 0}, {0, 1, 0}})
	require.NoError(t, err)

	hits, err = ix.Search(ctx, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 2, "k is capped at the live count")

	_, err = ix.Search(ctx, []float32{1, 0}, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestIndex_SearchSkipsRemoved(t *testing.T) {
	ctx := context.Background()
	ix := newTestIndex(t, 2)
	_, err := ix.Add(ctx, [][]float32{{1, 0}, {0.9, 0.1}})
	require.NoError(t, err)
	require.NoError(t, ix.Remove(ctx, []int64{0, 99}))

	hits, err := ix.Search(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(1), hits[0].Pos)
}

func TestIndex_ZeroVector(t *testing.T) {
	ctx := context.Background()
	ix := newTestIndex(t, 2)
	_, err := ix.Add(ctx, [][]float32{{0, 0}, {1, 0}})
	require.NoError(t, err)

	hits, err := ix.Search(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, int64(1), hits[0].Pos)
	assert.Equal(t, 0.0, hits[1].Similarity)
}

func TestIndex_SaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(3))
	path := filepath.Join(t.TempDir(), "vectors.idx")

	ix := newTestIndex(t, 8)
	_, err := ix.Add(ctx, randomVectors(rng, 50, 8))
	require.NoError(t, err)
	require.NoError(t, ix.Remove(ctx, []int64{3, 10, 49}))
	require.NoError(t, ix.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ix.Len(), loaded.Len())
	assert.Equal(t, ix.Next(), loaded.Next())
	assert.Equal(t, ix.PairingID(), loaded.PairingID())
	assert.Equal(t, ix.Positions(), loaded.Positions())

	query := randomVectors(rng, 1, 8)[0]
	want, err := ix.Search(ctx, query, 10)
	require.NoError(t, err)
	got, err := loaded.Search(ctx, query, 10)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// Saving a loaded index reproduces the file byte for byte.
	again := filepath.Join(t.TempDir(), "again.idx")
	require.NoError(t, loaded.Save(again))
	a, err := os.ReadFile(path)
	require.NoError(t, err)
	b, err := os.ReadFile(again)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	next, err := loaded.Add(ctx, randomVectors(rng, 1, 8))
	require.NoError(t, err)
	assert.Equal(t, []int64{50}, next)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.idx"))
	assert.True(t, domain.IsIndexError(err, domain.IndexMissing))
}

func TestLoad_Corrupt(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors.idx")

	ix := newTestIndex(t, 4)
	_, err := ix.Add(ctx, randomVectors(rand.New(rand.NewSource(5)), 10, 4))
	require.NoError(t, err)
	require.NoError(t, ix.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{"flipped byte", func() []byte { d := append([]byte(nil), data...); d[60] ^= 0xff; return d }()},
		{"truncated", data[:len(data)-9]},
		{"empty", nil},
		{"garbage", []byte("definitely not an index file at all, no sir")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := filepath.Join(dir, tt.name+".idx")
			require.NoError(t, os.WriteFile(p, tt.data, 0600))
			_, err := Load(p)
			assert.True(t, domain.IsIndexError(err, domain.IndexCorrupt), "got %v", err)
		})
	}
}

// resealed returns data with the partition count replaced and the
// checksum recomputed.
func resealed(data []byte, nlistAt int, nlist uint32) []byte {
	d := append([]byte(nil), data...)
	binary.LittleEndian.PutUint32(d[nlistAt:], nlist)
	body := d[:len(d)-4]
	binary.LittleEndian.PutUint32(d[len(d)-4:], crc32.ChecksumIEEE(body))
	return d
}

func TestLoad_BadPartitionCount(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors.idx")

	const dim = 8
	ix := newTestIndex(t, dim)
	_, err := ix.Add(ctx, randomVectors(rand.New(rand.NewSource(9)), 20, dim))
	require.NoError(t, err)
	require.NoError(t, ix.Train(ctx, 4))
	require.NoError(t, ix.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	nlistAt := headerSize + ix.Len()*(8+4*dim)
	require.EqualValues(t, 4, binary.LittleEndian.Uint32(data[nlistAt:]))

	for _, nlist := range []uint32{0, 3, 5, math.MaxUint32} {
		t.Run(fmt.Sprint(nlist), func(t *testing.T) {
			p := filepath.Join(dir, fmt.Sprintf("nlist-%d.idx", nlist))
			require.NoError(t, os.WriteFile(p, resealed(data, nlistAt, nlist), 0600))
			_, err := Load(p)
			assert.True(t, domain.IsIndexError(err, domain.IndexCorrupt), "got %v", err)
		})
	}

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.True(t, loaded.Partitioned())
}

func TestIndex_PartitionedSearch(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(11))
	ix := newTestIndex(t, 8, WithIVF(100, 4))

	vectors := randomVectors(rng, 400, 8)
	positions, err := ix.Add(ctx, vectors)
	require.NoError(t, err)
	require.True(t, ix.Partitioned(), "crossing the threshold trains partitions")

	for i := 0; i < len(vectors); i += 37 {
		hits, err := ix.Search(ctx, vectors[i], 1)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, positions[i], hits[0].Pos)
		assert.InDelta(t, 1.0, hits[0].Similarity, 1e-5)
	}

	// Vectors added after training land in a partition too.
	extra := randomVectors(rng, 1, 8)
	pos, err := ix.Add(ctx, extra)
	require.NoError(t, err)
	hits, err := ix.Search(ctx, extra[0], 1)
	require.NoError(t, err)
	assert.Equal(t, pos[0], hits[0].Pos)

	path := filepath.Join(t.TempDir(), "ivf.idx")
	require.NoError(t, ix.Save(path))
	loaded, err := Load(path, WithIVF(100, 4))
	require.NoError(t, err)
	assert.True(t, loaded.Partitioned())

	want, err := ix.Search(ctx, vectors[5], 10)
	require.NoError(t, err)
	got, err := loaded.Search(ctx, vectors[5], 10)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestIndex_TrainEmpty(t *testing.T) {
	ix := newTestIndex(t, 2)
	assert.ErrorIs(t, ix.Train(context.Background(), 4), domain.ErrInvalidInput)
}

func TestIndex_ConcurrentSearchAndAdd(t *testing.T) {
	ctx := context.Background()
	ix := newTestIndex(t, 8)
	_, err := ix.Add(ctx, randomVectors(rand.New(rand.NewSource(9)), 100, 8))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < 50; i++ {
				_, err := ix.Search(ctx, randomVectors(rng, 1, 8)[0], 5)
				assert.NoError(t, err)
			}
		}(int64(w))
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		rng := rand.New(rand.NewSource(99))
		for i := 0; i < 50; i++ {
			_, err := ix.Add(ctx, randomVectors(rng, 2, 8))
			assert.NoError(t, err)
		}
	}()
	wg.Wait()

	assert.Equal(t, 200, ix.Len())
}

func TestIndex_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ix := newTestIndex(t, 2)
	_, err := ix.Add(ctx, [][]float32{{1, 0}})
	assert.ErrorIs(t, err, context.Canceled)
}
