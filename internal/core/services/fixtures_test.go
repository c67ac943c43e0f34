package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/librarian/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/librarian/internal/adapters/driven/vectorindex"
	"github.com/custodia-labs/librarian/internal/core/domain"
)

// testLibrary is a real store and index in a temporary directory.
type testLibrary struct {
	dir   string
	store *sqlite.Store
	index *vectorindex.Index
}

func newTestLibrary(t *testing.T, dims int) *testLibrary {
	t.Helper()
	dir := t.TempDir()
	store, err := sqlite.NewStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	index, err := vectorindex.New(dims)
	require.NoError(t, err)
	require.NoError(t, store.ProgressStore().SetPairingID(context.Background(), index.PairingID()))
	return &testLibrary{dir: dir, store: store, index: index}
}

// testChunk is chunk text with the vector stored for it.
type testChunk struct {
	text string
	vec  []float32
}

// addBook commits a book whose chapters hold the given chunks.
func (l *testLibrary) addBook(t *testing.T, catalogID int64, title string, chapters ...[]testChunk) *domain.BookContent {
	t.Helper()
	ctx := context.Background()
	content := &domain.BookContent{Book: domain.Book{
		CatalogID: catalogID,
		Title:     title,
		Author:    "Anon",
		Path:      fmt.Sprintf("/books/%d.epub", catalogID),
	}}
	for i, chunks := range chapters {
		cc := domain.ChapterContent{Chapter: domain.Chapter{
			Ordinal: i + 1,
			Title:   fmt.Sprintf("%s %d", title, i+1),
		}}
		for j, c := range chunks {
			pos, err := l.index.Add(ctx, [][]float32{c.vec})
			require.NoError(t, err)
			cc.Chunks = append(cc.Chunks, domain.Chunk{
				Ordinal: j, Text: c.text, EndOffset: len(c.text), VectorPos: pos[0],
			})
		}
		content.Chapters = append(content.Chapters, cc)
	}
	_, err := l.store.BookStore().ReplaceBookContent(ctx, content)
	require.NoError(t, err)
	return content
}

// mapEmbedder returns fixed vectors per text and the zero vector otherwise.
type mapEmbedder struct {
	mu      sync.Mutex
	dims    int
	vectors map[string][]float32
	calls   int
	err     error
}

func (e *mapEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *mapEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if v, ok := e.vectors[text]; ok {
			out[i] = v
		} else {
			out[i] = make([]float32, e.dims)
		}
	}
	return out, nil
}

func (e *mapEmbedder) Dimensions() int              { return e.dims }
func (e *mapEmbedder) ModelName() string            { return "map" }
func (e *mapEmbedder) Ping(_ context.Context) error { return nil }
func (e *mapEmbedder) Close() error                 { return nil }
