package manifest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/librarian/internal/core/domain"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "library.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestCatalog_Entries(t *testing.T) {
	path := writeManifest(t, `
books:
  - id: 7
    title: Moby Dick
    author: Herman Melville
    path: books/moby-dick.epub
    tags: [fiction, sea]
    published: 1851-10-18
    summary: |
      A whaling voyage.
  - id: 2
    title: Walden
    path: /srv/books/walden.txt
    published: "1854"
`)
	cat, err := Open(path)
	require.NoError(t, err)
	defer cat.Close()

	entries, err := cat.Entries(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.EqualValues(t, 2, entries[0].CatalogID, "ordered by id")
	assert.Equal(t, "/srv/books/walden.txt", entries[0].Path)
	assert.Equal(t, 1854, entries[0].PublishedAt.Year())

	moby := entries[1]
	assert.Equal(t, "Moby Dick", moby.Title)
	assert.Equal(t, "Herman Melville", moby.Author)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "books", "moby-dick.epub"), moby.Path)
	assert.Equal(t, []string{"fiction", "sea"}, moby.Tags)
	assert.Equal(t, "A whaling voyage.", moby.Summary)
	assert.Equal(t, time.Date(1851, 10, 18, 0, 0, 0, 0, time.UTC), moby.PublishedAt)
	assert.Contains(t, cat.Name(), path)
}

func TestCatalog_ReadsEdits(t *testing.T) {
	path := writeManifest(t, "books:\n  - {id: 1, path: a.txt}\n")
	cat, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("books:\n  - {id: 1, path: a.txt}\n  - {id: 2, path: b.txt}\n"), 0600))
	entries, err := cat.Entries(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestCatalog_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"missing id", "books:\n  - {path: a.txt}\n", "id must be positive"},
		{"duplicate id", "books:\n  - {id: 1, path: a.txt}\n  - {id: 1, path: b.txt}\n", "duplicate id 1"},
		{"missing path", "books:\n  - {id: 3}\n", "path is required"},
		{"bad date", "books:\n  - {id: 1, path: a.txt, published: someday}\n", "not a date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(writeManifest(t, tt.content))
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Open(writeManifest(t, "books: [unclosed"))
	assert.Error(t, err)
}
