package mcp

import (
	"context"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/librarian/internal/core/domain"
)

func TestExtractBookID(t *testing.T) {
	tests := []struct {
		name   string
		uri    string
		want   int64
		wantOK bool
	}{
		{"valid chapters URI", "librarian://books/12/chapters", 12, true},
		{"invalid prefix", "file://books/12/chapters", 0, false},
		{"missing chapters suffix", "librarian://books/12", 0, false},
		{"not a number", "librarian://books/abc/chapters", 0, false},
		{"zero id", "librarian://books/0/chapters", 0, false},
		{"empty URI", "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := extractBookID(tt.uri)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestExtractChapterID(t *testing.T) {
	tests := []struct {
		name   string
		uri    string
		want   int64
		wantOK bool
	}{
		{"valid chapter URI", "librarian://chapters/456", 456, true},
		{"invalid prefix", "file://chapters/456", 0, false},
		{"negative id", "librarian://chapters/-1", 0, false},
		{"empty URI", "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := extractChapterID(tt.uri)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, id)
		})
	}
}

// Helper to create a ReadResourceRequest with the given URI.
func makeReadResourceRequest(uri string) *mcp.ReadResourceRequest {
	return &mcp.ReadResourceRequest{
		Params: &mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func newLibraryServer(t *testing.T, library *mockLibraryService) *Server {
	t.Helper()
	ports := newPorts()
	ports.Library = library
	server, err := NewServer(ports)
	require.NoError(t, err)
	return server
}

func TestServer_handleBooksResource(t *testing.T) {
	ctx := context.Background()

	t.Run("returns books", func(t *testing.T) {
		server := newLibraryServer(t, &mockLibraryService{
			books: []domain.Book{
				{ID: 1, CatalogID: 41, Title: "Moby Dick", Author: "Herman Melville", Tags: []string{"sea"}},
			},
		})

		result, err := server.handleBooksResource(ctx, makeReadResourceRequest("librarian://books"))

		require.NoError(t, err)
		require.Len(t, result.Contents, 1)
		assert.Equal(t, "application/json", result.Contents[0].MIMEType)
		assert.Contains(t, result.Contents[0].Text, "Moby Dick")
		assert.Contains(t, result.Contents[0].Text, `"catalog_id": 41`)
	})

	t.Run("empty library is an empty list", func(t *testing.T) {
		server := newLibraryServer(t, &mockLibraryService{})

		result, err := server.handleBooksResource(ctx, makeReadResourceRequest("librarian://books"))

		require.NoError(t, err)
		assert.Equal(t, "[]", result.Contents[0].Text)
	})

	t.Run("returns error on list failure", func(t *testing.T) {
		server := newLibraryServer(t, &mockLibraryService{err: errors.New("database error")})

		_, err := server.handleBooksResource(ctx, makeReadResourceRequest("librarian://books"))

		require.Error(t, err)
		assert.Contains(t, err.Error(), "listing books")
	})
}

func TestServer_handleChaptersResource(t *testing.T) {
	ctx := context.Background()
	library := &mockLibraryService{
		chapters: map[int64][]domain.Chapter{
			1: {
				{ID: 10, BookID: 1, Ordinal: 0, Title: "About", WordCount: 12},
				{ID: 11, BookID: 1, Ordinal: 1, Title: "Loomings", WordCount: 2200},
			},
		},
	}

	t.Run("returns chapters with text URIs", func(t *testing.T) {
		server := newLibraryServer(t, library)

		result, err := server.handleChaptersResource(ctx, makeReadResourceRequest("librarian://books/1/chapters"))

		require.NoError(t, err)
		require.Len(t, result.Contents, 1)
		assert.Contains(t, result.Contents[0].Text, "Loomings")
		assert.Contains(t, result.Contents[0].Text, "librarian://chapters/11")
	})

	t.Run("unknown book is not found", func(t *testing.T) {
		server := newLibraryServer(t, library)

		_, err := server.handleChaptersResource(ctx, makeReadResourceRequest("librarian://books/9/chapters"))
		require.Error(t, err)
	})

	t.Run("invalid URI is not found", func(t *testing.T) {
		server := newLibraryServer(t, library)

		_, err := server.handleChaptersResource(ctx, makeReadResourceRequest("librarian://invalid/uri"))
		require.Error(t, err)
	})
}

func TestServer_handleChapterTextResource(t *testing.T) {
	ctx := context.Background()

	t.Run("returns chapter text", func(t *testing.T) {
		server := newLibraryServer(t, &mockLibraryService{
			texts: map[int64]string{11: "Call me Ishmael."},
		})

		result, err := server.handleChapterTextResource(ctx, makeReadResourceRequest("librarian://chapters/11"))

		require.NoError(t, err)
		require.Len(t, result.Contents, 1)
		assert.Equal(t, "text/plain", result.Contents[0].MIMEType)
		assert.Equal(t, "Call me Ishmael.", result.Contents[0].Text)
	})

	t.Run("unknown chapter is not found", func(t *testing.T) {
		server := newLibraryServer(t, &mockLibraryService{texts: map[int64]string{}})

		_, err := server.handleChapterTextResource(ctx, makeReadResourceRequest("librarian://chapters/99"))
		require.Error(t, err)
	})

	t.Run("store failure is wrapped", func(t *testing.T) {
		server := newLibraryServer(t, &mockLibraryService{err: errors.New("locked")})

		_, err := server.handleChapterTextResource(ctx, makeReadResourceRequest("librarian://chapters/11"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reading chapter text")
	})
}
