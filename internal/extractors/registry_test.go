package extractors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/librarian/internal/core/domain"
)

type stubExtractor struct {
	name string
	exts []string
}

func (s *stubExtractor) Extract(_ context.Context, _ string) (*domain.Extraction, error) {
	return &domain.Extraction{Title: s.name}, nil
}

func (s *stubExtractor) Extensions() []string { return s.exts }

func TestRegistry_For(t *testing.T) {
	epub := &stubExtractor{name: "epub", exts: []string{".epub"}}
	html := &stubExtractor{name: "html", exts: []string{".html", ".htm"}}
	r := NewRegistry(epub, html)

	got, err := r.For("/books/Moby Dick.EPUB")
	require.NoError(t, err)
	assert.Same(t, epub, got)

	got, err = r.For("notes.htm")
	require.NoError(t, err)
	assert.Same(t, html, got)

	assert.True(t, r.Supports("a.html"))
	assert.False(t, r.Supports("a.pdf"))
	assert.Equal(t, []string{".epub", ".htm", ".html"}, r.Extensions())
}

func TestRegistry_Unsupported(t *testing.T) {
	r := NewRegistry(&stubExtractor{exts: []string{".txt"}})

	_, err := r.For("scan.pdf")
	require.Error(t, err)

	var exErr *domain.ExtractionError
	require.ErrorAs(t, err, &exErr)
	assert.Equal(t, domain.ExtractionUnsupported, exErr.Kind)
	assert.Equal(t, "scan.pdf", exErr.Path)
}

func TestRegistry_LaterRegistrationWins(t *testing.T) {
	first := &stubExtractor{name: "first", exts: []string{".md"}}
	second := &stubExtractor{name: "second", exts: []string{".md"}}
	r := NewRegistry(first)
	r.Register(second)

	got, err := r.For("README.md")
	require.NoError(t, err)
	assert.Same(t, second, got)
}
