package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/librarian/internal/core/domain"
)

const (
	// uriScheme is the custom URI scheme for library resources.
	uriScheme = "librarian://"

	// maxListedBooks caps the books resource.
	maxListedBooks = 1000
)

// registerResources registers all resource handlers with the MCP server.
// Resources are only offered when a library service is available.
func (s *Server) registerResources() {
	if s.ports.Library == nil {
		return
	}

	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "books",
		Name:        "books",
		Description: "Books in the index",
		MIMEType:    "application/json",
	}, s.handleBooksResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "books/{bookId}/chapters",
		Name:        "book-chapters",
		Description: "Chapters of an indexed book",
		MIMEType:    "application/json",
	}, s.handleChaptersResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "chapters/{chapterId}",
		Name:        "chapter-text",
		Description: "Full text of an indexed chapter",
		MIMEType:    "text/plain",
	}, s.handleChapterTextResource)
}

// handleBooksResource lists indexed books.
func (s *Server) handleBooksResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	books, err := s.ports.Library.Books(ctx, 0, maxListedBooks)
	if err != nil {
		return nil, fmt.Errorf("listing books: %w", err)
	}

	type bookInfo struct {
		ID        int64    `json:"id"`
		CatalogID int64    `json:"catalog_id"`
		Title     string   `json:"title"`
		Author    string   `json:"author,omitempty"`
		Tags      []string `json:"tags,omitempty"`
	}

	infos := make([]bookInfo, len(books))
	for i := range books {
		infos[i] = bookInfo{
			ID:        books[i].ID,
			CatalogID: books[i].CatalogID,
			Title:     books[i].Title,
			Author:    books[i].Author,
			Tags:      books[i].Tags,
		}
	}
	return jsonResource(req.Params.URI, infos)
}

// handleChaptersResource lists the chapters of one book.
func (s *Server) handleChaptersResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	bookID, ok := extractBookID(req.Params.URI)
	if !ok {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	chapters, err := s.ports.Library.Chapters(ctx, bookID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	if err != nil {
		return nil, fmt.Errorf("listing chapters: %w", err)
	}

	type chapterInfo struct {
		ID        int64  `json:"id"`
		Ordinal   int    `json:"ordinal"`
		Title     string `json:"title"`
		WordCount int    `json:"word_count"`
		URI       string `json:"uri"`
	}

	infos := make([]chapterInfo, len(chapters))
	for i, ch := range chapters {
		infos[i] = chapterInfo{
			ID:        ch.ID,
			Ordinal:   ch.Ordinal,
			Title:     ch.Title,
			WordCount: ch.WordCount,
			URI:       uriScheme + "chapters/" + strconv.FormatInt(ch.ID, 10),
		}
	}
	return jsonResource(req.Params.URI, infos)
}

// handleChapterTextResource returns the reconstructed text of a chapter.
func (s *Server) handleChapterTextResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	chapterID, ok := extractChapterID(req.Params.URI)
	if !ok {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	text, err := s.ports.Library.ChapterText(ctx, chapterID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	if err != nil {
		return nil, fmt.Errorf("reading chapter text: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "text/plain",
			Text:     text,
		}},
	}, nil
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling %s: %w", uri, err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// extractBookID parses a URI like librarian://books/{bookId}/chapters.
func extractBookID(uri string) (int64, bool) {
	const prefix = uriScheme + "books/"
	const suffix = "/chapters"

	if !strings.HasPrefix(uri, prefix) || !strings.HasSuffix(uri, suffix) {
		return 0, false
	}
	return parseID(strings.TrimSuffix(strings.TrimPrefix(uri, prefix), suffix))
}

// extractChapterID parses a URI like librarian://chapters/{chapterId}.
func extractChapterID(uri string) (int64, bool) {
	const prefix = uriScheme + "chapters/"

	if !strings.HasPrefix(uri, prefix) {
		return 0, false
	}
	return parseID(strings.TrimPrefix(uri, prefix))
}

func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}
