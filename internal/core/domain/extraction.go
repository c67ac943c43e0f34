package domain

import "time"

// CatalogEntry is a read-only record from the external library catalog.
type CatalogEntry struct {
	// CatalogID is the catalog's identifier. Catalog order is ascending CatalogID.
	CatalogID int64

	Title       string
	Author      string
	Path        string
	Summary     string
	Tags        []string
	PublishedAt time.Time
}

// TOCEntry is one entry of a book's table of contents.
type TOCEntry struct {
	Title   string
	Ordinal int
	Href    string
	Level   int
}

// ExtractedChapter is a chapter's plain text as recovered from the container.
type ExtractedChapter struct {
	Ordinal   int
	Title     string
	Href      string
	Text      string
	WordCount int
}

// Extraction is the result of opening a book file.
type Extraction struct {
	// Title and Author are read from the container metadata when present.
	Title  string
	Author string

	TOC      []TOCEntry
	Chapters []ExtractedChapter
}

// WordCount returns the total words across chapters.
func (e *Extraction) WordCount() int {
	n := 0
	for _, ch := range e.Chapters {
		n += ch.WordCount
	}
	return n
}
