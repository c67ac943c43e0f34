package domain

import (
	"fmt"
	"strings"
)

// SearchOptions configures a search query.
type SearchOptions struct {
	// Limit is the maximum number of books. Must be at least 1.
	Limit int

	// MinSimilarity discards chunk matches below it. Must be within [0, 1].
	MinSimilarity float64
}

// Validate checks the option bounds.
func (o SearchOptions) Validate() error {
	if o.Limit < 1 {
		return fmt.Errorf("%w: limit must be at least 1", ErrInvalidInput)
	}
	if !(o.MinSimilarity >= 0 && o.MinSimilarity <= 1) {
		return fmt.Errorf("%w: min similarity must be within [0, 1]", ErrInvalidInput)
	}
	return nil
}

// VectorHit is a nearest-neighbour match from the vector index.
type VectorHit struct {
	Pos        int64
	Similarity float64
}

// SearchResult is a book ranked by its best matching chunk.
type SearchResult struct {
	BookID     int64          `json:"book_id"`
	CatalogID  int64          `json:"catalog_id"`
	Title      string         `json:"title"`
	Author     string         `json:"author"`
	Similarity float64        `json:"similarity"`
	Chapters   []ChapterMatch `json:"chapters"`
}

// ChapterMatch is a chapter of a result with its best chunk.
type ChapterMatch struct {
	ChapterID  int64   `json:"chapter_id"`
	Ordinal    int     `json:"ordinal"`
	Title      string  `json:"title"`
	Similarity float64 `json:"similarity"`
	Snippet    string  `json:"snippet"`
}

// FormatContext renders results as plain text for a conversation service.
func FormatContext(results []SearchResult) string {
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] %s", i+1, r.Title)
		if r.Author != "" {
			fmt.Fprintf(&b, " by %s", r.Author)
		}
		fmt.Fprintf(&b, " (similarity %.2f)\n", r.Similarity)
		for _, ch := range r.Chapters {
			fmt.Fprintf(&b, "  - %s (%.2f): %s\n", ch.Title, ch.Similarity, ch.Snippet)
		}
	}
	return b.String()
}
