package domain

import "time"

// Book is an indexed catalog entry.
type Book struct {
	// ID is the store-assigned identifier.
	ID int64

	// CatalogID is the identifier in the external library catalog.
	CatalogID int64

	// Title is the book title.
	Title string

	// Author is the display author, multiple authors joined with " & ".
	Author string

	// Path is the location of the book file on disk.
	Path string

	// Summary is the catalog description, HTML stripped.
	Summary string

	// Tags are catalog tags.
	Tags []string

	// PublishedAt is the publication date. Zero when unknown.
	PublishedAt time.Time

	// IndexedAt is when the book was last committed.
	IndexedAt time.Time

	// FileModTime is the modification time of Path at indexing.
	FileModTime time.Time

	// ContentHash is the hex SHA-256 of the file at indexing.
	ContentHash string
}

// Chapter is an ordered section of a book.
type Chapter struct {
	// ID is the store-assigned identifier.
	ID int64

	// BookID is the owning book.
	BookID int64

	// Ordinal is the position within the book. Ordinal 0 is reserved
	// for the synthetic "About" chapter built from catalog metadata.
	Ordinal int

	// Title is the chapter title from the table of contents.
	Title string

	// Href is the file reference inside the book container.
	Href string

	// WordCount is the number of whitespace separated words.
	WordCount int
}

// Chunk is an overlapping window of chapter text.
type Chunk struct {
	// ID is the store-assigned identifier.
	ID int64

	// ChapterID is the owning chapter.
	ChapterID int64

	// Ordinal is the position within the chapter.
	Ordinal int

	// Text is the raw span of chapter text.
	Text string

	// StartOffset is the byte offset of Text in the chapter text.
	StartOffset int

	// EndOffset is the exclusive end byte offset.
	EndOffset int

	// VectorPos links the chunk to its vector. Unique and never reused.
	VectorPos int64
}

// ChunkContext is a chunk resolved with its chapter and book.
type ChunkContext struct {
	Chunk   Chunk
	Chapter Chapter
	Book    Book
}

// BookContent is everything written for a book in one commit.
type BookContent struct {
	Book     Book
	Chapters []ChapterContent
}

// ChapterContent is a chapter with its chunks, ready to commit.
type ChapterContent struct {
	Chapter Chapter
	Chunks  []Chunk
}

// ChunkCount returns the number of chunks across all chapters.
func (c *BookContent) ChunkCount() int {
	n := 0
	for _, ch := range c.Chapters {
		n += len(ch.Chunks)
	}
	return n
}

// Stats summarises the contents of the metadata store.
type Stats struct {
	Books    int   `json:"books"`
	Chapters int   `json:"chapters"`
	Chunks   int   `json:"chunks"`
	Words    int64 `json:"words"`
	Failed   int   `json:"failed"`
}
