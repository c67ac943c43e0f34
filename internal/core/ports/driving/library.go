package driving

import (
	"context"

	"github.com/custodia-labs/librarian/internal/core/domain"
)

// LibraryService exposes what has been indexed.
type LibraryService interface {
	// Books lists indexed books.
	Books(ctx context.Context, offset, limit int) ([]domain.Book, error)

	// Book returns one indexed book.
	Book(ctx context.Context, id int64) (*domain.Book, error)

	// Chapters lists a book's chapters.
	Chapters(ctx context.Context, bookID int64) ([]domain.Chapter, error)

	// ChapterText reconstructs a chapter's text from its chunks.
	ChapterText(ctx context.Context, chapterID int64) (string, error)

	// Remove deletes a book from the store and the vector index.
	Remove(ctx context.Context, bookID int64) error

	// Verify checks that the store and the vector index agree.
	Verify(ctx context.Context) (*VerifyReport, error)

	// Stats summarises the store and the vector index.
	Stats(ctx context.Context) (*LibraryStats, error)
}

// VerifyReport describes consistency between the two artifacts.
type VerifyReport struct {
	// PairingOK is false when the artifacts were not written together.
	PairingOK bool `json:"pairing_ok"`

	// OrphanVectors are index positions with no chunk row.
	OrphanVectors []int64 `json:"orphan_vectors"`

	// MissingVectors are chunk positions absent from the index.
	MissingVectors []int64 `json:"missing_vectors"`
}

// OK reports whether no inconsistency was found.
func (r *VerifyReport) OK() bool {
	return r.PairingOK && len(r.OrphanVectors) == 0 && len(r.MissingVectors) == 0
}

// LibraryStats combines store and index statistics.
type LibraryStats struct {
	domain.Stats
	Vectors    int    `json:"vectors"`
	Dimensions int    `json:"dimensions"`
	Model      string `json:"model"`
}
