package driven

import (
	"context"

	"github.com/custodia-labs/librarian/internal/core/domain"
)

// BookStore persists books and commits whole-book content.
type BookStore interface {
	// SaveBook inserts or updates a book by CatalogID, setting book.ID.
	SaveBook(ctx context.Context, book *domain.Book) error

	// GetBook retrieves a book by ID.
	GetBook(ctx context.Context, id int64) (*domain.Book, error)

	// GetBookByCatalogID retrieves a book by its catalog identifier.
	GetBookByCatalogID(ctx context.Context, catalogID int64) (*domain.Book, error)

	// ListBooks returns books ordered by ID. A limit of zero means no limit.
	ListBooks(ctx context.Context, offset, limit int) ([]domain.Book, error)

	// DeleteBook removes a book with its chapters and chunks and returns
	// the vector positions it released.
	DeleteBook(ctx context.Context, id int64) ([]int64, error)

	// ReplaceBookContent writes a book with all its chapters and chunks in
	// one transaction, deleting previous content first. It returns the
	// vector positions of the replaced chunks.
	ReplaceBookContent(ctx context.Context, content *domain.BookContent) ([]int64, error)

	// Stats summarises the store.
	Stats(ctx context.Context) (*domain.Stats, error)
}

// ChunkStore persists chapters and chunks.
type ChunkStore interface {
	// SaveChapter inserts a chapter, setting chapter.ID.
	SaveChapter(ctx context.Context, chapter *domain.Chapter) error

	// GetChapter retrieves a chapter by ID.
	GetChapter(ctx context.Context, id int64) (*domain.Chapter, error)

	// Chapters returns a book's chapters ordered by ordinal.
	Chapters(ctx context.Context, bookID int64) ([]domain.Chapter, error)

	// SaveChunks inserts chunks in a single transaction.
	SaveChunks(ctx context.Context, chunks []domain.Chunk) error

	// Chunks returns a chapter's chunks ordered by ordinal.
	Chunks(ctx context.Context, chapterID int64) ([]domain.Chunk, error)

	// ChunkByVectorPosition resolves a vector position to its chunk, chapter and book.
	ChunkByVectorPosition(ctx context.Context, pos int64) (*domain.ChunkContext, error)

	// ChunksByVectorPositions resolves positions in one query.
	// Unknown positions are absent from the result.
	ChunksByVectorPositions(ctx context.Context, positions []int64) (map[int64]domain.ChunkContext, error)

	// VectorPositions returns every stored vector position in ascending order.
	VectorPositions(ctx context.Context) ([]int64, error)
}

// BookStateRecord is the persisted state of a book within a run.
type BookStateRecord struct {
	CatalogID int64
	RunID     string
	State     domain.BookState
	Error     string
}

// ProgressStore persists indexing progress.
type ProgressStore interface {
	// SaveBookState records a book's state for a run.
	SaveBookState(ctx context.Context, rec BookStateRecord) error

	// BookStates returns the states recorded for a run keyed by CatalogID.
	BookStates(ctx context.Context, runID string) (map[int64]BookStateRecord, error)

	// FailedBooks returns every book whose latest state is Failed.
	FailedBooks(ctx context.Context) ([]BookStateRecord, error)

	// DeleteBookState forgets a book's state.
	DeleteBookState(ctx context.Context, catalogID int64) error

	// SaveCheckpoint durably replaces the checkpoint.
	SaveCheckpoint(ctx context.Context, cp *domain.Checkpoint) error

	// LoadCheckpoint returns the checkpoint, or domain.ErrNotFound.
	LoadCheckpoint(ctx context.Context) (*domain.Checkpoint, error)

	// PairingID returns the vector index pairing recorded in the store,
	// or an empty string when none was recorded.
	PairingID(ctx context.Context) (string, error)

	// SetPairingID records the vector index pairing.
	SetPairingID(ctx context.Context, id string) error
}
