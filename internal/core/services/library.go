package services

import (
	"context"
	"fmt"

	"github.com/custodia-labs/librarian/internal/core/domain"
	"github.com/custodia-labs/librarian/internal/core/ports/driven"
	"github.com/custodia-labs/librarian/internal/core/ports/driving"
	"github.com/custodia-labs/librarian/internal/logger"
	"github.com/custodia-labs/librarian/internal/postprocessors/chunker"
)

// Ensure LibraryService implements the interface.
var _ driving.LibraryService = (*LibraryService)(nil)

// LibraryDeps are the collaborators of the library service.
type LibraryDeps struct {
	Books    driven.BookStore
	Chunks   driven.ChunkStore
	Progress driven.ProgressStore
	Index    driven.VectorIndex
	Embedder driven.EmbeddingService // optional, for the model name

	// Guard serialises destructive operations with indexing runs. Optional.
	Guard IdleGuard

	// IndexPath is where the vector index is saved after a removal.
	IndexPath string
}

// IdleGuard runs a function while no indexing run is active and keeps
// runs from starting until it returns.
type IdleGuard interface {
	WhileIdle(fn func() error) error
}

// LibraryService exposes the indexed library.
type LibraryService struct {
	deps LibraryDeps
}

// NewLibraryService creates a library service.
func NewLibraryService(deps LibraryDeps) *LibraryService {
	return &LibraryService{deps: deps}
}

// Books lists indexed books.
func (s *LibraryService) Books(ctx context.Context, offset, limit int) ([]domain.Book, error) {
	if offset < 0 || limit < 0 {
		return nil, fmt.Errorf("%w: offset and limit must not be negative", domain.ErrInvalidInput)
	}
	return s.deps.Books.ListBooks(ctx, offset, limit)
}

// Book returns one indexed book.
func (s *LibraryService) Book(ctx context.Context, id int64) (*domain.Book, error) {
	return s.deps.Books.GetBook(ctx, id)
}

// Chapters lists a book's chapters.
func (s *LibraryService) Chapters(ctx context.Context, bookID int64) ([]domain.Chapter, error) {
	if _, err := s.deps.Books.GetBook(ctx, bookID); err != nil {
		return nil, err
	}
	return s.deps.Chunks.Chapters(ctx, bookID)
}

// ChapterText joins a chapter's chunks back into its text.
func (s *LibraryService) ChapterText(ctx context.Context, chapterID int64) (string, error) {
	if _, err := s.deps.Chunks.GetChapter(ctx, chapterID); err != nil {
		return "", err
	}
	chunks, err := s.deps.Chunks.Chunks(ctx, chapterID)
	if err != nil {
		return "", err
	}
	return chunker.Reconstruct(chunks), nil
}

// Remove deletes a book and its vectors. It is refused while indexing
// runs so that commits and removals never interleave.
func (s *LibraryService) Remove(ctx context.Context, bookID int64) error {
	if s.deps.Guard == nil {
		return s.remove(ctx, bookID)
	}
	return s.deps.Guard.WhileIdle(func() error {
		return s.remove(ctx, bookID)
	})
}

func (s *LibraryService) remove(ctx context.Context, bookID int64) error {
	book, err := s.deps.Books.GetBook(ctx, bookID)
	if err != nil {
		return err
	}
	released, err := s.deps.Books.DeleteBook(ctx, bookID)
	if err != nil {
		return fmt.Errorf("delete book %d: %w", bookID, err)
	}
	if err := s.deps.Index.Remove(ctx, released); err != nil {
		return fmt.Errorf("remove vectors of book %d: %w", bookID, err)
	}
	if s.deps.IndexPath != "" {
		if err := s.deps.Index.Save(s.deps.IndexPath); err != nil {
			return fmt.Errorf("save vector index: %w", err)
		}
	}
	logger.Info("removed %q (%d vectors)", book.Title, len(released))
	return nil
}

// Verify compares the store with the vector index.
func (s *LibraryService) Verify(ctx context.Context) (*driving.VerifyReport, error) {
	pairing, err := s.deps.Progress.PairingID(ctx)
	if err != nil {
		return nil, fmt.Errorf("read pairing: %w", err)
	}
	stored, err := s.deps.Chunks.VectorPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stored positions: %w", err)
	}
	orphans, missing := diffPositions(s.deps.Index.Positions(), stored)
	return &driving.VerifyReport{
		PairingOK:      pairing == s.deps.Index.PairingID(),
		OrphanVectors:  orphans,
		MissingVectors: missing,
	}, nil
}

// Stats summarises the store and the vector index.
func (s *LibraryService) Stats(ctx context.Context) (*driving.LibraryStats, error) {
	st, err := s.deps.Books.Stats(ctx)
	if err != nil {
		return nil, err
	}
	out := &driving.LibraryStats{
		Stats:      *st,
		Vectors:    s.deps.Index.Len(),
		Dimensions: s.deps.Index.Dimensions(),
	}
	if s.deps.Embedder != nil {
		out.Model = s.deps.Embedder.ModelName()
	}
	return out, nil
}
