package mcp

import (
	"context"

	"github.com/custodia-labs/librarian/internal/core/domain"
	"github.com/custodia-labs/librarian/internal/core/ports/driving"
)

// mockSearchService is a mock implementation of driving.SearchService.
type mockSearchService struct {
	results []domain.SearchResult
	err     error

	gotQuery string
	gotOpts  domain.SearchOptions
}

func (m *mockSearchService) Search(
	_ context.Context,
	query string,
	opts domain.SearchOptions,
) ([]domain.SearchResult, error) {
	m.gotQuery = query
	m.gotOpts = opts
	return m.results, m.err
}

// mockIndexingService is a mock implementation of driving.IndexingService.
type mockIndexingService struct {
	status    domain.IndexStatus
	statusErr error
	startErr  error

	started   *domain.IndexOptions
	cancelled bool
}

func (m *mockIndexingService) Run(_ context.Context, _ domain.IndexOptions) (*domain.RunSummary, error) {
	return &domain.RunSummary{}, nil
}

func (m *mockIndexingService) Start(_ context.Context, opts domain.IndexOptions) error {
	if m.startErr != nil {
		return m.startErr
	}
	m.started = &opts
	return nil
}

func (m *mockIndexingService) Cancel() {
	m.cancelled = true
}

func (m *mockIndexingService) Wait() (*domain.RunSummary, error) {
	return &domain.RunSummary{}, nil
}

func (m *mockIndexingService) Status(_ context.Context) (*domain.IndexStatus, error) {
	if m.statusErr != nil {
		return nil, m.statusErr
	}
	st := m.status
	return &st, nil
}

// mockLibraryService is a mock implementation of driving.LibraryService.
type mockLibraryService struct {
	books    []domain.Book
	chapters map[int64][]domain.Chapter
	texts    map[int64]string
	err      error
}

func (m *mockLibraryService) Books(_ context.Context, _, _ int) ([]domain.Book, error) {
	return m.books, m.err
}

func (m *mockLibraryService) Book(_ context.Context, id int64) (*domain.Book, error) {
	for i := range m.books {
		if m.books[i].ID == id {
			return &m.books[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockLibraryService) Chapters(_ context.Context, bookID int64) ([]domain.Chapter, error) {
	if m.err != nil {
		return nil, m.err
	}
	chapters, ok := m.chapters[bookID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return chapters, nil
}

func (m *mockLibraryService) ChapterText(_ context.Context, chapterID int64) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	text, ok := m.texts[chapterID]
	if !ok {
		return "", domain.ErrNotFound
	}
	return text, nil
}

func (m *mockLibraryService) Remove(_ context.Context, _ int64) error {
	return m.err
}

func (m *mockLibraryService) Verify(_ context.Context) (*driving.VerifyReport, error) {
	return &driving.VerifyReport{PairingOK: true}, m.err
}

func (m *mockLibraryService) Stats(_ context.Context) (*driving.LibraryStats, error) {
	return &driving.LibraryStats{}, m.err
}

func newPorts() *Ports {
	return &Ports{
		Search:   &mockSearchService{},
		Indexing: &mockIndexingService{},
	}
}
