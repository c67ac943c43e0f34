package cli

import (
	"context"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

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

func (m *mockSearchService) Search(_ context.Context, query string, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	m.gotQuery = query
	m.gotOpts = opts
	return m.results, m.err
}

// mockIndexingService is a mock implementation of driving.IndexingService.
type mockIndexingService struct {
	mu        sync.Mutex
	summary   *domain.RunSummary
	runErr    error
	status    domain.IndexStatus
	gotOpts   *domain.IndexOptions
	cancelled int
}

func (m *mockIndexingService) Run(_ context.Context, opts domain.IndexOptions) (*domain.RunSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gotOpts = &opts
	return m.summary, m.runErr
}

func (m *mockIndexingService) Start(_ context.Context, opts domain.IndexOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gotOpts = &opts
	return nil
}

func (m *mockIndexingService) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled++
}

func (m *mockIndexingService) Wait() (*domain.RunSummary, error) {
	return m.summary, m.runErr
}

func (m *mockIndexingService) Status(_ context.Context) (*domain.IndexStatus, error) {
	st := m.status
	return &st, nil
}

// mockLibraryService is a mock implementation of driving.LibraryService.
type mockLibraryService struct {
	books    []domain.Book
	chapters []domain.Chapter
	text     string
	report   *driving.VerifyReport
	stats    *driving.LibraryStats
	err      error

	removed []int64
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

func (m *mockLibraryService) Chapters(_ context.Context, _ int64) ([]domain.Chapter, error) {
	return m.chapters, m.err
}

func (m *mockLibraryService) ChapterText(_ context.Context, chapterID int64) (string, error) {
	for _, ch := range m.chapters {
		if ch.ID == chapterID {
			return m.text, m.err
		}
	}
	return "", domain.ErrNotFound
}

func (m *mockLibraryService) Remove(_ context.Context, bookID int64) error {
	if m.err != nil {
		return m.err
	}
	m.removed = append(m.removed, bookID)
	return nil
}

func (m *mockLibraryService) Verify(_ context.Context) (*driving.VerifyReport, error) {
	return m.report, m.err
}

func (m *mockLibraryService) Stats(_ context.Context) (*driving.LibraryStats, error) {
	return m.stats, m.err
}

// mockAskService is a mock implementation of driving.AskService.
type mockAskService struct {
	resp    *domain.ConversationResponse
	results []domain.SearchResult
	err     error

	gotQuestion string
}

func (m *mockAskService) Ask(_ context.Context, question string, _ domain.SearchOptions) (*domain.ConversationResponse, []domain.SearchResult, error) {
	m.gotQuestion = question
	return m.resp, m.results, m.err
}

// mockWatcher records that watching started and waits for cancellation.
type mockWatcher struct {
	started chan struct{}
}

func (m *mockWatcher) Watch(ctx context.Context) error {
	close(m.started)
	select {
	case <-ctx.Done():
	case <-time.After(50 * time.Millisecond):
	}
	return nil
}

// testServices are the mocks installed by setupTestServices.
type testServices struct {
	search   *mockSearchService
	indexing *mockIndexingService
	library  *mockLibraryService
	ask      *mockAskService
}

func newTestServices() *testServices {
	return &testServices{
		search: &mockSearchService{
			results: []domain.SearchResult{
				{
					BookID:     1,
					CatalogID:  41,
					Title:      "Moby Dick",
					Author:     "Herman Melville",
					Similarity: 0.82,
					Chapters: []domain.ChapterMatch{
						{ChapterID: 12, Ordinal: 1, Title: "Loomings", Similarity: 0.82, Snippet: "Call me Ishmael."},
					},
				},
			},
		},
		indexing: &mockIndexingService{
			summary: &domain.RunSummary{
				State:       domain.IndexCompleted,
				BooksTotal:  3,
				BooksDone:   2,
				BooksFailed: 1,
				ChunksAdded: 40,
				Duration:    1500 * time.Millisecond,
			},
			status: domain.IndexStatus{State: domain.IndexCompleted, BooksDone: 2, BooksFailed: 1, BooksTotal: 3},
		},
		library: &mockLibraryService{
			books: []domain.Book{
				{ID: 1, CatalogID: 41, Title: "Moby Dick", Author: "Herman Melville", Tags: []string{"sea"}},
			},
			chapters: []domain.Chapter{
				{ID: 11, BookID: 1, Ordinal: 0, Title: "About", WordCount: 20},
				{ID: 12, BookID: 1, Ordinal: 1, Title: "Loomings", WordCount: 2200},
			},
			text:   "Call me Ishmael.",
			report: &driving.VerifyReport{PairingOK: true},
			stats: &driving.LibraryStats{
				Stats:      domain.Stats{Books: 1, Chapters: 2, Chunks: 40, Words: 2220},
				Vectors:    40,
				Dimensions: 384,
				Model:      "hashing",
			},
		},
		ask: &mockAskService{
			resp: &domain.ConversationResponse{Answer: "Ishmael narrates.", Model: "llama3"},
		},
	}
}

// setupTestServices installs mock services and returns a cleanup function
// that restores the package state.
func setupTestServices() func() {
	_, cleanup := setupTestServicesWith(newTestServices())
	return cleanup
}

func setupTestServicesWith(ts *testServices) (*testServices, func()) {
	searchService = ts.search
	indexingService = ts.indexing
	libraryService = ts.library
	askService = ts.ask
	appConfig = domain.DefaultConfig()

	return ts, func() {
		searchService = nil
		indexingService = nil
		libraryService = nil
		askService = nil
		catalogWatcher = nil
		closeServices = nil
		wiring = Wiring{}
		appConfig = domain.DefaultConfig()
		resetFlags(rootCmd)
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
	}
}

// resetFlags restores every flag to its default so values do not leak
// between tests through the shared command tree.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}
