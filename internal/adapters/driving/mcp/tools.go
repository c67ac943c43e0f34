package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/librarian/internal/core/domain"
)

const defaultLimit = 10

// SearchInput is the input schema for the search tool.
type SearchInput struct {
	Query         string   `json:"query" jsonschema:"the passage or topic to look for in the books"`
	Limit         int      `json:"limit,omitempty" jsonschema:"maximum number of books to return (default 10)"`
	MinSimilarity *float64 `json:"min_similarity,omitempty" jsonschema:"discard matches below this cosine similarity, between 0 and 1"`
}

// SearchOutput is the output schema for the search tool.
type SearchOutput struct {
	Results []BookResultOutput `json:"results"`
	Count   int                `json:"count"`
}

// BookResultOutput is a book ranked by its best passage.
type BookResultOutput struct {
	BookID     int64                 `json:"book_id"`
	CatalogID  int64                 `json:"catalog_id"`
	Title      string                `json:"title"`
	Author     string                `json:"author,omitempty"`
	Similarity float64               `json:"similarity"`
	Chapters   []ChapterResultOutput `json:"chapters"`
}

// ChapterResultOutput is a matching chapter with its best snippet.
type ChapterResultOutput struct {
	ChapterID  int64   `json:"chapter_id"`
	Title      string  `json:"title"`
	Similarity float64 `json:"similarity"`
	Snippet    string  `json:"snippet"`
}

// StatusInput is the input schema for the index_status tool.
type StatusInput struct{}

// StatusOutput is the output schema for the index_status tool.
type StatusOutput struct {
	State                string  `json:"state"`
	RunID                string  `json:"run_id,omitempty"`
	BooksDone            int     `json:"books_done"`
	BooksSkipped         int     `json:"books_skipped"`
	BooksFailed          int     `json:"books_failed"`
	BooksTotal           int     `json:"books_total"`
	EstimatedSecondsLeft float64 `json:"estimated_seconds_remaining"`
	LastError            string  `json:"last_error,omitempty"`
}

// StartInput is the input schema for the start_indexing tool.
type StartInput struct {
	FullReindex bool `json:"full_reindex,omitempty" jsonschema:"rebuild every book instead of only new or changed ones"`
}

// ControlOutput reports the result of start_indexing and cancel_indexing.
type ControlOutput struct {
	State   string `json:"state"`
	Message string `json:"message"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search",
		Description: "Search the indexed books for passages related to a query",
	}, s.handleSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "index_status",
		Description: "Report progress of the indexing pipeline",
	}, s.handleStatus)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "start_indexing",
		Description: "Start indexing the library catalog in the background",
	}, s.handleStart)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "cancel_indexing",
		Description: "Stop the running indexing job after the books in progress",
	}, s.handleCancel)
}

// handleSearch handles the search tool invocation.
func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, SearchOutput{}, errors.New("query is required")
	}

	opts := s.ports.Defaults
	if input.Limit > 0 {
		opts.Limit = input.Limit
	}
	if input.MinSimilarity != nil {
		opts.MinSimilarity = *input.MinSimilarity
	}

	results, err := s.ports.Search.Search(ctx, query, opts)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	output := SearchOutput{
		Results: make([]BookResultOutput, len(results)),
		Count:   len(results),
	}
	for i := range results {
		r := &results[i]
		book := BookResultOutput{
			BookID:     r.BookID,
			CatalogID:  r.CatalogID,
			Title:      r.Title,
			Author:     r.Author,
			Similarity: r.Similarity,
			Chapters:   make([]ChapterResultOutput, len(r.Chapters)),
		}
		for j, ch := range r.Chapters {
			book.Chapters[j] = ChapterResultOutput{
				ChapterID:  ch.ChapterID,
				Title:      ch.Title,
				Similarity: ch.Similarity,
				Snippet:    ch.Snippet,
			}
		}
		output.Results[i] = book
	}

	return nil, output, nil
}

// handleStatus handles the index_status tool invocation.
func (s *Server) handleStatus(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	st, err := s.ports.Indexing.Status(ctx)
	if err != nil {
		return nil, StatusOutput{}, fmt.Errorf("reading index status: %w", err)
	}
	return nil, StatusOutput{
		State:                string(st.State),
		RunID:                st.RunID,
		BooksDone:            st.BooksDone,
		BooksSkipped:         st.BooksSkipped,
		BooksFailed:          st.BooksFailed,
		BooksTotal:           st.BooksTotal,
		EstimatedSecondsLeft: st.EstimatedRemaining.Seconds(),
		LastError:            st.LastError,
	}, nil
}

// handleStart handles the start_indexing tool invocation.
func (s *Server) handleStart(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input StartInput,
) (*mcp.CallToolResult, ControlOutput, error) {
	err := s.ports.Indexing.Start(ctx, domain.IndexOptions{FullReindex: input.FullReindex})
	if errors.Is(err, domain.ErrIndexingInProgress) {
		return nil, ControlOutput{
			State:   string(domain.IndexRunning),
			Message: "an indexing run is already in progress",
		}, nil
	}
	if err != nil {
		return nil, ControlOutput{}, fmt.Errorf("starting indexing: %w", err)
	}

	msg := "indexing started"
	if input.FullReindex {
		msg = "full reindex started"
	}
	return nil, ControlOutput{State: string(domain.IndexRunning), Message: msg}, nil
}

// handleCancel handles the cancel_indexing tool invocation.
func (s *Server) handleCancel(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ StatusInput,
) (*mcp.CallToolResult, ControlOutput, error) {
	st, err := s.ports.Indexing.Status(ctx)
	if err != nil {
		return nil, ControlOutput{}, fmt.Errorf("reading index status: %w", err)
	}
	if st.State != domain.IndexRunning {
		return nil, ControlOutput{State: string(st.State), Message: "no indexing run is active"}, nil
	}

	s.ports.Indexing.Cancel()
	return nil, ControlOutput{
		State:   string(domain.IndexCancelling),
		Message: "indexing will stop after the books in progress",
	}, nil
}
