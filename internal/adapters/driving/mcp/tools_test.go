package mcp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/librarian/internal/core/domain"
)

func TestServer_handleSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("returns search results", func(t *testing.T) {
		mockSearch := &mockSearchService{
			results: []domain.SearchResult{
				{
					BookID:     3,
					CatalogID:  41,
					Title:      "Moby Dick",
					Author:     "Herman Melville",
					Similarity: 0.82,
					Chapters: []domain.ChapterMatch{
						{ChapterID: 12, Ordinal: 1, Title: "Loomings", Similarity: 0.82, Snippet: "Call me Ishmael."},
					},
				},
			},
		}

		ports := newPorts()
		ports.Search = mockSearch
		server, err := NewServer(ports)
		require.NoError(t, err)

		_, output, err := server.handleSearch(ctx, nil, SearchInput{Query: "  whales ", Limit: 5})

		require.NoError(t, err)
		assert.Equal(t, "whales", mockSearch.gotQuery)
		assert.Equal(t, 5, mockSearch.gotOpts.Limit)
		assert.Equal(t, 1, output.Count)
		require.Len(t, output.Results, 1)
		assert.EqualValues(t, 3, output.Results[0].BookID)
		assert.EqualValues(t, 41, output.Results[0].CatalogID)
		assert.Equal(t, "Moby Dick", output.Results[0].Title)
		require.Len(t, output.Results[0].Chapters, 1)
		assert.Equal(t, "Loomings", output.Results[0].Chapters[0].Title)
		assert.Equal(t, "Call me Ishmael.", output.Results[0].Chapters[0].Snippet)
	})

	t.Run("defaults fill in missing options", func(t *testing.T) {
		mockSearch := &mockSearchService{}
		ports := newPorts()
		ports.Search = mockSearch
		ports.Defaults = domain.SearchOptions{Limit: 7, MinSimilarity: 0.3}
		server, err := NewServer(ports)
		require.NoError(t, err)

		_, output, err := server.handleSearch(ctx, nil, SearchInput{Query: "test"})

		require.NoError(t, err)
		assert.Equal(t, 0, output.Count)
		assert.Equal(t, 7, mockSearch.gotOpts.Limit)
		assert.InDelta(t, 0.3, mockSearch.gotOpts.MinSimilarity, 1e-9)
	})

	t.Run("explicit zero similarity overrides default", func(t *testing.T) {
		mockSearch := &mockSearchService{}
		ports := newPorts()
		ports.Search = mockSearch
		ports.Defaults = domain.SearchOptions{Limit: 7, MinSimilarity: 0.3}
		server, err := NewServer(ports)
		require.NoError(t, err)

		zero := 0.0
		_, _, err = server.handleSearch(ctx, nil, SearchInput{Query: "test", MinSimilarity: &zero})

		require.NoError(t, err)
		assert.Zero(t, mockSearch.gotOpts.MinSimilarity)
	})

	t.Run("empty query is rejected", func(t *testing.T) {
		server, err := NewServer(newPorts())
		require.NoError(t, err)

		_, _, err = server.handleSearch(ctx, nil, SearchInput{Query: "   "})
		require.Error(t, err)
	})

	t.Run("returns error on search failure", func(t *testing.T) {
		ports := newPorts()
		ports.Search = &mockSearchService{err: errors.New("search failed")}
		server, err := NewServer(ports)
		require.NoError(t, err)

		_, _, err = server.handleSearch(ctx, nil, SearchInput{Query: "test"})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "search failed")
	})
}

func TestServer_handleStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("reports progress", func(t *testing.T) {
		ports := newPorts()
		ports.Indexing = &mockIndexingService{status: domain.IndexStatus{
			State:              domain.IndexRunning,
			RunID:              "run-1",
			BooksDone:          4,
			BooksFailed:        1,
			BooksTotal:         10,
			EstimatedRemaining: 90 * time.Second,
		}}
		server, err := NewServer(ports)
		require.NoError(t, err)

		_, output, err := server.handleStatus(ctx, nil, StatusInput{})

		require.NoError(t, err)
		assert.Equal(t, "running", output.State)
		assert.Equal(t, "run-1", output.RunID)
		assert.Equal(t, 4, output.BooksDone)
		assert.Equal(t, 1, output.BooksFailed)
		assert.Equal(t, 10, output.BooksTotal)
		assert.InDelta(t, 90.0, output.EstimatedSecondsLeft, 1e-9)
	})

	t.Run("returns error on failure", func(t *testing.T) {
		ports := newPorts()
		ports.Indexing = &mockIndexingService{statusErr: errors.New("disk gone")}
		server, err := NewServer(ports)
		require.NoError(t, err)

		_, _, err = server.handleStatus(ctx, nil, StatusInput{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk gone")
	})
}

func TestServer_handleStart(t *testing.T) {
	ctx := context.Background()

	t.Run("starts a full reindex", func(t *testing.T) {
		indexing := &mockIndexingService{}
		ports := newPorts()
		ports.Indexing = indexing
		server, err := NewServer(ports)
		require.NoError(t, err)

		_, output, err := server.handleStart(ctx, nil, StartInput{FullReindex: true})

		require.NoError(t, err)
		require.NotNil(t, indexing.started)
		assert.True(t, indexing.started.FullReindex)
		assert.Equal(t, "running", output.State)
		assert.Equal(t, "full reindex started", output.Message)
	})

	t.Run("active run is reported, not failed", func(t *testing.T) {
		ports := newPorts()
		ports.Indexing = &mockIndexingService{startErr: domain.ErrIndexingInProgress}
		server, err := NewServer(ports)
		require.NoError(t, err)

		_, output, err := server.handleStart(ctx, nil, StartInput{})

		require.NoError(t, err)
		assert.Contains(t, output.Message, "already in progress")
	})

	t.Run("other errors are returned", func(t *testing.T) {
		ports := newPorts()
		ports.Indexing = &mockIndexingService{startErr: errors.New("catalog offline")}
		server, err := NewServer(ports)
		require.NoError(t, err)

		_, _, err = server.handleStart(ctx, nil, StartInput{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "catalog offline")
	})
}

func TestServer_handleCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("cancels an active run", func(t *testing.T) {
		indexing := &mockIndexingService{status: domain.IndexStatus{State: domain.IndexRunning}}
		ports := newPorts()
		ports.Indexing = indexing
		server, err := NewServer(ports)
		require.NoError(t, err)

		_, output, err := server.handleCancel(ctx, nil, StatusInput{})

		require.NoError(t, err)
		assert.True(t, indexing.cancelled)
		assert.Equal(t, "cancelling", output.State)
	})

	t.Run("idle service is left alone", func(t *testing.T) {
		indexing := &mockIndexingService{status: domain.IndexStatus{State: domain.IndexIdle}}
		ports := newPorts()
		ports.Indexing = indexing
		server, err := NewServer(ports)
		require.NoError(t, err)

		_, output, err := server.handleCancel(ctx, nil, StatusInput{})

		require.NoError(t, err)
		assert.False(t, indexing.cancelled)
		assert.Equal(t, "idle", output.State)
	})
}
