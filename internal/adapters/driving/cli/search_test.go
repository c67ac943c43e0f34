package cli

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/librarian/internal/core/domain"
)

func TestSearchCmd_Use(t *testing.T) {
	assert.Equal(t, "search [query]", searchCmd.Use)
}

func TestSearchCmd_Short(t *testing.T) {
	assert.Equal(t, "Search indexed books", searchCmd.Short)
}

func TestSearchCmd_Long(t *testing.T) {
	assert.Contains(t, searchCmd.Long, "semantic search")
	assert.Contains(t, searchCmd.Long, "cosine similarity")
}

func TestSearchCmd_RequiresQuery(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"search"})

	err := rootCmd.Execute()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg(s)")
}

func TestSearchCmd_HasLimitFlag(t *testing.T) {
	flag := searchCmd.Flags().Lookup("limit")
	require.NotNil(t, flag, "limit flag should exist")
	assert.Equal(t, "n", flag.Shorthand)
	assert.Equal(t, "10", flag.DefValue)
}

func TestSearchCmd_HasMinSimilarityFlag(t *testing.T) {
	flag := searchCmd.Flags().Lookup("min-similarity")
	require.NotNil(t, flag)
	assert.Equal(t, "0.3", flag.DefValue)
}

func TestSearchCmd_ExecutesWithQuery(t *testing.T) {
	ts, cleanup := setupTestServicesWith(newTestServices())
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"search", "white", "whale"})

	err := rootCmd.Execute()

	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "Results:")
	assert.Contains(t, out, "Moby Dick")
	assert.Contains(t, out, "Herman Melville")
	assert.Contains(t, out, "0.82")
	assert.Contains(t, out, "Loomings")
	assert.Contains(t, out, "Call me Ishmael.")
	assert.Equal(t, "white whale", ts.search.gotQuery)
}

func TestSearchCmd_OptionsFromConfig(t *testing.T) {
	ts, cleanup := setupTestServicesWith(newTestServices())
	defer cleanup()
	appConfig.Search.Limit = 4
	appConfig.Search.MinSimilarity = 0.5

	rootCmd.SetOut(new(bytes.Buffer))
	rootCmd.SetArgs([]string{"search", "query"})

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, 4, ts.search.gotOpts.Limit)
	assert.InDelta(t, 0.5, ts.search.gotOpts.MinSimilarity, 1e-9)
}

func TestSearchCmd_FlagsOverrideConfig(t *testing.T) {
	ts, cleanup := setupTestServicesWith(newTestServices())
	defer cleanup()
	appConfig.Search.Limit = 4

	rootCmd.SetOut(new(bytes.Buffer))
	rootCmd.SetArgs([]string{"search", "-n", "25", "--min-similarity", "0", "query"})

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, 25, ts.search.gotOpts.Limit)
	assert.Zero(t, ts.search.gotOpts.MinSimilarity)
}

func TestSearchCmd_JSONOutput(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"search", "--json", "test query"})

	err := rootCmd.Execute()

	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"book_id": 1`)
	assert.Contains(t, buf.String(), `"title": "Moby Dick"`)
	assert.Contains(t, buf.String(), `"snippet": "Call me Ishmael."`)
}

func TestSearchCmd_ServiceNotConfigured(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	searchService = nil

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"search", "test"})

	err := rootCmd.Execute()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "search service not configured")
}

func TestSearchCmd_SearchFails(t *testing.T) {
	ts := newTestServices()
	ts.search.err = errors.New("embedding service unavailable")
	_, cleanup := setupTestServicesWith(ts)
	defer cleanup()

	rootCmd.SetOut(new(bytes.Buffer))
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetArgs([]string{"search", "test"})

	err := rootCmd.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "search failed")
}

func TestOutputJSON_EmptyResults(t *testing.T) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)

	err := outputJSON(rootCmd, []domain.SearchResult{})

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "[]")
}

func TestOutputSearchResults_EmptyResults(t *testing.T) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)

	err := outputSearchResults(rootCmd, []domain.SearchResult{})

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "No results found")
}

func TestChapterLabel(t *testing.T) {
	assert.Equal(t, "Loomings", chapterLabel(1, "Loomings"))
	assert.Equal(t, "About", chapterLabel(0, ""))
	assert.Equal(t, "Chapter 7", chapterLabel(7, ""))
}
