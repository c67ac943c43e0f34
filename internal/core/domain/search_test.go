package domain

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchOptions_Validate(t *testing.T) {
	tests := []struct {
		name  string
		opts  SearchOptions
		valid bool
	}{
		{"lower bound", SearchOptions{Limit: 1, MinSimilarity: 0}, true},
		{"upper bound", SearchOptions{Limit: 5, MinSimilarity: 1}, true},
		{"zero limit", SearchOptions{Limit: 0}, false},
		{"negative similarity", SearchOptions{Limit: 1, MinSimilarity: -0.1}, false},
		{"similarity above one", SearchOptions{Limit: 1, MinSimilarity: 1.01}, false},
		{"NaN similarity", SearchOptions{Limit: 1, MinSimilarity: math.NaN()}, false},
		{"infinite similarity", SearchOptions{Limit: 1, MinSimilarity: math.Inf(1)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidInput)
			}
		})
	}
}

func TestSearchResult_JSONShape(t *testing.T) {
	r := SearchResult{
		BookID: 7, CatalogID: 70, Title: "Historia de Roma", Author: "Mommsen", Similarity: 0.91,
		Chapters: []ChapterMatch{{ChapterID: 3, Ordinal: 1, Title: "Los orígenes", Similarity: 0.91, Snippet: "Roma..."}},
	}

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	for _, key := range []string{"book_id", "catalog_id", "title", "author", "similarity", "chapters"} {
		assert.Contains(t, m, key)
	}
	chapter := m["chapters"].([]any)[0].(map[string]any)
	for _, key := range []string{"chapter_id", "ordinal", "title", "similarity", "snippet"} {
		assert.Contains(t, chapter, key)
	}
}

func TestFormatContext(t *testing.T) {
	out := FormatContext([]SearchResult{{
		Title: "Meditations", Author: "Marcus Aurelius", Similarity: 0.8,
		Chapters: []ChapterMatch{{Title: "Book II", Similarity: 0.75, Snippet: "Begin the morning"}},
	}})

	assert.Contains(t, out, "[1] Meditations by Marcus Aurelius (similarity 0.80)")
	assert.Contains(t, out, "  - Book II (0.75): Begin the morning")
	assert.Empty(t, FormatContext(nil))
}
