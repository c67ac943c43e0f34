package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/custodia-labs/librarian/internal/core/domain"
	"github.com/custodia-labs/librarian/internal/core/ports/driven"
	"github.com/custodia-labs/librarian/internal/core/ports/driving"
	"github.com/custodia-labs/librarian/internal/logger"
	"github.com/custodia-labs/librarian/internal/telemetry"
)

// Ensure SearchService implements the interface.
var _ driving.SearchService = (*SearchService)(nil)

// similarityTolerance absorbs float32 rounding at the min similarity cut.
const similarityTolerance = 1e-6

// SearchService answers semantic queries over the indexed library.
type SearchService struct {
	embedder driven.EmbeddingService
	index    driven.VectorIndex
	chunks   driven.ChunkStore
	cfg      domain.SearchConfig
	metrics  *telemetry.Metrics
}

// NewSearchService creates a new search service.
// The metrics parameter is optional (can be nil).
func NewSearchService(
	embedder driven.EmbeddingService,
	index driven.VectorIndex,
	chunks driven.ChunkStore,
	cfg domain.SearchConfig,
	metrics *telemetry.Metrics,
) *SearchService {
	if cfg.OversampleFactor < 1 {
		cfg.OversampleFactor = 1
	}
	if cfg.ContextWindow < 1 {
		cfg.ContextWindow = 1
	}
	if cfg.SnippetLanguage == "" {
		cfg.SnippetLanguage = "en"
	}
	return &SearchService{
		embedder: embedder,
		index:    index,
		chunks:   chunks,
		cfg:      cfg,
		metrics:  metrics,
	}
}

// bookGroup collects the matching chapters of one book.
type bookGroup struct {
	result   domain.SearchResult
	chapters map[int64]bool
	best     []string // best chunk text per kept chapter
}

// Search embeds query once and returns books ranked by their best chunk.
// An empty query or an empty index yields an empty list.
func (s *SearchService) Search(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" || s.index.Len() == 0 {
		return []domain.SearchResult{}, nil
	}

	logger.Section("Search")
	logger.Debug("Query: %q, limit=%d, min_similarity=%.2f", query, opts.Limit, opts.MinSimilarity)
	started := time.Now()

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	// A limit above the index size cannot find more books.
	k := min(opts.Limit, s.index.Len()) * s.cfg.OversampleFactor
	hits, err := s.index.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	logger.Debug("Vector search: %d hits for k=%d", len(hits), k)

	kept := hits[:0:0]
	for _, h := range hits {
		if h.Similarity+similarityTolerance >= opts.MinSimilarity {
			kept = append(kept, h)
		}
	}
	if len(kept) == 0 {
		s.metrics.RecordSearch(ctx, time.Since(started), 0)
		return []domain.SearchResult{}, nil
	}

	positions := make([]int64, len(kept))
	for i, h := range kept {
		positions[i] = h.Pos
	}
	rows, err := s.chunks.ChunksByVectorPositions(ctx, positions)
	if err != nil {
		return nil, fmt.Errorf("resolve chunks: %w", err)
	}

	groups := s.group(kept, rows)
	groups = groups[:min(len(groups), opts.Limit)]

	terms := queryTerms(query, s.cfg.SnippetLanguage)
	results := make([]domain.SearchResult, len(groups))
	for i, g := range groups {
		for j := range g.result.Chapters {
			g.result.Chapters[j].Snippet = bestSentence(g.best[j], terms)
		}
		results[i] = g.result
	}

	s.metrics.RecordSearch(ctx, time.Since(started), len(results))
	logger.Debug("Search returned %d books in %s", len(results), time.Since(started))
	return results, nil
}

// group folds hits, already ordered by descending similarity, into books
// ranked by best similarity, ties by lower book ID.
func (s *SearchService) group(hits []domain.VectorHit, rows map[int64]domain.ChunkContext) []*bookGroup {
	groups := make(map[int64]*bookGroup)
	var order []*bookGroup

	for _, h := range hits {
		row, ok := rows[h.Pos]
		if !ok {
			logger.Warn("vector %d has no chunk row, skipping", h.Pos)
			continue
		}
		g, ok := groups[row.Book.ID]
		if !ok {
			g = &bookGroup{
				result: domain.SearchResult{
					BookID:     row.Book.ID,
					CatalogID:  row.Book.CatalogID,
					Title:      row.Book.Title,
					Author:     row.Book.Author,
					Similarity: h.Similarity,
				},
				chapters: make(map[int64]bool),
			}
			groups[row.Book.ID] = g
			order = append(order, g)
		}
		// The first hit for a chapter is its best.
		if g.chapters[row.Chapter.ID] || len(g.result.Chapters) >= s.cfg.ContextWindow {
			continue
		}
		g.chapters[row.Chapter.ID] = true
		g.result.Chapters = append(g.result.Chapters, domain.ChapterMatch{
			ChapterID:  row.Chapter.ID,
			Ordinal:    row.Chapter.Ordinal,
			Title:      row.Chapter.Title,
			Similarity: h.Similarity,
		})
		g.best = append(g.best, row.Chunk.Text)
	}

	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i].result, order[j].result
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		return a.BookID < b.BookID
	})
	return order
}
