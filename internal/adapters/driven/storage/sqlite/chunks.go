package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/custodia-labs/librarian/internal/core/domain"
	"github.com/custodia-labs/librarian/internal/core/ports/driven"
)

// maxParams keeps IN lists under SQLite's host parameter limit.
const maxParams = 500

const insertChunkSQL = `
	INSERT INTO chunks (chapter_id, ordinal, text, start_offset, end_offset, vector_pos)
	VALUES (?, ?, ?, ?, ?, ?)
`

// chunkStore implements driven.ChunkStore.
type chunkStore struct {
	store *Store
}

var _ driven.ChunkStore = (*chunkStore)(nil)

func insertChunk(ctx context.Context, stmt *sql.Stmt, chunk *domain.Chunk) error {
	res, err := stmt.ExecContext(ctx, chunk.ChapterID, chunk.Ordinal, chunk.Text,
		chunk.StartOffset, chunk.EndOffset, chunk.VectorPos)
	if err != nil {
		return err
	}
	chunk.ID, err = res.LastInsertId()
	return err
}

// SaveChapter inserts a chapter.
func (s *chunkStore) SaveChapter(ctx context.Context, chapter *domain.Chapter) error {
	res, err := s.store.db.ExecContext(ctx, `
		INSERT INTO chapters (book_id, ordinal, title, href, word_count)
		VALUES (?, ?, ?, ?, ?)
	`, chapter.BookID, chapter.Ordinal, chapter.Title, chapter.Href, chapter.WordCount)
	if err != nil {
		return storeErr("saving chapter", err)
	}
	chapter.ID, err = res.LastInsertId()
	return storeErr("saving chapter", err)
}

// GetChapter retrieves a chapter by ID.
func (s *chunkStore) GetChapter(ctx context.Context, id int64) (*domain.Chapter, error) {
	var ch domain.Chapter
	err := s.store.db.QueryRowContext(ctx, `
		SELECT id, book_id, ordinal, title, href, word_count FROM chapters WHERE id = ?
	`, id).Scan(&ch.ID, &ch.BookID, &ch.Ordinal, &ch.Title, &ch.Href, &ch.WordCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, storeErr("scanning chapter", err)
	}
	return &ch, nil
}

// Chapters returns a book's chapters ordered by ordinal.
func (s *chunkStore) Chapters(ctx context.Context, bookID int64) ([]domain.Chapter, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, book_id, ordinal, title, href, word_count
		FROM chapters WHERE book_id = ?
		ORDER BY ordinal
	`, bookID)
	if err != nil {
		return nil, storeErr("querying chapters", err)
	}
	defer rows.Close()

	var chapters []domain.Chapter //nolint:prealloc // size unknown from query
	for rows.Next() {
		var ch domain.Chapter
		if err := rows.Scan(&ch.ID, &ch.BookID, &ch.Ordinal, &ch.Title, &ch.Href, &ch.WordCount); err != nil {
			return nil, storeErr("scanning chapter", err)
		}
		chapters = append(chapters, ch)
	}

	if err := rows.Err(); err != nil {
		return nil, storeErr("iterating chapters", err)
	}

	return chapters, nil
}

// SaveChunks inserts chunks in a single transaction.
func (s *chunkStore) SaveChunks(ctx context.Context, chunks []domain.Chunk) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("beginning transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, insertChunkSQL)
	if err != nil {
		return storeErr("preparing statement", err)
	}
	defer stmt.Close()

	for i := range chunks {
		if err := insertChunk(ctx, stmt, &chunks[i]); err != nil {
			return storeErr("saving chunk", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storeErr("committing transaction", err)
	}
	return nil
}

// Chunks returns a chapter's chunks ordered by ordinal.
func (s *chunkStore) Chunks(ctx context.Context, chapterID int64) ([]domain.Chunk, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, chapter_id, ordinal, text, start_offset, end_offset, vector_pos
		FROM chunks WHERE chapter_id = ?
		ORDER BY ordinal
	`, chapterID)
	if err != nil {
		return nil, storeErr("querying chunks", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk //nolint:prealloc // size unknown from query
	for rows.Next() {
		var c domain.Chunk
		if err := rows.Scan(&c.ID, &c.ChapterID, &c.Ordinal, &c.Text,
			&c.StartOffset, &c.EndOffset, &c.VectorPos); err != nil {
			return nil, storeErr("scanning chunk", err)
		}
		chunks = append(chunks, c)
	}

	if err := rows.Err(); err != nil {
		return nil, storeErr("iterating chunks", err)
	}

	return chunks, nil
}

const contextSelect = `
	SELECT c.id, c.chapter_id, c.ordinal, c.text, c.start_offset, c.end_offset, c.vector_pos,
		ch.id, ch.book_id, ch.ordinal, ch.title, ch.href, ch.word_count,
		b.id, b.catalog_id, b.title, b.author, b.path, b.summary, b.tags,
		b.published_at, b.indexed_at, b.file_mod_time, b.content_hash
	FROM chunks c
	JOIN chapters ch ON ch.id = c.chapter_id
	JOIN books b ON b.id = ch.book_id
`

// ChunkByVectorPosition resolves a vector position to its chunk, chapter and book.
func (s *chunkStore) ChunkByVectorPosition(ctx context.Context, pos int64) (*domain.ChunkContext, error) {
	row := s.store.db.QueryRowContext(ctx, contextSelect+" WHERE c.vector_pos = ?", pos)
	cc, err := scanChunkContext(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, storeErr("resolving vector position", err)
	}
	return cc, nil
}

// ChunksByVectorPositions resolves positions in batched queries.
func (s *chunkStore) ChunksByVectorPositions(ctx context.Context, positions []int64) (map[int64]domain.ChunkContext, error) {
	out := make(map[int64]domain.ChunkContext, len(positions))

	for start := 0; start < len(positions); start += maxParams {
		batch := positions[start:min(start+maxParams, len(positions))]
		args := make([]any, len(batch))
		for i, p := range batch {
			args[i] = p
		}

		rows, err := s.store.db.QueryContext(ctx,
			contextSelect+" WHERE c.vector_pos IN ("+placeholders(len(batch))+")", args...)
		if err != nil {
			return nil, storeErr("resolving vector positions", err)
		}
		for rows.Next() {
			cc, err := scanChunkContext(rows)
			if err != nil {
				rows.Close()
				return nil, storeErr("resolving vector positions", err)
			}
			out[cc.Chunk.VectorPos] = *cc
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, storeErr("iterating vector positions", err)
		}
	}

	return out, nil
}

// VectorPositions returns every stored vector position in ascending order.
func (s *chunkStore) VectorPositions(ctx context.Context) ([]int64, error) {
	positions, err := allPositions(ctx, s.store.db)
	return positions, storeErr("querying vector positions", err)
}

func allPositions(ctx context.Context, q querier) ([]int64, error) {
	rows, err := q.QueryContext(ctx, "SELECT vector_pos FROM chunks ORDER BY vector_pos")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []int64
	for rows.Next() {
		var pos int64
		if err := rows.Scan(&pos); err != nil {
			return nil, err
		}
		positions = append(positions, pos)
	}
	return positions, rows.Err()
}

func scanChunkContext(row rowScanner) (*domain.ChunkContext, error) {
	var cc domain.ChunkContext
	var tags string
	var published, indexed, modTime int64

	c, ch, b := &cc.Chunk, &cc.Chapter, &cc.Book
	if err := row.Scan(
		&c.ID, &c.ChapterID, &c.Ordinal, &c.Text, &c.StartOffset, &c.EndOffset, &c.VectorPos,
		&ch.ID, &ch.BookID, &ch.Ordinal, &ch.Title, &ch.Href, &ch.WordCount,
		&b.ID, &b.CatalogID, &b.Title, &b.Author, &b.Path, &b.Summary, &tags,
		&published, &indexed, &modTime, &b.ContentHash,
	); err != nil {
		return nil, err
	}

	var err error
	if b.Tags, err = unmarshalTags(tags); err != nil {
		return nil, err
	}
	b.PublishedAt = fromUnix(published)
	b.IndexedAt = fromUnix(indexed)
	b.FileModTime = fromUnix(modTime)
	return &cc, nil
}
