package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/custodia-labs/librarian/internal/core/domain"
	"github.com/custodia-labs/librarian/internal/core/ports/driven"
)

// bookStore implements driven.BookStore.
type bookStore struct {
	store *Store
}

var _ driven.BookStore = (*bookStore)(nil)

const bookColumns = `id, catalog_id, title, author, path, summary, tags,
	published_at, indexed_at, file_mod_time, content_hash`

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// upsertBook inserts or updates a book by catalog_id and sets book.ID.
func upsertBook(ctx context.Context, db execer, book *domain.Book) error {
	tags, err := marshalTags(book.Tags)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO books (catalog_id, title, author, path, summary, tags,
			published_at, indexed_at, file_mod_time, content_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(catalog_id) DO UPDATE SET
			title = excluded.title,
			author = excluded.author,
			path = excluded.path,
			summary = excluded.summary,
			tags = excluded.tags,
			published_at = excluded.published_at,
			indexed_at = excluded.indexed_at,
			file_mod_time = excluded.file_mod_time,
			content_hash = excluded.content_hash
	`, book.CatalogID, book.Title, book.Author, book.Path, book.Summary, tags,
		toUnix(book.PublishedAt), toUnix(book.IndexedAt), toUnix(book.FileModTime), book.ContentHash)
	if err != nil {
		return err
	}

	return db.QueryRowContext(ctx, "SELECT id FROM books WHERE catalog_id = ?", book.CatalogID).Scan(&book.ID)
}

// SaveBook inserts or updates a book by CatalogID.
func (s *bookStore) SaveBook(ctx context.Context, book *domain.Book) error {
	return storeErr("saving book", upsertBook(ctx, s.store.db, book))
}

// GetBook retrieves a book by ID.
func (s *bookStore) GetBook(ctx context.Context, id int64) (*domain.Book, error) {
	row := s.store.db.QueryRowContext(ctx, "SELECT "+bookColumns+" FROM books WHERE id = ?", id)
	return scanBook(row)
}

// GetBookByCatalogID retrieves a book by its catalog identifier.
func (s *bookStore) GetBookByCatalogID(ctx context.Context, catalogID int64) (*domain.Book, error) {
	row := s.store.db.QueryRowContext(ctx, "SELECT "+bookColumns+" FROM books WHERE catalog_id = ?", catalogID)
	return scanBook(row)
}

// ListBooks returns books ordered by ID.
func (s *bookStore) ListBooks(ctx context.Context, offset, limit int) ([]domain.Book, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.store.db.QueryContext(ctx,
		"SELECT "+bookColumns+" FROM books ORDER BY id LIMIT ? OFFSET ?", limit, offset)
	if err != nil {
		return nil, storeErr("querying books", err)
	}
	defer rows.Close()

	var books []domain.Book //nolint:prealloc // size unknown from query
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, *book)
	}

	if err := rows.Err(); err != nil {
		return nil, storeErr("iterating books", err)
	}

	return books, nil
}

// DeleteBook removes a book with its chapters and chunks and returns the
// vector positions it released.
func (s *bookStore) DeleteBook(ctx context.Context, id int64) ([]int64, error) {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("beginning transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var catalogID int64
	if err := tx.QueryRowContext(ctx, "SELECT catalog_id FROM books WHERE id = ?", id).Scan(&catalogID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, storeErr("deleting book", err)
	}

	positions, err := bookPositions(ctx, tx, id)
	if err != nil {
		return nil, storeErr("deleting book", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM books WHERE id = ?", id); err != nil {
		return nil, storeErr("deleting book", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM book_states WHERE catalog_id = ?", catalogID); err != nil {
		return nil, storeErr("deleting book state", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, storeErr("committing transaction", err)
	}
	return positions, nil
}

// ReplaceBookContent writes a book with its chapters and chunks in one
// transaction. Previous chapters and chunks are deleted first and their
// vector positions returned. IDs are set on content.
func (s *bookStore) ReplaceBookContent(ctx context.Context, content *domain.BookContent) ([]int64, error) {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("beginning transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	book := &content.Book
	if err := upsertBook(ctx, tx, book); err != nil {
		return nil, storeErr("replacing book", err)
	}

	old, err := bookPositions(ctx, tx, book.ID)
	if err != nil {
		return nil, storeErr("replacing book", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM chapters WHERE book_id = ?", book.ID); err != nil {
		return nil, storeErr("deleting chapters", err)
	}

	chapterStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chapters (book_id, ordinal, title, href, word_count)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return nil, storeErr("preparing statement", err)
	}
	defer chapterStmt.Close()

	chunkStmt, err := tx.PrepareContext(ctx, insertChunkSQL)
	if err != nil {
		return nil, storeErr("preparing statement", err)
	}
	defer chunkStmt.Close()

	for i := range content.Chapters {
		cc := &content.Chapters[i]
		cc.Chapter.BookID = book.ID
		res, err := chapterStmt.ExecContext(ctx, book.ID, cc.Chapter.Ordinal,
			cc.Chapter.Title, cc.Chapter.Href, cc.Chapter.WordCount)
		if err != nil {
			return nil, storeErr("saving chapter", err)
		}
		if cc.Chapter.ID, err = res.LastInsertId(); err != nil {
			return nil, storeErr("saving chapter", err)
		}

		for j := range cc.Chunks {
			chunk := &cc.Chunks[j]
			chunk.ChapterID = cc.Chapter.ID
			if err := insertChunk(ctx, chunkStmt, chunk); err != nil {
				return nil, storeErr("saving chunk", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, storeErr("committing transaction", err)
	}
	return old, nil
}

// Stats summarises the store.
func (s *bookStore) Stats(ctx context.Context) (*domain.Stats, error) {
	var st domain.Stats
	err := s.store.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM books),
			(SELECT COUNT(*) FROM chapters),
			(SELECT COUNT(*) FROM chunks),
			(SELECT COALESCE(SUM(word_count), 0) FROM chapters),
			(SELECT COUNT(*) FROM book_states WHERE state = ?)
	`, string(domain.BookFailed)).Scan(&st.Books, &st.Chapters, &st.Chunks, &st.Words, &st.Failed)
	if err != nil {
		return nil, storeErr("reading stats", err)
	}
	return &st, nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// bookPositions returns the vector positions of a book's chunks.
func bookPositions(ctx context.Context, q querier, bookID int64) ([]int64, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT c.vector_pos FROM chunks c
		JOIN chapters ch ON ch.id = c.chapter_id
		WHERE ch.book_id = ?
		ORDER BY c.vector_pos
	`, bookID)
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

// scanBook scans a single book row.
func scanBook(row rowScanner) (*domain.Book, error) {
	var book domain.Book
	var tags string
	var published, indexed, modTime int64

	if err := row.Scan(&book.ID, &book.CatalogID, &book.Title, &book.Author, &book.Path,
		&book.Summary, &tags, &published, &indexed, &modTime, &book.ContentHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, storeErr("scanning book", err)
	}

	var err error
	if book.Tags, err = unmarshalTags(tags); err != nil {
		return nil, err
	}
	book.PublishedAt = fromUnix(published)
	book.IndexedAt = fromUnix(indexed)
	book.FileModTime = fromUnix(modTime)

	return &book, nil
}

