package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/custodia-labs/librarian/internal/core/domain"
	"github.com/custodia-labs/librarian/internal/core/ports/driven"
)

const pairingKey = "index_pairing_id"

// progressStore implements driven.ProgressStore.
type progressStore struct {
	store *Store
}

var _ driven.ProgressStore = (*progressStore)(nil)

// SaveBookState records a book's latest state.
func (s *progressStore) SaveBookState(ctx context.Context, rec driven.BookStateRecord) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO book_states (catalog_id, run_id, state, error, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(catalog_id) DO UPDATE SET
			run_id = excluded.run_id,
			state = excluded.state,
			error = excluded.error,
			updated_at = excluded.updated_at
	`, rec.CatalogID, rec.RunID, string(rec.State), rec.Error, time.Now().UnixNano())
	return storeErr("saving book state", err)
}

// BookStates returns the states recorded for a run keyed by CatalogID.
func (s *progressStore) BookStates(ctx context.Context, runID string) (map[int64]driven.BookStateRecord, error) {
	records, err := s.queryStates(ctx, "SELECT catalog_id, run_id, state, error FROM book_states WHERE run_id = ?", runID)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]driven.BookStateRecord, len(records))
	for _, r := range records {
		out[r.CatalogID] = r
	}
	return out, nil
}

// FailedBooks returns every book whose latest state is Failed.
func (s *progressStore) FailedBooks(ctx context.Context) ([]driven.BookStateRecord, error) {
	return s.queryStates(ctx, `
		SELECT catalog_id, run_id, state, error FROM book_states
		WHERE state = ? ORDER BY catalog_id
	`, string(domain.BookFailed))
}

func (s *progressStore) queryStates(ctx context.Context, query string, args ...any) ([]driven.BookStateRecord, error) {
	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("querying book states", err)
	}
	defer rows.Close()

	var out []driven.BookStateRecord
	for rows.Next() {
		var r driven.BookStateRecord
		var state string
		if err := rows.Scan(&r.CatalogID, &r.RunID, &state, &r.Error); err != nil {
			return nil, storeErr("scanning book state", err)
		}
		r.State = domain.BookState(state)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterating book states", err)
	}
	return out, nil
}

// DeleteBookState forgets a book's state.
func (s *progressStore) DeleteBookState(ctx context.Context, catalogID int64) error {
	_, err := s.store.db.ExecContext(ctx, "DELETE FROM book_states WHERE catalog_id = ?", catalogID)
	return storeErr("deleting book state", err)
}

// SaveCheckpoint durably replaces the checkpoint.
func (s *progressStore) SaveCheckpoint(ctx context.Context, cp *domain.Checkpoint) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO checkpoints (id, run_id, full_reindex, cursor, last_catalog_id, books_total,
			books_done, books_skipped, books_failed, started_at, updated_at, completed)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			run_id = excluded.run_id,
			full_reindex = excluded.full_reindex,
			cursor = excluded.cursor,
			last_catalog_id = excluded.last_catalog_id,
			books_total = excluded.books_total,
			books_done = excluded.books_done,
			books_skipped = excluded.books_skipped,
			books_failed = excluded.books_failed,
			started_at = excluded.started_at,
			updated_at = excluded.updated_at,
			completed = excluded.completed
	`, cp.RunID, cp.FullReindex, cp.Cursor, cp.LastCatalogID, cp.BooksTotal,
		cp.BooksDone, cp.BooksSkipped, cp.BooksFailed,
		toUnix(cp.StartedAt), toUnix(cp.UpdatedAt), cp.Completed)
	return storeErr("saving checkpoint", err)
}

// LoadCheckpoint returns the checkpoint, or domain.ErrNotFound.
func (s *progressStore) LoadCheckpoint(ctx context.Context) (*domain.Checkpoint, error) {
	var cp domain.Checkpoint
	var started, updated int64
	err := s.store.db.QueryRowContext(ctx, `
		SELECT run_id, full_reindex, cursor, last_catalog_id, books_total,
			books_done, books_skipped, books_failed, started_at, updated_at, completed
		FROM checkpoints WHERE id = 1
	`).Scan(&cp.RunID, &cp.FullReindex, &cp.Cursor, &cp.LastCatalogID, &cp.BooksTotal,
		&cp.BooksDone, &cp.BooksSkipped, &cp.BooksFailed, &started, &updated, &cp.Completed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, storeErr("loading checkpoint", err)
	}
	cp.StartedAt = fromUnix(started)
	cp.UpdatedAt = fromUnix(updated)
	return &cp, nil
}

// PairingID returns the recorded vector index pairing, or "".
func (s *progressStore) PairingID(ctx context.Context) (string, error) {
	var id string
	err := s.store.db.QueryRowContext(ctx, "SELECT value FROM store_meta WHERE key = ?", pairingKey).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", storeErr("reading pairing id", err)
	}
	return id, nil
}

// SetPairingID records the vector index pairing.
func (s *progressStore) SetPairingID(ctx context.Context, id string) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO store_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, pairingKey, id)
	return storeErr("saving pairing id", err)
}
