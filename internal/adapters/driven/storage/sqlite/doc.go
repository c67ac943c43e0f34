// Package sqlite provides the SQLite-based metadata store.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. It implements several store interfaces
// through a single database connection:
//
//   - BookStore: Books and whole-book commits
//   - ChunkStore: Chapters, chunks and vector position lookups
//   - ProgressStore: Per-book pipeline state, checkpoints and index pairing
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Data Location
//
// By default, the database is stored at ~/.librarian/data/library.db
//
// # Errors
//
// Failed operations return *domain.StoreError classified as a constraint
// violation or an I/O failure. Missing rows return domain.ErrNotFound.
package sqlite
