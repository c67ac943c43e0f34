// Package domain defines the core entities of the librarian indexing engine.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Book: A catalog entry that has been indexed
//   - Chapter: An ordered section of a book's text
//   - Chunk: An overlapping window of chapter text linked to a vector
//   - Checkpoint: Durable progress of an indexing run
//   - SearchResult: A book-level ranked answer to a query
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
