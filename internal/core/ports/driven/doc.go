// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - Catalog: Read-only source of books to index
//   - Extractor: Recovers table of contents and chapter text from a book file
//   - ExtractorRegistry: Selects an extractor by file type
//   - Chunker: Splits chapter text into overlapping windows
//   - EmbeddingService: Produces fixed-dimension vectors from text
//   - VectorIndex: Nearest-neighbour search over chunk vectors
//   - BookStore, ChunkStore, ProgressStore: Metadata persistence
//   - ConfigStore: Loads and saves configuration
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - ConversationService: Answers questions over search results. Without it, ask is disabled.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or extractor package
package driven
