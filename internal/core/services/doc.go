// Package services implements the driving port interfaces.
// Services contain the core business logic: the indexing pipeline,
// the search engine and the library queries. They orchestrate calls
// to driven ports (catalog, extractors, embedding collaborator,
// vector index and metadata store).
package services
