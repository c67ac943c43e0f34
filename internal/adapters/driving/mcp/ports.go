package mcp

import (
	"github.com/custodia-labs/librarian/internal/core/domain"
	"github.com/custodia-labs/librarian/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Search answers semantic queries.
	Search driving.SearchService

	// Indexing runs and reports on the indexing pipeline.
	Indexing driving.IndexingService

	// Library exposes indexed books as resources. Optional.
	Library driving.LibraryService

	// Defaults fill in search options the caller leaves out.
	Defaults domain.SearchOptions
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Search == nil {
		return ErrMissingSearchService
	}
	if p.Indexing == nil {
		return ErrMissingIndexingService
	}
	return nil
}
