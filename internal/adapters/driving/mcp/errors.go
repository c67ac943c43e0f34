// Package mcp provides an MCP (Model Context Protocol) server adapter for the
// librarian engine. It lets AI assistants search the indexed books and drive
// the indexing pipeline.
package mcp

import "errors"

// ErrMissingSearchService is returned when the search service is not provided.
var ErrMissingSearchService = errors.New("mcp: search service is required")

// ErrMissingIndexingService is returned when the indexing service is not provided.
var ErrMissingIndexingService = errors.New("mcp: indexing service is required")
