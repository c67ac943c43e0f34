package extractors

import (
	"errors"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/librarian/internal/core/domain"
	"github.com/custodia-labs/librarian/internal/core/ports/driven"
)

// Ensure Registry implements the interface.
var _ driven.ExtractorRegistry = (*Registry)(nil)

// errNoExtractor is wrapped in the Unsupported error for unknown extensions.
var errNoExtractor = errors.New("no extractor for file type")

// Registry selects an extractor by file extension.
type Registry struct {
	mu    sync.RWMutex
	byExt map[string]driven.Extractor
}

// NewRegistry creates a registry holding the given extractors.
func NewRegistry(extractors ...driven.Extractor) *Registry {
	r := &Registry{byExt: make(map[string]driven.Extractor)}
	for _, e := range extractors {
		r.Register(e)
	}
	return r
}

// Register adds an extractor for each of its extensions. A later
// registration replaces an earlier one for the same extension.
func (r *Registry) Register(e driven.Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range e.Extensions() {
		r.byExt[strings.ToLower(ext)] = e
	}
}

// For returns the extractor for path.
func (r *Registry) For(path string) (driven.Extractor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, domain.NewExtractionError(domain.ExtractionUnsupported, path, errNoExtractor)
	}
	return e, nil
}

// Supports reports whether an extractor is registered for path.
func (r *Registry) Supports(path string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Extensions returns every registered extension, sorted.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}
