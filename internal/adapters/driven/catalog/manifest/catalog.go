// Package manifest reads books from a YAML manifest file.
//
// Example:
//
//	books:
//	  - id: 1
//	    title: Moby Dick
//	    author: Herman Melville
//	    path: books/moby-dick.epub
//	    tags: [fiction, sea]
//	    published: 1851-10-18
//	    summary: A whaling voyage.
//
// Relative paths are resolved against the manifest's directory. The file
// is read on every call to Entries, so edits are picked up without a restart.
package manifest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/librarian/internal/core/domain"
	"github.com/custodia-labs/librarian/internal/core/ports/driven"
)

// Ensure Catalog implements the interface.
var _ driven.Catalog = (*Catalog)(nil)

type manifestFile struct {
	Books []manifestBook `yaml:"books"`
}

type manifestBook struct {
	ID        int64    `yaml:"id"`
	Title     string   `yaml:"title"`
	Author    string   `yaml:"author"`
	Path      string   `yaml:"path"`
	Summary   string   `yaml:"summary"`
	Tags      []string `yaml:"tags"`
	Published string   `yaml:"published"`
}

// Catalog serves the books listed in a manifest.
type Catalog struct {
	path string
}

// Open checks that the manifest exists and parses.
func Open(path string) (*Catalog, error) {
	c := &Catalog{path: path}
	if _, err := c.Entries(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

// Name identifies the catalog in logs.
func (c *Catalog) Name() string {
	return "manifest:" + c.path
}

// Close is a no-op.
func (c *Catalog) Close() error {
	return nil
}

// Entries parses the manifest and returns its books ordered by id.
func (c *Catalog) Entries(ctx context.Context) ([]domain.CatalogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var mf manifestFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", c.path, err)
	}

	base := filepath.Dir(c.path)
	seen := make(map[int64]bool, len(mf.Books))
	entries := make([]domain.CatalogEntry, 0, len(mf.Books))
	var errs []error
	for i, b := range mf.Books {
		switch {
		case b.ID < 1:
			errs = append(errs, fmt.Errorf("book %d: id must be positive", i+1))
			continue
		case seen[b.ID]:
			errs = append(errs, fmt.Errorf("book %d: duplicate id %d", i+1, b.ID))
			continue
		case strings.TrimSpace(b.Path) == "":
			errs = append(errs, fmt.Errorf("book %d: path is required", b.ID))
			continue
		}
		seen[b.ID] = true

		published, err := parseDate(b.Published)
		if err != nil {
			errs = append(errs, fmt.Errorf("book %d: %w", b.ID, err))
			continue
		}
		path := b.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(base, filepath.FromSlash(path))
		}
		entries = append(entries, domain.CatalogEntry{
			CatalogID:   b.ID,
			Title:       strings.TrimSpace(b.Title),
			Author:      strings.TrimSpace(b.Author),
			Path:        path,
			Summary:     strings.TrimSpace(b.Summary),
			Tags:        b.Tags,
			PublishedAt: published,
		})
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: manifest %s: %w", domain.ErrInvalidInput, c.path, errors.Join(errs...))
	}

	slices.SortFunc(entries, func(a, b domain.CatalogEntry) int {
		switch {
		case a.CatalogID < b.CatalogID:
			return -1
		case a.CatalogID > b.CatalogID:
			return 1
		}
		return 0
	})
	return entries, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{"2006-01-02", "2006-01", "2006", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("published %q is not a date", s)
}
