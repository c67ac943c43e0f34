// Package calibre reads books from a Calibre library's metadata.db.
//
// The database is opened read-only; the catalog never writes to it.
// Each book's file is the first format, in preference order, present in
// the book's directory.
package calibre

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	_ "modernc.org/sqlite"

	"github.com/custodia-labs/librarian/internal/core/domain"
	"github.com/custodia-labs/librarian/internal/core/ports/driven"
	"github.com/custodia-labs/librarian/internal/logger"
)

// Ensure Catalog implements the interface.
var _ driven.Catalog = (*Catalog)(nil)

// MetadataFile is Calibre's database inside the library directory.
const MetadataFile = "metadata.db"

// DefaultFormats is the format preference used when none is given.
var DefaultFormats = []string{".epub", ".html", ".htm", ".md", ".txt"}

// tagSeparator cannot appear in a tag name.
const tagSeparator = "\x1f"

const entriesQuery = `
	SELECT
		b.id,
		b.title,
		b.path,
		COALESCE(b.pubdate, ''),
		COALESCE((SELECT GROUP_CONCAT(a.name, ' & ')
			FROM authors a
			JOIN books_authors_link bal ON a.id = bal.author
			WHERE bal.book = b.id), ''),
		COALESCE((SELECT text FROM comments WHERE book = b.id), ''),
		COALESCE((SELECT GROUP_CONCAT(t.name, char(31))
			FROM tags t
			JOIN books_tags_link btl ON t.id = btl.tag
			WHERE btl.book = b.id), '')
	FROM books b
	ORDER BY b.id
`

// Catalog is a read-only view of a Calibre library.
type Catalog struct {
	db      *sql.DB
	library string
	formats []string
}

// Open opens the library at dir. formats lists file extensions in
// preference order; nil uses DefaultFormats.
func Open(dir string, formats []string) (*Catalog, error) {
	dbPath := filepath.Join(dir, MetadataFile)
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("calibre database: %w", err)
	}
	if len(formats) == 0 {
		formats = DefaultFormats
	}

	dsn := (&url.URL{Scheme: "file", Path: dbPath, RawQuery: "mode=ro&_pragma=busy_timeout(5000)"}).String()
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening calibre database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening calibre database: %w", err)
	}
	return &Catalog{db: db, library: dir, formats: formats}, nil
}

// Name identifies the catalog in logs.
func (c *Catalog) Name() string {
	return "calibre:" + c.library
}

// Close releases the database handle.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Entries returns every book with a supported format, ordered by id.
func (c *Catalog) Entries(ctx context.Context) ([]domain.CatalogEntry, error) {
	rows, err := c.db.QueryContext(ctx, entriesQuery)
	if err != nil {
		return nil, fmt.Errorf("querying calibre books: %w", err)
	}
	defer rows.Close()

	var entries []domain.CatalogEntry
	skipped := 0
	for rows.Next() {
		var (
			e                            domain.CatalogEntry
			dir, pubdate, comments, tags string
		)
		if err := rows.Scan(&e.CatalogID, &e.Title, &dir, &pubdate, &e.Author, &comments, &tags); err != nil {
			return nil, fmt.Errorf("scanning calibre book: %w", err)
		}
		e.Path = c.bookFile(filepath.Join(c.library, filepath.FromSlash(dir)))
		if e.Path == "" {
			skipped++
			logger.Debug("calibre book %d (%s): no supported format", e.CatalogID, e.Title)
			continue
		}
		e.Summary = stripHTML(comments)
		if tags != "" {
			e.Tags = strings.Split(tags, tagSeparator)
		}
		e.PublishedAt = parsePubdate(pubdate)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading calibre books: %w", err)
	}
	if skipped > 0 {
		logger.Info("calibre: %d books have no supported format", skipped)
	}
	return entries, nil
}

// bookFile returns the preferred book file in dir, or "" if none.
func (c *Catalog) bookFile(dir string) string {
	files, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, ext := range c.formats {
		for _, f := range files {
			if !f.IsDir() && strings.EqualFold(filepath.Ext(f.Name()), ext) {
				return filepath.Join(dir, f.Name())
			}
		}
	}
	return ""
}

// stripHTML flattens Calibre's HTML comments to text.
func stripHTML(s string) string {
	if !strings.ContainsRune(s, '<') {
		return strings.TrimSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	var parts []string
	doc.Find("p, li:not(:has(p))").Each(func(_ int, sel *goquery.Selection) {
		if t := strings.Join(strings.Fields(sel.Text()), " "); t != "" {
			parts = append(parts, t)
		}
	})
	if len(parts) == 0 {
		return strings.Join(strings.Fields(doc.Text()), " ")
	}
	return strings.Join(parts, "\n")
}

// pubdateLayouts are the forms Calibre has written over time.
var pubdateLayouts = []string{
	"2006-01-02 15:04:05.999999-07:00",
	"2006-01-02 15:04:05-07:00",
	time.RFC3339Nano,
	"2006-01-02",
}

// parsePubdate returns the zero time for empty or placeholder dates.
// Calibre stores "unknown" as year 101.
func parsePubdate(s string) time.Time {
	for _, layout := range pubdateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			if t.Year() < 1000 {
				return time.Time{}
			}
			return t.UTC()
		}
	}
	return time.Time{}
}
