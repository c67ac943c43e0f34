package calibre

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const schema = `
CREATE TABLE books (id INTEGER PRIMARY KEY, title TEXT NOT NULL, path TEXT NOT NULL, pubdate TIMESTAMP);
CREATE TABLE authors (id INTEGER PRIMARY KEY, name TEXT NOT NULL);
CREATE TABLE books_authors_link (id INTEGER PRIMARY KEY, book INTEGER NOT NULL, author INTEGER NOT NULL);
CREATE TABLE comments (id INTEGER PRIMARY KEY, book INTEGER NOT NULL, text TEXT NOT NULL);
CREATE TABLE tags (id INTEGER PRIMARY KEY, name TEXT NOT NULL);
CREATE TABLE books_tags_link (id INTEGER PRIMARY KEY, book INTEGER NOT NULL, tag INTEGER NOT NULL);

INSERT INTO books VALUES
	(1, 'Moby Dick', 'Herman Melville/Moby Dick (1)', '1851-10-18 00:00:00+00:00'),
	(2, 'Good Omens', 'Terry Pratchett/Good Omens (2)', '0101-01-01 00:00:00+00:00'),
	(3, 'Scanned Atlas', 'Unknown/Scanned Atlas (3)', NULL),
	(4, 'Notes', 'Unknown/Notes (4)', '2020-05-01 12:30:00.123456+00:00');
INSERT INTO authors VALUES (1, 'Herman Melville'), (2, 'Terry Pratchett'), (3, 'Neil Gaiman');
INSERT INTO books_authors_link (book, author) VALUES (1, 1), (2, 2), (2, 3);
INSERT INTO comments (book, text) VALUES
	(1, '<div><p>A whaling voyage.</p><p>Call me <em>Ishmael</em>.</p></div>'),
	(4, 'Plain notes.');
INSERT INTO tags VALUES (1, 'Fiction'), (2, 'Sea, Ships');
INSERT INTO books_tags_link (book, tag) VALUES (1, 1), (1, 2);
`

func newLibrary(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	db, err := sql.Open("sqlite", filepath.Join(dir, MetadataFile))
	require.NoError(t, err)
	_, err = db.Exec(schema)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	files := map[string]string{
		"Herman Melville/Moby Dick (1)/Moby Dick - Herman Melville.txt":  "text",
		"Herman Melville/Moby Dick (1)/Moby Dick - Herman Melville.epub": "epub",
		"Herman Melville/Moby Dick (1)/cover.jpg":                        "jpg",
		"Terry Pratchett/Good Omens (2)/Good Omens.TXT":                  "text",
		"Unknown/Scanned Atlas (3)/Scanned Atlas.pdf":                    "pdf",
		"Unknown/Notes (4)/Notes.md":                                     "# Notes",
	}
	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0700))
		require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	}
	return dir
}

func TestOpen_MissingDatabase(t *testing.T) {
	_, err := Open(t.TempDir(), nil)
	assert.Error(t, err)
}

func TestCatalog_Entries(t *testing.T) {
	dir := newLibrary(t)
	cat, err := Open(dir, nil)
	require.NoError(t, err)
	defer cat.Close()

	entries, err := cat.Entries(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 3, "books without a supported format are left out")

	moby := entries[0]
	assert.EqualValues(t, 1, moby.CatalogID)
	assert.Equal(t, "Moby Dick", moby.Title)
	assert.Equal(t, "Herman Melville", moby.Author)
	assert.Equal(t, ".epub", filepath.Ext(moby.Path), "epub is preferred")
	assert.Equal(t, "A whaling voyage.\nCall me Ishmael.", moby.Summary)
	assert.ElementsMatch(t, []string{"Fiction", "Sea, Ships"}, moby.Tags)
	assert.Equal(t, time.Date(1851, 10, 18, 0, 0, 0, 0, time.UTC), moby.PublishedAt)

	omens := entries[1]
	assert.EqualValues(t, 2, omens.CatalogID)
	assert.Contains(t, omens.Author, "Terry Pratchett")
	assert.Contains(t, omens.Author, " & ")
	assert.Equal(t, "Good Omens.TXT", filepath.Base(omens.Path))
	assert.True(t, omens.PublishedAt.IsZero(), "placeholder date is unknown")
	assert.Empty(t, omens.Summary)
	assert.Empty(t, omens.Tags)

	notes := entries[2]
	assert.EqualValues(t, 4, notes.CatalogID)
	assert.Equal(t, "Plain notes.", notes.Summary)
	assert.Equal(t, 2020, notes.PublishedAt.Year())
}

func TestCatalog_FormatPreference(t *testing.T) {
	dir := newLibrary(t)
	cat, err := Open(dir, []string{".txt", ".epub"})
	require.NoError(t, err)
	defer cat.Close()

	entries, err := cat.Entries(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, ".txt", filepath.Ext(entries[0].Path))
	assert.Contains(t, cat.Name(), dir)
}

func TestCatalog_ReadOnly(t *testing.T) {
	dir := newLibrary(t)
	cat, err := Open(dir, nil)
	require.NoError(t, err)
	defer cat.Close()

	_, err = cat.db.Exec(`DELETE FROM books`)
	assert.Error(t, err)
}

func TestStripHTML(t *testing.T) {
	assert.Equal(t, "plain", stripHTML("  plain "))
	assert.Equal(t, "one\ntwo", stripHTML("<ul><li>one</li><li>two</li></ul>"))
	assert.Equal(t, "bare text", stripHTML("<span>bare   text</span>"))
}
