package extractors

import (
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/custodia-labs/librarian/internal/core/domain"
)

// skipped elements contribute no text.
var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Nav:      true,
	atom.Noscript: true,
	atom.Svg:      true,
	atom.Head:     true,
}

// NodeText returns the text under n with text nodes separated by newlines,
// each line trimmed and blank lines dropped.
func NodeText(n *html.Node) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skipped[n.DataAtom] {
			return
		}
		if n.Type == html.TextNode {
			parts = append(parts, n.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return CleanLines(strings.Join(parts, "\n"))
}

// CleanLines trims every line and drops blank ones.
func CleanLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// WordCount returns the number of whitespace separated words.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// TitleFromPath derives a title from a file name.
func TitleFromPath(path string) string {
	filename := filepath.Base(path)
	if ext := filepath.Ext(filename); ext != "" {
		filename = strings.TrimSuffix(filename, ext)
	}
	filename = strings.ReplaceAll(filename, "_", " ")
	filename = strings.ReplaceAll(filename, "-", " ")
	return strings.TrimSpace(filename)
}

// Assemble builds an Extraction from raw chapters. Chapters without text
// are dropped, the rest are numbered from 1 and their words counted.
// It fails with an Empty ExtractionError when no chapter has text.
func Assemble(path, title, author string, toc []domain.TOCEntry, chapters []domain.ExtractedChapter) (*domain.Extraction, error) {
	ex := &domain.Extraction{Title: title, Author: author, TOC: toc}
	for _, ch := range chapters {
		ch.Text = strings.TrimSpace(ch.Text)
		if ch.Text == "" {
			continue
		}
		ch.Ordinal = len(ex.Chapters) + 1
		if ch.Title == "" {
			ch.Title = fmt.Sprintf("Chapter %d", ch.Ordinal)
		}
		ch.WordCount = WordCount(ch.Text)
		ex.Chapters = append(ex.Chapters, ch)
	}
	if len(ex.Chapters) == 0 {
		return nil, domain.NewExtractionError(domain.ExtractionEmpty, path, nil)
	}
	return ex, nil
}
