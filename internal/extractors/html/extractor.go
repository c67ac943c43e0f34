package html

import (
	"context"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/custodia-labs/librarian/internal/core/domain"
	"github.com/custodia-labs/librarian/internal/core/ports/driven"
	"github.com/custodia-labs/librarian/internal/extractors"
)

// Ensure Extractor implements the interface.
var _ driven.Extractor = (*Extractor)(nil)

// Extractor handles HTML books.
type Extractor struct{}

// New creates a new HTML extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extensions returns the file extensions this extractor handles.
func (e *Extractor) Extensions() []string {
	return []string{".html", ".htm", ".xhtml"}
}

// Extract parses the document and splits its body at h1 and h2 headings.
func (e *Extractor) Extract(ctx context.Context, path string) (*domain.Extraction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.NewExtractionError(domain.ExtractionCorrupt, path, err)
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return nil, domain.NewExtractionError(domain.ExtractionCorrupt, path, err)
	}

	title := collapse(doc.Find("head title").First().Text())
	author, _ := doc.Find(`meta[name="author"]`).First().Attr("content")

	s := &splitter{fallback: extractors.TitleFromPath(path)}
	doc.Find("body").Each(func(_ int, body *goquery.Selection) {
		for _, n := range body.Nodes {
			s.walk(n)
		}
	})
	s.flush()

	if title == "" {
		if len(s.toc) > 0 {
			title = s.toc[0].Title
		} else {
			title = s.fallback
		}
	}
	return extractors.Assemble(path, title, collapse(author), s.toc, s.chapters)
}

// splitter accumulates body text into chapters as it walks the tree.
type splitter struct {
	fallback string
	toc      []domain.TOCEntry
	chapters []domain.ExtractedChapter
	current  *domain.ExtractedChapter
	parts    []string
}

func (s *splitter) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		s.parts = append(s.parts, n.Data)
		return
	case html.ElementNode:
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Nav, atom.Noscript, atom.Svg:
			return
		case atom.H1, atom.H2:
			s.flush()
			heading := collapse(extractors.NodeText(n))
			level := 1
			if n.DataAtom == atom.H2 {
				level = 2
			}
			s.toc = append(s.toc, domain.TOCEntry{Title: heading, Ordinal: len(s.toc) + 1, Level: level, Href: "#" + attr(n, "id")})
			s.current = &domain.ExtractedChapter{Title: heading, Href: "#" + attr(n, "id")}
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		s.walk(c)
	}
}

func (s *splitter) flush() {
	text := extractors.CleanLines(strings.Join(s.parts, "\n"))
	s.parts = s.parts[:0]
	switch {
	case s.current != nil:
		s.current.Text = text
		s.chapters = append(s.chapters, *s.current)
		s.current = nil
	case text != "":
		s.chapters = append(s.chapters, domain.ExtractedChapter{Title: s.fallback, Text: text})
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
