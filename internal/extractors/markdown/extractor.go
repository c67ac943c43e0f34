// Package markdown provides an Extractor for Markdown books.
// Level one and two headings start chapters.
package markdown

import (
	"context"
	"html"
	"os"
	"regexp"
	"strings"

	"github.com/custodia-labs/librarian/internal/core/domain"
	"github.com/custodia-labs/librarian/internal/core/ports/driven"
	"github.com/custodia-labs/librarian/internal/extractors"
)

// Ensure Extractor implements the interface.
var _ driven.Extractor = (*Extractor)(nil)

// Extractor handles Markdown books.
type Extractor struct{}

// New creates a new Markdown extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extensions returns the file extensions this extractor handles.
func (e *Extractor) Extensions() []string {
	return []string{".md", ".markdown"}
}

var chapterHeading = regexp.MustCompile(`^(#{1,2})\s+(.+?)\s*#*\s*$`)

// Extract splits the file at level one and two headings.
func (e *Extractor) Extract(ctx context.Context, path string) (*domain.Extraction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.NewExtractionError(domain.ExtractionCorrupt, path, err)
	}
	content := strings.ReplaceAll(strings.ToValidUTF8(string(data), "�"), "\r\n", "\n")

	var (
		title    string
		toc      []domain.TOCEntry
		chapters []domain.ExtractedChapter
		current  *domain.ExtractedChapter
		body     []string
		inFence  bool
	)
	flush := func() {
		if current != nil {
			current.Text = stripMarkdown(strings.Join(body, "\n"))
			chapters = append(chapters, *current)
		} else if text := stripMarkdown(strings.Join(body, "\n")); text != "" {
			chapters = append(chapters, domain.ExtractedChapter{Title: extractors.TitleFromPath(path), Text: text})
		}
		body = body[:0]
	}

	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
		}
		m := chapterHeading.FindStringSubmatch(line)
		if inFence || m == nil {
			body = append(body, line)
			continue
		}
		flush()
		heading := stripMarkdown(m[2])
		if title == "" && len(m[1]) == 1 {
			title = heading
		}
		toc = append(toc, domain.TOCEntry{Title: heading, Ordinal: len(toc) + 1, Level: len(m[1])})
		current = &domain.ExtractedChapter{Title: heading}
	}
	flush()

	if title == "" {
		title = extractors.TitleFromPath(path)
	}
	return extractors.Assemble(path, title, "", toc, chapters)
}

// Pre-compiled regular expressions for markdown stripping.
var (
	codeBlock     = regexp.MustCompile("(?s)```.*?```")
	inlineCode    = regexp.MustCompile("`([^`]+)`")
	images        = regexp.MustCompile(`!\[[^\]]*\]\([^)]+\)`)
	links         = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	headings      = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	emphasis      = regexp.MustCompile(`(\*\*|__|\*|_)([^*_\n]+)(\*\*|__|\*|_)`)
	blockquote    = regexp.MustCompile(`(?m)^>\s*`)
	hr            = regexp.MustCompile(`(?m)^[-*_]{3,}\s*$`)
	listMarkers   = regexp.MustCompile(`(?m)^\s*[-*+]\s+`)
	numberedList  = regexp.MustCompile(`(?m)^\s*\d+\.\s+`)
	multiSpaces   = regexp.MustCompile(`[ \t]+`)
)

// stripMarkdown removes common markdown formatting, leaving prose.
// Fenced code is dropped, inline code keeps its text.
func stripMarkdown(content string) string {
	content = codeBlock.ReplaceAllString(content, "")
	content = inlineCode.ReplaceAllString(content, "$1")
	content = images.ReplaceAllString(content, "")
	content = links.ReplaceAllString(content, "$1")
	content = headings.ReplaceAllString(content, "")
	content = emphasis.ReplaceAllString(content, "$2")
	content = blockquote.ReplaceAllString(content, "")
	content = hr.ReplaceAllString(content, "")
	content = listMarkers.ReplaceAllString(content, "")
	content = numberedList.ReplaceAllString(content, "")
	content = html.UnescapeString(content)
	content = multiSpaces.ReplaceAllString(content, " ")
	return extractors.CleanLines(content)
}
