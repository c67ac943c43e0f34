package epub

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/custodia-labs/librarian/internal/core/domain"
	"github.com/custodia-labs/librarian/internal/core/ports/driven"
	"github.com/custodia-labs/librarian/internal/extractors"
	"github.com/custodia-labs/librarian/internal/logger"
)

// Ensure Extractor implements the interface.
var _ driven.Extractor = (*Extractor)(nil)

// maxEntrySize bounds a single decompressed container entry.
const maxEntrySize = 64 << 20

var (
	errNoContainer = errors.New("META-INF/container.xml missing")
	errNoRootfile  = errors.New("no package document in container")
	errEncrypted   = errors.New("content documents are encrypted")
)

// Extractor handles EPUB books.
type Extractor struct{}

// New creates a new EPUB extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extensions returns the file extensions this extractor handles.
func (e *Extractor) Extensions() []string {
	return []string{".epub"}
}

// book is an opened EPUB container.
type book struct {
	path    string
	files   map[string]*zip.File
	opfPath string
	pkg     opf

	// hrefs maps manifest ids to container paths.
	hrefs map[string]string
}

// Extract reads the EPUB at path.
func (e *Extractor) Extract(ctx context.Context, path string) (*domain.Extraction, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, domain.NewExtractionError(domain.ExtractionCorrupt, path, err)
	}
	defer zr.Close()

	b := &book{path: path, files: make(map[string]*zip.File, len(zr.File))}
	for _, f := range zr.File {
		b.files[f.Name] = f
	}

	if err := b.checkEncryption(); err != nil {
		return nil, err
	}
	if err := b.openPackage(); err != nil {
		return nil, err
	}

	toc := b.tableOfContents()
	var chapters []domain.ExtractedChapter
	if len(toc) > 0 {
		chapters, err = b.chaptersFromTOC(ctx, toc)
	} else {
		logger.Debug("epub %s: no table of contents, using spine", path)
		chapters, err = b.chaptersFromSpine(ctx)
	}
	if err != nil {
		return nil, err
	}

	return extractors.Assemble(path, b.title(), b.author(), toc, chapters)
}

func (b *book) corrupt(err error) error {
	return domain.NewExtractionError(domain.ExtractionCorrupt, b.path, err)
}

func (b *book) read(name string) ([]byte, error) {
	f, ok := b.files[name]
	if !ok {
		return nil, fmt.Errorf("%s: not in container", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxEntrySize))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return data, nil
}

func (b *book) checkEncryption() error {
	data, err := b.read("META-INF/encryption.xml")
	if err != nil {
		return nil
	}
	var enc encryption
	if err := decodeXML(data, &enc); err != nil {
		return b.corrupt(fmt.Errorf("parsing encryption.xml: %w", err))
	}
	if enc.encryptsContent() {
		return domain.NewExtractionError(domain.ExtractionUnsupported, b.path, errEncrypted)
	}
	return nil
}

func (b *book) openPackage() error {
	data, err := b.read("META-INF/container.xml")
	if err != nil {
		return b.corrupt(errNoContainer)
	}
	var c container
	if err := decodeXML(data, &c); err != nil {
		return b.corrupt(fmt.Errorf("parsing container.xml: %w", err))
	}
	for _, rf := range c.Rootfiles {
		if rf.MediaType == "" || rf.MediaType == "application/oebps-package+xml" {
			b.opfPath = rf.FullPath
			break
		}
	}
	if b.opfPath == "" {
		return b.corrupt(errNoRootfile)
	}

	data, err = b.read(b.opfPath)
	if err != nil {
		return b.corrupt(err)
	}
	if err := decodeXML(data, &b.pkg); err != nil {
		return b.corrupt(fmt.Errorf("parsing %s: %w", b.opfPath, err))
	}

	b.hrefs = make(map[string]string, len(b.pkg.Manifest))
	for _, item := range b.pkg.Manifest {
		b.hrefs[item.ID] = resolve(b.opfPath, item.Href)
	}
	return nil
}

func (b *book) title() string {
	for _, t := range b.pkg.Titles {
		if t = strings.TrimSpace(t); t != "" {
			return t
		}
	}
	return extractors.TitleFromPath(b.path)
}

func (b *book) author() string {
	var names []string
	for _, c := range b.pkg.Creators {
		if c = strings.TrimSpace(c); c != "" {
			names = append(names, c)
		}
	}
	return strings.Join(names, " & ")
}

// spine returns the container paths of the spine documents in reading order.
func (b *book) spine() []string {
	var out []string
	for _, ref := range b.pkg.Spine.Itemrefs {
		if href, ok := b.hrefs[ref.IDRef]; ok && href != "" {
			out = append(out, href)
		}
	}
	return out
}

// tableOfContents reads the navigation document, then the NCX. Entries
// whose target is already listed are dropped, keeping the first title.
func (b *book) tableOfContents() []domain.TOCEntry {
	entries := b.navEntries()
	if len(entries) == 0 {
		entries = b.ncxEntries()
	}

	seen := make(map[string]bool)
	var out []domain.TOCEntry
	for _, e := range entries {
		if e.Href == "" || seen[e.Href] {
			continue
		}
		if _, ok := b.files[e.Href]; !ok {
			continue
		}
		seen[e.Href] = true
		e.Ordinal = len(out) + 1
		out = append(out, e)
	}
	return out
}

func (b *book) navEntries() []domain.TOCEntry {
	var navPath string
	for _, item := range b.pkg.Manifest {
		if strings.Contains(" "+item.Properties+" ", " nav ") {
			navPath = b.hrefs[item.ID]
			break
		}
	}
	if navPath == "" {
		return nil
	}
	data, err := b.read(navPath)
	if err != nil {
		logger.Warn("epub %s: %v", b.path, err)
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(data)))
	if err != nil {
		return nil
	}

	navs := doc.Find("nav")
	toc := navs.FilterFunction(func(_ int, s *goquery.Selection) bool {
		t, _ := s.Attr("epub:type")
		return strings.Contains(t, "toc")
	})
	if toc.Length() == 0 {
		toc = navs
	}

	var out []domain.TOCEntry
	var walk func(list *goquery.Selection, level int)
	walk = func(list *goquery.Selection, level int) {
		list.ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
			a := li.ChildrenFiltered("a, span").First()
			href, _ := a.Attr("href")
			title := strings.Join(strings.Fields(a.Text()), " ")
			if title != "" && href != "" {
				out = append(out, domain.TOCEntry{Title: title, Href: resolve(navPath, href), Level: level})
			}
			walk(li.ChildrenFiltered("ol, ul"), level+1)
		})
	}
	walk(toc.First().Find("ol, ul").First(), 1)
	return out
}

func (b *book) ncxEntries() []domain.TOCEntry {
	ncxPath := b.hrefs[b.pkg.Spine.Toc]
	if ncxPath == "" {
		for _, item := range b.pkg.Manifest {
			if item.MediaType == "application/x-dtbncx+xml" {
				ncxPath = b.hrefs[item.ID]
				break
			}
		}
	}
	if ncxPath == "" {
		return nil
	}
	data, err := b.read(ncxPath)
	if err != nil {
		logger.Warn("epub %s: %v", b.path, err)
		return nil
	}
	var doc ncx
	if err := decodeXML(data, &doc); err != nil {
		logger.Warn("epub %s: parsing ncx: %v", b.path, err)
		return nil
	}

	var out []domain.TOCEntry
	var walk func(points []navPoint, level int)
	walk = func(points []navPoint, level int) {
		for _, p := range points {
			title := strings.Join(strings.Fields(p.Label), " ")
			if title != "" && p.Content.Src != "" {
				out = append(out, domain.TOCEntry{Title: title, Href: resolve(ncxPath, p.Content.Src), Level: level})
			}
			walk(p.Children, level+1)
		}
	}
	walk(doc.Points, 1)
	return out
}

// chaptersFromTOC makes one chapter per table of contents entry. Spine
// documents between two entries belong to the earlier one; documents
// before the first entry are front matter and skipped.
func (b *book) chaptersFromTOC(ctx context.Context, toc []domain.TOCEntry) ([]domain.ExtractedChapter, error) {
	byHref := make(map[string]int, len(toc))
	for i, e := range toc {
		byHref[e.Href] = i
	}

	docs := make([][]string, len(toc))
	inSpine := make(map[string]bool)
	current := -1
	for _, href := range b.spine() {
		inSpine[href] = true
		if i, ok := byHref[href]; ok {
			current = i
		}
		if current >= 0 {
			docs[current] = append(docs[current], href)
		}
	}
	for i, e := range toc {
		if !inSpine[e.Href] {
			docs[i] = append(docs[i], e.Href)
		}
	}

	chapters := make([]domain.ExtractedChapter, 0, len(toc))
	for i, e := range toc {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var texts []string
		for _, href := range docs[i] {
			text, _, err := b.documentText(href)
			if err != nil {
				logger.Warn("epub %s: %v", b.path, err)
				continue
			}
			texts = append(texts, text)
		}
		chapters = append(chapters, domain.ExtractedChapter{
			Title: e.Title,
			Href:  e.Href,
			Text:  strings.Join(texts, "\n"),
		})
	}
	return chapters, nil
}

// chaptersFromSpine makes one chapter per spine document, titled by its
// first heading or title element.
func (b *book) chaptersFromSpine(ctx context.Context) ([]domain.ExtractedChapter, error) {
	spine := b.spine()
	if len(spine) == 0 {
		return nil, b.corrupt(errors.New("empty spine"))
	}

	var chapters []domain.ExtractedChapter
	for i, href := range spine {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, title, err := b.documentText(href)
		if err != nil {
			logger.Warn("epub %s: %v", b.path, err)
			continue
		}
		if title == "" {
			title = fmt.Sprintf("Chapter %d", i+1)
		}
		chapters = append(chapters, domain.ExtractedChapter{Title: title, Href: href, Text: text})
	}
	return chapters, nil
}

// documentText returns the body text of an XHTML document and its heading.
func (b *book) documentText(href string) (text, title string, err error) {
	data, err := b.read(href)
	if err != nil {
		return "", "", err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(data)))
	if err != nil {
		return "", "", fmt.Errorf("parsing %s: %w", href, err)
	}

	for _, sel := range []string{"h1", "h2", "title"} {
		if t := strings.Join(strings.Fields(doc.Find(sel).First().Text()), " "); t != "" {
			title = t
			break
		}
	}

	body := doc.Find("body")
	var root *html.Node
	if body.Length() > 0 {
		root = body.Get(0)
	} else {
		root = doc.Get(0)
	}
	return extractors.NodeText(root), title, nil
}
