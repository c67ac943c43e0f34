// Package epub provides an Extractor for EPUB 2 and EPUB 3 books.
//
// The package document is located through META-INF/container.xml. The table
// of contents comes from the EPUB 3 navigation document, then the EPUB 2 NCX,
// and finally the spine itself. Chapter text is read from the XHTML content
// documents with scripts, styles and navigation removed.
//
// Books with encrypted content documents (DRM) are reported as Unsupported.
package epub
