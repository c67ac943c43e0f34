// Package chunker splits chapter text into overlapping word windows.
package chunker

import (
	"iter"
	"sort"
	"unicode"
	"unicode/utf8"

	"github.com/custodia-labs/librarian/internal/core/domain"
	"github.com/custodia-labs/librarian/internal/core/ports/driven"
)

// Ensure Processor implements the interface.
var _ driven.Chunker = (*Processor)(nil)

// DefaultWindowWords is the default number of words per chunk.
const DefaultWindowWords = 500

// DefaultOverlapWords is the default number of words shared by consecutive chunks.
const DefaultOverlapWords = 50

// Span is a byte range of chapter text.
type Span struct {
	// Ordinal is the position of the span within the chapter.
	Ordinal int

	// Start and End delimit the span in the chapter text, End exclusive.
	Start int
	End   int

	// Words is the number of words whose first byte falls in the window.
	Words int
}

// Text returns the span's slice of text.
func (s Span) Text(text string) string {
	return text[s.Start:s.End]
}

// Processor splits text into overlapping windows of words.
type Processor struct {
	window  int
	overlap int
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithWindow sets the window size in words.
func WithWindow(words int) Option {
	return func(p *Processor) {
		if words > 0 {
			p.window = words
		}
	}
}

// WithOverlap sets the overlap between consecutive windows in words.
func WithOverlap(words int) Option {
	return func(p *Processor) {
		if words >= 0 {
			p.overlap = words
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		window:  DefaultWindowWords,
		overlap: DefaultOverlapWords,
	}

	for _, opt := range opts {
		opt(p)
	}

	// Ensure overlap doesn't exceed window size
	if p.overlap >= p.window {
		p.overlap = p.window / 4
	}

	return p
}

// Window returns the window size in words.
func (p *Processor) Window() int { return p.window }

// Overlap returns the overlap in words.
func (p *Processor) Overlap() int { return p.overlap }

// Spans returns the windows of text as a lazy sequence. Each range over
// the sequence walks text again from the start.
//
// Windows start every window-overlap words. The first span starts at byte 0,
// later spans at their first word. A span ends where the word after its
// window begins, and the last span ends at len(text), so the spans cover
// text without gaps. Text with no words yields nothing.
func (p *Processor) Spans(text string) iter.Seq[Span] {
	return func(yield func(Span) bool) {
		starts := wordStarts(text)
		n := len(starts)
		step := p.window - p.overlap

		for i, ordinal := 0, 0; i < n; i, ordinal = i+step, ordinal+1 {
			span := Span{Ordinal: ordinal, End: len(text)}
			if i > 0 {
				span.Start = starts[i]
			}
			last := i + p.window
			if last < n {
				span.End = starts[last]
			} else {
				last = n
			}
			span.Words = last - i
			if !yield(span) {
				return
			}
		}
	}
}

// Count returns the number of spans text produces.
func (p *Processor) Count(text string) int {
	n := 0
	for range p.Spans(text) {
		n++
	}
	return n
}

// Chunks materialises the spans of a chapter as unsaved chunks.
func (p *Processor) Chunks(text string) []domain.Chunk {
	var chunks []domain.Chunk
	for s := range p.Spans(text) {
		chunks = append(chunks, domain.Chunk{
			Ordinal:     s.Ordinal,
			Text:        s.Text(text),
			StartOffset: s.Start,
			EndOffset:   s.End,
		})
	}
	return chunks
}

// WordCount returns the number of whitespace separated words in text.
func WordCount(text string) int {
	n := 0
	inWord := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			inWord = false
			continue
		}
		if !inWord {
			n++
			inWord = true
		}
	}
	return n
}

// Reconstruct joins chunks back into the chapter text, skipping overlaps.
func Reconstruct(chunks []domain.Chunk) string {
	sorted := make([]domain.Chunk, len(chunks))
	copy(sorted, chunks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Ordinal < sorted[j].Ordinal })

	var out []byte
	covered := 0
	for _, c := range sorted {
		if c.EndOffset <= covered {
			continue
		}
		skip := covered - c.StartOffset
		if skip < 0 {
			skip = 0
		}
		out = append(out, c.Text[skip:]...)
		covered = c.EndOffset
	}
	return string(out)
}

// wordStarts returns the byte offset of every word.
func wordStarts(text string) []int {
	var starts []int
	inWord := false
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if unicode.IsSpace(r) {
			inWord = false
		} else if !inWord {
			starts = append(starts, i)
			inWord = true
		}
		i += size
	}
	return starts
}
