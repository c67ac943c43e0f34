// Package html provides an Extractor for single-file HTML books.
// Level one and two headings start chapters; scripts, styles and
// navigation are dropped.
package html
