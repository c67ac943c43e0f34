// Package extractors provides implementations of the Extractor interface
// for book formats. Each extractor recovers a table of contents and the
// plain text of every chapter from one file format.
//
// Extractors are registered with the Registry at startup and selected by
// file extension.
package extractors
