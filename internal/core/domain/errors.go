package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrIndexingInProgress indicates an indexing run is already active.
	ErrIndexingInProgress = errors.New("indexing in progress")

	// ErrArtifactMismatch indicates the vector index and metadata store
	// were not written together. Restoring one without the other is an error.
	ErrArtifactMismatch = errors.New("vector index and metadata store do not belong together")

	// ErrIllegalTransition indicates a book state change the pipeline does not allow.
	ErrIllegalTransition = errors.New("illegal book state transition")

	// ErrEmbeddingUnavailable indicates no embedding service is configured.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrConversationUnavailable indicates no conversation service is configured.
	ErrConversationUnavailable = errors.New("conversation service unavailable")

	// ErrModelRejected indicates a model service refused the request itself,
	// for example a bad API key or an unknown model. Retrying cannot help.
	ErrModelRejected = errors.New("request rejected by model service")
)

// ExtractionErrorKind classifies document extraction failures.
type ExtractionErrorKind string

const (
	// ExtractionCorrupt means the container could not be parsed.
	ExtractionCorrupt ExtractionErrorKind = "corrupt"
	// ExtractionUnsupported means the format or its protection is not handled.
	ExtractionUnsupported ExtractionErrorKind = "unsupported"
	// ExtractionEmpty means the container parsed but held no text.
	ExtractionEmpty ExtractionErrorKind = "empty"
)

// ExtractionError is a per-document failure. The book is marked Failed
// and the run continues.
type ExtractionError struct {
	Kind ExtractionErrorKind
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract %s: %s: %v", e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("extract %s: %s", e.Path, e.Kind)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// NewExtractionError builds an ExtractionError.
func NewExtractionError(kind ExtractionErrorKind, path string, err error) *ExtractionError {
	return &ExtractionError{Kind: kind, Path: path, Err: err}
}

// EmbeddingErrorKind classifies embedding failures.
type EmbeddingErrorKind string

const (
	// EmbeddingUnavailable means retries were exhausted or the circuit is open.
	EmbeddingUnavailable EmbeddingErrorKind = "unavailable"
	// EmbeddingTimeout means the collaborator did not answer in time.
	EmbeddingTimeout EmbeddingErrorKind = "timeout"
)

// EmbeddingError fails a whole batch. Books in the batch are marked Failed.
type EmbeddingError struct {
	Kind EmbeddingErrorKind
	Err  error
}

func (e *EmbeddingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("embedding %s: %v", e.Kind, e.Err)
	}
	return "embedding " + string(e.Kind)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// IndexErrorKind classifies vector index load failures.
type IndexErrorKind string

const (
	// IndexMissing means the index file does not exist.
	IndexMissing IndexErrorKind = "missing"
	// IndexCorrupt means the index file failed validation.
	IndexCorrupt IndexErrorKind = "corrupt"
)

// IndexError is fatal to startup.
type IndexError struct {
	Kind IndexErrorKind
	Path string
	Err  error
}

func (e *IndexError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("vector index %s: %s: %v", e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("vector index %s: %s", e.Path, e.Kind)
}

func (e *IndexError) Unwrap() error { return e.Err }

// StoreErrorKind classifies metadata store failures.
type StoreErrorKind string

const (
	// StoreConstraint is a constraint violation. The transaction was
	// rolled back and the book stays Pending.
	StoreConstraint StoreErrorKind = "constraint"
	// StoreIO is a storage failure. It aborts the run.
	StoreIO StoreErrorKind = "io"
)

// StoreError wraps a failed store transaction.
type StoreError struct {
	Kind StoreErrorKind
	Op   string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// IsExtractionError reports whether err is an ExtractionError of the given kind.
// An empty kind matches any ExtractionError.
func IsExtractionError(err error, kind ExtractionErrorKind) bool {
	var e *ExtractionError
	if !errors.As(err, &e) {
		return false
	}
	return kind == "" || e.Kind == kind
}

// IsIndexError reports whether err is an IndexError of the given kind.
func IsIndexError(err error, kind IndexErrorKind) bool {
	var e *IndexError
	if !errors.As(err, &e) {
		return false
	}
	return kind == "" || e.Kind == kind
}

// IsStoreError reports whether err is a StoreError of the given kind.
func IsStoreError(err error, kind StoreErrorKind) bool {
	var e *StoreError
	if !errors.As(err, &e) {
		return false
	}
	return kind == "" || e.Kind == kind
}
