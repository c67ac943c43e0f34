package domain

import "time"

// Checkpoint is the durable progress marker of an indexing run.
type Checkpoint struct {
	// RunID identifies the run that wrote the checkpoint.
	RunID string

	// FullReindex is true when the run rebuilds every book.
	FullReindex bool

	// Cursor is the number of catalog entries, in catalog order,
	// that were fully resolved (committed, skipped or failed).
	Cursor int

	// LastCatalogID is the catalog identifier at Cursor-1.
	LastCatalogID int64

	// BooksTotal is the catalog size when the run started.
	BooksTotal int

	// BooksDone counts committed books.
	BooksDone int

	// BooksSkipped counts unchanged books under the change policy.
	BooksSkipped int

	// BooksFailed counts books that ended Failed.
	BooksFailed int

	StartedAt time.Time
	UpdatedAt time.Time

	// Completed is set when the run reached the end of the catalog.
	Completed bool
}

// Resolved returns the number of books accounted for.
func (c *Checkpoint) Resolved() int {
	return c.BooksDone + c.BooksSkipped + c.BooksFailed
}

// IndexState is the coarse state of the indexing service.
type IndexState string

const (
	IndexIdle       IndexState = "idle"
	IndexRunning    IndexState = "running"
	IndexCancelling IndexState = "cancelling"
	IndexCompleted  IndexState = "completed"
	IndexCancelled  IndexState = "cancelled"
	IndexFailed     IndexState = "failed"
)

// IndexStatus is reported to callers. Counts always come from the last
// durable checkpoint, never from uncommitted work.
type IndexStatus struct {
	State              IndexState    `json:"state"`
	RunID              string        `json:"run_id,omitempty"`
	BooksDone          int           `json:"books_done"`
	BooksSkipped       int           `json:"books_skipped"`
	BooksFailed        int           `json:"books_failed"`
	BooksTotal         int           `json:"books_total"`
	EstimatedRemaining time.Duration `json:"estimated_remaining"`
	StartedAt          time.Time     `json:"started_at,omitzero"`
	UpdatedAt          time.Time     `json:"updated_at,omitzero"`
	LastError          string        `json:"last_error,omitempty"`
}

// IndexOptions configures an indexing run.
type IndexOptions struct {
	// FullReindex rebuilds every book regardless of the change policy.
	FullReindex bool
}

// RunSummary is returned when a run finishes.
type RunSummary struct {
	RunID        string
	State        IndexState
	BooksTotal   int
	BooksDone    int
	BooksSkipped int
	BooksFailed  int
	ChunksAdded  int
	Duration     time.Duration
}
