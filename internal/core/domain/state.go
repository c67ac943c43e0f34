package domain

// BookState is a step of the per-book indexing state machine.
type BookState string

const (
	BookPending    BookState = "pending"
	BookExtracting BookState = "extracting"
	BookChunking   BookState = "chunking"
	BookEmbedding  BookState = "embedding"
	BookCommitting BookState = "committing"
	BookDone       BookState = "done"
	BookFailed     BookState = "failed"
)

var bookTransitions = map[BookState]BookState{
	BookPending:    BookExtracting,
	BookExtracting: BookChunking,
	BookChunking:   BookEmbedding,
	BookEmbedding:  BookCommitting,
	BookCommitting: BookDone,
}

// Terminal reports whether no further transition is allowed.
func (s BookState) Terminal() bool {
	return s == BookDone || s == BookFailed
}

// Valid reports whether s is a known state.
func (s BookState) Valid() bool {
	switch s {
	case BookPending, BookExtracting, BookChunking, BookEmbedding,
		BookCommitting, BookDone, BookFailed:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is allowed.
// Failed is reachable from every non-terminal state. A Committing book
// may fall back to Pending when its transaction is rolled back.
func CanTransition(from, to BookState) bool {
	if from.Terminal() {
		return false
	}
	if to == BookFailed {
		return true
	}
	if from == BookCommitting && to == BookPending {
		return true
	}
	return bookTransitions[from] == to
}

// BookProgress tracks one book through the state machine.
type BookProgress struct {
	CatalogID int64
	State     BookState
	Err       error
}

// NewBookProgress starts a book in the Pending state.
func NewBookProgress(catalogID int64) *BookProgress {
	return &BookProgress{CatalogID: catalogID, State: BookPending}
}

// Advance moves the book to the next state.
func (p *BookProgress) Advance(to BookState) error {
	if !CanTransition(p.State, to) {
		return ErrIllegalTransition
	}
	p.State = to
	return nil
}

// Fail moves the book to Failed, recording err.
func (p *BookProgress) Fail(err error) error {
	if p.State.Terminal() {
		return ErrIllegalTransition
	}
	p.State = BookFailed
	p.Err = err
	return nil
}
