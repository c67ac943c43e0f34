package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/librarian/internal/core/domain"
	"github.com/custodia-labs/librarian/internal/core/ports/driven"
	"github.com/custodia-labs/librarian/internal/core/ports/driving"
	"github.com/custodia-labs/librarian/internal/logger"
	"github.com/custodia-labs/librarian/internal/telemetry"
)

// Ensure Indexer implements the interfaces.
var (
	_ driving.IndexingService = (*Indexer)(nil)
	_ IdleGuard               = (*Indexer)(nil)
)

// aboutOrdinal is the chapter ordinal reserved for book metadata.
const aboutOrdinal = 0

// IndexerConfig tunes the indexing pipeline.
type IndexerConfig struct {
	// Workers is the number of books processed in parallel.
	Workers int

	// CheckpointEvery is the number of resolved books between checkpoints.
	CheckpointEvery int

	// ChangePolicy decides when an indexed book is processed again.
	ChangePolicy domain.ChangePolicy

	// IncludeSummary indexes title, author, tags and summary as chapter 0.
	IncludeSummary bool

	// IndexPath is where the vector index is saved.
	IndexPath string
}

// IndexerConfigFrom maps the index section of the configuration.
func IndexerConfigFrom(cfg domain.Config) IndexerConfig {
	return IndexerConfig{
		Workers:         cfg.Index.Workers,
		CheckpointEvery: cfg.Index.CheckpointEvery,
		ChangePolicy:    cfg.Index.ChangePolicy,
		IncludeSummary:  cfg.Index.IncludeSummary,
		IndexPath:       cfg.Library.IndexPath(),
	}
}

// IndexerDeps are the collaborators of the indexing pipeline.
type IndexerDeps struct {
	Catalog    driven.Catalog
	Extractors driven.ExtractorRegistry
	Chunker    driven.Chunker
	Embedder   driven.EmbeddingService
	Index      driven.VectorIndex
	Books      driven.BookStore
	Chunks     driven.ChunkStore
	Progress   driven.ProgressStore
	Metrics    *telemetry.Metrics // optional
}

// outcome is how a book was resolved.
type outcome int

const (
	outcomeDone outcome = iota
	outcomeSkipped
	outcomeFailed
	// outcomeDeferred is a book left Pending after a store constraint failure.
	outcomeDeferred
)

func (o outcome) String() string {
	switch o {
	case outcomeDone:
		return "done"
	case outcomeSkipped:
		return "skipped"
	case outcomeFailed:
		return "failed"
	default:
		return "deferred"
	}
}

// job is one catalog entry to resolve.
type job struct {
	seq   int
	entry domain.CatalogEntry
}

// result reports a resolved job to the run loop.
type result struct {
	seq     int
	outcome outcome
	chunks  int
}

// runState is the in-memory view of the active run.
type runState struct {
	state     domain.IndexState
	runID     string
	total     int
	done      int
	skipped   int
	failed    int
	startedAt time.Time
	updatedAt time.Time
}

// Indexer runs the indexing pipeline: catalog entries are extracted,
// chunked and embedded by a worker pool, then committed one book at a
// time to the vector index and the metadata store.
type Indexer struct {
	deps IndexerDeps
	cfg  IndexerConfig

	// commitMu serialises commits and index saves.
	commitMu sync.Mutex

	mu       sync.Mutex
	running  bool
	stop     atomic.Bool
	cancel   context.CancelFunc
	done     chan struct{}
	live     runState
	summary  *domain.RunSummary
	runErr   error
	lastErr  string
	lastStop domain.IndexState
}

// NewIndexer creates an indexing pipeline.
func NewIndexer(deps IndexerDeps, cfg IndexerConfig) *Indexer {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.CheckpointEvery < 1 {
		cfg.CheckpointEvery = 100
	}
	if !cfg.ChangePolicy.IsValid() {
		cfg.ChangePolicy = domain.ChangePolicyMissing
	}
	return &Indexer{deps: deps, cfg: cfg}
}

// Run indexes the catalog and blocks until the run ends. A stop request
// through Cancel ends the run after the books in flight with a nil error.
// Cancelling ctx aborts in-flight books and returns the context error.
func (ix *Indexer) Run(ctx context.Context, opts domain.IndexOptions) (*domain.RunSummary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := ix.begin(cancel); err != nil {
		return nil, err
	}
	summary, err := ix.run(ctx, opts)
	ix.end(summary, err)
	return summary, err
}

// Start launches a run in the background. The run outlives ctx; use
// Cancel to stop it.
func (ix *Indexer) Start(ctx context.Context, opts domain.IndexOptions) error {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if err := ix.begin(cancel); err != nil {
		cancel()
		return err
	}
	go func() {
		defer cancel()
		summary, err := ix.run(runCtx, opts)
		if err != nil {
			logger.Error("indexing run failed: %v", err)
		}
		ix.end(summary, err)
	}()
	return nil
}

// Cancel asks the active run to stop after the books in flight.
// Calling it twice aborts the books in flight as well.
func (ix *Indexer) Cancel() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if !ix.running {
		return
	}
	if ix.stop.Swap(true) && ix.cancel != nil {
		logger.Warn("second stop request, aborting books in flight")
		ix.cancel()
		return
	}
	ix.live.state = domain.IndexCancelling
	logger.Info("stop requested, finishing books in flight")
}

// Wait blocks until the active run ends and returns its result.
// Without an active run it returns the last result.
func (ix *Indexer) Wait() (*domain.RunSummary, error) {
	ix.mu.Lock()
	done := ix.done
	ix.mu.Unlock()
	if done != nil {
		<-done
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.summary, ix.runErr
}

// Status reports live progress of the active run, or the last durable
// checkpoint when idle.
func (ix *Indexer) Status(ctx context.Context) (*domain.IndexStatus, error) {
	ix.mu.Lock()
	if ix.running {
		st := ix.live
		lastErr := ix.lastErr
		ix.mu.Unlock()
		status := &domain.IndexStatus{
			State:        st.state,
			RunID:        st.runID,
			BooksDone:    st.done,
			BooksSkipped: st.skipped,
			BooksFailed:  st.failed,
			BooksTotal:   st.total,
			StartedAt:    st.startedAt,
			UpdatedAt:    st.updatedAt,
			LastError:    lastErr,
		}
		status.EstimatedRemaining = estimateRemaining(st)
		return status, nil
	}
	lastErr, lastStop := ix.lastErr, ix.lastStop
	ix.mu.Unlock()

	cp, err := ix.deps.Progress.LoadCheckpoint(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.IndexStatus{State: domain.IndexIdle, LastError: lastErr}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	state := domain.IndexCompleted
	if !cp.Completed {
		state = domain.IndexCancelled
		if lastStop == domain.IndexFailed {
			state = domain.IndexFailed
		}
	}
	return &domain.IndexStatus{
		State:        state,
		RunID:        cp.RunID,
		BooksDone:    cp.BooksDone,
		BooksSkipped: cp.BooksSkipped,
		BooksFailed:  cp.BooksFailed,
		BooksTotal:   cp.BooksTotal,
		StartedAt:    cp.StartedAt,
		UpdatedAt:    cp.UpdatedAt,
		LastError:    lastErr,
	}, nil
}

func estimateRemaining(st runState) time.Duration {
	resolved := st.done + st.skipped + st.failed
	if resolved == 0 || st.total <= resolved {
		return 0
	}
	elapsed := st.updatedAt.Sub(st.startedAt)
	return elapsed / time.Duration(resolved) * time.Duration(st.total-resolved)
}

// WhileIdle runs fn when no run is active. Runs cannot start and no
// commit or index save happens until fn returns.
func (ix *Indexer) WhileIdle(fn func() error) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.running {
		return domain.ErrIndexingInProgress
	}
	ix.commitMu.Lock()
	defer ix.commitMu.Unlock()
	return fn()
}

func (ix *Indexer) begin(cancel context.CancelFunc) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.running {
		return domain.ErrIndexingInProgress
	}
	ix.running = true
	ix.stop.Store(false)
	ix.cancel = cancel
	ix.done = make(chan struct{})
	ix.live = runState{state: domain.IndexRunning, startedAt: time.Now()}
	ix.lastErr = ""
	return nil
}

func (ix *Indexer) end(summary *domain.RunSummary, err error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.running = false
	ix.cancel = nil
	ix.summary = summary
	ix.runErr = err
	if summary != nil {
		ix.lastStop = summary.State
	}
	if err != nil {
		ix.lastErr = err.Error()
	}
	close(ix.done)
	ix.done = nil
}

func (ix *Indexer) updateLive(fn func(*runState)) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	fn(&ix.live)
	ix.live.updatedAt = time.Now()
}

// run executes one indexing run. The caller holds the running flag.
func (ix *Indexer) run(ctx context.Context, opts domain.IndexOptions) (*domain.RunSummary, error) {
	started := time.Now()
	logger.Section("Indexing")

	cp, err := ix.resumeOrStart(ctx, opts)
	if err != nil {
		return nil, err
	}
	summary := &domain.RunSummary{RunID: cp.RunID, State: domain.IndexRunning}
	ix.updateLive(func(st *runState) {
		st.runID = cp.RunID
		st.startedAt = cp.StartedAt
	})

	if err := ix.Reconcile(ctx); err != nil {
		return ix.finish(summary, started, domain.IndexFailed, err)
	}

	entries, err := ix.deps.Catalog.Entries(ctx)
	if err != nil {
		return ix.finish(summary, started, domain.IndexFailed, fmt.Errorf("read catalog %s: %w", ix.deps.Catalog.Name(), err))
	}
	slices.SortFunc(entries, func(a, b domain.CatalogEntry) int {
		return compareInt64(a.CatalogID, b.CatalogID)
	})
	cp.BooksTotal = len(entries)
	summary.BooksTotal = len(entries)
	logger.Info("catalog %s: %d books, run %s", ix.deps.Catalog.Name(), len(entries), cp.RunID)

	previous, err := ix.deps.Progress.BookStates(ctx, cp.RunID)
	if err != nil {
		return ix.finish(summary, started, domain.IndexFailed, fmt.Errorf("load book states: %w", err))
	}

	// Entries up to the checkpoint cursor are counted in cp already. Books
	// resolved after it by the interrupted run are not processed again.
	// An entry below the cursor that the run never saw was added to the
	// catalog since and is queued.
	slots := make([]slot, len(entries))
	var pending []job
	for i, e := range entries {
		if cp.Cursor > 0 && e.CatalogID <= cp.LastCatalogID {
			seen, err := ix.seenBeforeCheckpoint(ctx, previous, e.CatalogID)
			if err != nil {
				return ix.finish(summary, started, domain.IndexFailed, err)
			}
			if seen {
				slots[i] = slot{resolved: true, counted: true}
				continue
			}
		}
		if rec, ok := previous[e.CatalogID]; ok && rec.State.Terminal() {
			slots[i] = slot{resolved: true, outcome: outcomeDone}
			if rec.State == domain.BookFailed {
				slots[i].outcome = outcomeFailed
			}
			continue
		}
		pending = append(pending, job{seq: i, entry: e})
	}

	totals := tally{done: cp.BooksDone, skipped: cp.BooksSkipped, failed: cp.BooksFailed}
	for _, sl := range slots {
		if sl.resolved && !sl.counted {
			totals.add(sl.outcome)
		}
	}
	cp.Cursor = 0
	advanceCursor(cp, entries, slots)
	summary.BooksDone, summary.BooksSkipped, summary.BooksFailed = totals.done, totals.skipped, totals.failed
	ix.updateLive(func(st *runState) {
		st.total = len(entries)
		st.done, st.skipped, st.failed = totals.done, totals.skipped, totals.failed
	})
	if len(pending) < len(entries) {
		logger.Info("resuming run %s: %d of %d books left", cp.RunID, len(pending), len(entries))
	}
	if err := ix.checkpoint(ctx, cp); err != nil {
		return ix.finish(summary, started, domain.IndexFailed, err)
	}

	jobs := make(chan job)
	results := make(chan result)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		for _, j := range pending {
			if ix.stop.Load() {
				return nil
			}
			select {
			case jobs <- j:
			case <-gctx.Done():
				return nil
			}
		}
		return nil
	})
	for range ix.cfg.Workers {
		g.Go(func() error {
			for j := range jobs {
				res, err := ix.processBook(gctx, cp, j)
				if err != nil {
					return err
				}
				select {
				case results <- res:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}

	var runErr error
	go func() {
		runErr = g.Wait()
		close(results)
	}()

	sinceCheckpoint := 0
	for res := range results {
		slots[res.seq] = slot{resolved: true, outcome: res.outcome}
		totals.add(res.outcome)
		if res.outcome == outcomeDone {
			summary.ChunksAdded += res.chunks
		}
		ix.deps.Metrics.RecordBook(ctx, res.outcome.String())
		ix.deps.Metrics.RecordChunks(ctx, res.chunks)
		ix.updateLive(func(st *runState) {
			st.done, st.skipped, st.failed = totals.done, totals.skipped, totals.failed
		})

		advanceCursor(cp, entries, slots)
		if sinceCheckpoint++; sinceCheckpoint >= ix.cfg.CheckpointEvery {
			sinceCheckpoint = 0
			if err := ix.checkpoint(ctx, cp); err != nil {
				logger.Error("checkpoint: %v", err)
			}
		}
	}

	summary.BooksDone, summary.BooksSkipped, summary.BooksFailed = totals.done, totals.skipped, totals.failed
	cp.Completed = runErr == nil && cp.Cursor == len(entries)

	// Persist what was resolved even when ctx was cancelled.
	flushCtx := context.WithoutCancel(ctx)
	if err := ix.checkpoint(flushCtx, cp); err != nil {
		if runErr == nil {
			runErr = err
		} else {
			logger.Error("final checkpoint: %v", err)
		}
	}

	switch {
	case cp.Completed:
		return ix.finish(summary, started, domain.IndexCompleted, nil)
	case runErr == nil:
		return ix.finish(summary, started, domain.IndexCancelled, nil)
	case errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
		return ix.finish(summary, started, domain.IndexCancelled, runErr)
	default:
		return ix.finish(summary, started, domain.IndexFailed, runErr)
	}
}

func (ix *Indexer) finish(summary *domain.RunSummary, started time.Time, state domain.IndexState, err error) (*domain.RunSummary, error) {
	summary.State = state
	summary.Duration = time.Since(started)
	logger.Info("run %s %s: %d done, %d skipped, %d failed, %d chunks in %s",
		summary.RunID, state, summary.BooksDone, summary.BooksSkipped, summary.BooksFailed,
		summary.ChunksAdded, summary.Duration.Round(time.Millisecond))
	return summary, err
}

// seenBeforeCheckpoint reports whether the interrupted run resolved a
// book below its cursor. Resolved books have a state row for the run,
// except books skipped as unchanged, which are already in the store.
func (ix *Indexer) seenBeforeCheckpoint(ctx context.Context, previous map[int64]driven.BookStateRecord, catalogID int64) (bool, error) {
	if _, ok := previous[catalogID]; ok {
		return true, nil
	}
	_, err := ix.deps.Books.GetBookByCatalogID(ctx, catalogID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("look up book %d: %w", catalogID, err)
	}
}

// resumeOrStart continues an interrupted run or begins a new one.
// A full reindex request never resumes an incremental run.
func (ix *Indexer) resumeOrStart(ctx context.Context, opts domain.IndexOptions) (*domain.Checkpoint, error) {
	cp, err := ix.deps.Progress.LoadCheckpoint(ctx)
	switch {
	case errors.Is(err, domain.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("load checkpoint: %w", err)
	case !cp.Completed && (cp.FullReindex || !opts.FullReindex):
		logger.Info("found interrupted run %s at book %d of %d", cp.RunID, cp.Cursor, cp.BooksTotal)
		return cp, nil
	}

	now := time.Now().UTC()
	cp = &domain.Checkpoint{
		RunID:       uuid.NewString(),
		FullReindex: opts.FullReindex,
		StartedAt:   now,
		UpdatedAt:   now,
	}
	return cp, nil
}

// slot tracks one catalog entry of a run.
type slot struct {
	resolved bool
	// counted is set once the outcome is included in the checkpoint.
	counted bool
	outcome outcome
}

// tally counts resolved books by outcome.
type tally struct {
	done, skipped, failed int
}

func (t *tally) add(o outcome) {
	switch o {
	case outcomeDone:
		t.done++
	case outcomeFailed:
		t.failed++
	default:
		t.skipped++
	}
}

// advanceCursor moves the checkpoint over the resolved prefix of entries,
// adding each outcome to the checkpoint counters once.
func advanceCursor(cp *domain.Checkpoint, entries []domain.CatalogEntry, slots []slot) {
	for cp.Cursor < len(slots) && slots[cp.Cursor].resolved {
		sl := &slots[cp.Cursor]
		if !sl.counted {
			switch sl.outcome {
			case outcomeDone:
				cp.BooksDone++
			case outcomeFailed:
				cp.BooksFailed++
			default:
				cp.BooksSkipped++
			}
			sl.counted = true
		}
		cp.LastCatalogID = entries[cp.Cursor].CatalogID
		cp.Cursor++
	}
}

// checkpoint saves the vector index and then records cp.
func (ix *Indexer) checkpoint(ctx context.Context, cp *domain.Checkpoint) error {
	ix.commitMu.Lock()
	err := ix.deps.Index.Save(ix.cfg.IndexPath)
	ix.commitMu.Unlock()
	if err != nil {
		return fmt.Errorf("save vector index: %w", err)
	}
	cp.UpdatedAt = time.Now().UTC()
	if err := ix.deps.Progress.SaveCheckpoint(ctx, cp); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	logger.Debug("checkpoint: cursor %d/%d (catalog id %d)", cp.Cursor, cp.BooksTotal, cp.LastCatalogID)
	return nil
}

// Reconcile makes the store and the vector index agree. Vectors without
// a chunk row are removed. Books with chunks whose vectors were never
// persisted are deleted so they are indexed again.
func (ix *Indexer) Reconcile(ctx context.Context) error {
	ix.commitMu.Lock()
	defer ix.commitMu.Unlock()

	stored, err := ix.deps.Chunks.VectorPositions(ctx)
	if err != nil {
		return fmt.Errorf("list stored positions: %w", err)
	}
	orphans, missing := diffPositions(ix.deps.Index.Positions(), stored)
	if len(orphans) == 0 && len(missing) == 0 {
		return nil
	}

	if len(orphans) > 0 {
		logger.Warn("reconcile: removing %d vectors without rows", len(orphans))
		if err := ix.deps.Index.Remove(ctx, orphans); err != nil {
			return fmt.Errorf("remove orphan vectors: %w", err)
		}
	}

	if len(missing) > 0 {
		rows, err := ix.deps.Chunks.ChunksByVectorPositions(ctx, missing)
		if err != nil {
			return fmt.Errorf("resolve missing vectors: %w", err)
		}
		bookIDs := make(map[int64]bool)
		for _, row := range rows {
			bookIDs[row.Book.ID] = true
		}
		logger.Warn("reconcile: %d chunks lost their vectors, rolling back %d books", len(missing), len(bookIDs))
		for id := range bookIDs {
			released, err := ix.deps.Books.DeleteBook(ctx, id)
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("roll back book %d: %w", id, err)
			}
			if err := ix.deps.Index.Remove(ctx, released); err != nil {
				return fmt.Errorf("remove vectors of book %d: %w", id, err)
			}
		}
	}

	if err := ix.deps.Index.Save(ix.cfg.IndexPath); err != nil {
		return fmt.Errorf("save vector index: %w", err)
	}
	return nil
}

// diffPositions returns positions only in the index and positions only in the store.
func diffPositions(indexed, stored []int64) (orphans, missing []int64) {
	inStore := make(map[int64]bool, len(stored))
	for _, p := range stored {
		inStore[p] = true
	}
	inIndex := make(map[int64]bool, len(indexed))
	for _, p := range indexed {
		inIndex[p] = true
		if !inStore[p] {
			orphans = append(orphans, p)
		}
	}
	for _, p := range stored {
		if !inIndex[p] {
			missing = append(missing, p)
		}
	}
	return orphans, missing
}

// processBook drives one book through the state machine. A returned
// error is fatal to the run; per-book failures are reported as results.
func (ix *Indexer) processBook(ctx context.Context, cp *domain.Checkpoint, j job) (result, error) {
	e := j.entry
	res := result{seq: j.seq}
	p := domain.NewBookProgress(e.CatalogID)

	fail := func(err error) (result, error) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
		_ = p.Fail(err)
		logger.Warn("book %d (%s) failed: %v", e.CatalogID, e.Title, err)
		res.outcome = outcomeFailed
		return res, ix.saveState(ctx, cp.RunID, e.CatalogID, domain.BookFailed, err)
	}

	existing, err := ix.deps.Books.GetBookByCatalogID(ctx, e.CatalogID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return res, fmt.Errorf("look up book %d: %w", e.CatalogID, err)
	}

	if !cp.FullReindex && existing != nil && ix.cfg.ChangePolicy == domain.ChangePolicyMissing {
		res.outcome = outcomeSkipped
		return res, nil
	}

	info, err := os.Stat(e.Path)
	if err != nil {
		return fail(domain.NewExtractionError(domain.ExtractionCorrupt, e.Path, err))
	}
	modTime := info.ModTime().UTC()
	if !cp.FullReindex && existing != nil && ix.cfg.ChangePolicy == domain.ChangePolicyModTime &&
		existing.FileModTime.Equal(modTime) {
		res.outcome = outcomeSkipped
		return res, nil
	}

	hash, err := fileHash(e.Path)
	if err != nil {
		return fail(domain.NewExtractionError(domain.ExtractionCorrupt, e.Path, err))
	}
	if !cp.FullReindex && existing != nil && ix.cfg.ChangePolicy == domain.ChangePolicyHash &&
		existing.ContentHash == hash {
		res.outcome = outcomeSkipped
		return res, nil
	}

	// Extracting
	if err := p.Advance(domain.BookExtracting); err != nil {
		return fail(err)
	}
	extractor, err := ix.deps.Extractors.For(e.Path)
	if err != nil {
		return fail(err)
	}
	ex, err := extractor.Extract(ctx, e.Path)
	if err != nil {
		return fail(err)
	}

	// Chunking
	if err := p.Advance(domain.BookChunking); err != nil {
		return fail(err)
	}
	content := ix.buildContent(e, ex, modTime, hash)
	texts := make([]string, 0, content.ChunkCount())
	for _, cc := range content.Chapters {
		for _, c := range cc.Chunks {
			texts = append(texts, c.Text)
		}
	}
	if len(texts) == 0 {
		return fail(domain.NewExtractionError(domain.ExtractionEmpty, e.Path, nil))
	}

	// Embedding
	if err := p.Advance(domain.BookEmbedding); err != nil {
		return fail(err)
	}
	vectors, err := ix.deps.Embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fail(fmt.Errorf("embed %d chunks: %w", len(texts), err))
	}

	// Committing
	if err := p.Advance(domain.BookCommitting); err != nil {
		return fail(err)
	}
	err = ix.commit(ctx, content, vectors)
	switch {
	case err == nil:
	case domain.IsStoreError(err, domain.StoreConstraint):
		if advErr := p.Advance(domain.BookPending); advErr != nil {
			return fail(advErr)
		}
		logger.Warn("book %d left pending: %v", e.CatalogID, err)
		res.outcome = outcomeDeferred
		return res, ix.saveState(ctx, cp.RunID, e.CatalogID, domain.BookPending, err)
	case ctx.Err() != nil:
		return res, ctx.Err()
	default:
		return res, fmt.Errorf("commit book %d: %w", e.CatalogID, err)
	}

	if err := p.Advance(domain.BookDone); err != nil {
		return fail(err)
	}
	res.outcome = outcomeDone
	res.chunks = len(texts)
	logger.Debug("book %d (%s): %d chapters, %d chunks", e.CatalogID, content.Book.Title, len(content.Chapters), len(texts))
	return res, ix.saveState(ctx, cp.RunID, e.CatalogID, domain.BookDone, nil)
}

func (ix *Indexer) saveState(ctx context.Context, runID string, catalogID int64, state domain.BookState, cause error) error {
	rec := driven.BookStateRecord{CatalogID: catalogID, RunID: runID, State: state}
	if cause != nil {
		rec.Error = cause.Error()
	}
	if err := ix.deps.Progress.SaveBookState(ctx, rec); err != nil {
		return fmt.Errorf("save state of book %d: %w", catalogID, err)
	}
	return nil
}

// commit writes vectors and rows for one book. New vectors are added
// first; if the store rejects the rows they are removed again, otherwise
// the vectors of the replaced content are removed.
func (ix *Indexer) commit(ctx context.Context, content *domain.BookContent, vectors [][]float32) error {
	ix.commitMu.Lock()
	defer ix.commitMu.Unlock()

	positions, err := ix.deps.Index.Add(ctx, vectors)
	if err != nil {
		return fmt.Errorf("add vectors: %w", err)
	}
	n := 0
	for i := range content.Chapters {
		for j := range content.Chapters[i].Chunks {
			content.Chapters[i].Chunks[j].VectorPos = positions[n]
			n++
		}
	}

	old, err := ix.deps.Books.ReplaceBookContent(ctx, content)
	if err != nil {
		if rmErr := ix.deps.Index.Remove(context.WithoutCancel(ctx), positions); rmErr != nil {
			logger.Error("remove vectors of rejected book %d: %v", content.Book.CatalogID, rmErr)
		}
		return err
	}
	if len(old) > 0 {
		if err := ix.deps.Index.Remove(context.WithoutCancel(ctx), old); err != nil {
			logger.Error("remove replaced vectors of book %d: %v", content.Book.CatalogID, err)
		}
	}
	return nil
}

// buildContent assembles the book record and its chunked chapters.
func (ix *Indexer) buildContent(e domain.CatalogEntry, ex *domain.Extraction, modTime time.Time, hash string) *domain.BookContent {
	book := domain.Book{
		CatalogID:   e.CatalogID,
		Title:       firstNonEmpty(e.Title, ex.Title, e.Path),
		Author:      firstNonEmpty(e.Author, ex.Author),
		Path:        e.Path,
		Summary:     e.Summary,
		Tags:        e.Tags,
		PublishedAt: e.PublishedAt,
		IndexedAt:   time.Now().UTC(),
		FileModTime: modTime,
		ContentHash: hash,
	}
	content := &domain.BookContent{Book: book}

	if ix.cfg.IncludeSummary {
		about := aboutText(book)
		content.Chapters = append(content.Chapters, domain.ChapterContent{
			Chapter: domain.Chapter{
				Ordinal:   aboutOrdinal,
				Title:     "About",
				WordCount: len(strings.Fields(about)),
			},
			Chunks: ix.deps.Chunker.Chunks(about),
		})
	}
	for _, ch := range ex.Chapters {
		content.Chapters = append(content.Chapters, domain.ChapterContent{
			Chapter: domain.Chapter{
				Ordinal:   ch.Ordinal,
				Title:     ch.Title,
				Href:      ch.Href,
				WordCount: ch.WordCount,
			},
			Chunks: ix.deps.Chunker.Chunks(ch.Text),
		})
	}
	return content
}

// aboutText renders book metadata as searchable prose.
func aboutText(b domain.Book) string {
	var sb strings.Builder
	sb.WriteString(b.Title)
	if b.Author != "" {
		sb.WriteString(" by ")
		sb.WriteString(b.Author)
	}
	sb.WriteString(".\n")
	if len(b.Tags) > 0 {
		sb.WriteString("Tags: ")
		sb.WriteString(strings.Join(b.Tags, ", "))
		sb.WriteString(".\n")
	}
	if b.Summary != "" {
		sb.WriteString(b.Summary)
		sb.WriteString("\n")
	}
	return sb.String()
}

func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
