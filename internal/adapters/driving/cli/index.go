package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/librarian/internal/core/domain"
)

var (
	indexFull  bool
	indexWatch bool
	resetIndex bool
)

var indexCmd = libraryCommand(&cobra.Command{
	Use:   "index",
	Short: "Index books from the catalog",
	Long: `Extracts, chunks and embeds the books listed in the catalog.

By default only books that are new, or changed under the configured change
policy, are processed, and an interrupted run resumes where it stopped.
Press Ctrl+C once to stop after the books in progress, twice to abort.

Examples:
  # Index new books
  librarian index

  # Rebuild every book
  librarian index --full

  # Keep indexing as the catalog changes
  librarian index --watch`,
	Args: cobra.NoArgs,
	RunE: runIndex,
})

func init() {
	indexCmd.Flags().BoolVar(&indexFull, "full", false, "re-index every book")
	indexCmd.Flags().BoolVar(&indexWatch, "watch", false, "keep running and index catalog changes")
	indexCmd.Flags().BoolVar(&resetIndex, "reset-index", false, "start a new vector index if the existing one is missing or mismatched")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, _ []string) error {
	if indexingService == nil {
		return errors.New("indexing service not configured")
	}
	if indexWatch && catalogWatcher == nil {
		return errors.New("catalog watcher not configured")
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	stop := &interrupter{cancel: indexingService.Cancel, abort: cancel}
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	go func() {
		for {
			select {
			case <-sigCh:
				cmd.PrintErrln(stop.interrupt())
			case <-ctx.Done():
				return
			}
		}
	}()

	opts := domain.IndexOptions{FullReindex: indexFull}
	summary, err := indexWithProgress(ctx, cmd, opts, stop)
	if summary != nil {
		printSummary(cmd, summary)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			cmd.PrintErrln(styles.Warning.Render("Indexing aborted. Run librarian index to resume."))
			return nil
		}
		return fmt.Errorf("indexing failed: %w", err)
	}
	if summary != nil && summary.State == domain.IndexCancelled {
		cmd.Println(styles.Warning.Render("Indexing stopped. Run librarian index to resume."))
		return nil
	}

	if !indexWatch {
		return nil
	}
	cmd.Println("Watching the catalog for changes (Ctrl+C to stop)...")
	stop.abortOnly()
	return catalogWatcher.Watch(ctx)
}

// indexWithProgress runs the indexer, rendering progress on a terminal
// and periodic status lines otherwise.
func indexWithProgress(
	ctx context.Context,
	cmd *cobra.Command,
	opts domain.IndexOptions,
	stop *interrupter,
) (*domain.RunSummary, error) {
	if out, ok := cmd.OutOrStdout().(*os.File); ok && isTerminal(out.Fd()) {
		return runProgressUI(ctx, cmd, opts, stop)
	}

	cmd.Println("Indexing catalog...")

	type runResult struct {
		summary *domain.RunSummary
		err     error
	}
	resCh := make(chan runResult, 1)
	go func() {
		summary, err := indexingService.Run(ctx, opts)
		resCh <- runResult{summary, err}
	}()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	lastResolved := -1
	for {
		select {
		case res := <-resCh:
			return res.summary, res.err
		case <-ticker.C:
			// Best effort; a failed status read only skips a line.
			status, err := indexingService.Status(ctx)
			if err != nil || status == nil {
				continue
			}
			resolved := status.BooksDone + status.BooksSkipped + status.BooksFailed
			if resolved != lastResolved {
				cmd.Println(progressLine(status))
				lastResolved = resolved
			}
		}
	}
}

func progressLine(st *domain.IndexStatus) string {
	line := fmt.Sprintf("Indexed %d of %d books", st.BooksDone+st.BooksSkipped+st.BooksFailed, st.BooksTotal)
	if st.BooksFailed > 0 {
		line += fmt.Sprintf(" (%d failed)", st.BooksFailed)
	}
	if st.EstimatedRemaining > 0 {
		line += fmt.Sprintf(", about %s left", st.EstimatedRemaining.Round(time.Second))
	}
	return line
}

func printSummary(cmd *cobra.Command, s *domain.RunSummary) {
	cmd.Printf("%s %d indexed, %d unchanged, %d failed, %d chunks in %s\n",
		styles.Success.Render("Done:"),
		s.BooksDone, s.BooksSkipped, s.BooksFailed, s.ChunksAdded,
		s.Duration.Round(time.Millisecond))
	if s.BooksFailed > 0 {
		cmd.Println(styles.Muted.Render("Failed books are retried on the next run; see librarian status."))
	}
}

// interrupter turns repeated Ctrl+C into a graceful stop, then an abort.
type interrupter struct {
	cancel func()
	abort  func()

	mu    sync.Mutex
	count int
	// hard skips the graceful stop once no run is active.
	hard bool
}

func (i *interrupter) interrupt() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.count++
	if i.count == 1 && !i.hard {
		i.cancel()
		return "Stopping after the books in progress. Press Ctrl+C again to abort."
	}
	i.abort()
	return "Aborting."
}

// abortOnly makes the next interrupt abort immediately.
func (i *interrupter) abortOnly() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.hard = true
}
