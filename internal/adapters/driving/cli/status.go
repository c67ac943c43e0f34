package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/librarian/internal/core/domain"
)

var statusJSON bool

var statusCmd = libraryCommand(&cobra.Command{
	Use:   "status",
	Short: "Show indexing progress",
	Long: `Shows the state of the indexing pipeline. Counts come from the last
durable checkpoint, so they never include books that are still in flight.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
})

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output status as JSON")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	if indexingService == nil {
		return errors.New("indexing service not configured")
	}

	st, err := indexingService.Status(cmd.Context())
	if err != nil {
		return fmt.Errorf("reading status: %w", err)
	}

	if statusJSON {
		return outputJSON(cmd, st)
	}

	cmd.Printf("State:    %s\n", stateStyle(st.State).Render(string(st.State)))
	if st.RunID != "" {
		cmd.Printf("Run:      %s\n", st.RunID)
	}
	if st.State == domain.IndexIdle && st.BooksTotal == 0 {
		cmd.Println("No indexing run yet. Run librarian index to start one.")
		return nil
	}
	cmd.Printf("Books:    %d of %d resolved (%d indexed, %d unchanged, %d failed)\n",
		st.BooksDone+st.BooksSkipped+st.BooksFailed, st.BooksTotal,
		st.BooksDone, st.BooksSkipped, st.BooksFailed)
	if !st.StartedAt.IsZero() {
		cmd.Printf("Started:  %s\n", st.StartedAt.Local().Format(time.DateTime))
	}
	if !st.UpdatedAt.IsZero() {
		cmd.Printf("Updated:  %s\n", st.UpdatedAt.Local().Format(time.DateTime))
	}
	if st.EstimatedRemaining > 0 {
		cmd.Printf("Remaining: about %s\n", st.EstimatedRemaining.Round(time.Second))
	}
	if st.LastError != "" {
		cmd.Printf("Last error: %s\n", styles.Error.Render(st.LastError))
	}
	return nil
}

func stateStyle(s domain.IndexState) lipgloss.Style {
	switch s {
	case domain.IndexCompleted:
		return styles.Success
	case domain.IndexFailed:
		return styles.Error
	case domain.IndexCancelled, domain.IndexCancelling:
		return styles.Warning
	default:
		return styles.Subtitle
	}
}
