package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/librarian/internal/core/domain"
)

const progressPollInterval = 250 * time.Millisecond

type (
	// statusMsg carries a fresh status read.
	statusMsg struct{ status *domain.IndexStatus }

	// runDoneMsg ends the program.
	runDoneMsg struct{}

	pollMsg time.Time
)

// progressModel renders indexing progress. Counts come from the
// indexer's last checkpoint, so the bar moves in checkpoint steps.
type progressModel struct {
	bar       progress.Model
	status    domain.IndexStatus
	poll      func() (*domain.IndexStatus, error)
	interrupt func() string
	note      string
	started   time.Time
	done      bool
}

func newProgressModel(poll func() (*domain.IndexStatus, error), interrupt func() string) progressModel {
	return progressModel{
		bar: progress.New(
			progress.WithGradient(string(styles.theme.Primary), string(styles.theme.Secondary)),
			progress.WithWidth(48),
		),
		poll:      poll,
		interrupt: interrupt,
		started:   time.Now(),
	}
}

func (m progressModel) Init() tea.Cmd {
	return tea.Batch(m.refresh, pollTick())
}

func pollTick() tea.Cmd {
	return tea.Tick(progressPollInterval, func(t time.Time) tea.Msg {
		return pollMsg(t)
	})
}

func (m progressModel) refresh() tea.Msg {
	st, err := m.poll()
	if err != nil || st == nil {
		return nil
	}
	return statusMsg{status: st}
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.note = m.interrupt()
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.bar.Width = min(max(msg.Width-8, 10), 72)
		return m, nil
	case pollMsg:
		return m, tea.Batch(m.refresh, pollTick())
	case statusMsg:
		m.status = *msg.status
		return m, nil
	case runDoneMsg:
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m progressModel) fraction() float64 {
	if m.status.BooksTotal == 0 {
		return 0
	}
	resolved := m.status.BooksDone + m.status.BooksSkipped + m.status.BooksFailed
	return float64(resolved) / float64(m.status.BooksTotal)
}

func (m progressModel) View() string {
	if m.done {
		return ""
	}

	var b strings.Builder
	st := m.status
	resolved := st.BooksDone + st.BooksSkipped + st.BooksFailed
	fmt.Fprintf(&b, "%s %d/%d books\n", styles.Title.Render("Indexing"), resolved, st.BooksTotal)
	b.WriteString(m.bar.ViewAs(m.fraction()))
	b.WriteString("\n")

	detail := fmt.Sprintf("%d indexed, %d unchanged, %d failed, %s elapsed",
		st.BooksDone, st.BooksSkipped, st.BooksFailed, time.Since(m.started).Round(time.Second))
	if st.EstimatedRemaining > 0 {
		detail += fmt.Sprintf(", about %s left", st.EstimatedRemaining.Round(time.Second))
	}
	b.WriteString(styles.Muted.Render(detail))
	b.WriteString("\n")

	if m.note != "" {
		b.WriteString(styles.Warning.Render(m.note))
		b.WriteString("\n")
	}
	return b.String()
}

// runProgressUI runs the indexer behind a bubbletea progress bar. The
// terminal is in raw mode while it runs, so Ctrl+C arrives as a key.
func runProgressUI(
	ctx context.Context,
	cmd *cobra.Command,
	opts domain.IndexOptions,
	stop *interrupter,
) (*domain.RunSummary, error) {
	model := newProgressModel(
		func() (*domain.IndexStatus, error) { return indexingService.Status(ctx) },
		stop.interrupt,
	)
	p := tea.NewProgram(model, tea.WithOutput(cmd.OutOrStdout()), tea.WithContext(ctx))

	var (
		summary *domain.RunSummary
		runErr  error
	)
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		summary, runErr = indexingService.Run(ctx, opts)
		p.Send(runDoneMsg{})
	}()

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		// The run continues without the display.
		cmd.PrintErrf("progress display: %v\n", err)
	}
	<-runDone
	return summary, runErr
}
