package cli

import (
	"github.com/charmbracelet/lipgloss"
)

// theme is the colour palette for terminal output.
type theme struct {
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Muted     lipgloss.Color
	Success   lipgloss.Color
	Warning   lipgloss.Color
	Error     lipgloss.Color
}

func defaultTheme() theme {
	return theme{
		Primary:   lipgloss.Color("#7C3AED"), // Purple
		Secondary: lipgloss.Color("#06B6D4"), // Cyan
		Muted:     lipgloss.Color("#6C7086"), // Medium gray
		Success:   lipgloss.Color("#A6E3A1"), // Green
		Warning:   lipgloss.Color("#F9E2AF"), // Yellow
		Error:     lipgloss.Color("#F38BA8"), // Red
	}
}

// outputStyles are the lipgloss styles used by commands. Colour is
// dropped automatically when output is not a terminal.
type outputStyles struct {
	theme theme

	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Muted    lipgloss.Style
	Success  lipgloss.Style
	Warning  lipgloss.Style
	Error    lipgloss.Style
	Snippet  lipgloss.Style
}

func newOutputStyles(t theme) outputStyles {
	return outputStyles{
		theme: t,

		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(t.Primary),

		Subtitle: lipgloss.NewStyle().
			Bold(true).
			Foreground(t.Secondary),

		Muted: lipgloss.NewStyle().
			Foreground(t.Muted),

		Success: lipgloss.NewStyle().
			Foreground(t.Success),

		Warning: lipgloss.NewStyle().
			Foreground(t.Warning),

		Error: lipgloss.NewStyle().
			Foreground(t.Error),

		Snippet: lipgloss.NewStyle().
			PaddingLeft(6).
			Width(88),
	}
}

var styles = newOutputStyles(defaultTheme())
