package cmd

import (
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
)

var (
	primary = lipgloss.Color("#22d3ee")
	success = lipgloss.Color("#10B981")
	failure = lipgloss.Color("#EF4444")
	muted   = lipgloss.Color("#6B7280")

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(primary)
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(success)
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(failure)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
)

func errorLine(msg string) string {
	return errorStyle.Render("✗ " + msg)
}

// statusText colours the relay's connected/online words.
func statusText(s string) string {
	switch strings.ToLower(s) {
	case "online", "connected":
		return successStyle.Render(s)
	case "":
		return mutedStyle.Render("unknown")
	default:
		return errorStyle.Render(s)
	}
}

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	if title != "" {
		t.SetTitle(titleStyle.Render(title))
	}
	return t
}
