// internal/output/terminal.go
package output

import (
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

const defaultWidth = 100

var (
	readyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#1B7F3B", Dark: "#5FD787"}).
			Bold(true)
	notReadyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#B00020", Dark: "#FF5F5F"}).
			Bold(true)
	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#666666", Dark: "#999999"})
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// TerminalWidth returns the width of f, or a default when unknown.
func TerminalWidth(f *os.File) int {
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil || w <= 0 {
		return defaultWidth
	}
	return w
}

// RenderMarkdown styles md for a terminal of the given width.
func RenderMarkdown(md []byte, width int) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("creating glamour renderer: %w", err)
	}
	return r.Render(string(md))
}

// VerdictLine is a one-line styled status for s.
func VerdictLine(s *Summary) string {
	switch {
	case s.Error != "":
		return notReadyStyle.Render("FAILED") + " " + mutedStyle.Render(s.Error)
	case s.Verdict == "":
		return mutedStyle.Render("no verdict")
	case s.Verdict == "ready":
		return readyStyle.Render("READY") + " " + mutedStyle.Render(fmt.Sprintf("agreement %.2f, %d reinforced", s.Agreement, s.Reinforced))
	default:
		return notReadyStyle.Render("NOT READY") + " " + mutedStyle.Render(fmt.Sprintf("agreement %.2f, %d reinforced", s.Agreement, s.Reinforced))
	}
}
