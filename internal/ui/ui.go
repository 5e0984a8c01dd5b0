// Package ui renders CLI output: styled summaries and tables.
package ui

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Color palette
const (
	colorPrimary = "#7D56F4"
	colorSuccess = "#04B575"
	colorWarn    = "#E5A50A"
	colorError   = "#FF5F5F"
	colorMuted   = "#626262"
	colorBorder  = "#874BFD"
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(colorPrimary))

	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorSuccess))

	WarnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorWarn))

	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorError))

	MutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorMuted))

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(colorBorder)).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(colorPrimary)).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().Padding(0, 1)
)

// Init picks the color profile for w. Output that is not a terminal, or
// NO_COLOR being set, gets plain ASCII.
func Init(w io.Writer) {
	f, ok := w.(*os.File)
	if !ok || !IsTerminal(f) {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	lipgloss.SetColorProfile(termenv.EnvColorProfile())
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Width returns the terminal width of f, or 100 when unknown.
func Width(f *os.File) int {
	if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
		return w
	}
	return 100
}
