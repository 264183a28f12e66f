package tui

import (
	"io"
	"os"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

const defaultWidth = 100

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Width returns the terminal width of w, or a default when it is not a terminal.
func Width(w io.Writer) int {
	if f, ok := w.(*os.File); ok {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
			return width
		}
	}
	return defaultWidth
}

// NewRenderer returns a function that renders markdown for w.
// Output that is not a terminal receives the markdown unchanged.
func NewRenderer(w io.Writer) (func(string) (string, error), error) {
	if !IsTerminal(w) {
		return func(markdown string) (string, error) { return markdown, nil }, nil
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(Width(w)-4),
	)
	if err != nil {
		return nil, err
	}
	return r.Render, nil
}
