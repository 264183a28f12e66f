package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the callflow banner, colored when w is a terminal.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	lines := []struct {
		text  string
		color string
	}{
		{"   ___       _ _  __ _               ", "#38bdf8"},
		{"  / __\\__ _ | | |/ _| | _____      __", "#22d3ee"},
		{" / /  / _` || | | |_| |/ _ \\ \\ /\\ / /", "#2dd4bf"},
		{"/ /__| (_| || | |  _| | (_) \\ V  V / ", "#34d399"},
		{"\\____/\\__,_||_|_|_| |_|\\___/ \\_/\\_/  ", "#4ade80"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(w, out.String("  "+version).Faint())
	fmt.Fprintln(w)
}
