package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the pipetree banner to w, colored when the terminal supports it.
func PrintBanner(w io.Writer) {
	p := termenv.ColorProfile()
	lines := []struct{ text, color string }{
		{"        _            _                 ", "#818cf8"},
		{"  _ __ (_)_ __   ___| |_ _ __ ___  ___ ", "#a78bfa"},
		{" | '_ \\| | '_ \\ / _ \\ __| '__/ _ \\/ _ \\", "#c084fc"},
		{" | |_) | | |_) |  __/ |_| | |  __/  __/", "#e879f9"},
		{" | .__/|_| .__/ \\___|\\__|_|  \\___|\\___|", "#f472b6"},
		{" |_|     |_|                           ", "#fb7185"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w)
}
