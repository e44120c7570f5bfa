package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []string{
	"       _             _",
	"   ___| |_ _ __ __ _| |_ __ _",
	"  / __| __| '__/ _` | __/ _` |",
	"  \\__ \\ |_| | | (_| | || (_| |",
	"  |___/\\__|_|  \\__,_|\\__\\__,_|",
}

// Subtle gradient (Indigo/Violet), one color per line.
var bannerColors = []string{"#818cf8", "#a78bfa", "#c084fc", "#e879f9", "#f472b6"}

// PrintBanner writes the ASCII art banner to w. Colors are only emitted
// when w is a terminal.
func PrintBanner(w io.Writer) {
	o := termenv.NewOutput(w)
	fmt.Fprintln(w)
	for i, line := range bannerLines {
		fmt.Fprintln(w, o.String(line).Foreground(o.Color(bannerColors[i])))
	}
	fmt.Fprintln(w)
}
