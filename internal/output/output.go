package output

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"
)

const defaultWidth = 80

// PrintRight overwrites the current line of f with text aligned to the
// right edge of the terminal.
func PrintRight(f *os.File, text string) {
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		width = defaultWidth
	}

	padding := max(width-utf8.RuneCountInString(text), 0)
	fmt.Fprintf(f, "\r%s%s", strings.Repeat(" ", padding), text)
}

// ProgressBar renders percent, clamped to [0, 100], over width cells.
func ProgressBar(percent int, width int) string {
	percent = min(max(percent, 0), 100)
	filled := (percent * width) / 100

	return strings.Repeat("█", filled) + strings.Repeat(" ", width-filled)
}
