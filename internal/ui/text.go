package ui

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"
)

// Ellipsis marks truncated text.
const Ellipsis = "…"

// Truncate shortens s to at most width terminal cells, appending an
// ellipsis when anything was cut. ANSI sequences are preserved.
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if ansi.StringWidth(s) <= width {
		return s
	}
	return ansi.Truncate(s, width, Ellipsis)
}

// Fit truncates plain text to width cells and pads it with spaces so it
// occupies exactly width cells.
func Fit(s string, width int) string {
	if width <= 0 {
		return ""
	}
	s = strings.ReplaceAll(s, "\n", " ")
	if runewidth.StringWidth(s) > width {
		s = runewidth.Truncate(s, width, Ellipsis)
	}
	return runewidth.FillRight(s, width)
}
