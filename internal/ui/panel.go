package ui

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mattn/go-runewidth"
)

var ansiRegexp = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripANSI(s string) string { return ansiRegexp.ReplaceAllString(s, "") }

// Width is the number of terminal cells s occupies, ignoring color codes.
func Width(s string) int { return runewidth.StringWidth(stripANSI(s)) }

// Truncate shortens s to at most width cells, ending in "..." when cut.
func Truncate(s string, width int) string {
	return runewidth.Truncate(s, width, "...")
}

// ProgressBar renders a Unicode progress bar with percentage.
func ProgressBar(done, total, width int) string {
	if total <= 0 {
		total = 1
	}
	if width < 5 {
		width = 5
	}
	filled := int(float64(done) / float64(total) * float64(width))
	if filled > width {
		filled = width
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	pct := int(float64(done) / float64(total) * 100)
	return fmt.Sprintf("%s %3d%%", bar, pct)
}

// PanelLines frames lines in a box drawn with the current theme.
func PanelLines(lines []string) []string {
	t := Current()
	maxw := 0
	for _, ln := range lines {
		if w := Width(ln); w > maxw {
			maxw = w
		}
	}
	out := make([]string, 0, len(lines)+2)
	out = append(out, t.CornerTL+strings.Repeat(t.H, maxw+2)+t.CornerTR)
	for _, ln := range lines {
		out = append(out, t.V+" "+ln+strings.Repeat(" ", maxw-Width(ln))+" "+t.V)
	}
	return append(out, t.CornerBL+strings.Repeat(t.H, maxw+2)+t.CornerBR)
}

// Panel prints lines framed by PanelLines.
func Panel(lines []string) {
	for _, ln := range PanelLines(lines) {
		fmt.Println(ln)
	}
}
