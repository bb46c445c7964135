package ui

import (
	"sort"
	"strings"
)

// Theme bundles palette + symbols + box borders.
// All UI helpers pull from `current`; the interactive list reads the
// symbols too so both views agree.
type Theme struct {
	Name                                          string
	Title, Muted, Accent, Success, Error, Pending string
	BoxUnchecked, BoxChecked                      string
	CornerTL, CornerTR, CornerBL, CornerBR        string
	H, V                                          string
	SymDone, SymUnchecked                         string
}

// DefaultTheme is used for unknown or empty theme names.
const DefaultTheme = "classic"

var themes = map[string]Theme{
	"classic": {
		Title: bold, Muted: fgGray, Accent: fgBlue,
		Success: fgGreen, Error: fgRed, Pending: fgYellow,
		BoxUnchecked: "☐", BoxChecked: "☑",
		CornerTL: "┌", CornerTR: "┐", CornerBL: "└", CornerBR: "┘",
		H: "─", V: "│",
		SymDone: "✔", SymUnchecked: "•",
	},
	"neon": {
		Title: "\033[95m", // bright magenta
		Muted: fgGray, Accent: "\033[96m",
		Success: fgGreen, Error: fgRed, Pending: "\033[93m",
		BoxUnchecked: "◻", BoxChecked: "◼",
		CornerTL: "╭", CornerTR: "╮", CornerBL: "╰", CornerBR: "╯",
		H: "─", V: "│",
		SymDone: "✔", SymUnchecked: "•",
	},
	"mono": {
		BoxUnchecked: "[ ]", BoxChecked: "[x]",
		CornerTL: "+", CornerTR: "+", CornerBL: "+", CornerBR: "+",
		H: "-", V: "|",
		SymDone: "x", SymUnchecked: "-",
	},
}

var current Theme

func init() { SetTheme(DefaultTheme) }

// SetTheme switches the current theme. Unknown names fall back to classic;
// mono also turns color off.
func SetTheme(name string) {
	name = strings.ToLower(strings.TrimSpace(name))
	t, ok := themes[name]
	if !ok {
		name = DefaultTheme
		t = themes[name]
	}
	t.Name = name
	if name == "mono" {
		disableColor = true
	}
	current = t
}

// ThemeNames lists the known themes, sorted.
func ThemeNames() []string {
	names := make([]string, 0, len(themes))
	for name := range themes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Current is the active theme.
func Current() Theme { return current }
