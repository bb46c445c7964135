package cli

import (
	"fmt"

	"github.com/idilsaglam/tada/internal/model"
	"github.com/idilsaglam/tada/internal/ui"
)

// maxTitleWidth caps a title in terminal cells.
const maxTitleWidth = 80

func printList(items []model.TodoItem, group bool) {
	ui.Panel(listLines(items, group))
}

func listLines(items []model.TodoItem, group bool) []string {
	// Header + progress
	d, p := model.Stats(items)
	header := fmt.Sprintf("%s  %s %d  %s %d  %s %d",
		ui.C(ui.Current().Title, "Todos"),
		ui.C(ui.Current().Success, ui.Current().SymDone), d,
		ui.C(ui.Current().Pending, ui.Current().SymUnchecked), p,
		ui.C(ui.Current().Accent, "Total"), len(items),
	)

	var lines []string
	lines = append(lines, header)
	lines = append(lines, ui.C(ui.Current().Muted, ui.ProgressBar(d, d+p, 28)))
	lines = append(lines, "")

	if group {
		lines = append(lines, groupLines(items)...)
	} else {
		lines = append(lines, flatLines(items, nil)...)
	}
	lines = append(lines, "")
	lines = append(lines, ui.C(ui.Current().Muted, "Tip: add with `todo add \"Buy milk\"`"))
	return lines
}

// flatLines numbers items by their position in the full list, so the
// printed index is always the one done/rm/edit expect.
func flatLines(items []model.TodoItem, positions []int) []string {
	if len(items) == 0 {
		return []string{ui.C(ui.Current().Muted, "no items")}
	}
	out := make([]string, 0, len(items))
	for i, it := range items {
		n := i + 1
		if positions != nil {
			n = positions[i] + 1
		}
		idx := fmt.Sprintf("%2d.", n)
		box := ui.Current().BoxUnchecked
		color := ui.Current().Muted
		if it.Completed {
			box, color = ui.Current().BoxChecked, ui.Current().Success
		}
		title := ui.Truncate(it.Title, maxTitleWidth)
		out = append(out, fmt.Sprintf("%s %s %s",
			ui.C("\033[2m", idx), ui.C(color, box), title))
	}
	return out
}

func groupLines(items []model.TodoItem) []string {
	var pend, done []model.TodoItem
	var pendAt, doneAt []int
	for i, it := range items {
		if it.Completed {
			done = append(done, it)
			doneAt = append(doneAt, i)
		} else {
			pend = append(pend, it)
			pendAt = append(pendAt, i)
		}
	}
	var lines []string
	lines = append(lines, ui.C(ui.Current().Accent, "Pending"))
	if len(pend) == 0 {
		lines = append(lines, ui.C(ui.Current().Muted, "(none)"))
	} else {
		lines = append(lines, flatLines(pend, pendAt)...)
	}
	lines = append(lines, "")
	lines = append(lines, ui.C(ui.Current().Accent, "Done"))
	if len(done) == 0 {
		lines = append(lines, ui.C(ui.Current().Muted, "(none)"))
	} else {
		lines = append(lines, flatLines(done, doneAt)...)
	}
	return lines
}
