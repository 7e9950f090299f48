package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/aschmelyun/tlabel/internal/projector"
	"github.com/aschmelyun/tlabel/internal/timeline"
)

const (
	barIndent = 2
	barRow    = 1 // line of the View the bar is drawn on
	minBar    = 10
)

// layoutBar rasterizes a projection into width cells. Later spans overwrite
// earlier ones where one-pixel floors make neighbours collide.
func layoutBar(p projector.Projection, width int) []barCell {
	if width <= 0 {
		return nil
	}
	cells := make([]barCell, width)
	for _, s := range p.Spans {
		for x := max(s.PixelStart, 0); x < s.PixelStart+s.PixelWidth && x < width; x++ {
			cells[x] = barCell{label: s.Label, filled: true}
		}
	}
	marker := min(max(p.CurrentPixel, 0), width-1)
	cells[marker].marker = true
	return cells
}

// renderBar draws cells, grouping runs of identical cells into one styled
// segment.
func renderBar(cells []barCell, styles map[timeline.Label]lipgloss.Style) string {
	var b strings.Builder
	for i := 0; i < len(cells); {
		j := i + 1
		for j < len(cells) && cells[j] == cells[i] {
			j++
		}
		b.WriteString(renderRun(cells[i], j-i, styles))
		i = j
	}
	return b.String()
}

func renderRun(c barCell, n int, styles map[timeline.Label]lipgloss.Style) string {
	switch {
	case c.marker:
		return MarkerStyle.Render(strings.Repeat("┃", n))
	case c.filled:
		return styleFor(styles, c.label).Render(strings.Repeat("█", n))
	default:
		return EmptyBarStyle.Render(strings.Repeat("░", n))
	}
}

// barWidth is the number of columns the bar gets in a terminal of the given width.
func barWidth(termWidth int) int {
	return max(minBar, termWidth-2*barIndent)
}
