package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// eighths are the partial-fill glyphs for one chart cell, empty to full.
var eighths = []rune(" ▁▂▃▄▅▆▇█")

// areaChart draws data as a filled area of the given height under a title
// line, with a percent axis on the left and the trail's time span below.
func areaChart(data []float64, label string, width, height int, minVal, maxVal float64,
	colorFn func(float64) lipgloss.Style, startTime, endTime time.Time) string {

	height = max(height, 2)
	if maxVal <= minVal {
		maxVal = minVal + 1
	}
	const axis = "   │"
	cols := resampleData(data, max(width-len(axis)-1, 10))
	span := maxVal - minVal

	var sb strings.Builder
	now := 0.0
	if n := len(cols); n > 0 {
		now = cols[n-1]
	}
	fmt.Fprintf(&sb, "%s%s\n", titleStyle.Render(label), dimStyle.Render(fmt.Sprintf("  now: %.1f", now)))

	for row := height; row >= 1; row-- {
		tick := minVal + span*float64(row)/float64(height)
		sb.WriteString(dimStyle.Render(fmt.Sprintf("%3.0f│", tick)))
		for _, v := range cols {
			fill := (v - minVal) / span * float64(height)
			g := cellGlyph(fill - float64(row-1))
			if g == ' ' {
				sb.WriteByte(' ')
				continue
			}
			sb.WriteString(colorFn(v).Render(string(g)))
		}
		sb.WriteByte('\n')
	}
	sb.WriteString(dimStyle.Render("   └"+strings.Repeat("─", len(cols))) + "\n")

	if startTime.IsZero() || endTime.IsZero() {
		return sb.String()
	}
	from, to := startTime.Format("15:04:05"), endTime.Format("15:04:05")
	gap := max(len(cols)+len(axis)-len(from)-len(to), 1)
	sb.WriteString(dimStyle.Render("   " + from + strings.Repeat(" ", gap) + to))
	return sb.String()
}

// cellGlyph picks the glyph for a cell covered to depth (in cell heights).
func cellGlyph(depth float64) rune {
	if depth <= 0 {
		return ' '
	}
	if depth >= 1 {
		return eighths[len(eighths)-1]
	}
	return eighths[min(int(depth*8), len(eighths)-1)]
}

// resampleData shrinks data to n columns by averaging equal buckets.
// Shorter series come back unchanged.
func resampleData(data []float64, n int) []float64 {
	if n <= 0 || len(data) <= n {
		return data
	}
	out := make([]float64, n)
	for i := range out {
		lo, hi := i*len(data)/n, (i+1)*len(data)/n
		if hi <= lo {
			hi = lo + 1
		}
		var sum float64
		for _, v := range data[lo:hi] {
			sum += v
		}
		out[i] = sum / float64(hi-lo)
	}
	return out
}

// pctChartColor grades a 0-100 value into ok, warn or crit.
func pctChartColor(val float64) lipgloss.Style {
	if val >= 80 {
		return critStyle
	}
	if val >= 50 {
		return warnStyle
	}
	return okStyle
}

// scaleSteps are the y-axis ceilings autoScale rounds up to.
var scaleSteps = []float64{1, 2, 5, 10, 15, 20, 25, 30, 40, 50, 75, 100}

// autoScale returns the smallest step holding the peak plus 30% headroom,
// or ceiling when the peak outgrows every step.
func autoScale(data []float64, ceiling float64) float64 {
	var peak float64
	for _, v := range data {
		peak = max(peak, v)
	}
	if peak <= 0 {
		return 5
	}
	for _, s := range scaleSteps {
		if peak*1.3 <= s {
			return s
		}
	}
	return ceiling
}
