package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// styledPad pads an ANSI-styled string to a visual width.
func styledPad(styled string, width int) string {
	if w := lipgloss.Width(styled); w < width {
		return styled + strings.Repeat(" ", width-w)
	}
	return styled
}

// boxSection renders a rounded box with a title row, a divider and lines,
// each padded to innerW visible columns.
func boxSection(title string, lines []string, innerW int) string {
	edge := func(l, r string) string {
		return " " + dimStyle.Render(l+strings.Repeat("─", innerW+2)+r) + "\n"
	}
	row := func(content string) string {
		pad := innerW - lipgloss.Width(content)
		if pad < 0 {
			pad = 0
		}
		side := dimStyle.Render("│")
		return " " + side + " " + content + strings.Repeat(" ", pad) + " " + side + "\n"
	}

	var sb strings.Builder
	sb.WriteString(edge("╭", "╮"))
	sb.WriteString(row(headerStyle.Render(title)))
	sb.WriteString(edge("├", "┤"))
	for _, line := range lines {
		sb.WriteString(row(line))
	}
	sb.WriteString(edge("╰", "╯"))
	return sb.String()
}

// pageInnerW is the box inner width for a terminal width.
func pageInnerW(termWidth int) int {
	return max(termWidth-6, 60)
}

// bar renders pct as a filled gauge colored by load.
func bar(pct float64, width int) string {
	if width < 1 {
		width = 10
	}
	pct = min(max(pct, 0), 100)
	filled := min(int(pct/100*float64(width)), width)
	b := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return pctChartColor(pct).Render(b)
}

// Process names are arbitrary UTF-8, so the text helpers count runes.

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if maxLen <= 0 {
		return ""
	}
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 1 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-1]) + "…"
}

func padRight(s string, width int) string {
	s = truncate(s, width)
	return s + strings.Repeat(" ", width-len([]rune(s)))
}

func padLeft(s string, width int) string {
	s = truncate(s, width)
	return strings.Repeat(" ", width-len([]rune(s))) + s
}

// sparkline renders data as one row of block glyphs plus the last value.
func sparkline(data []float64, width int, minVal, maxVal float64) string {
	blocks := []rune("▁▂▃▄▅▆▇█")
	if maxVal <= minVal {
		maxVal = minVal + 1
	}
	points := resampleData(data, width)

	var sb strings.Builder
	for _, v := range points {
		ratio := min(max((v-minVal)/(maxVal-minVal), 0), 1)
		glyph := string(blocks[int(ratio*float64(len(blocks)-1))])
		switch {
		case ratio > 0.8:
			sb.WriteString(critStyle.Render(glyph))
		case ratio > 0.4:
			sb.WriteString(warnStyle.Render(glyph))
		default:
			sb.WriteString(okStyle.Render(glyph))
		}
	}
	last := 0.0
	if len(points) > 0 {
		last = points[len(points)-1]
	}
	sb.WriteString(dimStyle.Render(fmt.Sprintf(" now=%.1f", last)))
	return sb.String()
}

// signedPct formats a delta with an explicit sign.
func signedPct(v float64) string {
	return fmt.Sprintf("%+.1f%%", v)
}
