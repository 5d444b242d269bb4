package ui

import (
	"fmt"
	"strings"
)

func (m Model) renderEffectsPage() string {
	var sb strings.Builder
	innerW := pageInnerW(m.width)

	if len(m.totalCPU) > 1 {
		sb.WriteString(areaChart(m.totalCPU, "Total CPU %", innerW, 6, 0, 100, pctChartColor, m.trailStart, m.trailEnd))
		sb.WriteString("\n\n")
	}

	recs := m.eng.EffectHistory(0)
	if len(recs) == 0 {
		sb.WriteString(dimStyle.Render("  no effects measured yet; apply an action and wait for the settle interval"))
		return sb.String()
	}

	sb.WriteString(headerStyle.Render(fmt.Sprintf(" %-8s %-7s %-26s %8s %8s %9s %10s",
		"TIME", "PID", "ACTION", "CPU0", "CPU1", "dCPU", "dMEM MB")))
	sb.WriteString("\n")
	// newest first
	lines := make([]string, 0, len(recs))
	for i := len(recs) - 1; i >= 0; i-- {
		r := recs[i]
		lines = append(lines, fmt.Sprintf(" %-8s %-7d %-26s %7.1f%% %7.1f%% %s %s",
			r.T1.Format("15:04:05"), r.PID, truncate(r.Action, 26), r.CPU0, r.CPU1,
			styledPad(deltaStyle(r.DCPU).Render(padLeft(signedPct(r.DCPU), 9)), 9),
			deltaStyle(r.DMem).Render(padLeft(fmt.Sprintf("%+.0f", r.DMem), 10))))
	}
	if m.scroll < len(lines) {
		lines = lines[m.scroll:]
	}
	sb.WriteString(strings.Join(lines, "\n"))
	return sb.String()
}
