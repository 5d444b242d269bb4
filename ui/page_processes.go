package ui

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/ftahirops/xgov/model"
)

// renderProcessPage draws the process table, the detail box for the
// selected row and the advisor findings.
func (m Model) renderProcessPage() string {
	var sb strings.Builder
	innerW := pageInnerW(m.width)

	// rows left after header, table header, detail and advisor boxes
	rows := m.height - 20
	if rows < 5 {
		rows = 5
	}
	start := 0
	if m.selected >= rows {
		start = m.selected - rows + 1
	}
	end := start + rows
	if end > len(m.procs) {
		end = len(m.procs)
	}

	sb.WriteString(headerStyle.Render(fmt.Sprintf(" %-7s %-24s %6s %-12s %9s  %-10s %s",
		"PID", "NAME", "CPU%", "", "RSS", "ROLE", "FLAGS")))
	sb.WriteString("\n")
	for i := start; i < end; i++ {
		p := m.procs[i]
		line := fmt.Sprintf(" %-7d %-24s %s %s %9s  %-10s %s",
			p.PID,
			truncate(p.Name, 24),
			styledPad(cpuColor(p.CPUPct).Render(fmt.Sprintf("%6.1f", p.CPUPct)), 6),
			bar(p.CPUPct, 12),
			humanize.IBytes(p.RSSBytes),
			p.Role,
			m.flags(p))
		if i == m.selected {
			line = selectedStyle.Render(styledPad(line, innerW+4))
		}
		sb.WriteString(line + "\n")
	}
	if len(m.procs) == 0 {
		sb.WriteString(dimStyle.Render("  no processes match") + "\n")
	}

	if p, ok := m.current(); ok {
		sb.WriteString(m.renderDetail(p, innerW))
	}
	sb.WriteString(m.renderAdvisor(innerW))
	return sb.String()
}

// flags summarizes health and governance marks for one row.
func (m Model) flags(p model.ProcessSnapshot) string {
	var out []string
	if h, ok := m.health[p.PID]; ok {
		if h.Leak {
			out = append(out, critStyle.Render("LEAK"))
		}
		if h.Spike {
			out = append(out, warnStyle.Render("SPIKE"))
		}
	}
	if n := len(m.ledger[p.PID]); n > 0 {
		out = append(out, orangeStyle.Render(fmt.Sprintf("ACT:%d", n)))
	}
	return strings.Join(out, " ")
}

func (m Model) renderDetail(p model.ProcessSnapshot, innerW int) string {
	lines := []string{
		labelStyle.Render("pid ") + valueStyle.Render(fmt.Sprintf("%d", p.PID)) +
			labelStyle.Render("  ppid ") + valueStyle.Render(fmt.Sprintf("%d", p.PPID)) +
			labelStyle.Render("  rss ") + valueStyle.Render(humanize.IBytes(p.RSSBytes)) +
			labelStyle.Render("  role ") + valueStyle.Render(p.Role.String()),
		labelStyle.Render("cpu ") + sparkline(m.cpuTrail[p.PID], innerW-16, 0, autoScale(m.cpuTrail[p.PID], 100)),
	}
	recs := m.ledger[p.PID]
	if len(recs) == 0 {
		lines = append(lines, dimStyle.Render("no actions applied"))
	}
	for _, r := range recs {
		prior := "-"
		if r.Prior != nil {
			prior = r.Prior.String()
		}
		lines = append(lines, fmt.Sprintf("%s %-10s %s %s",
			dimStyle.Render(r.Timestamp.Format("15:04:05")),
			string(r.Kind),
			labelStyle.Render("was "+prior),
			dimStyle.Render("("+string(r.Source)+")")))
	}
	return boxSection(truncate(p.Name, innerW), lines, innerW)
}

func (m Model) renderAdvisor(innerW int) string {
	if len(m.suggestions) == 0 {
		return ""
	}
	var lines []string
	for i, s := range m.suggestions {
		if i == 5 {
			lines = append(lines, dimStyle.Render(fmt.Sprintf("... %d more (x applies all)", len(m.suggestions)-i)))
			break
		}
		action := s.Action
		if action == "" {
			action = "-"
		}
		lines = append(lines, fmt.Sprintf("%s %s %s",
			padRight(truncate(s.Name, 20), 20),
			orangeStyle.Render(padRight(action, 15)),
			valueStyle.Render(s.Reason)))
	}
	return boxSection("Advisor", lines, innerW)
}
