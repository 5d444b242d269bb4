package ui

import (
	"fmt"
	"strings"
)

func (m Model) renderEventsPage() string {
	if len(m.events) == 0 {
		return dimStyle.Render("  no events yet")
	}
	var lines []string
	for i := len(m.events) - 1; i >= 0; i-- {
		e := m.events[i]
		lines = append(lines, fmt.Sprintf(" %s %s %s",
			dimStyle.Render(e.Time.Format("15:04:05")),
			eventStyle(e.Kind).Render(padRight(string(e.Kind), 7)),
			e.Message))
	}
	if m.scroll < len(lines) {
		lines = lines[m.scroll:]
	}
	return strings.Join(lines, "\n")
}
