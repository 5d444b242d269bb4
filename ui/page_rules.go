package ui

import (
	"fmt"
	"strings"

	"github.com/ftahirops/xgov/engine"
)

func (m Model) renderRulesPage() string {
	var sb strings.Builder
	innerW := pageInnerW(m.width)

	var rules []string
	for i, r := range m.eng.Rules() {
		pattern := r.Pattern
		if pattern == "" {
			pattern = "*"
		}
		state := okStyle.Render("active")
		if err := engine.ValidateRule(r); err != nil {
			state = critStyle.Render("invalid: " + err.Error())
		}
		rules = append(rules, fmt.Sprintf("%2d. %s %s %s %s", i+1,
			padRight(pattern, 18), padRight(r.When, 22), orangeStyle.Render(padRight(r.Action, 15)), state))
	}
	if len(rules) == 0 {
		rules = append(rules, dimStyle.Render("no rules configured"))
	}
	sb.WriteString(boxSection("Rules", rules, innerW))

	th := m.eng.Thresholds()
	sb.WriteString(boxSection("Advisor thresholds", []string{
		labelStyle.Render("background CPU  ") + valueStyle.Render(fmt.Sprintf("%.0f%%", th.BgCPU)),
		labelStyle.Render("heavy RAM       ") + valueStyle.Render(fmt.Sprintf("%.0f MB", th.HeavyRAMMB)),
	}, innerW))

	wl := m.eng.Whitelist()
	line := dimStyle.Render("empty (w on the process page adds the selected name)")
	if len(wl) > 0 {
		line = valueStyle.Render(strings.Join(wl, ", "))
	}
	sb.WriteString(boxSection("Whitelist", []string{line}, innerW))
	return sb.String()
}
