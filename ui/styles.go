package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/ftahirops/xgov/model"
)

var (
	// Colors
	colorRed     = lipgloss.Color("#FF5555")
	colorYellow  = lipgloss.Color("#F1FA8C")
	colorGreen   = lipgloss.Color("#50FA7B")
	colorCyan    = lipgloss.Color("#8BE9FD")
	colorMagenta = lipgloss.Color("#FF79C6")
	colorOrange  = lipgloss.Color("#FFB86C")
	colorWhite   = lipgloss.Color("#F8F8F2")
	colorGray    = lipgloss.Color("#6272A4")
	colorPanel   = lipgloss.Color("#44475A")

	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	labelStyle    = lipgloss.NewStyle().Foreground(colorGray)
	valueStyle    = lipgloss.NewStyle().Foreground(colorWhite)
	warnStyle     = lipgloss.NewStyle().Foreground(colorYellow).Bold(true)
	critStyle     = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	okStyle       = lipgloss.NewStyle().Foreground(colorGreen)
	headerStyle   = lipgloss.NewStyle().Foreground(colorMagenta).Bold(true)
	selectedStyle = lipgloss.NewStyle().Background(colorPanel).Foreground(colorWhite)
	helpStyle     = lipgloss.NewStyle().Foreground(colorGray)
	dimStyle      = lipgloss.NewStyle().Foreground(colorGray)
	orangeStyle   = lipgloss.NewStyle().Foreground(colorOrange)
)

// cpuColor picks a style for a process CPU share.
func cpuColor(pct float64) lipgloss.Style {
	switch {
	case pct >= 50:
		return critStyle
	case pct >= 15:
		return warnStyle
	default:
		return valueStyle
	}
}

func statusStyle(s model.OutcomeStatus) lipgloss.Style {
	switch s {
	case model.StatusOK:
		return okStyle
	case model.StatusNoop, model.StatusSkipped:
		return dimStyle
	case model.StatusUnsupported:
		return orangeStyle
	case model.StatusRefused:
		return warnStyle
	default:
		return critStyle
	}
}

func eventStyle(k model.EventKind) lipgloss.Style {
	switch k {
	case model.EventAction:
		return okStyle
	case model.EventEffect:
		return titleStyle
	case model.EventRevert:
		return orangeStyle
	default:
		return dimStyle
	}
}

// deltaStyle colors an effect delta: a drop is good.
func deltaStyle(v float64) lipgloss.Style {
	switch {
	case v < 0:
		return okStyle
	case v > 0:
		return warnStyle
	default:
		return dimStyle
	}
}
