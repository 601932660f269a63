package play

import (
	"charm.land/lipgloss/v2"
)

// Palette, calm and high-contrast for exam conditions.
var (
	colorPrimary = lipgloss.Color("#6366F1") // Indigo
	colorInfo    = lipgloss.Color("#0EA5E9") // Sky
	colorWarn    = lipgloss.Color("#F59E0B") // Amber
	colorGood    = lipgloss.Color("#22C55E") // Green
	colorBad     = lipgloss.Color("#EF4444") // Red
	colorText    = lipgloss.Color("#F8FAFC")
	colorDim     = lipgloss.Color("#94A3B8")
	colorPanel   = lipgloss.Color("#1E293B")
	colorBorder  = lipgloss.Color("#334155")
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)
	textStyle  = lipgloss.NewStyle().Foreground(colorText)
	dimStyle   = lipgloss.NewStyle().Foreground(colorDim)
	goodStyle  = lipgloss.NewStyle().Foreground(colorGood).Bold(true)
	badStyle   = lipgloss.NewStyle().Foreground(colorBad).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(colorWarn).Bold(true)

	selectedStyle = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)

	barStyle = lipgloss.NewStyle().
			Background(colorPanel).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(1, 2)
)

// tierStyle colours a difficulty badge.
func tierStyle(tier string) lipgloss.Style {
	switch tier {
	case "HARD":
		return lipgloss.NewStyle().Foreground(colorBad).Bold(true)
	case "MEDIUM":
		return lipgloss.NewStyle().Foreground(colorWarn).Bold(true)
	default:
		return lipgloss.NewStyle().Foreground(colorInfo).Bold(true)
	}
}
