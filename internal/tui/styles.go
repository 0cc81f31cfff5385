package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/dm/crawlwatch/internal/model"
)

// Palette.
var (
	colorGreen  = lipgloss.Color("#10b981")
	colorYellow = lipgloss.Color("#f59e0b")
	colorRed    = lipgloss.Color("#ef4444")
	colorGray   = lipgloss.Color("#6b7280")
	colorBlue   = lipgloss.Color("#3b82f6")
	colorCyan   = lipgloss.Color("#06b6d4")
	colorPurple = lipgloss.Color("#8b5cf6")
	colorOrange = lipgloss.Color("#f97316")
	colorWhite  = lipgloss.Color("#f8fafc")
	colorDark   = lipgloss.Color("#1e293b")
	colorAlt    = lipgloss.Color("#0f172a")
)

// StyleHeader is the full-width dark header bar.
var StyleHeader = lipgloss.NewStyle().
	Background(colorDark).
	Foreground(colorWhite).
	Padding(0, 1)

// StyleOverviewCard is a card in the overview bar.
var StyleOverviewCard = lipgloss.NewStyle().
	Background(colorAlt).
	Foreground(colorWhite).
	Padding(0, 1).
	Margin(0).
	Align(lipgloss.Center)

// Utility styles.
var (
	StyleError    = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	StyleDim      = lipgloss.NewStyle().Foreground(colorGray)
	StyleSelected = lipgloss.NewStyle().Background(colorDark).Bold(true)
)

// Named color styles for cell coloring.
var (
	StyleGreen  = lipgloss.NewStyle().Foreground(colorGreen)
	StyleYellow = lipgloss.NewStyle().Foreground(colorYellow)
	StyleOrange = lipgloss.NewStyle().Foreground(colorOrange)
	StyleBlue   = lipgloss.NewStyle().Foreground(colorBlue)
	StyleCyan   = lipgloss.NewStyle().Foreground(colorCyan)
	StylePurple = lipgloss.NewStyle().Foreground(colorPurple)
	StyleRed    = lipgloss.NewStyle().Foreground(colorRed)
)

// statusColor maps a session status to its badge color.
func statusColor(s model.Status) lipgloss.Color {
	switch s {
	case model.StatusRunning:
		return colorBlue
	case model.StatusPending:
		return colorCyan
	case model.StatusPaused:
		return colorYellow
	case model.StatusCompleted:
		return colorGreen
	case model.StatusFailed:
		return colorRed
	case model.StatusCancelled:
		return colorOrange
	default:
		return colorGray
	}
}

// StatusStyle returns the bold foreground style for a session status.
func StatusStyle(s model.Status) lipgloss.Style {
	return lipgloss.NewStyle().Bold(true).Foreground(statusColor(s))
}

// ConnStyle returns the style for a channel's connectivity indicator.
func ConnStyle(c model.ConnState) lipgloss.Style {
	switch c {
	case model.Connected:
		return lipgloss.NewStyle().Bold(true).Foreground(colorGreen)
	case model.Connecting:
		return lipgloss.NewStyle().Foreground(colorCyan)
	case model.Backoff:
		return lipgloss.NewStyle().Bold(true).Foreground(colorYellow)
	default:
		return lipgloss.NewStyle().Bold(true).Foreground(colorRed)
	}
}
