package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dm/crawlwatch/internal/engine"
	"github.com/dm/crawlwatch/internal/format"
)

// renderOverview renders the dashboard totals as a row of cards. The totals
// are folded from the projected sessions; server stats, when known, are
// shown underneath for comparison.
// Wide terminals (>= 80 cols): all 7 cards in one row.
// Narrow terminals: rows of 2.
func renderOverview(app *App) string {
	width := app.width
	if width <= 0 {
		width = 80
	}
	narrowMode := width < 80

	var cardWidth int
	if narrowMode {
		cardWidth = max(10, (width-4)/2)
	} else {
		cardWidth = max(8, (width-14)/7)
	}
	barWidth := max(4, cardWidth-4)

	agg := engine.Aggregate(app.snapshots())

	server := func(v int64) string {
		if app.stats == nil {
			return ""
		}
		return StyleDim.Render(fmt.Sprintf("\nserver %s", format.FormatNumber(v)))
	}
	var srv struct{ total, active, completed, failed, files int64 }
	if app.stats != nil {
		s := app.stats.Server
		srv.total = int64(s.TotalSessions)
		srv.active = int64(s.ActiveSessions)
		srv.completed = int64(s.CompletedSessions)
		srv.failed = int64(s.FailedSessions)
		srv.files = s.TotalFilesFound
	}

	card := func(fg lipgloss.Color, value, label, extra string) string {
		return StyleOverviewCard.
			Foreground(fg).
			Width(cardWidth).
			Render(value + "\n" + label + extra)
	}

	card1 := card(colorWhite, fmt.Sprintf("%d", agg.Total), "Sessions", server(srv.total))
	card2 := card(colorBlue, fmt.Sprintf("%d", agg.Active), "Active",
		StyleDim.Render(fmt.Sprintf("\n%d run %d paused", agg.Running, agg.Paused))+server(srv.active))
	card3 := card(colorGreen, fmt.Sprintf("%d", agg.Completed), "Completed", server(srv.completed))

	failedFg := colorGray
	if agg.Failed > 0 {
		failedFg = colorRed
	}
	card4 := card(failedFg, fmt.Sprintf("%d", agg.Failed), "Failed", server(srv.failed))
	card5 := card(colorOrange, fmt.Sprintf("%d", agg.Cancelled), "Cancelled", "")
	card6 := card(colorPurple, format.FormatNumber(agg.TotalFiles), "Files", server(srv.files))
	card7 := card(colorCyan, format.FormatPercent(agg.Progress()),
		renderMiniBar(agg.Progress(), barWidth)+"\n"+
			format.FormatNumber(agg.URLsDone)+"/"+format.FormatNumber(agg.URLsSeen)+" URLs", "")

	if narrowMode {
		row1 := lipgloss.JoinHorizontal(lipgloss.Top, card1, card2)
		row2 := lipgloss.JoinHorizontal(lipgloss.Top, card3, card4)
		row3 := lipgloss.JoinHorizontal(lipgloss.Top, card5, card6)
		return lipgloss.JoinVertical(lipgloss.Left, row1, row2, row3, card7)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, card1, card2, card3, card4, card5, card6, card7)
}

// renderMiniBar renders a mini progress bar using Unicode block characters.
// Fills proportionally using "█" (U+2588) for filled and "░" (U+2591) for empty cells.
func renderMiniBar(percent float64, width int) string {
	if width <= 0 {
		return ""
	}
	percent = max(0, min(percent, 100))
	filled := min(int(percent/100.0*float64(width)), width)
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
