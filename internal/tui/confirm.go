package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dm/crawlwatch/internal/format"
)

// renderConfirm renders the confirmation dialog for a pending destructive
// command. The caller renders the header above and the footer below.
func renderConfirm(app *App) string {
	width := app.width
	if width <= 0 {
		width = 80
	}
	height := app.height
	if height <= 0 {
		height = 24
	}
	req := app.confirm
	id := sanitize(req.SessionID)

	title := fmt.Sprintf("Confirm %s", req.Kind)
	hint := StyleDim.Render("[y: confirm  n/esc: cancel]")
	gap := max(1, width-2-lipgloss.Width(title)-lipgloss.Width(hint))
	titleBar := StyleHeader.Width(width).MaxWidth(width).Render(title + strings.Repeat(" ", gap) + hint)

	availH := max(1, height-renderedHeight(renderHeader(app))-lipgloss.Height(titleBar)-renderedHeight(renderFooter(app)))

	body := []string{
		"",
		"  " + StyleRed.Bold(true).Render(fmt.Sprintf("%s session %s?", titleCase(req.Kind.String()), id)),
		"",
	}
	if v, ok := app.sessions[req.SessionID]; ok {
		s := v.snap
		body = append(body,
			fmt.Sprintf("    Status:    %s", StatusStyle(s.Status).Render(sanitize(s.Label()))),
			fmt.Sprintf("    Progress:  %s  (%s/%s URLs, %s files)",
				format.FormatPercent(s.ProgressPercentage),
				format.FormatNumber(s.URLsProcessed),
				format.FormatNumber(s.URLsDiscovered),
				format.FormatNumber(s.FilesFound)),
			"",
		)
	}
	footer := []string{
		"  The crawl cannot be resumed once stopped.",
		"",
		"  " + StyleYellow.Render("Press y to confirm, n or esc to cancel."),
	}

	// The prompt wins when space is short.
	if len(body)+len(footer) > availH {
		keep := max(0, availH-len(footer))
		body = body[:min(keep, len(body))]
		if availH < len(footer) {
			footer = footer[len(footer)-availH:]
		}
	}
	lines := append(body, footer...)
	for len(lines) < availH {
		lines = append(lines, "")
	}
	return titleBar + "\n" + strings.Join(lines, "\n")
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
