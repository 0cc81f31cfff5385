package tui

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"

	"github.com/dm/crawlwatch/internal/model"
)

// severityBadge returns a colored, fixed-width badge for the given severity.
func severityBadge(sev model.AdvisorySeverity) string {
	switch sev {
	case model.SeverityCritical:
		return StyleRed.Bold(true).Render("[CRITICAL]")
	case model.SeverityWarning:
		return StyleYellow.Bold(true).Render("[WARN]    ")
	default:
		return StyleCyan.Bold(true).Render("[INFO]    ")
	}
}

// wrapText wraps text at maxWidth rune-columns, breaking at word boundaries.
// Returns the original string unchanged when it fits within maxWidth.
func wrapText(text string, maxWidth int) string {
	if maxWidth <= 0 || utf8.RuneCountInString(text) <= maxWidth {
		return text
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return text
	}
	var lines []string
	var current strings.Builder
	var currentLen int
	for _, word := range words {
		wordLen := utf8.RuneCountInString(word)
		switch {
		case currentLen == 0:
			current.WriteString(word)
			currentLen = wordLen
		case currentLen+1+wordLen <= maxWidth:
			current.WriteByte(' ')
			current.WriteString(word)
			currentLen += 1 + wordLen
		default:
			lines = append(lines, current.String())
			current.Reset()
			current.WriteString(word)
			currentLen = wordLen
		}
	}
	if currentLen > 0 {
		lines = append(lines, current.String())
	}
	return strings.Join(lines, "\n")
}

// buildAdvisoryLines returns every content line of the advisories view,
// grouped by category. Shared by rendering and scroll clamping.
func buildAdvisoryLines(advs []model.Advisory, width int) []string {
	if len(advs) == 0 {
		return []string{
			"",
			"  " + StyleGreen.Bold(true).Render("Nothing to report. All channels and sessions look healthy."),
			"",
		}
	}
	var lines []string
	categories := []model.AdvisoryCategory{
		model.CategoryConnectivity,
		model.CategorySessionHealth,
		model.CategoryConsistency,
	}
	for _, cat := range categories {
		var catAdvs []model.Advisory
		for _, a := range advs {
			if a.Category == cat {
				catAdvs = append(catAdvs, a)
			}
		}
		if len(catAdvs) == 0 {
			continue
		}
		lines = append(lines, "", "  "+StyleDim.Bold(true).Underline(true).Render(cat.String()))
		for _, a := range catAdvs {
			lines = append(lines, fmt.Sprintf("  %s %s", severityBadge(a.Severity), sanitize(a.Title)))
			if a.Detail != "" {
				for _, dline := range strings.Split(wrapText(sanitize(a.Detail), width-6), "\n") {
					lines = append(lines, "    "+dline)
				}
			}
		}
	}
	return lines
}

// renderAdvisoriesTitle renders the title bar of the advisories view.
func renderAdvisoriesTitle(width int) string {
	const titleText = "Advisories"
	hintText := StyleDim.Render("[↑↓: scroll  i/esc: back]")
	innerWidth := width - 2
	gap := max(1, innerWidth-lipgloss.Width(titleText)-lipgloss.Width(hintText))
	return StyleHeader.Width(width).MaxWidth(width).Render(titleText + strings.Repeat(" ", gap) + hintText)
}

// advisoriesLayout returns the content lines and the number of lines that
// fit between the header and the footer.
func advisoriesLayout(app *App) (lines []string, contentH int, overflows bool) {
	width := app.width
	if width <= 0 {
		width = 80
	}
	height := app.height
	if height <= 0 {
		height = 24
	}
	availH := height -
		renderedHeight(renderHeader(app)) -
		renderedHeight(renderAdvisoriesTitle(width)) -
		renderedHeight(renderFooter(app))
	availH = max(1, availH)

	lines = buildAdvisoryLines(app.advisories, width)
	overflows = len(lines) > availH
	contentH = availH
	if overflows && contentH > 1 {
		contentH-- // scroll hint
	}
	return lines, contentH, overflows
}

// advisoriesMaxOffset returns the largest useful scroll offset.
func advisoriesMaxOffset(app *App) int {
	lines, contentH, _ := advisoriesLayout(app)
	return max(0, len(lines)-contentH)
}

// renderAdvisories renders the scrollable advisories view.
func renderAdvisories(app *App) string {
	width := app.width
	if width <= 0 {
		width = 80
	}
	lines, contentH, overflows := advisoriesLayout(app)

	maxOffset := max(0, len(lines)-contentH)
	offset := min(app.advisoryOffset, maxOffset)
	end := min(offset+contentH, len(lines))

	var visible []string
	if offset < len(lines) {
		visible = append(visible, lines[offset:end]...)
	}
	for len(visible) < contentH {
		visible = append(visible, "")
	}
	if overflows {
		switch {
		case offset == 0:
			visible = append(visible, StyleDim.Render("  ↓ scroll for more"))
		case offset >= maxOffset:
			visible = append(visible, StyleDim.Render("  ↑ scroll up"))
		default:
			visible = append(visible, StyleDim.Render("  ↑↓ scroll"))
		}
	}
	return renderAdvisoriesTitle(width) + "\n" + strings.Join(visible, "\n")
}

// renderAdvisorySummary renders the one-line advisory count above the
// session table, colored by the most severe advisory.
func renderAdvisorySummary(app *App) string {
	if len(app.advisories) == 0 {
		return StyleDim.Render("No advisories")
	}
	top := app.advisories[0]
	style := StyleCyan
	switch top.Severity {
	case model.SeverityCritical:
		style = StyleRed.Bold(true)
	case model.SeverityWarning:
		style = StyleYellow
	}
	text := sanitize(top.Title)
	if n := len(app.advisories) - 1; n > 0 {
		text += fmt.Sprintf(" (+%d more)", n)
	}
	return style.Render(text) + StyleDim.Render("  [i: advisories]")
}
