package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	ltable "github.com/charmbracelet/lipgloss/table"

	"github.com/dm/crawlwatch/internal/format"
	"github.com/dm/crawlwatch/internal/model"
)

const (
	progressBarWidth = 12
	trendWidth       = 10
)

// sessionRow is one line of the session table.
type sessionRow struct {
	Snap       model.Snapshot
	Rate       float64 // URLs/s of the latest sample; -1 before the first sample
	Trend      []float64
	Runtime    time.Duration
	Unexpected bool
	Pending    string // command awaiting the server, if any
	order      int
}

// SessionTable is a sortable, paginated, filterable table of sessions.
type SessionTable struct {
	tableModel
	allRows     []sessionRow
	displayRows []sessionRow
	bar         progress.Model
}

// NewSessionTable returns a SessionTable in registry order.
func NewSessionTable() SessionTable {
	cols := []columnDef{
		{Title: "Session", Width: 10, Key: "id"},
		{Title: "Status", Width: 11, Key: "status"},
		{Title: "Progress", Width: progressBarWidth + 7, Key: "progress"},
		{Title: "URLs", Width: 15, Key: "urls"},
		{Title: "Files", Width: 8, Key: "files"},
		{Title: "Errors", Width: 7, Key: "errors"},
		{Title: "URL/s", Width: 9, Key: "rate"},
		{Title: "Trend", Width: trendWidth, Key: "trend"},
		{Title: "Runtime", Width: 8, Key: "runtime"},
		{Title: "Updated", Width: 16, Key: "updated"},
	}
	return SessionTable{
		tableModel: newTableModel(cols),
		bar: progress.New(
			progress.WithSolidFill(string(colorBlue)),
			progress.WithoutPercentage(),
			progress.WithWidth(progressBarWidth),
		),
	}
}

// SetData applies the current filter and sort to rows.
func (m *SessionTable) SetData(rows []sessionRow) {
	m.allRows = rows
	m.rebuild()
}

func (m *SessionTable) rebuild() {
	filtered := filterSessionRows(m.allRows, m.search)
	m.displayRows = sortSessionRows(filtered, m.sortCol, m.sortDesc)
	m.clamp(len(m.displayRows))
}

// Selected returns the row under the cursor.
func (m *SessionTable) Selected() (sessionRow, bool) {
	if m.cursor < 0 || m.cursor >= len(m.displayRows) {
		return sessionRow{}, false
	}
	return m.displayRows[m.cursor], true
}

// Update delegates to the embedded tableModel and re-applies filter and
// sort when they change.
func (m SessionTable) Update(msg tea.Msg) (SessionTable, tea.Cmd, bool) {
	prevSort, prevDesc, prevSearch := m.sortCol, m.sortDesc, m.search

	base, cmd, handled := m.tableModel.Update(msg)
	m.tableModel = base

	if m.sortCol != prevSort || m.sortDesc != prevDesc || m.search != prevSearch {
		m.rebuild()
	} else {
		m.clamp(len(m.displayRows))
	}
	return m, cmd, handled
}

// renderTable renders the "Sessions" section: a title line followed by the
// current page.
func (m *SessionTable) renderTable(width int, now time.Time) string {
	pc := pageCount(len(m.displayRows), m.pageSize)
	hdr := m.renderTitle(m.page+1, pc)

	headers := make([]string, len(m.columns))
	for i, c := range m.columns {
		headers[i] = c.Title
		if i == m.sortCol {
			if m.sortDesc {
				headers[i] += "↓"
			} else {
				headers[i] += "↑"
			}
		}
	}

	start, end := pageBounds(len(m.displayRows), m.page, m.pageSize)
	page := m.displayRows[start:end]
	if len(page) == 0 {
		empty := "  (no sessions tracked)"
		if m.search != "" {
			empty = "  (no sessions match the filter)"
		}
		return lipgloss.JoinVertical(lipgloss.Left, hdr, StyleDim.Render(empty))
	}

	sortCol := m.sortCol
	selected := m.cursor - start
	t := ltable.New().
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == ltable.HeaderRow {
				if col == sortCol {
					return lipgloss.NewStyle().Bold(true).Foreground(colorBlue)
				}
				return lipgloss.NewStyle().Bold(true).Foreground(colorGray)
			}
			base := lipgloss.NewStyle().PaddingRight(1)
			switch {
			case row == selected:
				base = base.Inherit(StyleSelected)
			case row%2 == 0:
				base = base.Background(colorAlt)
			}
			if row < 0 || row >= len(page) {
				return base
			}
			switch col {
			case 1:
				return base.Foreground(statusColor(page[row].Snap.Status))
			case 4:
				return base.Foreground(colorPurple)
			case 5:
				if page[row].Snap.Errors > 0 {
					return base.Foreground(colorOrange)
				}
				return base.Foreground(colorGray)
			case 6:
				return base.Foreground(colorGreen)
			case 9:
				return base.Foreground(colorGray)
			default:
				return base.Foreground(colorWhite)
			}
		}).
		BorderStyle(lipgloss.NewStyle().Foreground(colorGray)).
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderHeader(true).
		BorderColumn(false)

	if width > 0 {
		t = t.Width(width)
	}
	for _, r := range page {
		cells := make([]string, len(m.columns))
		for col := range m.columns {
			cells[col] = m.cellValue(r, col, now)
		}
		t = t.Row(cells...)
	}
	return lipgloss.JoinVertical(lipgloss.Left, hdr, t.String())
}

// renderTitle renders the title line with filter/sort/page hints.
func (m *SessionTable) renderTitle(page, pageCount int) string {
	pageInfo := fmt.Sprintf("Page %d/%d", page, pageCount)
	var right string
	switch {
	case m.searching:
		right = "Filter: " + m.input.View()
	case m.search != "":
		right = fmt.Sprintf("filter=%q  %s", m.search, pageInfo)
	default:
		right = fmt.Sprintf("[/: filter]  [1-9: sort]  [←→: page]  %s", pageInfo)
	}
	return StyleDim.Render(fmt.Sprintf("Sessions (%d)  %s", len(m.displayRows), right))
}

// cellValue formats a sessionRow field for a given column index.
func (m *SessionTable) cellValue(r sessionRow, col int, now time.Time) string {
	s := r.Snap
	switch col {
	case 0:
		if r.Unexpected {
			return sanitize(s.SessionID) + " !"
		}
		return sanitize(s.SessionID)
	case 1:
		if r.Pending != "" {
			return sanitize(s.Label()) + " (" + r.Pending + "…)"
		}
		return sanitize(s.Label())
	case 2:
		return m.bar.ViewAs(s.ProgressPercentage/100) + " " + format.FormatPercent(s.ProgressPercentage)
	case 3:
		return format.FormatNumber(s.URLsProcessed) + "/" + format.FormatNumber(s.URLsDiscovered)
	case 4:
		return format.FormatNumber(s.FilesFound)
	case 5:
		return format.FormatNumber(s.Errors)
	case 6:
		return format.FormatRate(r.Rate)
	case 7:
		return RenderSparkline(r.Trend, trendWidth, colorGreen)
	case 8:
		if s.StartedAt.IsZero() {
			return "---"
		}
		return format.FormatDuration(r.Runtime)
	case 9:
		return format.FormatAge(s.ReceivedAt, now) + " " + s.Source.String()
	default:
		return ""
	}
}
