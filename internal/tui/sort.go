package tui

import (
	"cmp"
	"slices"
	"strings"
)

// sortSessionRows returns a sorted copy of rows.
// Column mapping:
//
//	0=ID, 1=Status, 2=Progress, 3=URLs processed, 4=Files, 5=Errors,
//	6=URL rate, 7=Trend (URL rate), 8=Runtime
//
// col -1 keeps the registry order (numeric ids first).
// Ties are broken by the registry order.
func sortSessionRows(rows []sessionRow, col int, desc bool) []sessionRow {
	out := slices.Clone(rows)
	if col < 0 {
		return out
	}
	slices.SortStableFunc(out, func(a, b sessionRow) int {
		var c int
		switch col {
		case 0:
			c = cmp.Compare(a.order, b.order)
		case 1:
			c = cmp.Compare(a.Snap.Status, b.Snap.Status)
		case 2:
			c = cmp.Compare(a.Snap.ProgressPercentage, b.Snap.ProgressPercentage)
		case 3:
			c = cmp.Compare(a.Snap.URLsProcessed, b.Snap.URLsProcessed)
		case 4:
			c = cmp.Compare(a.Snap.FilesFound, b.Snap.FilesFound)
		case 5:
			c = cmp.Compare(a.Snap.Errors, b.Snap.Errors)
		case 6, 7:
			c = cmp.Compare(a.Rate, b.Rate)
		case 8:
			c = cmp.Compare(a.Runtime, b.Runtime)
		}
		if desc {
			c = -c
		}
		if c == 0 {
			return cmp.Compare(a.order, b.order)
		}
		return c
	})
	return out
}

// filterSessionRows keeps rows whose id or status label contains term,
// case-insensitively. An empty term keeps everything.
func filterSessionRows(rows []sessionRow, term string) []sessionRow {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return rows
	}
	var out []sessionRow
	for _, r := range rows {
		if strings.Contains(strings.ToLower(r.Snap.SessionID), term) ||
			strings.Contains(strings.ToLower(r.Snap.Label()), term) ||
			strings.Contains(r.Snap.Status.String(), term) {
			out = append(out, r)
		}
	}
	return out
}
