package tui

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// columnDef describes a single column in a table.
type columnDef struct {
	Title string
	Width int
	Key   string // sort key (informational)
}

// tableModel is the generic base for sortable, paginated, filterable
// tables with a row cursor.
type tableModel struct {
	columns   []columnDef
	sortCol   int // -1 = unsorted
	sortDesc  bool
	page      int // 0-indexed
	pageSize  int // default 10
	cursor    int // index into the display rows
	search    string
	searching bool
	input     textinput.Model
}

// newTableModel initialises a tableModel with sensible defaults.
func newTableModel(cols []columnDef) tableModel {
	ti := textinput.New()
	ti.Placeholder = "filter..."
	ti.CharLimit = 80
	return tableModel{
		columns:  cols,
		sortCol:  -1,
		pageSize: 10,
		input:    ti,
	}
}

// Update handles keyboard input for sorting, pagination, cursor movement
// and search. handled is false when the key is not a table key.
func (t tableModel) Update(msg tea.Msg) (tableModel, tea.Cmd, bool) {
	km, ok := msg.(tea.KeyMsg)
	if !ok {
		return t, nil, false
	}

	if t.searching {
		switch {
		case key.Matches(km, keys.Escape):
			t.searching = false
			t.input.Blur()
			if t.input.Value() == "" {
				t.search = ""
			}
			return t, nil, true
		case km.String() == "enter":
			t.search = t.input.Value()
			t.searching = false
			t.input.Blur()
			t.page = 0
			t.cursor = 0
			return t, nil, true
		default:
			var cmd tea.Cmd
			t.input, cmd = t.input.Update(km)
			return t, cmd, true
		}
	}

	switch {
	case key.Matches(km, keys.Search):
		t.searching = true
		t.input.SetValue(t.search)
		t.input.Focus()
		return t, textinput.Blink, true
	case key.Matches(km, keys.Escape):
		if t.search == "" {
			return t, nil, false
		}
		t.search = ""
		t.input.SetValue("")
		t.page = 0
		t.cursor = 0
		return t, nil, true
	case key.Matches(km, keys.Up):
		t.cursor--
		return t, nil, true
	case key.Matches(km, keys.Down):
		t.cursor++
		return t, nil, true
	case key.Matches(km, keys.PrevPage):
		if t.page > 0 {
			t.page--
			t.cursor = t.page * t.pageSize
		}
		return t, nil, true
	case key.Matches(km, keys.NextPage):
		t.page++
		t.cursor = t.page * t.pageSize
		return t, nil, true
	}

	// Digit keys select the sort column; repeating a digit flips direction.
	col := digitToCol(km.String())
	if col >= 0 && col < len(t.columns) {
		if col == t.sortCol {
			t.sortDesc = !t.sortDesc
		} else {
			t.sortCol = col
			t.sortDesc = true
		}
		t.page = 0
		t.cursor = 0
		return t, nil, true
	}
	return t, nil, false
}

// digitToCol converts a "1"–"9" key string to a 0-indexed column number.
// Returns -1 for any other string.
func digitToCol(s string) int {
	if len(s) == 1 && s[0] >= '1' && s[0] <= '9' {
		return int(s[0] - '1')
	}
	return -1
}

// pageCount returns the total number of pages for totalRows rows at pageSize rows per page.
// Always at least 1.
func pageCount(totalRows, pageSize int) int {
	if totalRows == 0 || pageSize <= 0 {
		return 1
	}
	c := totalRows / pageSize
	if totalRows%pageSize != 0 {
		c++
	}
	return c
}

// pageBounds returns the [start, end) row range of the given page.
func pageBounds(totalRows, page, pageSize int) (int, int) {
	if pageSize <= 0 {
		return 0, totalRows
	}
	start := page * pageSize
	if start >= totalRows {
		start = 0
	}
	end := start + pageSize
	if end > totalRows {
		end = totalRows
	}
	return start, end
}

// clamp keeps the cursor on a row and the page on the cursor's page.
func (t *tableModel) clamp(totalRows int) {
	if t.cursor >= totalRows {
		t.cursor = totalRows - 1
	}
	if t.cursor < 0 {
		t.cursor = 0
	}
	if t.pageSize > 0 {
		t.page = t.cursor / t.pageSize
	}
	pc := pageCount(totalRows, t.pageSize)
	if t.page >= pc {
		t.page = pc - 1
	}
	if t.page < 0 {
		t.page = 0
	}
}
