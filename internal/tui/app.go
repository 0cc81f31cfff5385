package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dm/crawlwatch/internal/engine"
	"github.com/dm/crawlwatch/internal/model"
)

// Engine is the part of *engine.Engine the dashboard drives.
type Engine interface {
	Snapshots() []model.Snapshot
	ChannelState(ch model.Channel) model.ChannelState
	PushEnabled() bool
	Polling() bool
	SetPolling(on bool)
	Refresh(ids ...string)
	Forget(id string)
	IssueCommand(ctx context.Context, id string, kind model.CommandKind) (model.CommandResult, error)
	CommandInFlight(id string, kind model.CommandKind) bool
}

var _ Engine = (*engine.Engine)(nil)

const (
	noticeTTL     = 15 * time.Second
	tickInterval  = time.Second
	fixedRows     = 10 // header, overview, advisory line, table title and header, footer
	minPageSize   = 3
	maxNoticeKeep = 20
)

// AppOptions configures NewApp.
type AppOptions struct {
	BaseURL      string
	PollInterval time.Duration
	// HistorySize is the number of throughput samples kept per session.
	HistorySize int
	Now         func() time.Time
}

// sessionView is the projection of one registry entry.
type sessionView struct {
	snap       model.Snapshot
	history    *model.ThroughputHistory
	unexpected bool
}

// notice is a transient message shown in the footer.
type notice struct {
	At    time.Time
	Text  string
	Error bool
}

// App is the root Bubble Tea model. It projects engine notifications into
// a dashboard and never writes to the registry directly.
type App struct {
	eng  Engine
	opts AppOptions

	sessions    map[string]*sessionView
	table       SessionTable
	poll        model.ChannelState
	push        model.ChannelState
	pushEnabled bool
	polling     bool
	stats       *engine.StatsReport
	advisories  []model.Advisory
	notices     []notice
	lastUpdated time.Time

	confirm *ConfirmRequestMsg

	width, height  int
	showHelp       bool
	showAdvisories bool
	advisoryOffset int
}

// NewApp creates an App seeded with the engine's current registry and
// channel states.
func NewApp(eng Engine, opts AppOptions) *App {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	app := &App{
		eng:      eng,
		opts:     opts,
		sessions: make(map[string]*sessionView),
		table:    NewSessionTable(),
		polling:  true,
	}
	if eng != nil {
		for _, s := range eng.Snapshots() {
			app.sessions[s.SessionID] = &sessionView{snap: s, history: model.NewThroughputHistory(opts.HistorySize)}
			app.noteUpdate(s.ReceivedAt)
		}
		app.poll = eng.ChannelState(model.ChannelPoll)
		app.push = eng.ChannelState(model.ChannelPush)
		app.pushEnabled = eng.PushEnabled()
		app.polling = eng.Polling()
	}
	app.refresh()
	return app
}

// Init implements tea.Model.
func (app *App) Init() tea.Cmd {
	return tickCmd(tickInterval)
}

// Update implements tea.Model; it is the single state-mutation entry point.
func (app *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		app.width = msg.Width
		app.height = msg.Height
		app.table.pageSize = max(minPageSize, msg.Height-fixedRows)

	case ChangeMsg:
		app.applyChange(msg.Change)

	case ConnectivityMsg:
		if msg.Channel == model.ChannelPush {
			app.push = msg.State
		} else {
			app.poll = msg.State
		}

	case StatsMsg:
		r := msg.Report
		app.stats = &r

	case CommandResultMsg:
		app.addNotice(resultNotice(msg.Result, app.opts.Now()))

	case commandErrMsg:
		app.addNotice(notice{
			At:    app.opts.Now(),
			Text:  fmt.Sprintf("%s %s: %v", msg.Kind, sanitize(msg.SessionID), msg.Err),
			Error: true,
		})

	case ConfirmRequestMsg:
		if app.confirm != nil {
			msg.Reply <- false
			break
		}
		app.confirm = &msg

	case TickMsg:
		cmd = tickCmd(tickInterval)

	case tea.KeyMsg:
		cmd = app.handleKey(msg)
	}

	app.refresh()
	return app, cmd
}

func (app *App) handleKey(msg tea.KeyMsg) tea.Cmd {
	if app.confirm != nil {
		switch {
		case key.Matches(msg, keys.Confirm):
			app.answer(true)
		case key.Matches(msg, keys.Decline):
			app.answer(false)
		case msg.String() == "ctrl+c":
			app.answer(false)
			return tea.Quit
		}
		return nil
	}

	if app.table.searching {
		t, cmd, _ := app.table.Update(msg)
		app.table = t
		return cmd
	}

	if app.showAdvisories {
		switch {
		case key.Matches(msg, keys.Advisories), key.Matches(msg, keys.Escape):
			app.showAdvisories = false
			app.advisoryOffset = 0
			return nil
		case key.Matches(msg, keys.Up):
			if app.advisoryOffset > 0 {
				app.advisoryOffset--
			}
			return nil
		case key.Matches(msg, keys.Down):
			app.advisoryOffset = min(app.advisoryOffset+1, advisoriesMaxOffset(app))
			return nil
		}
	}

	switch {
	case key.Matches(msg, keys.Quit):
		return tea.Quit
	case key.Matches(msg, keys.Help):
		app.showHelp = !app.showHelp
	case key.Matches(msg, keys.Advisories):
		app.showAdvisories = true
		app.advisoryOffset = 0
	case key.Matches(msg, keys.Refresh):
		if app.eng != nil {
			app.eng.Refresh()
		}
	case key.Matches(msg, keys.AutoUpdate):
		app.polling = !app.polling
		if app.eng != nil {
			app.eng.SetPolling(app.polling)
		}
	case key.Matches(msg, keys.Start):
		return app.command(model.CommandStart)
	case key.Matches(msg, keys.Pause):
		return app.command(model.CommandPause)
	case key.Matches(msg, keys.Stop):
		return app.command(model.CommandStop)
	case key.Matches(msg, keys.Forget):
		app.forgetSelected()
	default:
		t, cmd, _ := app.table.Update(msg)
		app.table = t
		return cmd
	}
	return nil
}

// answer replies to the pending confirmation and closes the dialog.
func (app *App) answer(ok bool) {
	app.confirm.Reply <- ok
	app.confirm = nil
}

// command issues kind for the selected session when its status offers it.
func (app *App) command(kind model.CommandKind) tea.Cmd {
	row, ok := app.table.Selected()
	if !ok || app.eng == nil {
		return nil
	}
	id := row.Snap.SessionID
	if !offers(row.Snap.Status, kind) {
		app.addNotice(notice{
			At:   app.opts.Now(),
			Text: fmt.Sprintf("cannot %s session %s while %s", kind, sanitize(id), row.Snap.Status),
		})
		return nil
	}
	return issueCmd(app.eng, id, kind)
}

func offers(s model.Status, kind model.CommandKind) bool {
	for _, k := range model.AvailableCommands(s) {
		if k == kind {
			return true
		}
	}
	return false
}

// issueCmd runs the command on a goroutine. Dispatched commands report
// through the engine's observers; only refusals come back here.
func issueCmd(eng Engine, id string, kind model.CommandKind) tea.Cmd {
	return func() tea.Msg {
		_, err := eng.IssueCommand(context.Background(), id, kind)
		if errors.Is(err, model.ErrCommandInFlight) || errors.Is(err, model.ErrEngineStopped) {
			return commandErrMsg{SessionID: id, Kind: kind, Err: err}
		}
		return nil
	}
}

func (app *App) forgetSelected() {
	row, ok := app.table.Selected()
	if !ok {
		return
	}
	id := row.Snap.SessionID
	if app.eng != nil {
		app.eng.Forget(id)
	}
	delete(app.sessions, id)
	app.addNotice(notice{At: app.opts.Now(), Text: "dismissed session " + sanitize(id)})
}

// applyChange folds an accepted snapshot into the view and records a
// throughput sample when there is a baseline.
func (app *App) applyChange(c model.Change) {
	v, ok := app.sessions[c.SessionID]
	if !ok {
		v = &sessionView{history: model.NewThroughputHistory(app.opts.HistorySize)}
		app.sessions[c.SessionID] = v
	}
	if c.Previous != nil {
		if p, ok := engine.CalcThroughput(c.Previous, &c.Current); ok {
			v.history.Push(p)
		}
	}
	v.snap = c.Current
	v.unexpected = c.Unexpected
	app.noteUpdate(c.Current.ReceivedAt)
}

func (app *App) noteUpdate(t time.Time) {
	if t.After(app.lastUpdated) {
		app.lastUpdated = t
	}
}

func (app *App) addNotice(n notice) {
	app.notices = append(app.notices, n)
	if len(app.notices) > maxNoticeKeep {
		app.notices = app.notices[len(app.notices)-maxNoticeKeep:]
	}
}

// currentNotice returns the newest notice if it is still fresh.
func (app *App) currentNotice() (notice, bool) {
	if len(app.notices) == 0 {
		return notice{}, false
	}
	n := app.notices[len(app.notices)-1]
	if app.opts.Now().Sub(n.At) > noticeTTL {
		return notice{}, false
	}
	return n, true
}

func resultNotice(r model.CommandResult, now time.Time) notice {
	at := r.At
	if at.IsZero() {
		at = now
	}
	id := sanitize(r.SessionID)
	switch r.Outcome {
	case model.OutcomeSucceeded:
		return notice{At: at, Text: fmt.Sprintf("%s %s accepted", r.Kind, id)}
	case model.OutcomeDeclined:
		return notice{At: at, Text: fmt.Sprintf("%s %s cancelled", r.Kind, id)}
	default:
		return notice{At: at, Text: fmt.Sprintf("%s %s failed: %v", r.Kind, id, r.Err), Error: true}
	}
}

// snapshots returns the projected snapshots in registry order.
func (app *App) snapshots() []model.Snapshot {
	out := make([]model.Snapshot, 0, len(app.sessions))
	for _, v := range app.sessions {
		out = append(out, v.snap)
	}
	engine.SortSnapshots(out)
	return out
}

// refresh rebuilds the table rows and advisories from the projection.
func (app *App) refresh() {
	now := app.opts.Now()
	snaps := app.snapshots()
	rows := make([]sessionRow, 0, len(snaps))
	for i, s := range snaps {
		v := app.sessions[s.SessionID]
		row := sessionRow{
			Snap:       s,
			Rate:       latestRate(v.history),
			Trend:      v.history.URLRates(),
			Unexpected: v.unexpected,
			order:      i,
		}
		if !s.StartedAt.IsZero() {
			end := now
			if !s.CompletedAt.IsZero() {
				end = s.CompletedAt
			}
			row.Runtime = end.Sub(s.StartedAt)
		}
		if app.eng != nil {
			for _, k := range []model.CommandKind{model.CommandStart, model.CommandPause, model.CommandStop} {
				if app.eng.CommandInFlight(s.SessionID, k) {
					row.Pending = k.String()
					break
				}
			}
		}
		rows = append(rows, row)
	}
	app.table.SetData(rows)

	app.advisories = engine.CalcAdvisories(engine.AdvisoryInput{
		Snapshots:   snaps,
		Poll:        app.poll,
		Push:        app.push,
		PushEnabled: app.pushEnabled,
		Polling:     app.polling,
		Stats:       app.stats,
		Now:         now,
	})
}

// View implements tea.Model.
func (app *App) View() string {
	parts := []string{renderHeader(app)}

	switch {
	case app.confirm != nil:
		parts = append(parts, renderConfirm(app))
	case app.showAdvisories:
		parts = append(parts, renderAdvisories(app))
	default:
		parts = append(parts, renderOverview(app))
		parts = append(parts, renderAdvisorySummary(app))
		parts = append(parts, app.table.renderTable(app.width, app.opts.Now()))
	}
	parts = append(parts, renderFooter(app))

	return strings.Join(parts, "\n")
}

// tickCmd schedules the next TickMsg after d.
func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// renderedHeight returns the number of lines s occupies, 0 for "".
func renderedHeight(s string) int {
	if s == "" {
		return 0
	}
	return lipgloss.Height(s)
}

// sanitize drops control characters from server-supplied strings so they
// cannot move the cursor or restyle the terminal.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
