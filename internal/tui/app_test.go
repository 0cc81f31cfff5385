package tui

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dm/crawlwatch/internal/engine"
	"github.com/dm/crawlwatch/internal/model"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type issuedCommand struct {
	ID   string
	Kind model.CommandKind
}

// fakeEngine records what the dashboard asks of the engine.
type fakeEngine struct {
	mu          sync.Mutex
	snaps       []model.Snapshot
	poll, push  model.ChannelState
	pushEnabled bool
	polling     bool
	refreshed   int
	forgotten   []string
	issued      []issuedCommand
	issueErr    error
	inflight    map[string]model.CommandKind
}

func newFakeEngine(snaps ...model.Snapshot) *fakeEngine {
	return &fakeEngine{
		snaps:       snaps,
		poll:        model.ChannelState{Conn: model.Connected},
		push:        model.ChannelState{Conn: model.Connected},
		pushEnabled: true,
		polling:     true,
		inflight:    map[string]model.CommandKind{},
	}
}

func (f *fakeEngine) Snapshots() []model.Snapshot { return f.snaps }

func (f *fakeEngine) ChannelState(ch model.Channel) model.ChannelState {
	if ch == model.ChannelPush {
		return f.push
	}
	return f.poll
}

func (f *fakeEngine) PushEnabled() bool { return f.pushEnabled }
func (f *fakeEngine) Polling() bool     { return f.polling }

func (f *fakeEngine) SetPolling(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polling = on
}

func (f *fakeEngine) Refresh(ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshed++
}

func (f *fakeEngine) Forget(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forgotten = append(f.forgotten, id)
}

func (f *fakeEngine) IssueCommand(_ context.Context, id string, kind model.CommandKind) (model.CommandResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issued = append(f.issued, issuedCommand{id, kind})
	return model.CommandResult{SessionID: id, Kind: kind}, f.issueErr
}

func (f *fakeEngine) CommandInFlight(id string, kind model.CommandKind) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	k, ok := f.inflight[id]
	return ok && k == kind
}

func snap(id string, st model.Status, processed int64, at time.Time) model.Snapshot {
	return model.Snapshot{
		SessionID:          id,
		Status:             st,
		ProgressPercentage: 40,
		URLsDiscovered:     processed * 2,
		URLsProcessed:      processed,
		FilesFound:         processed / 10,
		StartedAt:          t0.Add(-time.Hour),
		ReceivedAt:         at,
		Source:             model.SourcePoll,
	}
}

func newTestApp(eng Engine) *App {
	app := NewApp(eng, AppOptions{
		BaseURL:      "http://crawl.local",
		PollInterval: 5 * time.Second,
		Now:          func() time.Time { return t0 },
	})
	app.Update(tea.WindowSizeMsg{Width: 160, Height: 40})
	return app
}

func press(app *App, k string) tea.Cmd {
	var msg tea.KeyMsg
	switch k {
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "ctrl+c":
		msg = tea.KeyMsg{Type: tea.KeyCtrlC}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
	}
	_, cmd := app.Update(msg)
	return cmd
}

func view(app *App) string { return ansi.Strip(app.View()) }

func TestApp_SeedsFromEngine(t *testing.T) {
	eng := newFakeEngine(snap("10", model.StatusRunning, 5, t0), snap("2", model.StatusPaused, 5, t0))
	eng.push = model.ChannelState{Conn: model.Backoff, Attempt: 2, NextRetryAt: t0.Add(3 * time.Second)}
	app := newTestApp(eng)

	require.Len(t, app.table.displayRows, 2)
	assert.Equal(t, "2", app.table.displayRows[0].Snap.SessionID, "numeric order")
	assert.Equal(t, model.Backoff, app.push.Conn)
	assert.True(t, app.pushEnabled)
	assert.Equal(t, t0, app.lastUpdated)
	assert.Contains(t, view(app), "push ● retry #2 in 3s")
}

func TestApp_ChangeMsgUpdatesRowAndThroughput(t *testing.T) {
	app := newTestApp(newFakeEngine())

	first := snap("7", model.StatusRunning, 100, t0.Add(-5*time.Second))
	app.Update(ChangeMsg{Change: model.Change{SessionID: "7", Current: first}})
	row, ok := app.table.Selected()
	require.True(t, ok)
	assert.Equal(t, float64(-1), row.Rate, "no sample before a baseline")

	second := snap("7", model.StatusRunning, 150, t0)
	app.Update(ChangeMsg{Change: model.Change{SessionID: "7", Previous: &first, Current: second}})

	row, ok = app.table.Selected()
	require.True(t, ok)
	assert.Equal(t, int64(150), row.Snap.URLsProcessed)
	assert.InDelta(t, 10.0, row.Rate, 1e-9)
	assert.Len(t, row.Trend, 1)
	assert.Equal(t, time.Hour, row.Runtime)
	assert.Contains(t, view(app), "10.0 /s")
}

func TestApp_UnexpectedTransitionMarked(t *testing.T) {
	app := newTestApp(newFakeEngine())
	prev := snap("3", model.StatusCompleted, 10, t0)
	cur := snap("3", model.StatusRunning, 10, t0)
	app.Update(ChangeMsg{Change: model.Change{SessionID: "3", Previous: &prev, Current: cur, Unexpected: true}})
	assert.Contains(t, view(app), "3 !")
}

func TestApp_ConnectivityMsg(t *testing.T) {
	app := newTestApp(newFakeEngine())

	app.Update(ConnectivityMsg{Channel: model.ChannelPoll, State: model.ChannelState{
		Conn: model.Disconnected, Err: errors.New("dial tcp: connection refused"),
	}})
	assert.Equal(t, model.Disconnected, app.poll.Conn)
	assert.Equal(t, model.Connected, app.push.Conn)
	assert.Contains(t, view(app), "poll ● disconnected (Connection refused)")
	assert.Contains(t, view(app), "Status polling failing")
}

func TestApp_StopConfirmation(t *testing.T) {
	app := newTestApp(newFakeEngine(snap("1", model.StatusRunning, 10, t0)))

	reply := make(chan bool, 1)
	app.Update(ConfirmRequestMsg{SessionID: "1", Kind: model.CommandStop, Reply: reply})
	require.NotNil(t, app.confirm)
	v := view(app)
	assert.Contains(t, v, "Confirm stop")
	assert.Contains(t, v, "Stop session 1?")

	press(app, "j") // ignored while the dialog is open
	assert.NotNil(t, app.confirm)

	press(app, "y")
	assert.Nil(t, app.confirm)
	assert.True(t, <-reply)
}

func TestApp_StopDeclined(t *testing.T) {
	for _, k := range []string{"n", "esc"} {
		t.Run(k, func(t *testing.T) {
			app := newTestApp(newFakeEngine(snap("1", model.StatusRunning, 10, t0)))
			reply := make(chan bool, 1)
			app.Update(ConfirmRequestMsg{SessionID: "1", Kind: model.CommandStop, Reply: reply})
			press(app, k)
			assert.Nil(t, app.confirm)
			assert.False(t, <-reply)
		})
	}
}

func TestApp_SecondConfirmationDeclined(t *testing.T) {
	app := newTestApp(newFakeEngine(snap("1", model.StatusRunning, 10, t0)))
	first := make(chan bool, 1)
	second := make(chan bool, 1)
	app.Update(ConfirmRequestMsg{SessionID: "1", Kind: model.CommandStop, Reply: first})
	app.Update(ConfirmRequestMsg{SessionID: "1", Kind: model.CommandStop, Reply: second})

	assert.False(t, <-second)
	require.NotNil(t, app.confirm)
	assert.Equal(t, (chan<- bool)(first), app.confirm.Reply)
}

func TestApp_CommandIssued(t *testing.T) {
	eng := newFakeEngine(snap("4", model.StatusRunning, 10, t0))
	app := newTestApp(eng)

	cmd := press(app, "p")
	require.NotNil(t, cmd)
	assert.Nil(t, cmd(), "dispatched commands report through observers")
	assert.Equal(t, []issuedCommand{{"4", model.CommandPause}}, eng.issued)

	cmd = press(app, "x")
	require.NotNil(t, cmd)
	cmd()
	assert.Equal(t, issuedCommand{"4", model.CommandStop}, eng.issued[1])
}

func TestApp_CommandUnavailable(t *testing.T) {
	eng := newFakeEngine(snap("5", model.StatusCompleted, 10, t0))
	app := newTestApp(eng)

	assert.Nil(t, press(app, "s"))
	assert.Empty(t, eng.issued)
	assert.Contains(t, view(app), "cannot start session 5 while completed")
}

func TestApp_CommandRefused(t *testing.T) {
	eng := newFakeEngine(snap("4", model.StatusPending, 10, t0))
	eng.issueErr = model.ErrCommandInFlight
	app := newTestApp(eng)

	msg := press(app, "s")()
	require.IsType(t, commandErrMsg{}, msg)
	app.Update(msg)

	n, ok := app.currentNotice()
	require.True(t, ok)
	assert.True(t, n.Error)
	assert.Contains(t, n.Text, "start 4")
}

func TestApp_CommandResultNotice(t *testing.T) {
	app := newTestApp(newFakeEngine())

	app.Update(CommandResultMsg{Result: model.CommandResult{
		SessionID: "8", Kind: model.CommandStart, Outcome: model.OutcomeFailed,
		Err: errors.New("409 conflict"), At: t0,
	}})
	assert.Contains(t, view(app), "start 8 failed: 409 conflict")

	app.Update(CommandResultMsg{Result: model.CommandResult{
		SessionID: "8", Kind: model.CommandStop, Outcome: model.OutcomeDeclined, At: t0,
	}})
	assert.Contains(t, view(app), "stop 8 cancelled")

	app.opts.Now = func() time.Time { return t0.Add(time.Minute) }
	_, ok := app.currentNotice()
	assert.False(t, ok, "notices expire")
}

func TestApp_PendingCommandShown(t *testing.T) {
	eng := newFakeEngine(snap("4", model.StatusRunning, 10, t0))
	eng.inflight["4"] = model.CommandStop
	app := newTestApp(eng)
	assert.Contains(t, view(app), "running (stop…)")
}

func TestApp_Forget(t *testing.T) {
	eng := newFakeEngine(snap("1", model.StatusFailed, 1, t0), snap("2", model.StatusRunning, 1, t0))
	app := newTestApp(eng)

	press(app, "d")
	assert.Equal(t, []string{"1"}, eng.forgotten)
	require.Len(t, app.table.displayRows, 1)
	assert.Equal(t, "2", app.table.displayRows[0].Snap.SessionID)
}

func TestApp_AutoUpdateAndRefresh(t *testing.T) {
	eng := newFakeEngine()
	app := newTestApp(eng)

	press(app, "a")
	assert.False(t, eng.polling)
	assert.Contains(t, view(app), "Auto-update off")
	assert.Contains(t, view(app), "Auto-update paused")

	press(app, "a")
	assert.True(t, eng.polling)

	press(app, "r")
	assert.Equal(t, 1, eng.refreshed)
}

func TestApp_Navigation(t *testing.T) {
	eng := newFakeEngine(
		snap("1", model.StatusRunning, 1, t0),
		snap("2", model.StatusRunning, 2, t0),
		snap("3", model.StatusRunning, 3, t0),
	)
	app := newTestApp(eng)

	press(app, "j")
	press(app, "j")
	press(app, "j") // clamped at the last row
	row, _ := app.table.Selected()
	assert.Equal(t, "3", row.Snap.SessionID)

	press(app, "k")
	row, _ = app.table.Selected()
	assert.Equal(t, "2", row.Snap.SessionID)
}

func TestApp_Filter(t *testing.T) {
	eng := newFakeEngine(
		snap("1", model.StatusRunning, 1, t0),
		snap("2", model.StatusPaused, 2, t0),
		snap("3", model.StatusRunning, 3, t0),
	)
	app := newTestApp(eng)

	press(app, "/")
	require.True(t, app.table.searching)
	press(app, "q") // typed into the filter, not quit
	press(app, "enter")
	assert.Empty(t, app.table.displayRows)

	press(app, "/")
	for range "q" {
		app.Update(tea.KeyMsg{Type: tea.KeyBackspace})
	}
	for _, r := range "paused" {
		press(app, string(r))
	}
	press(app, "enter")
	require.Len(t, app.table.displayRows, 1)
	assert.Equal(t, "2", app.table.displayRows[0].Snap.SessionID)

	press(app, "esc")
	assert.Len(t, app.table.displayRows, 3)
}

func TestApp_Sort(t *testing.T) {
	eng := newFakeEngine(
		snap("1", model.StatusRunning, 30, t0),
		snap("2", model.StatusRunning, 10, t0),
		snap("3", model.StatusRunning, 20, t0),
	)
	app := newTestApp(eng)

	press(app, "4") // URLs processed, descending
	ids := func() []string {
		var out []string
		for _, r := range app.table.displayRows {
			out = append(out, r.Snap.SessionID)
		}
		return out
	}
	assert.Equal(t, []string{"1", "3", "2"}, ids())

	press(app, "4")
	assert.Equal(t, []string{"2", "3", "1"}, ids())
}

func TestApp_AdvisoriesView(t *testing.T) {
	eng := newFakeEngine()
	eng.poll = model.ChannelState{Conn: model.Disconnected, Err: errors.New("timeout")}
	eng.push = model.ChannelState{Conn: model.Disconnected}
	app := newTestApp(eng)

	assert.Contains(t, view(app), "Server unreachable (+1 more)")

	press(app, "i")
	require.True(t, app.showAdvisories)
	v := view(app)
	assert.Contains(t, v, "[CRITICAL] Server unreachable")
	assert.Contains(t, v, "Connectivity")

	press(app, "esc")
	assert.False(t, app.showAdvisories)
}

func TestApp_StatsShownInOverview(t *testing.T) {
	app := newTestApp(newFakeEngine(snap("1", model.StatusRunning, 10, t0)))
	app.Update(StatsMsg{Report: engine.StatsReport{At: t0}})
	require.NotNil(t, app.stats)
	assert.Contains(t, view(app), "server 0")
}

func TestApp_Quit(t *testing.T) {
	app := newTestApp(newFakeEngine())
	cmd := press(app, "q")
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}

func TestApp_TickReschedules(t *testing.T) {
	app := newTestApp(newFakeEngine())
	_, cmd := app.Update(TickMsg(t0))
	assert.NotNil(t, cmd)
	assert.NotNil(t, app.Init())
}

func TestApp_NilEngine(t *testing.T) {
	app := NewApp(nil, AppOptions{})
	assert.NotPanics(t, func() {
		press(app, "r")
		press(app, "a")
		press(app, "s")
		_ = app.View()
	})
}
