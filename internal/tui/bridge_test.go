package tui

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dm/crawlwatch/internal/client"
	"github.com/dm/crawlwatch/internal/engine"
	"github.com/dm/crawlwatch/internal/model"
	"github.com/dm/crawlwatch/internal/transport"
)

// msgLog collects messages delivered through a Bridge.
type msgLog struct {
	mu   sync.Mutex
	msgs []tea.Msg
}

func (l *msgLog) send(m tea.Msg) {
	l.mu.Lock()
	l.msgs = append(l.msgs, m)
	l.mu.Unlock()
}

func (l *msgLog) all() []tea.Msg {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]tea.Msg(nil), l.msgs...)
}

// stubClient answers every status fetch with a running session.
type stubClient struct {
	stops atomic.Int32
}

func (c *stubClient) GetSessionStatus(context.Context, string) (*client.SessionStatus, error) {
	return &client.SessionStatus{Status: "running", URLsDiscovered: 10, URLsProcessed: 5}, nil
}

func (c *stubClient) GetDashboardStats(context.Context) (*client.DashboardStats, error) {
	return &client.DashboardStats{TotalSessions: 1, ActiveSessions: 1}, nil
}

func (c *stubClient) StartSession(context.Context, string) error { return nil }
func (c *stubClient) PauseSession(context.Context, string) error { return nil }
func (c *stubClient) Ping(context.Context) error                 { return nil }
func (c *stubClient) BaseURL() string                            { return "http://stub" }

func (c *stubClient) StopSession(context.Context, string) error {
	c.stops.Add(1)
	return nil
}

func TestBridge_Unattached(t *testing.T) {
	b := NewBridge()
	assert.NotPanics(t, func() {
		b.OnChange(model.Change{SessionID: "1"})
		b.OnStats(engine.StatsReport{})
	})
	ok, err := b.Confirm(context.Background(), "1", model.CommandStop)
	assert.NoError(t, err)
	assert.False(t, ok, "no dialog to ask")
}

func TestBridge_ForwardsNotifications(t *testing.T) {
	var log msgLog
	b := NewBridge()
	b.Attach(log.send)

	b.OnChange(model.Change{SessionID: "1"})
	b.OnConnectivityChange(model.ChannelPush, model.ChannelState{Conn: model.Connected})
	b.OnCommandResult(model.CommandResult{SessionID: "1", Kind: model.CommandStart})
	b.OnStats(engine.StatsReport{})

	msgs := log.all()
	require.Len(t, msgs, 4)
	assert.IsType(t, ChangeMsg{}, msgs[0])
	assert.Equal(t, ConnectivityMsg{Channel: model.ChannelPush, State: model.ChannelState{Conn: model.Connected}}, msgs[1])
	assert.IsType(t, CommandResultMsg{}, msgs[2])
	assert.IsType(t, StatsMsg{}, msgs[3])
}

func TestBridge_ConfirmRoundTrip(t *testing.T) {
	b := NewBridge()
	b.Attach(func(m tea.Msg) {
		req, ok := m.(ConfirmRequestMsg)
		require.True(t, ok)
		assert.Equal(t, "9", req.SessionID)
		req.Reply <- true
	})

	ok, err := b.Confirm(context.Background(), "9", model.CommandStop)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBridge_ConfirmCanceled(t *testing.T) {
	b := NewBridge()
	b.Attach(func(tea.Msg) {}) // nobody answers

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	ok, err := b.Confirm(ctx, "9", model.CommandStop)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestBridge_WithEngine drives a real engine through the bridge: tracked
// sessions arrive as ChangeMsg and a stop goes through the dialog.
func TestBridge_WithEngine(t *testing.T) {
	var log msgLog
	b := NewBridge()
	sc := &stubClient{}

	e, err := engine.New(engine.Options{
		Client:    sc,
		Confirmer: b,
		Config:    engine.Config{Poll: transport.PollerConfig{Interval: time.Hour}},
	})
	require.NoError(t, err)
	unsubscribe := e.Subscribe(b)
	defer unsubscribe()

	b.Attach(func(m tea.Msg) {
		if req, ok := m.(ConfirmRequestMsg); ok {
			req.Reply <- true
		}
		log.send(m)
	})

	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(e.Stop)
	e.Track("42")

	hasMsg := func(match func(tea.Msg) bool) func() bool {
		return func() bool {
			for _, m := range log.all() {
				if match(m) {
					return true
				}
			}
			return false
		}
	}

	require.Eventually(t, hasMsg(func(m tea.Msg) bool {
		c, ok := m.(ChangeMsg)
		return ok && c.Change.SessionID == "42" && c.Change.Current.Status == model.StatusRunning
	}), 2*time.Second, 5*time.Millisecond)

	res, err := e.IssueCommand(context.Background(), "42", model.CommandStop)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeSucceeded, res.Outcome)
	assert.Equal(t, int32(1), sc.stops.Load())

	require.Eventually(t, hasMsg(func(m tea.Msg) bool {
		r, ok := m.(CommandResultMsg)
		return ok && r.Result.Kind == model.CommandStop && r.Result.Outcome == model.OutcomeSucceeded
	}), 2*time.Second, 5*time.Millisecond)
	assert.True(t, hasMsg(func(m tea.Msg) bool { _, ok := m.(ConfirmRequestMsg); return ok })())
}
