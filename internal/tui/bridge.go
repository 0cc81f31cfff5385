package tui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dm/crawlwatch/internal/engine"
	"github.com/dm/crawlwatch/internal/model"
)

// Bridge forwards engine notifications into a Bubble Tea program and asks
// the user for stop confirmations. Subscribe it to the engine and pass it
// as the engine's Confirmer, then Attach the program's Send.
type Bridge struct {
	mu   sync.RWMutex
	send func(tea.Msg)
}

var (
	_ engine.Observer      = (*Bridge)(nil)
	_ engine.StatsObserver = (*Bridge)(nil)
	_ engine.Confirmer     = (*Bridge)(nil)
)

// NewBridge returns an unattached Bridge. Notifications before Attach are
// dropped and confirmations are declined.
func NewBridge() *Bridge { return &Bridge{} }

// Attach sets the function used to deliver messages, normally
// (*tea.Program).Send.
func (b *Bridge) Attach(send func(tea.Msg)) {
	b.mu.Lock()
	b.send = send
	b.mu.Unlock()
}

func (b *Bridge) deliver(msg tea.Msg) bool {
	b.mu.RLock()
	send := b.send
	b.mu.RUnlock()
	if send == nil {
		return false
	}
	send(msg)
	return true
}

// OnChange implements engine.Observer.
func (b *Bridge) OnChange(c model.Change) { b.deliver(ChangeMsg{Change: c}) }

// OnConnectivityChange implements engine.Observer.
func (b *Bridge) OnConnectivityChange(ch model.Channel, s model.ChannelState) {
	b.deliver(ConnectivityMsg{Channel: ch, State: s})
}

// OnCommandResult implements engine.Observer.
func (b *Bridge) OnCommandResult(r model.CommandResult) { b.deliver(CommandResultMsg{Result: r}) }

// OnStats implements engine.StatsObserver.
func (b *Bridge) OnStats(r engine.StatsReport) { b.deliver(StatsMsg{Report: r}) }

// Confirm implements engine.Confirmer by showing the confirmation dialog
// and waiting for the answer.
func (b *Bridge) Confirm(ctx context.Context, sessionID string, kind model.CommandKind) (bool, error) {
	reply := make(chan bool, 1)
	if !b.deliver(ConfirmRequestMsg{SessionID: sessionID, Kind: kind, Reply: reply}) {
		return false, nil
	}
	select {
	case ok := <-reply:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
