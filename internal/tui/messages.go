package tui

import (
	"time"

	"github.com/dm/crawlwatch/internal/engine"
	"github.com/dm/crawlwatch/internal/model"
)

// ChangeMsg delivers an accepted snapshot.
type ChangeMsg struct{ Change model.Change }

// ConnectivityMsg delivers a channel state transition.
type ConnectivityMsg struct {
	Channel model.Channel
	State   model.ChannelState
}

// CommandResultMsg delivers the outcome of a dispatched command.
type CommandResultMsg struct{ Result model.CommandResult }

// StatsMsg delivers a dashboard stats cross-check.
type StatsMsg struct{ Report engine.StatsReport }

// ConfirmRequestMsg asks the user to confirm a destructive command. The
// answer goes to Reply, which has room for one value.
type ConfirmRequestMsg struct {
	SessionID string
	Kind      model.CommandKind
	Reply     chan<- bool
}

// commandErrMsg reports a command the engine refused before dispatch
// (already in flight, engine stopped). Dispatched commands report through
// CommandResultMsg instead.
type commandErrMsg struct {
	SessionID string
	Kind      model.CommandKind
	Err       error
}

// TickMsg refreshes relative times and advisories.
type TickMsg time.Time
