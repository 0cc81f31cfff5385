package model

import (
	"fmt"
	"time"
)

// CommandKind is a user intent against a session.
type CommandKind int

const (
	CommandStart CommandKind = iota
	CommandStop
	CommandPause
)

func (k CommandKind) String() string {
	switch k {
	case CommandStart:
		return "start"
	case CommandStop:
		return "stop"
	case CommandPause:
		return "pause"
	default:
		return fmt.Sprintf("command(%d)", int(k))
	}
}

// Destructive commands need an explicit confirmation before dispatch.
func (k CommandKind) Destructive() bool { return k == CommandStop }

// ParseCommandKind accepts "start", "stop" or "pause".
func ParseCommandKind(s string) (CommandKind, error) {
	switch s {
	case "start":
		return CommandStart, nil
	case "stop":
		return CommandStop, nil
	case "pause":
		return CommandPause, nil
	}
	return 0, fmt.Errorf("unknown command %q", s)
}

// CommandOutcome is how a dispatched command ended.
type CommandOutcome int

const (
	OutcomeSucceeded CommandOutcome = iota
	OutcomeFailed
	OutcomeDeclined
)

func (o CommandOutcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	default:
		return "declined"
	}
}

// CommandResult is reported to observers once per dispatched command.
type CommandResult struct {
	SessionID string
	Kind      CommandKind
	Outcome   CommandOutcome
	Err       error
	RequestID string
	At        time.Time
}
