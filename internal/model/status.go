package model

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of a crawl session as reported by the server.
type Status int

const (
	StatusUnknown Status = iota
	StatusPending
	StatusRunning
	StatusPaused
	StatusCompleted
	StatusFailed
	StatusCancelled
)

var statusNames = map[Status]string{
	StatusUnknown:   "unknown",
	StatusPending:   "pending",
	StatusRunning:   "running",
	StatusPaused:    "paused",
	StatusCompleted: "completed",
	StatusFailed:    "failed",
	StatusCancelled: "cancelled",
}

// ParseStatus converts a wire status string ("running", "Paused", ...) into
// a Status. "canceled" is accepted as an alias of "cancelled".
func ParseStatus(s string) (Status, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "canceled" {
		return StatusCancelled, nil
	}
	for st, name := range statusNames {
		if st != StatusUnknown && name == v {
			return st, nil
		}
	}
	return StatusUnknown, fmt.Errorf("%w: unknown status %q", ErrParse, s)
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// IsTerminal reports whether no further transitions are expected.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// IsActive matches the server's notion of an active session
// (pending, running or paused).
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusRunning || s == StatusPaused
}

// Polled reports whether the poller should keep fetching a session in this
// state. Paused and terminal sessions are left to the push stream.
func (s Status) Polled() bool {
	return s == StatusPending || s == StatusRunning
}

// transitions is the expected lifecycle graph. Terminal states have no edges.
var transitions = map[Status][]Status{
	StatusPending: {StatusRunning},
	StatusRunning: {StatusPaused, StatusCompleted, StatusFailed, StatusCancelled},
	StatusPaused:  {StatusRunning, StatusCancelled, StatusFailed},
}

// ValidTransition reports whether from -> to follows the expected lifecycle
// graph. Staying in the same state is always valid. An out-of-graph
// transition is still applied by the engine; this only flags it.
func ValidTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AvailableCommands lists the commands that make sense for a session in
// status s. The server remains the authority; this drives which actions a
// view offers.
func AvailableCommands(s Status) []CommandKind {
	switch s {
	case StatusPending:
		return []CommandKind{CommandStart}
	case StatusRunning:
		return []CommandKind{CommandPause, CommandStop}
	case StatusPaused:
		return []CommandKind{CommandStart, CommandStop}
	default:
		return nil
	}
}
