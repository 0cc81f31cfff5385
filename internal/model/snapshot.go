package model

import (
	"fmt"
	"time"
)

// Source identifies which transport delivered a snapshot.
type Source int

const (
	SourceUnknown Source = iota
	SourcePoll
	SourcePush
)

func (s Source) String() string {
	switch s {
	case SourcePoll:
		return "poll"
	case SourcePush:
		return "push"
	default:
		return "unknown"
	}
}

// Snapshot is one observation of a crawl session's state.
//
// ObservedAt is a client-assigned receipt sequence number; it is the only
// field used to order snapshots of the same session. ReceivedAt is the wall
// clock at receipt and is used for display and throughput only.
type Snapshot struct {
	SessionID          string
	Status             Status
	DisplayStatus      string
	ProgressPercentage float64
	URLsDiscovered     int64
	URLsProcessed      int64
	FilesFound         int64
	Errors             int64
	StartedAt          time.Time
	CompletedAt        time.Time

	ObservedAt uint64
	ReceivedAt time.Time
	Source     Source
}

// Validate checks the fields a server payload must get right. Counter
// inconsistencies that Normalize can repair are not errors.
func (s Snapshot) Validate() error {
	if s.SessionID == "" {
		return fmt.Errorf("%w: empty session id", ErrParse)
	}
	if s.Status == StatusUnknown {
		return fmt.Errorf("%w: session %s has no status", ErrParse, s.SessionID)
	}
	if s.URLsDiscovered < 0 || s.URLsProcessed < 0 || s.FilesFound < 0 || s.Errors < 0 {
		return fmt.Errorf("%w: session %s has negative counters", ErrParse, s.SessionID)
	}
	return nil
}

// Normalize clamps ProgressPercentage into [0, 100] and raises
// URLsDiscovered to URLsProcessed so that processed <= discovered holds.
func (s Snapshot) Normalize() Snapshot {
	if s.ProgressPercentage < 0 {
		s.ProgressPercentage = 0
	}
	if s.ProgressPercentage > 100 {
		s.ProgressPercentage = 100
	}
	if s.URLsProcessed > s.URLsDiscovered {
		s.URLsDiscovered = s.URLsProcessed
	}
	return s
}

// Label returns the server's display label when present, else the status name.
func (s Snapshot) Label() string {
	if s.DisplayStatus != "" {
		return s.DisplayStatus
	}
	return s.Status.String()
}

// Change is emitted whenever the engine accepts a snapshot. Previous is nil
// on first observation. Unexpected is set when Previous.Status -> Current.Status
// is outside the expected lifecycle graph.
type Change struct {
	SessionID  string
	Previous   *Snapshot
	Current    Snapshot
	Unexpected bool
}

// StatusChanged reports whether the change moved the session to a new status.
func (c Change) StatusChanged() bool {
	return c.Previous == nil || c.Previous.Status != c.Current.Status
}
