package model

import (
	"fmt"
	"time"
)

// Channel names one of the two transports feeding the engine.
type Channel int

const (
	ChannelPoll Channel = iota
	ChannelPush
)

func (c Channel) String() string {
	if c == ChannelPush {
		return "push"
	}
	return "poll"
}

// ConnState is the connectivity of a single channel.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
	Backoff
)

func (c ConnState) String() string {
	switch c {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Backoff:
		return "backoff"
	default:
		return "disconnected"
	}
}

// ChannelState is owned by its transport. Attempt and NextRetryAt are only
// meaningful in the Backoff state. Err holds the failure that caused the
// last transition away from Connected, if any.
type ChannelState struct {
	Conn        ConnState
	Attempt     int
	NextRetryAt time.Time
	Err         error
}

// Live reports whether the channel is currently delivering updates.
func (c ChannelState) Live() bool { return c.Conn == Connected }

func (c ChannelState) String() string {
	if c.Conn == Backoff {
		return fmt.Sprintf("backoff(attempt=%d, next=%s)", c.Attempt, c.NextRetryAt.Format("15:04:05"))
	}
	return c.Conn.String()
}

// Equal compares the state, ignoring the error value.
func (c ChannelState) Equal(o ChannelState) bool {
	return c.Conn == o.Conn && c.Attempt == o.Attempt && c.NextRetryAt.Equal(o.NextRetryAt)
}
