package model

import "errors"

// Error kinds shared by the transports, the engine and the dispatcher.
// Callers classify with errors.Is.
var (
	// Network failure or timeout on a poll fetch or command call.
	ErrTransport = errors.New("transport error")
	// The push stream closed without being asked to.
	ErrChannelDropped = errors.New("push channel dropped")
	// A snapshot older than the registry entry was discarded. Diagnostic only.
	ErrStaleSnapshot = errors.New("stale snapshot discarded")
	// The server rejected a user command or the call failed in transit.
	ErrCommandFailed = errors.New("command failed")
	// A payload could not be decoded into a snapshot.
	ErrParse = errors.New("parse error")

	ErrCommandInFlight      = errors.New("command already in flight")
	ErrConfirmationDeclined = errors.New("confirmation declined")
	ErrEngineStopped        = errors.New("engine stopped")
	ErrInvalidConfig        = errors.New("invalid configuration")
)
