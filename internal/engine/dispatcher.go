package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/dm/crawlwatch/internal/client"
	"github.com/dm/crawlwatch/internal/model"
)

// Confirmer asks the user to approve a destructive command. It may block
// until the user answers.
type Confirmer interface {
	Confirm(ctx context.Context, sessionID string, kind model.CommandKind) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, sessionID string, kind model.CommandKind) (bool, error)

// Confirm implements Confirmer.
func (f ConfirmFunc) Confirm(ctx context.Context, sessionID string, kind model.CommandKind) (bool, error) {
	return f(ctx, sessionID, kind)
}

type inflightKey struct {
	id   string
	kind model.CommandKind
}

// Dispatcher sends user commands to the server, one call per invocation.
type Dispatcher struct {
	client    client.SessionClient
	confirmer Confirmer
	timeout   time.Duration
	logger    *log.Logger
	now       func() time.Time

	// onResult and refresh are set by the engine.
	onResult func(model.CommandResult)
	refresh  func(id string)

	mu       sync.Mutex
	inflight map[inflightKey]struct{}
}

// NewDispatcher creates a Dispatcher. A nil confirmer declines every
// destructive command. timeout bounds each server call (default 10s).
func NewDispatcher(c client.SessionClient, confirmer Confirmer, timeout time.Duration, logger *log.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Dispatcher{
		client:    c,
		confirmer: confirmer,
		timeout:   timeout,
		logger:    logger.WithPrefix("command"),
		now:       time.Now,
		onResult:  func(model.CommandResult) {},
		refresh:   func(string) {},
		inflight:  make(map[inflightKey]struct{}),
	}
}

// InFlight reports whether kind is currently being dispatched for id.
func (d *Dispatcher) InFlight(id string, kind model.CommandKind) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.inflight[inflightKey{id, kind}]
	return ok
}

func (d *Dispatcher) acquire(k inflightKey) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.inflight[k]; ok {
		return false
	}
	d.inflight[k] = struct{}{}
	return true
}

func (d *Dispatcher) release(k inflightKey) {
	d.mu.Lock()
	delete(d.inflight, k)
	d.mu.Unlock()
}

// Issue dispatches kind for session id and blocks until the server answers,
// the confirmation is declined or ctx is done.
//
// A second Issue for the same (id, kind) while the first is pending returns
// model.ErrCommandInFlight without contacting the server. Failures wrap
// model.ErrCommandFailed and are never retried. On success the session is
// refreshed out of band; the registry is never modified here.
func (d *Dispatcher) Issue(ctx context.Context, id string, kind model.CommandKind) (model.CommandResult, error) {
	if id == "" {
		return model.CommandResult{}, errors.New("Issue: empty session id")
	}
	key := inflightKey{id, kind}
	if !d.acquire(key) {
		return model.CommandResult{}, fmt.Errorf("%w: %s %s", model.ErrCommandInFlight, kind, id)
	}
	// Held across confirmation so a second keypress cannot queue a
	// duplicate dialog.
	defer d.release(key)

	res := model.CommandResult{SessionID: id, Kind: kind, RequestID: uuid.NewString()}
	logger := d.logger.With("session", id, "kind", kind.String(), "request_id", res.RequestID)

	if kind.Destructive() {
		ok, err := d.confirm(ctx, id, kind)
		if !ok {
			res.Outcome = model.OutcomeDeclined
			res.Err = model.ErrConfirmationDeclined
			if err != nil {
				res.Err = fmt.Errorf("%w: %w", model.ErrConfirmationDeclined, err)
			}
			res.At = d.now()
			logger.Info("command not confirmed")
			d.onResult(res)
			return res, res.Err
		}
	}

	cctx, cancel := context.WithTimeout(client.WithRequestID(ctx, res.RequestID), d.timeout)
	defer cancel()

	err := d.call(cctx, id, kind)
	res.At = d.now()
	if err != nil {
		res.Outcome = model.OutcomeFailed
		res.Err = fmt.Errorf("%w: %s %s: %w", model.ErrCommandFailed, kind, id, err)
		logger.Warn("command failed", "err", err)
		d.onResult(res)
		return res, res.Err
	}

	res.Outcome = model.OutcomeSucceeded
	logger.Info("command accepted")
	d.onResult(res)
	d.refresh(id)
	return res, nil
}

func (d *Dispatcher) confirm(ctx context.Context, id string, kind model.CommandKind) (bool, error) {
	if d.confirmer == nil {
		return false, nil
	}
	return d.confirmer.Confirm(ctx, id, kind)
}

func (d *Dispatcher) call(ctx context.Context, id string, kind model.CommandKind) error {
	switch kind {
	case model.CommandStart:
		return d.client.StartSession(ctx, id)
	case model.CommandStop:
		return d.client.StopSession(ctx, id)
	case model.CommandPause:
		return d.client.PauseSession(ctx, id)
	}
	return fmt.Errorf("unsupported command %s", kind)
}
