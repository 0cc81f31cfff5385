package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dm/crawlwatch/internal/model"
)

// Source opens connections to a push endpoint.
type Source interface {
	// Open establishes one connection. ctx bounds the handshake and is
	// cancelled when the stream is no longer wanted.
	Open(ctx context.Context) (Stream, error)
	String() string
}

// Stream is one open push connection.
type Stream interface {
	// Read blocks until the next message arrives, the connection drops or
	// ctx is done.
	Read(ctx context.Context) ([]byte, error)
	Close() error
}

// PushConfig controls reconnection behaviour.
type PushConfig struct {
	Backoff     BackoffConfig
	DialTimeout time.Duration // default 10s
	// StableAfter is how long a connection must stay up before the backoff
	// schedule is reset. Default 10s.
	StableAfter time.Duration
}

func (c PushConfig) withDefaults() PushConfig {
	c.Backoff = c.Backoff.withDefaults()
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.StableAfter <= 0 {
		c.StableAfter = 10 * time.Second
	}
	return c
}

// PushHooks connect the stream to its owner. Hooks are called from the
// stream's goroutine.
type PushHooks struct {
	Stamp       func() uint64
	OnSnapshots func([]model.Snapshot)
	OnState     func(model.ChannelState)
}

// PushStream keeps a connection to a Source open, reconnecting with
// exponential backoff until Stop.
type PushStream struct {
	src     Source
	cfg     PushConfig
	hooks   PushHooks
	logger  *log.Logger
	backoff *Backoff
	now     func() time.Time

	started  atomic.Bool
	stopOnce sync.Once
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu    sync.Mutex
	state model.ChannelState
}

// NewPushStream creates a PushStream for src.
func NewPushStream(src Source, cfg PushConfig, hooks PushHooks, logger *log.Logger) *PushStream {
	cfg = cfg.withDefaults()
	if hooks.Stamp == nil {
		var seq atomic.Uint64
		hooks.Stamp = func() uint64 { return seq.Add(1) }
	}
	if hooks.OnSnapshots == nil {
		hooks.OnSnapshots = func([]model.Snapshot) {}
	}
	if hooks.OnState == nil {
		hooks.OnState = func(model.ChannelState) {}
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &PushStream{
		src:     src,
		cfg:     cfg,
		hooks:   hooks,
		logger:  logger.WithPrefix("push"),
		backoff: NewBackoff(cfg.Backoff),
		now:     time.Now,
		cancel:  func() {},
	}
}

// Start launches the connection loop.
func (p *PushStream) Start(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return errors.New("push stream already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	p.wg.Add(1)
	go p.run(ctx)
	return nil
}

// Stop closes the connection and abandons any pending reconnect. It blocks
// until the loop has exited and is safe to call more than once.
func (p *PushStream) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		cancel := p.cancel
		p.mu.Unlock()
		cancel()
		p.wg.Wait()
	})
}

// State returns the current connectivity state.
func (p *PushStream) State() model.ChannelState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *PushStream) setState(ctx context.Context, s model.ChannelState) {
	if ctx.Err() != nil {
		return
	}
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
	p.logger.Debug("state", "source", p.src.String(), "state", s.String())
	p.hooks.OnState(s)
}

func (p *PushStream) run(ctx context.Context) {
	defer p.wg.Done()

	p.setState(ctx, model.ChannelState{Conn: model.Connecting})
	for {
		err := p.session(ctx)
		if ctx.Err() != nil {
			return
		}
		if !p.wait(ctx, err) {
			return
		}
	}
}

// session dials once and consumes messages until the connection ends.
func (p *PushStream) session(ctx context.Context) error {
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	dialTimer := time.AfterFunc(p.cfg.DialTimeout, cancel)
	stream, err := p.src.Open(sctx)
	dialTimer.Stop()
	if err != nil {
		p.logger.Debug("dial failed", "source", p.src.String(), "err", err)
		return err
	}
	defer stream.Close()
	// Not every stream's Read honours cancellation; closing it does.
	release := context.AfterFunc(sctx, func() { stream.Close() })
	defer release()

	connectedAt := p.now()
	p.setState(ctx, model.ChannelState{Conn: model.Connected})
	p.logger.Info("connected", "source", p.src.String())

	err = p.consume(sctx, stream)
	if ctx.Err() != nil {
		return nil
	}
	if p.now().Sub(connectedAt) >= p.cfg.StableAfter {
		p.backoff.Reset()
	}
	err = fmt.Errorf("%w: %w", model.ErrChannelDropped, err)
	p.logger.Warn("push channel dropped", "source", p.src.String(), "err", err)
	return err
}

func (p *PushStream) consume(ctx context.Context, stream Stream) error {
	for {
		data, err := stream.Read(ctx)
		if err != nil {
			return err
		}
		snaps, err := ParseMessage(data)
		if err != nil {
			p.logger.Warn("dropping malformed push message", "err", err)
			continue
		}
		if len(snaps) == 0 {
			continue
		}
		now := p.now()
		for i := range snaps {
			snaps[i].ObservedAt = p.hooks.Stamp()
			snaps[i].ReceivedAt = now
			snaps[i].Source = model.SourcePush
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.hooks.OnSnapshots(snaps)
	}
}

// wait enters Backoff and sleeps for the next delay. It returns false if
// the stream was stopped meanwhile.
func (p *PushStream) wait(ctx context.Context, cause error) bool {
	delay, _ := p.backoff.Next()
	p.setState(ctx, model.ChannelState{
		Conn:        model.Backoff,
		Attempt:     p.backoff.Attempt(),
		NextRetryAt: p.now().Add(delay),
		Err:         cause,
	})

	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
