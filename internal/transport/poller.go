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
	"golang.org/x/sync/errgroup"

	"github.com/dm/crawlwatch/internal/client"
	"github.com/dm/crawlwatch/internal/model"
)

// StatusFetcher is the part of client.SessionClient the poller needs.
type StatusFetcher interface {
	GetSessionStatus(ctx context.Context, id string) (*client.SessionStatus, error)
	GetDashboardStats(ctx context.Context) (*client.DashboardStats, error)
}

// PollResult is the outcome of one session's status fetch. Exactly one of
// Snapshot (stamped) or Err is meaningful.
type PollResult struct {
	SessionID string
	Snapshot  model.Snapshot
	Err       error
}

// PollerConfig controls the poll cadence.
type PollerConfig struct {
	Interval    time.Duration // default 5s
	Timeout     time.Duration // per cycle; default Interval
	Concurrency int           // max parallel fetches, default 8
	// Stats also fetches /dashboard/stats on every cycle.
	Stats bool
}

func (c PollerConfig) withDefaults() PollerConfig {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = c.Interval
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
	return c
}

// PollerHooks connect the poller to its owner. All hooks are called from
// poller goroutines and must be safe for concurrent use.
type PollerHooks struct {
	// Targets returns the sessions to fetch this cycle.
	Targets func() []string
	// Stamp assigns the receipt sequence number.
	Stamp func() uint64
	// OnResult receives every fetch outcome as it completes.
	OnResult func(PollResult)
	// OnStats receives dashboard stats when PollerConfig.Stats is set.
	OnStats func(*client.DashboardStats)
	// OnState receives connectivity transitions.
	OnState func(model.ChannelState)
}

// Poller fetches session status on a fixed period and on demand.
type Poller struct {
	fetcher StatusFetcher
	cfg     PollerConfig
	hooks   PollerHooks
	logger  *log.Logger
	now     func() time.Time

	paused atomic.Bool
	rounds atomic.Uint64

	// notifyMu orders OnState calls. It is never held together with mu,
	// so hooks may block without stalling Refresh, State or Stop.
	notifyMu sync.Mutex

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	stopped bool
	wg      sync.WaitGroup
	state   model.ChannelState
}

// NewPoller creates a Poller. Start must be called before it fetches.
func NewPoller(f StatusFetcher, cfg PollerConfig, hooks PollerHooks, logger *log.Logger) *Poller {
	if hooks.Targets == nil {
		hooks.Targets = func() []string { return nil }
	}
	if hooks.Stamp == nil {
		var seq atomic.Uint64
		hooks.Stamp = func() uint64 { return seq.Add(1) }
	}
	if hooks.OnResult == nil {
		hooks.OnResult = func(PollResult) {}
	}
	if hooks.OnStats == nil {
		hooks.OnStats = func(*client.DashboardStats) {}
	}
	if hooks.OnState == nil {
		hooks.OnState = func(model.ChannelState) {}
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Poller{
		fetcher: f,
		cfg:     cfg.withDefaults(),
		hooks:   hooks,
		logger:  logger.WithPrefix("poll"),
		now:     time.Now,
	}
}

// Interval returns the effective poll period.
func (p *Poller) Interval() time.Duration { return p.cfg.Interval }

// Start runs the first cycle immediately and then one per interval until
// Stop or ctx is cancelled.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return errors.New("poller already started")
	}
	p.started = true
	p.ctx, p.cancel = context.WithCancel(ctx)
	runCtx := p.ctx
	p.wg.Add(1)
	p.mu.Unlock()

	p.setState(model.ChannelState{Conn: model.Connecting})
	go p.run(runCtx)
	return nil
}

// Stop halts the timer and cancels in-flight fetches. Safe to call more
// than once and before Start.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.stopped = true
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()
}

// SetPaused suspends or resumes the periodic cycle. Refresh keeps working
// while paused.
func (p *Poller) SetPaused(paused bool) {
	p.paused.Store(paused)
}

// Paused reports whether periodic polling is suspended.
func (p *Poller) Paused() bool { return p.paused.Load() }

// Refresh fetches the given sessions right away, outside the poll cadence.
// It does nothing once the poller is stopped.
func (p *Poller) Refresh(ids ...string) {
	if len(ids) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started || p.stopped {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.fetch(p.ctx, ids, false)
	}()
}

// State returns the current connectivity state.
func (p *Poller) State() model.ChannelState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.paused.Load() {
				continue
			}
			p.cycle(ctx)
		}
	}
}

// cycle fetches every target. The order rotates by one position per cycle
// so a client-side rate limit that runs out before the cycle deadline
// fails different sessions each time instead of always the same tail.
func (p *Poller) cycle(ctx context.Context) {
	ids := rotate(p.hooks.Targets(), p.rounds.Add(1)-1)
	p.fetch(ctx, ids, p.cfg.Stats)
}

// rotate returns ids starting at offset n modulo len(ids). ids is not
// modified.
func rotate(ids []string, n uint64) []string {
	if len(ids) < 2 {
		return ids
	}
	k := int(n % uint64(len(ids)))
	if k == 0 {
		return ids
	}
	out := make([]string, 0, len(ids))
	out = append(out, ids[k:]...)
	return append(out, ids[:k]...)
}

// fetch runs one bounded fan-out and updates connectivity from its results.
func (p *Poller) fetch(ctx context.Context, ids []string, withStats bool) {
	if len(ids) == 0 && !withStats {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	var (
		g        errgroup.Group
		statsOK  atomic.Bool
		statsErr error
	)
	if withStats {
		g.Go(func() error {
			stats, err := p.fetcher.GetDashboardStats(cctx)
			if err != nil {
				statsErr = err
				p.logger.Debug("dashboard stats fetch failed", "err", err)
				return nil
			}
			statsOK.Store(true)
			if ctx.Err() == nil {
				p.hooks.OnStats(stats)
			}
			return nil
		})
	}

	results := FetchStatuses(cctx, p.fetcher, ids, p.cfg.Concurrency, p.hooks.Stamp, p.now, func(r PollResult) {
		if ctx.Err() != nil {
			return // stopped; drop late responses
		}
		if r.Err != nil {
			p.logger.Debug("status fetch failed", "session", r.SessionID, "err", r.Err)
		}
		p.hooks.OnResult(r)
	})
	_ = g.Wait()

	if ctx.Err() != nil {
		return
	}

	var failed int
	var lastErr error
	for _, r := range results {
		if r.Err != nil {
			failed++
			lastErr = r.Err
		}
	}
	switch {
	case len(results) > 0 && failed == len(results):
		p.setState(model.ChannelState{Conn: model.Disconnected, Err: fmt.Errorf("%w: all %d fetches failed: %w", model.ErrTransport, failed, lastErr)})
	case len(results) > failed:
		p.setState(model.ChannelState{Conn: model.Connected})
	case statsOK.Load():
		p.setState(model.ChannelState{Conn: model.Connected})
	case statsErr != nil:
		p.setState(model.ChannelState{Conn: model.Disconnected, Err: statsErr})
	}
}

// setState records s and reports it to OnState when it differs from the
// current state. The hook runs after mu is released.
func (p *Poller) setState(s model.ChannelState) {
	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()

	p.mu.Lock()
	if p.stopped || (p.state.Equal(s) && (p.state.Err == nil) == (s.Err == nil)) {
		p.mu.Unlock()
		return
	}
	p.state = s
	p.mu.Unlock()

	p.logger.Debug("state", "state", s.String())
	p.hooks.OnState(s)
}

// FetchStatuses fetches every id concurrently, at most limit at a time.
// A failing fetch never cancels or delays the others. onResult, when
// non-nil, is called from the fetching goroutine as each result arrives;
// the full set is also returned in ids order.
func FetchStatuses(
	ctx context.Context,
	f StatusFetcher,
	ids []string,
	limit int,
	stamp func() uint64,
	now func() time.Time,
	onResult func(PollResult),
) []PollResult {
	results := make([]PollResult, len(ids))
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, id := range ids {
		g.Go(func() error {
			r := fetchOne(ctx, f, id, stamp, now)
			results[i] = r
			if onResult != nil {
				onResult(r)
			}
			// Never fail the group: one session's error must not cancel
			// the rest of the cycle.
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func fetchOne(ctx context.Context, f StatusFetcher, id string, stamp func() uint64, now func() time.Time) PollResult {
	st, err := f.GetSessionStatus(ctx, id)
	if err != nil {
		return PollResult{SessionID: id, Err: err}
	}
	snap, err := st.Snapshot(id)
	if err != nil {
		return PollResult{SessionID: id, Err: err}
	}
	snap.ObservedAt = stamp()
	snap.ReceivedAt = now()
	snap.Source = model.SourcePoll
	return PollResult{SessionID: id, Snapshot: snap}
}
