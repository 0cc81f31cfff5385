package engine

import (
	"context"
	"errors"
	"io"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/dm/crawlwatch/internal/client"
	"github.com/dm/crawlwatch/internal/model"
	"github.com/dm/crawlwatch/internal/transport"
)

// Observer receives engine notifications. All methods are called from the
// engine loop, one at a time and in order; they must not block for long and
// must not call Stop.
type Observer interface {
	OnChange(change model.Change)
	OnConnectivityChange(ch model.Channel, state model.ChannelState)
	OnCommandResult(res model.CommandResult)
}

// StatsObserver is implemented by observers that also want the dashboard
// stats cross-check made on every poll cycle.
type StatsObserver interface {
	OnStats(report StatsReport)
}

// StatsReport pairs the server's dashboard stats with the derived totals.
type StatsReport struct {
	Server        client.DashboardStats
	Derived       model.DashboardAggregate
	Discrepancies []Discrepancy
	At            time.Time
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are ignored.
type ObserverFuncs struct {
	Change       func(model.Change)
	Connectivity func(model.Channel, model.ChannelState)
	Command      func(model.CommandResult)
}

func (o ObserverFuncs) OnChange(c model.Change) {
	if o.Change != nil {
		o.Change(c)
	}
}

func (o ObserverFuncs) OnConnectivityChange(ch model.Channel, s model.ChannelState) {
	if o.Connectivity != nil {
		o.Connectivity(ch, s)
	}
}

func (o ObserverFuncs) OnCommandResult(r model.CommandResult) {
	if o.Command != nil {
		o.Command(r)
	}
}

// Config holds engine tuning.
type Config struct {
	Poll           transport.PollerConfig
	Push           transport.PushConfig
	CommandTimeout time.Duration
	// QueueSize is the engine loop's event buffer. Default 256.
	QueueSize int
}

// Options configures New.
type Options struct {
	Client client.SessionClient
	// Source is the push endpoint. Nil runs the engine on polling alone.
	Source    transport.Source
	Confirmer Confirmer
	Logger    *log.Logger
	Config    Config
}

// event is anything posted to the engine loop.
type event interface{}

type snapshotsEvent struct{ snaps []model.Snapshot }

type stateEvent struct {
	ch    model.Channel
	state model.ChannelState
}

type statsEvent struct{ stats client.DashboardStats }

type commandEvent struct{ res model.CommandResult }

// Engine keeps a registry of crawl sessions in sync with the server using
// a poller and an optional push stream.
type Engine struct {
	id         string
	client     client.SessionClient
	registry   *Registry
	poller     *transport.Poller
	push       *transport.PushStream
	dispatcher *Dispatcher
	logger     *log.Logger

	seq    atomic.Uint64
	events chan event
	quit   chan struct{}
	done   chan struct{}

	lifeMu   sync.Mutex
	started  bool
	stopped  bool
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	commands sync.WaitGroup

	obsMu     sync.Mutex
	observers map[int]Observer
	nextObs   int

	trackMu sync.RWMutex
	tracked map[string]struct{}
}

// New builds an engine. Nothing runs until Start.
func New(opts Options) (*Engine, error) {
	if opts.Client == nil {
		return nil, errors.New("engine: client is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	queue := opts.Config.QueueSize
	if queue <= 0 {
		queue = 256
	}

	e := &Engine{
		id:        uuid.NewString(),
		client:    opts.Client,
		registry:  newRegistry(),
		logger:    logger,
		events:    make(chan event, queue),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		observers: make(map[int]Observer),
		tracked:   make(map[string]struct{}),
	}
	e.logger = logger.With("engine", e.id[:8])

	pollCfg := opts.Config.Poll
	pollCfg.Stats = true
	e.poller = transport.NewPoller(opts.Client, pollCfg, transport.PollerHooks{
		Targets: e.pollTargets,
		Stamp:   e.Stamp,
		OnResult: func(r transport.PollResult) {
			if r.Err == nil {
				e.post(snapshotsEvent{snaps: []model.Snapshot{r.Snapshot}})
			}
		},
		OnStats: func(s *client.DashboardStats) { e.post(statsEvent{stats: *s}) },
		OnState: func(s model.ChannelState) { e.post(stateEvent{ch: model.ChannelPoll, state: s}) },
	}, e.logger)

	if opts.Source != nil {
		e.push = transport.NewPushStream(opts.Source, opts.Config.Push, transport.PushHooks{
			Stamp:       e.Stamp,
			OnSnapshots: func(s []model.Snapshot) { e.post(snapshotsEvent{snaps: s}) },
			OnState:     func(s model.ChannelState) { e.post(stateEvent{ch: model.ChannelPush, state: s}) },
		}, e.logger)
	}

	e.dispatcher = NewDispatcher(opts.Client, opts.Confirmer, opts.Config.CommandTimeout, e.logger)
	e.dispatcher.onResult = func(r model.CommandResult) { e.post(commandEvent{res: r}) }
	e.dispatcher.refresh = func(id string) { e.poller.Refresh(id) }

	return e, nil
}

// ID identifies this engine instance in logs.
func (e *Engine) ID() string { return e.id }

// Start launches the engine loop and both transports.
func (e *Engine) Start(ctx context.Context) error {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()
	if e.stopped {
		return model.ErrEngineStopped
	}
	if e.started {
		return errors.New("engine already started")
	}
	e.started = true
	e.ctx, e.cancel = context.WithCancel(ctx)

	go e.run()
	if err := e.poller.Start(e.ctx); err != nil {
		return err
	}
	if e.push != nil {
		if err := e.push.Start(e.ctx); err != nil {
			return err
		}
	}
	e.logger.Info("engine started", "push", e.push != nil, "interval", e.poller.Interval())
	return nil
}

// Stop halts polling, closes the push connection and abandons in-flight
// requests. No observer is called after Stop returns. Safe to call more than
// once and before Start.
func (e *Engine) Stop() {
	e.stopOnce.Do(e.teardown)
}

func (e *Engine) teardown() {
	e.lifeMu.Lock()
	e.stopped = true
	started := e.started
	close(e.quit)
	e.lifeMu.Unlock()

	if !started {
		return
	}
	e.cancel()
	e.poller.Stop()
	if e.push != nil {
		e.push.Stop()
	}
	e.commands.Wait()
	<-e.done
	e.logger.Info("engine stopped")
}

// Stopped reports whether Stop has been called.
func (e *Engine) Stopped() bool {
	select {
	case <-e.quit:
		return true
	default:
		return false
	}
}

// Subscribe registers o and returns a function that removes it.
func (e *Engine) Subscribe(o Observer) (unsubscribe func()) {
	e.obsMu.Lock()
	id := e.nextObs
	e.nextObs++
	e.observers[id] = o
	e.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.obsMu.Lock()
			delete(e.observers, id)
			e.obsMu.Unlock()
		})
	}
}

func (e *Engine) snapshotObservers() []Observer {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	ids := make([]int, 0, len(e.observers))
	for id := range e.observers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]Observer, 0, len(ids))
	for _, id := range ids {
		out = append(out, e.observers[id])
	}
	return out
}

// Stamp returns the next receipt sequence number. Every snapshot entering
// the engine carries one; a larger number means a more recent observation.
func (e *Engine) Stamp() uint64 { return e.seq.Add(1) }

// CurrentSnapshot returns the accepted snapshot for id, if any.
func (e *Engine) CurrentSnapshot(id string) (model.Snapshot, bool) {
	return e.registry.Get(id)
}

// Snapshots returns every session in the registry, ordered by id.
func (e *Engine) Snapshots() []model.Snapshot {
	return e.registry.All()
}

// Aggregate folds dashboard totals over the registry.
func (e *Engine) Aggregate() model.DashboardAggregate {
	return Aggregate(e.registry.All())
}

// ChannelState returns the current state of one transport.
func (e *Engine) ChannelState(ch model.Channel) model.ChannelState {
	if ch == model.ChannelPush {
		if e.push == nil {
			return model.ChannelState{Conn: model.Disconnected}
		}
		return e.push.State()
	}
	return e.poller.State()
}

// PushEnabled reports whether the engine has a push source.
func (e *Engine) PushEnabled() bool { return e.push != nil }

// Track adds sessions to the watched set and fetches them right away.
// Tracked sessions are polled until first observed; after that the
// registry's status decides.
func (e *Engine) Track(ids ...string) {
	var added []string
	e.trackMu.Lock()
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := e.tracked[id]; !ok {
			e.tracked[id] = struct{}{}
			added = append(added, id)
		}
	}
	e.trackMu.Unlock()
	if len(added) > 0 {
		e.poller.Refresh(added...)
	}
}

// Forget removes a session from the watched set and the registry. Responses
// already in flight for it are ignored. It never blocks, so observers may
// call it from their own loop.
func (e *Engine) Forget(id string) {
	e.trackMu.Lock()
	delete(e.tracked, id)
	e.trackMu.Unlock()
	if e.registry.remove(id, e.Stamp()) {
		e.logger.Debug("session forgotten", "session", id)
	}
}

// Refresh fetches the given sessions now, or every poll target when none
// are given. The fetch runs in the background.
func (e *Engine) Refresh(ids ...string) {
	if len(ids) == 0 {
		ids = e.pollTargets()
	}
	e.poller.Refresh(ids...)
}

// SetPolling turns the periodic poll on or off. The push stream, Refresh
// and post-command refreshes are unaffected.
func (e *Engine) SetPolling(on bool) {
	e.poller.SetPaused(!on)
	e.logger.Info("polling toggled", "on", on)
}

// Polling reports whether periodic polling is on.
func (e *Engine) Polling() bool { return !e.poller.Paused() }

// Submit feeds snapshots into reconciliation as if a transport had
// delivered them. Unstamped snapshots are stamped on entry.
func (e *Engine) Submit(snaps ...model.Snapshot) error {
	out := make([]model.Snapshot, 0, len(snaps))
	for _, s := range snaps {
		if err := s.Validate(); err != nil {
			return err
		}
		s = s.Normalize()
		if s.ObservedAt == 0 {
			s.ObservedAt = e.Stamp()
		}
		if s.ReceivedAt.IsZero() {
			s.ReceivedAt = time.Now()
		}
		out = append(out, s)
	}
	if !e.post(snapshotsEvent{snaps: out}) {
		return model.ErrEngineStopped
	}
	return nil
}

// IssueCommand dispatches a user command for a session. It blocks until
// the server answers or the user declines confirmation. The result is
// also delivered to observers.
func (e *Engine) IssueCommand(ctx context.Context, id string, kind model.CommandKind) (model.CommandResult, error) {
	e.lifeMu.Lock()
	if e.stopped || !e.started {
		e.lifeMu.Unlock()
		return model.CommandResult{}, model.ErrEngineStopped
	}
	e.commands.Add(1)
	engineCtx := e.ctx
	e.lifeMu.Unlock()
	defer e.commands.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(engineCtx, cancel)
	defer stop()

	return e.dispatcher.Issue(ctx, id, kind)
}

// CommandInFlight reports whether kind is pending for id.
func (e *Engine) CommandInFlight(id string, kind model.CommandKind) bool {
	return e.dispatcher.InFlight(id, kind)
}

// pollTargets lists tracked sessions not yet observed plus every observed
// session whose status the poller covers.
func (e *Engine) pollTargets() []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, s := range e.registry.All() {
		seen[s.SessionID] = struct{}{}
		if s.Status.Polled() {
			ids = append(ids, s.SessionID)
		}
	}
	e.trackMu.RLock()
	for id := range e.tracked {
		if _, ok := seen[id]; !ok {
			ids = append(ids, id)
		}
	}
	e.trackMu.RUnlock()
	slices.SortFunc(ids, compareIDs)
	return ids
}

// post hands ev to the loop. It returns false once the engine is stopped.
// Events posted before Start are queued.
func (e *Engine) post(ev event) bool {
	select {
	case <-e.quit:
		return false
	default:
	}
	select {
	case e.events <- ev:
		return true
	case <-e.quit:
		return false
	}
}

func (e *Engine) run() {
	defer close(e.done)
	for {
		select {
		case <-e.quit:
			return
		case ev := <-e.events:
			if e.Stopped() {
				return
			}
			e.handle(ev)
		}
	}
}

func (e *Engine) handle(ev event) {
	switch ev := ev.(type) {
	case snapshotsEvent:
		for _, s := range ev.snaps {
			e.apply(s)
		}
	case stateEvent:
		e.logger.Debug("connectivity", "channel", ev.ch.String(), "state", ev.state.String())
		for _, o := range e.snapshotObservers() {
			o.OnConnectivityChange(ev.ch, ev.state)
		}
	case statsEvent:
		derived := e.Aggregate()
		report := StatsReport{
			Server:        ev.stats,
			Derived:       derived,
			Discrepancies: CrossCheck(ev.stats, derived),
			At:            time.Now(),
		}
		for _, d := range report.Discrepancies {
			e.logger.Debug("stats mismatch", "field", d.Field, "server", d.Server, "derived", d.Derived)
		}
		for _, o := range e.snapshotObservers() {
			if so, ok := o.(StatsObserver); ok {
				so.OnStats(report)
			}
		}
	case commandEvent:
		for _, o := range e.snapshotObservers() {
			o.OnCommandResult(ev.res)
		}
	}
}

// apply runs one snapshot through the recency rule and notifies observers
// if it was accepted.
func (e *Engine) apply(s model.Snapshot) {
	change, err := e.registry.apply(s)
	if err != nil {
		e.logger.Debug("snapshot discarded", "session", s.SessionID, "source", s.Source.String(), "err", err)
		return
	}
	if change.Unexpected {
		e.logger.Warn("unexpected status transition",
			"session", s.SessionID,
			"from", change.Previous.Status.String(),
			"to", s.Status.String())
	}
	for _, o := range e.snapshotObservers() {
		o.OnChange(change)
	}
}
