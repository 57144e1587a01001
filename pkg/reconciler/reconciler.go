package reconciler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/conduit/pkg/chain"
	"github.com/cuemby/conduit/pkg/client"
	"github.com/cuemby/conduit/pkg/events"
	"github.com/cuemby/conduit/pkg/log"
	"github.com/cuemby/conduit/pkg/metrics"
	"github.com/cuemby/conduit/pkg/normalize"
	"github.com/cuemby/conduit/pkg/storage"
	"github.com/cuemby/conduit/pkg/types"
)

// ErrStopped is returned to callers waiting on a reconciler that was stopped
var ErrStopped = errors.New("reconciler stopped")

// Config configures a Reconciler
type Config struct {
	// API is the control plane client (required)
	API client.API

	// Store is the persisted cache; nil disables persistence
	Store storage.Store

	// Broker receives lifecycle notices; nil disables them
	Broker *events.Broker

	// KeyPrefix is the control-plane key prefix used to derive ids from
	// wrapped records (default: /apisix)
	KeyPrefix string

	// Interval fires TriggerInterval periodically; 0 disables it
	Interval time.Duration

	// Chains computes access chains in every cycle from the start
	Chains bool

	// Now overrides the clock, mainly for tests
	Now func() time.Time
}

type pendingTrigger struct {
	source TriggerSource
	waiter chan Report
}

// Reconciler keeps a local snapshot of the control plane in step with the
// server. All mutation happens on one run loop goroutine; triggers that
// arrive while a cycle runs are folded into a single follow-up cycle.
type Reconciler struct {
	api       client.API
	store     storage.Store
	broker    *events.Broker
	keyPrefix string
	interval  time.Duration
	now       func() time.Time
	logger    zerolog.Logger

	mu          sync.RWMutex
	snapshot    types.Snapshot
	state       State
	statuses    map[types.Kind]KindStatus
	cycles      uint64
	chainDemand bool

	pendingMu sync.Mutex
	pending   []pendingTrigger

	wake     chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewReconciler creates a reconciler. Call Start to run its loop.
func NewReconciler(cfg Config) *Reconciler {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = normalize.DefaultKeyPrefix
	}

	statuses := make(map[types.Kind]KindStatus, len(types.AllKinds))
	for _, kind := range types.AllKinds {
		statuses[kind] = KindStatus{Kind: kind}
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Reconciler{
		api:         cfg.API,
		store:       cfg.Store,
		broker:      cfg.Broker,
		keyPrefix:   prefix,
		interval:    cfg.Interval,
		now:         now,
		logger:      log.WithComponent("reconciler"),
		state:       StateIdle,
		statuses:    statuses,
		chainDemand: cfg.Chains,
		wake:        make(chan struct{}, 1),
		ctx:         ctx,
		cancel:      cancel,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}

	metrics.RegisterComponent(metrics.ComponentReconciler, false, "no snapshot yet")
	return r
}

// Start begins the run loop
func (r *Reconciler) Start() {
	go r.run()
}

// Stop cancels any in-flight cycle and waits for the run loop to exit.
// Pending Refresh callers get ErrStopped.
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() {
		r.cancel()
		close(r.stopCh)
	})
	<-r.doneCh
}

// Trigger requests a refresh and returns immediately
func (r *Reconciler) Trigger(source TriggerSource) {
	r.enqueue(source, nil)
}

// Refresh requests a refresh and waits for a cycle that started after the
// call to finish
func (r *Reconciler) Refresh(ctx context.Context, source TriggerSource) (Report, error) {
	waiter := make(chan Report, 1)
	r.enqueue(source, waiter)

	select {
	case report := <-waiter:
		return report, nil
	case <-ctx.Done():
		return Report{}, ctx.Err()
	case <-r.stopCh:
		return Report{}, ErrStopped
	}
}

func (r *Reconciler) enqueue(source TriggerSource, waiter chan Report) {
	r.pendingMu.Lock()
	if len(r.pending) > 0 {
		metrics.RefreshCoalesced.Inc()
	}
	r.pending = append(r.pending, pendingTrigger{source: source, waiter: waiter})
	r.pendingMu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
		// a wake-up is already queued
	}
}

func (r *Reconciler) takePending() []pendingTrigger {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()

	batch := r.pending
	r.pending = nil
	return batch
}

// run is the main reconciliation loop
func (r *Reconciler) run() {
	defer close(r.doneCh)

	var tick <-chan time.Time
	if r.interval > 0 {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-r.stopCh:
			return
		case <-tick:
			r.enqueue(TriggerInterval, nil)
		case <-r.wake:
			batch := r.takePending()
			if len(batch) == 0 {
				continue
			}

			report := r.cycle(r.ctx, batch[0].source, len(batch)-1)
			for _, p := range batch {
				if p.waiter != nil {
					p.waiter <- report
				}
			}
		}
	}
}

// SetChainDemand turns access-chain computation on or off for future cycles
func (r *Reconciler) SetChainDemand(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chainDemand = on
}

// ChainDemand reports whether cycles compute access chains
func (r *Reconciler) ChainDemand() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.chainDemand
}

// Snapshot returns the published snapshot. Its slices must not be modified.
func (r *Reconciler) Snapshot() types.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot
}

// Routes returns the current routes
func (r *Reconciler) Routes() []types.Route {
	return r.Snapshot().Routes
}

// Services returns the current services
func (r *Reconciler) Services() []types.Service {
	return r.Snapshot().Services
}

// Upstreams returns the current upstreams
func (r *Reconciler) Upstreams() []types.Upstream {
	return r.Snapshot().Upstreams
}

// Consumers returns the current consumers
func (r *Reconciler) Consumers() []types.Consumer {
	return r.Snapshot().Consumers
}

// AccessChains returns the chains of the current snapshot, computing them on
// the spot when the last cycle did not
func (r *Reconciler) AccessChains() []types.AccessChain {
	snap := r.Snapshot()
	if snap.Chains != nil {
		return snap.Chains
	}
	return chain.Build(snap.Routes, snap.Services, snap.Upstreams, snap.Consumers)
}

// LastRefresh returns when the snapshot was last refreshed; zero if never
func (r *Reconciler) LastRefresh() time.Time {
	return r.Snapshot().RefreshedAt
}

// State returns the current run-loop phase
func (r *Reconciler) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// KindStatuses returns the fetch status of every kind in AllKinds order
func (r *Reconciler) KindStatuses() []KindStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]KindStatus, 0, len(types.AllKinds))
	for _, kind := range types.AllKinds {
		out = append(out, r.statuses[kind])
	}
	return out
}

// Cycles returns how many refresh cycles have completed
func (r *Reconciler) Cycles() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cycles
}

func (r *Reconciler) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

func (r *Reconciler) publish(ev *events.Event) {
	if r.broker != nil {
		r.broker.Publish(ev)
	}
}
