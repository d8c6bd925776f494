// Package polling implements the Polling Controller (spec.md §4.5): arms a
// REST-snapshot poller for a (CanonicalId, VenueId) pair whenever the Spread
// Engine classifies that id as an arbitrage candidate with the anchor venue
// participating, and disarms it once that condition lapses for a declared
// dwell time. Grounded on the teacher's conductor/throttle.go arm/disarm
// state machine (now deleted, its dwell-timer shape kept) and
// lib/async.Pool's bounded task lifecycle, generalized here to the spec's
// per-assignment poller tasks.
package polling

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nyxfeed/spreadwatch/errs"
	"github.com/nyxfeed/spreadwatch/internal/book"
	"github.com/nyxfeed/spreadwatch/internal/registry"
	"github.com/nyxfeed/spreadwatch/internal/schema"
	"github.com/nyxfeed/spreadwatch/internal/venue"
	"github.com/nyxfeed/spreadwatch/lib/async"
)

// maxConcurrentPollers bounds the number of poller tasks a single Controller
// runs at once. It is also the pool's queue depth: up to this many further
// arms wait in the queue (reported by QueueDepth) until a worker frees up,
// and an arm that finds the queue full is rejected.
const maxConcurrentPollers = 256

// Publisher is the controller's fan-out collaborator, used only to emit
// SessionUpdate(degraded) when an assignment exhausts its retry budget
// (spec.md §4.5).
type Publisher interface {
	Publish(schema.Update)
}

// Config is the declared polling policy (spec.md §6).
type Config struct {
	Interval          time.Duration
	DwellTime         time.Duration
	MaxFailures       int
	FailureWindow     time.Duration
	BackoffInterval   time.Duration
	RetryBudget       int
	RESTRatePerSecond float64
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
	if c.DwellTime <= 0 {
		c.DwellTime = 10 * time.Second
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = 3
	}
	if c.FailureWindow <= 0 {
		c.FailureWindow = time.Minute
	}
	if c.BackoffInterval <= 0 {
		c.BackoffInterval = 5 * time.Second
	}
	if c.RetryBudget <= 0 {
		c.RetryBudget = 10
	}
	if c.RESTRatePerSecond <= 0 {
		c.RESTRatePerSecond = 5
	}
	return c
}

type assignmentKey struct {
	id    schema.CanonicalId
	venue schema.VenueId
}

type assignment struct {
	state  schema.PollingAssignment
	cancel context.CancelFunc
	done   chan struct{}

	mu               sync.Mutex
	failuresInWindow int
	windowStart      time.Time
	totalFailures    int
	backoff          bool
}

// Controller owns the live set of polling assignments. Exactly one poller
// task runs per (CanonicalId, VenueId); arm/disarm decisions are serialized
// by armMu so concurrent SpreadUpdates never double-spawn a poller
// (spec.md §4.5 "the controller is itself single-flighted").
type Controller struct {
	store     *book.Store
	registry  *registry.Registry
	adapters  map[schema.VenueId]venue.Adapter
	publisher Publisher
	cfg       Config
	limiter   *rate.Limiter
	pool      *async.Pool
	now       func() time.Time

	armMu       sync.Mutex
	assignments map[assignmentKey]*assignment
	lapseSince  map[assignmentKey]time.Time
}

// New constructs a Controller. adapters must contain every venue the
// registry knows about that the spread engine may name as a participant.
func New(store *book.Store, reg *registry.Registry, adapters map[schema.VenueId]venue.Adapter, publisher Publisher, cfg Config) *Controller {
	cfg = cfg.withDefaults()
	pool, err := async.NewPool(maxConcurrentPollers, maxConcurrentPollers)
	if err != nil {
		// maxConcurrentPollers is a positive constant; NewPool only rejects
		// workers <= 0.
		panic(err)
	}
	return &Controller{
		store:       store,
		registry:    reg,
		adapters:    adapters,
		publisher:   publisher,
		cfg:         cfg,
		limiter:     rate.NewLimiter(rate.Limit(cfg.RESTRatePerSecond), 1),
		pool:        pool,
		now:         time.Now,
		assignments: make(map[assignmentKey]*assignment),
		lapseSince:  make(map[assignmentKey]time.Time),
	}
}

// OnSpreadUpdate evaluates the arming rule against a freshly recomputed
// SpreadSummary and arms or disarms the anchor venue's poller for that id
// accordingly (spec.md §4.5 arming rule).
func (c *Controller) OnSpreadUpdate(ctx context.Context, anchor schema.VenueId, summary schema.SpreadSummary) {
	c.armMu.Lock()
	defer c.armMu.Unlock()

	key := assignmentKey{id: summary.ID, venue: anchor}
	shouldArm := summary.Classification == schema.ClassificationArbitrageCandidate && anchorFresh(anchor, summary)

	if shouldArm {
		delete(c.lapseSince, key)
		if _, live := c.assignments[key]; !live {
			c.arm(ctx, key)
		}
		return
	}

	if _, live := c.assignments[key]; !live {
		return
	}
	lapsedAt, seen := c.lapseSince[key]
	if !seen {
		c.lapseSince[key] = c.now()
		return
	}
	if c.now().Sub(lapsedAt) >= c.cfg.DwellTime {
		c.disarm(key)
		delete(c.lapseSince, key)
	}
}

func anchorFresh(anchor schema.VenueId, summary schema.SpreadSummary) bool {
	for _, p := range summary.Participating {
		if p.Venue == anchor {
			return !p.Stale
		}
	}
	return false
}

// arm spawns a poller task for key. Caller must hold armMu.
func (c *Controller) arm(ctx context.Context, key assignmentKey) {
	adapter, ok := c.adapters[key.venue]
	if !ok {
		return
	}
	native, err := c.registry.NativeOf(key.id, key.venue)
	if err != nil {
		return
	}

	taskCtx, cancel := context.WithCancel(ctx)
	a := &assignment{
		state: schema.PollingAssignment{
			ID: key.id, Venue: key.venue,
			StartedAt: c.now(), Interval: c.cfg.Interval,
		},
		cancel:      cancel,
		done:        make(chan struct{}),
		windowStart: c.now(),
	}
	c.assignments[key] = a
	err = c.pool.Submit(taskCtx, func(ctx context.Context) error {
		c.run(ctx, key, native, adapter, a)
		return nil
	})
	if err != nil {
		// Pool saturated or already closed (e.g. during Controller.Close
		// racing a late arm): back out the assignment we just registered.
		delete(c.assignments, key)
		cancel()
		close(a.done)
	}
}

// disarm cancels key's poller task and waits for its tombstone to land.
// Caller must hold armMu.
func (c *Controller) disarm(key assignmentKey) {
	a, ok := c.assignments[key]
	if !ok {
		return
	}
	delete(c.assignments, key)
	a.cancel()
	<-a.done
}

// run is the poller task lifecycle: fetch, apply, sleep, repeat, until
// cancelled — at which point it tombstones its polled slot (spec.md §4.5).
func (c *Controller) run(ctx context.Context, key assignmentKey, native schema.VenueSymbol, adapter venue.Adapter, a *assignment) {
	defer c.reconcileExit(key)
	defer close(a.done)
	defer c.store.ExpirePolled(key.venue, key.id)

	var seq uint64
	if prev, ok := c.store.Get(key.venue, key.id, schema.SourcePolled); ok {
		// Continue past the slot's current seq (the tombstone an earlier
		// assignment left behind) so the first poll of a re-arm is accepted.
		seq = prev.Seq
	}
	for {
		interval := c.cfg.Interval
		a.mu.Lock()
		if a.backoff {
			interval = c.cfg.BackoffInterval
		}
		a.mu.Unlock()

		if err := c.limiter.Wait(ctx); err != nil {
			return
		}

		snap, err := adapter.FetchSnapshot(ctx, native)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if c.recordFailure(key, a) {
				return
			}
		} else {
			c.recordSuccess(a)
			seq++
			entry := schema.BookEntry{
				Venue: key.venue, ID: key.id, Source: schema.SourcePolled,
				Bid: snap.Bid, BidSize: snap.BidSize,
				Ask: snap.Ask, AskSize: snap.AskSize,
				EventTime:  snap.EventTime,
				IngestTime: c.now(),
				Seq:        seq,
			}
			if _, _, err := c.store.Apply(entry); err != nil {
				seq--
			}
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// recordFailure updates the assignment's failure bookkeeping and returns
// true if the retry budget is exhausted and the task must exit (disarming
// itself and emitting a degraded SessionUpdate, per spec.md §4.5).
func (c *Controller) recordFailure(key assignmentKey, a *assignment) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := c.now()
	a.state.LastErrorAt = now
	a.totalFailures++

	if now.Sub(a.windowStart) > c.cfg.FailureWindow {
		a.windowStart = now
		a.failuresInWindow = 0
	}
	a.failuresInWindow++
	if a.failuresInWindow >= c.cfg.MaxFailures {
		a.backoff = true
		a.state.Backoff = true
	}

	if a.totalFailures > c.cfg.RetryBudget {
		if c.publisher != nil {
			c.publisher.Publish(schema.NewSessionUpdate(key.venue, schema.SessionLive, schema.SessionDegraded,
				errs.New("polling/controller", errs.CodeUnavailable,
					errs.WithMessage("retry budget exhausted"),
					errs.WithField("id", string(key.id))).Error()))
		}
		return true
	}
	return false
}

func (c *Controller) recordSuccess(a *assignment) {
	a.mu.Lock()
	a.state.LastSuccessAt = c.now()
	a.failuresInWindow = 0
	a.backoff = false
	a.state.Backoff = false
	a.mu.Unlock()
}

// reconcileExit removes key from the live assignment set once its poller
// task has fully exited, whether it was cancelled by an external disarm (in
// which case the key is already gone and this is a no-op) or exited on its
// own after exhausting its retry budget. run defers this after close(a.done)
// so it never has to contend for armMu against a disarm() call that is
// itself blocked on <-a.done while holding armMu — the two conditions this
// function used to race (self-exit wanting armMu, a waiter holding armMu
// for the same done channel) can no longer overlap.
func (c *Controller) reconcileExit(key assignmentKey) {
	c.armMu.Lock()
	delete(c.assignments, key)
	delete(c.lapseSince, key)
	c.armMu.Unlock()
}

// QueueDepth reports the number of poller tasks waiting for a free worker
// slot, for the Supervisor's health view (spec.md §4.7). A sustained
// non-zero depth means maxConcurrentPollers is undersized for the
// configured universe.
func (c *Controller) QueueDepth() int {
	return c.pool.Queued()
}

// Assignments returns a snapshot of every currently armed assignment, for
// the Supervisor's health view (spec.md §4.7).
func (c *Controller) Assignments() []schema.PollingAssignment {
	c.armMu.Lock()
	defer c.armMu.Unlock()
	out := make([]schema.PollingAssignment, 0, len(c.assignments))
	for _, a := range c.assignments {
		a.mu.Lock()
		out = append(out, a.state)
		a.mu.Unlock()
	}
	return out
}

// Close cancels every live poller task, waits for its tombstone, and stops
// accepting further arms.
func (c *Controller) Close() {
	c.armMu.Lock()
	keys := make([]assignmentKey, 0, len(c.assignments))
	for k := range c.assignments {
		keys = append(keys, k)
	}
	c.armMu.Unlock()
	for _, k := range keys {
		c.armMu.Lock()
		c.disarm(k)
		c.armMu.Unlock()
	}
	c.pool.Close()
}
