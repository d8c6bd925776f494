// Package supervisor implements the Supervisor (spec.md §4.7): it starts
// the components cmd/spreadwatch has already constructed (and injected
// subscription intent into) in dependency order, serves a health snapshot,
// and coordinates the declared shutdown ordering. It does not construct
// components or set desired subscriptions itself.
// Grounded on the teacher's cmd/gateway/main.go lifecycle (a
// conc.WaitGroup tracking every long-running goroutine, a sequential
// shutdownStep helper with a per-step timeout), generalized here from a
// fixed set of named subsystems to the spec's per-venue Multiplexer set.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/nyxfeed/spreadwatch/internal/book"
	"github.com/nyxfeed/spreadwatch/internal/fanout"
	"github.com/nyxfeed/spreadwatch/internal/logging"
	"github.com/nyxfeed/spreadwatch/internal/mux"
	"github.com/nyxfeed/spreadwatch/internal/polling"
	"github.com/nyxfeed/spreadwatch/internal/registry"
	"github.com/nyxfeed/spreadwatch/internal/schema"
	"github.com/nyxfeed/spreadwatch/internal/spread"
)

// VenueHealth is one venue's contribution to the health snapshot.
type VenueHealth struct {
	Venue        schema.VenueId
	State        schema.SessionState
	DesiredSubs  int
	ActualSubs   int
	LastError    string
	AttemptCount int
}

// Health is the Supervisor's structured snapshot (spec.md §4.7).
type Health struct {
	Venues             []VenueHealth
	SubscriberCount    int
	ArmedAssignments   []schema.PollingAssignment
	PollerQueueDepth   int
	UnmappedEventTotal uint64
}

// Supervisor owns every top-level component and its startup/shutdown order.
type Supervisor struct {
	logger *logging.Logger

	registry *registry.Registry
	store    *book.Store
	bus      *fanout.Bus
	muxes    map[schema.VenueId]*Multiplexer
	engine   *spread.Engine
	spreadD  *spread.Driver
	poller   *polling.Controller
	pollD    *polling.Driver
	anchor   schema.VenueId

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     conc.WaitGroup
}

// Multiplexer is a type alias for internal/mux.Multiplexer (the full type,
// not a narrowed interface).
type Multiplexer = mux.Multiplexer

// Components bundles everything New needs to assemble; each is constructed
// by the caller (cmd/spreadwatch) since they in turn need config values
// this package has no opinion on.
type Components struct {
	Logger       *logging.Logger
	Registry     *registry.Registry
	Store        *book.Store
	Bus          *fanout.Bus
	Multiplexers map[schema.VenueId]*mux.Multiplexer
	Engine       *spread.Engine
	Poller       *polling.Controller
	Anchor       schema.VenueId
}

// New wires a Supervisor from already-constructed components. Start begins
// running them in dependency order.
func New(c Components) *Supervisor {
	return &Supervisor{
		logger:   c.Logger,
		registry: c.Registry,
		store:    c.Store,
		bus:      c.Bus,
		muxes:    c.Multiplexers,
		engine:   c.Engine,
		poller:   c.Poller,
		anchor:   c.Anchor,
	}
}

// Start begins every Multiplexer's connect loop and the Spread Engine /
// Polling Controller drivers, in the order spec.md §2 declares: Registry
// and Book Store and Bus already exist by construction; Multiplexers next,
// then Spread Engine, then Polling Controller.
func (s *Supervisor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	for venueID, m := range s.muxes {
		m := m
		venueID := venueID
		s.wg.Go(func() {
			s.logger.Printf("starting multiplexer for venue=%s", venueID)
			m.Run(ctx)
			s.logger.Printf("multiplexer for venue=%s exited", venueID)
		})
	}

	s.spreadD = spread.NewDriver(ctx, s.engine, s.bus)
	if s.poller != nil {
		s.pollD = polling.NewDriver(ctx, s.poller, s.bus, s.anchor)
	}
}

// Shutdown cancels the Supervisor's context and performs the declared
// teardown order (spec.md §4.7): Polling Controller first (so its
// tombstones land before the Book Store stops accepting writes), then
// Multiplexers, then Spread Engine, then the Fan-out Bus, finally the Book
// Store. Grounded on the teacher's performGracefulShutdown's sequential
// shutdownStep helper.
func (s *Supervisor) Shutdown(ctx context.Context) {
	s.step("stopping polling controller", func() {
		if s.pollD != nil {
			s.pollD.Close()
		}
		if s.poller != nil {
			s.poller.Close()
		}
	})

	s.step("cancelling venue tasks", func() {
		s.mu.Lock()
		cancel := s.cancel
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	})

	s.step("waiting for multiplexers", func() {
		done := make(chan struct{})
		go func() { s.wg.Wait(); close(done) }()
		select {
		case <-done:
		case <-ctx.Done():
		}
	})

	s.step("stopping spread engine driver", func() {
		if s.spreadD != nil {
			s.spreadD.Close()
		}
	})

	s.step("closing fan-out bus", func() {
		s.bus.Close()
	})

	s.step("closing book store", func() {
		s.store.Close()
	})
}

func (s *Supervisor) step(name string, fn func()) {
	start := time.Now()
	s.logger.Printf("shutdown: %s...", name)
	fn()
	s.logger.Printf("shutdown: %s completed in %v", name, time.Since(start))
}

// HealthSnapshot returns the current structured health view (spec.md
// §4.7): per-venue SessionState, subscription counts, last-error, and the
// set of currently armed polling assignments.
func (s *Supervisor) HealthSnapshot() Health {
	h := Health{SubscriberCount: s.bus.SubscriberCount()}
	for venueID, m := range s.muxes {
		sess := m.Session()
		h.Venues = append(h.Venues, VenueHealth{
			Venue: venueID, State: sess.State,
			DesiredSubs: len(sess.DesiredSubs), ActualSubs: len(sess.ActualSubs),
			LastError: sess.LastError, AttemptCount: sess.AttemptCount,
		})
		h.UnmappedEventTotal += m.UnmappedCount()
	}
	if s.poller != nil {
		h.ArmedAssignments = s.poller.Assignments()
		h.PollerQueueDepth = s.poller.QueueDepth()
	}
	return h
}

// IngestRate and PollRate satisfy telemetry.HealthSource with coarse
// point-in-time counts; a production deployment would derive these from a
// sliding window, which spec.md leaves undeclared (no rate-window config
// key exists in §6).
func (s *Supervisor) IngestRate() int64 { return int64(len(s.store.SnapshotAll())) }

func (s *Supervisor) PollRate() int64 {
	if s.poller == nil {
		return 0
	}
	return int64(len(s.poller.Assignments()))
}

func (s *Supervisor) SubscriberCount() int64 { return int64(s.bus.SubscriberCount()) }
