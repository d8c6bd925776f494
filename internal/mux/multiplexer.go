// Package mux implements the Stream Multiplexer (spec.md §4.3): one
// instance per venue, owning that venue's VenueSession state machine,
// desired/actual subscription reconciliation, and event normalization into
// the Aggregated Book Store. Grounded on the teacher's
// internal/adapters/binance/websocket_manager.go connect/reconnect loop
// (exponential backoff via cenkalti/backoff/v5, ctx-cancellable read loop)
// generalized from one venue's wire format to the venue.Adapter interface.
package mux

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/nyxfeed/spreadwatch/internal/book"
	"github.com/nyxfeed/spreadwatch/internal/registry"
	"github.com/nyxfeed/spreadwatch/internal/schema"
	"github.com/nyxfeed/spreadwatch/internal/venue"
)

// Publisher is the Multiplexer's fan-out collaborator for SessionUpdate
// messages; BookUpdate publication itself happens inside the Book Store's
// Apply, per spec.md §4.3 ("multiplexer does not publish directly").
type Publisher interface {
	Publish(schema.Update)
}

// Config is the per-venue reconnection/backoff policy (spec.md §6).
type Config struct {
	ReconnectBase     time.Duration
	ReconnectCap      time.Duration
	StabilityWindow   time.Duration
	HandshakeAttempts int
	AttemptWindow     time.Duration
}

func (c Config) withDefaults() Config {
	if c.ReconnectBase <= 0 {
		c.ReconnectBase = 250 * time.Millisecond
	}
	if c.ReconnectCap <= 0 {
		c.ReconnectCap = 30 * time.Second
	}
	if c.StabilityWindow <= 0 {
		c.StabilityWindow = 10 * time.Second
	}
	if c.HandshakeAttempts <= 0 {
		c.HandshakeAttempts = 10
	}
	if c.AttemptWindow <= 0 {
		c.AttemptWindow = time.Minute
	}
	return c
}

// FatalHandler is invoked when the multiplexer hits a condition spec.md
// §4.3 says must escalate to the Supervisor (registry missing for the
// venue, handshake failures beyond the declared attempt cap).
type FatalHandler func(venueID schema.VenueId, err error)

// Multiplexer owns one venue's live session and subscription reconciliation.
type Multiplexer struct {
	venueID   schema.VenueId
	adapter   venue.Adapter
	registry  *registry.Registry
	store     *book.Store
	publisher Publisher
	cfg       Config
	onFatal   FatalHandler

	mu           sync.Mutex
	desired      map[schema.Sub]struct{}
	actual       map[schema.Sub]struct{}
	state        schema.SessionState
	attemptCount int
	lastError    string

	seqMu sync.Mutex
	seqs  map[schema.CanonicalId]uint64

	unmapped atomic.Uint64

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Multiplexer for one venue. Call Run to start its
// connect/reconcile loop and SetDesired to inject subscription intent.
func New(venueID schema.VenueId, adapter venue.Adapter, reg *registry.Registry, store *book.Store, publisher Publisher, cfg Config, onFatal FatalHandler) *Multiplexer {
	return &Multiplexer{
		venueID:   venueID,
		adapter:   adapter,
		registry:  reg,
		store:     store,
		publisher: publisher,
		cfg:       cfg.withDefaults(),
		onFatal:   onFatal,
		desired:   make(map[schema.Sub]struct{}),
		actual:    make(map[schema.Sub]struct{}),
		state:     schema.SessionIdle,
		seqs:      make(map[schema.CanonicalId]uint64),
		done:      make(chan struct{}),
	}
}

// SetDesired replaces the desired subscription set. The new set takes effect
// at the next (re)connect, when reconcile subscribes every desired sub; a
// change made while live is not applied to the current session, and subs
// dropped from the set are not unsubscribed.
func (m *Multiplexer) SetDesired(subs []schema.Sub) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.desired = make(map[schema.Sub]struct{}, len(subs))
	for _, s := range subs {
		m.desired[s] = struct{}{}
	}
}

// Session returns a read-only snapshot of the venue session.
func (m *Multiplexer) Session() schema.VenueSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return schema.VenueSession{
		Venue:        m.venueID,
		State:        m.state,
		AttemptCount: m.attemptCount,
		LastError:    m.lastError,
		DesiredSubs:  cloneSubs(m.desired),
		ActualSubs:   cloneSubs(m.actual),
	}
}

func cloneSubs(in map[schema.Sub]struct{}) map[schema.Sub]struct{} {
	out := make(map[schema.Sub]struct{}, len(in))
	for k := range in {
		out[k] = struct{}{}
	}
	return out
}

func (m *Multiplexer) setState(next schema.SessionState, reason string) {
	m.mu.Lock()
	old := m.state
	m.state = next
	m.mu.Unlock()
	if old != next && m.publisher != nil {
		m.publisher.Publish(schema.NewSessionUpdate(m.venueID, old, next, reason))
	}
}

// Run drives the connect → live → degraded → backoff → reconnect loop until
// ctx is cancelled, at which point the session is closed and a
// SessionUpdate(closed) is emitted (spec.md §5).
func (m *Multiplexer) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	defer close(m.done)
	defer m.setState(schema.SessionClosed, "supervisor shutdown")

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = m.cfg.ReconnectBase
	bo.MaxInterval = m.cfg.ReconnectCap

	windowStart := time.Now()
	attemptsInWindow := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		m.setState(schema.SessionConnecting, "")
		sess, err := m.adapter.OpenStream(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			attemptsInWindow, windowStart = m.trackAttempt(attemptsInWindow, windowStart)
			if attemptsInWindow > m.cfg.HandshakeAttempts {
				m.fatal(err)
				return
			}
			m.degrade(err.Error())
			if !m.sleepBackoff(ctx, bo) {
				return
			}
			continue
		}

		liveSince := time.Now()
		m.setState(schema.SessionLive, "")
		m.clearActual()
		m.reconcile(ctx, sess)

		m.consume(ctx, sess)
		_ = sess.Close()

		if ctx.Err() != nil {
			return
		}

		if time.Since(liveSince) >= m.cfg.StabilityWindow {
			bo.Reset()
			attemptsInWindow = 0
			windowStart = time.Now()
		}

		m.degrade(sessErr(sess))
		if !m.sleepBackoff(ctx, bo) {
			return
		}
	}
}

func sessErr(s venue.Session) string {
	if err := s.Err(); err != nil {
		return err.Error()
	}
	return ""
}

func (m *Multiplexer) trackAttempt(count int, windowStart time.Time) (int, time.Time) {
	if time.Since(windowStart) > m.cfg.AttemptWindow {
		return 1, time.Now()
	}
	return count + 1, windowStart
}

func (m *Multiplexer) fatal(err error) {
	m.mu.Lock()
	m.lastError = err.Error()
	m.mu.Unlock()
	m.setState(schema.SessionDegraded, err.Error())
	if m.onFatal != nil {
		m.onFatal(m.venueID, err)
	}
}

func (m *Multiplexer) degrade(reason string) {
	m.mu.Lock()
	m.attemptCount++
	m.lastError = reason
	m.mu.Unlock()
	m.setState(schema.SessionDegraded, reason)
}

func (m *Multiplexer) clearActual() {
	m.mu.Lock()
	m.actual = make(map[schema.Sub]struct{})
	m.mu.Unlock()
}

// reconcile performs a full resubscribe of desired_subs, matching spec.md
// §4.3's "on re-entering live, a full resubscribe of desired_subs is
// performed."
func (m *Multiplexer) reconcile(ctx context.Context, sess venue.Session) {
	m.mu.Lock()
	desired := cloneSubs(m.desired)
	m.mu.Unlock()

	for sub := range desired {
		native, err := m.registry.NativeOf(sub.ID, m.venueID)
		if err != nil {
			continue
		}
		if err := m.adapter.Subscribe(ctx, sess, native, sub.Channel); err != nil {
			continue
		}
		m.mu.Lock()
		m.actual[sub] = struct{}{}
		m.mu.Unlock()
	}
}

// consume reads normalized events off the session and applies them to the
// Book Store until the session ends or ctx is cancelled.
func (m *Multiplexer) consume(ctx context.Context, sess venue.Session) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sess.Events():
			if !ok {
				return
			}
			m.handleEvent(event)
		}
	}
}

func (m *Multiplexer) handleEvent(event venue.Event) {
	id, err := m.registry.CanonicalOf(m.venueID, event.Symbol)
	if err != nil {
		m.unmapped.Add(1)
		return
	}

	entry := schema.BookEntry{
		Venue: m.venueID, ID: id, Source: schema.SourceStream,
		Bid: event.Bid, BidSize: event.BidSize,
		Ask: event.Ask, AskSize: event.AskSize,
		Last: event.Last, LastSize: event.LastSize,
		EventTime:  event.EventTime,
		IngestTime: time.Now(),
		Seq:        m.nextSeq(id),
	}
	if _, _, err := m.store.Apply(entry); err != nil {
		m.rollbackSeq(id)
	}
}

func (m *Multiplexer) nextSeq(id schema.CanonicalId) uint64 {
	m.seqMu.Lock()
	defer m.seqMu.Unlock()
	m.seqs[id]++
	return m.seqs[id]
}

func (m *Multiplexer) rollbackSeq(id schema.CanonicalId) {
	m.seqMu.Lock()
	defer m.seqMu.Unlock()
	if m.seqs[id] > 0 {
		m.seqs[id]--
	}
}

// UnmappedCount reports how many events were dropped for lacking a registry
// mapping (spec.md §8 boundary behavior).
func (m *Multiplexer) UnmappedCount() uint64 { return m.unmapped.Load() }

func (m *Multiplexer) sleepBackoff(ctx context.Context, bo *backoff.ExponentialBackOff) bool {
	d := bo.NextBackOff()
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Close cancels the multiplexer's Run loop and waits for it to exit.
func (m *Multiplexer) Close() {
	if m.cancel != nil {
		m.cancel()
	}
	<-m.done
}
