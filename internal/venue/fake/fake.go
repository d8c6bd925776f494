// Package fake provides a deterministic synthetic venue for tests and local
// development. Grounded on the teacher's internal/adapters/fake.Provider
// (timer-driven synthetic tick generation, injected latency/error/
// disconnect behavior), trimmed to the market-data-only surface this domain
// needs: no order matching, no balances, no execution reports.
package fake

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/nyxfeed/spreadwatch/errs"
	"github.com/nyxfeed/spreadwatch/internal/money"
	"github.com/nyxfeed/spreadwatch/internal/schema"
	"github.com/nyxfeed/spreadwatch/internal/venue"
)

// Quote is a scriptable mid/spread for one instrument; the adapter derives
// bid/ask from it plus a small synthetic wobble on each tick.
type Quote struct {
	Mid        money.Price
	HalfSpread money.Price
	Size       money.Qty
}

// Options configures a fake Adapter instance.
type Options struct {
	Venue        schema.VenueId
	TickInterval time.Duration
	Seed         int64
	Quotes       map[schema.VenueSymbol]Quote
}

// Adapter is a deterministic in-memory venue.Adapter implementation.
type Adapter struct {
	venueID      schema.VenueId
	tickInterval time.Duration

	mu     sync.Mutex
	quotes map[schema.VenueSymbol]Quote
	rng    *rand.Rand

	disconnectMu sync.Mutex
	disconnectAt time.Time
}

// New constructs a fake Adapter. Quotes may be mutated at runtime via
// SetQuote to script book movement from a test.
func New(opts Options) *Adapter {
	interval := opts.TickInterval
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	quotes := make(map[schema.VenueSymbol]Quote, len(opts.Quotes))
	for k, v := range opts.Quotes {
		quotes[k] = v
	}
	seed := opts.Seed
	if seed == 0 {
		seed = 1
	}
	return &Adapter{
		venueID:      opts.Venue,
		tickInterval: interval,
		quotes:       quotes,
		rng:          rand.New(rand.NewSource(seed)),
	}
}

func (a *Adapter) VenueID() schema.VenueId { return a.venueID }

// SetQuote scripts or updates the quote for one venue-native symbol.
func (a *Adapter) SetQuote(symbol schema.VenueSymbol, q Quote) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.quotes[symbol] = q
}

// Disconnect schedules the current (or next opened) session to terminate
// after d, simulating a venue-side drop.
func (a *Adapter) Disconnect(d time.Duration) {
	a.disconnectMu.Lock()
	a.disconnectAt = time.Now().Add(d)
	a.disconnectMu.Unlock()
}

func (a *Adapter) ListInstruments(ctx context.Context) ([]schema.VenueSymbol, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]schema.VenueSymbol, 0, len(a.quotes))
	for symbol := range a.quotes {
		out = append(out, symbol)
	}
	return out, nil
}

type session struct {
	adapter *Adapter
	ctx     context.Context
	cancel  context.CancelFunc

	subsMu sync.Mutex
	subs   map[schema.VenueSymbol]struct{}

	events chan venue.Event
	errMu  sync.Mutex
	err    error
	closed chan struct{}
}

func (a *Adapter) OpenStream(ctx context.Context) (venue.Session, error) {
	sctx, cancel := context.WithCancel(ctx)
	s := &session{
		adapter: a,
		ctx:     sctx,
		cancel:  cancel,
		subs:    make(map[schema.VenueSymbol]struct{}),
		events:  make(chan venue.Event, 64),
		closed:  make(chan struct{}),
	}
	go s.run()
	return s, nil
}

func (s *session) Events() <-chan venue.Event { return s.events }

func (s *session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *session) Close() error {
	s.cancel()
	<-s.closed
	return nil
}

func (s *session) setErr(err error) {
	s.errMu.Lock()
	s.err = err
	s.errMu.Unlock()
}

func (s *session) run() {
	defer close(s.closed)
	defer close(s.events)

	ticker := time.NewTicker(s.adapter.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.setErr(s.ctx.Err())
			return
		case <-ticker.C:
			s.adapter.disconnectMu.Lock()
			deadline := s.adapter.disconnectAt
			s.adapter.disconnectMu.Unlock()
			if !deadline.IsZero() && !time.Now().Before(deadline) {
				s.setErr(errs.New("venue/fake", errs.CodeTransient, errs.WithMessage("simulated disconnect")))
				return
			}
			s.emitTicks()
		}
	}
}

func (s *session) emitTicks() {
	s.subsMu.Lock()
	symbols := make([]schema.VenueSymbol, 0, len(s.subs))
	for symbol := range s.subs {
		symbols = append(symbols, symbol)
	}
	s.subsMu.Unlock()

	for _, symbol := range symbols {
		event, ok := s.adapter.tick(symbol)
		if !ok {
			continue
		}
		select {
		case s.events <- event:
		case <-s.ctx.Done():
			return
		}
	}
}

func (a *Adapter) tick(symbol schema.VenueSymbol) (venue.Event, bool) {
	a.mu.Lock()
	q, ok := a.quotes[symbol]
	a.mu.Unlock()
	if !ok {
		return venue.Event{}, false
	}

	a.mu.Lock()
	// wobble is a small tick-sized nudge (in basis points of the half
	// spread) so successive ticks aren't byte-identical, without needing
	// float<->Decimal conversion at the wire boundary.
	wobbleBps := a.rng.Intn(21) - 10 // [-10, 10]
	a.mu.Unlock()

	wobble := q.HalfSpread.Mul(money.FromInt64(int64(wobbleBps))).Quo(money.FromInt64(10000))
	mid := q.Mid.Add(wobble)
	bid := mid.Sub(q.HalfSpread)
	ask := mid.Add(q.HalfSpread)

	return venue.Event{
		Kind:      venue.EventBook,
		Symbol:    symbol,
		Bid:       bid,
		BidSize:   q.Size,
		Ask:       ask,
		AskSize:   q.Size,
		EventTime: time.Now(),
	}, true
}

func (a *Adapter) Subscribe(ctx context.Context, sess venue.Session, symbol schema.VenueSymbol, channel schema.Channel) error {
	s, ok := sess.(*session)
	if !ok {
		return errs.New("venue/fake", errs.CodeInvariant, errs.WithMessage("foreign session handle"))
	}
	s.subsMu.Lock()
	s.subs[symbol] = struct{}{}
	s.subsMu.Unlock()
	return nil
}

func (a *Adapter) Unsubscribe(ctx context.Context, sess venue.Session, symbol schema.VenueSymbol, channel schema.Channel) error {
	s, ok := sess.(*session)
	if !ok {
		return errs.New("venue/fake", errs.CodeInvariant, errs.WithMessage("foreign session handle"))
	}
	s.subsMu.Lock()
	delete(s.subs, symbol)
	s.subsMu.Unlock()
	return nil
}

func (a *Adapter) FetchSnapshot(ctx context.Context, symbol schema.VenueSymbol) (venue.Snapshot, error) {
	a.mu.Lock()
	q, ok := a.quotes[symbol]
	a.mu.Unlock()
	if !ok {
		return venue.Snapshot{}, errs.New("venue/fake", errs.CodeMapping,
			errs.WithMessage("unknown symbol"), errs.WithField("symbol", fmt.Sprint(symbol)))
	}
	return venue.Snapshot{
		Bid:       q.Mid.Sub(q.HalfSpread),
		BidSize:   q.Size,
		Ask:       q.Mid.Add(q.HalfSpread),
		AskSize:   q.Size,
		EventTime: time.Now(),
	}, nil
}
