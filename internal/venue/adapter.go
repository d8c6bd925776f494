// Package venue defines the Venue Adapter contract (spec.md §6): the
// narrow capability surface every venue implementation must satisfy so the
// Stream Multiplexer and Polling Controller never touch venue-specific wire
// formats. Grounded on the teacher's internal/provider.Instance interface,
// generalized here from execution-oriented methods to the market-data-only
// surface the spec requires.
package venue

import (
	"context"
	"time"

	"github.com/nyxfeed/spreadwatch/internal/money"
	"github.com/nyxfeed/spreadwatch/internal/schema"
)

// EventKind distinguishes a normalized stream event's payload shape.
type EventKind string

const (
	EventBook  EventKind = "book"
	EventTrade EventKind = "trade"
)

// Event is the closed set of normalized event variants crossing the
// adapter boundary (spec.md §9: "forbid free-form dictionaries to cross
// into the core"). Any price/size field may be absent (zero Decimal) on a
// given event; Adapter implementations set only the fields the underlying
// wire message actually carried.
type Event struct {
	Kind      EventKind
	Symbol    schema.VenueSymbol
	Bid       money.Price
	BidSize   money.Qty
	Ask       money.Price
	AskSize   money.Qty
	Last      money.Price
	LastSize  money.Qty
	EventTime time.Time
}

// Snapshot is the REST-polled request/response shape the Polling
// Controller consumes (spec.md §6).
type Snapshot struct {
	Bid       money.Price
	BidSize   money.Qty
	Ask       money.Price
	AskSize   money.Qty
	EventTime time.Time
}

// Session is a live streaming handle returned by Adapter.OpenStream. Events
// arrive on Events(); Err() reports the terminal error, if any, once Events
// is closed.
type Session interface {
	Events() <-chan Event
	Err() error
	Close() error
}

// Adapter is the uniform capability surface every venue implementation
// exposes (spec.md §6 "Venue Adapter contract"). The Multiplexer and
// Polling Controller depend only on this interface, never on a concrete
// venue package, matching the teacher's provider.Instance abstraction
// (internal/provider/provider.go, deleted here because its execution-order
// methods have no home in this domain) generalized to market data only.
type Adapter interface {
	// VenueID names the venue this adapter speaks for.
	VenueID() schema.VenueId

	// ListInstruments enumerates the venue-native symbols the venue offers.
	ListInstruments(ctx context.Context) ([]schema.VenueSymbol, error)

	// OpenStream establishes a streaming session. The session's own
	// socket-level reconnection (if any) is the adapter's concern; the
	// Multiplexer handles session-level (re)subscription.
	OpenStream(ctx context.Context) (Session, error)

	// Subscribe/Unsubscribe add or remove (symbol, channel) pairs on an
	// open session.
	Subscribe(ctx context.Context, session Session, symbol schema.VenueSymbol, channel schema.Channel) error
	Unsubscribe(ctx context.Context, session Session, symbol schema.VenueSymbol, channel schema.Channel) error

	// FetchSnapshot serves the Polling Controller's REST path.
	FetchSnapshot(ctx context.Context, symbol schema.VenueSymbol) (Snapshot, error)
}
