package schema

import (
	"time"

	"github.com/nyxfeed/spreadwatch/errs"
	"github.com/nyxfeed/spreadwatch/internal/money"
)

// Source marks which path produced a BookEntry: a live stream, a poller, or
// the store's own expiry sweep (a tombstone left after the stream goes
// stale). Stream and polled are distinct store slots per (venue, id); they
// never overwrite one another.
type Source string

const (
	SourceStream Source = "stream"
	SourcePolled Source = "polled"
	SourceStale  Source = "stale"
)

// BookEntry is the in-memory top-of-book row for one (venue, CanonicalId,
// Source) slot.
type BookEntry struct {
	Venue    VenueId
	ID       CanonicalId
	Bid      money.Price
	BidSize  money.Qty
	Ask      money.Price
	AskSize  money.Qty
	Last     money.Price
	LastSize money.Qty

	EventTime  time.Time
	IngestTime time.Time

	Source Source
	// Seq is monotonically increasing per (Venue, ID, Source).
	Seq uint64

	// Tombstone marks an entry retired by expiry or poller cancellation; its
	// price/size fields retain the last-known values for display.
	Tombstone bool
}

// HasBid reports whether a bid price/size pair is present.
func (b BookEntry) HasBid() bool { return b.Bid.Valid() && b.BidSize.Valid() }

// HasAsk reports whether an ask price/size pair is present.
func (b BookEntry) HasAsk() bool { return b.Ask.Valid() && b.AskSize.Valid() }

// Mid returns (bid+ask)/2 when both sides are present, else falls back to
// Last. The second return is false when neither side nor Last is available.
func (b BookEntry) Mid() (money.Price, bool) {
	if b.HasBid() && b.HasAsk() {
		return b.Bid.Add(b.Ask).Half(), true
	}
	if b.Last.Valid() {
		return b.Last, true
	}
	return money.Price{}, false
}

// Validate enforces the bid <= ask invariant when both sides are present.
func (b BookEntry) Validate() error {
	if b.HasBid() && b.HasAsk() && b.Bid.Cmp(b.Ask) > 0 {
		return errs.New("schema/book_entry", errs.CodeProtocol,
			errs.WithMessage("bid exceeds ask"),
			errs.WithField("venue", string(b.Venue)),
			errs.WithField("id", string(b.ID)))
	}
	return nil
}

// FreshnessTier classifies the age of an entry relative to the supplied
// ingest reference time, using declared green/amber thresholds (spec.md
// §4.2: these tiers are configuration data, never hard-coded).
type FreshnessTier string

const (
	FreshnessGreen FreshnessTier = "green"
	FreshnessAmber FreshnessTier = "amber"
	FreshnessRed   FreshnessTier = "red"
)

// Freshness classifies b's age as of now, given the green/amber thresholds.
func (b BookEntry) Freshness(now time.Time, green, amber time.Duration) FreshnessTier {
	age := now.Sub(b.IngestTime)
	switch {
	case age < green:
		return FreshnessGreen
	case age < amber:
		return FreshnessAmber
	default:
		return FreshnessRed
	}
}

// Stale reports whether b's ingest time is older than staleAfter relative to
// now; stale entries are excluded from spread computation (spec.md §4.4).
func (b BookEntry) Stale(now time.Time, staleAfter time.Duration) bool {
	return now.Sub(b.IngestTime) >= staleAfter
}
