// Package spread implements the Spread Engine (spec.md §4.4): recomputes a
// live cross-venue SpreadSummary per CanonicalId whenever a book change
// touches that id, and classifies it quiet / elevated / arbitrage_candidate
// / insufficient_data. Grounded on the teacher's internal/app/lambda/core
// mid-price computation pattern, generalized here from a single ticker's
// mid to an N-venue max-spread-pair computation, and on the event-driven
// recompute shape of conductor/orchestrator.go (subscribe to a stream,
// react, emit a derived message).
package spread

import (
	"sort"
	"sync"
	"time"

	"github.com/nyxfeed/spreadwatch/internal/book"
	"github.com/nyxfeed/spreadwatch/internal/money"
	"github.com/nyxfeed/spreadwatch/internal/schema"
)

// Publisher is the engine's fan-out collaborator.
type Publisher interface {
	Publish(schema.Update)
}

// Thresholds are the declared classification/freshness config (spec.md §6).
type Thresholds struct {
	ElevatedPct  money.Price // e.g. 0.1%
	ArbitragePct money.Price // e.g. 0.5%
	StaleAfter   time.Duration
	AnchorVenue  schema.VenueId
}

type freshMid struct {
	venue schema.VenueId
	mid   money.Price
	bid   money.Price
	ask   money.Price
	hasBA bool
}

// Engine is the Spread Engine. It keeps no SpreadSummary history; per
// CanonicalId it only remembers whether it has ever classified that id from
// two or more fresh venues.
type Engine struct {
	store      *book.Store
	publisher  Publisher
	thresholds Thresholds
	now        func() time.Time

	mu         sync.Mutex
	classified map[schema.CanonicalId]bool
}

// New constructs a Spread Engine reading book state from store and
// publishing SpreadUpdate messages through publisher.
func New(store *book.Store, publisher Publisher, thresholds Thresholds) *Engine {
	return &Engine{store: store, publisher: publisher, thresholds: thresholds, now: time.Now}
}

// Recompute reevaluates the SpreadSummary for id from the Book Store's
// current preferred entries across participating venues, and publishes a
// SpreadUpdate. With fewer than two fresh venues the classification is
// insufficient_data, and that summary is published only for an id that has
// had a classified summary before (from the 2→1 transition on); an id that
// has never had two fresh venues produces no SpreadUpdate.
func (e *Engine) Recompute(id schema.CanonicalId) schema.SpreadSummary {
	entries := e.store.SnapshotByID(id)
	now := e.now()

	summary := schema.SpreadSummary{
		ID:        id,
		MidPrices: make(map[schema.VenueId]money.Price),
		UpdatedAt: now,
	}

	fresh := make([]freshMid, 0, len(entries))

	venues := make([]schema.VenueId, 0, len(entries))
	for v := range entries {
		venues = append(venues, v)
	}
	sort.Slice(venues, func(i, j int) bool { return venues[i] < venues[j] })

	for _, v := range venues {
		entry := entries[v]
		stale := entry.Tombstone || entry.Stale(now, e.thresholds.StaleAfter)
		summary.Participating = append(summary.Participating, schema.Participant{Venue: v, Stale: stale})
		if stale {
			continue
		}
		mid, ok := entry.Mid()
		if !ok {
			continue
		}
		summary.MidPrices[v] = mid
		fresh = append(fresh, freshMid{
			venue: v, mid: mid,
			bid: entry.Bid, ask: entry.Ask, hasBA: entry.HasBid() && entry.HasAsk(),
		})
	}

	if len(fresh) < 2 {
		summary.Classification = schema.ClassificationInsufficientData
		// Published for an id that has been classified before: a poller
		// armed against this id needs it to reach OnSpreadUpdate so its
		// dwell-disarm timer can start and, on a later recompute, elapse
		// (spec.md §8 scenario 6 / the "last SpreadSummary emitted... has
		// classification insufficient_data" edge case). An id that has never
		// had two fresh venues publishes nothing (spec.md §8 single-venue
		// boundary).
		e.mu.Lock()
		wasClassified := e.classified[id]
		e.mu.Unlock()
		if wasClassified && e.publisher != nil {
			e.publisher.Publish(schema.NewSpreadUpdate(summary))
		}
		return summary
	}

	summary.BestBidVenue, summary.BestAskVenue = bestBidAsk(fresh)

	maxAbs := fresh[0].mid.Sub(fresh[0].mid) // zero, correctly-initialized Decimal
	var maxPair schema.VenuePair
	var maxPct money.Price
	found := false

	for i := 0; i < len(fresh); i++ {
		for j := i + 1; j < len(fresh); j++ {
			a, b := fresh[i], fresh[j]
			abs := a.mid.Sub(b.mid).Abs()
			denom := a.mid.Min(b.mid)
			pct := abs.Sub(abs) // zero, correctly-initialized Decimal
			if denom.Sign() != 0 {
				pct = abs.Quo(denom)
			}
			pair := orderedPair(a.venue, b.venue)
			if !found || abs.Cmp(maxAbs) > 0 || (abs.Cmp(maxAbs) == 0 && lexLess(pair, maxPair)) {
				found = true
				maxAbs = abs
				maxPct = pct
				maxPair = pair
			}
		}
	}

	summary.MaxSpreadAbs = maxAbs
	summary.MaxSpreadPct = maxPct
	summary.MaxPair = maxPair
	summary.Classification = e.classify(maxPct, summary.Participating)

	e.mu.Lock()
	if e.classified == nil {
		e.classified = make(map[schema.CanonicalId]bool)
	}
	e.classified[id] = true
	e.mu.Unlock()

	if e.publisher != nil {
		e.publisher.Publish(schema.NewSpreadUpdate(summary))
	}
	return summary
}

func (e *Engine) classify(maxPct money.Price, participants []schema.Participant) schema.Classification {
	anchorParticipates := false
	for _, p := range participants {
		if p.Venue == e.thresholds.AnchorVenue && !p.Stale {
			anchorParticipates = true
			break
		}
	}

	if maxPct.Cmp(e.thresholds.ArbitragePct) >= 0 && anchorParticipates {
		return schema.ClassificationArbitrageCandidate
	}
	if maxPct.Cmp(e.thresholds.ElevatedPct) >= 0 {
		return schema.ClassificationElevated
	}
	return schema.ClassificationQuiet
}

func bestBidAsk(fresh []freshMid) (schema.VenueId, schema.VenueId) {
	var bestBidVenue, bestAskVenue schema.VenueId
	var bestBid, bestAsk money.Price
	haveBid, haveAsk := false, false
	for _, f := range fresh {
		if !f.hasBA {
			continue
		}
		if !haveBid || f.bid.Cmp(bestBid) > 0 {
			bestBid, bestBidVenue, haveBid = f.bid, f.venue, true
		}
		if !haveAsk || f.ask.Cmp(bestAsk) < 0 {
			bestAsk, bestAskVenue, haveAsk = f.ask, f.venue, true
		}
	}
	return bestBidVenue, bestAskVenue
}

// orderedPair returns (a, b) sorted lexicographically, the tie-break the
// spec requires for pair selection (spec.md §4.4).
func orderedPair(a, b schema.VenueId) schema.VenuePair {
	if a <= b {
		return schema.VenuePair{A: a, B: b}
	}
	return schema.VenuePair{A: b, B: a}
}

func lexLess(a, b schema.VenuePair) bool {
	if a.A != b.A {
		return a.A < b.A
	}
	return a.B < b.B
}
