package spread

import (
	"testing"
	"time"

	"github.com/nyxfeed/spreadwatch/internal/book"
	"github.com/nyxfeed/spreadwatch/internal/money"
	"github.com/nyxfeed/spreadwatch/internal/schema"
)

type recordingPublisher struct {
	updates []schema.SpreadSummary
}

func (p *recordingPublisher) Publish(u schema.Update) {
	if u.Spread != nil {
		p.updates = append(p.updates, u.Spread.Summary)
	}
}

func mustPrice(t *testing.T, s string) money.Price {
	t.Helper()
	d, ok := money.Parse(s)
	if !ok {
		t.Fatalf("parse %q failed", s)
	}
	return d
}

func pctThreshold(t *testing.T, s string) money.Price {
	return mustPrice(t, s)
}

func newFixture(t *testing.T) (*book.Store, *Engine, *recordingPublisher) {
	t.Helper()
	store := book.New(nil, 0)
	pub := &recordingPublisher{}
	th := Thresholds{
		ElevatedPct:  pctThreshold(t, "0.001"), // 0.1%
		ArbitragePct: pctThreshold(t, "0.005"), // 0.5%
		StaleAfter:   30 * time.Second,
		AnchorVenue:  "A",
	}
	return store, New(store, pub, th), pub
}

func apply(t *testing.T, store *book.Store, venue schema.VenueId, bid, ask string, seq uint64) {
	t.Helper()
	entry := schema.BookEntry{
		Venue: venue, ID: "BTC-USDC-PERP", Source: schema.SourceStream,
		Bid: mustPrice(t, bid), BidSize: mustPrice(t, "1"),
		Ask: mustPrice(t, ask), AskSize: mustPrice(t, "1"),
		IngestTime: time.Now(), EventTime: time.Now(), Seq: seq,
	}
	if _, _, err := store.Apply(entry); err != nil {
		t.Fatalf("apply %s: %v", venue, err)
	}
}

func TestScenario1TwoVenueStableQuoteIsQuiet(t *testing.T) {
	store, engine, pub := newFixture(t)
	apply(t, store, "A", "50000", "50002", 1)
	apply(t, store, "B", "50010", "50012", 1)

	summary := engine.Recompute("BTC-USDC-PERP")
	if summary.Classification != schema.ClassificationQuiet {
		t.Fatalf("expected quiet, got %s", summary.Classification)
	}
	if len(pub.updates) != 1 {
		t.Fatalf("expected exactly one SpreadUpdate, got %d", len(pub.updates))
	}
}

func TestScenario2ElevatedBelowArbitrage(t *testing.T) {
	store, engine, _ := newFixture(t)
	apply(t, store, "A", "50000", "50002", 1)
	// B's mid diverges from A's by ~0.12%, comfortably inside
	// [elevated=0.1%, arbitrage=0.5%) under exact arithmetic (the spec's own
	// "≈0.10%" example sits within rounding distance of the boundary itself).
	apply(t, store, "B", "50060", "50062", 1)

	summary := engine.Recompute("BTC-USDC-PERP")
	if summary.Classification != schema.ClassificationElevated {
		t.Fatalf("expected elevated, got %s (pct=%s)", summary.Classification, summary.MaxSpreadPct.Format(6))
	}
}

func TestScenario3ArbitrageCandidateWithAnchor(t *testing.T) {
	store, engine, _ := newFixture(t)
	apply(t, store, "A", "50000", "50002", 1)
	apply(t, store, "B", "50300", "50302", 1)

	summary := engine.Recompute("BTC-USDC-PERP")
	if summary.Classification != schema.ClassificationArbitrageCandidate {
		t.Fatalf("expected arbitrage_candidate, got %s (pct=%s)", summary.Classification, summary.MaxSpreadPct.Format(6))
	}
	if summary.MaxPair.A != "A" || summary.MaxPair.B != "B" {
		t.Fatalf("expected max pair (A,B), got (%s,%s)", summary.MaxPair.A, summary.MaxPair.B)
	}
}

func TestScenario4DisarmReturnsToQuiet(t *testing.T) {
	store, engine, _ := newFixture(t)
	apply(t, store, "A", "50000", "50002", 1)
	apply(t, store, "B", "50300", "50302", 1)
	if s := engine.Recompute("BTC-USDC-PERP"); s.Classification != schema.ClassificationArbitrageCandidate {
		t.Fatalf("precondition: expected arbitrage_candidate, got %s", s.Classification)
	}

	apply(t, store, "B", "50010", "50012", 2)
	summary := engine.Recompute("BTC-USDC-PERP")
	if summary.Classification != schema.ClassificationQuiet {
		t.Fatalf("expected quiet after reverting, got %s", summary.Classification)
	}
}

func TestScenario5CrossVenueSymbolUnificationSameSummary(t *testing.T) {
	store, engine, _ := newFixture(t)
	apply(t, store, "A", "50000", "50002", 1)
	apply(t, store, "B", "50010", "50012", 1)
	apply(t, store, "C", "50020", "50022", 1)

	summary := engine.Recompute("BTC-USDC-PERP")
	if len(summary.Participating) != 3 {
		t.Fatalf("expected 3 participating venues, got %d", len(summary.Participating))
	}
}

func TestScenario6StaleVenueDropsToInsufficientData(t *testing.T) {
	store, engine, _ := newFixture(t)
	entryA := schema.BookEntry{
		Venue: "A", ID: "BTC-USDC-PERP", Source: schema.SourceStream,
		Bid: mustPrice(t, "50000"), BidSize: mustPrice(t, "1"),
		Ask: mustPrice(t, "50002"), AskSize: mustPrice(t, "1"),
		IngestTime: time.Now().Add(-time.Minute), Seq: 1,
	}
	if _, _, err := store.Apply(entryA); err != nil {
		t.Fatalf("apply A: %v", err)
	}
	apply(t, store, "B", "50010", "50012", 1)

	summary := engine.Recompute("BTC-USDC-PERP")
	if summary.Classification != schema.ClassificationInsufficientData {
		t.Fatalf("expected insufficient_data with only B fresh, got %s", summary.Classification)
	}
	foundStaleA := false
	for _, p := range summary.Participating {
		if p.Venue == "A" && p.Stale {
			foundStaleA = true
		}
	}
	if !foundStaleA {
		t.Fatalf("expected A listed as stale participant")
	}
}

func TestSingleVenueNeverProducesSpreadUpdate(t *testing.T) {
	store, engine, pub := newFixture(t)
	apply(t, store, "A", "50000", "50002", 1)

	summary := engine.Recompute("BTC-USDC-PERP")
	if summary.Classification != schema.ClassificationInsufficientData {
		t.Fatalf("expected insufficient_data for a single venue, got %s", summary.Classification)
	}
	if len(pub.updates) != 0 {
		t.Fatalf("expected no SpreadUpdate published for a single venue, got %d", len(pub.updates))
	}
}
