package polling

import (
	"context"
	"testing"
	"time"

	"github.com/nyxfeed/spreadwatch/internal/book"
	"github.com/nyxfeed/spreadwatch/internal/money"
	"github.com/nyxfeed/spreadwatch/internal/registry"
	"github.com/nyxfeed/spreadwatch/internal/schema"
	"github.com/nyxfeed/spreadwatch/internal/venue"
	"github.com/nyxfeed/spreadwatch/internal/venue/fake"
)

func mustPrice(t *testing.T, s string) money.Price {
	t.Helper()
	d, ok := money.Parse(s)
	if !ok {
		t.Fatalf("parse %q failed", s)
	}
	return d
}

func newFixture(t *testing.T, cfg Config) (*Controller, *book.Store) {
	t.Helper()
	reg := registry.New()
	if err := reg.Register("b", "BTCUSDC", "BTC-USDC-PERP"); err != nil {
		t.Fatalf("register: %v", err)
	}
	store := book.New(nil, 0)
	adapter := fake.New(fake.Options{
		Venue: "b",
		Quotes: map[schema.VenueSymbol]fake.Quote{
			"BTCUSDC": {Mid: mustPrice(t, "50300"), HalfSpread: mustPrice(t, "1"), Size: mustPrice(t, "1")},
		},
	})
	cfg.Interval = 5 * time.Millisecond
	cfg.RESTRatePerSecond = 1000
	adapters := map[schema.VenueId]venue.Adapter{"b": adapter}
	c := New(store, reg, adapters, nil, cfg)
	return c, store
}

func arbSummary(id schema.CanonicalId, anchor schema.VenueId) schema.SpreadSummary {
	return schema.SpreadSummary{
		ID: id,
		Participating: []schema.Participant{
			{Venue: "a"}, {Venue: anchor},
		},
		Classification: schema.ClassificationArbitrageCandidate,
	}
}

func quietSummary(id schema.CanonicalId, anchor schema.VenueId) schema.SpreadSummary {
	return schema.SpreadSummary{
		ID:            id,
		Participating: []schema.Participant{{Venue: "a"}, {Venue: anchor}},
		Classification: schema.ClassificationQuiet,
	}
}

func TestArmSpawnsPollerThatWritesPolledEntries(t *testing.T) {
	c, store := newFixture(t, Config{DwellTime: 50 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.OnSpreadUpdate(ctx, "b", arbSummary("BTC-USDC-PERP", "b"))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := store.Get("b", "BTC-USDC-PERP", schema.SourcePolled); ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected armed poller to write a polled entry")
}

func TestDisarmRequiresDwellTimeBeforeTombstoning(t *testing.T) {
	c, store := newFixture(t, Config{DwellTime: 80 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.OnSpreadUpdate(ctx, "b", arbSummary("BTC-USDC-PERP", "b"))
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := store.Get("b", "BTC-USDC-PERP", schema.SourcePolled); ok {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Condition lapses: immediate disarm must NOT happen before dwell time.
	c.OnSpreadUpdate(ctx, "b", quietSummary("BTC-USDC-PERP", "b"))
	if len(c.Assignments()) == 0 {
		t.Fatalf("expected assignment to survive a single lapsed evaluation (dwell not yet elapsed)")
	}

	time.Sleep(120 * time.Millisecond)
	c.OnSpreadUpdate(ctx, "b", quietSummary("BTC-USDC-PERP", "b"))
	if len(c.Assignments()) != 0 {
		t.Fatalf("expected assignment to be disarmed once dwell time elapses")
	}

	entry, ok := store.Get("b", "BTC-USDC-PERP", schema.SourcePolled)
	if !ok || !entry.Tombstone {
		t.Fatalf("expected polled slot to be tombstoned on disarm, got ok=%v tombstone=%v", ok, entry.Tombstone)
	}
}

func TestAnchorNotParticipatingNeverArms(t *testing.T) {
	c, store := newFixture(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	summary := schema.SpreadSummary{
		ID:             "BTC-USDC-PERP",
		Participating:  []schema.Participant{{Venue: "a"}, {Venue: "c"}},
		Classification: schema.ClassificationArbitrageCandidate,
	}
	c.OnSpreadUpdate(ctx, "b", summary)

	time.Sleep(30 * time.Millisecond)
	if _, ok := store.Get("b", "BTC-USDC-PERP", schema.SourcePolled); ok {
		t.Fatalf("expected no poller armed when anchor venue is not participating")
	}
	if len(c.Assignments()) != 0 {
		t.Fatalf("expected zero armed assignments")
	}
}
