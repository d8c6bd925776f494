package fake

import (
	"context"
	"testing"
	"time"

	"github.com/nyxfeed/spreadwatch/internal/money"
	"github.com/nyxfeed/spreadwatch/internal/schema"
)

func mustPrice(t *testing.T, s string) money.Price {
	t.Helper()
	d, ok := money.Parse(s)
	if !ok {
		t.Fatalf("parse %q failed", s)
	}
	return d
}

func TestAdapterEmitsTicksForSubscribedSymbols(t *testing.T) {
	a := New(Options{
		Venue:        "fake",
		TickInterval: 10 * time.Millisecond,
		Quotes: map[schema.VenueSymbol]Quote{
			"BTC_USDC_PERP": {Mid: mustPrice(t, "50000"), HalfSpread: mustPrice(t, "1"), Size: mustPrice(t, "1")},
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess, err := a.OpenStream(ctx)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer sess.Close()

	if err := a.Subscribe(ctx, sess, "BTC_USDC_PERP", schema.ChannelBook); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	select {
	case ev := <-sess.Events():
		if ev.Symbol != "BTC_USDC_PERP" {
			t.Fatalf("unexpected symbol %s", ev.Symbol)
		}
		if ev.Bid.Cmp(ev.Ask) >= 0 {
			t.Fatalf("expected bid < ask, got bid=%s ask=%s", ev.Bid.Format(2), ev.Ask.Format(2))
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for tick")
	}
}

func TestFetchSnapshotUnknownSymbolFails(t *testing.T) {
	a := New(Options{Venue: "fake"})
	_, err := a.FetchSnapshot(context.Background(), "NOPE")
	if err == nil {
		t.Fatalf("expected error for unknown symbol")
	}
}

func TestDisconnectTerminatesSession(t *testing.T) {
	a := New(Options{
		Venue:        "fake",
		TickInterval: 5 * time.Millisecond,
		Quotes: map[schema.VenueSymbol]Quote{
			"BTC_USDC_PERP": {Mid: mustPrice(t, "50000"), HalfSpread: mustPrice(t, "1"), Size: mustPrice(t, "1")},
		},
	})
	a.Disconnect(0)

	sess, err := a.OpenStream(context.Background())
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-sess.Events():
			if !ok {
				if sess.Err() == nil {
					t.Fatalf("expected session error after disconnect")
				}
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for disconnect to close session")
		}
	}
}
