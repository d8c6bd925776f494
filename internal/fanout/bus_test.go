package fanout

import (
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

func bookUpdate(t *testing.T, seq uint64) schema.Update {
	return schema.NewBookUpdate(schema.BookEntry{
		Venue: "a", ID: "BTC-USDC-PERP", Source: schema.SourceStream,
		Bid: mustPrice(t, "100"), Ask: mustPrice(t, "101"), Seq: seq,
	}, seq-1)
}

func TestConflateLatestDropsIntermediateValuesUnderPressure(t *testing.T) {
	bus := New(1) // capacity 1 forces the subscriber's deliveryLoop to lag
	sub := bus.Subscribe(nil)
	defer sub.Close()

	for seq := uint64(1); seq <= 5; seq++ {
		bus.Publish(bookUpdate(t, seq))
	}

	time.Sleep(50 * time.Millisecond) // let the delivery loop drain what it can

	var lastSeen uint64
	draining := true
	for draining {
		select {
		case u := <-sub.Updates():
			lastSeen = u.Book.Entry.Seq
		case <-time.After(200 * time.Millisecond):
			draining = false
		}
	}
	if lastSeen != 5 {
		t.Fatalf("expected the subscriber to eventually see the latest seq 5, got %d", lastSeen)
	}
}

func TestPerKeyDeliveryIsMonotonicInSeq(t *testing.T) {
	bus := New(64)
	sub := bus.Subscribe(nil)
	defer sub.Close()

	for seq := uint64(1); seq <= 10; seq++ {
		bus.Publish(bookUpdate(t, seq))
		time.Sleep(time.Millisecond)
	}

	var last uint64
	for i := 0; i < 10; i++ {
		select {
		case u := <-sub.Updates():
			if u.Book.Entry.Seq <= last {
				t.Fatalf("expected strictly increasing seq, got %d after %d", u.Book.Entry.Seq, last)
			}
			last = u.Book.Entry.Seq
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for update %d", i)
		}
	}
}

func TestFilterExcludesNonMatchingUpdates(t *testing.T) {
	bus := New(8)
	sub := bus.Subscribe(func(u schema.Update) bool {
		return u.Kind == schema.UpdateKindSpread
	})
	defer sub.Close()

	bus.Publish(bookUpdate(t, 1))
	bus.Publish(schema.NewSpreadUpdate(schema.SpreadSummary{ID: "BTC-USDC-PERP"}))

	select {
	case u := <-sub.Updates():
		if u.Kind != schema.UpdateKindSpread {
			t.Fatalf("expected only spread updates, got %s", u.Kind)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for spread update")
	}

	select {
	case u, ok := <-sub.Updates():
		if ok {
			t.Fatalf("expected no further updates, got %v", u)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCloseIsIdempotentAndStopsDelivery(t *testing.T) {
	bus := New(8)
	sub := bus.Subscribe(nil)
	sub.Close()
	sub.Close() // must not panic

	if bus.SubscriberCount() != 0 {
		t.Fatalf("expected subscriber count 0 after close, got %d", bus.SubscriberCount())
	}
}
