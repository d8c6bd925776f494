package schema

import (
	"testing"
	"time"

	"github.com/nyxfeed/spreadwatch/internal/money"
)

func mustParse(t *testing.T, s string) money.Decimal {
	t.Helper()
	d, ok := money.Parse(s)
	if !ok {
		t.Fatalf("parse %q failed", s)
	}
	return d
}

func TestBookEntryValidateRejectsCrossedBook(t *testing.T) {
	entry := BookEntry{
		Bid:     mustParse(t, "100"),
		BidSize: mustParse(t, "1"),
		Ask:     mustParse(t, "99"),
		AskSize: mustParse(t, "1"),
	}
	if err := entry.Validate(); err == nil {
		t.Fatalf("expected crossed book to fail validation")
	}
}

func TestBookEntryMidFallsBackToLast(t *testing.T) {
	entry := BookEntry{Last: mustParse(t, "42")}
	mid, ok := entry.Mid()
	if !ok {
		t.Fatalf("expected mid to be computable from last")
	}
	if mid.Format(0) != "42" {
		t.Fatalf("expected mid 42, got %s", mid.Format(0))
	}
}

func TestBookEntryFreshnessTiers(t *testing.T) {
	now := time.Now()
	entry := BookEntry{IngestTime: now.Add(-3 * time.Second)}
	got := entry.Freshness(now, 2*time.Second, 5*time.Second)
	if got != FreshnessAmber {
		t.Fatalf("expected amber tier, got %s", got)
	}
}

func TestBookEntryStale(t *testing.T) {
	now := time.Now()
	entry := BookEntry{IngestTime: now.Add(-10 * time.Second)}
	if !entry.Stale(now, 5*time.Second) {
		t.Fatalf("expected entry to be stale")
	}
}
