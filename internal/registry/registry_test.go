package registry

import (
	"testing"

	"github.com/nyxfeed/spreadwatch/errs"
	"github.com/nyxfeed/spreadwatch/internal/schema"
)

func TestRegisterIdempotent(t *testing.T) {
	r := New()
	if err := r.Register("a", "BTC_USDC_PERP", "BTC-USDC-PERP"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Register("a", "BTC_USDC_PERP", "BTC-USDC-PERP"); err != nil {
		t.Fatalf("expected idempotent re-register to succeed, got %v", err)
	}
}

func TestRegisterConflictRejected(t *testing.T) {
	r := New()
	if err := r.Register("a", "BTC_USDC_PERP", "BTC-USDC-PERP"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := r.Register("a", "BTC_USDC_PERP", "ETH-USDC-PERP")
	if err == nil || !errs.Is(err, errs.CodeConfig) {
		t.Fatalf("expected config error on conflicting register, got %v", err)
	}
}

func TestCanonicalOfNotFound(t *testing.T) {
	r := New()
	_, err := r.CanonicalOf("a", "BTC_USDC_PERP")
	if err == nil || !errs.Is(err, errs.CodeMapping) {
		t.Fatalf("expected mapping error, got %v", err)
	}
}

func TestCrossVenueSymbolUnification(t *testing.T) {
	// spec.md §8 scenario 5: A uses colon-suffixed, B uses underscore
	// triple, C uses a USDT-quoted underscore triple equivalent to USDC.
	r := New()
	quoteEquiv := map[string]string{"USDT": "USDC"}

	idA, err := Derive("BTC/USDC:PERP", StyleColonSuffixed, quoteEquiv)
	if err != nil {
		t.Fatalf("derive A: %v", err)
	}
	idB, err := Derive("BTC_USDC_PERP", StyleUnderscoreTriple, quoteEquiv)
	if err != nil {
		t.Fatalf("derive B: %v", err)
	}
	idC, err := Derive("BTC_USDT_PERP", StyleUnderscoreTriple, quoteEquiv)
	if err != nil {
		t.Fatalf("derive C: %v", err)
	}
	if idA != "BTC-USDC-PERP" || idB != idA || idC != idA {
		t.Fatalf("expected all three to resolve to BTC-USDC-PERP, got %s %s %s", idA, idB, idC)
	}

	if err := r.Register("a", "BTC/USDC:PERP", idA); err != nil {
		t.Fatalf("register a: %v", err)
	}
	if err := r.Register("b", "BTC_USDC_PERP", idB); err != nil {
		t.Fatalf("register b: %v", err)
	}
	if err := r.Register("c", "BTC_USDT_PERP", idC); err != nil {
		t.Fatalf("register c: %v", err)
	}

	venues := r.VenuesFor("BTC-USDC-PERP")
	if len(venues) != 3 {
		t.Fatalf("expected 3 venues, got %d", len(venues))
	}
	for _, v := range []schema.VenueId{"a", "b", "c"} {
		if _, ok := venues[v]; !ok {
			t.Errorf("expected venue %s in venues_for result", v)
		}
	}
}

func TestNativeOfRoundTrip(t *testing.T) {
	r := New()
	if err := r.Register("a", "BTC_USDC_PERP", "BTC-USDC-PERP"); err != nil {
		t.Fatalf("register: %v", err)
	}
	native, err := r.NativeOf("BTC-USDC-PERP", "a")
	if err != nil {
		t.Fatalf("native_of: %v", err)
	}
	id, err := r.CanonicalOf("a", native)
	if err != nil {
		t.Fatalf("canonical_of: %v", err)
	}
	if id != "BTC-USDC-PERP" {
		t.Fatalf("round trip mismatch: %s", id)
	}
}

func TestNativeOfNotListed(t *testing.T) {
	r := New()
	if err := r.Register("a", "BTC_USDC_PERP", "BTC-USDC-PERP"); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err := r.NativeOf("BTC-USDC-PERP", "b")
	if err == nil || !errs.Is(err, errs.CodeMapping) {
		t.Fatalf("expected mapping error for unlisted venue, got %v", err)
	}
}
