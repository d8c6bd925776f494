package errs

import (
	"errors"
	"strings"
	"testing"
)

func TestErrorFormattingIncludesFieldsAndCause(t *testing.T) {
	err := New(
		"registry",
		CodeMapping,
		WithMessage("symbol not listed"),
		WithField("venue", "binance"),
		WithField("symbol", "BTC_USDT_PERP"),
		WithRemediation("check universe configuration"),
		WithCause(errors.New("lookup miss")),
	)

	out := err.Error()
	if !strings.Contains(out, "component=registry") {
		t.Fatalf("expected component marker in error string: %s", out)
	}
	if !strings.Contains(out, "code=mapping") {
		t.Fatalf("expected code marker in error string: %s", out)
	}
	expectedFields := "fields=symbol=\"BTC_USDT_PERP\",venue=\"binance\""
	if !strings.Contains(out, expectedFields) {
		t.Fatalf("expected fields %q in error string: %s", expectedFields, out)
	}
	if !strings.Contains(out, "remediation=\"check universe configuration\"") {
		t.Fatalf("expected remediation guidance in error string: %s", out)
	}
	if !strings.Contains(out, "cause=\"lookup miss\"") {
		t.Fatalf("expected wrapped cause in error string: %s", out)
	}
}

func TestWithFieldIgnoresBlankKey(t *testing.T) {
	err := New("book", CodeConflict, WithField("  ", "value"))
	if len(err.Fields) != 0 {
		t.Fatalf("expected blank key to be ignored, got %v", err.Fields)
	}
}

func TestIsUnwrapsNestedCause(t *testing.T) {
	inner := New("mux", CodeTransient, WithMessage("handshake timeout"))
	outer := New("supervisor", CodeInvariant, WithCause(inner))

	if !Is(outer, CodeInvariant) {
		t.Fatalf("expected outer code to match")
	}
	if !Is(outer, CodeTransient) {
		t.Fatalf("expected Is to unwrap to inner code")
	}
	if Is(outer, CodeConfig) {
		t.Fatalf("did not expect unrelated code to match")
	}
}

func TestNilErrorString(t *testing.T) {
	var e *E
	if got := e.Error(); got != "<nil>" {
		t.Fatalf("expected <nil> string for nil error, got %q", got)
	}
}
