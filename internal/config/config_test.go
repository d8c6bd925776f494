package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
venues:
  - id: a
    anchor: true
  - id: b
universe:
  - BTC-USDC-PERP
quote_equivalence:
  USDT: USDC
stale_after_ms: 30000
freshness:
  green_ms: 2000
  amber_ms: 5000
spread:
  elevated_pct: "0.001"
  arbitrage_pct: "0.005"
  arb_dwell_ms: 10000
poll:
  interval_ms: 1000
reconnect:
  base_ms: 250
  cap_ms: 30000
fanout:
  channel_capacity: 64
`

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadParsesValidConfig(t *testing.T) {
	path := writeTemp(t, sampleYAML)
	s, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.AnchorVenue != "a" {
		t.Fatalf("expected anchor venue a, got %s", s.AnchorVenue)
	}
	if len(s.Universe) != 1 || s.Universe[0] != "BTC-USDC-PERP" {
		t.Fatalf("expected one universe entry, got %v", s.Universe)
	}
	if s.FanoutChannelCapacity != 64 {
		t.Fatalf("expected fanout channel capacity 64, got %d", s.FanoutChannelCapacity)
	}
}

func TestLoadRejectsMissingAnchor(t *testing.T) {
	path := writeTemp(t, `
venues:
  - id: a
  - id: b
universe: []
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for missing anchor venue")
	}
}

func TestLoadRejectsTwoAnchors(t *testing.T) {
	path := writeTemp(t, `
venues:
  - id: a
    anchor: true
  - id: b
    anchor: true
universe: []
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for two anchor venues")
	}
}

func TestLoadRejectsMalformedCanonicalId(t *testing.T) {
	path := writeTemp(t, `
venues:
  - id: a
    anchor: true
universe:
  - not-a-valid-id
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for malformed canonical id")
	}
}
