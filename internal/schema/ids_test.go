package schema

import "testing"

func TestCanonicalIdValidate(t *testing.T) {
	cases := []struct {
		id      CanonicalId
		wantErr bool
	}{
		{"BTC-USDC-PERP", false},
		{"ETH-USDT-SPOT", false},
		{"BTC-USDC", true},
		{"BTC-USDC-FUTURE", true},
		{"btc-usdc-perp", true},
		{"", true},
	}
	for _, tc := range cases {
		err := tc.id.Validate()
		if (err != nil) != tc.wantErr {
			t.Errorf("Validate(%q) error = %v, wantErr %v", tc.id, err, tc.wantErr)
		}
	}
}

func TestCanonicalIdComponents(t *testing.T) {
	id := CanonicalId("BTC-USDC-PERP")
	if id.Base() != "BTC" {
		t.Errorf("Base() = %q, want BTC", id.Base())
	}
	if id.Quote() != "USDC" {
		t.Errorf("Quote() = %q, want USDC", id.Quote())
	}
	if id.KindOf() != "PERP" {
		t.Errorf("KindOf() = %q, want PERP", id.KindOf())
	}
}

func TestVenueIdValidate(t *testing.T) {
	cases := []struct {
		v       VenueId
		wantErr bool
	}{
		{"binance", false},
		{"binance_perp", false},
		{"Binance", true},
		{"", true},
	}
	for _, tc := range cases {
		err := tc.v.Validate()
		if (err != nil) != tc.wantErr {
			t.Errorf("Validate(%q) error = %v, wantErr %v", tc.v, err, tc.wantErr)
		}
	}
}
