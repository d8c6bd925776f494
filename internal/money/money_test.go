package money

import "testing"

func TestParseAndFormatRoundTrip(t *testing.T) {
	d, ok := Parse("50000.125")
	if !ok {
		t.Fatalf("expected parse to succeed")
	}
	if got := d.Format(3); got != "50000.125" {
		t.Fatalf("expected 50000.125, got %s", got)
	}
}

func TestRoundHalfToEven(t *testing.T) {
	cases := []struct {
		in    string
		scale int
		want  string
	}{
		{"0.125", 2, "0.12"}, // tie rounds to even (2)
		{"0.135", 2, "0.14"}, // tie rounds to even (4)
		{"0.1250001", 2, "0.13"},
		{"-0.125", 2, "-0.12"},
		{"2.5", 0, "2"},
		{"3.5", 0, "4"},
	}
	for _, tc := range cases {
		d, ok := Parse(tc.in)
		if !ok {
			t.Fatalf("parse %s failed", tc.in)
		}
		if got := d.Format(tc.scale); got != tc.want {
			t.Errorf("Format(%s, %d) = %s, want %s", tc.in, tc.scale, got, tc.want)
		}
	}
}

func TestCmpIsExactNotFloatRounded(t *testing.T) {
	a, _ := Parse("0.1")
	b, _ := Parse("0.1000000000000000001")
	if a.Cmp(b) == 0 {
		t.Fatalf("expected exact comparison to distinguish the two values")
	}
}

func TestHalfComputesMidPrice(t *testing.T) {
	bid, _ := Parse("50000")
	ask, _ := Parse("50002")
	mid := bid.Add(ask).Half()
	if got := mid.Format(0); got != "50001" {
		t.Fatalf("expected mid 50001, got %s", got)
	}
}

func TestMinReturnsSmaller(t *testing.T) {
	a, _ := Parse("10")
	b, _ := Parse("5")
	if got := a.Min(b).Format(0); got != "5" {
		t.Fatalf("expected min 5, got %s", got)
	}
}
