// Package money provides exact-decimal Price and Qty arithmetic for the
// book store and spread engine. Values are backed by math/big.Rat so
// comparisons are exact; only formatting and display rounding are scale
// dependent, and that rounding is half-to-even rather than truncating.
package money

import (
	"math/big"
	"strings"
)

// Decimal is an arbitrary-precision rational number. The zero value is not
// usable; construct via Parse, FromRat, or FromInt64.
type Decimal struct {
	r *big.Rat
}

// Price is the exact-decimal type used for bid/ask/last values.
type Price = Decimal

// Qty is the exact-decimal type used for bid/ask/last sizes.
type Qty = Decimal

var ten = big.NewInt(10)

// Parse converts a decimal or rational string ("50000.125", "3/2") into a
// Decimal. It reports false on malformed input.
func Parse(s string) (Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Decimal{}, false
	}
	r := new(big.Rat)
	if _, ok := r.SetString(s); !ok {
		return Decimal{}, false
	}
	return Decimal{r: r}, true
}

// FromRat wraps an existing big.Rat. The Rat is copied so the caller may
// keep mutating their own reference.
func FromRat(r *big.Rat) Decimal {
	if r == nil {
		return Decimal{}
	}
	return Decimal{r: new(big.Rat).Set(r)}
}

// FromInt64 constructs a Decimal representing an exact integer.
func FromInt64(v int64) Decimal {
	return Decimal{r: new(big.Rat).SetInt64(v)}
}

// Valid reports whether d holds an initialized value.
func (d Decimal) Valid() bool { return d.r != nil }

// Rat exposes the underlying rational. Callers must not mutate it.
func (d Decimal) Rat() *big.Rat { return d.r }

// Sign returns -1, 0, or 1.
func (d Decimal) Sign() int {
	if d.r == nil {
		return 0
	}
	return d.r.Sign()
}

// Cmp compares d against o; panics if either is uninitialized, mirroring
// big.Rat.Cmp's contract of operating on well-formed values only.
func (d Decimal) Cmp(o Decimal) int {
	return d.r.Cmp(o.r)
}

// Add returns d + o.
func (d Decimal) Add(o Decimal) Decimal {
	return Decimal{r: new(big.Rat).Add(d.r, o.r)}
}

// Sub returns d - o.
func (d Decimal) Sub(o Decimal) Decimal {
	return Decimal{r: new(big.Rat).Sub(d.r, o.r)}
}

// Mul returns d * o.
func (d Decimal) Mul(o Decimal) Decimal {
	return Decimal{r: new(big.Rat).Mul(d.r, o.r)}
}

// Quo returns d / o. Callers must ensure o is non-zero.
func (d Decimal) Quo(o Decimal) Decimal {
	return Decimal{r: new(big.Rat).Quo(d.r, o.r)}
}

// Abs returns the absolute value of d.
func (d Decimal) Abs() Decimal {
	r := new(big.Rat).Set(d.r)
	if r.Sign() < 0 {
		r.Neg(r)
	}
	return Decimal{r: r}
}

// Half halves d; used for mid-price computation, (bid+ask)/2.
func (d Decimal) Half() Decimal {
	return Decimal{r: new(big.Rat).Quo(d.r, new(big.Rat).SetInt64(2))}
}

// Min returns the smaller of d and o.
func (d Decimal) Min(o Decimal) Decimal {
	if d.Cmp(o) <= 0 {
		return d
	}
	return o
}

// Round returns d rounded to scale fractional digits using round-half-to-even
// (banker's rounding), as an exact Decimal (still backed by a Rat, so the
// rounded value itself remains comparison-exact).
func (d Decimal) Round(scale int) Decimal {
	if d.r == nil {
		return d
	}
	pow10 := new(big.Int).Exp(ten, big.NewInt(int64(scale)), nil)
	scaledPow := new(big.Rat).SetInt(pow10)
	scaled := new(big.Rat).Mul(d.r, scaledPow)

	rounded := roundHalfToEven(scaled)
	out := new(big.Rat).Quo(new(big.Rat).SetInt(rounded), scaledPow)
	return Decimal{r: out}
}

// roundHalfToEven rounds a rational to the nearest integer, breaking ties
// toward the even integer.
func roundHalfToEven(r *big.Rat) *big.Int {
	num := r.Num()
	den := r.Denom()

	quo, rem := new(big.Int).QuoRem(num, den, new(big.Int))
	if rem.Sign() == 0 {
		return quo
	}

	twiceRem := new(big.Int).Mul(rem, big.NewInt(2))
	twiceRem.Abs(twiceRem)
	cmp := twiceRem.Cmp(den)

	roundAwayFromZero := func() *big.Int {
		if num.Sign() < 0 {
			return new(big.Int).Sub(quo, big.NewInt(1))
		}
		return new(big.Int).Add(quo, big.NewInt(1))
	}

	switch {
	case cmp < 0:
		return quo
	case cmp > 0:
		return roundAwayFromZero()
	default:
		if new(big.Int).Mod(quo, big.NewInt(2)).Sign() == 0 {
			return quo
		}
		return roundAwayFromZero()
	}
}

// Format renders d as a fixed-scale decimal string, rounding half-to-even at
// the requested scale (the store/display scale, distinct from comparison
// exactness which never rounds).
func (d Decimal) Format(scale int) string {
	if d.r == nil {
		return ""
	}
	rounded := d.Round(scale)
	pow10 := new(big.Int).Exp(ten, big.NewInt(int64(scale)), nil)
	scaledPow := new(big.Rat).SetInt(pow10)
	scaledInt := new(big.Rat).Mul(rounded.r, scaledPow)
	i := new(big.Int).Quo(scaledInt.Num(), scaledInt.Denom())

	s := i.String()
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	if scale == 0 {
		if neg {
			return "-" + s
		}
		return s
	}
	if len(s) <= scale {
		s = strings.Repeat("0", scale-len(s)+1) + s
	}
	dot := len(s) - scale
	out := s[:dot] + "." + s[dot:]
	if neg {
		out = "-" + out
	}
	return out
}

// String renders d at a generous default scale (18 digits) suitable for
// logging; callers needing a display scale should use Format.
func (d Decimal) String() string {
	if d.r == nil {
		return "<nil>"
	}
	return d.Format(18)
}
