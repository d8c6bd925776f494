package registry

import (
	"strings"

	"github.com/nyxfeed/spreadwatch/errs"
	"github.com/nyxfeed/spreadwatch/internal/schema"
)

// Style names one of the venue-native symbol grammars the registry knows how
// to parse. Venue-local quirks are described as data (this table plus the
// quote-equivalence map), never as per-venue code paths (spec.md §4.1).
type Style string

const (
	// StyleColonSuffixed parses "BTC/USDC:PERP" -> "BTC-USDC-PERP".
	StyleColonSuffixed Style = "colon_suffixed"
	// StyleUnderscoreTriple parses "BTC_USDC_PERP" -> "BTC-USDC-PERP".
	StyleUnderscoreTriple Style = "underscore_triple"
)

// Derive converts a venue-native symbol into a CanonicalId according to the
// named style, applying the quote-currency equivalence table (e.g.
// {"USDT": "USDC"}) so venues that quote in an equivalent currency still
// resolve to the same canonical row.
func Derive(native schema.VenueSymbol, style Style, quoteEquivalence map[string]string) (schema.CanonicalId, error) {
	base, quote, kind, err := splitNative(native, style)
	if err != nil {
		return "", err
	}
	quote = applyEquivalence(quote, quoteEquivalence)
	id := schema.CanonicalId(base + "-" + quote + "-" + kind)
	if verr := id.Validate(); verr != nil {
		return "", errs.New("registry/derive", errs.CodeConfig,
			errs.WithMessage("derived canonical id is malformed"),
			errs.WithField("native", string(native)),
			errs.WithCause(verr))
	}
	return id, nil
}

func splitNative(native schema.VenueSymbol, style Style) (base, quote, kind string, err error) {
	s := string(native)
	switch style {
	case StyleColonSuffixed:
		// "BTC/USDC:PERP"
		pairPart, kindPart, ok := cut(s, ":")
		if !ok {
			return "", "", "", malformed(native, style)
		}
		base, quote, ok = cut(pairPart, "/")
		if !ok {
			return "", "", "", malformed(native, style)
		}
		return strings.ToUpper(base), strings.ToUpper(quote), strings.ToUpper(kindPart), nil
	case StyleUnderscoreTriple:
		// "BTC_USDC_PERP" or "BTC_USDT_PERP"
		parts := strings.Split(s, "_")
		if len(parts) != 3 {
			return "", "", "", malformed(native, style)
		}
		return strings.ToUpper(parts[0]), strings.ToUpper(parts[1]), strings.ToUpper(parts[2]), nil
	default:
		return "", "", "", errs.New("registry/derive", errs.CodeConfig,
			errs.WithMessage("unknown venue style"), errs.WithField("style", string(style)))
	}
}

func malformed(native schema.VenueSymbol, style Style) error {
	return errs.New("registry/derive", errs.CodeConfig,
		errs.WithMessage("native symbol does not match declared style"),
		errs.WithField("native", string(native)),
		errs.WithField("style", string(style)))
}

func cut(s, sep string) (before, after string, found bool) {
	idx := strings.Index(s, sep)
	if idx < 0 {
		return "", "", false
	}
	return s[:idx], s[idx+len(sep):], true
}

func applyEquivalence(quote string, table map[string]string) string {
	if table == nil {
		return quote
	}
	if mapped, ok := table[quote]; ok {
		return mapped
	}
	return quote
}
