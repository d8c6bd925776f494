// Package schema defines the canonical data model shared by every
// spreadwatch component: instrument identity, book state, session state,
// spread summaries, polling assignments, and bus update envelopes.
package schema

import (
	"strings"

	"github.com/nyxfeed/spreadwatch/errs"
)

// CanonicalId is a process-wide stable instrument identity, grammar
// "BASE-QUOTE-KIND" (e.g. "BTC-USDC-PERP"). Created at registry load time;
// never mutated afterward.
type CanonicalId string

// Kind enumerates the instrument kinds recognized in a CanonicalId's third
// component.
type Kind string

const (
	KindPerp Kind = "PERP"
	KindSpot Kind = "SPOT"
)

// Validate checks the BASE-QUOTE-KIND grammar and that KIND is recognized.
func (c CanonicalId) Validate() error {
	s := string(c)
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return errs.New("schema/canonical_id", errs.CodeConfig,
			errs.WithMessage("expected BASE-QUOTE-KIND grammar"),
			errs.WithField("value", s))
	}
	base, quote, kind := parts[0], parts[1], parts[2]
	if !isCurrencyCode(base) {
		return errs.New("schema/canonical_id", errs.CodeConfig,
			errs.WithMessage("malformed base currency"), errs.WithField("value", s))
	}
	if !isCurrencyCode(quote) {
		return errs.New("schema/canonical_id", errs.CodeConfig,
			errs.WithMessage("malformed quote currency"), errs.WithField("value", s))
	}
	switch Kind(kind) {
	case KindPerp, KindSpot:
	default:
		return errs.New("schema/canonical_id", errs.CodeConfig,
			errs.WithMessage("unrecognized instrument kind"), errs.WithField("kind", kind))
	}
	return nil
}

// Base returns the base currency component, or "" if malformed.
func (c CanonicalId) Base() string { return component(c, 0) }

// Quote returns the quote currency component, or "" if malformed.
func (c CanonicalId) Quote() string { return component(c, 1) }

// KindOf returns the kind component, or "" if malformed.
func (c CanonicalId) KindOf() string { return component(c, 2) }

func component(c CanonicalId, idx int) string {
	parts := strings.Split(string(c), "-")
	if idx >= len(parts) {
		return ""
	}
	return parts[idx]
}

func isCurrencyCode(s string) bool {
	if len(s) < 2 || len(s) > 10 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// VenueId is a short lowercase identifier for a venue. The set of valid
// VenueIds is finite and known at startup (registered venues).
type VenueId string

// Validate checks that v is a short lowercase identifier.
func (v VenueId) Validate() error {
	s := string(v)
	if s == "" {
		return errs.New("schema/venue_id", errs.CodeConfig, errs.WithMessage("venue id required"))
	}
	if len(s) > 32 {
		return errs.New("schema/venue_id", errs.CodeConfig, errs.WithMessage("venue id too long"))
	}
	for _, r := range s {
		isLower := r >= 'a' && r <= 'z'
		isDigit := r >= '0' && r <= '9'
		if !isLower && !isDigit && r != '_' {
			return errs.New("schema/venue_id", errs.CodeConfig,
				errs.WithMessage("venue id must be lowercase"), errs.WithField("value", s))
		}
	}
	return nil
}

// VenueSymbol is a venue-native instrument string. It is owned by the
// Symbol Registry only and must never leak into core logic outside adapter
// boundaries.
type VenueSymbol string

// Channel is a subscribable venue data channel.
type Channel string

const (
	ChannelBook  Channel = "book"
	ChannelTrade Channel = "trade"
)

// Sub identifies one (CanonicalId, Channel) subscription unit, the element
// type of a VenueSession's desired_subs / actual_subs sets.
type Sub struct {
	ID      CanonicalId
	Channel Channel
}
