package schema

import (
	"time"

	"github.com/nyxfeed/spreadwatch/internal/money"
)

// Classification is the Spread Engine's tri-state (plus insufficient-data)
// assessment of a CanonicalId's cross-venue spread.
type Classification string

const (
	ClassificationQuiet              Classification = "quiet"
	ClassificationElevated           Classification = "elevated"
	ClassificationArbitrageCandidate Classification = "arbitrage_candidate"
	ClassificationInsufficientData   Classification = "insufficient_data"
)

// Participant records one venue's membership in a SpreadSummary, including
// whether its BookEntry was excluded from the computation for being stale.
type Participant struct {
	Venue VenueId
	Stale bool
}

// VenuePair is an ordered pair used for the max-spread venue pair; the
// Spread Engine breaks ties between equal spreads lexicographically on the
// two VenueIds.
type VenuePair struct {
	A VenueId
	B VenueId
}

// SpreadSummary is the live cross-venue spread view for one CanonicalId.
// It is recomputed on every book change touching that id and never stored
// historically; only the latest value is retained.
type SpreadSummary struct {
	ID             CanonicalId
	Participating  []Participant
	BestBidVenue   VenueId
	BestAskVenue   VenueId
	MidPrices      map[VenueId]money.Price
	MaxSpreadAbs   money.Price
	MaxSpreadPct   money.Price
	MaxPair        VenuePair
	Classification Classification
	UpdatedAt      time.Time
}
