package schema

// UpdateKind discriminates the Update tagged union delivered over the
// Fan-out Bus.
type UpdateKind string

const (
	UpdateKindBook    UpdateKind = "book"
	UpdateKindSpread  UpdateKind = "spread"
	UpdateKindSession UpdateKind = "session"
)

// Update is the single message type the Fan-out Bus transports. Exactly one
// of Book, Spread, or Session is populated, selected by Kind.
type Update struct {
	Kind UpdateKind

	Book     *BookUpdate
	Spread   *SpreadUpdate
	Session  *SessionUpdate
}

// BookUpdate carries an accepted BookEntry plus the seq it superseded (0 if
// this was the first entry for the slot).
type BookUpdate struct {
	Entry    BookEntry
	PriorSeq uint64
}

// SpreadUpdate carries a freshly recomputed SpreadSummary.
type SpreadUpdate struct {
	Summary SpreadSummary
}

// SessionUpdate reports a venue session state transition.
type SessionUpdate struct {
	Venue    VenueId
	OldState SessionState
	NewState SessionState
	Reason   string
}

// Key returns the (kind, venue, id) conflation key the Fan-out Bus uses to
// decide which pending update a newer one should replace.
func (u Update) Key() (kind UpdateKind, venue VenueId, id CanonicalId) {
	switch u.Kind {
	case UpdateKindBook:
		if u.Book != nil {
			return UpdateKindBook, u.Book.Entry.Venue, u.Book.Entry.ID
		}
	case UpdateKindSpread:
		if u.Spread != nil {
			return UpdateKindSpread, "", u.Spread.Summary.ID
		}
	case UpdateKindSession:
		if u.Session != nil {
			return UpdateKindSession, u.Session.Venue, ""
		}
	}
	return u.Kind, "", ""
}

// NewBookUpdate constructs a Kind-tagged book Update.
func NewBookUpdate(entry BookEntry, priorSeq uint64) Update {
	return Update{Kind: UpdateKindBook, Book: &BookUpdate{Entry: entry, PriorSeq: priorSeq}}
}

// NewSpreadUpdate constructs a Kind-tagged spread Update.
func NewSpreadUpdate(summary SpreadSummary) Update {
	return Update{Kind: UpdateKindSpread, Spread: &SpreadUpdate{Summary: summary}}
}

// NewSessionUpdate constructs a Kind-tagged session Update.
func NewSessionUpdate(venue VenueId, old, new_ SessionState, reason string) Update {
	return Update{Kind: UpdateKindSession, Session: &SessionUpdate{
		Venue: venue, OldState: old, NewState: new_, Reason: reason,
	}}
}
