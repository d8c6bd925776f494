package schema

import "time"

// PollingAssignment is a point-in-time, read-only snapshot of one
// (CanonicalId, VenueId) pair under REST-snapshot polling. The Polling
// Controller is the sole owner of the live assignment and its task handle;
// this type is what it publishes into the Supervisor's health snapshot.
type PollingAssignment struct {
	ID            CanonicalId
	Venue         VenueId
	StartedAt     time.Time
	LastSuccessAt time.Time
	LastErrorAt   time.Time
	Interval      time.Duration
	ConsecutiveFailures int
	Backoff       bool
}
