// Package book implements the Aggregated Book Store (spec.md §4.2): the
// in-memory authoritative top-of-book view, keyed by (venue, canonical id,
// source). Grounded on the teacher's snapshot.Store / MemoryStore pattern
// (internal/snapshot/store.go, internal/snapshot/memory_store.go): a
// mutex-guarded map of per-key entries with seq/version-based
// compare-and-swap, generalized here to the spec's explicit stream/polled
// slot split (spec.md §9 design notes).
package book

import (
	"sync"
	"time"

	"github.com/nyxfeed/spreadwatch/internal/schema"
)

// Key identifies one store slot. Stream and polled entries for the same
// (Venue, ID) are distinct slots and never race (spec.md §5).
type Key struct {
	Venue  schema.VenueId
	ID     schema.CanonicalId
	Source schema.Source
}

// Publisher is the store's fan-out collaborator: on every accepted Apply
// the store publishes a BookUpdate itself, so the Multiplexer and Polling
// Controller never publish directly (spec.md §4.3).
type Publisher interface {
	Publish(schema.Update)
}

type slot struct {
	mu    sync.Mutex
	entry schema.BookEntry
}

// Store is the in-memory Aggregated Book Store. Reads take the map's read
// lock and the slot's mutex, so they are strongly consistent per key but not
// wait-free; across keys the store is only eventually consistent, matching
// spec.md §4.2's invariant.
type Store struct {
	publisher   Publisher
	gracePeriod time.Duration
	now         func() time.Time

	mu      sync.RWMutex
	entries map[Key]*slot

	shutdown chan struct{}
	closeOnce sync.Once
}

// New constructs a Store. gracePeriod is how long a stream-sourced entry may
// go without a newer write before the background sweep tombstones it via
// Expire; the sweep looks only at IngestTime, not at the venue's connection
// state. 0 disables the background sweep (tests can call Expire directly).
func New(publisher Publisher, gracePeriod time.Duration) *Store {
	s := &Store{
		publisher:   publisher,
		gracePeriod: gracePeriod,
		now:         time.Now,
		entries:     make(map[Key]*slot),
		shutdown:    make(chan struct{}),
	}
	if gracePeriod > 0 {
		go s.sweepLoop()
	}
	return s
}

// Close stops the background expiry sweep.
func (s *Store) Close() {
	s.closeOnce.Do(func() { close(s.shutdown) })
}

func (s *Store) keyOf(entry schema.BookEntry) Key {
	return Key{Venue: entry.Venue, ID: entry.ID, Source: entry.Source}
}

// Apply writes entry if its Seq exceeds the stored Seq for its slot. It
// reports accepted=false (not an error) when a same-or-older Seq arrives,
// which makes re-application of an already-applied entry an idempotent
// no-op (spec.md §8). A structurally invalid entry (bid > ask) is rejected
// with a CodeProtocol error and never reaches the slot.
func (s *Store) Apply(entry schema.BookEntry) (accepted bool, prior schema.BookEntry, err error) {
	if verr := entry.Validate(); verr != nil {
		return false, schema.BookEntry{}, verr
	}
	key := s.keyOf(entry)

	s.mu.Lock()
	sl, ok := s.entries[key]
	if !ok {
		sl = &slot{}
		s.entries[key] = sl
	}
	s.mu.Unlock()

	sl.mu.Lock()
	prior = sl.entry
	if sl.entry.Seq != 0 || !sl.entry.IngestTime.IsZero() {
		// An entry already exists for this slot; seq must strictly increase.
		if entry.Seq <= sl.entry.Seq {
			sl.mu.Unlock()
			return false, prior, nil
		}
	}
	sl.entry = entry
	sl.mu.Unlock()

	if s.publisher != nil {
		s.publisher.Publish(schema.NewBookUpdate(entry, prior.Seq))
	}
	return true, prior, nil
}

// Get returns the entry for one specific (venue, id, source) slot.
func (s *Store) Get(venue schema.VenueId, id schema.CanonicalId, source schema.Source) (schema.BookEntry, bool) {
	s.mu.RLock()
	sl, ok := s.entries[Key{Venue: venue, ID: id, Source: source}]
	s.mu.RUnlock()
	if !ok {
		return schema.BookEntry{}, false
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.entry, true
}

// GetPreferred returns the stream-sourced entry for (venue, id) if present,
// else the polled-sourced entry. This is the consumer-facing convenience
// the spec.md §9 design notes explicitly leave as a downstream choice
// between the two distinct slots.
func (s *Store) GetPreferred(venue schema.VenueId, id schema.CanonicalId) (schema.BookEntry, bool) {
	if e, ok := s.Get(venue, id, schema.SourceStream); ok {
		return e, true
	}
	return s.Get(venue, id, schema.SourcePolled)
}

// SnapshotByID returns the preferred entry per participating venue for one
// canonical id.
func (s *Store) SnapshotByID(id schema.CanonicalId) map[schema.VenueId]schema.BookEntry {
	s.mu.RLock()
	venues := make(map[schema.VenueId]struct{})
	for key := range s.entries {
		if key.ID == id {
			venues[key.Venue] = struct{}{}
		}
	}
	s.mu.RUnlock()

	out := make(map[schema.VenueId]schema.BookEntry, len(venues))
	for v := range venues {
		if e, ok := s.GetPreferred(v, id); ok {
			out[v] = e
		}
	}
	return out
}

// SnapshotAll returns every stored entry across all keys.
func (s *Store) SnapshotAll() []schema.BookEntry {
	s.mu.RLock()
	slots := make([]*slot, 0, len(s.entries))
	for _, sl := range s.entries {
		slots = append(slots, sl)
	}
	s.mu.RUnlock()

	out := make([]schema.BookEntry, 0, len(slots))
	for _, sl := range slots {
		sl.mu.Lock()
		out = append(out, sl.entry)
		sl.mu.Unlock()
	}
	return out
}

// Expire tombstones the given (venue, id, source) slot: it retains the
// last-known price/size values, marks Source=stale and Tombstone=true, and
// publishes a BookUpdate (spec.md §4.2).
func (s *Store) Expire(venue schema.VenueId, id schema.CanonicalId, source schema.Source) {
	s.mu.RLock()
	sl, ok := s.entries[Key{Venue: venue, ID: id, Source: source}]
	s.mu.RUnlock()
	if !ok {
		return
	}

	sl.mu.Lock()
	prior := sl.entry
	if prior.Tombstone && prior.Source == schema.SourceStale {
		sl.mu.Unlock()
		return
	}
	tomb := prior
	tomb.Source = schema.SourceStale
	tomb.Tombstone = true
	tomb.Seq = prior.Seq + 1
	tomb.IngestTime = s.now()
	sl.entry = tomb
	sl.mu.Unlock()

	if s.publisher != nil {
		s.publisher.Publish(schema.NewBookUpdate(tomb, prior.Seq))
	}
}

// ExpirePolled tombstones a poller's (venue, id) slot on cancellation
// without touching the stream-sourced slot (spec.md §4.5). Unlike Expire it
// keeps Source=polled, so the tombstone stays in the polled slot until a
// later re-arm's poller writes a higher seq over it.
func (s *Store) ExpirePolled(venue schema.VenueId, id schema.CanonicalId) {
	s.mu.RLock()
	sl, ok := s.entries[Key{Venue: venue, ID: id, Source: schema.SourcePolled}]
	s.mu.RUnlock()
	if !ok {
		return
	}

	sl.mu.Lock()
	prior := sl.entry
	if prior.Tombstone {
		sl.mu.Unlock()
		return
	}
	tomb := prior
	tomb.Tombstone = true
	tomb.Seq = prior.Seq + 1
	tomb.IngestTime = s.now()
	sl.entry = tomb
	sl.mu.Unlock()

	if s.publisher != nil {
		s.publisher.Publish(schema.NewBookUpdate(tomb, prior.Seq))
	}
}

func (s *Store) sweepLoop() {
	ticker := time.NewTicker(s.gracePeriod / 4)
	defer ticker.Stop()
	for {
		select {
		case <-s.shutdown:
			return
		case <-ticker.C:
			s.sweepOnce()
		}
	}
}

func (s *Store) sweepOnce() {
	now := s.now()
	s.mu.RLock()
	type candidate struct {
		key   Key
		entry schema.BookEntry
	}
	candidates := make([]candidate, 0)
	for key, sl := range s.entries {
		if key.Source != schema.SourceStream {
			continue
		}
		sl.mu.Lock()
		e := sl.entry
		sl.mu.Unlock()
		if e.Tombstone {
			continue
		}
		if now.Sub(e.IngestTime) >= s.gracePeriod {
			candidates = append(candidates, candidate{key: key, entry: e})
		}
	}
	s.mu.RUnlock()

	for _, c := range candidates {
		s.Expire(c.key.Venue, c.key.ID, c.key.Source)
	}
}
