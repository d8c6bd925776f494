// Package registry implements the Symbol Registry: the bidirectional
// mapping between canonical instrument ids and each venue's native symbol
// encoding (spec.md §4.1). It is immutable after initialization (spec.md
// §5) and never blocks or fails due to network state; lookup failures are
// always NotFound / NotListed.
package registry

import (
	"sync"

	"github.com/nyxfeed/spreadwatch/errs"
	"github.com/nyxfeed/spreadwatch/internal/schema"
)

type nativeKey struct {
	venue  schema.VenueId
	native schema.VenueSymbol
}

// Registry is the bidirectional venue<->canonical symbol map, grounded on
// the teacher's snapshot.Store pattern of a mutex-guarded map serving exact
// key lookups (internal/snapshot/memory_store.go), simplified here because
// the registry is write-once at startup and read-only thereafter.
type Registry struct {
	mu sync.RWMutex

	byNative    map[nativeKey]schema.CanonicalId
	byCanonical map[schema.CanonicalId]map[schema.VenueId]schema.VenueSymbol
}

// New constructs an empty registry. Call Register for each (venue, native,
// canonical) triple during startup, then treat the registry as read-only.
func New() *Registry {
	return &Registry{
		byNative:    make(map[nativeKey]schema.CanonicalId),
		byCanonical: make(map[schema.CanonicalId]map[schema.VenueId]schema.VenueSymbol),
	}
}

// Register maps (venue, native) to canonical id. It is idempotent: calling
// it again with the same triple is a no-op. Calling it with a different
// canonical id for an already-registered (venue, native) pair fails with
// CodeConfig ("canonical conflict"), per spec.md §4.1.
func (r *Registry) Register(venue schema.VenueId, native schema.VenueSymbol, id schema.CanonicalId) error {
	if err := venue.Validate(); err != nil {
		return err
	}
	if err := id.Validate(); err != nil {
		return err
	}

	key := nativeKey{venue: venue, native: native}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byNative[key]; ok {
		if existing != id {
			return errs.New("registry/register", errs.CodeConfig,
				errs.WithMessage("canonical conflict"),
				errs.WithField("venue", string(venue)),
				errs.WithField("native", string(native)),
				errs.WithField("existing", string(existing)),
				errs.WithField("incoming", string(id)))
		}
		return nil
	}

	r.byNative[key] = id
	venues, ok := r.byCanonical[id]
	if !ok {
		venues = make(map[schema.VenueId]schema.VenueSymbol)
		r.byCanonical[id] = venues
	}
	venues[venue] = native
	return nil
}

// CanonicalOf resolves a venue-native symbol to its canonical id.
func (r *Registry) CanonicalOf(venue schema.VenueId, native schema.VenueSymbol) (schema.CanonicalId, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byNative[nativeKey{venue: venue, native: native}]
	if !ok {
		return "", errs.New("registry/canonical_of", errs.CodeMapping,
			errs.WithMessage("not found"),
			errs.WithField("venue", string(venue)),
			errs.WithField("native", string(native)))
	}
	return id, nil
}

// NativeOf resolves a canonical id to the given venue's native symbol.
func (r *Registry) NativeOf(id schema.CanonicalId, venue schema.VenueId) (schema.VenueSymbol, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	venues, ok := r.byCanonical[id]
	if !ok {
		return "", errs.New("registry/native_of", errs.CodeMapping,
			errs.WithMessage("not listed"),
			errs.WithField("id", string(id)))
	}
	native, ok := venues[venue]
	if !ok {
		return "", errs.New("registry/native_of", errs.CodeMapping,
			errs.WithMessage("not listed"),
			errs.WithField("id", string(id)),
			errs.WithField("venue", string(venue)))
	}
	return native, nil
}

// VenuesFor returns the set of venues that list the given canonical id.
func (r *Registry) VenuesFor(id schema.CanonicalId) map[schema.VenueId]struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	venues, ok := r.byCanonical[id]
	if !ok {
		return nil
	}
	out := make(map[schema.VenueId]struct{}, len(venues))
	for v := range venues {
		out[v] = struct{}{}
	}
	return out
}
