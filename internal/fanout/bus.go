// Package fanout implements the Fan-out Bus (spec.md §4.6): in-process
// publish-subscribe delivery of schema.Update messages with conflate-latest
// backpressure per (kind, venue, id) key. Grounded on the general
// subscriber lifecycle shape of the teacher's deleted internal/bus/databus
// package (ctx/cancel/channel/once per subscription, RLock-snapshot then
// deliver under Publish) — conflate-latest itself is new logic, since the
// teacher's bus returned CodeUnavailable on a full channel rather than
// replacing the pending value.
package fanout

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/nyxfeed/spreadwatch/internal/schema"
)

type conflateKey struct {
	kind  schema.UpdateKind
	venue schema.VenueId
	id    schema.CanonicalId
}

// Filter decides whether a subscriber wants a given Update. A nil Filter
// accepts everything.
type Filter func(schema.Update) bool

// Subscription is a live handle returned by Subscribe. Updates arrive on
// Updates(); Close is idempotent.
type Subscription struct {
	id     uuid.UUID
	bus    *Bus
	filter Filter

	mu      sync.Mutex
	pending map[conflateKey]schema.Update
	order   []conflateKey // FIFO of keys with a pending update, for delivery fairness

	notify chan struct{}
	out    chan schema.Update

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// ID returns the subscription's unique identifier.
func (s *Subscription) ID() uuid.UUID { return s.id }

// Updates returns the channel of conflated updates for this subscriber.
func (s *Subscription) Updates() <-chan schema.Update { return s.out }

// Close unsubscribes and reclaims resources. Safe to call more than once.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.bus.remove(s.id)
	})
}

func newSubscription(bus *Bus, filter Filter, capacity int) *Subscription {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Subscription{
		id:      uuid.New(),
		bus:     bus,
		filter:  filter,
		pending: make(map[conflateKey]schema.Update),
		notify:  make(chan struct{}, 1),
		out:     make(chan schema.Update, capacity),
		ctx:     ctx,
		cancel:  cancel,
	}
	go s.deliveryLoop()
	return s
}

// offer stages an update for delivery, conflating it with any pending
// update sharing the same key.
func (s *Subscription) offer(u schema.Update) {
	if s.filter != nil && !s.filter(u) {
		return
	}
	kind, venue, id := u.Key()
	key := conflateKey{kind: kind, venue: venue, id: id}

	s.mu.Lock()
	if _, exists := s.pending[key]; !exists {
		s.order = append(s.order, key)
	}
	s.pending[key] = u
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// deliveryLoop drains pending[] into out, preferring FIFO key order but
// always sending the most recent value staged for a key (conflate-latest).
func (s *Subscription) deliveryLoop() {
	defer close(s.out)
	for {
		s.mu.Lock()
		var (
			key conflateKey
			u   schema.Update
			has bool
		)
		for len(s.order) > 0 {
			key = s.order[0]
			s.order = s.order[1:]
			if v, ok := s.pending[key]; ok {
				u = v
				delete(s.pending, key)
				has = true
				break
			}
		}
		s.mu.Unlock()

		if !has {
			select {
			case <-s.ctx.Done():
				return
			case <-s.notify:
				continue
			}
		}

		select {
		case <-s.ctx.Done():
			return
		case s.out <- u:
		}
	}
}

// Bus is the in-process Fan-out Bus. It implements book.Publisher and
// spread.Publisher so upstream components never publish directly to
// individual subscribers.
type Bus struct {
	mu            sync.RWMutex
	subscriptions map[uuid.UUID]*Subscription
	capacity      int
}

// New constructs a Bus. capacity bounds each subscriber's delivered-update
// channel (spec.md §6's fanout.channel_capacity); capacity <= 0 defaults to
// 64.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 64
	}
	return &Bus{
		subscriptions: make(map[uuid.UUID]*Subscription),
		capacity:      capacity,
	}
}

// Subscribe registers a new subscriber. A nil filter receives every Update.
func (b *Bus) Subscribe(filter Filter) *Subscription {
	sub := newSubscription(b, filter, b.capacity)
	b.mu.Lock()
	b.subscriptions[sub.id] = sub
	b.mu.Unlock()
	return sub
}

func (b *Bus) remove(id uuid.UUID) {
	b.mu.Lock()
	delete(b.subscriptions, id)
	b.mu.Unlock()
}

// Publish snapshots the current subscriber set under RLock and offers u to
// each; offer() never blocks the publisher (spec.md §5: "Fan-out Bus
// delivery is a suspension point only when the channel has room").
func (b *Bus) Publish(u schema.Update) {
	b.mu.RLock()
	subs := make([]*Subscription, 0, len(b.subscriptions))
	for _, s := range b.subscriptions {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		s.offer(u)
	}
}

// SubscriberCount reports the number of live subscriptions (health snapshot
// field, spec.md §4.7).
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscriptions)
}

// Close terminates every live subscription's delivery loop. It does not
// block later Subscribe calls, which still register live subscriptions —
// callers should stop calling Subscribe before invoking Close as part of
// graceful shutdown (spec.md §4.7).
func (b *Bus) Close() {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subscriptions))
	for _, s := range b.subscriptions {
		subs = append(subs, s)
	}
	b.subscriptions = make(map[uuid.UUID]*Subscription)
	b.mu.Unlock()

	for _, s := range subs {
		s.cancel()
	}
}
