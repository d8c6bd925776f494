package spread

import (
	"context"

	"github.com/nyxfeed/spreadwatch/internal/fanout"
	"github.com/nyxfeed/spreadwatch/internal/schema"
)

// Driver subscribes to the Fan-out Bus's BookUpdates and recomputes the
// affected CanonicalId's SpreadSummary on each one, matching spec.md §2's
// data-flow contract ("Book changes → Spread Engine"). It is the engine's
// only consumer of the bus; Recompute takes the id directly, so it stays
// testable without the bus per the six literal scenarios in spec.md §8.
type Driver struct {
	engine *Engine
	sub    *fanout.Subscription
}

// NewDriver subscribes engine to bus's book updates and starts its
// recompute loop. Call Close to unsubscribe.
func NewDriver(ctx context.Context, engine *Engine, bus *fanout.Bus) *Driver {
	sub := bus.Subscribe(func(u schema.Update) bool { return u.Kind == schema.UpdateKindBook })
	d := &Driver{engine: engine, sub: sub}
	go d.run(ctx)
	return d
}

func (d *Driver) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-d.sub.Updates():
			if !ok {
				return
			}
			if u.Book == nil {
				continue
			}
			d.engine.Recompute(u.Book.Entry.ID)
		}
	}
}

// Close stops the driver's recompute loop.
func (d *Driver) Close() {
	d.sub.Close()
}
