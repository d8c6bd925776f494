package polling

import (
	"context"

	"github.com/nyxfeed/spreadwatch/internal/fanout"
	"github.com/nyxfeed/spreadwatch/internal/schema"
)

// Driver subscribes the Controller to the Fan-out Bus's SpreadUpdates and
// evaluates the arming rule against a single declared anchor venue on each
// one, matching the control flow in spec.md §2 ("Book changes → Spread
// Engine → Polling Controller arms/disarms pollers").
type Driver struct {
	controller *Controller
	anchor     schema.VenueId
	sub        *fanout.Subscription
}

// NewDriver subscribes controller to bus's spread updates and starts its
// arm/disarm evaluation loop. Call Close to unsubscribe.
func NewDriver(ctx context.Context, controller *Controller, bus *fanout.Bus, anchor schema.VenueId) *Driver {
	sub := bus.Subscribe(func(u schema.Update) bool { return u.Kind == schema.UpdateKindSpread })
	d := &Driver{controller: controller, anchor: anchor, sub: sub}
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
			if u.Spread == nil {
				continue
			}
			d.controller.OnSpreadUpdate(ctx, d.anchor, u.Spread.Summary)
		}
	}
}

// Close stops the driver's evaluation loop.
func (d *Driver) Close() {
	d.sub.Close()
}
