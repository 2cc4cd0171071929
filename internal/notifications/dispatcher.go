package notifications

import (
	"context"
	"log/slog"

	"reciapp/internal/middleware"
	"reciapp/internal/observability"
)

// Dispatcher is the single entry point for pushing events. It delivers to
// local sessions through the hub and publishes to Redis for sessions held
// by other instances. Delivery is best-effort: push failures are logged
// and never surface to the caller, because the store remains the source
// of truth and clients resynchronize via snapshot.
type Dispatcher struct {
	hub      *Hub
	notifier *Notifier
	log      *slog.Logger
}

// NewDispatcher creates a Dispatcher over the given hub and notifier.
func NewDispatcher(hub *Hub, notifier *Notifier) *Dispatcher {
	return &Dispatcher{hub: hub, notifier: notifier, log: middleware.Logger}
}

// ToUser pushes an event to every session of userID.
func (d *Dispatcher) ToUser(ctx context.Context, userID uint, ev Event) {
	data, err := ev.Encode()
	if err != nil {
		d.log.ErrorContext(ctx, "encode dispatch event",
			slog.String("event_type", ev.Type), slog.String("error", err.Error()))
		return
	}
	observability.DispatchEventsTotal.WithLabelValues(ev.Type).Inc()

	d.hub.Broadcast(userID, data)

	if err := d.notifier.PublishUser(ctx, userID, data); err != nil {
		d.log.WarnContext(ctx, "publish dispatch event",
			slog.String("event_type", ev.Type),
			slog.Uint64("user_id", uint64(userID)),
			slog.String("error", err.Error()))
	}
}

// ToCollectors pushes an event to every connected collector session.
func (d *Dispatcher) ToCollectors(ctx context.Context, ev Event) {
	d.ToCollectorsExcept(ctx, 0, ev)
}

// ToCollectorsExcept pushes an event to every collector session except
// those of excludeUserID. Zero excludes nobody.
func (d *Dispatcher) ToCollectorsExcept(ctx context.Context, excludeUserID uint, ev Event) {
	data, err := ev.Encode()
	if err != nil {
		d.log.ErrorContext(ctx, "encode dispatch event",
			slog.String("event_type", ev.Type), slog.String("error", err.Error()))
		return
	}
	observability.DispatchEventsTotal.WithLabelValues(ev.Type).Inc()

	d.hub.BroadcastCollectorsExcept(excludeUserID, data)

	if err := d.notifier.PublishCollectors(ctx, excludeUserID, data); err != nil {
		d.log.WarnContext(ctx, "publish dispatch event",
			slog.String("event_type", ev.Type),
			slog.String("error", err.Error()))
	}
}
