package notifications

import (
	"context"
	"errors"

	"reciapp/internal/models"
	"reciapp/internal/observability"

	"gorm.io/gorm"
)

// requestGetter is the slice of the request store the relay needs.
type requestGetter interface {
	GetByID(ctx context.Context, id string) (*models.PickupRequest, error)
}

// LocationRelay forwards a claimant's position ticks to the requester
// while the request stays claimed. The store is re-read on every tick:
// a tick that races a terminal transition is dropped, never forwarded.
type LocationRelay struct {
	store    requestGetter
	dispatch *Dispatcher
}

// NewLocationRelay creates a LocationRelay over the given store and dispatcher.
func NewLocationRelay(store requestGetter, dispatch *Dispatcher) *LocationRelay {
	return &LocationRelay{store: store, dispatch: dispatch}
}

// Forward relays one position tick. Ticks for unknown or terminal requests
// and ticks from anyone but the current claimant are dropped silently;
// only a store read failure is reported.
func (r *LocationRelay) Forward(ctx context.Context, senderID uint, update models.LocationUpdate) error {
	req, err := r.store.GetByID(ctx, update.RequestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.LocationTicksTotal.WithLabelValues("stale").Inc()
			return nil
		}
		return err
	}

	if req.State != models.RequestClaimed {
		observability.LocationTicksTotal.WithLabelValues("stale").Inc()
		return nil
	}
	if !req.ClaimedBy(senderID) {
		observability.LocationTicksTotal.WithLabelValues("unauthorized").Inc()
		return nil
	}

	r.dispatch.ToUser(ctx, req.RequesterID, NewLocationEvent(req.ID, update.Lat, update.Lng))
	observability.LocationTicksTotal.WithLabelValues("relayed").Inc()
	return nil
}
