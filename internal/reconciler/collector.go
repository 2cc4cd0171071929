package reconciler

import (
	"encoding/json"
	"sync"

	"reciapp/internal/geo"
	"reciapp/internal/models"
	"reciapp/internal/notifications"

	"github.com/google/uuid"
)

// PendingRequest is one claimable entry in a collector's candidate list,
// annotated with distance and ETA from the collector's position.
type PendingRequest struct {
	ID          string
	RequesterID uint
	Materials   []notifications.MaterialPayload
	Location    geo.Point
	DistanceKm  float64
	ETAMinutes  int
}

// ActivePickup is the collector's own claimed request.
type ActivePickup struct {
	ID       string
	Location geo.Point
}

type claimOverlay struct {
	requestID string
	removed   *PendingRequest
}

// CollectorView is the collector-side reconciler: a candidate list keyed
// by request id plus at most one active pickup. All methods are safe for
// concurrent use.
type CollectorView struct {
	mu       sync.Mutex
	position geo.Point
	order    []string
	index    map[string]*PendingRequest
	active   *ActivePickup
	// withdrawn ids tombstone out-of-order created events.
	withdrawn map[string]struct{}
	// ignored ids are hidden locally by the collector. Unlike withdrawn
	// tombstones they survive snapshot resets.
	ignored map[string]struct{}
	claims  map[string]claimOverlay
	notice  string
}

// NewCollectorView creates a view anchored at the collector's position.
func NewCollectorView(position geo.Point) *CollectorView {
	return &CollectorView{
		position:  position,
		index:     make(map[string]*PendingRequest),
		withdrawn: make(map[string]struct{}),
		ignored:   make(map[string]struct{}),
		claims:    make(map[string]claimOverlay),
	}
}

// SetPosition moves the collector and recomputes distance and ETA for
// every candidate.
func (v *CollectorView) SetPosition(p geo.Point) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.position = p
	for _, item := range v.index {
		v.annotate(item)
	}
}

func (v *CollectorView) annotate(item *PendingRequest) {
	item.DistanceKm = geo.DistanceKm(v.position, item.Location)
	item.ETAMinutes = geo.ETAMinutes(item.DistanceKm)
}

func (v *CollectorView) insert(item *PendingRequest) {
	if _, exists := v.index[item.ID]; exists {
		return
	}
	if _, hidden := v.ignored[item.ID]; hidden {
		return
	}
	v.annotate(item)
	v.index[item.ID] = item
	v.order = append(v.order, item.ID)
}

func (v *CollectorView) remove(id string) *PendingRequest {
	item, ok := v.index[id]
	if !ok {
		return nil
	}
	delete(v.index, id)
	for i, oid := range v.order {
		if oid == id {
			v.order = append(v.order[:i], v.order[i+1:]...)
			break
		}
	}
	return item
}

// Pending returns the candidate list in arrival order.
func (v *CollectorView) Pending() []PendingRequest {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]PendingRequest, 0, len(v.order))
	for _, id := range v.order {
		out = append(out, *v.index[id])
	}
	return out
}

// Ignore hides a candidate locally. The request stays claimable on the
// server; the view just stops showing it, including across snapshots.
func (v *CollectorView) Ignore(requestID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.ignored[requestID] = struct{}{}
	v.remove(requestID)
}

// Unignore makes a hidden candidate visible again on the next created or
// snapshot event for it.
func (v *CollectorView) Unignore(requestID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.ignored, requestID)
}

// Active returns the collector's claimed pickup, if any.
func (v *CollectorView) Active() *ActivePickup {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.active == nil {
		return nil
	}
	cp := *v.active
	return &cp
}

// Apply merges one pushed event into the view.
func (v *CollectorView) Apply(raw []byte) error {
	ev, err := decodeEvent(raw)
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	switch ev.Type {
	case notifications.EventCreated:
		if _, gone := v.withdrawn[ev.RequestID]; gone {
			// A withdrawal already raced past this created event.
			return nil
		}
		var p notifications.CreatedPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return err
		}
		v.insert(&PendingRequest{
			ID:          ev.RequestID,
			RequesterID: p.RequesterID,
			Materials:   p.Materials,
			Location:    geo.Point{Lat: p.Latitude, Lng: p.Longitude},
		})

	case notifications.EventWithdrawn, notifications.EventClaimed:
		v.withdrawn[ev.RequestID] = struct{}{}
		v.remove(ev.RequestID)

	case notifications.EventCompleted, notifications.EventCancelled:
		v.withdrawn[ev.RequestID] = struct{}{}
		v.remove(ev.RequestID)
		if v.active != nil && v.active.ID == ev.RequestID {
			v.active = nil
			v.notice = ev.Type
		}

	case notifications.EventSnapshot:
		var snap struct {
			Pending []models.PickupRequest `json:"pending"`
			Active  *models.PickupRequest  `json:"active"`
		}
		if err := json.Unmarshal(ev.Payload, &snap); err != nil {
			return err
		}
		v.resetLocked(snap.Pending, snap.Active)
	}
	return nil
}

func (v *CollectorView) resetLocked(pending []models.PickupRequest, active *models.PickupRequest) {
	v.order = nil
	v.index = make(map[string]*PendingRequest)
	v.withdrawn = make(map[string]struct{})
	for i := range pending {
		req := &pending[i]
		materials := make([]notifications.MaterialPayload, 0, len(req.Materials))
		for _, m := range req.Materials {
			materials = append(materials, notifications.MaterialPayload{
				MaterialType: m.MaterialType,
				QuantityKg:   m.QuantityKg,
			})
		}
		v.insert(&PendingRequest{
			ID:          req.ID,
			RequesterID: req.RequesterID,
			Materials:   materials,
			Location:    geo.Point{Lat: req.Latitude, Lng: req.Longitude},
		})
	}
	v.active = nil
	if active != nil {
		v.active = &ActivePickup{
			ID:       active.ID,
			Location: geo.Point{Lat: active.Latitude, Lng: active.Longitude},
		}
	}
}

// BeginClaim applies an optimistic claim: the candidate moves out of the
// pending list and becomes the active pickup immediately. The returned
// action id reconciles the overlay once the server answers. It returns
// false when the id is not claimable locally.
func (v *CollectorView) BeginClaim(requestID string) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.active != nil {
		return "", false
	}
	item := v.remove(requestID)
	if item == nil {
		return "", false
	}

	actionID := uuid.NewString()
	v.claims[actionID] = claimOverlay{requestID: requestID, removed: item}
	v.active = &ActivePickup{ID: requestID, Location: item.Location}
	return actionID, true
}

// ResolveClaim reconciles an optimistic claim against the server's
// answer. A conflict rolls the overlay back: the active pickup is
// cleared and the candidate restored unless a withdrawal arrived in the
// meantime.
func (v *CollectorView) ResolveClaim(actionID string, claimErr error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	overlay, ok := v.claims[actionID]
	if !ok {
		return
	}
	delete(v.claims, actionID)

	if claimErr == nil {
		return
	}
	if v.active != nil && v.active.ID == overlay.requestID {
		v.active = nil
	}
	if _, gone := v.withdrawn[overlay.requestID]; gone {
		return
	}
	v.insert(overlay.removed)
}

// TerminalNotice returns the pending terminal notice, at most once.
func (v *CollectorView) TerminalNotice() (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.notice == "" {
		return "", false
	}
	n := v.notice
	v.notice = ""
	return n, true
}
