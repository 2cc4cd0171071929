package reconciler

import (
	"encoding/json"
	"sync"

	"reciapp/internal/geo"
	"reciapp/internal/models"
	"reciapp/internal/notifications"

	"github.com/google/uuid"
)

// ActiveRequest is the requester-side view of their in-flight request,
// including the claimant's last relayed position when claimed.
type ActiveRequest struct {
	ID           string
	State        models.RequestState
	ClaimantID   uint
	LastPosition *geo.Point
	DistanceKm   float64
	ETAMinutes   int
}

type requesterOverlay struct {
	requestID string
	prior     *ActiveRequest
}

// RequesterView is the requester-side reconciler: at most one active
// request, updated by pushed lifecycle and location events. All methods
// are safe for concurrent use.
type RequesterView struct {
	mu      sync.Mutex
	home    geo.Point
	active  *ActiveRequest
	notice  string
	actions map[string]requesterOverlay
}

// NewRequesterView creates a view anchored at the pickup coordinate.
func NewRequesterView(home geo.Point) *RequesterView {
	return &RequesterView{
		home:    home,
		actions: make(map[string]requesterOverlay),
	}
}

// Active returns a copy of the active request view, or nil when idle.
func (v *RequesterView) Active() *ActiveRequest {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.active == nil {
		return nil
	}
	cp := *v.active
	if v.active.LastPosition != nil {
		pos := *v.active.LastPosition
		cp.LastPosition = &pos
	}
	return &cp
}

// Apply merges one pushed event into the view. Events for a request
// other than the active one are ignored; a location tick arriving after
// a terminal transition is dropped.
func (v *RequesterView) Apply(raw []byte) error {
	ev, err := decodeEvent(raw)
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	switch ev.Type {
	case notifications.EventClaimed:
		if v.active == nil || v.active.ID != ev.RequestID {
			return nil
		}
		var p notifications.ClaimedPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return err
		}
		v.active.State = models.RequestClaimed
		v.active.ClaimantID = p.ClaimantID

	case notifications.EventLocation:
		if v.active == nil || v.active.ID != ev.RequestID || v.active.State != models.RequestClaimed {
			return nil
		}
		var p notifications.LocationPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return err
		}
		pos := geo.Point{Lat: p.Lat, Lng: p.Lng}
		v.active.LastPosition = &pos
		v.active.DistanceKm = geo.DistanceKm(v.home, pos)
		v.active.ETAMinutes = geo.ETAMinutes(v.active.DistanceKm)

	case notifications.EventCompleted, notifications.EventCancelled:
		if v.active == nil || v.active.ID != ev.RequestID {
			return nil
		}
		v.active = nil
		v.notice = ev.Type

	case notifications.EventSnapshot:
		var snap struct {
			Active *models.PickupRequest `json:"active"`
		}
		if err := json.Unmarshal(ev.Payload, &snap); err != nil {
			return err
		}
		if snap.Active == nil {
			v.active = nil
			return nil
		}
		v.active = &ActiveRequest{ID: snap.Active.ID, State: snap.Active.State}
		if snap.Active.CollectorID != nil {
			v.active.ClaimantID = *snap.Active.CollectorID
		}
	}
	return nil
}

// BeginSubmit applies an optimistic submission: the view shows a pending
// request before the server confirms. The placeholder id is replaced by
// the authoritative one in ResolveSubmit.
func (v *RequesterView) BeginSubmit() (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.active != nil {
		return "", false
	}
	actionID := uuid.NewString()
	v.actions[actionID] = requesterOverlay{prior: nil}
	v.active = &ActiveRequest{ID: "pending:" + actionID, State: models.RequestPending}
	return actionID, true
}

// ResolveSubmit reconciles an optimistic submission. On success the
// placeholder takes the server-assigned id; on error the view rolls back
// to idle.
func (v *RequesterView) ResolveSubmit(actionID, requestID string, submitErr error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.actions[actionID]; !ok {
		return
	}
	delete(v.actions, actionID)

	if submitErr != nil {
		v.active = nil
		return
	}
	if v.active != nil {
		v.active.ID = requestID
	}
}

// BeginTerminal applies an optimistic cancel or complete: the active view
// clears immediately and is restored if the server rejects the action.
func (v *RequesterView) BeginTerminal() (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.active == nil {
		return "", false
	}
	actionID := uuid.NewString()
	v.actions[actionID] = requesterOverlay{requestID: v.active.ID, prior: v.active}
	v.active = nil
	return actionID, true
}

// ResolveTerminal reconciles an optimistic cancel/complete. A conflict
// restores the prior view unless an authoritative terminal event already
// cleared it.
func (v *RequesterView) ResolveTerminal(actionID string, actionErr error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	overlay, ok := v.actions[actionID]
	if !ok {
		return
	}
	delete(v.actions, actionID)

	if actionErr == nil {
		return
	}
	if v.active == nil && v.notice == "" {
		v.active = overlay.prior
	}
}

// TerminalNotice returns the pending terminal notice, at most once.
func (v *RequesterView) TerminalNotice() (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.notice == "" {
		return "", false
	}
	n := v.notice
	v.notice = ""
	return n, true
}
