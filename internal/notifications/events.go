package notifications

import (
	"encoding/json"

	"reciapp/internal/models"
)

// Event types carried over the dispatch channel.
const (
	EventCreated   = "created"
	EventClaimed   = "claimed"
	EventWithdrawn = "withdrawn"
	EventLocation  = "location"
	EventCompleted = "completed"
	EventCancelled = "cancelled"
	EventSnapshot  = "snapshot"
	EventConnected = "connected"
)

// Event is the discriminated payload pushed to dispatch sessions. Type is
// always set; RequestID is set for every lifecycle/location event.
type Event struct {
	Type      string      `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
}

// Encode serializes the event for the wire.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// MaterialPayload mirrors one material line of a request.
type MaterialPayload struct {
	MaterialType models.MaterialType `json:"material_type"`
	QuantityKg   float64             `json:"quantity_kg"`
}

// CreatedPayload carries the full request so collectors can render it
// without a follow-up fetch.
type CreatedPayload struct {
	RequesterID uint              `json:"requester_id"`
	Materials   []MaterialPayload `json:"materials"`
	Latitude    float64           `json:"latitude"`
	Longitude   float64           `json:"longitude"`
	CreatedAt   int64             `json:"created_at"`
}

// ClaimedPayload identifies the winning collector.
type ClaimedPayload struct {
	ClaimantID uint `json:"claimant_id"`
}

// LocationPayload is a claimant position tick.
type LocationPayload struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// CompletedPayload reports the final transferred quantity, when recorded.
type CompletedPayload struct {
	CompletedKg *float64 `json:"completed_kg,omitempty"`
}

// NewCreatedEvent builds the broadcast sent to collectors when a request
// enters the pending state.
func NewCreatedEvent(req *models.PickupRequest) Event {
	materials := make([]MaterialPayload, 0, len(req.Materials))
	for _, m := range req.Materials {
		materials = append(materials, MaterialPayload{
			MaterialType: m.MaterialType,
			QuantityKg:   m.QuantityKg,
		})
	}
	return Event{
		Type:      EventCreated,
		RequestID: req.ID,
		Payload: CreatedPayload{
			RequesterID: req.RequesterID,
			Materials:   materials,
			Latitude:    req.Latitude,
			Longitude:   req.Longitude,
			CreatedAt:   req.CreatedAt.Unix(),
		},
	}
}

// NewClaimedEvent notifies the requester that a collector won the claim.
func NewClaimedEvent(requestID string, claimantID uint) Event {
	return Event{
		Type:      EventClaimed,
		RequestID: requestID,
		Payload:   ClaimedPayload{ClaimantID: claimantID},
	}
}

// NewWithdrawnEvent tells collectors a request is no longer claimable.
func NewWithdrawnEvent(requestID string) Event {
	return Event{Type: EventWithdrawn, RequestID: requestID}
}

// NewLocationEvent forwards a claimant coordinate to the requester.
func NewLocationEvent(requestID string, lat, lng float64) Event {
	return Event{
		Type:      EventLocation,
		RequestID: requestID,
		Payload:   LocationPayload{Lat: lat, Lng: lng},
	}
}

// NewCompletedEvent notifies the counterpart of a completed pickup.
func NewCompletedEvent(requestID string, completedKg *float64) Event {
	return Event{
		Type:      EventCompleted,
		RequestID: requestID,
		Payload:   CompletedPayload{CompletedKg: completedKg},
	}
}

// NewCancelledEvent notifies interested parties of a cancellation.
func NewCancelledEvent(requestID string) Event {
	return Event{Type: EventCancelled, RequestID: requestID}
}

// NewSnapshotEvent carries the authoritative state pushed right after a
// session registers, so reconnecting clients resynchronize without a
// separate fetch.
func NewSnapshotEvent(payload interface{}) Event {
	return Event{Type: EventSnapshot, Payload: payload}
}
