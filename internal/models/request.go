package models

import (
	"time"
)

// RequestState is the lifecycle state of a pickup request.
type RequestState string

const (
	// RequestPending indicates the request is visible to collectors and unclaimed.
	RequestPending RequestState = "pending"
	// RequestClaimed indicates exactly one collector has claimed the request.
	RequestClaimed RequestState = "claimed"
	// RequestCompleted indicates the pickup finished. Terminal.
	RequestCompleted RequestState = "completed"
	// RequestCancelled indicates the requester cancelled. Terminal.
	RequestCancelled RequestState = "cancelled"
)

// Terminal reports whether s admits no further transitions.
func (s RequestState) Terminal() bool {
	return s == RequestCompleted || s == RequestCancelled
}

// MaterialType identifies a recyclable material category.
type MaterialType string

const (
	MaterialPlastic   MaterialType = "plastico"
	MaterialCardboard MaterialType = "carton"
	MaterialGlass     MaterialType = "vidrio"
	MaterialMetal     MaterialType = "metal"
	MaterialPaper     MaterialType = "papel"
)

// Valid reports whether t is one of the known material categories.
func (t MaterialType) Valid() bool {
	switch t {
	case MaterialPlastic, MaterialCardboard, MaterialGlass, MaterialMetal, MaterialPaper:
		return true
	}
	return false
}

// RequestMaterial is one line item of a pickup request. The set of
// materials is fixed at creation; editing requires a new request.
type RequestMaterial struct {
	ID           uint         `gorm:"primaryKey" json:"-"`
	RequestID    string       `gorm:"index;not null" json:"-"`
	Position     int          `gorm:"not null" json:"-"`
	MaterialType MaterialType `gorm:"not null" json:"material_type"`
	QuantityKg   float64      `gorm:"not null" json:"quantity_kg"`
}

// PickupRequest is a citizen's doorstep collection request. The ID is a
// UUID assigned at creation. RequesterID, Materials and the pickup
// coordinate are immutable; CollectorID is set at most once, by the
// winning claim.
type PickupRequest struct {
	ID          string            `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	RequesterID uint              `gorm:"index;not null" json:"requester_id"`
	CollectorID *uint             `gorm:"index" json:"collector_id,omitempty"`
	Materials   []RequestMaterial `gorm:"foreignKey:RequestID;references:ID" json:"materials"`
	Latitude    float64           `gorm:"not null" json:"latitude"`
	Longitude   float64           `gorm:"not null" json:"longitude"`
	State       RequestState      `gorm:"index;not null;default:'pending'" json:"state"`
	ClaimedAt   *time.Time        `json:"claimed_at,omitempty"`
	TerminalAt  *time.Time        `json:"terminal_at,omitempty"`
	CompletedKg *float64          `json:"completed_kg,omitempty"`

	Requester User  `gorm:"foreignKey:RequesterID" json:"requester,omitempty"`
	Collector *User `gorm:"foreignKey:CollectorID" json:"collector,omitempty"`
}

// TotalKg is the requested quantity across all materials.
func (r *PickupRequest) TotalKg() float64 {
	var sum float64
	for _, m := range r.Materials {
		sum += m.QuantityKg
	}
	return sum
}

// HasMaterial reports whether any line item matches the given type.
func (r *PickupRequest) HasMaterial(t MaterialType) bool {
	for _, m := range r.Materials {
		if m.MaterialType == t {
			return true
		}
	}
	return false
}

// ClaimedBy reports whether userID is the current claimant.
func (r *PickupRequest) ClaimedBy(userID uint) bool {
	return r.CollectorID != nil && *r.CollectorID == userID
}

// LocationUpdate is a transient position tick from a claimant. It is
// relayed, never persisted; only the most recent tick per request matters.
type LocationUpdate struct {
	RequestID   string    `json:"request_id"`
	CollectorID uint      `json:"collector_id"`
	Lat         float64   `json:"lat"`
	Lng         float64   `json:"lng"`
	Timestamp   time.Time `json:"timestamp"`
}
