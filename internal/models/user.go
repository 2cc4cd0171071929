// Package models defines the domain entities and error types for the
// collection dispatch backend.
package models

import (
	"time"

	"gorm.io/gorm"
)

// Role distinguishes the two client roles of the dispatch protocol.
type Role string

const (
	// RoleRequester is a citizen submitting pickup requests.
	RoleRequester Role = "requester"
	// RoleCollector is a field collector claiming and fulfilling requests.
	RoleCollector Role = "collector"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleRequester || r == RoleCollector
}

// User is a resolved identity. Credential issuance lives in an external
// identity provider; this table only mirrors the identities that JWT
// subjects resolve to.
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	Username  string         `gorm:"uniqueIndex;not null" json:"username"`
	Role      Role           `gorm:"not null;default:'requester'" json:"role"`
}
