// Package stores manages the tenants of the marketplace.
package stores

import "time"

// Store statuses.
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
)

// Member roles inside a store.
const (
	MemberOwner = "owner"
	MemberStaff = "staff"
)

// Store is one vendor tenant.
type Store struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Member links a user to a store.
type Member struct {
	StoreID string    `json:"store_id"`
	UserID  int64     `json:"user_id"`
	Email   string    `json:"email"`
	Role    string    `json:"role"`
	AddedAt time.Time `json:"added_at"`
}

// StoreUpdate carries the mutable store fields; nil means unchanged.
type StoreUpdate struct {
	Name   *string `json:"name" validate:"omitempty,min=2,max=120"`
	Status *string `json:"status" validate:"omitempty,oneof=active suspended"`
}

// MemberInput adds a user to a store.
type MemberInput struct {
	UserID int64  `json:"user_id" validate:"required,gt=0"`
	Role   string `json:"role" validate:"required,oneof=owner staff"`
}
