package users

import "time"

// User is an account as the access layer sees it: identity, role and
// activation. Credentials live in the auth module.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RoleChange records who moved a user between roles.
type RoleChange struct {
	UserID  int64
	ActorID string
	From    string
	To      string
}
