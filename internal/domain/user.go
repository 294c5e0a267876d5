package domain

import "time"

// Role represents a user's role in the proposal-review workflow.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleReviewer  Role = "reviewer"
	RoleSubmitter Role = "submitter"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleReviewer, RoleSubmitter:
		return true
	}
	return false
}

// User is a row from the user directory. The notification core reads the
// directory to resolve audiences; it never mutates it.
type User struct {
	ID          int64     `json:"id" db:"id"`
	Email       string    `json:"email" db:"email"`
	DisplayName string    `json:"display_name" db:"display_name"`
	Role        Role      `json:"role" db:"role"`
	Phone       *string   `json:"phone,omitempty" db:"phone"`
	PushToken   *string   `json:"push_token,omitempty" db:"push_token"`
	Approved    bool      `json:"approved" db:"approved"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Principal is the authenticated caller supplied by the auth boundary.
// The core trusts it and performs no credential verification of its own.
type Principal struct {
	ID   int64
	Role Role
}

// IsAdmin reports whether the principal may call admin-only operations.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}
