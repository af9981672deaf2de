package models

import "time"

// UserRole defines the access tier of a user.
type UserRole string

const (
	UserRoleFree  UserRole = "free"
	UserRolePaid  UserRole = "paid"
	UserRoleAdmin UserRole = "admin"
)

// User represents an authenticated account as returned by the server.
// Paid/role fields are server-derived; the client never computes them
// locally except through an explicit payment-status update.
type User struct {
	ID        int64      `json:"id"`
	Email     string     `json:"email,omitempty"`
	Role      UserRole   `json:"role"`
	IsPaid    bool       `json:"is_paid"`
	PaidUntil *time.Time `json:"paid_until,omitempty"`
	CreatedAt time.Time  `json:"created_at,omitempty"`
}
