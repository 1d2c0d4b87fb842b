package models

import "time"

// UserID identifies a recipient or actor.
type UserID int64

// DepartmentID identifies a department.
type DepartmentID int64

// UserRole gates who may target whom. Roles do not affect dispatch internals.
type UserRole string

const (
	UserRoleAdmin   UserRole = "admin"
	UserRoleManager UserRole = "manager"
	UserRoleMember  UserRole = "member"
)

// User is a recipient-capable identity. Contact fields are optional; a
// channel sender simply skips a recipient that lacks the matching address.
type User struct {
	ID           UserID        `json:"id"`
	FullName     string        `json:"full_name"`
	Email        string        `json:"email,omitempty"`
	Phone        string        `json:"phone,omitempty"`
	DepartmentID *DepartmentID `json:"department_id,omitempty"`
	Role         UserRole      `json:"role"`
	IsActive     bool          `json:"is_active"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Department groups users for scoped targeting.
type Department struct {
	ID   DepartmentID `json:"id"`
	Name string       `json:"name"`
}

// PushSubscription is one registered browser push endpoint for a user. A user
// may hold several (one per browser/device).
type PushSubscription struct {
	ID        int64     `json:"id"`
	UserID    UserID    `json:"user_id"`
	Endpoint  string    `json:"endpoint"`
	P256dh    string    `json:"p256dh"`
	Auth      string    `json:"auth"`
	CreatedAt time.Time `json:"created_at"`
}
