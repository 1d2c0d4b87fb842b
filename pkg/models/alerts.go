package models

import "time"

// AlertKind distinguishes alerts that require confirmation from purely
// informational broadcasts.
type AlertKind string

const (
	// AlertKindMandatory requires every recipient to confirm and is subject
	// to scheduled reminders until confirmed or the reminder budget runs out.
	AlertKindMandatory AlertKind = "mandatory"
	// AlertKindInformational is fire-and-forget; no confirmation, no reminders.
	AlertKindInformational AlertKind = "informational"
)

// Valid reports whether the kind is one of the known values.
func (k AlertKind) Valid() bool {
	return k == AlertKindMandatory || k == AlertKindInformational
}

// AlertID identifies a single broadcast instance.
type AlertID int64

// Alert is one broadcast message instance. Alerts are immutable after
// creation; a "send" action always creates a fresh Alert row so history is
// preserved rather than mutating a template.
type Alert struct {
	ID           AlertID       `json:"id"`
	Title        string        `json:"title"`
	Message      string        `json:"message"`
	Kind         AlertKind     `json:"kind"`
	IsManual     bool          `json:"is_manual"`
	CreatedBy    UserID        `json:"created_by"`
	DepartmentID *DepartmentID `json:"department_id,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// SendAlertRequest is the payload for creating and dispatching an alert.
// Exactly one of UserIDs, DepartmentID or Broadcast selects the target set.
type SendAlertRequest struct {
	Title        string        `json:"title"`
	Message      string        `json:"message"`
	Kind         AlertKind     `json:"kind"`
	UserIDs      []UserID      `json:"user_ids,omitempty"`
	DepartmentID *DepartmentID `json:"department_id,omitempty"`
	Broadcast    bool          `json:"broadcast,omitempty"`
	Channels     []Channel     `json:"channels"`
}

// TargetSpec is the resolver-facing view of an alert's target selection.
type TargetSpec struct {
	UserIDs      []UserID
	DepartmentID *DepartmentID
	Broadcast    bool
}
