package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/khlayyel/alertsystem/pkg/models"
)

// AuditEvent is one structured row in the alert audit trail.
type AuditEvent struct {
	ID        string         `json:"id"`
	AlertID   models.AlertID `json:"alert_id"`
	UserID    *models.UserID `json:"user_id,omitempty"`
	Event     string         `json:"event"`
	Detail    string         `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// InsertAuditEvent appends one event to the audit trail.
func (db *DB) InsertAuditEvent(ctx context.Context, event *AuditEvent) error {
	if event == nil {
		return fmt.Errorf("audit event payload is required")
	}
	var userID any
	if event.UserID != nil {
		userID = int64(*event.UserID)
	}
	row := db.db.QueryRowContext(ctx,
		`INSERT INTO audit_events (id, alert_id, user_id, event, detail) VALUES (?, ?, ?, ?, ?) RETURNING created_at`,
		event.ID, int64(event.AlertID), userID, event.Event, event.Detail,
	)
	if err := row.Scan(&event.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// ListAuditEventsForAlert returns the alert's audit trail oldest-first.
func (db *DB) ListAuditEventsForAlert(ctx context.Context, alertID models.AlertID) ([]*AuditEvent, error) {
	rows, err := db.db.QueryContext(ctx,
		`SELECT id, alert_id, user_id, event, detail, created_at FROM audit_events WHERE alert_id = ? ORDER BY created_at, id`,
		int64(alertID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var events []*AuditEvent
	for rows.Next() {
		var (
			e      AuditEvent
			userID sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.AlertID, &userID, &e.Event, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		if userID.Valid {
			id := models.UserID(userID.Int64)
			e.UserID = &id
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", err)
	}
	return events, nil
}
