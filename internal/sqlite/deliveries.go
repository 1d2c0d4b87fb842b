package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/khlayyel/alertsystem/pkg/models"
)

const (
	selectDeliveryBase = `SELECT id, alert_id, user_id, confirmed, confirmed_at, last_sent_at, next_reminder_at, channels, send_status, reminder_count
FROM deliveries`

	// Status updates carry a guard on the current status so a regression
	// (e.g. sending back to pending) is never observable, even if two
	// writers race on the same alert.
	transitionAlertDeliveriesQuery = `UPDATE deliveries
SET send_status = ?
WHERE alert_id = ? AND send_status = ?`

	listDueRemindersQuery = `SELECT
    d.id, d.alert_id, d.user_id, d.confirmed, d.confirmed_at, d.last_sent_at, d.next_reminder_at, d.channels, d.send_status, d.reminder_count,
    a.id, a.title, a.message, a.kind, a.is_manual, a.created_by, a.department_id, a.created_at,
    u.id, u.full_name, u.email, u.phone, u.department_id, u.role, u.is_active, u.created_at
FROM deliveries d
JOIN alerts a ON a.id = d.alert_id
JOIN users u ON u.id = d.user_id
WHERE a.kind = 'mandatory'
  AND d.confirmed = 0
  AND d.next_reminder_at IS NOT NULL
  AND d.next_reminder_at <= ?
  AND d.send_status != 'cancelled'
ORDER BY d.next_reminder_at ASC
LIMIT ?`
)

// TransitionAlertDeliveries moves every delivery of the alert currently in
// the from status into the to status, returning the number of rows moved.
func (db *DB) TransitionAlertDeliveries(ctx context.Context, alertID models.AlertID, from, to models.SendStatus) (int64, error) {
	if !from.CanTransition(to) {
		return 0, fmt.Errorf("illegal delivery transition %s -> %s", from, to)
	}
	res, err := db.db.ExecContext(ctx, transitionAlertDeliveriesQuery, string(to), int64(alertID), string(from))
	if err != nil {
		return 0, fmt.Errorf("failed to transition deliveries: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows, nil
}

// MarkDeliverySent stamps a successful fan-out for one delivery, recording
// the send time and, for mandatory alerts, scheduling the first reminder.
func (db *DB) MarkDeliverySent(ctx context.Context, deliveryID models.DeliveryID, sentAt time.Time, nextReminderAt *time.Time) error {
	_, err := db.db.ExecContext(ctx,
		`UPDATE deliveries SET send_status = ?, last_sent_at = ?, next_reminder_at = ? WHERE id = ? AND send_status = ?`,
		string(models.SendStatusSent), sentAt, timeArg(nextReminderAt), int64(deliveryID), string(models.SendStatusSending),
	)
	if err != nil {
		return fmt.Errorf("failed to mark delivery sent: %w", err)
	}
	return nil
}

// MarkDeliveryFailed records a failed delivery. Reachable from pending and
// sending on the dispatch path, and from sent when a reminder cannot be
// driven; never from cancelled or failed.
func (db *DB) MarkDeliveryFailed(ctx context.Context, deliveryID models.DeliveryID) error {
	_, err := db.db.ExecContext(ctx,
		`UPDATE deliveries SET send_status = ? WHERE id = ? AND send_status IN (?, ?, ?)`,
		string(models.SendStatusFailed), int64(deliveryID),
		string(models.SendStatusPending), string(models.SendStatusSending), string(models.SendStatusSent),
	)
	if err != nil {
		return fmt.Errorf("failed to mark delivery failed: %w", err)
	}
	return nil
}

// ConfirmDelivery marks the delivery confirmed and clears any scheduled
// reminder so the next tick no longer picks it up.
func (db *DB) ConfirmDelivery(ctx context.Context, deliveryID models.DeliveryID, at time.Time) error {
	res, err := db.db.ExecContext(ctx,
		`UPDATE deliveries SET confirmed = 1, confirmed_at = ?, next_reminder_at = NULL WHERE id = ? AND confirmed = 0`,
		at, int64(deliveryID),
	)
	if err != nil {
		return fmt.Errorf("failed to confirm delivery: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateReminderState persists the post-reminder bookkeeping for one
// delivery: last send time, next due time (nil once the budget is spent) and
// the incremented count.
func (db *DB) UpdateReminderState(ctx context.Context, deliveryID models.DeliveryID, lastSentAt time.Time, nextReminderAt *time.Time, reminderCount int) error {
	_, err := db.db.ExecContext(ctx,
		`UPDATE deliveries SET last_sent_at = ?, next_reminder_at = ?, reminder_count = ? WHERE id = ?`,
		lastSentAt, timeArg(nextReminderAt), reminderCount, int64(deliveryID),
	)
	if err != nil {
		return fmt.Errorf("failed to update reminder state: %w", err)
	}
	return nil
}

// GetDelivery retrieves a delivery by id.
func (db *DB) GetDelivery(ctx context.Context, deliveryID models.DeliveryID) (*models.Delivery, error) {
	row := db.db.QueryRowContext(ctx, selectDeliveryBase+" WHERE id = ?", int64(deliveryID))
	return scanDelivery(row)
}

// ListDeliveriesForAlert fetches all deliveries belonging to an alert.
func (db *DB) ListDeliveriesForAlert(ctx context.Context, alertID models.AlertID) ([]*models.Delivery, error) {
	rows, err := db.db.QueryContext(ctx, selectDeliveryBase+" WHERE alert_id = ? ORDER BY id", int64(alertID))
	if err != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []*models.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deliveries: %w", err)
	}
	return deliveries, nil
}

// ListDueReminders returns unconfirmed mandatory deliveries whose reminder
// time has passed, joined with their alert and recipient.
func (db *DB) ListDueReminders(ctx context.Context, now time.Time, limit int) ([]*models.DueReminder, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := db.db.QueryContext(ctx, listDueRemindersQuery, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due reminders: %w", err)
	}
	defer rows.Close()

	var due []*models.DueReminder
	for rows.Next() {
		var (
			d            models.Delivery
			confirmed    int
			confirmedAt  sql.NullTime
			lastSentAt   sql.NullTime
			nextAt       sql.NullTime
			channelsJSON string
			status       string

			a         models.Alert
			aKind     string
			aManual   int
			aDept     sql.NullInt64
			u         models.User
			uDept     sql.NullInt64
			uRole     string
			uIsActive int
		)
		err := rows.Scan(
			&d.ID, &d.AlertID, &d.UserID, &confirmed, &confirmedAt, &lastSentAt, &nextAt, &channelsJSON, &status, &d.ReminderCount,
			&a.ID, &a.Title, &a.Message, &aKind, &aManual, &a.CreatedBy, &aDept, &a.CreatedAt,
			&u.ID, &u.FullName, &u.Email, &u.Phone, &uDept, &uRole, &uIsActive, &u.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan due reminder: %w", err)
		}
		d.Confirmed = confirmed != 0
		d.ConfirmedAt = nullableTime(confirmedAt)
		d.LastSentAt = nullableTime(lastSentAt)
		d.NextReminderAt = nullableTime(nextAt)
		d.SendStatus = models.SendStatus(status)
		if err := json.Unmarshal([]byte(channelsJSON), &d.Channels); err != nil {
			return nil, fmt.Errorf("failed to decode channels for delivery %d: %w", d.ID, err)
		}
		a.Kind = models.AlertKind(aKind)
		a.IsManual = aManual != 0
		if aDept.Valid {
			dep := models.DepartmentID(aDept.Int64)
			a.DepartmentID = &dep
		}
		u.Role = models.UserRole(uRole)
		u.IsActive = uIsActive != 0
		if uDept.Valid {
			dep := models.DepartmentID(uDept.Int64)
			u.DepartmentID = &dep
		}
		entry := &models.DueReminder{Delivery: d, Alert: a, User: u}
		if d.NextReminderAt != nil {
			entry.DueAt = *d.NextReminderAt
		}
		due = append(due, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating due reminders: %w", err)
	}
	return due, nil
}

func scanDelivery(row rowScanner) (*models.Delivery, error) {
	var (
		d            models.Delivery
		confirmed    int
		confirmedAt  sql.NullTime
		lastSentAt   sql.NullTime
		nextAt       sql.NullTime
		channelsJSON string
		status       string
	)
	err := row.Scan(&d.ID, &d.AlertID, &d.UserID, &confirmed, &confirmedAt, &lastSentAt, &nextAt, &channelsJSON, &status, &d.ReminderCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan delivery: %w", err)
	}
	d.Confirmed = confirmed != 0
	d.ConfirmedAt = nullableTime(confirmedAt)
	d.LastSentAt = nullableTime(lastSentAt)
	d.NextReminderAt = nullableTime(nextAt)
	d.SendStatus = models.SendStatus(status)
	if err := json.Unmarshal([]byte(channelsJSON), &d.Channels); err != nil {
		return nil, fmt.Errorf("failed to decode channels for delivery %d: %w", d.ID, err)
	}
	return &d, nil
}
