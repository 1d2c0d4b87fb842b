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
	insertAlertQuery = `INSERT INTO alerts (title, message, kind, is_manual, created_by, department_id)
VALUES (?, ?, ?, ?, ?, ?)
RETURNING id, created_at`

	selectAlertBase = `SELECT id, title, message, kind, is_manual, created_by, department_id, created_at
FROM alerts`

	deleteAlertQuery = `DELETE FROM alerts WHERE id = ?`
)

// CreateAlertWithDeliveries inserts the alert and one pending delivery per
// recipient in a single transaction. Delivery rows exist only once the send
// action happens, never at template-save time.
func (db *DB) CreateAlertWithDeliveries(ctx context.Context, alert *models.Alert, recipients []models.UserID, channels []models.Channel) ([]models.Delivery, error) {
	if alert == nil {
		return nil, fmt.Errorf("alert payload is required")
	}

	channelsJSON, err := json.Marshal(channels)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal channels: %w", err)
	}

	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var deptID any
	if alert.DepartmentID != nil {
		deptID = int64(*alert.DepartmentID)
	}
	row := tx.QueryRowContext(ctx, insertAlertQuery,
		alert.Title,
		alert.Message,
		string(alert.Kind),
		boolToInt(alert.IsManual),
		int64(alert.CreatedBy),
		deptID,
	)
	var (
		id        int64
		createdAt time.Time
	)
	if err := row.Scan(&id, &createdAt); err != nil {
		return nil, fmt.Errorf("failed to insert alert: %w", err)
	}
	alert.ID = models.AlertID(id)
	alert.CreatedAt = createdAt

	deliveries := make([]models.Delivery, 0, len(recipients))
	for _, userID := range recipients {
		var deliveryID int64
		err := tx.QueryRowContext(ctx,
			`INSERT INTO deliveries (alert_id, user_id, channels, send_status) VALUES (?, ?, ?, ?) RETURNING id`,
			id, int64(userID), string(channelsJSON), string(models.SendStatusPending),
		).Scan(&deliveryID)
		if err != nil {
			return nil, fmt.Errorf("failed to insert delivery for user %d: %w", userID, err)
		}
		deliveries = append(deliveries, models.Delivery{
			ID:         models.DeliveryID(deliveryID),
			AlertID:    alert.ID,
			UserID:     userID,
			Channels:   channels,
			SendStatus: models.SendStatusPending,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit alert creation: %w", err)
	}
	return deliveries, nil
}

// GetAlert retrieves an alert by its identifier.
func (db *DB) GetAlert(ctx context.Context, alertID models.AlertID) (*models.Alert, error) {
	row := db.db.QueryRowContext(ctx, selectAlertBase+" WHERE id = ?", int64(alertID))
	return scanAlert(row)
}

// ListAlerts fetches alerts newest-first.
func (db *DB) ListAlerts(ctx context.Context, limit int) ([]*models.Alert, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.db.QueryContext(ctx, selectAlertBase+" ORDER BY created_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*models.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alerts: %w", err)
	}
	return alerts, nil
}

// DeleteAlert removes an alert; its deliveries go with it via cascade.
func (db *DB) DeleteAlert(ctx context.Context, alertID models.AlertID) error {
	res, err := db.db.ExecContext(ctx, deleteAlertQuery, int64(alertID))
	if err != nil {
		return fmt.Errorf("failed to delete alert: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*models.Alert, error) {
	var (
		alert    models.Alert
		kind     string
		isManual int
		deptID   sql.NullInt64
	)
	err := row.Scan(&alert.ID, &alert.Title, &alert.Message, &kind, &isManual, &alert.CreatedBy, &deptID, &alert.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan alert: %w", err)
	}
	alert.Kind = models.AlertKind(kind)
	alert.IsManual = isManual != 0
	if deptID.Valid {
		d := models.DepartmentID(deptID.Int64)
		alert.DepartmentID = &d
	}
	return &alert, nil
}
