package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/khlayyel/alertsystem/internal/dispatch"
	"github.com/khlayyel/alertsystem/internal/sqlite"
	"github.com/khlayyel/alertsystem/pkg/models"
)

var (
	// ErrInvalidAlertRequest indicates the send payload failed validation.
	ErrInvalidAlertRequest = errors.New("invalid alert request")
	// ErrNoRecipients means target resolution produced an empty set; the
	// send is a no-op and no rows were written.
	ErrNoRecipients = errors.New("no valid recipients")
)

// SendAlert validates the request, resolves recipients, persists the alert
// with one pending delivery per recipient, and hands the batch to the
// dispatch coordinator which opens the cancellation window.
func SendAlert(ctx context.Context, db *sqlite.DB, log *slog.Logger, coord *dispatch.Coordinator, auditor dispatch.Auditor, actor *models.User, req *models.SendAlertRequest, window time.Duration) (*models.Alert, error) {
	if err := validateSendRequest(req); err != nil {
		return nil, err
	}
	channels, err := models.ParseChannels(req.Channels)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAlertRequest, err)
	}

	recipients, err := ResolveRecipients(ctx, db, actor, models.TargetSpec{
		UserIDs:      req.UserIDs,
		DepartmentID: req.DepartmentID,
		Broadcast:    req.Broadcast,
	})
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}

	alert := &models.Alert{
		Title:        strings.TrimSpace(req.Title),
		Message:      req.Message,
		Kind:         req.Kind,
		IsManual:     true,
		CreatedBy:    actor.ID,
		DepartmentID: req.DepartmentID,
	}

	recipientIDs := make([]models.UserID, len(recipients))
	for i, u := range recipients {
		recipientIDs[i] = u.ID
	}
	deliveries, err := db.CreateAlertWithDeliveries(ctx, alert, recipientIDs, channels)
	if err != nil {
		return nil, fmt.Errorf("failed to persist alert: %w", err)
	}

	actorID := actor.ID
	auditor.Record(ctx, dispatch.AuditEventCreated, alert.ID, &actorID,
		fmt.Sprintf("alert created for %d recipients", len(recipients)))

	batch := make([]dispatch.Recipient, len(deliveries))
	byID := make(map[models.UserID]*models.User, len(recipients))
	for _, u := range recipients {
		byID[u.ID] = u
	}
	for i, d := range deliveries {
		batch[i] = dispatch.Recipient{User: byID[d.UserID], Delivery: d}
	}

	if err := coord.Send(alert, batch, window); err != nil {
		return nil, fmt.Errorf("failed to schedule dispatch: %w", err)
	}
	log.Info("alert send scheduled", "alert_id", alert.ID, "recipients", len(recipients), "kind", alert.Kind)
	return alert, nil
}

// ConfirmDelivery marks one delivery confirmed and stops its reminders.
func ConfirmDelivery(ctx context.Context, db *sqlite.DB, auditor dispatch.Auditor, deliveryID models.DeliveryID) error {
	delivery, err := db.GetDelivery(ctx, deliveryID)
	if err != nil {
		return err
	}
	if err := db.ConfirmDelivery(ctx, deliveryID, time.Now().UTC()); err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			// Already confirmed; confirming twice is harmless.
			return nil
		}
		return err
	}
	userID := delivery.UserID
	auditor.Record(ctx, dispatch.AuditEventConfirmed, delivery.AlertID, &userID, "")
	return nil
}

func validateSendRequest(req *models.SendAlertRequest) error {
	if req == nil {
		return fmt.Errorf("%w: request payload is required", ErrInvalidAlertRequest)
	}
	if strings.TrimSpace(req.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidAlertRequest)
	}
	if strings.TrimSpace(req.Message) == "" {
		return fmt.Errorf("%w: message is required", ErrInvalidAlertRequest)
	}
	if !req.Kind.Valid() {
		return fmt.Errorf("%w: kind must be mandatory or informational", ErrInvalidAlertRequest)
	}
	targets := 0
	if len(req.UserIDs) > 0 {
		targets++
	}
	if req.DepartmentID != nil {
		targets++
	}
	if req.Broadcast {
		targets++
	}
	if targets != 1 {
		return fmt.Errorf("%w: exactly one of user_ids, department_id or broadcast must be set", ErrInvalidAlertRequest)
	}
	return nil
}
