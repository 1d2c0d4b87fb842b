package dispatch

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/khlayyel/alertsystem/internal/sqlite"
	"github.com/khlayyel/alertsystem/pkg/models"
)

// Audit event names recorded along the alert lifecycle.
const (
	AuditEventCreated   = "created"
	AuditEventSent      = "sent"
	AuditEventCancelled = "cancelled"
	AuditEventReminded  = "reminded"
	AuditEventConfirmed = "confirmed"
	AuditEventFailed    = "failed"
)

// Auditor consumes lifecycle events. Recording is best-effort; an auditor
// must never fail the operation it observes.
type Auditor interface {
	Record(ctx context.Context, event string, alertID models.AlertID, userID *models.UserID, detail string)
}

// StoreAuditor persists events into the audit_events table.
type StoreAuditor struct {
	db  *sqlite.DB
	log *slog.Logger
}

// NewStoreAuditor returns a sqlite-backed auditor.
func NewStoreAuditor(db *sqlite.DB, logger *slog.Logger) *StoreAuditor {
	return &StoreAuditor{db: db, log: logger.With("component", "audit")}
}

// Record implements Auditor.
func (a *StoreAuditor) Record(ctx context.Context, event string, alertID models.AlertID, userID *models.UserID, detail string) {
	err := a.db.InsertAuditEvent(ctx, &sqlite.AuditEvent{
		ID:      uuid.NewString(),
		AlertID: alertID,
		UserID:  userID,
		Event:   event,
		Detail:  detail,
	})
	if err != nil {
		a.log.Warn("failed to record audit event", "event", event, "alert_id", alertID, "error", err)
	}
}

// LogAuditor writes events to the structured log only. Used when no store is
// wired, e.g. in tests.
type LogAuditor struct {
	log *slog.Logger
}

// NewLogAuditor returns a log-only auditor.
func NewLogAuditor(logger *slog.Logger) *LogAuditor {
	return &LogAuditor{log: logger.With("component", "audit")}
}

// Record implements Auditor.
func (a *LogAuditor) Record(ctx context.Context, event string, alertID models.AlertID, userID *models.UserID, detail string) {
	args := []any{"event", event, "alert_id", alertID}
	if userID != nil {
		args = append(args, "user_id", *userID)
	}
	if detail != "" {
		args = append(args, "detail", detail)
	}
	a.log.Info("audit", args...)
}
