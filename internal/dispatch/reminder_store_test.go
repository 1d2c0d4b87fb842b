package dispatch

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/khlayyel/alertsystem/internal/config"
	"github.com/khlayyel/alertsystem/internal/sqlite"
	"github.com/khlayyel/alertsystem/pkg/models"
)

func testSQLite(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.New(sqlite.Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// A due reminder that cannot be driven must leave the delivery failed in the
// store, not silently keep it sent.
func TestSchedulerFailurePersistsFailedStatus(t *testing.T) {
	db := testSQLite(t)
	ctx := context.Background()

	creator := &models.User{FullName: "creator", Email: "creator@example.com", Role: models.UserRoleAdmin, IsActive: true}
	require.NoError(t, db.CreateUser(ctx, creator))
	rcpt := &models.User{FullName: "alice", Email: "alice@example.com", Role: models.UserRoleMember, IsActive: true}
	require.NoError(t, db.CreateUser(ctx, rcpt))

	alert := &models.Alert{
		Title:     "Backup overdue",
		Message:   "Nightly backup has not completed",
		Kind:      models.AlertKindMandatory,
		IsManual:  true,
		CreatedBy: creator.ID,
	}
	// No requested channels: the reminder send has nothing to drive.
	deliveries, err := db.CreateAlertWithDeliveries(ctx, alert, []models.UserID{rcpt.ID}, []models.Channel{})
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	deliveryID := deliveries[0].ID

	_, err = db.TransitionAlertDeliveries(ctx, alert.ID, models.SendStatusPending, models.SendStatusSending)
	require.NoError(t, err)
	due := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, db.MarkDeliverySent(ctx, deliveryID, time.Now().UTC(), &due))

	s := NewScheduler(SchedulerOptions{
		Config:   testReminderConfig(),
		Store:    db,
		Channels: testRegistry(t, &fakeSender{channel: models.ChannelEmail}),
		Auditor:  NewStoreAuditor(db, slog.New(slog.NewTextHandler(io.Discard, nil))),
	})
	s.RunOnce(ctx)

	d, err := db.GetDelivery(ctx, deliveryID)
	require.NoError(t, err)
	require.Equal(t, models.SendStatusFailed, d.SendStatus)
}
