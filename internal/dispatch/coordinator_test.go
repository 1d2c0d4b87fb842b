package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/khlayyel/alertsystem/internal/channels"
	"github.com/khlayyel/alertsystem/internal/config"
	"github.com/khlayyel/alertsystem/pkg/models"
)

// fakeStore is an in-memory DeliveryStore tracking per-delivery state.
type fakeStore struct {
	mu         sync.Mutex
	statuses   map[models.DeliveryID]models.SendStatus
	alerts     map[models.DeliveryID]models.AlertID
	reminderAt map[models.DeliveryID]*time.Time
	due        []*models.DueReminder
	updates    []reminderStateUpdate
}

type reminderStateUpdate struct {
	deliveryID     models.DeliveryID
	lastSentAt     time.Time
	nextReminderAt *time.Time
	reminderCount  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		statuses:   make(map[models.DeliveryID]models.SendStatus),
		alerts:     make(map[models.DeliveryID]models.AlertID),
		reminderAt: make(map[models.DeliveryID]*time.Time),
	}
}

func (s *fakeStore) addDelivery(d models.Delivery) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[d.ID] = d.SendStatus
	s.alerts[d.ID] = d.AlertID
}

func (s *fakeStore) status(id models.DeliveryID) models.SendStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statuses[id]
}

func (s *fakeStore) nextReminder(id models.DeliveryID) *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reminderAt[id]
}

func (s *fakeStore) TransitionAlertDeliveries(ctx context.Context, alertID models.AlertID, from, to models.SendStatus) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, st := range s.statuses {
		if s.alerts[id] == alertID && st == from {
			s.statuses[id] = to
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) MarkDeliverySent(ctx context.Context, deliveryID models.DeliveryID, sentAt time.Time, nextReminderAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[deliveryID] = models.SendStatusSent
	s.reminderAt[deliveryID] = nextReminderAt
	return nil
}

func (s *fakeStore) MarkDeliveryFailed(ctx context.Context, deliveryID models.DeliveryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Same status guard as the sqlite implementation.
	if s.statuses[deliveryID].CanTransition(models.SendStatusFailed) {
		s.statuses[deliveryID] = models.SendStatusFailed
	}
	return nil
}

func (s *fakeStore) ListDueReminders(ctx context.Context, now time.Time, limit int) ([]*models.DueReminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit < len(s.due) {
		return s.due[:limit], nil
	}
	return s.due, nil
}

func (s *fakeStore) UpdateReminderState(ctx context.Context, deliveryID models.DeliveryID, lastSentAt time.Time, nextReminderAt *time.Time, reminderCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, reminderStateUpdate{deliveryID, lastSentAt, nextReminderAt, reminderCount})
	return nil
}

// fakeSender counts invocations and can be told to fail for certain users.
type fakeSender struct {
	channel models.Channel
	calls   atomic.Int64
	failFor map[models.UserID]bool
}

func (f *fakeSender) Channel() models.Channel { return f.channel }

func (f *fakeSender) Send(ctx context.Context, user *models.User, title, body string) bool {
	f.calls.Add(1)
	if f.failFor != nil && f.failFor[user.ID] {
		return false
	}
	return true
}

func testRegistry(t *testing.T, senders ...channels.Sender) *channels.Registry {
	t.Helper()
	reg, err := channels.NewRegistry(senders...)
	require.NoError(t, err)
	return reg
}

func testAlert(id models.AlertID, kind models.AlertKind) *models.Alert {
	return &models.Alert{
		ID:      id,
		Title:   "Server room temperature",
		Message: "Temperature above threshold in rack 4",
		Kind:    kind,
	}
}

func testRecipients(alertID models.AlertID, store *fakeStore, userIDs ...models.UserID) []Recipient {
	out := make([]Recipient, 0, len(userIDs))
	for i, uid := range userIDs {
		d := models.Delivery{
			ID:         models.DeliveryID(int64(alertID)*100 + int64(i)),
			AlertID:    alertID,
			UserID:     uid,
			SendStatus: models.SendStatusPending,
			Channels:   []models.Channel{models.ChannelEmail},
		}
		store.addDelivery(d)
		out = append(out, Recipient{
			User:     &models.User{ID: uid, FullName: "user", Email: "user@example.com"},
			Delivery: d,
		})
	}
	return out
}

func testReminderConfig() config.RemindersConfig {
	return config.RemindersConfig{
		Enabled:                    true,
		FirstReminderDelay:         30 * time.Minute,
		SubsequentReminderInterval: time.Hour,
		MaxReminders:               5,
		CheckInterval:              5 * time.Minute,
	}
}

func TestCoordinatorDeliversAfterWindow(t *testing.T) {
	store := newFakeStore()
	email := &fakeSender{channel: models.ChannelEmail}
	coord := NewCoordinator(CoordinatorOptions{
		Store:     store,
		Channels:  testRegistry(t, email),
		Reminders: testReminderConfig(),
	})

	alert := testAlert(1, models.AlertKindMandatory)
	recipients := testRecipients(1, store, 10, 11)

	require.NoError(t, coord.Send(alert, recipients, 20*time.Millisecond))
	coord.Wait()

	require.EqualValues(t, 2, email.calls.Load())
	for _, r := range recipients {
		require.Equal(t, models.SendStatusSent, store.status(r.Delivery.ID))
		require.NotNil(t, store.nextReminder(r.Delivery.ID), "mandatory alert should schedule a reminder")
	}
}

func TestCoordinatorInformationalSchedulesNoReminder(t *testing.T) {
	store := newFakeStore()
	email := &fakeSender{channel: models.ChannelEmail}
	coord := NewCoordinator(CoordinatorOptions{
		Store:     store,
		Channels:  testRegistry(t, email),
		Reminders: testReminderConfig(),
	})

	alert := testAlert(2, models.AlertKindInformational)
	recipients := testRecipients(2, store, 10)

	require.NoError(t, coord.Send(alert, recipients, 10*time.Millisecond))
	coord.Wait()

	require.Equal(t, models.SendStatusSent, store.status(recipients[0].Delivery.ID))
	require.Nil(t, store.nextReminder(recipients[0].Delivery.ID))
}

func TestCoordinatorCancelWithinWindow(t *testing.T) {
	store := newFakeStore()
	email := &fakeSender{channel: models.ChannelEmail}
	coord := NewCoordinator(CoordinatorOptions{
		Store:     store,
		Channels:  testRegistry(t, email),
		Reminders: testReminderConfig(),
	})

	alert := testAlert(3, models.AlertKindMandatory)
	recipients := testRecipients(3, store, 10, 11, 12)

	require.NoError(t, coord.Send(alert, recipients, time.Minute))
	require.True(t, coord.IsPending(alert.ID))
	require.True(t, coord.Cancel(alert.ID))
	coord.Wait()

	require.False(t, coord.IsPending(alert.ID))
	require.EqualValues(t, 0, email.calls.Load(), "no channel may be invoked for a cancelled alert")
	for _, r := range recipients {
		require.Equal(t, models.SendStatusCancelled, store.status(r.Delivery.ID))
	}
}

func TestCoordinatorCancelAfterDelivery(t *testing.T) {
	store := newFakeStore()
	email := &fakeSender{channel: models.ChannelEmail}
	coord := NewCoordinator(CoordinatorOptions{
		Store:     store,
		Channels:  testRegistry(t, email),
		Reminders: testReminderConfig(),
	})

	alert := testAlert(4, models.AlertKindMandatory)
	recipients := testRecipients(4, store, 10)

	require.NoError(t, coord.Send(alert, recipients, 5*time.Millisecond))
	coord.Wait()

	require.False(t, coord.Cancel(alert.ID))
	require.Equal(t, models.SendStatusSent, store.status(recipients[0].Delivery.ID))
}

func TestCoordinatorSecondCancelReturnsFalse(t *testing.T) {
	store := newFakeStore()
	coord := NewCoordinator(CoordinatorOptions{
		Store:     store,
		Channels:  testRegistry(t, &fakeSender{channel: models.ChannelEmail}),
		Reminders: testReminderConfig(),
	})

	alert := testAlert(5, models.AlertKindMandatory)
	recipients := testRecipients(5, store, 10)

	require.NoError(t, coord.Send(alert, recipients, time.Minute))
	require.True(t, coord.Cancel(alert.ID))
	require.False(t, coord.Cancel(alert.ID))
	coord.Wait()
}

func TestCoordinatorRejectsDuplicateSend(t *testing.T) {
	store := newFakeStore()
	coord := NewCoordinator(CoordinatorOptions{
		Store:     store,
		Channels:  testRegistry(t, &fakeSender{channel: models.ChannelEmail}),
		Reminders: testReminderConfig(),
	})

	alert := testAlert(6, models.AlertKindMandatory)
	recipients := testRecipients(6, store, 10)

	require.NoError(t, coord.Send(alert, recipients, time.Minute))
	require.Error(t, coord.Send(alert, recipients, time.Minute))
	require.True(t, coord.Cancel(alert.ID))
	coord.Wait()
}

func TestCoordinatorEmptyRecipientsIsNoop(t *testing.T) {
	store := newFakeStore()
	coord := NewCoordinator(CoordinatorOptions{
		Store:     store,
		Channels:  testRegistry(t, &fakeSender{channel: models.ChannelEmail}),
		Reminders: testReminderConfig(),
	})

	require.NoError(t, coord.Send(testAlert(7, models.AlertKindMandatory), nil, time.Minute))
	require.False(t, coord.IsPending(7))
	coord.Wait()
}

// One recipient's failing provider must not block delivery to the others.
func TestCoordinatorFailureIsolation(t *testing.T) {
	store := newFakeStore()
	email := &fakeSender{
		channel: models.ChannelEmail,
		failFor: map[models.UserID]bool{10: true},
	}
	coord := NewCoordinator(CoordinatorOptions{
		Store:     store,
		Channels:  testRegistry(t, email),
		Reminders: testReminderConfig(),
	})

	alert := testAlert(8, models.AlertKindMandatory)
	recipients := testRecipients(8, store, 10, 11)

	require.NoError(t, coord.Send(alert, recipients, 5*time.Millisecond))
	coord.Wait()

	require.EqualValues(t, 2, email.calls.Load(), "every recipient must be attempted")
	for _, r := range recipients {
		require.Equal(t, models.SendStatusSent, store.status(r.Delivery.ID))
	}
}

// Exactly one of a concurrent cancel and the window expiry may win: either
// the deliveries end cancelled with zero sends, or they end sent and the
// cancel reports false.
func TestCoordinatorCancelExpiryRace(t *testing.T) {
	for i := 0; i < 50; i++ {
		store := newFakeStore()
		email := &fakeSender{channel: models.ChannelEmail}
		coord := NewCoordinator(CoordinatorOptions{
			Store:     store,
			Channels:  testRegistry(t, email),
			Reminders: testReminderConfig(),
		})

		alertID := models.AlertID(1000 + i)
		alert := testAlert(alertID, models.AlertKindMandatory)
		recipients := testRecipients(alertID, store, 10)

		window := time.Duration(i%5+1) * time.Millisecond
		require.NoError(t, coord.Send(alert, recipients, window))

		cancelled := coord.Cancel(alertID)
		coord.Wait()

		status := store.status(recipients[0].Delivery.ID)
		if cancelled {
			require.Equal(t, models.SendStatusCancelled, status)
			require.EqualValues(t, 0, email.calls.Load())
		} else {
			require.Equal(t, models.SendStatusSent, status)
			require.EqualValues(t, 1, email.calls.Load())
		}
	}
}
