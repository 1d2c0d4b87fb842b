package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/khlayyel/alertsystem/internal/channels"
	"github.com/khlayyel/alertsystem/internal/config"
	"github.com/khlayyel/alertsystem/pkg/models"
)

// DeliveryStore is the slice of storage the dispatch pipeline needs.
// *sqlite.DB satisfies it.
type DeliveryStore interface {
	TransitionAlertDeliveries(ctx context.Context, alertID models.AlertID, from, to models.SendStatus) (int64, error)
	MarkDeliverySent(ctx context.Context, deliveryID models.DeliveryID, sentAt time.Time, nextReminderAt *time.Time) error
	MarkDeliveryFailed(ctx context.Context, deliveryID models.DeliveryID) error
	ListDueReminders(ctx context.Context, now time.Time, limit int) ([]*models.DueReminder, error)
	UpdateReminderState(ctx context.Context, deliveryID models.DeliveryID, lastSentAt time.Time, nextReminderAt *time.Time, reminderCount int) error
}

// Recipient pairs a resolved user with their delivery row for one alert.
type Recipient struct {
	User     *models.User
	Delivery models.Delivery
}

// CoordinatorOptions encapsulates the dependencies of the Coordinator.
type CoordinatorOptions struct {
	Store     DeliveryStore
	Channels  *channels.Registry
	Registry  *Registry
	Auditor   Auditor
	Logger    *slog.Logger
	Reminders config.RemindersConfig
	// Window is the default cancellation window applied when Send is called
	// with a non-positive one.
	Window time.Duration
	// SendTimeout bounds each individual channel-send attempt.
	SendTimeout time.Duration
}

// Coordinator orchestrates the per-alert send: it opens a cancellation
// window, and on expiry fans delivery out across the requested channels,
// recording per-recipient outcomes. Each alert-send runs as one supervised
// goroutine tracked in a wait group, so shutdown can drain in-flight work.
type Coordinator struct {
	store       DeliveryStore
	channels    *channels.Registry
	registry    *Registry
	auditor     Auditor
	log         *slog.Logger
	reminders   config.RemindersConfig
	window      time.Duration
	sendTimeout time.Duration

	wg sync.WaitGroup
}

// NewCoordinator constructs a Coordinator.
func NewCoordinator(opts CoordinatorOptions) *Coordinator {
	window := opts.Window
	if window <= 0 {
		window = 10 * time.Second
	}
	sendTimeout := opts.SendTimeout
	if sendTimeout <= 0 {
		sendTimeout = 15 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	auditor := opts.Auditor
	if auditor == nil {
		auditor = NewLogAuditor(logger)
	}
	registry := opts.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	return &Coordinator{
		store:       opts.Store,
		channels:    opts.Channels,
		registry:    registry,
		auditor:     auditor,
		log:         logger.With("component", "dispatch_coordinator"),
		reminders:   opts.Reminders,
		window:      window,
		sendTimeout: sendTimeout,
	}
}

// Send opens the cancellation window for an alert whose deliveries are
// already persisted as pending, then fans out on expiry. It returns
// immediately; the delayed task runs in the background and is the only
// mutator of this alert's deliveries until it terminates.
func (c *Coordinator) Send(alert *models.Alert, recipients []Recipient, window time.Duration) error {
	if alert == nil {
		return fmt.Errorf("alert is required")
	}
	if len(recipients) == 0 {
		// Resolver produced nobody; nothing to do.
		return nil
	}
	if window <= 0 {
		window = c.window
	}

	runCtx, cancel := context.WithCancel(context.Background())
	p, ok := c.registry.add(alert.ID, cancel)
	if !ok {
		cancel()
		return fmt.Errorf("alert %d already has a pending send", alert.ID)
	}

	c.log.Info("dispatch scheduled", "alert_id", alert.ID, "recipients", len(recipients), "window", window)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.registry.remove(alert.ID)
		defer cancel()

		timer := time.NewTimer(window)
		defer timer.Stop()

		select {
		case <-timer.C:
			if !p.claim() {
				// A concurrent cancel won the race at the window boundary.
				c.markCancelled(alert)
				return
			}
			c.fanOut(runCtx, alert, recipients)
		case <-runCtx.Done():
			c.markCancelled(alert)
		}
	}()
	return nil
}

// Cancel aborts the alert's delayed task if it is still within its window.
// A false return means the alert already progressed past cancellation.
func (c *Coordinator) Cancel(alertID models.AlertID) bool {
	return c.registry.Cancel(alertID)
}

// IsPending reports whether the alert is still inside its cancellation
// window.
func (c *Coordinator) IsPending(alertID models.AlertID) bool {
	return c.registry.IsPending(alertID)
}

// Wait blocks until every in-flight delayed task has terminated.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) markCancelled(alert *models.Alert) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := c.store.TransitionAlertDeliveries(ctx, alert.ID, models.SendStatusPending, models.SendStatusCancelled); err != nil {
		c.log.Error("failed to mark deliveries cancelled", "alert_id", alert.ID, "error", err)
		return
	}
	alertsCancelledTotal.Inc()
	c.auditor.Record(ctx, AuditEventCancelled, alert.ID, nil, "cancelled during dispatch window")
	c.log.Info("alert cancelled during dispatch window", "alert_id", alert.ID)
}

// fanOut transitions the alert's deliveries to sending and invokes the
// matching sender for every recipient × requested channel. The unit of
// failure containment is a single (alert, recipient, channel) triple: one
// failing provider never aborts the rest of the batch.
func (c *Coordinator) fanOut(ctx context.Context, alert *models.Alert, recipients []Recipient) {
	if _, err := c.store.TransitionAlertDeliveries(ctx, alert.ID, models.SendStatusPending, models.SendStatusSending); err != nil {
		c.log.Error("failed to transition deliveries to sending", "alert_id", alert.ID, "error", err)
		c.markAllFailed(ctx, alert)
		return
	}

	var wg sync.WaitGroup
	for _, rcpt := range recipients {
		wg.Add(1)
		go func(rcpt Recipient) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					c.log.Error("panic during recipient fan-out", "alert_id", alert.ID, "user_id", rcpt.User.ID, "panic", r)
					c.failDelivery(alert, rcpt)
				}
			}()
			c.sendToRecipient(ctx, alert, rcpt)
		}(rcpt)
	}
	wg.Wait()

	alertsSentTotal.Inc()
	c.auditor.Record(ctx, AuditEventSent, alert.ID, nil, fmt.Sprintf("fan-out completed for %d recipients", len(recipients)))
	c.log.Info("dispatch completed", "alert_id", alert.ID, "recipients", len(recipients))
}

// sendToRecipient attempts every requested channel for one recipient. The
// stored status does not distinguish partial per-channel failure from full
// success; only the log does.
func (c *Coordinator) sendToRecipient(ctx context.Context, alert *models.Alert, rcpt Recipient) {
	for _, ch := range rcpt.Delivery.Channels {
		sender, ok := c.channels.For(ch)
		if !ok {
			c.log.Warn("no sender registered for channel", "channel", ch, "alert_id", alert.ID)
			continue
		}
		sendCtx, cancel := context.WithTimeout(ctx, c.sendTimeout)
		delivered := sender.Send(sendCtx, rcpt.User, alert.Title, alert.Message)
		cancel()
		channelSendCounter(ch, delivered).Inc()
		if !delivered {
			c.log.Warn("channel send failed", "alert_id", alert.ID, "user_id", rcpt.User.ID, "channel", ch)
		}
	}

	now := time.Now().UTC()
	var nextReminderAt *time.Time
	if alert.Kind == models.AlertKindMandatory && c.reminders.Enabled && c.reminders.MaxReminders > 0 {
		t := now.Add(c.reminders.FirstReminderDelay)
		nextReminderAt = &t
	}
	if err := c.store.MarkDeliverySent(ctx, rcpt.Delivery.ID, now, nextReminderAt); err != nil {
		c.log.Error("failed to mark delivery sent", "alert_id", alert.ID, "delivery_id", rcpt.Delivery.ID, "error", err)
		c.failDelivery(alert, rcpt)
	}
}

func (c *Coordinator) markAllFailed(ctx context.Context, alert *models.Alert) {
	if _, err := c.store.TransitionAlertDeliveries(ctx, alert.ID, models.SendStatusPending, models.SendStatusFailed); err != nil {
		c.log.Error("failed to mark deliveries failed", "alert_id", alert.ID, "error", err)
	}
	alertsFailedTotal.Inc()
	c.auditor.Record(ctx, AuditEventFailed, alert.ID, nil, "dispatch aborted before fan-out")
}

func (c *Coordinator) failDelivery(alert *models.Alert, rcpt Recipient) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.store.MarkDeliveryFailed(ctx, rcpt.Delivery.ID); err != nil {
		c.log.Error("failed to mark delivery failed", "delivery_id", rcpt.Delivery.ID, "error", err)
	}
	userID := rcpt.User.ID
	c.auditor.Record(ctx, AuditEventFailed, alert.ID, &userID, "delivery failed")
}
