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

// SchedulerOptions encapsulates the dependencies of the reminder scheduler.
type SchedulerOptions struct {
	Config      config.RemindersConfig
	Store       DeliveryStore
	Channels    *channels.Registry
	Auditor     Auditor
	Logger      *slog.Logger
	SendTimeout time.Duration
	// BatchLimit caps how many due deliveries one tick processes.
	BatchLimit int
}

// Scheduler periodically re-drives unconfirmed mandatory deliveries whose
// reminder time has passed, with back-off and a maximum reminder count.
type Scheduler struct {
	cfg         config.RemindersConfig
	store       DeliveryStore
	channels    *channels.Registry
	auditor     Auditor
	log         *slog.Logger
	sendTimeout time.Duration
	batchLimit  int

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewScheduler constructs a reminder scheduler.
func NewScheduler(opts SchedulerOptions) *Scheduler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	auditor := opts.Auditor
	if auditor == nil {
		auditor = NewLogAuditor(logger)
	}
	sendTimeout := opts.SendTimeout
	if sendTimeout <= 0 {
		sendTimeout = 15 * time.Second
	}
	batchLimit := opts.BatchLimit
	if batchLimit <= 0 {
		batchLimit = 500
	}
	return &Scheduler{
		cfg:         opts.Config,
		store:       opts.Store,
		channels:    opts.Channels,
		auditor:     auditor,
		log:         logger.With("component", "reminder_scheduler"),
		sendTimeout: sendTimeout,
		batchLimit:  batchLimit,
		stop:        make(chan struct{}),
	}
}

// Start launches the reminder loop. It is a no-op when reminders are
// disabled.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.cfg.Enabled {
		s.log.Info("reminders disabled; scheduler will not start")
		return
	}
	interval := s.cfg.CheckInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	s.log.Info("starting reminder scheduler",
		"interval", interval,
		"first_delay", s.cfg.FirstReminderDelay,
		"subsequent_interval", s.cfg.SubsequentReminderInterval,
		"max_reminders", s.cfg.MaxReminders)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.tick(ctx)
			case <-s.stop:
				s.log.Info("reminder scheduler stopping")
				return
			case <-ctx.Done():
				s.log.Info("reminder scheduler context cancelled")
				return
			}
		}
	}()
}

// Stop signals the scheduler to stop and waits for the loop to exit.
func (s *Scheduler) Stop() {
	close(s.stop)
	s.wg.Wait()
}

// tick processes one batch of due reminders.
func (s *Scheduler) tick(ctx context.Context) {
	reminderTicksTotal.Inc()
	now := time.Now().UTC()

	due, err := s.store.ListDueReminders(ctx, now, s.batchLimit)
	if err != nil {
		s.log.Error("failed to query due reminders", "error", err)
		return
	}
	if len(due) == 0 {
		s.log.Debug("no reminders due")
		return
	}
	s.log.Info("processing due reminders", "count", len(due))

	// Send first, persist all state changes at the end of the tick.
	type reminderUpdate struct {
		deliveryID     models.DeliveryID
		lastSentAt     time.Time
		nextReminderAt *time.Time
		reminderCount  int
	}
	updates := make([]reminderUpdate, 0, len(due))

	for _, entry := range due {
		sentAt, err := s.remind(ctx, entry)
		if err != nil {
			// One recipient's provider error never halts the scan of the
			// remaining batch.
			s.log.Warn("reminder failed", "delivery_id", entry.Delivery.ID, "alert_id", entry.Alert.ID, "error", err)
			s.failDelivery(ctx, entry)
			continue
		}

		count := entry.Delivery.ReminderCount + 1
		var next *time.Time
		if count < s.cfg.MaxReminders {
			t := sentAt.Add(s.cfg.IntervalForKind(string(entry.Alert.Kind)))
			next = &t
		}
		updates = append(updates, reminderUpdate{
			deliveryID:     entry.Delivery.ID,
			lastSentAt:     sentAt,
			nextReminderAt: next,
			reminderCount:  count,
		})
	}

	for _, u := range updates {
		if err := s.store.UpdateReminderState(ctx, u.deliveryID, u.lastSentAt, u.nextReminderAt, u.reminderCount); err != nil {
			s.log.Error("failed to persist reminder state", "delivery_id", u.deliveryID, "error", err)
		}
	}
}

// RunOnce executes a single scheduler pass synchronously.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.tick(ctx)
}

// remind re-invokes the channel sends for one due delivery, reusing its
// stored requested channels.
func (s *Scheduler) remind(ctx context.Context, entry *models.DueReminder) (sentAt time.Time, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic during reminder send", "delivery_id", entry.Delivery.ID, "panic", r)
			err = fmt.Errorf("panic during reminder send: %v", r)
		}
	}()

	if len(entry.Delivery.Channels) == 0 {
		return time.Time{}, fmt.Errorf("delivery %d has no requested channels", entry.Delivery.ID)
	}

	for _, ch := range entry.Delivery.Channels {
		sender, ok := s.channels.For(ch)
		if !ok {
			s.log.Warn("no sender registered for channel", "channel", ch, "delivery_id", entry.Delivery.ID)
			continue
		}
		sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
		delivered := sender.Send(sendCtx, &entry.User, entry.Alert.Title, entry.Alert.Message)
		cancel()
		channelSendCounter(ch, delivered).Inc()
		if !delivered {
			s.log.Warn("reminder channel send failed", "delivery_id", entry.Delivery.ID, "user_id", entry.User.ID, "channel", ch)
		}
	}

	sentAt = time.Now().UTC()
	remindersSentTotal.Inc()
	userID := entry.User.ID
	s.auditor.Record(ctx, AuditEventReminded, entry.Alert.ID, &userID,
		fmt.Sprintf("reminder %d of %d", entry.Delivery.ReminderCount+1, s.cfg.MaxReminders))
	return sentAt, nil
}

func (s *Scheduler) failDelivery(ctx context.Context, entry *models.DueReminder) {
	if err := s.store.MarkDeliveryFailed(ctx, entry.Delivery.ID); err != nil {
		s.log.Error("failed to mark delivery failed", "delivery_id", entry.Delivery.ID, "error", err)
	}
	userID := entry.User.ID
	s.auditor.Record(ctx, AuditEventFailed, entry.Alert.ID, &userID, "reminder delivery failed")
}
