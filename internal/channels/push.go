package channels

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/khlayyel/alertsystem/internal/config"
	"github.com/khlayyel/alertsystem/internal/sqlite"
	"github.com/khlayyel/alertsystem/pkg/models"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// SubscriptionStore is the slice of storage the push sender needs: listing a
// recipient's endpoints and pruning ones the provider reports gone.
type SubscriptionStore interface {
	ListSubscriptionsForUser(ctx context.Context, userID models.UserID) ([]*models.PushSubscription, error)
	DeleteSubscriptionByEndpoint(ctx context.Context, userID models.UserID, endpoint string) error
}

// PushSender delivers alert payloads to every registered browser push
// subscription of a recipient. An endpoint answering 410 Gone (or 404) is
// removed from storage so it is not attempted again.
type PushSender struct {
	cfg    config.PushConfig
	store  SubscriptionStore
	logger *slog.Logger
}

// NewPushSender returns a web-push-backed sender.
func NewPushSender(cfg config.PushConfig, store SubscriptionStore, logger *slog.Logger) *PushSender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PushSender{
		cfg:    cfg,
		store:  store,
		logger: logger.With("component", "push_sender"),
	}
}

// Channel implements Sender.
func (s *PushSender) Channel() models.Channel { return models.ChannelPush }

type pushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url"`
}

// Send implements Sender. Success means at least one subscription accepted
// the payload.
func (s *PushSender) Send(ctx context.Context, user *models.User, title, body string) bool {
	if s.cfg.PublicKey == "" || s.cfg.PrivateKey == "" {
		s.logger.Error("vapid keys missing, cannot send push", "user_id", user.ID)
		return false
	}

	subs, err := s.store.ListSubscriptionsForUser(ctx, user.ID)
	if err != nil {
		s.logger.Warn("failed to load push subscriptions", "user_id", user.ID, "error", err)
		return false
	}
	if len(subs) == 0 {
		s.logger.Debug("recipient has no push subscriptions, skipping", "user_id", user.ID)
		return false
	}

	payload, err := json.Marshal(pushPayload{Title: title, Body: body, URL: s.cfg.TargetURL})
	if err != nil {
		s.logger.Error("failed to marshal push payload", "error", err)
		return false
	}

	delivered := 0
	for _, sub := range subs {
		if s.sendToSubscription(ctx, user.ID, sub, payload) {
			delivered++
		}
	}
	s.logger.Info("push notifications sent", "user_id", user.ID, "delivered", delivered, "total", len(subs))
	return delivered > 0
}

func (s *PushSender) sendToSubscription(ctx context.Context, userID models.UserID, sub *models.PushSubscription, payload []byte) bool {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		Subscriber:      s.cfg.Subject,
		VAPIDPublicKey:  s.cfg.PublicKey,
		VAPIDPrivateKey: s.cfg.PrivateKey,
		TTL:             60,
	})
	if err != nil {
		s.logger.Warn("push delivery failed", "user_id", userID, "endpoint", sub.Endpoint, "error", err)
		return false
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices:
		return true
	case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
		// The endpoint no longer exists; prune it so future sends skip it.
		if err := s.store.DeleteSubscriptionByEndpoint(ctx, userID, sub.Endpoint); err != nil && !errors.Is(err, sqlite.ErrNotFound) {
			s.logger.Warn("failed to remove dead subscription", "user_id", userID, "endpoint", sub.Endpoint, "error", err)
		} else {
			s.logger.Info("removed dead push subscription", "user_id", userID, "endpoint", sub.Endpoint)
		}
		return false
	default:
		s.logger.Warn("push provider rejected notification", "user_id", userID, "endpoint", sub.Endpoint, "status", resp.StatusCode)
		return false
	}
}
