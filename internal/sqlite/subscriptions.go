package sqlite

import (
	"context"
	"fmt"

	"github.com/khlayyel/alertsystem/pkg/models"
)

// UpsertSubscription registers a push subscription, refreshing the keys if
// the (user, endpoint) pair already exists.
func (db *DB) UpsertSubscription(ctx context.Context, sub *models.PushSubscription) error {
	if sub == nil {
		return fmt.Errorf("subscription payload is required")
	}
	row := db.db.QueryRowContext(ctx,
		`INSERT INTO push_subscriptions (user_id, endpoint, p256dh, auth)
VALUES (?, ?, ?, ?)
ON CONFLICT (user_id, endpoint) DO UPDATE SET p256dh = excluded.p256dh, auth = excluded.auth
RETURNING id, created_at`,
		int64(sub.UserID), sub.Endpoint, sub.P256dh, sub.Auth,
	)
	if err := row.Scan(&sub.ID, &sub.CreatedAt); err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return nil
}

// ListSubscriptionsForUser returns every registered endpoint for the user.
func (db *DB) ListSubscriptionsForUser(ctx context.Context, userID models.UserID) ([]*models.PushSubscription, error) {
	rows, err := db.db.QueryContext(ctx,
		`SELECT id, user_id, endpoint, p256dh, auth, created_at FROM push_subscriptions WHERE user_id = ?`,
		int64(userID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*models.PushSubscription
	for rows.Next() {
		var s models.PushSubscription
		if err := rows.Scan(&s.ID, &s.UserID, &s.Endpoint, &s.P256dh, &s.Auth, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscriptions: %w", err)
	}
	return subs, nil
}

// DeleteSubscriptionByEndpoint drops one endpoint. Used both by explicit
// unsubscribe and by the push sender when a provider reports the endpoint
// permanently gone.
func (db *DB) DeleteSubscriptionByEndpoint(ctx context.Context, userID models.UserID, endpoint string) error {
	res, err := db.db.ExecContext(ctx,
		`DELETE FROM push_subscriptions WHERE user_id = ? AND endpoint = ?`,
		int64(userID), endpoint,
	)
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}
