// Package channels implements the delivery media an alert can be fanned out
// over. Every sender shares the same boundary contract: provider errors are
// caught, logged and converted to a boolean result, never propagated.
package channels

import (
	"context"
	"fmt"

	"github.com/khlayyel/alertsystem/pkg/models"
)

// Sender delivers one alert message to one recipient on one channel.
type Sender interface {
	// Channel reports which medium this sender serves.
	Channel() models.Channel
	// Send attempts delivery and reports success. A recipient lacking the
	// matching contact info is a negative result, not an error.
	Send(ctx context.Context, user *models.User, title, body string) bool
}

// Registry maps the closed channel set to its senders.
type Registry struct {
	senders map[models.Channel]Sender
}

// NewRegistry builds a registry from the given senders. Every sender must
// serve a distinct channel.
func NewRegistry(senders ...Sender) (*Registry, error) {
	m := make(map[models.Channel]Sender, len(senders))
	for _, s := range senders {
		ch := s.Channel()
		if !ch.Valid() {
			return nil, fmt.Errorf("sender registered for unknown channel %q", ch)
		}
		if _, dup := m[ch]; dup {
			return nil, fmt.Errorf("duplicate sender for channel %q", ch)
		}
		m[ch] = s
	}
	return &Registry{senders: m}, nil
}

// For returns the sender for a channel, if one is registered.
func (r *Registry) For(ch models.Channel) (Sender, bool) {
	s, ok := r.senders[ch]
	return s, ok
}
