package models

import (
	"fmt"
	"strings"
	"time"
)

// Channel enumerates supported delivery media. The set is closed; dispatch
// selects a sender through exhaustive matching on this type.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelPush     Channel = "push"
)

// Valid reports whether the channel is a member of the closed set.
func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelWhatsApp, ChannelPush:
		return true
	}
	return false
}

// ParseChannels validates and deduplicates a requested channel list.
func ParseChannels(raw []Channel) ([]Channel, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("at least one channel is required")
	}
	seen := make(map[Channel]struct{}, len(raw))
	out := make([]Channel, 0, len(raw))
	for _, c := range raw {
		c = Channel(strings.ToLower(strings.TrimSpace(string(c))))
		if !c.Valid() {
			return nil, fmt.Errorf("unknown channel %q", c)
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out, nil
}

// SendStatus captures the lifecycle state of a delivery.
type SendStatus string

const (
	SendStatusPending   SendStatus = "pending"
	SendStatusSending   SendStatus = "sending"
	SendStatusSent      SendStatus = "sent"
	SendStatusFailed    SendStatus = "failed"
	SendStatusCancelled SendStatus = "cancelled"
)

// CanTransition reports whether moving from s to next is a legal step of the
// delivery state machine: pending → sending → {sent, failed}, with the single
// escape pending → cancelled. A sent delivery may still move to failed when a
// later reminder cannot be driven; failed and cancelled never transition.
func (s SendStatus) CanTransition(next SendStatus) bool {
	switch s {
	case SendStatusPending:
		return next == SendStatusSending || next == SendStatusCancelled || next == SendStatusFailed
	case SendStatusSending:
		return next == SendStatusSent || next == SendStatusFailed
	case SendStatusSent:
		return next == SendStatusFailed
	}
	return false
}

// DeliveryID identifies one delivery row.
type DeliveryID int64

// Delivery is the per-(alert, recipient) tracking record. Exactly one row
// exists per pair, created together with the alert's send action.
type Delivery struct {
	ID             DeliveryID `json:"id"`
	AlertID        AlertID    `json:"alert_id"`
	UserID         UserID     `json:"user_id"`
	Confirmed      bool       `json:"confirmed"`
	ConfirmedAt    *time.Time `json:"confirmed_at,omitempty"`
	LastSentAt     *time.Time `json:"last_sent_at,omitempty"`
	NextReminderAt *time.Time `json:"next_reminder_at,omitempty"`
	Channels       []Channel  `json:"channels"`
	SendStatus     SendStatus `json:"send_status"`
	ReminderCount  int        `json:"reminder_count"`
}

// DueReminder is a delivery joined with the data the reminder loop needs to
// re-drive it without further lookups.
type DueReminder struct {
	Delivery Delivery  `json:"delivery"`
	Alert    Alert     `json:"alert"`
	User     User      `json:"user"`
	DueAt    time.Time `json:"due_at"`
}
