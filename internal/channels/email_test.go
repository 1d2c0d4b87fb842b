package channels

import (
	"context"
	"strings"
	"testing"

	"github.com/khlayyel/alertsystem/internal/config"
	"github.com/khlayyel/alertsystem/pkg/models"
)

func TestEmailBuildMessage(t *testing.T) {
	s := NewEmailSender(config.SMTPConfig{
		From:    "alerts@example.com",
		ReplyTo: "noc@example.com",
	}, discardLogger())

	msg := string(s.buildMessage("user@example.com", "Disk almost full", "Volume /data at 95%"))

	for _, want := range []string{
		"From: alerts@example.com\r\n",
		"To: user@example.com\r\n",
		"Subject: Disk almost full\r\n",
		"Reply-To: noc@example.com\r\n",
		"Content-Type: text/plain; charset=\"UTF-8\"",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q", want)
		}
	}
	if !strings.HasSuffix(msg, "\r\n\r\nVolume /data at 95%\r\n") {
		t.Errorf("body not separated from headers: %q", msg)
	}
}

func TestEmailBuildMessageWithoutReplyTo(t *testing.T) {
	s := NewEmailSender(config.SMTPConfig{From: "alerts@example.com"}, discardLogger())
	msg := string(s.buildMessage("user@example.com", "t", "b"))
	if strings.Contains(msg, "Reply-To:") {
		t.Error("Reply-To header present without configuration")
	}
}

func TestEmailSkipsUserWithoutAddress(t *testing.T) {
	s := NewEmailSender(config.SMTPConfig{
		Host: "smtp.example.com",
		Port: 587,
		From: "alerts@example.com",
	}, discardLogger())

	if s.Send(context.Background(), &models.User{ID: 1}, "t", "b") {
		t.Fatal("Send returned true for a user without an email address")
	}
}

func TestEmailRequiresConfiguration(t *testing.T) {
	s := NewEmailSender(config.SMTPConfig{}, discardLogger())
	user := &models.User{ID: 1, Email: "user@example.com"}
	if s.Send(context.Background(), user, "t", "b") {
		t.Fatal("Send returned true without SMTP configuration")
	}
}

func TestNewEmailSenderNormalizesSecurity(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "starttls"},
		{"STARTTLS", "starttls"},
		{" tls ", "tls"},
		{"none", "none"},
		{"bogus", "starttls"},
	}
	for _, tt := range tests {
		s := NewEmailSender(config.SMTPConfig{Security: tt.in}, discardLogger())
		if s.cfg.Security != tt.want {
			t.Errorf("security %q normalized to %q, want %q", tt.in, s.cfg.Security, tt.want)
		}
	}
}
