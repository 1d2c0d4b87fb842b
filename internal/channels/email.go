package channels

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/khlayyel/alertsystem/internal/config"
	"github.com/khlayyel/alertsystem/pkg/models"
)

const (
	smtpSecurityNone     = "none"
	smtpSecurityStartTLS = "starttls"
	smtpSecurityTLS      = "tls"
)

// EmailSender submits alert messages over SMTP. It performs no retries of its
// own; re-driving unconfirmed alerts is the reminder loop's job.
type EmailSender struct {
	cfg    config.SMTPConfig
	logger *slog.Logger
}

// NewEmailSender returns an SMTP-backed sender.
func NewEmailSender(cfg config.SMTPConfig, logger *slog.Logger) *EmailSender {
	security := strings.ToLower(strings.TrimSpace(cfg.Security))
	switch security {
	case smtpSecurityNone, smtpSecurityStartTLS, smtpSecurityTLS:
	default:
		security = smtpSecurityStartTLS
	}
	cfg.Security = security
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailSender{
		cfg:    cfg,
		logger: logger.With("component", "email_sender"),
	}
}

// Channel implements Sender.
func (s *EmailSender) Channel() models.Channel { return models.ChannelEmail }

// Send implements Sender.
func (s *EmailSender) Send(ctx context.Context, user *models.User, title, body string) bool {
	recipient := strings.TrimSpace(user.Email)
	if recipient == "" {
		s.logger.Debug("recipient has no email address, skipping", "user_id", user.ID)
		return false
	}
	if s.cfg.Host == "" || s.cfg.Port == 0 || s.cfg.From == "" {
		s.logger.Error("smtp is not configured, cannot send", "user_id", user.ID)
		return false
	}

	message := s.buildMessage(recipient, title, body)
	if err := s.sendEmail(ctx, recipient, message); err != nil {
		s.logger.Warn("email delivery failed", "user_id", user.ID, "recipient", recipient, "error", err)
		return false
	}
	s.logger.Info("email sent", "user_id", user.ID, "recipient", recipient)
	return true
}

func (s *EmailSender) buildMessage(recipient, title, body string) []byte {
	headers := []string{
		fmt.Sprintf("From: %s", s.cfg.From),
		fmt.Sprintf("To: %s", recipient),
		fmt.Sprintf("Subject: %s", title),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
	}
	if s.cfg.ReplyTo != "" {
		headers = append(headers, fmt.Sprintf("Reply-To: %s", s.cfg.ReplyTo))
	}
	return []byte(strings.Join(headers, "\r\n") + "\r\n\r\n" + body + "\r\n")
}

func (s *EmailSender) sendEmail(ctx context.Context, recipient string, message []byte) error {
	client, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Mail(s.cfg.From); err != nil {
		return err
	}
	if err := client.Rcpt(recipient); err != nil {
		return err
	}
	writer, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := writer.Write(message); err != nil {
		_ = writer.Close()
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}
	return client.Quit()
}

func (s *EmailSender) connect(ctx context.Context) (*smtp.Client, error) {
	address := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	dialer := &net.Dialer{Timeout: s.cfg.Timeout}
	var (
		conn net.Conn
		err  error
	)
	if s.cfg.Security == smtpSecurityTLS {
		tlsConfig := &tls.Config{ServerName: s.cfg.Host, InsecureSkipVerify: s.cfg.SkipTLSVerify} // #nosec G402
		conn, err = tls.DialWithDialer(dialer, "tcp", address, tlsConfig)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", address)
	}
	if err != nil {
		return nil, err
	}
	if s.cfg.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(s.cfg.Timeout))
	}
	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if s.cfg.Security == smtpSecurityStartTLS {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			_ = client.Close()
			return nil, fmt.Errorf("smtp server does not support STARTTLS")
		}
		tlsConfig := &tls.Config{ServerName: s.cfg.Host, InsecureSkipVerify: s.cfg.SkipTLSVerify} // #nosec G402
		if err := client.StartTLS(tlsConfig); err != nil {
			_ = client.Close()
			return nil, err
		}
	}
	if s.cfg.Username != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			_ = client.Close()
			return nil, err
		}
	}
	return client, nil
}
