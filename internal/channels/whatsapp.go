package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/khlayyel/alertsystem/internal/config"
	"github.com/khlayyel/alertsystem/pkg/models"
)

// WhatsAppSender delivers alert messages through the WhatsApp Business API.
// A free-form text is attempted first; when the provider rejects it (for
// example because the 24h messaging window is closed), a pre-approved
// template message is sent instead to re-open the conversation.
type WhatsAppSender struct {
	cfg    config.WhatsAppConfig
	client *http.Client
	logger *slog.Logger
	// baseURL is overridable in tests.
	baseURL string
}

// NewWhatsAppSender returns a Graph-API-backed sender.
func NewWhatsAppSender(cfg config.WhatsAppConfig, logger *slog.Logger) *WhatsAppSender {
	if cfg.APIVersion == "" {
		cfg.APIVersion = "v22.0"
	}
	if cfg.TemplateName == "" {
		cfg.TemplateName = "hello_world"
	}
	if cfg.TemplateLanguage == "" {
		cfg.TemplateLanguage = "en_US"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WhatsAppSender{
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With("component", "whatsapp_sender"),
		baseURL: "https://graph.facebook.com",
	}
}

// Channel implements Sender.
func (s *WhatsAppSender) Channel() models.Channel { return models.ChannelWhatsApp }

// Send implements Sender.
func (s *WhatsAppSender) Send(ctx context.Context, user *models.User, title, body string) bool {
	if strings.TrimSpace(user.Phone) == "" {
		s.logger.Debug("recipient has no phone number, skipping", "user_id", user.ID)
		return false
	}
	if s.cfg.AccessToken == "" || s.cfg.PhoneNumberID == "" {
		s.logger.Error("whatsapp credentials missing, cannot send", "user_id", user.ID)
		return false
	}

	normalized := NormalizePhone(user.Phone, s.cfg.DefaultCountryCode)
	digits := digitsOnly(normalized)
	text := title + "\n\n" + body

	// Free-form first, in both phone formats, then the template ladder.
	ok := s.trySendText(ctx, normalized, text)
	if !ok {
		ok = s.trySendText(ctx, digits, text)
	}
	if !ok {
		ok = s.trySendTemplate(ctx, normalized)
		if !ok {
			ok = s.trySendTemplate(ctx, digits)
		}
	}

	if ok {
		s.logger.Info("whatsapp message sent", "user_id", user.ID, "phone", normalized)
	} else {
		s.logger.Warn("whatsapp delivery failed", "user_id", user.ID, "phone", normalized)
	}
	return ok
}

type whatsAppText struct {
	Body string `json:"body"`
}

type whatsAppLanguage struct {
	Code string `json:"code"`
}

type whatsAppTemplate struct {
	Name     string           `json:"name"`
	Language whatsAppLanguage `json:"language"`
}

type whatsAppMessage struct {
	MessagingProduct string            `json:"messaging_product"`
	To               string            `json:"to"`
	Type             string            `json:"type"`
	Text             *whatsAppText     `json:"text,omitempty"`
	Template         *whatsAppTemplate `json:"template,omitempty"`
}

func (s *WhatsAppSender) trySendText(ctx context.Context, to, text string) bool {
	return s.post(ctx, whatsAppMessage{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             &whatsAppText{Body: text},
	})
}

func (s *WhatsAppSender) trySendTemplate(ctx context.Context, to string) bool {
	return s.post(ctx, whatsAppMessage{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "template",
		Template: &whatsAppTemplate{
			Name:     s.cfg.TemplateName,
			Language: whatsAppLanguage{Code: s.cfg.TemplateLanguage},
		},
	})
}

func (s *WhatsAppSender) post(ctx context.Context, msg whatsAppMessage) bool {
	payload, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("failed to marshal whatsapp payload", "error", err)
		return false
	}
	url := fmt.Sprintf("%s/%s/%s/messages", s.baseURL, s.cfg.APIVersion, s.cfg.PhoneNumberID)
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		s.logger.Error("failed to create whatsapp request", "error", err)
		return false
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Authorization", "Bearer "+s.cfg.AccessToken)

	response, err := s.client.Do(request)
	if err != nil {
		s.logger.Debug("whatsapp request failed", "to", msg.To, "error", err)
		return false
	}
	responseBody, _ := io.ReadAll(response.Body)
	_ = response.Body.Close()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		s.logger.Debug("whatsapp provider rejected message",
			"to", msg.To, "type", msg.Type, "status", response.StatusCode,
			"response", strings.TrimSpace(string(responseBody)))
		return false
	}
	return true
}
