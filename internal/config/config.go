// Package config provides configuration management for the alert system.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the full static configuration tree.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	SQLite    SQLiteConfig    `koanf:"sqlite"`
	Logging   LoggingConfig   `koanf:"logging"`
	Dispatch  DispatchConfig  `koanf:"dispatch"`
	Reminders RemindersConfig `koanf:"reminders"`
	SMTP      SMTPConfig      `koanf:"smtp"`
	WhatsApp  WhatsAppConfig  `koanf:"whatsapp"`
	Push      PushConfig      `koanf:"push"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port        int           `koanf:"port"`
	Host        string        `koanf:"host"`
	HTTPTimeout time.Duration `koanf:"http_timeout"`
	APIKey      string        `koanf:"api_key"`
}

// SQLiteConfig holds database settings.
type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `koanf:"level"`
}

// DispatchConfig controls the alert dispatch pipeline.
type DispatchConfig struct {
	// CancellationWindow is how long an alert stays Pending and cancellable
	// before channel fan-out begins.
	CancellationWindow time.Duration `koanf:"cancellation_window"`
	// SendTimeout bounds a single channel-send attempt.
	SendTimeout time.Duration `koanf:"send_timeout"`
}

// RemindersConfig controls the reminder loop for unconfirmed mandatory alerts.
type RemindersConfig struct {
	Enabled                    bool                     `koanf:"enabled"`
	FirstReminderDelay         time.Duration            `koanf:"first_reminder_delay"`
	SubsequentReminderInterval time.Duration            `koanf:"subsequent_reminder_interval"`
	MaxReminders               int                      `koanf:"max_reminders"`
	CheckInterval              time.Duration            `koanf:"check_interval"`
	// KindIntervals overrides the reminder interval per alert kind.
	KindIntervals map[string]time.Duration `koanf:"kind_intervals"`
}

// IntervalForKind returns the reminder interval for an alert kind, falling
// back to SubsequentReminderInterval when no override is configured.
func (c RemindersConfig) IntervalForKind(kind string) time.Duration {
	if d, ok := c.KindIntervals[kind]; ok && d > 0 {
		return d
	}
	return c.SubsequentReminderInterval
}

// SMTPConfig holds mail submission settings.
type SMTPConfig struct {
	Host          string        `koanf:"host"`
	Port          int           `koanf:"port"`
	Username      string        `koanf:"username"`
	Password      string        `koanf:"password"`
	From          string        `koanf:"from"`
	ReplyTo       string        `koanf:"reply_to"`
	Security      string        `koanf:"security"` // none, starttls, tls
	Timeout       time.Duration `koanf:"timeout"`
	SkipTLSVerify bool          `koanf:"skip_tls_verify"`
}

// WhatsAppConfig holds WhatsApp Business API settings.
type WhatsAppConfig struct {
	AccessToken        string        `koanf:"access_token"`
	PhoneNumberID      string        `koanf:"phone_number_id"`
	APIVersion         string        `koanf:"api_version"`
	TemplateName       string        `koanf:"template_name"`
	TemplateLanguage   string        `koanf:"template_language"`
	DefaultCountryCode string        `koanf:"default_country_code"`
	Timeout            time.Duration `koanf:"timeout"`
}

// PushConfig holds web push (VAPID) settings.
type PushConfig struct {
	Subject    string        `koanf:"subject"`
	PublicKey  string        `koanf:"public_key"`
	PrivateKey string        `koanf:"private_key"`
	TargetURL  string        `koanf:"target_url"`
	Timeout    time.Duration `koanf:"timeout"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			Host:        "0.0.0.0",
			HTTPTimeout: 30 * time.Second,
		},
		SQLite: SQLiteConfig{
			Path: "alertsystem.db",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Dispatch: DispatchConfig{
			CancellationWindow: 10 * time.Second,
			SendTimeout:        15 * time.Second,
		},
		Reminders: RemindersConfig{
			Enabled:                    true,
			FirstReminderDelay:         30 * time.Minute,
			SubsequentReminderInterval: time.Hour,
			MaxReminders:               5,
			CheckInterval:              5 * time.Minute,
			KindIntervals: map[string]time.Duration{
				"mandatory":     30 * time.Minute,
				"informational": 24 * time.Hour,
			},
		},
		SMTP: SMTPConfig{
			Port:     587,
			Security: "starttls",
			Timeout:  5 * time.Second,
		},
		WhatsApp: WhatsAppConfig{
			APIVersion:         "v22.0",
			TemplateName:       "hello_world",
			TemplateLanguage:   "en_US",
			DefaultCountryCode: "+216",
			Timeout:            10 * time.Second,
		},
		Push: PushConfig{
			Subject:   "mailto:admin@alertsystem.local",
			TargetURL: "/dashboard",
			Timeout:   10 * time.Second,
		},
	}
}

// Load reads configuration from the given TOML file (if it exists) and from
// ALERTSYSTEM_* environment variables, layered over the defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file: %w", err)
			}
		}
	}

	// ALERTSYSTEM_DISPATCH_CANCELLATION_WINDOW -> dispatch.cancellation_window
	if err := k.Load(env.Provider("ALERTSYSTEM_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "ALERTSYSTEM_")), "_", ".", 1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Dispatch.CancellationWindow < 0 {
		return fmt.Errorf("dispatch.cancellation_window must not be negative")
	}
	if c.Reminders.MaxReminders < 0 {
		return fmt.Errorf("reminders.max_reminders must not be negative")
	}
	if c.Reminders.CheckInterval <= 0 {
		return fmt.Errorf("reminders.check_interval must be positive")
	}
	switch c.SMTP.Security {
	case "", "none", "starttls", "tls":
	default:
		return fmt.Errorf("smtp.security must be one of none, starttls, tls")
	}
	return nil
}
