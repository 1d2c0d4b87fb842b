package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Default() Server.Port = %d, want %d", cfg.Server.Port, 8080)
	}

	if cfg.Dispatch.CancellationWindow != 10*time.Second {
		t.Errorf("Default() Dispatch.CancellationWindow = %v, want %v", cfg.Dispatch.CancellationWindow, 10*time.Second)
	}

	if cfg.Reminders.FirstReminderDelay != 30*time.Minute {
		t.Errorf("Default() Reminders.FirstReminderDelay = %v, want %v", cfg.Reminders.FirstReminderDelay, 30*time.Minute)
	}

	if cfg.Reminders.MaxReminders != 5 {
		t.Errorf("Default() Reminders.MaxReminders = %d, want %d", cfg.Reminders.MaxReminders, 5)
	}

	if cfg.Reminders.CheckInterval != 5*time.Minute {
		t.Errorf("Default() Reminders.CheckInterval = %v, want %v", cfg.Reminders.CheckInterval, 5*time.Minute)
	}

	if !cfg.Reminders.Enabled {
		t.Error("Default() Reminders.Enabled = false, want true")
	}

	if cfg.WhatsApp.DefaultCountryCode != "+216" {
		t.Errorf("Default() WhatsApp.DefaultCountryCode = %q, want %q", cfg.WhatsApp.DefaultCountryCode, "+216")
	}

	if cfg.SMTP.Security != "starttls" {
		t.Errorf("Default() SMTP.Security = %q, want %q", cfg.SMTP.Security, "starttls")
	}
}

func TestIntervalForKind(t *testing.T) {
	cfg := RemindersConfig{
		SubsequentReminderInterval: time.Hour,
		KindIntervals: map[string]time.Duration{
			"mandatory":     30 * time.Minute,
			"informational": 24 * time.Hour,
		},
	}

	tests := []struct {
		kind string
		want time.Duration
	}{
		{"mandatory", 30 * time.Minute},
		{"informational", 24 * time.Hour},
		{"unknown", time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			if got := cfg.IntervalForKind(tt.kind); got != tt.want {
				t.Errorf("IntervalForKind(%q) = %v, want %v", tt.kind, got, tt.want)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	content := `
[server]
port = 9090

[dispatch]
cancellation_window = "3s"

[reminders]
max_reminders = 2
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9090)
	}
	if cfg.Dispatch.CancellationWindow != 3*time.Second {
		t.Errorf("Dispatch.CancellationWindow = %v, want %v", cfg.Dispatch.CancellationWindow, 3*time.Second)
	}
	if cfg.Reminders.MaxReminders != 2 {
		t.Errorf("Reminders.MaxReminders = %d, want %d", cfg.Reminders.MaxReminders, 2)
	}
	// Untouched sections keep their defaults.
	if cfg.Reminders.CheckInterval != 5*time.Minute {
		t.Errorf("Reminders.CheckInterval = %v, want %v", cfg.Reminders.CheckInterval, 5*time.Minute)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want default %d", cfg.Server.Port, 8080)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	content := `
[reminders]
check_interval = "0s"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("Load() expected error for non-positive check_interval")
	}
}
