// Package app wires configuration, storage, channel senders, the dispatch
// coordinator and the HTTP server into one runnable application.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/khlayyel/alertsystem/internal/channels"
	"github.com/khlayyel/alertsystem/internal/config"
	"github.com/khlayyel/alertsystem/internal/dispatch"
	"github.com/khlayyel/alertsystem/internal/server"
	"github.com/khlayyel/alertsystem/internal/sqlite"
	"github.com/khlayyel/alertsystem/pkg/logger"
)

// App holds the application's long-lived components.
type App struct {
	Config      *config.Config
	Logger      *slog.Logger
	SQLite      *sqlite.DB
	Channels    *channels.Registry
	Coordinator *dispatch.Coordinator
	Reminders   *dispatch.Scheduler

	server    *server.Server
	BuildInfo string
	Version   string
}

// Options contains configuration needed when creating a new App instance.
type Options struct {
	ConfigPath string
	BuildInfo  string
	Version    string
}

// New loads configuration and constructs the application shell. Components
// that hold resources are created in Initialize.
func New(opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &App{
		Config:    cfg,
		Logger:    logger.New(cfg.Logging.Level == "debug"),
		BuildInfo: opts.BuildInfo,
		Version:   opts.Version,
	}, nil
}

// Initialize sets up the database, channel senders, dispatch pipeline and
// HTTP server, and starts the reminder loop.
func (a *App) Initialize(ctx context.Context) error {
	var err error

	a.SQLite, err = sqlite.New(sqlite.Options{
		Config: a.Config.SQLite,
		Logger: a.Logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize sqlite: %w", err)
	}

	emailSender := channels.NewEmailSender(a.Config.SMTP, a.Logger)
	whatsAppSender := channels.NewWhatsAppSender(a.Config.WhatsApp, a.Logger)
	pushSender := channels.NewPushSender(a.Config.Push, a.SQLite, a.Logger)

	a.Channels, err = channels.NewRegistry(emailSender, whatsAppSender, pushSender)
	if err != nil {
		return fmt.Errorf("failed to build channel registry: %w", err)
	}

	auditor := dispatch.NewStoreAuditor(a.SQLite, a.Logger)

	a.Coordinator = dispatch.NewCoordinator(dispatch.CoordinatorOptions{
		Store:       a.SQLite,
		Channels:    a.Channels,
		Registry:    dispatch.NewRegistry(),
		Auditor:     auditor,
		Logger:      a.Logger,
		Reminders:   a.Config.Reminders,
		Window:      a.Config.Dispatch.CancellationWindow,
		SendTimeout: a.Config.Dispatch.SendTimeout,
	})

	a.Reminders = dispatch.NewScheduler(dispatch.SchedulerOptions{
		Config:      a.Config.Reminders,
		Store:       a.SQLite,
		Channels:    a.Channels,
		Auditor:     auditor,
		Logger:      a.Logger,
		SendTimeout: a.Config.Dispatch.SendTimeout,
	})

	a.server = server.New(server.Options{
		Config:      a.Config,
		SQLite:      a.SQLite,
		Coordinator: a.Coordinator,
		Auditor:     auditor,
		Logger:      a.Logger,
	})

	a.Reminders.Start(ctx)

	return nil
}

// Start begins serving HTTP requests. It blocks until the server stops.
func (a *App) Start() error {
	if a.server == nil {
		return fmt.Errorf("server not initialized")
	}
	a.Logger.Info("starting server", "host", a.Config.Server.Host, "port", a.Config.Server.Port)
	return a.server.Start()
}

// Shutdown stops the components in dependency order: the HTTP server first so
// no new alerts arrive, then the reminder loop, then it drains any dispatch
// goroutines still inside their cancellation window before closing the
// database.
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info("shutting down application")

	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
	}

	if a.server != nil {
		serverCtx, serverCancel := context.WithTimeout(ctx, 5*time.Second)
		if err := a.server.Shutdown(serverCtx); err != nil {
			a.Logger.Error("error shutting down HTTP server", "error", err)
		}
		serverCancel()
	}

	if a.Reminders != nil {
		a.Reminders.Stop()
	}

	if a.Coordinator != nil {
		done := make(chan struct{})
		go func() {
			a.Coordinator.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			a.Logger.Warn("timeout waiting for in-flight dispatches, continuing")
		}
	}

	if a.SQLite != nil {
		if err := a.SQLite.Close(); err != nil {
			a.Logger.Error("error closing SQLite", "error", err)
		}
	}

	a.Logger.Info("application shutdown complete")
	return nil
}
