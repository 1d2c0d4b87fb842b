package server

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/VictoriaMetrics/metrics"
	"github.com/gofiber/fiber/v2"

	"github.com/khlayyel/alertsystem/internal/config"
	"github.com/khlayyel/alertsystem/internal/dispatch"
	"github.com/khlayyel/alertsystem/internal/sqlite"
)

// Server wires the HTTP surface of the alert system.
type Server struct {
	app         *fiber.App
	config      *config.Config
	sqlite      *sqlite.DB
	coordinator *dispatch.Coordinator
	auditor     dispatch.Auditor
	log         *slog.Logger
}

// Options contains the dependencies needed to construct a Server.
type Options struct {
	Config      *config.Config
	SQLite      *sqlite.DB
	Coordinator *dispatch.Coordinator
	Auditor     dispatch.Auditor
	Logger      *slog.Logger
}

// New constructs the server and registers all routes.
func New(opts Options) *Server {
	s := &Server{
		config:      opts.Config,
		sqlite:      opts.SQLite,
		coordinator: opts.Coordinator,
		auditor:     opts.Auditor,
		log:         opts.Logger.With("component", "server"),
	}

	s.app = fiber.New(fiber.Config{
		ReadTimeout:           opts.Config.Server.HTTPTimeout,
		WriteTimeout:          opts.Config.Server.HTTPTimeout,
		DisableStartupMessage: true,
	})

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.app.Get("/health", s.handleHealth)

	api := s.app.Group("/api/v1", s.requireAPIKey)

	api.Get("/metrics", s.handleMetrics)

	api.Post("/alerts", s.handleSendAlert)
	api.Get("/alerts", s.handleListAlerts)
	api.Get("/alerts/:id", s.handleGetAlert)
	api.Delete("/alerts/:id", s.handleDeleteAlert)
	api.Post("/alerts/:id/cancel", s.handleCancelAlert)
	api.Get("/alerts/:id/pending", s.handleIsPending)
	api.Get("/alerts/:id/deliveries", s.handleListDeliveries)
	api.Get("/alerts/:id/audit", s.handleListAuditEvents)

	api.Post("/deliveries/:id/confirm", s.handleConfirmDelivery)

	api.Post("/push/subscriptions", s.handleSubscribe)
	api.Delete("/push/subscriptions", s.handleUnsubscribe)
}

// Start begins listening. It blocks until the listener stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.log.Info("http server listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the listener, waiting for in-flight requests
// until the context expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleMetrics(c *fiber.Ctx) error {
	var buf bytes.Buffer
	metrics.WritePrometheus(&buf, true)
	c.Set(fiber.HeaderContentType, "text/plain; charset=utf-8")
	return c.Send(buf.Bytes())
}
