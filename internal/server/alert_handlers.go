package server

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/khlayyel/alertsystem/internal/core"
	"github.com/khlayyel/alertsystem/internal/sqlite"
	"github.com/khlayyel/alertsystem/pkg/models"
)

// actor loads the requesting user from the X-User-ID header. Session and
// authentication handling live outside this service; the gateway forwards
// the authenticated identity.
func (s *Server) actor(c *fiber.Ctx) (*models.User, error) {
	raw := c.Get("X-User-ID")
	if raw == "" {
		return nil, SendErrorWithType(c, fiber.StatusUnauthorized, "Missing X-User-ID header", models.AuthErrorType)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, SendErrorWithType(c, fiber.StatusBadRequest, "Invalid X-User-ID header", models.ValidationErrorType)
	}
	user, err := s.sqlite.GetUser(c.Context(), models.UserID(id))
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return nil, SendErrorWithType(c, fiber.StatusUnauthorized, "Unknown user", models.AuthErrorType)
		}
		s.log.Error("failed to load actor", "user_id", id, "error", err)
		return nil, SendErrorWithType(c, fiber.StatusInternalServerError, "Failed to load user", models.GeneralErrorType)
	}
	return user, nil
}

func (s *Server) parseAlertID(c *fiber.Ctx) (models.AlertID, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, SendErrorWithType(c, fiber.StatusBadRequest, "Invalid alert id", models.ValidationErrorType)
	}
	return models.AlertID(id), nil
}

func (s *Server) handleSendAlert(c *fiber.Ctx) error {
	actor, err := s.actor(c)
	if err != nil {
		return err
	}

	var req models.SendAlertRequest
	if err := c.BodyParser(&req); err != nil {
		return SendErrorWithType(c, fiber.StatusBadRequest, "Invalid request body", models.ValidationErrorType)
	}

	alert, err := core.SendAlert(c.Context(), s.sqlite, s.log, s.coordinator, s.auditor, actor, &req, s.config.Dispatch.CancellationWindow)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrInvalidAlertRequest):
			return SendErrorWithType(c, fiber.StatusBadRequest, err.Error(), models.ValidationErrorType)
		case errors.Is(err, core.ErrNoRecipients):
			return SendErrorWithType(c, fiber.StatusUnprocessableEntity, "No valid recipients for this alert", models.ValidationErrorType)
		default:
			s.log.Error("failed to send alert", "error", err)
			return SendErrorWithType(c, fiber.StatusInternalServerError, "Failed to send alert", models.GeneralErrorType)
		}
	}
	return SendSuccess(c, fiber.StatusCreated, alert)
}

func (s *Server) handleListAlerts(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 100)
	alerts, err := s.sqlite.ListAlerts(c.Context(), limit)
	if err != nil {
		s.log.Error("failed to list alerts", "error", err)
		return SendErrorWithType(c, fiber.StatusInternalServerError, "Failed to list alerts", models.GeneralErrorType)
	}
	return SendSuccess(c, fiber.StatusOK, alerts)
}

func (s *Server) handleGetAlert(c *fiber.Ctx) error {
	alertID, err := s.parseAlertID(c)
	if err != nil {
		return err
	}
	alert, err := s.sqlite.GetAlert(c.Context(), alertID)
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return SendErrorWithType(c, fiber.StatusNotFound, "Alert not found", models.NotFoundErrorType)
		}
		s.log.Error("failed to get alert", "alert_id", alertID, "error", err)
		return SendErrorWithType(c, fiber.StatusInternalServerError, "Failed to retrieve alert", models.GeneralErrorType)
	}
	return SendSuccess(c, fiber.StatusOK, alert)
}

func (s *Server) handleDeleteAlert(c *fiber.Ctx) error {
	alertID, err := s.parseAlertID(c)
	if err != nil {
		return err
	}
	if err := s.sqlite.DeleteAlert(c.Context(), alertID); err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return SendErrorWithType(c, fiber.StatusNotFound, "Alert not found", models.NotFoundErrorType)
		}
		s.log.Error("failed to delete alert", "alert_id", alertID, "error", err)
		return SendErrorWithType(c, fiber.StatusInternalServerError, "Failed to delete alert", models.GeneralErrorType)
	}
	return SendSuccess(c, fiber.StatusOK, fiber.Map{"message": "Alert deleted"})
}

func (s *Server) handleCancelAlert(c *fiber.Ctx) error {
	alertID, err := s.parseAlertID(c)
	if err != nil {
		return err
	}
	// A false result is not an error: the alert simply progressed past its
	// cancellation window.
	cancelled := s.coordinator.Cancel(alertID)
	return SendSuccess(c, fiber.StatusOK, models.CancelResponse{AlertID: alertID, Cancelled: cancelled})
}

func (s *Server) handleIsPending(c *fiber.Ctx) error {
	alertID, err := s.parseAlertID(c)
	if err != nil {
		return err
	}
	return SendSuccess(c, fiber.StatusOK, fiber.Map{
		"alert_id": alertID,
		"pending":  s.coordinator.IsPending(alertID),
	})
}

func (s *Server) handleListDeliveries(c *fiber.Ctx) error {
	alertID, err := s.parseAlertID(c)
	if err != nil {
		return err
	}
	deliveries, err := s.sqlite.ListDeliveriesForAlert(c.Context(), alertID)
	if err != nil {
		s.log.Error("failed to list deliveries", "alert_id", alertID, "error", err)
		return SendErrorWithType(c, fiber.StatusInternalServerError, "Failed to list deliveries", models.GeneralErrorType)
	}
	return SendSuccess(c, fiber.StatusOK, deliveries)
}

func (s *Server) handleListAuditEvents(c *fiber.Ctx) error {
	alertID, err := s.parseAlertID(c)
	if err != nil {
		return err
	}
	events, err := s.sqlite.ListAuditEventsForAlert(c.Context(), alertID)
	if err != nil {
		s.log.Error("failed to list audit events", "alert_id", alertID, "error", err)
		return SendErrorWithType(c, fiber.StatusInternalServerError, "Failed to list audit events", models.GeneralErrorType)
	}
	return SendSuccess(c, fiber.StatusOK, events)
}

func (s *Server) handleConfirmDelivery(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return SendErrorWithType(c, fiber.StatusBadRequest, "Invalid delivery id", models.ValidationErrorType)
	}
	if err := core.ConfirmDelivery(c.Context(), s.sqlite, s.auditor, models.DeliveryID(id)); err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return SendErrorWithType(c, fiber.StatusNotFound, "Delivery not found", models.NotFoundErrorType)
		}
		s.log.Error("failed to confirm delivery", "delivery_id", id, "error", err)
		return SendErrorWithType(c, fiber.StatusInternalServerError, "Failed to confirm delivery", models.GeneralErrorType)
	}
	return SendSuccess(c, fiber.StatusOK, fiber.Map{"message": "Delivery confirmed"})
}
