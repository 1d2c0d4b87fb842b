package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/khlayyel/alertsystem/internal/sqlite"
	"github.com/khlayyel/alertsystem/pkg/models"
)

func (s *Server) handleSubscribe(c *fiber.Ctx) error {
	var req models.SubscribeRequest
	if err := c.BodyParser(&req); err != nil {
		return SendErrorWithType(c, fiber.StatusBadRequest, "Invalid request body", models.ValidationErrorType)
	}
	if req.UserID <= 0 || req.Endpoint == "" || req.P256dh == "" || req.Auth == "" {
		return SendErrorWithType(c, fiber.StatusBadRequest, "user_id, endpoint, p256dh and auth are required", models.ValidationErrorType)
	}

	sub := &models.PushSubscription{
		UserID:   req.UserID,
		Endpoint: req.Endpoint,
		P256dh:   req.P256dh,
		Auth:     req.Auth,
	}
	if err := s.sqlite.UpsertSubscription(c.Context(), sub); err != nil {
		s.log.Error("failed to save push subscription", "user_id", req.UserID, "error", err)
		return SendErrorWithType(c, fiber.StatusInternalServerError, "Failed to save subscription", models.GeneralErrorType)
	}
	return SendSuccess(c, fiber.StatusCreated, sub)
}

func (s *Server) handleUnsubscribe(c *fiber.Ctx) error {
	var req models.SubscribeRequest
	if err := c.BodyParser(&req); err != nil {
		return SendErrorWithType(c, fiber.StatusBadRequest, "Invalid request body", models.ValidationErrorType)
	}
	if req.UserID <= 0 || req.Endpoint == "" {
		return SendErrorWithType(c, fiber.StatusBadRequest, "user_id and endpoint are required", models.ValidationErrorType)
	}

	if err := s.sqlite.DeleteSubscriptionByEndpoint(c.Context(), req.UserID, req.Endpoint); err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return SendErrorWithType(c, fiber.StatusNotFound, "Subscription not found", models.NotFoundErrorType)
		}
		s.log.Error("failed to delete push subscription", "user_id", req.UserID, "error", err)
		return SendErrorWithType(c, fiber.StatusInternalServerError, "Failed to delete subscription", models.GeneralErrorType)
	}
	return SendSuccess(c, fiber.StatusOK, fiber.Map{"message": "Subscription removed"})
}
