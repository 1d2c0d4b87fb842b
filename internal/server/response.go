package server

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"

	"github.com/khlayyel/alertsystem/pkg/models"
)

// SendSuccess writes the uniform success envelope.
func SendSuccess(c *fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(models.APIResponse{
		Status: "success",
		Data:   data,
	})
}

// SendErrorWithType writes the uniform error envelope.
func SendErrorWithType(c *fiber.Ctx, status int, message string, errorType models.ErrorType) error {
	return c.Status(status).JSON(models.APIResponse{
		Status:    "error",
		Message:   message,
		ErrorType: errorType,
	})
}

// requireAPIKey rejects requests missing the configured API key. When no key
// is configured the check is disabled; key provisioning itself lives outside
// this service.
func (s *Server) requireAPIKey(c *fiber.Ctx) error {
	expected := s.config.Server.APIKey
	if expected == "" {
		return c.Next()
	}
	provided := c.Get("X-API-Key")
	if subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
		return SendErrorWithType(c, fiber.StatusUnauthorized, "Invalid API key", models.AuthErrorType)
	}
	return c.Next()
}
