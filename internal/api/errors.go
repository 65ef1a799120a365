package api

import (
	"errors"

	"github.com/fathima-sithara/conversation-service/internal/domain"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return fiber.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTarget):
		return fiber.StatusBadRequest
	}
	return fiber.StatusInternalServerError
}

// fail writes the error response. Internal errors are logged and hidden.
func (h *Handlers) fail(c *fiber.Ctx, err error) error {
	status := statusOf(err)
	if status == fiber.StatusInternalServerError {
		h.log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(status).JSON(fiber.Map{"error": "internal error"})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
