package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/humanmade/backend/pkg/apperror"
	"github.com/humanmade/backend/pkg/logger"
)

// respondError maps an error kind to its status and writes {error, code}.
// Store failures are logged and hidden from the client.
func respondError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, apperror.ErrValidation):
		status = fiber.StatusBadRequest
	case errors.Is(err, apperror.ErrRateLimited):
		status = fiber.StatusTooManyRequests
	case errors.Is(err, apperror.ErrNotFound):
		status = fiber.StatusNotFound
	}

	code := apperror.CodeOf(err)
	message := err.Error()
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		message = appErr.Message
	}

	if status == fiber.StatusInternalServerError {
		logger.Error("Request failed",
			zap.String("path", c.Path()),
			zap.String("method", c.Method()),
			zap.Error(err),
		)
		message = "Internal server error"
		if code == "" {
			code = apperror.CodeStore
		}
	}

	return c.Status(status).JSON(fiber.Map{
		"error": message,
		"code":  code,
	})
}
