package handlers

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/example/saukimart/internal/services"
)

// ErrorHandler renders fiber and service errors as JSON. Anything else is a 500
// whose detail is only logged.
func ErrorHandler(log *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(fiber.Map{"error": fiberErr.Message})
		}

		var svcErr *services.ServiceError
		if errors.As(err, &svcErr) {
			return c.Status(svcErr.Info.Status).JSON(serviceErrorBody(svcErr, nil))
		}

		log.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal Server Error"})
	}
}

func serviceErrorBody(err *services.ServiceError, extra fiber.Map) fiber.Map {
	body := fiber.Map{
		"error": err.Info.Message,
		"code":  err.Info.Name,
	}
	if err.Err != nil {
		body["details"] = err.Err.Error()
	}
	if err.Details != nil {
		body["details"] = err.Details
	}
	for k, v := range extra {
		body[k] = v
	}
	return body
}

func asServiceError(err error) (*services.ServiceError, bool) {
	var svcErr *services.ServiceError
	if errors.As(err, &svcErr) {
		return svcErr, true
	}
	return nil, false
}
