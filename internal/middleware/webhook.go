package middleware

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/example/saukimart/internal/utils"
)

// FlutterwaveSignatureHeader holds the shared webhook secret.
const FlutterwaveSignatureHeader = "verif-hash"

// WebhookSignatureMiddleware rejects webhook calls whose verif-hash header does
// not match the configured secret. With no secret configured every call is
// rejected.
func WebhookSignatureMiddleware(secret string, log *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if secret == "" {
			log.Error("webhook secret not configured, rejecting call", "path", c.Path())
			return unauthorized(c)
		}
		if !utils.SecretEqual(secret, c.Get(FlutterwaveSignatureHeader)) {
			log.Warn("webhook signature mismatch", "ip", c.IP())
			return unauthorized(c)
		}
		return c.Next()
	}
}
