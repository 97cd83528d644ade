package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/tidwall/gjson"

	"github.com/example/saukimart/internal/config"
	"github.com/example/saukimart/internal/services"
	"github.com/example/saukimart/internal/utils"
)

// AdminPasswordHeader carries the shared admin secret.
const AdminPasswordHeader = "X-Admin-Password"

// AdminAuthMiddleware admits requests carrying the admin password, either in
// the X-Admin-Password header or as "password" in a JSON body.
func AdminAuthMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !AdminPasswordValid(cfg, presentedPassword(c)) {
			return unauthorized(c)
		}
		return c.Next()
	}
}

// AdminPasswordValid checks a password against ADMIN_PASSWORD_HASH when set,
// otherwise against ADMIN_PASSWORD.
func AdminPasswordValid(cfg *config.Config, password string) bool {
	if password == "" {
		return false
	}
	if cfg.AdminPasswordHash != "" {
		return utils.CheckPassword(cfg.AdminPasswordHash, password)
	}
	return utils.SecretEqual(cfg.AdminPassword, password)
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(services.ErrorUnauthorized.Status).JSON(fiber.Map{
		"error": services.ErrorUnauthorized.Message,
		"code":  services.ErrorUnauthorized.Name,
	})
}

func presentedPassword(c *fiber.Ctx) string {
	if header := strings.TrimSpace(c.Get(AdminPasswordHeader)); header != "" {
		return header
	}
	body := c.Body()
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return ""
	}
	return gjson.GetBytes(body, "password").String()
}
