package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func webhookStatus(t *testing.T, secret, presented string) int {
	t.Helper()
	app := fiber.New()
	app.Post("/hook", WebhookSignatureMiddleware(secret, slog.New(slog.NewTextHandler(io.Discard, nil))), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	req := httptest.NewRequest(http.MethodPost, "/hook", nil)
	if presented != "" {
		req.Header.Set(FlutterwaveSignatureHeader, presented)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestWebhookSignature(t *testing.T) {
	assert.Equal(t, http.StatusOK, webhookStatus(t, "hash", "hash"))
	assert.Equal(t, http.StatusUnauthorized, webhookStatus(t, "hash", "other"))
	assert.Equal(t, http.StatusUnauthorized, webhookStatus(t, "hash", ""))
	assert.Equal(t, http.StatusUnauthorized, webhookStatus(t, "", ""))
	assert.Equal(t, http.StatusUnauthorized, webhookStatus(t, "", "anything"))
}
