package handlers

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/example/saukimart/internal/services"
)

// WebhookHandler receives payment gateway push notifications.
type WebhookHandler struct {
	reconciler services.TransactionReconciler
	log        *slog.Logger
}

// NewWebhookHandler constructs WebhookHandler.
func NewWebhookHandler(reconciler services.TransactionReconciler, log *slog.Logger) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler, log: log.With("component", "webhook")}
}

// Handle processes a webhook for the gateway named in the path. Replays are
// harmless: the reconciler only acts on transitions that have not happened.
func (h *WebhookHandler) Handle(c *fiber.Ctx) error {
	if c.Params("gateway") != "flutterwave" {
		return fiber.NewError(fiber.StatusNotFound, "unknown gateway")
	}

	ref, event := services.ParseFlutterwaveWebhook(c.Body())
	if event == nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid webhook body")
	}

	log := h.log.With("tx_ref", ref, "gateway_status", event.Status)
	log.Info("webhook received")

	if !event.Successful() {
		return c.JSON(fiber.Map{"received": true})
	}
	if ref == "" {
		log.Warn("successful webhook without a reference")
		return fiber.NewError(fiber.StatusBadRequest, "missing transaction reference")
	}

	status, err := h.reconciler.Reconcile(c.UserContext(), services.ReconcileRequest{
		TxRef:  ref,
		Event:  event,
		Source: services.SourceWebhook,
	})
	if err != nil {
		_, ok := asServiceError(err)
		switch {
		case errors.Is(err, services.ErrTransactionNotFound):
			log.Error("webhook for unknown transaction")
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Tx not found"})
		case !ok:
			log.Error("webhook reconcile failed", "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal Error"})
		default:
			// Payment is recorded; delivery problems are retried from our side.
			log.Warn("webhook reconcile incomplete", "status", status, "error", err)
		}
	}

	return c.JSON(fiber.Map{"received": true, "status": status})
}
