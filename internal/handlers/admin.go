package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/saukimart/internal/models"
	"github.com/example/saukimart/internal/services"
	"github.com/example/saukimart/internal/utils"
)

type adminTransactionStore interface {
	transactionLister
	ReleaseDeliveryLock(ctx context.Context, txRef string) (bool, error)
	OverrideStatus(ctx context.Context, txRef string, status models.TransactionStatus, now time.Time) (*models.Transaction, error)
}

type manualTopper interface {
	Topup(ctx context.Context, planID uuid.UUID, phone string) (*models.Transaction, error)
}

type gatewayConsole interface {
	Passthrough(ctx context.Context, method, endpoint string, payload json.RawMessage) (*services.GatewayResponse, error)
}

// AdminHandler manages admin-only endpoints.
type AdminHandler struct {
	transactions adminTransactionStore
	reconciler   services.TransactionReconciler
	topups       manualTopper
	console      gatewayConsole
	log          *slog.Logger
}

// NewAdminHandler constructs AdminHandler.
func NewAdminHandler(transactions adminTransactionStore, reconciler services.TransactionReconciler, topups manualTopper, console gatewayConsole, log *slog.Logger) *AdminHandler {
	return &AdminHandler{
		transactions: transactions,
		reconciler:   reconciler,
		topups:       topups,
		console:      console,
		log:          log.With("component", "admin"),
	}
}

// Auth confirms the admin password. The middleware has already checked it.
func (h *AdminHandler) Auth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"success": true})
}

// ListTransactions returns transactions with pagination and filters.
func (h *AdminHandler) ListTransactions(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)

	status := models.TransactionStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		return fiber.NewError(fiber.StatusBadRequest, "invalid status filter")
	}

	txns, total, err := h.transactions.List(c.UserContext(), services.TransactionFilter{
		Status: status,
		Type:   models.TransactionType(c.Query("type")),
		Phone:  strings.TrimSpace(c.Query("phone")),
		Limit:  pg.Limit,
		Offset: pg.Offset,
	})
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       txns,
		"pagination": pg.Meta(total),
	})
}

type txRefRequest struct {
	TxRef string `json:"tx_ref" validate:"required"`
}

// Retry reconciles a transaction immediately, skipping the failed-delivery
// cooldown. It never bypasses a held lock.
func (h *AdminHandler) Retry(c *fiber.Ctx) error {
	req, err := utils.BindAndValidate[txRefRequest](c)
	if err != nil {
		return err
	}

	status, err := h.reconciler.Reconcile(c.UserContext(), services.ReconcileRequest{
		TxRef:          req.TxRef,
		IgnoreCooldown: true,
		Source:         services.SourceAdmin,
	})
	if err != nil {
		svcErr, ok := asServiceError(err)
		if !ok {
			return err
		}
		return c.Status(svcErr.Info.Status).JSON(serviceErrorBody(svcErr, fiber.Map{"status": status}))
	}

	h.log.Info("admin retry", "tx_ref", req.TxRef, "status", status)
	return c.JSON(fiber.Map{"success": true, "status": status})
}

// Unlock releases a held or cooling-down delivery lock so the next reconcile
// may call the delivery gateway again. Use only after confirming upstream that
// the previous attempt did not deliver.
func (h *AdminHandler) Unlock(c *fiber.Ctx) error {
	req, err := utils.BindAndValidate[txRefRequest](c)
	if err != nil {
		return err
	}

	released, err := h.transactions.ReleaseDeliveryLock(c.UserContext(), req.TxRef)
	if err != nil {
		return err
	}
	if !released {
		return &services.ServiceError{
			Info: services.ErrorInvalidTransition,
			Err:  errors.New("transaction is not paid with a held or failed delivery lock"),
		}
	}

	h.log.Warn("delivery lock released by admin", "tx_ref", req.TxRef)
	return c.JSON(fiber.Map{"success": true})
}

type updateStatusRequest struct {
	TxRef  string `json:"tx_ref" validate:"required"`
	Status string `json:"status" validate:"required,oneof=pending paid delivered failed"`
}

// UpdateStatus overrides a transaction's status.
func (h *AdminHandler) UpdateStatus(c *fiber.Ctx) error {
	req, err := utils.BindAndValidate[updateStatusRequest](c)
	if err != nil {
		return err
	}

	txn, err := h.transactions.OverrideStatus(c.UserContext(), req.TxRef, models.TransactionStatus(req.Status), time.Now())
	if err != nil {
		if svcErr, ok := asServiceError(err); ok {
			return svcErr
		}
		if errors.Is(err, services.ErrTransactionNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "transaction not found")
		}
		return err
	}

	h.log.Warn("status overridden by admin", "tx_ref", req.TxRef, "status", req.Status)
	return c.JSON(fiber.Map{"success": true, "transaction": txn})
}

type manualTopupRequest struct {
	PlanID string `json:"planId" validate:"required,uuid"`
	Phone  string `json:"phone" validate:"required"`
}

// ManualTopup delivers a data bundle without payment.
func (h *AdminHandler) ManualTopup(c *fiber.Ctx) error {
	req, err := utils.BindAndValidate[manualTopupRequest](c)
	if err != nil {
		return err
	}

	txn, err := h.topups.Topup(c.UserContext(), uuid.MustParse(req.PlanID), req.Phone)
	if err != nil {
		svcErr, ok := asServiceError(err)
		if !ok || txn == nil {
			return err
		}
		return c.Status(svcErr.Info.Status).JSON(serviceErrorBody(svcErr, fiber.Map{
			"transactionId": txn.ID,
			"tx_ref":        txn.TxRef,
		}))
	}

	return c.JSON(fiber.Map{"success": true, "transaction": txn})
}

type consoleRequest struct {
	Endpoint string          `json:"endpoint" validate:"required"`
	Method   string          `json:"method" validate:"omitempty,oneof=GET POST PUT DELETE get post put delete"`
	Payload  json.RawMessage `json:"payload"`
}

// FlutterwaveConsole forwards an arbitrary call to the payment gateway with the
// server-side credentials.
func (h *AdminHandler) FlutterwaveConsole(c *fiber.Ctx) error {
	req, err := utils.BindAndValidate[consoleRequest](c)
	if err != nil {
		return err
	}

	resp, err := h.console.Passthrough(c.UserContext(), req.Method, req.Endpoint, req.Payload)
	if err != nil {
		return err
	}

	h.log.Info("gateway console call", "method", req.Method, "endpoint", req.Endpoint, "http_status", resp.Status)
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Status(resp.Status).Send(resp.Body)
}
