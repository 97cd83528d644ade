package handlers

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/saukimart/internal/models"
	"github.com/example/saukimart/internal/services"
	"github.com/example/saukimart/internal/utils"
)

type transactionLister interface {
	List(ctx context.Context, filter services.TransactionFilter) ([]models.Transaction, int64, error)
}

// TransactionHandler serves the storefront payment endpoints.
type TransactionHandler struct {
	initiator    *services.PaymentInitiator
	reconciler   services.TransactionReconciler
	transactions transactionLister
	log          *slog.Logger
}

// NewTransactionHandler constructs TransactionHandler.
func NewTransactionHandler(initiator *services.PaymentInitiator, reconciler services.TransactionReconciler, transactions transactionLister, log *slog.Logger) *TransactionHandler {
	return &TransactionHandler{
		initiator:    initiator,
		reconciler:   reconciler,
		transactions: transactions,
		log:          log,
	}
}

type initiateDataRequest struct {
	PlanID string `json:"planId" validate:"required,uuid"`
	Phone  string `json:"phone" validate:"required"`
}

// InitiateDataPayment opens a virtual account for a data plan.
func (h *TransactionHandler) InitiateDataPayment(c *fiber.Ctx) error {
	req, err := utils.BindAndValidate[initiateDataRequest](c)
	if err != nil {
		return err
	}

	instructions, err := h.initiator.InitiateDataPayment(c.UserContext(), services.DataPaymentInput{
		PlanID: uuid.MustParse(req.PlanID),
		Phone:  req.Phone,
	})
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"status":         "success",
		"tx_ref":         instructions.TxRef,
		"bank":           instructions.BankName,
		"account_number": instructions.AccountNumber,
		"account_name":   instructions.AccountName,
		"amount":         instructions.Amount,
		"expiry_note":    instructions.Note,
	})
}

type initiateEcommerceRequest struct {
	ProductID string `json:"productId" validate:"required,uuid"`
	Phone     string `json:"phone" validate:"required"`
	Name      string `json:"name" validate:"required"`
	State     string `json:"state"`
	SimID     string `json:"simId" validate:"omitempty,uuid"`
}

// InitiateEcommercePayment opens a virtual account for a product order.
func (h *TransactionHandler) InitiateEcommercePayment(c *fiber.Ctx) error {
	req, err := utils.BindAndValidate[initiateEcommerceRequest](c)
	if err != nil {
		return err
	}

	input := services.EcommercePaymentInput{
		ProductID: uuid.MustParse(req.ProductID),
		Phone:     req.Phone,
		Name:      req.Name,
		State:     req.State,
	}
	if req.SimID != "" {
		simID := uuid.MustParse(req.SimID)
		input.SimID = &simID
	}

	instructions, err := h.initiator.InitiateEcommercePayment(c.UserContext(), input)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"tx_ref":         instructions.TxRef,
		"bank":           instructions.BankName,
		"account_number": instructions.AccountNumber,
		"account_name":   instructions.AccountName,
		"amount":         instructions.Amount,
		"note":           instructions.Note,
	})
}

type verifyRequest struct {
	TxRef string `json:"tx_ref" validate:"required"`
}

// Verify reconciles one transaction and reports its status. The storefront
// polls this while a transfer is outstanding.
func (h *TransactionHandler) Verify(c *fiber.Ctx) error {
	req, err := utils.BindAndValidate[verifyRequest](c)
	if err != nil {
		return err
	}

	status, err := h.reconciler.Reconcile(c.UserContext(), services.ReconcileRequest{
		TxRef:  strings.TrimSpace(req.TxRef),
		Source: services.SourcePoll,
	})
	if err != nil {
		svcErr, ok := asServiceError(err)
		if !ok {
			return err
		}
		extra := fiber.Map{"retryable": svcErr.Info.Name == services.ErrorGateway.Name}
		if status != "" {
			extra["status"] = status
		}
		return c.Status(svcErr.Info.Status).JSON(serviceErrorBody(svcErr, extra))
	}

	return c.JSON(fiber.Map{"status": status})
}

type trackedTransaction struct {
	TxRef     string                   `json:"tx_ref"`
	Type      models.TransactionType   `json:"type"`
	Status    models.TransactionStatus `json:"status"`
	Amount    int64                    `json:"amount"`
	CreatedAt time.Time                `json:"created_at"`
}

// Track lists a customer's recent transactions by phone number.
func (h *TransactionHandler) Track(c *fiber.Ctx) error {
	phone := strings.TrimSpace(c.Query("phone"))
	if phone == "" {
		return fiber.NewError(fiber.StatusBadRequest, "phone is required")
	}

	txns, _, err := h.transactions.List(c.UserContext(), services.TransactionFilter{
		Phone: phone,
		Limit: 20,
	})
	if err != nil {
		return err
	}

	data := make([]trackedTransaction, 0, len(txns))
	for _, txn := range txns {
		data = append(data, trackedTransaction{
			TxRef:     txn.TxRef,
			Type:      txn.Type,
			Status:    txn.Status,
			Amount:    txn.Amount,
			CreatedAt: txn.CreatedAt,
		})
	}

	return c.JSON(fiber.Map{"success": true, "data": data})
}
