package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/example/saukimart/internal/models"
)

// CatalogLookup resolves everything a customer can pay for.
type CatalogLookup interface {
	PlanLookup
	ProductLookup
}

// PaymentInstructions tell the customer where to send the transfer.
type PaymentInstructions struct {
	TxRef         string `json:"tx_ref"`
	BankName      string `json:"bank"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
	Amount        int64  `json:"amount"`
	Note          string `json:"note"`
}

// DataPaymentInput starts a data bundle purchase.
type DataPaymentInput struct {
	PlanID uuid.UUID
	Phone  string
}

// EcommercePaymentInput starts a physical order, optionally bundling a SIM.
type EcommercePaymentInput struct {
	ProductID uuid.UUID
	SimID     *uuid.UUID
	Phone     string
	Name      string
	State     string
}

// PaymentInitiator creates pending transactions backed by a virtual account.
type PaymentInitiator struct {
	store    TransactionStore
	catalog  CatalogLookup
	payments PaymentGateway
	log      *slog.Logger
	now      func() time.Time
}

// NewPaymentInitiator creates a new PaymentInitiator.
func NewPaymentInitiator(store TransactionStore, catalog CatalogLookup, payments PaymentGateway, log *slog.Logger) *PaymentInitiator {
	if log == nil {
		log = slog.Default()
	}
	return &PaymentInitiator{
		store:    store,
		catalog:  catalog,
		payments: payments,
		log:      log,
		now:      time.Now,
	}
}

// NewTxRef builds a reference such as SAUKI-DATA-1718000000000-123.
func NewTxRef(kind string, now time.Time) string {
	return fmt.Sprintf("SAUKI-%s-%d-%d", kind, now.UnixMilli(), rand.IntN(1000))
}

// InitiateDataPayment opens a virtual account for one data plan.
func (p *PaymentInitiator) InitiateDataPayment(ctx context.Context, input DataPaymentInput) (*PaymentInstructions, error) {
	phone := strings.TrimSpace(input.Phone)
	if phone == "" || input.PlanID == uuid.Nil {
		return nil, newServiceError(ErrorValidation, errors.New("missing planId or phone number"))
	}

	plan, err := p.catalog.FindDataPlan(ctx, input.PlanID)
	if err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			return nil, newServiceError(ErrorNotFound, err)
		}
		return nil, err
	}

	txRef := NewTxRef("DATA", p.now())
	log := p.log.With("tx_ref", txRef, "type", models.TransactionTypeData)
	log.Info("initiating payment", "amount", plan.Price, "plan_id", plan.ID.String())

	account, err := p.payments.CreateVirtualAccount(ctx, VirtualAccountRequest{
		TxRef:     txRef,
		Amount:    plan.Price,
		Phone:     phone,
		Narration: fmt.Sprintf("%s %s data", plan.Network, plan.Data),
		Meta: map[string]any{
			"plan_id":        plan.ID.String(),
			"type":           models.TransactionTypeData,
			"consumer_phone": phone,
		},
	})
	if err != nil {
		log.Error("virtual account not created", "error", err)
		return nil, err
	}

	planID := plan.ID
	txn := &models.Transaction{
		TxRef:          txRef,
		Type:           models.TransactionTypeData,
		Status:         models.StatusPending,
		Amount:         plan.Price,
		Phone:          phone,
		PlanID:         &planID,
		IdempotencyKey: uuid.NewString(),
		PaymentData:    datatypes.JSON(account.Raw),
		DeliveryLock:   models.LockUnlocked,
	}
	if err := p.store.Create(ctx, txn); err != nil {
		log.Error("pending transaction not saved", "error", err)
		return nil, fmt.Errorf("save transaction: %w", err)
	}

	return instructions(txRef, account), nil
}

// InitiateEcommercePayment opens a virtual account for a product, plus an
// optional SIM. An unknown SIM id is ignored.
func (p *PaymentInitiator) InitiateEcommercePayment(ctx context.Context, input EcommercePaymentInput) (*PaymentInstructions, error) {
	phone := strings.TrimSpace(input.Phone)
	name := strings.TrimSpace(input.Name)
	if phone == "" || name == "" || input.ProductID == uuid.Nil {
		return nil, newServiceError(ErrorValidation, errors.New("missing productId, name or phone number"))
	}

	product, err := p.catalog.FindProduct(ctx, input.ProductID)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return nil, newServiceError(ErrorNotFound, err)
		}
		return nil, err
	}

	total := product.Price
	narration := "Product: " + product.Name
	var simID *uuid.UUID
	if input.SimID != nil {
		sim, err := p.catalog.FindProduct(ctx, *input.SimID)
		switch {
		case err == nil:
			total += sim.Price
			narration += " + SIM: " + sim.Name
			id := sim.ID
			simID = &id
		case errors.Is(err, ErrProductNotFound):
			p.log.Warn("requested sim not found, ignoring", "sim_id", input.SimID.String())
		default:
			return nil, err
		}
	}

	txRef := NewTxRef("COMM", p.now())
	log := p.log.With("tx_ref", txRef, "type", models.TransactionTypeEcommerce)
	log.Info("initiating payment", "amount", total, "product_id", product.ID.String())

	meta := map[string]any{
		"consumer_state":  input.State,
		"included_sim_id": nil,
	}
	if simID != nil {
		meta["included_sim_id"] = simID.String()
	}

	account, err := p.payments.CreateVirtualAccount(ctx, VirtualAccountRequest{
		TxRef:     txRef,
		Amount:    total,
		Phone:     phone,
		FullName:  name,
		Narration: narration,
		Meta:      meta,
	})
	if err != nil {
		log.Error("virtual account not created", "error", err)
		return nil, err
	}

	productID := product.ID
	txn := &models.Transaction{
		TxRef:          txRef,
		Type:           models.TransactionTypeEcommerce,
		Status:         models.StatusPending,
		Amount:         total,
		Phone:          phone,
		ProductID:      &productID,
		SimProductID:   simID,
		CustomerName:   name,
		DeliveryState:  strings.TrimSpace(input.State),
		IdempotencyKey: uuid.NewString(),
		PaymentData:    datatypes.JSON(account.Raw),
		DeliveryLock:   models.LockUnlocked,
	}
	if err := p.store.Create(ctx, txn); err != nil {
		log.Error("pending transaction not saved", "error", err)
		return nil, fmt.Errorf("save transaction: %w", err)
	}

	return instructions(txRef, account), nil
}

func instructions(txRef string, account *VirtualAccount) *PaymentInstructions {
	note := account.Note
	if note == "" {
		note = "Expires soon"
	}
	return &PaymentInstructions{
		TxRef:         txRef,
		BankName:      account.BankName,
		AccountNumber: account.AccountNumber,
		AccountName:   account.AccountName,
		Amount:        account.Amount,
		Note:          note,
	}
}
