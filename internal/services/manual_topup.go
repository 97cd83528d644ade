package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/example/saukimart/internal/models"
)

// ManualTopupService sends a data bundle on the admin's say-so, with no payment.
type ManualTopupService struct {
	store    TransactionStore
	plans    PlanLookup
	delivery DeliveryGateway
	notifier Notifier
	log      *slog.Logger
	now      func() time.Time
}

// NewManualTopupService creates a new ManualTopupService. notifier may be nil.
func NewManualTopupService(store TransactionStore, plans PlanLookup, delivery DeliveryGateway, notifier Notifier, log *slog.Logger) *ManualTopupService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &ManualTopupService{
		store:    store,
		plans:    plans,
		delivery: delivery,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

// Topup records the transaction as locked before calling the delivery gateway,
// so a crash mid-call leaves a visible held lock rather than no record at all.
// On a gateway rejection both the transaction and the error are returned.
func (s *ManualTopupService) Topup(ctx context.Context, planID uuid.UUID, phone string) (*models.Transaction, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" || planID == uuid.Nil {
		return nil, newServiceError(ErrorValidation, errors.New("missing planId or phone number"))
	}

	plan, err := s.plans.FindDataPlan(ctx, planID)
	if err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			return nil, newServiceError(ErrorNotFound, err)
		}
		return nil, err
	}

	network, err := NetworkCode(plan.Network)
	if err != nil {
		return nil, newServiceError(ErrorMapping, err)
	}

	now := s.now()
	id := plan.ID
	txn := &models.Transaction{
		TxRef:            "MANUAL-" + uuid.NewString(),
		Type:             models.TransactionTypeData,
		Status:           models.StatusPaid,
		Amount:           0,
		Phone:            phone,
		PlanID:           &id,
		IdempotencyKey:   uuid.NewString(),
		PaymentData:      datatypes.JSON(`{"method":"Manual Admin Topup"}`),
		DeliveryLock:     models.LockLocked,
		DeliveryAttempts: 1,
		DeliveryLockedAt: &now,
	}
	if err := s.store.Create(ctx, txn); err != nil {
		return nil, fmt.Errorf("save manual topup: %w", err)
	}

	log := s.log.With("tx_ref", txn.TxRef, "source", SourceAdmin, "plan_code", plan.PlanCode, "network", network)
	log.Info("manual topup started")

	workCtx := context.WithoutCancel(ctx)
	resp, err := s.delivery.Provision(workCtx, DeliveryRequest{
		NetworkCode:    network,
		Phone:          phone,
		PlanCode:       plan.PlanCode,
		IdempotencyKey: txn.TxRef,
	})
	if err != nil {
		if errors.Is(err, ErrDeliveryOutcomeUnknown) {
			log.Error("manual topup outcome unknown, lock held", "error", err)
			if markErr := s.store.MarkDeliveryUnknown(workCtx, txn.ID, err.Error()); markErr != nil {
				log.Error("unknown outcome not recorded", "error", markErr)
			}
			go s.alert(txn, plan, err.Error(), true, log)
			return s.reload(workCtx, txn), newServiceError(ErrorGateway, err)
		}

		payload, _ := json.Marshal(map[string]string{"error": err.Error()})
		if abandonErr := s.store.AbandonDelivery(workCtx, txn.ID, datatypes.JSON(payload)); abandonErr != nil {
			log.Error("manual topup failure not recorded", "error", abandonErr)
		}
		log.Error("manual topup not sent", "error", err)
		var svcErr *ServiceError
		if errors.As(err, &svcErr) {
			return s.reload(workCtx, txn), svcErr
		}
		return s.reload(workCtx, txn), newServiceError(ErrorGateway, err)
	}

	if DeliverySucceeded(resp.HTTPStatus, resp.Raw).Success {
		if err := s.store.CompleteDelivery(workCtx, txn.ID, datatypes.JSON(resp.Raw)); err != nil {
			return s.reload(workCtx, txn), err
		}
		log.Info("manual topup delivered")
		return s.reload(workCtx, txn), nil
	}

	if err := s.store.AbandonDelivery(workCtx, txn.ID, datatypes.JSON(resp.Raw)); err != nil {
		return s.reload(workCtx, txn), err
	}
	log.Warn("manual topup rejected", "http_status", resp.HTTPStatus)
	return s.reload(workCtx, txn), &ServiceError{
		Info:    ErrorGateway,
		Err:     errors.New("delivery gateway rejected the topup"),
		Details: resp.Raw,
	}
}

func (s *ManualTopupService) reload(ctx context.Context, txn *models.Transaction) *models.Transaction {
	fresh, err := s.store.FindByRef(ctx, txn.TxRef)
	if err != nil {
		return txn
	}
	return fresh
}

func (s *ManualTopupService) alert(txn *models.Transaction, plan *models.DataPlan, reason string, unknown bool, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	err := s.notifier.NotifyDeliveryIssue(ctx, DeliveryIssueNotification{
		TxRef:    txn.TxRef,
		Phone:    txn.Phone,
		Network:  plan.Network,
		Plan:     plan.Data,
		Attempts: 1,
		Unknown:  unknown,
		Reason:   reason,
	})
	if err != nil {
		log.Warn("ops notification failed", "error", err)
	}
}
