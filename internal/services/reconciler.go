package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"

	"github.com/example/saukimart/internal/models"
)

// Reconcile sources, used for logging only.
const (
	SourcePoll    = "poll"
	SourceWebhook = "webhook"
	SourceAdmin   = "admin"
	SourceSweeper = "sweeper"
)

// PaymentEvent is a payment confirmation pushed by the gateway.
type PaymentEvent struct {
	Status string
	Amount float64
	Raw    json.RawMessage
}

// ReconcileRequest asks the reconciler to move one transaction forward.
type ReconcileRequest struct {
	TxRef string
	// Event carries a webhook confirmation. Without one, or without an amount,
	// the payment gateway is queried.
	Event *PaymentEvent
	// IgnoreCooldown lets an admin retry a failed delivery immediately.
	IgnoreCooldown bool
	Source         string
}

// TransactionReconciler is implemented by Reconciler.
type TransactionReconciler interface {
	Reconcile(ctx context.Context, req ReconcileRequest) (models.TransactionStatus, error)
}

// ReconcilerConfig holds the reconciler's collaborators and tunables.
type ReconcilerConfig struct {
	Store    TransactionStore
	Plans    PlanLookup
	Payments PaymentGateway
	Delivery DeliveryGateway
	Notifier Notifier
	Logger   *slog.Logger
	// RetryCooldown is how long a failed delivery waits before another
	// automatic attempt.
	RetryCooldown time.Duration
	Now           func() time.Time
}

// Reconciler drives a transaction from pending to paid to delivered. It is
// safe to call concurrently from any number of processes: payment and
// delivery transitions are conditional updates in the store, and the delivery
// gateway is only called by the caller that won the delivery lock.
type Reconciler struct {
	store    TransactionStore
	plans    PlanLookup
	payments PaymentGateway
	delivery DeliveryGateway
	notifier Notifier
	log      *slog.Logger
	cooldown time.Duration
	now      func() time.Time

	polls singleflight.Group
}

// NewReconciler creates a new Reconciler.
func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	r := &Reconciler{
		store:    cfg.Store,
		plans:    cfg.Plans,
		payments: cfg.Payments,
		delivery: cfg.Delivery,
		notifier: cfg.Notifier,
		log:      cfg.Logger,
		cooldown: cfg.RetryCooldown,
		now:      cfg.Now,
	}
	if r.notifier == nil {
		r.notifier = noopNotifier{}
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Reconcile returns the transaction's status after doing whatever work is
// currently possible. A delivered transaction is returned without contacting
// any gateway.
func (r *Reconciler) Reconcile(ctx context.Context, req ReconcileRequest) (models.TransactionStatus, error) {
	// Identical polls in this process share one pass. Correctness does not
	// depend on it. The shared pass must outlive any one caller.
	if req.Event == nil && !req.IgnoreCooldown {
		shared := context.WithoutCancel(ctx)
		v, err, _ := r.polls.Do(req.TxRef, func() (any, error) {
			return r.reconcile(shared, req)
		})
		status, _ := v.(models.TransactionStatus)
		return status, err
	}
	return r.reconcile(ctx, req)
}

func (r *Reconciler) reconcile(ctx context.Context, req ReconcileRequest) (models.TransactionStatus, error) {
	log := r.log.With("tx_ref", req.TxRef, "source", req.Source)

	txn, err := r.store.FindByRef(ctx, req.TxRef)
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			return "", newServiceError(ErrorNotFound, err)
		}
		return "", err
	}

	if txn.IsTerminal() {
		return txn.Status, nil
	}

	if txn.Status == models.StatusPending {
		txn, err = r.confirmPayment(ctx, txn, req.Event, log)
		if err != nil {
			return models.StatusPending, err
		}
	}

	if txn.Status != models.StatusPaid || txn.Type != models.TransactionTypeData {
		return txn.Status, nil
	}

	return r.deliver(ctx, txn, req.IgnoreCooldown, log)
}

// confirmPayment moves a pending transaction to paid when the gateway confirms
// a payment covering the amount. Gateway failures leave it pending.
func (r *Reconciler) confirmPayment(ctx context.Context, txn *models.Transaction, event *PaymentEvent, log *slog.Logger) (*models.Transaction, error) {
	var verification *PaymentVerification
	if event.Successful() && event.Amount > 0 {
		verification = &PaymentVerification{Status: "successful", Amount: event.Amount, Raw: event.Raw}
	} else {
		v, err := r.payments.VerifyByReference(ctx, txn.TxRef)
		if err != nil {
			log.Info("payment not confirmed", "error", err)
			return txn, nil
		}
		verification = v
	}

	if !verification.Successful() {
		log.Debug("payment not settled", "gateway_status", verification.Status)
		return txn, nil
	}

	if verification.Amount < float64(txn.Amount) {
		log.Warn("payment amount below order total",
			"expected", txn.Amount,
			"paid", verification.Amount,
		)
		first, err := r.store.FlagAmountMismatch(ctx, txn.ID, r.now())
		if err != nil {
			return txn, err
		}
		if !first {
			return txn, nil
		}
		r.notify(func(ctx context.Context) error {
			return r.notifier.NotifyAmountMismatch(ctx, AmountMismatchNotification{
				TxRef:    txn.TxRef,
				Phone:    txn.Phone,
				Expected: txn.Amount,
				Paid:     verification.Amount,
			})
		}, log)
		return txn, nil
	}

	moved, err := r.store.MarkPaid(ctx, txn.ID, datatypes.JSON(verification.Raw))
	if err != nil {
		return txn, err
	}
	if !moved {
		// Another caller got there first; continue from what it wrote.
		return r.store.FindByRef(ctx, txn.TxRef)
	}

	log.Info("payment confirmed", "amount", verification.Amount)
	txn.Status = models.StatusPaid
	txn.PaymentData = datatypes.JSON(verification.Raw)

	if txn.Type == models.TransactionTypeEcommerce {
		paid := *txn
		r.notify(func(ctx context.Context) error {
			return r.notifier.NotifyOrderPaid(ctx, OrderPaidNotification{
				TxRef:    paid.TxRef,
				Customer: paid.CustomerName,
				Phone:    paid.Phone,
				State:    paid.DeliveryState,
				Amount:   paid.Amount,
			})
		}, log)
	}
	return txn, nil
}

func (r *Reconciler) deliver(ctx context.Context, txn *models.Transaction, ignoreCooldown bool, log *slog.Logger) (models.TransactionStatus, error) {
	if txn.PlanID == nil {
		log.Error("data transaction has no plan")
		return txn.Status, newServiceError(ErrorValidation, errors.New("transaction has no data plan"))
	}

	plan, err := r.plans.FindDataPlan(ctx, *txn.PlanID)
	if err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			log.Error("data plan for paid transaction is gone", "plan_id", txn.PlanID.String())
			return txn.Status, newServiceError(ErrorNotFound, err)
		}
		return txn.Status, err
	}

	network, err := NetworkCode(plan.Network)
	if err != nil {
		log.Error("plan network cannot be delivered", "network", plan.Network)
		return txn.Status, newServiceError(ErrorMapping, err)
	}

	now := r.now()
	acquired, err := r.store.AcquireDeliveryLock(ctx, txn.ID, now, ignoreCooldown)
	if err != nil {
		return txn.Status, err
	}
	if !acquired {
		current, err := r.store.FindByRef(ctx, txn.TxRef)
		if err != nil {
			return txn.Status, err
		}
		log.Debug("delivery lock not acquired", "delivery_lock", current.DeliveryLock)
		return current.Status, nil
	}

	attempt := txn.DeliveryAttempts + 1
	log = log.With("attempt", attempt, "plan_code", plan.PlanCode, "network", network)
	log.Info("delivery lock acquired")

	// The upstream call and the bookkeeping after it must outlive a client
	// that disconnects mid-request.
	workCtx := context.WithoutCancel(ctx)
	issue := DeliveryIssueNotification{
		TxRef:    txn.TxRef,
		Phone:    txn.Phone,
		Network:  plan.Network,
		Plan:     plan.Data,
		Attempts: attempt,
	}

	resp, err := r.delivery.Provision(workCtx, DeliveryRequest{
		NetworkCode:    network,
		Phone:          txn.Phone,
		PlanCode:       plan.PlanCode,
		IdempotencyKey: txn.TxRef,
	})
	if err != nil {
		return r.recordDeliveryError(workCtx, txn, err, issue, log)
	}

	verdict := DeliverySucceeded(resp.HTTPStatus, resp.Raw)
	if !verdict.Recognized {
		log.Warn("unrecognized delivery response shape",
			"http_status", resp.HTTPStatus,
			"body", string(resp.Raw),
		)
	}

	if verdict.Success {
		if err := r.store.CompleteDelivery(workCtx, txn.ID, datatypes.JSON(resp.Raw)); err != nil {
			log.Error("delivered but outcome not recorded", "error", err)
			return txn.Status, err
		}
		log.Info("delivery succeeded")
		return models.StatusDelivered, nil
	}

	retryAt := r.now().Add(r.cooldown)
	if err := r.store.FailDelivery(workCtx, txn.ID, datatypes.JSON(resp.Raw), retryAt); err != nil {
		log.Error("delivery failure not recorded", "error", err)
		return txn.Status, err
	}
	log.Warn("delivery rejected", "http_status", resp.HTTPStatus, "retry_at", retryAt)

	issue.Reason = fmt.Sprintf("gateway answered %d: %s", resp.HTTPStatus, gatewayMessage(resp.Raw, "no message"))
	r.notify(func(ctx context.Context) error { return r.notifier.NotifyDeliveryIssue(ctx, issue) }, log)

	return txn.Status, &ServiceError{
		Info:    ErrorGateway,
		Err:     errors.New("delivery gateway rejected the order"),
		Details: resp.Raw,
	}
}

func (r *Reconciler) recordDeliveryError(ctx context.Context, txn *models.Transaction, deliveryErr error, issue DeliveryIssueNotification, log *slog.Logger) (models.TransactionStatus, error) {
	issue.Reason = deliveryErr.Error()

	if errors.Is(deliveryErr, ErrDeliveryOutcomeUnknown) {
		log.Error("delivery outcome unknown, lock held", "error", deliveryErr)
		if err := r.store.MarkDeliveryUnknown(ctx, txn.ID, deliveryErr.Error()); err != nil {
			log.Error("unknown outcome not recorded", "error", err)
		}
		issue.Unknown = true
		r.notify(func(ctx context.Context) error { return r.notifier.NotifyDeliveryIssue(ctx, issue) }, log)
		return txn.Status, newServiceError(ErrorGateway, deliveryErr)
	}

	// Nothing reached the gateway, so the next attempt may go immediately.
	payload, _ := json.Marshal(map[string]string{"error": deliveryErr.Error()})
	if err := r.store.FailDelivery(ctx, txn.ID, datatypes.JSON(payload), r.now()); err != nil {
		log.Error("delivery error not recorded", "error", err)
	}
	log.Error("delivery not sent", "error", deliveryErr)

	var svcErr *ServiceError
	if errors.As(deliveryErr, &svcErr) {
		return txn.Status, svcErr
	}
	return txn.Status, newServiceError(ErrorGateway, deliveryErr)
}

// notify runs fn in the background; alert delivery never blocks reconciliation.
func (r *Reconciler) notify(fn func(ctx context.Context) error, log *slog.Logger) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := fn(ctx); err != nil {
			log.Warn("ops notification failed", "error", err)
		}
	}()
}
