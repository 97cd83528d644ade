package services

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/example/saukimart/internal/models"
)

// memStore applies the same conditional-update rules as GormTransactionStore.
type memStore struct {
	mu   sync.Mutex
	txns map[string]*models.Transaction
}

func newMemStore(txns ...*models.Transaction) *memStore {
	s := &memStore{txns: make(map[string]*models.Transaction)}
	for _, txn := range txns {
		if txn.ID == uuid.Nil {
			txn.ID = uuid.New()
		}
		if txn.DeliveryLock == "" {
			txn.DeliveryLock = models.LockUnlocked
		}
		s.txns[txn.TxRef] = txn
	}
	return s
}

func (s *memStore) byID(id uuid.UUID) *models.Transaction {
	for _, txn := range s.txns {
		if txn.ID == id {
			return txn
		}
	}
	return nil
}

func (s *memStore) get(ref string) models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.txns[ref]
}

func (s *memStore) Create(_ context.Context, txn *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	txn.CreatedAt = time.Now()
	cp := *txn
	s.txns[txn.TxRef] = &cp
	return nil
}

func (s *memStore) FindByRef(_ context.Context, txRef string) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn, ok := s.txns[txRef]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	cp := *txn
	return &cp, nil
}

func (s *memStore) MarkPaid(_ context.Context, id uuid.UUID, payment datatypes.JSON) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn := s.byID(id)
	if txn == nil || txn.Status != models.StatusPending {
		return false, nil
	}
	txn.Status = models.StatusPaid
	txn.PaymentData = payment
	return true, nil
}

func (s *memStore) FlagAmountMismatch(_ context.Context, id uuid.UUID, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn := s.byID(id)
	if txn == nil || txn.Status != models.StatusPending || txn.PaymentMismatchAt != nil {
		return false, nil
	}
	txn.PaymentMismatchAt = &now
	return true, nil
}

func (s *memStore) AcquireDeliveryLock(_ context.Context, id uuid.UUID, now time.Time, ignoreCooldown bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn := s.byID(id)
	if txn == nil || txn.Status != models.StatusPaid || txn.Type != models.TransactionTypeData {
		return false, nil
	}

	switch txn.DeliveryLock {
	case models.LockUnlocked:
	case models.LockFailed:
		if !ignoreCooldown && txn.DeliveryRetryAt != nil && txn.DeliveryRetryAt.After(now) {
			return false, nil
		}
	default:
		return false, nil
	}

	txn.DeliveryLock = models.LockLocked
	txn.DeliveryLockedAt = &now
	txn.DeliveryAttempts++
	txn.DeliveryError = ""
	return true, nil
}

func (s *memStore) release(id uuid.UUID, apply func(*models.Transaction)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn := s.byID(id)
	if txn == nil || txn.DeliveryLock != models.LockLocked {
		return ErrLockLost
	}
	apply(txn)
	return nil
}

func (s *memStore) CompleteDelivery(_ context.Context, id uuid.UUID, response datatypes.JSON) error {
	return s.release(id, func(txn *models.Transaction) {
		txn.Status = models.StatusDelivered
		txn.DeliveryLock = models.LockResolved
		txn.DeliveryData = response
		txn.DeliveryRetryAt = nil
	})
}

func (s *memStore) FailDelivery(_ context.Context, id uuid.UUID, response datatypes.JSON, retryAt time.Time) error {
	return s.release(id, func(txn *models.Transaction) {
		txn.DeliveryLock = models.LockFailed
		txn.DeliveryData = response
		txn.DeliveryRetryAt = &retryAt
	})
}

func (s *memStore) AbandonDelivery(_ context.Context, id uuid.UUID, response datatypes.JSON) error {
	return s.release(id, func(txn *models.Transaction) {
		txn.Status = models.StatusFailed
		txn.DeliveryLock = models.LockFailed
		txn.DeliveryData = response
	})
}

func (s *memStore) MarkDeliveryUnknown(_ context.Context, id uuid.UUID, reason string) error {
	return s.release(id, func(txn *models.Transaction) {
		txn.DeliveryError = reason
	})
}

func (s *memStore) ListPending(_ context.Context, createdAfter, createdBefore time.Time, limit int) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Transaction
	for _, txn := range s.txns {
		if txn.Status != models.StatusPending {
			continue
		}
		if txn.CreatedAt.Before(createdAfter) || txn.CreatedAt.After(createdBefore) {
			continue
		}
		out = append(out, *txn)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type fakeCatalog struct {
	plans    map[uuid.UUID]*models.DataPlan
	products map[uuid.UUID]*models.Product
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		plans:    make(map[uuid.UUID]*models.DataPlan),
		products: make(map[uuid.UUID]*models.Product),
	}
}

func (c *fakeCatalog) addPlan(network string, price int64, code int) *models.DataPlan {
	plan := &models.DataPlan{Network: network, Data: "1GB", Validity: "30 days", Price: price, PlanCode: code}
	plan.ID = uuid.New()
	c.plans[plan.ID] = plan
	return plan
}

func (c *fakeCatalog) addProduct(name string, price int64) *models.Product {
	product := &models.Product{Name: name, Price: price, InStock: true}
	product.ID = uuid.New()
	c.products[product.ID] = product
	return product
}

func (c *fakeCatalog) FindDataPlan(_ context.Context, id uuid.UUID) (*models.DataPlan, error) {
	plan, ok := c.plans[id]
	if !ok {
		return nil, ErrPlanNotFound
	}
	return plan, nil
}

func (c *fakeCatalog) FindProduct(_ context.Context, id uuid.UUID) (*models.Product, error) {
	product, ok := c.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	return product, nil
}

type fakePayments struct {
	mu           sync.Mutex
	verification *PaymentVerification
	verifyErr    error
	verifyCalls  int
	account      *VirtualAccount
	accountErr   error
	accountReqs  []VirtualAccountRequest
}

func (p *fakePayments) VerifyByReference(ctx context.Context, _ string) (*PaymentVerification, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.verifyCalls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.verifyErr != nil {
		return nil, p.verifyErr
	}
	return p.verification, nil
}

func (p *fakePayments) CreateVirtualAccount(_ context.Context, req VirtualAccountRequest) (*VirtualAccount, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accountReqs = append(p.accountReqs, req)
	if p.accountErr != nil {
		return nil, p.accountErr
	}
	return p.account, nil
}

func successfulPayment(amount float64) *PaymentVerification {
	raw, _ := json.Marshal(map[string]any{"status": "successful", "amount": amount})
	return &PaymentVerification{Status: "successful", Amount: amount, Raw: raw}
}

type fakeDelivery struct {
	calls    atomic.Int32
	mu       sync.Mutex
	requests []DeliveryRequest
	status   int
	body     string
	err      error
	// delay widens the window in which concurrent callers race.
	delay time.Duration
}

func (d *fakeDelivery) Provision(_ context.Context, req DeliveryRequest) (*DeliveryResponse, error) {
	d.calls.Add(1)
	d.mu.Lock()
	d.requests = append(d.requests, req)
	d.mu.Unlock()
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	if d.err != nil {
		return nil, d.err
	}
	status := d.status
	if status == 0 {
		status = 200
	}
	return &DeliveryResponse{HTTPStatus: status, Raw: json.RawMessage(d.body)}, nil
}

type recordingNotifier struct {
	mismatches chan AmountMismatchNotification
	issues     chan DeliveryIssueNotification
	orders     chan OrderPaidNotification
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{
		mismatches: make(chan AmountMismatchNotification, 8),
		issues:     make(chan DeliveryIssueNotification, 8),
		orders:     make(chan OrderPaidNotification, 8),
	}
}

func (n *recordingNotifier) NotifyAmountMismatch(_ context.Context, m AmountMismatchNotification) error {
	n.mismatches <- m
	return nil
}

func (n *recordingNotifier) NotifyDeliveryIssue(_ context.Context, m DeliveryIssueNotification) error {
	n.issues <- m
	return nil
}

func (n *recordingNotifier) NotifyOrderPaid(_ context.Context, m OrderPaidNotification) error {
	n.orders <- m
	return nil
}
