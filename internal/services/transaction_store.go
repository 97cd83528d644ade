package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/example/saukimart/internal/models"
)

// TransactionStore is the persistence surface the payment and delivery flows
// depend on. Every state change is a conditional update so that concurrent
// callers on any number of instances cannot both win.
type TransactionStore interface {
	Create(ctx context.Context, txn *models.Transaction) error
	FindByRef(ctx context.Context, txRef string) (*models.Transaction, error)

	// MarkPaid moves a pending transaction to paid. It reports false when the
	// transaction was no longer pending.
	MarkPaid(ctx context.Context, id uuid.UUID, payment datatypes.JSON) (bool, error)

	// FlagAmountMismatch records the first underpayment seen on a pending
	// transaction. Only the first caller gets true.
	FlagAmountMismatch(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)

	// AcquireDeliveryLock takes the delivery lock of a paid data transaction.
	// Exactly one concurrent caller gets true. ignoreCooldown skips the retry
	// delay after a recorded failure but never steals a held lock.
	AcquireDeliveryLock(ctx context.Context, id uuid.UUID, now time.Time, ignoreCooldown bool) (bool, error)

	CompleteDelivery(ctx context.Context, id uuid.UUID, response datatypes.JSON) error
	FailDelivery(ctx context.Context, id uuid.UUID, response datatypes.JSON, retryAt time.Time) error
	// AbandonDelivery marks a locked transaction failed for good.
	AbandonDelivery(ctx context.Context, id uuid.UUID, response datatypes.JSON) error
	// MarkDeliveryUnknown keeps the lock held and records why.
	MarkDeliveryUnknown(ctx context.Context, id uuid.UUID, reason string) error
}

// TransactionFilter narrows admin listings.
type TransactionFilter struct {
	Status models.TransactionStatus
	Type   models.TransactionType
	Phone  string
	Limit  int
	Offset int
}

// GormTransactionStore implements TransactionStore on Postgres.
type GormTransactionStore struct {
	db *gorm.DB
}

// NewGormTransactionStore creates a new GormTransactionStore.
func NewGormTransactionStore(db *gorm.DB) *GormTransactionStore {
	return &GormTransactionStore{db: db}
}

func (s *GormTransactionStore) Create(ctx context.Context, txn *models.Transaction) error {
	return s.db.WithContext(ctx).Create(txn).Error
}

func (s *GormTransactionStore) FindByRef(ctx context.Context, txRef string) (*models.Transaction, error) {
	var txn models.Transaction
	if err := s.db.WithContext(ctx).Where("tx_ref = ?", txRef).First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &txn, nil
}

func (s *GormTransactionStore) FlagAmountMismatch(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND status = ? AND payment_mismatch_at IS NULL", id, models.StatusPending).
		Update("payment_mismatch_at", now)
	if res.Error != nil {
		return false, fmt.Errorf("flag amount mismatch: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *GormTransactionStore) MarkPaid(ctx context.Context, id uuid.UUID, payment datatypes.JSON) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, models.StatusPending).
		Updates(map[string]any{
			"status":       models.StatusPaid,
			"payment_data": payment,
		})
	if res.Error != nil {
		return false, fmt.Errorf("mark paid: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *GormTransactionStore) AcquireDeliveryLock(ctx context.Context, id uuid.UUID, now time.Time, ignoreCooldown bool) (bool, error) {
	query := s.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND status = ? AND type = ?", id, models.StatusPaid, models.TransactionTypeData)

	if ignoreCooldown {
		query = query.Where("delivery_lock IN ?", []models.DeliveryLock{models.LockUnlocked, models.LockFailed})
	} else {
		query = query.Where(
			"(delivery_lock = ? OR (delivery_lock = ? AND (delivery_retry_at IS NULL OR delivery_retry_at <= ?)))",
			models.LockUnlocked, models.LockFailed, now,
		)
	}

	res := query.Updates(map[string]any{
		"delivery_lock":      models.LockLocked,
		"delivery_locked_at": now,
		"delivery_attempts":  gorm.Expr("delivery_attempts + 1"),
		"delivery_error":     "",
	})
	if res.Error != nil {
		return false, fmt.Errorf("acquire delivery lock: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *GormTransactionStore) CompleteDelivery(ctx context.Context, id uuid.UUID, response datatypes.JSON) error {
	return s.releaseLock(ctx, id, map[string]any{
		"status":            models.StatusDelivered,
		"delivery_lock":     models.LockResolved,
		"delivery_data":     response,
		"delivery_retry_at": nil,
		"delivery_error":    "",
	})
}

func (s *GormTransactionStore) FailDelivery(ctx context.Context, id uuid.UUID, response datatypes.JSON, retryAt time.Time) error {
	return s.releaseLock(ctx, id, map[string]any{
		"delivery_lock":     models.LockFailed,
		"delivery_data":     response,
		"delivery_retry_at": retryAt,
	})
}

func (s *GormTransactionStore) AbandonDelivery(ctx context.Context, id uuid.UUID, response datatypes.JSON) error {
	return s.releaseLock(ctx, id, map[string]any{
		"status":        models.StatusFailed,
		"delivery_lock": models.LockFailed,
		"delivery_data": response,
	})
}

func (s *GormTransactionStore) MarkDeliveryUnknown(ctx context.Context, id uuid.UUID, reason string) error {
	res := s.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND delivery_lock = ?", id, models.LockLocked).
		Update("delivery_error", reason)
	if res.Error != nil {
		return fmt.Errorf("mark delivery unknown: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrLockLost
	}
	return nil
}

func (s *GormTransactionStore) releaseLock(ctx context.Context, id uuid.UUID, values map[string]any) error {
	res := s.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND delivery_lock = ?", id, models.LockLocked).
		Updates(values)
	if res.Error != nil {
		return fmt.Errorf("record delivery outcome: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrLockLost
	}
	return nil
}

// ReleaseDeliveryLock lets a held or cooling-down delivery be attempted again.
// It is the only way out of an unknown delivery outcome.
func (s *GormTransactionStore) ReleaseDeliveryLock(ctx context.Context, txRef string) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("tx_ref = ? AND status = ? AND delivery_lock IN ?",
			txRef, models.StatusPaid, []models.DeliveryLock{models.LockLocked, models.LockFailed}).
		Updates(map[string]any{
			"delivery_lock":     models.LockUnlocked,
			"delivery_retry_at": nil,
			"delivery_error":    "",
		})
	if res.Error != nil {
		return false, fmt.Errorf("release delivery lock: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// OverrideStatus force-sets a status from the admin panel. Delivered and failed
// overrides also resolve the lock so no automated path touches the transaction
// again; the previous delivery payload is kept under "previous".
func (s *GormTransactionStore) OverrideStatus(ctx context.Context, txRef string, status models.TransactionStatus, now time.Time) (*models.Transaction, error) {
	if !status.Valid() {
		return nil, newServiceError(ErrorValidation, fmt.Errorf("unknown status %q", status))
	}

	var updated models.Transaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txn models.Transaction
		if err := tx.Where("tx_ref = ?", txRef).First(&txn).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTransactionNotFound
			}
			return err
		}

		note := map[string]any{
			"method":    "Manual Admin Override",
			"status":    status,
			"updatedAt": now.UTC().Format(time.RFC3339),
		}
		if len(txn.DeliveryData) > 0 {
			note["previous"] = json.RawMessage(txn.DeliveryData)
		}
		data, err := json.Marshal(note)
		if err != nil {
			return err
		}

		values := map[string]any{
			"status":        status,
			"delivery_data": datatypes.JSON(data),
		}
		if status == models.StatusDelivered || status == models.StatusFailed {
			values["delivery_lock"] = models.LockResolved
			values["delivery_retry_at"] = nil
		}

		if err := tx.Model(&txn).Updates(values).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", txn.ID).First(&updated).Error
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// List returns a page of transactions, newest first, and the total match count.
func (s *GormTransactionStore) List(ctx context.Context, filter TransactionFilter) ([]models.Transaction, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Transaction{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Phone != "" {
		query = query.Where("phone = ?", filter.Phone)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var txns []models.Transaction
	if err := query.
		Order("created_at DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&txns).Error; err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}

// ListPending returns pending transactions created between the two instants,
// oldest first.
func (s *GormTransactionStore) ListPending(ctx context.Context, createdAfter, createdBefore time.Time, limit int) ([]models.Transaction, error) {
	var txns []models.Transaction
	err := s.db.WithContext(ctx).
		Where("status = ? AND created_at >= ? AND created_at <= ?", models.StatusPending, createdAfter, createdBefore).
		Order("created_at ASC").
		Limit(limit).
		Find(&txns).Error
	return txns, err
}
