package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// TransactionType separates digital (data bundle) orders from physical goods.
type TransactionType string

const (
	TransactionTypeData      TransactionType = "data"
	TransactionTypeEcommerce TransactionType = "ecommerce"
)

// TransactionStatus is monotonic over pending -> paid -> delivered, with failed
// only reachable from a delivery attempt.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusPaid      TransactionStatus = "paid"
	StatusDelivered TransactionStatus = "delivered"
	StatusFailed    TransactionStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s TransactionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusDelivered, StatusFailed:
		return true
	}
	return false
}

// DeliveryLock guards the delivery gateway call. Only a conditional update may
// move it from unlocked (or an expired failed) to locked.
type DeliveryLock string

const (
	LockUnlocked DeliveryLock = "unlocked"
	LockLocked   DeliveryLock = "locked"
	LockFailed   DeliveryLock = "failed"
	LockResolved DeliveryLock = "resolved"
)

// Transaction tracks one purchase from payment request to fulfilment.
type Transaction struct {
	BaseModel
	TxRef            string            `gorm:"column:tx_ref;uniqueIndex;not null" json:"tx_ref"`
	Type             TransactionType   `gorm:"type:varchar(16);index;not null" json:"type"`
	Status           TransactionStatus `gorm:"type:varchar(16);index;not null;default:pending" json:"status"`
	Amount           int64             `json:"amount"`
	Phone            string            `gorm:"index" json:"phone"`
	PlanID           *uuid.UUID        `gorm:"type:uuid" json:"plan_id"`
	ProductID        *uuid.UUID        `gorm:"type:uuid" json:"product_id"`
	SimProductID     *uuid.UUID        `gorm:"type:uuid" json:"sim_product_id"`
	CustomerName     string            `json:"customer_name"`
	DeliveryState    string            `json:"delivery_state"`
	IdempotencyKey   string            `json:"idempotency_key"`
	PaymentData      datatypes.JSON    `gorm:"type:jsonb" json:"payment_data"`
	DeliveryData     datatypes.JSON    `gorm:"type:jsonb" json:"delivery_data"`
	DeliveryLock     DeliveryLock      `gorm:"type:varchar(16);not null;default:unlocked" json:"delivery_lock"`
	DeliveryAttempts int               `gorm:"not null;default:0" json:"delivery_attempts"`
	DeliveryLockedAt *time.Time        `json:"delivery_locked_at"`
	DeliveryRetryAt  *time.Time        `json:"delivery_retry_at"`
	DeliveryError    string            `gorm:"type:text" json:"delivery_error"`

	// PaymentMismatchAt is set the first time an underpayment is seen.
	PaymentMismatchAt *time.Time `json:"payment_mismatch_at"`
}

// IsTerminal reports whether no further reconciliation work is possible.
func (t *Transaction) IsTerminal() bool {
	return t.Status == StatusDelivered
}
