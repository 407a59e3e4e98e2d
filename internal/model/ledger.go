package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerKind classifies a seller balance movement.
type LedgerKind string

const (
	LedgerKindSale       LedgerKind = "sale"
	LedgerKindSettlement LedgerKind = "settlement"
	LedgerKindRefund     LedgerKind = "refund"
	LedgerKindWithdrawal LedgerKind = "withdrawal"
)

// BalanceBucket names the seller balance column a ledger entry moves.
type BalanceBucket string

const (
	BucketPending   BalanceBucket = "pending"
	BucketAvailable BalanceBucket = "available"
)

// LedgerEntry is an immutable signed delta on one balance bucket.
type LedgerEntry struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	SellerID  uuid.UUID       `json:"sellerId" db:"seller_id"`
	OrderID   *uuid.UUID      `json:"orderId,omitempty" db:"order_id"`
	RefundID  *uuid.UUID      `json:"refundId,omitempty" db:"refund_id"`
	Kind      LedgerKind      `json:"kind" db:"kind"`
	Bucket    BalanceBucket   `json:"bucket" db:"bucket"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	CreatedAt time.Time       `json:"createdAt" db:"created_at"`
}

// SellerBalance is the aggregate of a seller's ledger.
type SellerBalance struct {
	SellerID         uuid.UUID       `json:"sellerId" db:"seller_id"`
	AvailableBalance decimal.Decimal `json:"availableBalance" db:"available_balance"`
	PendingBalance   decimal.Decimal `json:"pendingBalance" db:"pending_balance"`
	UpdatedAt        time.Time       `json:"updatedAt" db:"updated_at"`
}

// WithdrawalRequest asks to move available balance out to a PIX key.
type WithdrawalRequest struct {
	Amount     decimal.Decimal `json:"amount"`
	PixKey     string          `json:"pixKey" validate:"required,max=140"`
	PixKeyType PixKeyType      `json:"pixKeyType" validate:"required"`
}
