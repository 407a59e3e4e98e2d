package repository

import (
	"context"
	"time"

	"keyvault-glow/internal/coupon"
	"keyvault-glow/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Write methods take a pgx.Tx; a nil tx runs the statement on the pool.

// ProductRepository defines the interface for product data access operations.
type ProductRepository interface {
	// GetByIDs retrieves the active products among ids.
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Product, error)
}

// OrderRepository defines the interface for order data access operations.
type OrderRepository interface {
	TxBeginner

	// Create inserts a new order within the provided transaction.
	Create(ctx context.Context, tx pgx.Tx, order *model.Order) error

	// CreateItems inserts the order's line items within the provided transaction.
	CreateItems(ctx context.Context, tx pgx.Tx, items []model.OrderItem) error

	// GetByID retrieves an order by its ID along with its items.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error)

	// GetByPaymentID retrieves an order by the gateway payment id.
	GetByPaymentID(ctx context.Context, paymentID string) (*model.Order, error)

	// UpdateStatus moves an order from one status to another. It reports
	// false when the order was no longer in the expected status.
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to model.OrderStatus) (bool, error)

	// MarkDelivered moves an approved order to delivered and stamps delivered_at.
	MarkDelivered(ctx context.Context, tx pgx.Tx, id uuid.UUID, at time.Time) (bool, error)

	// ListPendingBefore returns pending orders created before the cutoff.
	ListPendingBefore(ctx context.Context, before time.Time, limit int) ([]model.Order, error)
}

// CouponRepository defines the interface for coupon data access operations.
type CouponRepository interface {
	coupon.Store
	TxBeginner

	CreateGlobal(ctx context.Context, c *model.Coupon) error
	CreateSeller(ctx context.Context, tx pgx.Tx, c *model.SellerCoupon) error
	GetGlobal(ctx context.Context, id uuid.UUID) (*model.Coupon, error)
	GetSeller(ctx context.Context, id uuid.UUID) (*model.SellerCoupon, error)
	SetActive(ctx context.Context, scope model.CouponScope, id uuid.UUID, active bool) error

	// RecordUsage counts one redemption of an applied coupon.
	RecordUsage(ctx context.Context, tx pgx.Tx, applied *model.AppliedCoupon) error
}

// RefundRepository defines the interface for refund data access operations.
type RefundRepository interface {
	TxBeginner

	Create(ctx context.Context, tx pgx.Tx, refund *model.RefundRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.RefundRequest, error)

	// GetOpenByOrder returns the non-terminal request for an order, if any.
	GetOpenByOrder(ctx context.Context, orderID uuid.UUID) (*model.RefundRequest, error)

	List(ctx context.Context, filter model.RefundFilter) ([]model.RefundRequest, error)

	// SetSellerResponse records the seller's one reply while the request is pending.
	SetSellerResponse(ctx context.Context, id uuid.UUID, response string, at time.Time) (bool, error)

	// UpdateDecision applies an admin decision if the request is still in status from.
	UpdateDecision(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to model.RefundStatus,
		notes *string, resolvedAt *time.Time, resolvedBy *uuid.UUID) (bool, error)

	// ListUnansweredBefore returns pending, unescalated requests without a
	// seller response created before the cutoff.
	ListUnansweredBefore(ctx context.Context, before time.Time, limit int) ([]model.RefundRequest, error)

	MarkEscalated(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)

	CreateMessage(ctx context.Context, msg *model.RefundMessage) error
	ListMessages(ctx context.Context, refundID uuid.UUID) ([]model.RefundMessage, error)
}

// LedgerRepository defines the interface for seller balance data access.
type LedgerRepository interface {
	TxBeginner

	// Append inserts entries and applies each delta to its seller's balance.
	Append(ctx context.Context, tx pgx.Tx, entries []model.LedgerEntry) error

	// SumByOrder returns the net amount per seller of an order's entries of kind.
	SumByOrder(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, kind model.LedgerKind) (map[uuid.UUID]decimal.Decimal, error)

	// Balance returns the seller balance; a seller without entries has zero balances.
	Balance(ctx context.Context, sellerID uuid.UUID) (*model.SellerBalance, error)

	// LockBalance reads the balance row FOR UPDATE inside tx.
	LockBalance(ctx context.Context, tx pgx.Tx, sellerID uuid.UUID) (*model.SellerBalance, error)

	Entries(ctx context.Context, sellerID uuid.UUID, limit, offset int) ([]model.LedgerEntry, error)
}
