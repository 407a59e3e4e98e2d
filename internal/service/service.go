package service

import (
	"context"
	"fmt"
	"time"

	"keyvault-glow/internal/events"
	"keyvault-glow/internal/model"
	"keyvault-glow/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// OrderService defines the order lifecycle operations.
type OrderService interface {
	// CreateOrder prices the cart, applies the coupon, charges the gateway
	// and persists the order with its coupon usage in one transaction.
	CreateOrder(ctx context.Context, actor model.Actor, req *model.CheckoutRequest) (*model.Order, error)

	// GetOrder returns an order visible to the actor.
	GetOrder(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Order, error)

	// CheckPaymentStatus runs one status poll for an order owned by the actor.
	CheckPaymentStatus(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.PaymentStatusResponse, error)

	// RefreshPaymentStatus asks the gateway for the order's status and applies it.
	RefreshPaymentStatus(ctx context.Context, id uuid.UUID) (*model.PaymentStatusResponse, error)

	// ApplyPaymentStatus is the single entry point for gateway-reported
	// status changes, whatever their source.
	ApplyPaymentStatus(ctx context.Context, paymentID string, status model.OrderStatus, source string) (*model.Order, error)

	// MarkDelivered records fulfilment and settles the sellers' pending sale.
	MarkDelivered(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Order, error)

	// ReconcilePending re-checks stale pending orders against the gateway.
	ReconcilePending(ctx context.Context) (int, error)
}

// RefundService defines the refund workflow operations.
type RefundService interface {
	Submit(ctx context.Context, actor model.Actor, in model.SubmitRefundInput) (*model.RefundView, error)
	SellerRespond(ctx context.Context, actor model.Actor, id uuid.UUID, req model.SellerResponseRequest) (*model.RefundView, error)
	Decide(ctx context.Context, actor model.Actor, id uuid.UUID, req model.RefundDecisionRequest) (*model.RefundView, error)
	Get(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.RefundView, error)
	List(ctx context.Context, actor model.Actor, filter model.RefundFilter) ([]model.RefundView, error)
	AddMessage(ctx context.Context, actor model.Actor, id uuid.UUID, req model.RefundMessageRequest) (*model.RefundMessage, error)
	ListMessages(ctx context.Context, actor model.Actor, id uuid.UUID) ([]model.RefundMessage, error)

	// EscalateOverdue flags pending requests the seller left unanswered past
	// the response window.
	EscalateOverdue(ctx context.Context) (int, error)
}

// CouponService defines coupon preview and administration.
type CouponService interface {
	// Resolve previews a code against a cart without recording usage.
	Resolve(ctx context.Context, actor model.Actor, req *model.CouponResolveRequest) (*model.CouponResolveResponse, error)
	CreateGlobal(ctx context.Context, actor model.Actor, req *model.CreateCouponRequest) (*model.Coupon, error)
	CreateSeller(ctx context.Context, actor model.Actor, req *model.CreateCouponRequest) (*model.SellerCoupon, error)
	SetActive(ctx context.Context, actor model.Actor, id uuid.UUID, active bool) error
}

// BalanceService defines seller balance operations.
type BalanceService interface {
	Balance(ctx context.Context, actor model.Actor, sellerID uuid.UUID) (*model.SellerBalance, error)
	Entries(ctx context.Context, actor model.Actor, sellerID uuid.UUID, limit, offset int) ([]model.LedgerEntry, error)
	RequestWithdrawal(ctx context.Context, actor model.Actor, sellerID uuid.UUID, req *model.WithdrawalRequest) (*model.SellerBalance, error)
}

// inTx runs fn in a transaction, rolling back when fn or the commit fails.
func inTx(ctx context.Context, db repository.TxBeginner, logger zerolog.Logger, fn func(tx pgx.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("failed to begin transaction")
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				logger.Error().Err(rbErr).Msg("failed to rollback transaction")
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to commit transaction")
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func requireActor(actor model.Actor) error {
	if actor.UserID == uuid.Nil || !actor.Role.IsValid() {
		return model.ErrUnauthenticated
	}
	return nil
}

// publish delivers an event after the state change is committed. Delivery
// failures are logged and never undo the change.
func publish(ctx context.Context, publisher events.Publisher, logger zerolog.Logger, event events.Event) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, event); err != nil {
		logger.Warn().Err(err).Str("event_type", string(event.Type)).Str("key", event.Key).Msg("failed to publish event")
	}
}

// orderChannels addresses the customer and every seller on the order.
func orderChannels(order *model.Order) []string {
	channels := []string{events.UserChannel(order.CustomerID)}
	seen := map[uuid.UUID]bool{order.CustomerID: true}
	add := func(id *uuid.UUID) {
		if id == nil || seen[*id] {
			return
		}
		seen[*id] = true
		channels = append(channels, events.UserChannel(*id))
	}
	add(order.SellerID)
	for _, item := range order.Items {
		add(item.SellerID)
	}
	return channels
}

func utcNow() time.Time {
	return time.Now().UTC()
}
