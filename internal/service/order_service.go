package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"keyvault-glow/internal/coupon"
	"keyvault-glow/internal/events"
	"keyvault-glow/internal/gateway"
	"keyvault-glow/internal/ledger"
	"keyvault-glow/internal/lifecycle"
	"keyvault-glow/internal/metrics"
	"keyvault-glow/internal/model"
	"keyvault-glow/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

const (
	defaultReconcileAfter = 10 * time.Minute
	reconcileBatchSize    = 100
	orphanCancelTimeout   = 10 * time.Second
)

// Payment status sources, used for metrics and logs.
const (
	SourcePoll      = "poll"
	SourceWebhook   = "webhook"
	SourceReconcile = "reconcile"
)

// OrderServiceParams wires the order service.
type OrderServiceParams struct {
	Orders         repository.OrderRepository
	Products       repository.ProductRepository
	Coupons        repository.CouponRepository
	Ledger         repository.LedgerRepository
	Resolver       *coupon.Resolver
	Gateway        gateway.Gateway
	Publisher      events.Publisher
	Metrics        *metrics.Domain
	ReconcileAfter time.Duration
	Logger         zerolog.Logger
}

// orderService implements OrderService.
type orderService struct {
	orderRepo      repository.OrderRepository
	productRepo    repository.ProductRepository
	couponRepo     repository.CouponRepository
	ledgerRepo     repository.LedgerRepository
	resolver       *coupon.Resolver
	gateway        gateway.Gateway
	publisher      events.Publisher
	metrics        *metrics.Domain
	reconcileAfter time.Duration
	now            func() time.Time
	logger         zerolog.Logger
}

// NewOrderService creates a new order service.
func NewOrderService(p OrderServiceParams) OrderService {
	reconcileAfter := p.ReconcileAfter
	if reconcileAfter <= 0 {
		reconcileAfter = defaultReconcileAfter
	}
	publisher := p.Publisher
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &orderService{
		orderRepo:      p.Orders,
		productRepo:    p.Products,
		couponRepo:     p.Coupons,
		ledgerRepo:     p.Ledger,
		resolver:       p.Resolver,
		gateway:        p.Gateway,
		publisher:      publisher,
		metrics:        p.Metrics,
		reconcileAfter: reconcileAfter,
		now:            utcNow,
		logger:         p.Logger.With().Str("service", "order").Logger(),
	}
}

// CreateOrder creates a new order and charges it through the gateway.
func (s *orderService) CreateOrder(ctx context.Context, actor model.Actor, req *model.CheckoutRequest) (*model.Order, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, model.NewDomainError(model.ErrCodeValidation, "checkout request is required")
	}
	if err := s.validateCheckout(req); err != nil {
		return nil, err
	}

	cart, err := priceCart(ctx, s.productRepo, s.logger, req.Items)
	if err != nil {
		return nil, err
	}

	var applied *model.AppliedCoupon
	if req.CouponCode != nil && strings.TrimSpace(*req.CouponCode) != "" {
		applied, err = s.resolver.Resolve(ctx, *req.CouponCode, cart.lines)
		if err != nil {
			s.logger.Warn().Str("coupon_code", *req.CouponCode).Err(err).Msg("coupon rejected at checkout")
			return nil, couponFieldError(err)
		}
	}

	subtotal := coupon.Subtotal(cart.lines)
	discount := decimal.Zero
	if applied != nil {
		discount = decimal.Min(applied.DiscountAmount, subtotal)
	}

	now := s.now()
	order := &model.Order{
		ID:                uuid.New(),
		CustomerID:        actor.UserID,
		CustomerEmail:     actor.Email,
		CustomerName:      actor.Name,
		ProductID:         cart.items[0].ProductID,
		ProductName:       cart.displayName(),
		ProductPrice:      subtotal,
		DiscountAmount:    discount,
		TransactionAmount: subtotal.Sub(discount),
		PaymentMethod:     req.PaymentMethod,
		PaymentStatus:     model.OrderStatusPending,
		SellerID:          cart.soleSeller(),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if applied != nil {
		code := applied.Code
		order.CouponCode = &code
		order.CouponSellerID = applied.SellerID
	}
	for i := range cart.items {
		cart.items[i].OrderID = order.ID
	}
	order.Items = cart.items

	result, err := s.gateway.CreatePayment(ctx, gateway.PaymentRequest{
		OrderID: order.ID,
		Amount:  order.TransactionAmount,
		Method:  order.PaymentMethod,
		Customer: gateway.CustomerInfo{
			ID:    actor.UserID,
			Email: actor.Email,
			Name:  actor.Name,
			CPF:   digitsOnly(req.CPF),
		},
		Card:        req.Card,
		Description: order.ProductName,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("order_id", order.ID.String()).Msg("payment creation failed")
		s.metrics.OrderCreated(string(order.PaymentMethod), "failed")
		return nil, err
	}

	switch result.Status {
	case model.OrderStatusPending, model.OrderStatusApproved:
		order.PaymentStatus = result.Status
	default:
		s.metrics.OrderCreated(string(order.PaymentMethod), string(result.Status))
		return nil, model.NewDomainError(model.ErrCodeGatewayRejected, "Payment was not authorised")
	}

	paymentID := result.PaymentID
	order.GatewayPaymentID = &paymentID
	switch order.PaymentMethod {
	case model.PaymentMethodPix:
		order.PixQRCode = result.PixQRCode
		order.PixQRCodeBase64 = result.PixQRCodeBase64
	case model.PaymentMethodTicket:
		order.TicketURL = result.TicketURL
	}

	err = inTx(ctx, s.orderRepo, s.logger, func(tx pgx.Tx) error {
		if err := s.orderRepo.Create(ctx, tx, order); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}
		if err := s.orderRepo.CreateItems(ctx, tx, order.Items); err != nil {
			return fmt.Errorf("failed to create order items: %w", err)
		}
		if applied != nil {
			applied.DiscountAmount = discount
			if err := s.couponRepo.RecordUsage(ctx, tx, applied); err != nil {
				return fmt.Errorf("failed to record coupon usage: %w", err)
			}
		}
		if order.PaymentStatus == model.OrderStatusApproved {
			return s.ledgerRepo.Append(ctx, tx, saleEntries(order, now))
		}
		return nil
	})
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("order_id", order.ID.String()).
			Str("payment_id", paymentID).
			Msg("order not persisted after payment creation")
		s.voidOrphanedPayment(ctx, order.ID, paymentID)
		return nil, couponFieldError(err)
	}

	s.metrics.OrderCreated(string(order.PaymentMethod), string(order.PaymentStatus))
	if applied != nil {
		s.metrics.CouponRedeemed(string(applied.Scope))
	}

	s.logger.Info().
		Str("order_id", order.ID.String()).
		Str("payment_method", string(order.PaymentMethod)).
		Str("status", string(order.PaymentStatus)).
		Int("item_count", len(order.Items)).
		Str("amount", order.TransactionAmount.StringFixed(2)).
		Msg("order created successfully")

	publish(ctx, s.publisher, s.logger, events.New(events.OrderCreated, order.ID.String(), statusPayload(order), orderChannels(order)...))
	return order, nil
}

// voidOrphanedPayment cancels a charge whose order was never stored. It runs
// detached from the request so a client disconnect cannot skip it.
func (s *orderService) voidOrphanedPayment(ctx context.Context, orderID uuid.UUID, paymentID string) {
	cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), orphanCancelTimeout)
	defer cancel()

	log := s.logger.With().Str("order_id", orderID.String()).Str("payment_id", paymentID).Logger()
	if err := s.gateway.CancelPayment(cancelCtx, paymentID); err != nil {
		log.Error().Err(err).Msg("failed to cancel orphaned payment, manual follow-up required")
		s.metrics.OrphanedPayment("cancel_failed")
		return
	}
	log.Warn().Msg("orphaned payment cancelled")
	s.metrics.OrphanedPayment("cancelled")
}

func (s *orderService) validateCheckout(req *model.CheckoutRequest) error {
	if len(req.Items) == 0 {
		return model.NewFieldError("items", "cart is empty")
	}
	if err := validateStruct(req); err != nil {
		return err
	}
	if req.PaymentMethod == model.PaymentMethodCreditCard {
		if err := validateCard(req.Card, req.CPF, s.now()); err != nil {
			return err
		}
	}
	if req.CPF != "" && !validCPF(req.CPF) {
		return model.NewFieldError("cpf", "CPF is invalid")
	}
	return nil
}

// GetOrder retrieves an order visible to the actor.
func (s *orderService) GetOrder(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Order, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	order, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canViewOrder(actor, order) {
		return nil, model.ErrForbidden
	}
	return order, nil
}

func canViewOrder(actor model.Actor, order *model.Order) bool {
	switch {
	case actor.IsAdmin():
		return true
	case order.CustomerID == actor.UserID:
		return true
	case actor.IsSeller():
		return order.InvolvesSeller(actor.UserID)
	default:
		return false
	}
}

func (s *orderService) load(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if order == nil {
		return nil, model.ErrOrderNotFound
	}
	return order, nil
}

// CheckPaymentStatus runs one poll iteration for the order's owner or an admin.
func (s *orderService) CheckPaymentStatus(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.PaymentStatusResponse, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	order, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && order.CustomerID != actor.UserID {
		return nil, model.ErrForbidden
	}
	return s.refresh(ctx, order, SourcePoll)
}

// RefreshPaymentStatus polls the gateway for an order without an actor check.
func (s *orderService) RefreshPaymentStatus(ctx context.Context, id uuid.UUID) (*model.PaymentStatusResponse, error) {
	order, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.refresh(ctx, order, SourcePoll)
}

// refresh is a pure read unless the gateway reports a different status.
func (s *orderService) refresh(ctx context.Context, order *model.Order, source string) (*model.PaymentStatusResponse, error) {
	if order.PaymentStatus != model.OrderStatusPending || order.GatewayPaymentID == nil {
		return paymentStatus(order), nil
	}

	status, err := s.gateway.CheckPaymentStatus(ctx, *order.GatewayPaymentID)
	if err != nil {
		s.logger.Warn().Err(err).Str("order_id", order.ID.String()).Msg("failed to check payment status")
		return nil, err
	}
	if status == order.PaymentStatus {
		return paymentStatus(order), nil
	}

	updated, err := s.ApplyPaymentStatus(ctx, *order.GatewayPaymentID, status, source)
	if err != nil {
		return nil, err
	}
	return paymentStatus(updated), nil
}

func paymentStatus(order *model.Order) *model.PaymentStatusResponse {
	return &model.PaymentStatusResponse{
		OrderID: order.ID,
		Status:  order.PaymentStatus,
		Settled: order.PaymentStatus.IsPaymentSettled(),
	}
}

// ApplyPaymentStatus moves the order identified by paymentID through the
// lifecycle table. Observations that no longer apply are ignored.
func (s *orderService) ApplyPaymentStatus(ctx context.Context, paymentID string, status model.OrderStatus, source string) (*model.Order, error) {
	event, ok := lifecycle.EventForGatewayStatus(status)
	if !ok {
		return nil, model.NewFieldError("status", fmt.Sprintf("unsupported gateway status %q", status))
	}

	order, err := s.orderRepo.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if order == nil {
		return nil, model.ErrOrderNotFound
	}

	log := s.logger.With().
		Str("order_id", order.ID.String()).
		Str("payment_id", paymentID).
		Str("source", source).
		Logger()

	next, err := lifecycle.NextOrderStatus(order.PaymentStatus, event)
	if err != nil {
		log.Warn().
			Str("current", string(order.PaymentStatus)).
			Str("reported", string(status)).
			Msg("ignoring stale payment status")
		s.metrics.PaymentTransition(source, "stale")
		return order, nil
	}
	if next == order.PaymentStatus {
		return order, nil
	}

	now := s.now()
	var moved bool
	err = inTx(ctx, s.orderRepo, log, func(tx pgx.Tx) error {
		var err error
		moved, err = s.orderRepo.UpdateStatus(ctx, tx, order.ID, order.PaymentStatus, next)
		if err != nil || !moved {
			return err
		}
		if next == model.OrderStatusApproved {
			return s.ledgerRepo.Append(ctx, tx, saleEntries(order, now))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !moved {
		log.Info().Msg("payment status already applied by another worker")
		return s.load(ctx, order.ID)
	}

	previous := order.PaymentStatus
	order.PaymentStatus = next
	order.UpdatedAt = now

	s.metrics.PaymentTransition(source, string(next))
	log.Info().Str("from", string(previous)).Str("to", string(next)).Msg("payment status updated")

	publish(ctx, s.publisher, s.logger, events.New(events.OrderStatusChanged, order.ID.String(), statusPayload(order), orderChannels(order)...))
	return order, nil
}

// saleEntries credits each seller's share of the paid amount as pending.
func saleEntries(order *model.Order, at time.Time) []model.LedgerEntry {
	shares := ledger.ForOrder(order)
	entries := make([]model.LedgerEntry, 0, len(shares))
	for _, share := range shares {
		orderID := order.ID
		entries = append(entries, model.LedgerEntry{
			ID:        uuid.New(),
			SellerID:  share.SellerID,
			OrderID:   &orderID,
			Kind:      model.LedgerKindSale,
			Bucket:    model.BucketPending,
			Amount:    share.Amount,
			CreatedAt: at,
		})
	}
	return entries
}

// MarkDelivered moves an approved order to delivered and releases the sale
// from pending to available balance.
func (s *orderService) MarkDelivered(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Order, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	order, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !(actor.IsSeller() && order.InvolvesSeller(actor.UserID)) {
		return nil, model.ErrForbidden
	}
	next, err := lifecycle.NextOrderStatus(order.PaymentStatus, lifecycle.EventDelivered)
	if err != nil {
		return nil, err
	}

	now := s.now()
	err = inTx(ctx, s.orderRepo, s.logger, func(tx pgx.Tx) error {
		moved, err := s.orderRepo.MarkDelivered(ctx, tx, order.ID, now)
		if err != nil {
			return err
		}
		if !moved {
			return model.ErrConcurrentUpdate
		}

		sales, err := s.ledgerRepo.SumByOrder(ctx, tx, order.ID, model.LedgerKindSale)
		if err != nil {
			return err
		}
		return s.ledgerRepo.Append(ctx, tx, settlementEntries(order.ID, sales, now))
	})
	if err != nil {
		return nil, err
	}

	order.PaymentStatus = next
	order.DeliveredAt = &now
	order.UpdatedAt = now

	s.logger.Info().Str("order_id", order.ID.String()).Str("actor_id", actor.UserID.String()).Msg("order delivered")
	publish(ctx, s.publisher, s.logger, events.New(events.OrderStatusChanged, order.ID.String(), statusPayload(order), orderChannels(order)...))
	return order, nil
}

func settlementEntries(orderID uuid.UUID, sales map[uuid.UUID]decimal.Decimal, at time.Time) []model.LedgerEntry {
	var entries []model.LedgerEntry
	for sellerID, amount := range sales {
		if !amount.IsPositive() {
			continue
		}
		oid := orderID
		entries = append(entries,
			model.LedgerEntry{
				ID: uuid.New(), SellerID: sellerID, OrderID: &oid,
				Kind: model.LedgerKindSettlement, Bucket: model.BucketPending, Amount: amount.Neg(), CreatedAt: at,
			},
			model.LedgerEntry{
				ID: uuid.New(), SellerID: sellerID, OrderID: &oid,
				Kind: model.LedgerKindSettlement, Bucket: model.BucketAvailable, Amount: amount, CreatedAt: at,
			},
		)
	}
	return entries
}

// ReconcilePending re-checks pending orders older than the reconcile age.
func (s *orderService) ReconcilePending(ctx context.Context) (int, error) {
	orders, err := s.orderRepo.ListPendingBefore(ctx, s.now().Add(-s.reconcileAfter), reconcileBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending orders: %w", err)
	}

	updated := 0
	var errs error
	for i := range orders {
		if ctx.Err() != nil {
			return updated, multierr.Append(errs, ctx.Err())
		}
		resp, err := s.refresh(ctx, &orders[i], SourceReconcile)
		if err != nil {
			if errors.Is(err, gateway.ErrUnknownPayment) {
				s.logger.Warn().Str("order_id", orders[i].ID.String()).Msg("gateway has no record of payment")
				continue
			}
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", orders[i].ID, err))
			continue
		}
		if resp.Status != model.OrderStatusPending {
			updated++
		}
	}
	return updated, errs
}

func statusPayload(order *model.Order) map[string]any {
	return map[string]any{
		"orderId":           order.ID,
		"status":            order.PaymentStatus,
		"paymentMethod":     order.PaymentMethod,
		"transactionAmount": order.TransactionAmount,
	}
}
