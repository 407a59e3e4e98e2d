package coupon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"keyvault-glow/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// FieldName is the request field coupon errors are reported against.
const FieldName = "coupon_code"

var hundred = decimal.NewFromInt(100)

// Store looks coupons up by code. Lookups are case-insensitive, return only
// active coupons and return nil, nil when nothing matches.
type Store interface {
	FindSellerCouponByCode(ctx context.Context, code string) (*model.SellerCoupon, error)
	FindGlobalCouponByCode(ctx context.Context, code string) (*model.Coupon, error)
}

// Resolver turns a code and a priced cart into an AppliedCoupon. It never
// writes: usage is recorded by the order transaction.
type Resolver struct {
	store  Store
	now    func() time.Time
	logger zerolog.Logger
}

// NewResolver creates a new coupon resolver.
func NewResolver(store Store, logger zerolog.Logger) *Resolver {
	return &Resolver{
		store:  store,
		now:    time.Now,
		logger: logger.With().Str("component", "coupon_resolver").Logger(),
	}
}

// WithClock replaces the resolver's time source.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// Resolve looks up a seller-scoped coupon first and falls back to a global one.
func (r *Resolver) Resolve(ctx context.Context, code string, lines []model.CartLine) (*model.AppliedCoupon, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, model.ErrCouponNotFound
	}

	sellerCoupon, err := r.store.FindSellerCouponByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to look up seller coupon: %w", err)
	}
	if sellerCoupon != nil {
		return r.applySellerCoupon(sellerCoupon, lines)
	}

	global, err := r.store.FindGlobalCouponByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to look up coupon: %w", err)
	}
	if global == nil {
		r.logger.Debug().Str("coupon_code", code).Msg("coupon not found")
		return nil, model.ErrCouponNotFound
	}
	return r.applyGlobalCoupon(global, lines)
}

func (r *Resolver) applySellerCoupon(c *model.SellerCoupon, lines []model.CartLine) (*model.AppliedCoupon, error) {
	if err := r.checkUsable(c.ExpiresAt, c.UsageLimit, c.TimesUsed); err != nil {
		return nil, err
	}

	scope := make(map[uuid.UUID]struct{}, len(c.ProductIDs))
	for _, id := range c.ProductIDs {
		scope[id] = struct{}{}
	}

	subtotal := decimal.Zero
	matched := 0
	for _, line := range lines {
		if line.SellerID == nil || *line.SellerID != c.SellerID {
			continue
		}
		if len(scope) > 0 {
			if _, ok := scope[line.ProductID]; !ok {
				continue
			}
		}
		subtotal = subtotal.Add(line.Subtotal())
		matched++
	}
	if matched == 0 {
		return nil, model.ErrCouponNotApplicable
	}

	sellerID := c.SellerID
	return &model.AppliedCoupon{
		CouponID:           c.ID,
		Code:               c.Code,
		Scope:              model.CouponScopeSeller,
		SellerID:           &sellerID,
		DiscountType:       c.DiscountType,
		DiscountValue:      c.DiscountValue,
		ApplicableSubtotal: subtotal,
		DiscountAmount:     Discount(c.DiscountType, c.DiscountValue, subtotal),
	}, nil
}

func (r *Resolver) applyGlobalCoupon(c *model.Coupon, lines []model.CartLine) (*model.AppliedCoupon, error) {
	if err := r.checkUsable(c.ExpiresAt, c.UsageLimit, c.TimesUsed); err != nil {
		return nil, err
	}

	subtotal := Subtotal(lines)
	return &model.AppliedCoupon{
		CouponID:           c.ID,
		Code:               c.Code,
		Scope:              model.CouponScopeGlobal,
		DiscountType:       model.DiscountTypePercentage,
		DiscountValue:      c.DiscountPercent,
		ApplicableSubtotal: subtotal,
		DiscountAmount:     Discount(model.DiscountTypePercentage, c.DiscountPercent, subtotal),
	}, nil
}

func (r *Resolver) checkUsable(expiresAt *time.Time, usageLimit *int, timesUsed int) error {
	if expiresAt != nil && !r.now().Before(*expiresAt) {
		return model.ErrCouponExpired
	}
	if usageLimit != nil && timesUsed >= *usageLimit {
		return model.ErrCouponLimitReached
	}
	return nil
}

// Discount computes the discount a coupon gives on subtotal. The result is
// rounded to cents and never exceeds subtotal.
func Discount(kind model.DiscountType, value, subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.LessThanOrEqual(decimal.Zero) || value.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}

	var discount decimal.Decimal
	switch kind {
	case model.DiscountTypePercentage:
		discount = subtotal.Mul(value).Div(hundred).Round(2)
	case model.DiscountTypeFixed:
		discount = value
	default:
		return decimal.Zero
	}
	return decimal.Min(discount, subtotal)
}

// Subtotal sums every line.
func Subtotal(lines []model.CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Subtotal())
	}
	return total
}
