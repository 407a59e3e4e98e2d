package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"keyvault-glow/internal/coupon"
	"keyvault-glow/internal/model"
	"keyvault-glow/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// couponService implements CouponService.
type couponService struct {
	couponRepo  repository.CouponRepository
	productRepo repository.ProductRepository
	resolver    *coupon.Resolver
	now         func() time.Time
	logger      zerolog.Logger
}

// NewCouponService creates a new coupon service.
func NewCouponService(
	couponRepo repository.CouponRepository,
	productRepo repository.ProductRepository,
	resolver *coupon.Resolver,
	logger zerolog.Logger,
) CouponService {
	return &couponService{
		couponRepo:  couponRepo,
		productRepo: productRepo,
		resolver:    resolver,
		now:         utcNow,
		logger:      logger.With().Str("service", "coupon").Logger(),
	}
}

// Resolve previews a coupon. Coupon problems are reported in the response
// as a field message rather than as an error.
func (s *couponService) Resolve(ctx context.Context, actor model.Actor, req *model.CouponResolveRequest) (*model.CouponResolveResponse, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	cart, err := priceCart(ctx, s.productRepo, s.logger, req.Items)
	if err != nil {
		return nil, err
	}

	applied, err := s.resolver.Resolve(ctx, req.Code, cart.lines)
	if err != nil {
		fieldErr, ok := model.AsDomainError(couponFieldError(err))
		if !ok || fieldErr.Field != coupon.FieldName {
			return nil, err
		}
		return &model.CouponResolveResponse{Valid: false, Field: fieldErr.Field, Message: fieldErr.Message}, nil
	}

	total := coupon.Subtotal(cart.lines).Sub(applied.DiscountAmount)
	return &model.CouponResolveResponse{Valid: true, Coupon: applied, Total: &total}, nil
}

// CreateGlobal creates a platform-wide percentage coupon.
func (s *couponService) CreateGlobal(ctx context.Context, actor model.Actor, req *model.CreateCouponRequest) (*model.Coupon, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		return nil, model.ErrForbidden
	}
	if err := s.validateCoupon(req); err != nil {
		return nil, err
	}
	if req.DiscountType != model.DiscountTypePercentage {
		return nil, model.NewFieldError("discountType", "global coupons must be percentage discounts")
	}
	if len(req.ProductIDs) > 0 {
		return nil, model.NewFieldError("productIds", "global coupons cannot be scoped to products")
	}

	c := &model.Coupon{
		ID:                 uuid.New(),
		Code:               strings.ToUpper(strings.TrimSpace(req.Code)),
		DiscountPercent:    req.DiscountValue,
		ExpiresAt:          req.ExpiresAt,
		UsageLimit:         req.UsageLimit,
		TotalDiscountGiven: decimal.Zero,
		Active:             true,
		CreatedAt:          s.now(),
	}
	if err := s.couponRepo.CreateGlobal(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// CreateSeller creates a coupon limited to the seller's own products.
func (s *couponService) CreateSeller(ctx context.Context, actor model.Actor, req *model.CreateCouponRequest) (*model.SellerCoupon, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !actor.IsSeller() {
		return nil, model.ErrForbidden
	}
	if err := s.validateCoupon(req); err != nil {
		return nil, err
	}
	productIDs, err := s.ownProducts(ctx, actor.UserID, req.ProductIDs)
	if err != nil {
		return nil, err
	}

	c := &model.SellerCoupon{
		ID:                 uuid.New(),
		SellerID:           actor.UserID,
		Code:               strings.ToUpper(strings.TrimSpace(req.Code)),
		DiscountType:       req.DiscountType,
		DiscountValue:      req.DiscountValue,
		ExpiresAt:          req.ExpiresAt,
		UsageLimit:         req.UsageLimit,
		TotalDiscountGiven: decimal.Zero,
		Active:             true,
		ProductIDs:         productIDs,
		CreatedAt:          s.now(),
	}
	err = inTx(ctx, s.couponRepo, s.logger, func(tx pgx.Tx) error {
		return s.couponRepo.CreateSeller(ctx, tx, c)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *couponService) validateCoupon(req *model.CreateCouponRequest) error {
	if req == nil {
		return model.NewDomainError(model.ErrCodeValidation, "coupon request is required")
	}
	if err := validateStruct(req); err != nil {
		return err
	}
	if !req.DiscountValue.IsPositive() {
		return model.NewFieldError("discountValue", "discount value must be greater than zero")
	}
	if req.DiscountType == model.DiscountTypePercentage && req.DiscountValue.GreaterThan(hundred) {
		return model.NewFieldError("discountValue", "percentage discount cannot exceed 100")
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(s.now()) {
		return model.NewFieldError("expiresAt", "expiry must be in the future")
	}
	return nil
}

// ownProducts deduplicates ids and checks each one is the seller's product.
func (s *couponService) ownProducts(ctx context.Context, sellerID uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	seen := make(map[uuid.UUID]bool, len(ids))
	unique := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}

	products, err := s.productRepo.GetByIDs(ctx, unique)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	owned := 0
	for _, p := range products {
		if p.SellerID != nil && *p.SellerID == sellerID {
			owned++
		}
	}
	if owned != len(unique) {
		return nil, model.NewFieldError("productIds", "coupons can only be scoped to your own active products")
	}
	return unique, nil
}

// SetActive toggles a coupon. Admins manage every coupon, sellers only their own.
func (s *couponService) SetActive(ctx context.Context, actor model.Actor, id uuid.UUID, active bool) error {
	if err := requireActor(actor); err != nil {
		return err
	}

	if actor.IsAdmin() {
		global, err := s.couponRepo.GetGlobal(ctx, id)
		if err != nil {
			return err
		}
		if global != nil {
			return s.couponRepo.SetActive(ctx, model.CouponScopeGlobal, id, active)
		}
	}

	sellerCoupon, err := s.couponRepo.GetSeller(ctx, id)
	if err != nil {
		return err
	}
	if sellerCoupon == nil {
		return model.NewDomainError(model.ErrCodeNotFound, "Coupon not found")
	}
	if !actor.IsAdmin() && !(actor.IsSeller() && sellerCoupon.SellerID == actor.UserID) {
		return model.ErrForbidden
	}
	if err := s.couponRepo.SetActive(ctx, model.CouponScopeSeller, id, active); err != nil {
		return err
	}

	s.logger.Info().
		Str("coupon_id", id.String()).
		Bool("active", active).
		Str("actor_id", actor.UserID.String()).
		Msg("coupon status changed")
	return nil
}
