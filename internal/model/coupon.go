package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DiscountType describes how a coupon's value is interpreted.
type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

func (d DiscountType) IsValid() bool {
	return d == DiscountTypePercentage || d == DiscountTypeFixed
}

// CouponScope tells whether an applied coupon came from the platform or a seller.
type CouponScope string

const (
	CouponScopeGlobal CouponScope = "global"
	CouponScopeSeller CouponScope = "seller"
)

// Coupon is a platform-wide percentage discount.
type Coupon struct {
	ID                 uuid.UUID       `json:"id" db:"id"`
	Code               string          `json:"code" db:"code"`
	DiscountPercent    decimal.Decimal `json:"discountPercent" db:"discount_percent"`
	ExpiresAt          *time.Time      `json:"expiresAt,omitempty" db:"expires_at"`
	UsageLimit         *int            `json:"usageLimit,omitempty" db:"usage_limit"`
	TimesUsed          int             `json:"timesUsed" db:"times_used"`
	TotalDiscountGiven decimal.Decimal `json:"totalDiscountGiven" db:"total_discount_given"`
	Active             bool            `json:"active" db:"active"`
	CreatedAt          time.Time       `json:"createdAt" db:"created_at"`
}

// SellerCoupon is a discount restricted to one seller's cart lines and,
// when ProductIDs is non-empty, to the listed products.
type SellerCoupon struct {
	ID                 uuid.UUID       `json:"id" db:"id"`
	SellerID           uuid.UUID       `json:"sellerId" db:"seller_id"`
	Code               string          `json:"code" db:"code"`
	DiscountType       DiscountType    `json:"discountType" db:"discount_type"`
	DiscountValue      decimal.Decimal `json:"discountValue" db:"discount_value"`
	ExpiresAt          *time.Time      `json:"expiresAt,omitempty" db:"expires_at"`
	UsageLimit         *int            `json:"usageLimit,omitempty" db:"usage_limit"`
	TimesUsed          int             `json:"timesUsed" db:"times_used"`
	TotalDiscountGiven decimal.Decimal `json:"totalDiscountGiven" db:"total_discount_given"`
	Active             bool            `json:"active" db:"active"`
	ProductIDs         []uuid.UUID     `json:"productIds,omitempty" db:"-"`
	CreatedAt          time.Time       `json:"createdAt" db:"created_at"`
}

// CartLine is the priced view of a cart line used for discount computation.
type CartLine struct {
	ProductID uuid.UUID
	SellerID  *uuid.UUID
	UnitPrice decimal.Decimal
	Quantity  int
}

// Subtotal returns unit price times quantity.
func (l CartLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// AppliedCoupon is the outcome of resolving a code against a cart.
type AppliedCoupon struct {
	CouponID           uuid.UUID       `json:"couponId"`
	Code               string          `json:"code"`
	Scope              CouponScope     `json:"scope"`
	SellerID           *uuid.UUID      `json:"sellerId,omitempty"`
	DiscountType       DiscountType    `json:"discountType"`
	DiscountValue      decimal.Decimal `json:"discountValue"`
	ApplicableSubtotal decimal.Decimal `json:"applicableSubtotal"`
	DiscountAmount     decimal.Decimal `json:"discountAmount"`
}

// CouponResolveRequest asks for a preview of a coupon against a cart.
type CouponResolveRequest struct {
	Code  string         `json:"code" validate:"required,max=64"`
	Items []CheckoutItem `json:"items" validate:"required,min=1,dive"`
}

// CouponResolveResponse mirrors the checkout form: coupon errors are
// reported as a field message, not as a failed request.
type CouponResolveResponse struct {
	Valid   bool             `json:"valid"`
	Field   string           `json:"field,omitempty"`
	Message string           `json:"message,omitempty"`
	Coupon  *AppliedCoupon   `json:"coupon,omitempty"`
	Total   *decimal.Decimal `json:"total,omitempty"`
}

// CreateCouponRequest creates a global coupon (admin) or a seller coupon (seller).
type CreateCouponRequest struct {
	Code          string          `json:"code" validate:"required,min=3,max=64,alphanum"`
	DiscountType  DiscountType    `json:"discountType" validate:"required,oneof=percentage fixed"`
	DiscountValue decimal.Decimal `json:"discountValue"`
	ExpiresAt     *time.Time      `json:"expiresAt,omitempty"`
	UsageLimit    *int            `json:"usageLimit,omitempty" validate:"omitempty,gt=0"`
	ProductIDs    []uuid.UUID     `json:"productIds,omitempty"`
}

// SetCouponActiveRequest toggles a coupon.
type SetCouponActiveRequest struct {
	Active bool `json:"active"`
}
