package repository

import (
	"context"
	"errors"
	"fmt"

	"keyvault-glow/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

var errDuplicateCode = model.NewFieldError("code", "Coupon code already exists")

const (
	globalCouponColumns = `id, code, discount_percent, expires_at, usage_limit, times_used,
		total_discount_given, active, created_at`
	sellerCouponColumns = `id, seller_id, code, discount_type, discount_value, expires_at, usage_limit,
		times_used, total_discount_given, active, created_at`
)

// couponRepository implements the CouponRepository interface using PostgreSQL.
type couponRepository struct {
	base
}

// NewCouponRepository creates a new PostgreSQL-backed coupon repository.
func NewCouponRepository(pool *pgxpool.Pool, logger zerolog.Logger) CouponRepository {
	return &couponRepository{base: newBase(pool, logger, "coupon")}
}

// FindSellerCouponByCode looks up an active seller coupon, ignoring case.
func (r *couponRepository) FindSellerCouponByCode(ctx context.Context, code string) (*model.SellerCoupon, error) {
	query := `SELECT ` + sellerCouponColumns + ` FROM seller_coupons WHERE lower(code) = lower($1) AND active`
	return r.getSeller(ctx, query, code)
}

// GetSeller retrieves a seller coupon by id regardless of its active flag.
func (r *couponRepository) GetSeller(ctx context.Context, id uuid.UUID) (*model.SellerCoupon, error) {
	query := `SELECT ` + sellerCouponColumns + ` FROM seller_coupons WHERE id = $1`
	return r.getSeller(ctx, query, id)
}

func (r *couponRepository) getSeller(ctx context.Context, query string, arg any) (*model.SellerCoupon, error) {
	var c model.SellerCoupon
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&c.ID,
		&c.SellerID,
		&c.Code,
		&c.DiscountType,
		&c.DiscountValue,
		&c.ExpiresAt,
		&c.UsageLimit,
		&c.TimesUsed,
		&c.TotalDiscountGiven,
		&c.Active,
		&c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error().Err(err).Msg("failed to query seller coupon")
		return nil, fmt.Errorf("failed to query seller coupon: %w", err)
	}

	rows, err := r.pool.Query(ctx, `SELECT product_id FROM seller_coupon_products WHERE coupon_id = $1`, c.ID)
	if err != nil {
		r.logger.Error().Err(err).Str("coupon_id", c.ID.String()).Msg("failed to query coupon products")
		return nil, fmt.Errorf("failed to query coupon products: %w", err)
	}
	productIDs, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("failed to scan coupon products: %w", err)
	}
	c.ProductIDs = productIDs

	return &c, nil
}

// FindGlobalCouponByCode looks up an active global coupon, ignoring case.
func (r *couponRepository) FindGlobalCouponByCode(ctx context.Context, code string) (*model.Coupon, error) {
	query := `SELECT ` + globalCouponColumns + ` FROM coupons WHERE lower(code) = lower($1) AND active`
	return r.getGlobal(ctx, query, code)
}

// GetGlobal retrieves a global coupon by id regardless of its active flag.
func (r *couponRepository) GetGlobal(ctx context.Context, id uuid.UUID) (*model.Coupon, error) {
	query := `SELECT ` + globalCouponColumns + ` FROM coupons WHERE id = $1`
	return r.getGlobal(ctx, query, id)
}

func (r *couponRepository) getGlobal(ctx context.Context, query string, arg any) (*model.Coupon, error) {
	var c model.Coupon
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&c.ID,
		&c.Code,
		&c.DiscountPercent,
		&c.ExpiresAt,
		&c.UsageLimit,
		&c.TimesUsed,
		&c.TotalDiscountGiven,
		&c.Active,
		&c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error().Err(err).Msg("failed to query coupon")
		return nil, fmt.Errorf("failed to query coupon: %w", err)
	}
	return &c, nil
}

// CreateGlobal inserts a platform coupon.
func (r *couponRepository) CreateGlobal(ctx context.Context, c *model.Coupon) error {
	query := `
		INSERT INTO coupons (id, code, discount_percent, expires_at, usage_limit, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query, c.ID, c.Code, c.DiscountPercent, c.ExpiresAt, c.UsageLimit, c.Active, c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return errDuplicateCode
		}
		r.logger.Error().Err(err).Str("coupon_code", c.Code).Msg("failed to create coupon")
		return fmt.Errorf("failed to create coupon: %w", err)
	}

	r.logger.Info().Str("coupon_id", c.ID.String()).Str("coupon_code", c.Code).Msg("coupon created successfully")
	return nil
}

// CreateSeller inserts a seller coupon and its product scope.
func (r *couponRepository) CreateSeller(ctx context.Context, tx pgx.Tx, c *model.SellerCoupon) error {
	q := r.q(tx)

	query := `
		INSERT INTO seller_coupons (id, seller_id, code, discount_type, discount_value, expires_at,
		                            usage_limit, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := q.Exec(ctx, query, c.ID, c.SellerID, c.Code, c.DiscountType, c.DiscountValue,
		c.ExpiresAt, c.UsageLimit, c.Active, c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return errDuplicateCode
		}
		r.logger.Error().Err(err).Str("coupon_code", c.Code).Msg("failed to create seller coupon")
		return fmt.Errorf("failed to create seller coupon: %w", err)
	}

	if len(c.ProductIDs) > 0 {
		batch := &pgx.Batch{}
		for _, productID := range c.ProductIDs {
			batch.Queue(`INSERT INTO seller_coupon_products (coupon_id, product_id) VALUES ($1, $2)
				ON CONFLICT DO NOTHING`, c.ID, productID)
		}
		results := q.SendBatch(ctx, batch)
		defer results.Close()

		for range c.ProductIDs {
			if _, err := results.Exec(); err != nil {
				r.logger.Error().Err(err).Str("coupon_id", c.ID.String()).Msg("failed to scope seller coupon")
				return fmt.Errorf("failed to scope seller coupon: %w", err)
			}
		}
	}

	r.logger.Info().
		Str("coupon_id", c.ID.String()).
		Str("seller_id", c.SellerID.String()).
		Int("products", len(c.ProductIDs)).
		Msg("seller coupon created successfully")
	return nil
}

// SetActive toggles a coupon.
func (r *couponRepository) SetActive(ctx context.Context, scope model.CouponScope, id uuid.UUID, active bool) error {
	table := "coupons"
	if scope == model.CouponScopeSeller {
		table = "seller_coupons"
	}

	tag, err := r.pool.Exec(ctx, `UPDATE `+table+` SET active = $2 WHERE id = $1`, id, active)
	if err != nil {
		r.logger.Error().Err(err).Str("coupon_id", id.String()).Msg("failed to update coupon")
		return fmt.Errorf("failed to update coupon: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewDomainError(model.ErrCodeNotFound, "Coupon not found")
	}
	return nil
}

// RecordUsage increments the usage counters of the applied coupon. The
// increment only happens while the coupon is below its usage limit, so
// concurrent checkouts cannot push times_used past usage_limit.
func (r *couponRepository) RecordUsage(ctx context.Context, tx pgx.Tx, applied *model.AppliedCoupon) error {
	table := "coupons"
	if applied.Scope == model.CouponScopeSeller {
		table = "seller_coupons"
	}

	query := `
		UPDATE ` + table + `
		SET times_used = times_used + 1,
		    total_discount_given = total_discount_given + $2
		WHERE id = $1
		  AND (usage_limit IS NULL OR times_used < usage_limit)
	`

	q := r.q(tx)
	tag, err := q.Exec(ctx, query, applied.CouponID, applied.DiscountAmount)
	if err != nil {
		r.logger.Error().Err(err).Str("coupon_id", applied.CouponID.String()).Msg("failed to record coupon usage")
		return fmt.Errorf("failed to record coupon usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, applied.CouponID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check coupon: %w", err)
		}
		if !exists {
			return model.ErrCouponNotFound
		}
		r.logger.Warn().Str("coupon_id", applied.CouponID.String()).Msg("coupon usage limit reached at redemption")
		return model.ErrCouponLimitReached
	}

	r.logger.Debug().
		Str("coupon_id", applied.CouponID.String()).
		Str("discount", applied.DiscountAmount.StringFixed(2)).
		Msg("coupon usage recorded")
	return nil
}
