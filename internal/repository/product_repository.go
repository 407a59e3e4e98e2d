package repository

import (
	"context"
	"fmt"

	"keyvault-glow/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

type productRepository struct {
	base
}

// NewProductRepository returns the catalogue lookups checkout and coupon
// administration price against.
func NewProductRepository(pool *pgxpool.Pool, logger zerolog.Logger) ProductRepository {
	return &productRepository{base: newBase(pool, logger, "product")}
}

// GetByIDs loads the listed products that are still on sale. Unknown or
// delisted ids are left out; callers compare lengths to detect them.
func (r *productRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Product, error) {
	if len(ids) == 0 {
		return []model.Product{}, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, name, price, seller_id, active, created_at
		FROM products
		WHERE id = ANY($1::uuid[]) AND active
	`, ids)
	if err != nil {
		r.logger.Error().Err(err).Int("requested", len(ids)).Msg("product lookup failed")
		return nil, fmt.Errorf("failed to query products: %w", err)
	}

	products, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.Product])
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to read product rows")
		return nil, fmt.Errorf("failed to read products: %w", err)
	}

	r.logger.Debug().Int("requested", len(ids)).Int("found", len(products)).Msg("products loaded")
	return products, nil
}
