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
	"github.com/shopspring/decimal"
)

// ledgerRepository implements the LedgerRepository interface using PostgreSQL.
// Balances are never read-modified-written: every entry applies its delta
// with an in-place increment.
type ledgerRepository struct {
	base
}

// NewLedgerRepository creates a new PostgreSQL-backed ledger repository.
func NewLedgerRepository(pool *pgxpool.Pool, logger zerolog.Logger) LedgerRepository {
	return &ledgerRepository{base: newBase(pool, logger, "ledger")}
}

// Append inserts ledger entries and applies their deltas.
func (r *ledgerRepository) Append(ctx context.Context, tx pgx.Tx, entries []model.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}

	applyDelta := `
		INSERT INTO seller_profiles (seller_id, available_balance, pending_balance, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (seller_id) DO UPDATE
		SET available_balance = seller_profiles.available_balance + EXCLUDED.available_balance,
		    pending_balance = seller_profiles.pending_balance + EXCLUDED.pending_balance,
		    updated_at = now()
	`
	insertEntry := `
		INSERT INTO ledger_entries (id, seller_id, order_id, refund_id, kind, bucket, amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	batch := &pgx.Batch{}
	for _, e := range entries {
		available, pending := decimal.Zero, decimal.Zero
		if e.Bucket == model.BucketAvailable {
			available = e.Amount
		} else {
			pending = e.Amount
		}
		batch.Queue(applyDelta, e.SellerID, available, pending)
		batch.Queue(insertEntry, e.ID, e.SellerID, e.OrderID, e.RefundID, e.Kind, e.Bucket, e.Amount, e.CreatedAt)
	}

	results := r.q(tx).SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			e := entries[i/2]
			r.logger.Error().
				Err(err).
				Str("seller_id", e.SellerID.String()).
				Str("kind", string(e.Kind)).
				Msg("failed to append ledger entry")
			return fmt.Errorf("failed to append ledger entry: %w", err)
		}
	}

	r.logger.Debug().Int("count", len(entries)).Msg("ledger entries appended")
	return nil
}

// SumByOrder returns the net amount per seller of an order's entries of one kind.
func (r *ledgerRepository) SumByOrder(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, kind model.LedgerKind) (map[uuid.UUID]decimal.Decimal, error) {
	query := `
		SELECT seller_id, SUM(amount)
		FROM ledger_entries
		WHERE order_id = $1 AND kind = $2
		GROUP BY seller_id
	`

	rows, err := r.q(tx).Query(ctx, query, orderID, kind)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", orderID.String()).Msg("failed to sum ledger entries")
		return nil, fmt.Errorf("failed to sum ledger entries: %w", err)
	}
	defer rows.Close()

	sums := make(map[uuid.UUID]decimal.Decimal)
	for rows.Next() {
		var (
			sellerID uuid.UUID
			sum      decimal.Decimal
		)
		if err := rows.Scan(&sellerID, &sum); err != nil {
			return nil, fmt.Errorf("failed to scan ledger sum: %w", err)
		}
		sums[sellerID] = sum
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger sums: %w", err)
	}

	return sums, nil
}

// Balance returns the seller's current balances.
func (r *ledgerRepository) Balance(ctx context.Context, sellerID uuid.UUID) (*model.SellerBalance, error) {
	query := `
		SELECT seller_id, available_balance, pending_balance, updated_at
		FROM seller_profiles
		WHERE seller_id = $1
	`
	return r.balance(ctx, r.pool, query, sellerID)
}

// LockBalance reads the seller's balances and locks the row until tx ends.
func (r *ledgerRepository) LockBalance(ctx context.Context, tx pgx.Tx, sellerID uuid.UUID) (*model.SellerBalance, error) {
	query := `
		SELECT seller_id, available_balance, pending_balance, updated_at
		FROM seller_profiles
		WHERE seller_id = $1
		FOR UPDATE
	`
	return r.balance(ctx, r.q(tx), query, sellerID)
}

func (r *ledgerRepository) balance(ctx context.Context, q Querier, query string, sellerID uuid.UUID) (*model.SellerBalance, error) {
	var b model.SellerBalance
	err := q.QueryRow(ctx, query, sellerID).Scan(&b.SellerID, &b.AvailableBalance, &b.PendingBalance, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &model.SellerBalance{
				SellerID:         sellerID,
				AvailableBalance: decimal.Zero,
				PendingBalance:   decimal.Zero,
			}, nil
		}
		r.logger.Error().Err(err).Str("seller_id", sellerID.String()).Msg("failed to query seller balance")
		return nil, fmt.Errorf("failed to query seller balance: %w", err)
	}
	return &b, nil
}

// Entries lists a seller's ledger, newest first.
func (r *ledgerRepository) Entries(ctx context.Context, sellerID uuid.UUID, limit, offset int) ([]model.LedgerEntry, error) {
	limit, offset = clampPage(limit, offset)

	query := `
		SELECT id, seller_id, order_id, refund_id, kind, bucket, amount, created_at
		FROM ledger_entries
		WHERE seller_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, sellerID, limit, offset)
	if err != nil {
		r.logger.Error().Err(err).Str("seller_id", sellerID.String()).Msg("failed to query ledger entries")
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	entries := []model.LedgerEntry{}
	for rows.Next() {
		var e model.LedgerEntry
		if err := rows.Scan(&e.ID, &e.SellerID, &e.OrderID, &e.RefundID, &e.Kind, &e.Bucket, &e.Amount, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger entries: %w", err)
	}

	return entries, nil
}
