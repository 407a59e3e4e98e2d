package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"keyvault-glow/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const refundColumns = `
	id, order_id, customer_id, seller_id, reason, description, proof_urls, pix_key, pix_key_type,
	order_amount, status, admin_notes, seller_response, seller_responded_at, resolved_at,
	resolved_by, escalated_at, created_at, updated_at`

// refundRepository implements the RefundRepository interface using PostgreSQL.
type refundRepository struct {
	base
}

// NewRefundRepository creates a new PostgreSQL-backed refund repository.
func NewRefundRepository(pool *pgxpool.Pool, logger zerolog.Logger) RefundRepository {
	return &refundRepository{base: newBase(pool, logger, "refund")}
}

// Create inserts a refund request. A second open request for the same order
// is rejected by the database and reported as ErrRefundAlreadyOpen.
func (r *refundRepository) Create(ctx context.Context, tx pgx.Tx, refund *model.RefundRequest) error {
	query := `
		INSERT INTO refund_requests (` + refundColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`

	_, err := r.q(tx).Exec(ctx, query,
		refund.ID,
		refund.OrderID,
		refund.CustomerID,
		refund.SellerID,
		refund.Reason,
		refund.Description,
		refund.ProofURLs,
		refund.PixKey,
		refund.PixKeyType,
		refund.OrderAmount,
		refund.Status,
		refund.AdminNotes,
		refund.SellerResponse,
		refund.SellerRespondedAt,
		refund.ResolvedAt,
		refund.ResolvedBy,
		refund.EscalatedAt,
		refund.CreatedAt,
		refund.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.ErrRefundAlreadyOpen
		}
		r.logger.Error().
			Err(err).
			Str("refund_id", refund.ID.String()).
			Str("order_id", refund.OrderID.String()).
			Msg("failed to create refund request")
		return fmt.Errorf("failed to create refund request: %w", err)
	}

	r.logger.Debug().
		Str("refund_id", refund.ID.String()).
		Str("order_id", refund.OrderID.String()).
		Msg("refund request created successfully")

	return nil
}

// GetByID retrieves a refund request by id.
func (r *refundRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.RefundRequest, error) {
	query := `SELECT ` + refundColumns + ` FROM refund_requests WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetOpenByOrder returns the non-terminal refund request for an order.
func (r *refundRepository) GetOpenByOrder(ctx context.Context, orderID uuid.UUID) (*model.RefundRequest, error) {
	query := `SELECT ` + refundColumns + `
		FROM refund_requests
		WHERE order_id = $1 AND status NOT IN ('approved', 'rejected')`
	return r.getOne(ctx, query, orderID)
}

func (r *refundRepository) getOne(ctx context.Context, query string, arg uuid.UUID) (*model.RefundRequest, error) {
	refund, err := scanRefund(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error().Err(err).Str("id", arg.String()).Msg("failed to query refund request")
		return nil, fmt.Errorf("failed to query refund request: %w", err)
	}
	return refund, nil
}

// List returns refund requests matching the filter, newest first.
func (r *refundRepository) List(ctx context.Context, filter model.RefundFilter) ([]model.RefundRequest, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.CustomerID != nil {
		args = append(args, *filter.CustomerID)
		conditions = append(conditions, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	if filter.SellerID != nil {
		args = append(args, *filter.SellerID)
		conditions = append(conditions, fmt.Sprintf("seller_id = $%d", len(args)))
	}

	query := `SELECT ` + refundColumns + ` FROM refund_requests`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	limit, offset := clampPage(filter.Limit, filter.Offset)
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	return r.list(ctx, query, args...)
}

// ListUnansweredBefore returns pending requests still waiting on the seller.
func (r *refundRepository) ListUnansweredBefore(ctx context.Context, before time.Time, limit int) ([]model.RefundRequest, error) {
	query := `SELECT ` + refundColumns + `
		FROM refund_requests
		WHERE status = 'pending'
		  AND seller_response IS NULL
		  AND escalated_at IS NULL
		  AND created_at <= $1
		ORDER BY created_at
		LIMIT $2`
	return r.list(ctx, query, before, limit)
}

func (r *refundRepository) list(ctx context.Context, query string, args ...any) ([]model.RefundRequest, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to query refund requests")
		return nil, fmt.Errorf("failed to query refund requests: %w", err)
	}
	defer rows.Close()

	refunds := []model.RefundRequest{}
	for rows.Next() {
		refund, err := scanRefund(rows)
		if err != nil {
			r.logger.Error().Err(err).Msg("failed to scan refund request row")
			return nil, fmt.Errorf("failed to scan refund request: %w", err)
		}
		refunds = append(refunds, *refund)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating refund requests: %w", err)
	}

	return refunds, nil
}

// SetSellerResponse records the seller reply once, while the request is pending.
func (r *refundRepository) SetSellerResponse(ctx context.Context, id uuid.UUID, response string, at time.Time) (bool, error) {
	query := `
		UPDATE refund_requests
		SET seller_response = $2, seller_responded_at = $3, updated_at = now()
		WHERE id = $1 AND status = 'pending' AND seller_response IS NULL
	`

	tag, err := r.pool.Exec(ctx, query, id, response, at)
	if err != nil {
		r.logger.Error().Err(err).Str("refund_id", id.String()).Msg("failed to record seller response")
		return false, fmt.Errorf("failed to record seller response: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateDecision applies an admin decision as a compare-and-set on status.
func (r *refundRepository) UpdateDecision(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to model.RefundStatus,
	notes *string, resolvedAt *time.Time, resolvedBy *uuid.UUID) (bool, error) {
	query := `
		UPDATE refund_requests
		SET status = $3,
		    admin_notes = COALESCE($4, admin_notes),
		    resolved_at = $5,
		    resolved_by = $6,
		    updated_at = now()
		WHERE id = $1 AND status = $2
	`

	tag, err := r.q(tx).Exec(ctx, query, id, from, to, notes, resolvedAt, resolvedBy)
	if err != nil {
		r.logger.Error().
			Err(err).
			Str("refund_id", id.String()).
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("failed to update refund decision")
		return false, fmt.Errorf("failed to update refund decision: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkEscalated stamps escalated_at on a still pending, unanswered request.
func (r *refundRepository) MarkEscalated(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	query := `
		UPDATE refund_requests
		SET escalated_at = $2, updated_at = now()
		WHERE id = $1 AND status = 'pending' AND seller_response IS NULL AND escalated_at IS NULL
	`

	tag, err := r.pool.Exec(ctx, query, id, at)
	if err != nil {
		r.logger.Error().Err(err).Str("refund_id", id.String()).Msg("failed to escalate refund request")
		return false, fmt.Errorf("failed to escalate refund request: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CreateMessage appends a message to a refund thread.
func (r *refundRepository) CreateMessage(ctx context.Context, msg *model.RefundMessage) error {
	query := `
		INSERT INTO refund_messages (id, refund_id, sender_id, sender_role, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.pool.Exec(ctx, query, msg.ID, msg.RefundID, msg.SenderID, msg.SenderRole, msg.Body, msg.CreatedAt)
	if err != nil {
		r.logger.Error().Err(err).Str("refund_id", msg.RefundID.String()).Msg("failed to create refund message")
		return fmt.Errorf("failed to create refund message: %w", err)
	}
	return nil
}

// ListMessages returns a refund thread in chronological order.
func (r *refundRepository) ListMessages(ctx context.Context, refundID uuid.UUID) ([]model.RefundMessage, error) {
	query := `
		SELECT id, refund_id, sender_id, sender_role, body, created_at
		FROM refund_messages
		WHERE refund_id = $1
		ORDER BY created_at, id
	`

	rows, err := r.pool.Query(ctx, query, refundID)
	if err != nil {
		r.logger.Error().Err(err).Str("refund_id", refundID.String()).Msg("failed to query refund messages")
		return nil, fmt.Errorf("failed to query refund messages: %w", err)
	}
	defer rows.Close()

	messages := []model.RefundMessage{}
	for rows.Next() {
		var m model.RefundMessage
		if err := rows.Scan(&m.ID, &m.RefundID, &m.SenderID, &m.SenderRole, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan refund message: %w", err)
		}
		messages = append(messages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating refund messages: %w", err)
	}

	return messages, nil
}

func scanRefund(row pgx.Row) (*model.RefundRequest, error) {
	var rr model.RefundRequest
	err := row.Scan(
		&rr.ID,
		&rr.OrderID,
		&rr.CustomerID,
		&rr.SellerID,
		&rr.Reason,
		&rr.Description,
		&rr.ProofURLs,
		&rr.PixKey,
		&rr.PixKeyType,
		&rr.OrderAmount,
		&rr.Status,
		&rr.AdminNotes,
		&rr.SellerResponse,
		&rr.SellerRespondedAt,
		&rr.ResolvedAt,
		&rr.ResolvedBy,
		&rr.EscalatedAt,
		&rr.CreatedAt,
		&rr.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rr, nil
}
