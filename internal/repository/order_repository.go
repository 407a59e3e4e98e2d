package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"keyvault-glow/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const orderColumns = `
	id, customer_id, customer_email, customer_name, product_id, product_name,
	product_price, transaction_amount, payment_method, payment_status,
	coupon_code, coupon_seller_id, discount_amount, gateway_payment_id,
	pix_qr_code, pix_qr_code_base64, ticket_url, seller_id, delivered_at,
	created_at, updated_at`

// orderRepository implements the OrderRepository interface using PostgreSQL.
type orderRepository struct {
	base
}

// NewOrderRepository creates a new PostgreSQL-backed order repository.
func NewOrderRepository(pool *pgxpool.Pool, logger zerolog.Logger) OrderRepository {
	return &orderRepository{base: newBase(pool, logger, "order")}
}

// Create inserts a new order within the provided transaction.
func (r *orderRepository) Create(ctx context.Context, tx pgx.Tx, order *model.Order) error {
	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`

	_, err := r.q(tx).Exec(ctx, query,
		order.ID,
		order.CustomerID,
		order.CustomerEmail,
		order.CustomerName,
		order.ProductID,
		order.ProductName,
		order.ProductPrice,
		order.TransactionAmount,
		order.PaymentMethod,
		order.PaymentStatus,
		order.CouponCode,
		order.CouponSellerID,
		order.DiscountAmount,
		order.GatewayPaymentID,
		order.PixQRCode,
		order.PixQRCodeBase64,
		order.TicketURL,
		order.SellerID,
		order.DeliveredAt,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		r.logger.Error().
			Err(err).
			Str("order_id", order.ID.String()).
			Msg("failed to create order")
		return fmt.Errorf("failed to create order: %w", err)
	}

	r.logger.Debug().
		Str("order_id", order.ID.String()).
		Str("status", order.PaymentStatus.String()).
		Msg("order created successfully")

	return nil
}

// CreateItems inserts multiple order items within the provided transaction.
func (r *orderRepository) CreateItems(ctx context.Context, tx pgx.Tx, items []model.OrderItem) error {
	if len(items) == 0 {
		return nil
	}

	query := `
		INSERT INTO order_items (id, order_id, product_id, product_name, unit_price, quantity, seller_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	batch := &pgx.Batch{}
	for _, item := range items {
		batch.Queue(query, item.ID, item.OrderID, item.ProductID, item.ProductName,
			item.UnitPrice, item.Quantity, item.SellerID)
	}

	results := r.q(tx).SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < len(items); i++ {
		if _, err := results.Exec(); err != nil {
			r.logger.Error().
				Err(err).
				Str("order_id", items[i].OrderID.String()).
				Str("product_id", items[i].ProductID.String()).
				Msg("failed to create order item")
			return fmt.Errorf("failed to create order item: %w", err)
		}
	}

	r.logger.Debug().
		Int("count", len(items)).
		Msg("order items created successfully")

	return nil
}

// GetByID retrieves an order by its ID along with its items.
func (r *orderRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return r.getOne(ctx, query, id, "order_id", id.String())
}

// GetByPaymentID retrieves an order by its gateway payment id.
func (r *orderRepository) GetByPaymentID(ctx context.Context, paymentID string) (*model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE gateway_payment_id = $1`
	return r.getOne(ctx, query, paymentID, "payment_id", paymentID)
}

func (r *orderRepository) getOne(ctx context.Context, query string, arg any, field, value string) (*model.Order, error) {
	order, err := scanOrder(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug().Str(field, value).Msg("order not found")
			return nil, nil
		}
		r.logger.Error().Err(err).Str(field, value).Msg("failed to query order")
		return nil, fmt.Errorf("failed to query order: %w", err)
	}

	items, err := r.items(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

func (r *orderRepository) items(ctx context.Context, orderID uuid.UUID) ([]model.OrderItem, error) {
	query := `
		SELECT id, order_id, product_id, product_name, unit_price, quantity, seller_id
		FROM order_items
		WHERE order_id = $1
		ORDER BY product_name, id
	`

	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		r.logger.Error().
			Err(err).
			Str("order_id", orderID.String()).
			Msg("failed to query order items")
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	var items []model.OrderItem
	for rows.Next() {
		var item model.OrderItem
		err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.ProductName,
			&item.UnitPrice, &item.Quantity, &item.SellerID)
		if err != nil {
			r.logger.Error().Err(err).Msg("failed to scan order item row")
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error().Err(err).Msg("error iterating order item rows")
		return nil, fmt.Errorf("error iterating order items: %w", err)
	}

	return items, nil
}

// UpdateStatus performs a compare-and-set on payment_status.
func (r *orderRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to model.OrderStatus) (bool, error) {
	query := `
		UPDATE orders
		SET payment_status = $3, updated_at = now()
		WHERE id = $1 AND payment_status = $2
	`

	tag, err := r.q(tx).Exec(ctx, query, id, from, to)
	if err != nil {
		r.logger.Error().
			Err(err).
			Str("order_id", id.String()).
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("failed to update order status")
		return false, fmt.Errorf("failed to update order status: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// MarkDelivered moves an approved order to delivered.
func (r *orderRepository) MarkDelivered(ctx context.Context, tx pgx.Tx, id uuid.UUID, at time.Time) (bool, error) {
	query := `
		UPDATE orders
		SET payment_status = $2, delivered_at = $3, updated_at = now()
		WHERE id = $1 AND payment_status = $4
	`

	tag, err := r.q(tx).Exec(ctx, query, id, model.OrderStatusDelivered, at, model.OrderStatusApproved)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to mark order delivered")
		return false, fmt.Errorf("failed to mark order delivered: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// ListPendingBefore returns pending orders with a gateway payment created before the cutoff.
func (r *orderRepository) ListPendingBefore(ctx context.Context, before time.Time, limit int) ([]model.Order, error) {
	query := `SELECT ` + orderColumns + `
		FROM orders
		WHERE payment_status = $1 AND created_at < $2 AND gateway_payment_id IS NOT NULL
		ORDER BY created_at
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, model.OrderStatusPending, before, limit)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to query pending orders")
		return nil, fmt.Errorf("failed to query pending orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			r.logger.Error().Err(err).Msg("failed to scan order row")
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}

	return orders, nil
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	var o model.Order
	err := row.Scan(
		&o.ID,
		&o.CustomerID,
		&o.CustomerEmail,
		&o.CustomerName,
		&o.ProductID,
		&o.ProductName,
		&o.ProductPrice,
		&o.TransactionAmount,
		&o.PaymentMethod,
		&o.PaymentStatus,
		&o.CouponCode,
		&o.CouponSellerID,
		&o.DiscountAmount,
		&o.GatewayPaymentID,
		&o.PixQRCode,
		&o.PixQRCodeBase64,
		&o.TicketURL,
		&o.SellerID,
		&o.DeliveredAt,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}
