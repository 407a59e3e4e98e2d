package service

import (
	"context"
	"sync"
	"time"

	"keyvault-glow/internal/events"
	"keyvault-glow/internal/gateway"
	"keyvault-glow/internal/model"
	"keyvault-glow/internal/notify"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockTx is a minimal mock implementation of pgx.Tx for testing.
type MockTx struct {
	mock.Mock
	committed  bool
	rolledBack bool
}

func (m *MockTx) Commit(ctx context.Context) error {
	args := m.Called(ctx)
	m.committed = true
	return args.Error(0)
}

func (m *MockTx) Rollback(ctx context.Context) error {
	args := m.Called(ctx)
	m.rolledBack = true
	return args.Error(0)
}

// Stub methods to satisfy pgx.Tx interface - these are not used in our tests
func (m *MockTx) Begin(ctx context.Context) (pgx.Tx, error) { return nil, nil }
func (m *MockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (m *MockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (m *MockTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (m *MockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (m *MockTx) Exec(ctx context.Context, sql string, arguments ...any) (commandTag pgconn.CommandTag, err error) {
	return
}
func (m *MockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (m *MockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (m *MockTx) Conn() *pgx.Conn                                               { return nil }

func beginTx(m *mock.Mock, ctx context.Context) (pgx.Tx, error) {
	args := m.MethodCalled("BeginTx", ctx)
	if tx, ok := args.Get(0).(pgx.Tx); ok {
		return tx, args.Error(1)
	}
	return nil, args.Error(1)
}

// MockOrderRepository is a mock implementation of OrderRepository.
type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return beginTx(&m.Mock, ctx)
}

func (m *MockOrderRepository) Create(ctx context.Context, tx pgx.Tx, order *model.Order) error {
	return m.Called(ctx, tx, order).Error(0)
}

func (m *MockOrderRepository) CreateItems(ctx context.Context, tx pgx.Tx, items []model.OrderItem) error {
	return m.Called(ctx, tx, items).Error(0)
}

func (m *MockOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderRepository) GetByPaymentID(ctx context.Context, paymentID string) (*model.Order, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to model.OrderStatus) (bool, error) {
	args := m.Called(ctx, tx, id, from, to)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrderRepository) MarkDelivered(ctx context.Context, tx pgx.Tx, id uuid.UUID, at time.Time) (bool, error) {
	args := m.Called(ctx, tx, id, at)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrderRepository) ListPendingBefore(ctx context.Context, before time.Time, limit int) ([]model.Order, error) {
	args := m.Called(ctx, before, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Order), args.Error(1)
}

// MockProductRepository is a mock implementation of ProductRepository.
type MockProductRepository struct {
	mock.Mock
}

func (m *MockProductRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Product, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Product), args.Error(1)
}

// MockCouponRepository is a mock implementation of CouponRepository.
type MockCouponRepository struct {
	mock.Mock
}

func (m *MockCouponRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return beginTx(&m.Mock, ctx)
}

func (m *MockCouponRepository) FindSellerCouponByCode(ctx context.Context, code string) (*model.SellerCoupon, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SellerCoupon), args.Error(1)
}

func (m *MockCouponRepository) FindGlobalCouponByCode(ctx context.Context, code string) (*model.Coupon, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Coupon), args.Error(1)
}

func (m *MockCouponRepository) CreateGlobal(ctx context.Context, c *model.Coupon) error {
	return m.Called(ctx, c).Error(0)
}

func (m *MockCouponRepository) CreateSeller(ctx context.Context, tx pgx.Tx, c *model.SellerCoupon) error {
	return m.Called(ctx, tx, c).Error(0)
}

func (m *MockCouponRepository) GetGlobal(ctx context.Context, id uuid.UUID) (*model.Coupon, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Coupon), args.Error(1)
}

func (m *MockCouponRepository) GetSeller(ctx context.Context, id uuid.UUID) (*model.SellerCoupon, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SellerCoupon), args.Error(1)
}

func (m *MockCouponRepository) SetActive(ctx context.Context, scope model.CouponScope, id uuid.UUID, active bool) error {
	return m.Called(ctx, scope, id, active).Error(0)
}

func (m *MockCouponRepository) RecordUsage(ctx context.Context, tx pgx.Tx, applied *model.AppliedCoupon) error {
	return m.Called(ctx, tx, applied).Error(0)
}

// MockRefundRepository is a mock implementation of RefundRepository.
type MockRefundRepository struct {
	mock.Mock
}

func (m *MockRefundRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return beginTx(&m.Mock, ctx)
}

func (m *MockRefundRepository) Create(ctx context.Context, tx pgx.Tx, refund *model.RefundRequest) error {
	return m.Called(ctx, tx, refund).Error(0)
}

func (m *MockRefundRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.RefundRequest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RefundRequest), args.Error(1)
}

func (m *MockRefundRepository) GetOpenByOrder(ctx context.Context, orderID uuid.UUID) (*model.RefundRequest, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RefundRequest), args.Error(1)
}

func (m *MockRefundRepository) List(ctx context.Context, filter model.RefundFilter) ([]model.RefundRequest, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.RefundRequest), args.Error(1)
}

func (m *MockRefundRepository) SetSellerResponse(ctx context.Context, id uuid.UUID, response string, at time.Time) (bool, error) {
	args := m.Called(ctx, id, response, at)
	return args.Bool(0), args.Error(1)
}

func (m *MockRefundRepository) UpdateDecision(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to model.RefundStatus,
	notes *string, resolvedAt *time.Time, resolvedBy *uuid.UUID) (bool, error) {
	args := m.Called(ctx, tx, id, from, to, notes, resolvedAt, resolvedBy)
	return args.Bool(0), args.Error(1)
}

func (m *MockRefundRepository) ListUnansweredBefore(ctx context.Context, before time.Time, limit int) ([]model.RefundRequest, error) {
	args := m.Called(ctx, before, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.RefundRequest), args.Error(1)
}

func (m *MockRefundRepository) MarkEscalated(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	args := m.Called(ctx, id, at)
	return args.Bool(0), args.Error(1)
}

func (m *MockRefundRepository) CreateMessage(ctx context.Context, msg *model.RefundMessage) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *MockRefundRepository) ListMessages(ctx context.Context, refundID uuid.UUID) ([]model.RefundMessage, error) {
	args := m.Called(ctx, refundID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.RefundMessage), args.Error(1)
}

// MockLedgerRepository is a mock implementation of LedgerRepository.
type MockLedgerRepository struct {
	mock.Mock
}

func (m *MockLedgerRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return beginTx(&m.Mock, ctx)
}

func (m *MockLedgerRepository) Append(ctx context.Context, tx pgx.Tx, entries []model.LedgerEntry) error {
	return m.Called(ctx, tx, entries).Error(0)
}

func (m *MockLedgerRepository) SumByOrder(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, kind model.LedgerKind) (map[uuid.UUID]decimal.Decimal, error) {
	args := m.Called(ctx, tx, orderID, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uuid.UUID]decimal.Decimal), args.Error(1)
}

func (m *MockLedgerRepository) Balance(ctx context.Context, sellerID uuid.UUID) (*model.SellerBalance, error) {
	args := m.Called(ctx, sellerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SellerBalance), args.Error(1)
}

func (m *MockLedgerRepository) LockBalance(ctx context.Context, tx pgx.Tx, sellerID uuid.UUID) (*model.SellerBalance, error) {
	args := m.Called(ctx, tx, sellerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SellerBalance), args.Error(1)
}

func (m *MockLedgerRepository) Entries(ctx context.Context, sellerID uuid.UUID, limit, offset int) ([]model.LedgerEntry, error) {
	args := m.Called(ctx, sellerID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.LedgerEntry), args.Error(1)
}

// MockGateway is a mock implementation of gateway.Gateway.
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreatePayment(ctx context.Context, req gateway.PaymentRequest) (*gateway.PaymentResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.PaymentResult), args.Error(1)
}

func (m *MockGateway) CheckPaymentStatus(ctx context.Context, paymentID string) (model.OrderStatus, error) {
	args := m.Called(ctx, paymentID)
	return args.Get(0).(model.OrderStatus), args.Error(1)
}

func (m *MockGateway) CancelPayment(ctx context.Context, paymentID string) error {
	args := m.Called(ctx, paymentID)
	return args.Error(0)
}

// MockObjectStore is a mock implementation of storage.ObjectStore.
type MockObjectStore struct {
	mock.Mock
}

func (m *MockObjectStore) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	args := m.Called(ctx, key, contentType, data)
	return args.String(0), args.Error(1)
}

func (m *MockObjectStore) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]events.Type, len(p.events))
	for i, e := range p.events {
		types[i] = e.Type
	}
	return types
}

// recordingNotifier keeps every sent message.
type recordingNotifier struct {
	sent []notify.Message
}

func (n *recordingNotifier) Send(_ context.Context, msg notify.Message) error {
	n.sent = append(n.sent, msg)
	return nil
}

func ptr[T any](v T) *T {
	return &v
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
