package handler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"

	"keyvault-glow/internal/gateway"
	"keyvault-glow/internal/middleware"
	"keyvault-glow/internal/model"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockOrderService is a mock implementation of service.OrderService.
type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) CreateOrder(ctx context.Context, actor model.Actor, req *model.CheckoutRequest) (*model.Order, error) {
	args := m.Called(ctx, actor, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderService) GetOrder(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Order, error) {
	args := m.Called(ctx, actor, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderService) CheckPaymentStatus(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.PaymentStatusResponse, error) {
	args := m.Called(ctx, actor, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PaymentStatusResponse), args.Error(1)
}

func (m *MockOrderService) RefreshPaymentStatus(ctx context.Context, id uuid.UUID) (*model.PaymentStatusResponse, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PaymentStatusResponse), args.Error(1)
}

func (m *MockOrderService) ApplyPaymentStatus(ctx context.Context, paymentID string, status model.OrderStatus, source string) (*model.Order, error) {
	args := m.Called(ctx, paymentID, status, source)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderService) MarkDelivered(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Order, error) {
	args := m.Called(ctx, actor, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderService) ReconcilePending(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

// MockRefundService is a mock implementation of service.RefundService.
type MockRefundService struct {
	mock.Mock
}

func (m *MockRefundService) Submit(ctx context.Context, actor model.Actor, in model.SubmitRefundInput) (*model.RefundView, error) {
	args := m.Called(ctx, actor, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RefundView), args.Error(1)
}

func (m *MockRefundService) SellerRespond(ctx context.Context, actor model.Actor, id uuid.UUID, req model.SellerResponseRequest) (*model.RefundView, error) {
	args := m.Called(ctx, actor, id, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RefundView), args.Error(1)
}

func (m *MockRefundService) Decide(ctx context.Context, actor model.Actor, id uuid.UUID, req model.RefundDecisionRequest) (*model.RefundView, error) {
	args := m.Called(ctx, actor, id, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RefundView), args.Error(1)
}

func (m *MockRefundService) Get(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.RefundView, error) {
	args := m.Called(ctx, actor, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RefundView), args.Error(1)
}

func (m *MockRefundService) List(ctx context.Context, actor model.Actor, filter model.RefundFilter) ([]model.RefundView, error) {
	args := m.Called(ctx, actor, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.RefundView), args.Error(1)
}

func (m *MockRefundService) AddMessage(ctx context.Context, actor model.Actor, id uuid.UUID, req model.RefundMessageRequest) (*model.RefundMessage, error) {
	args := m.Called(ctx, actor, id, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RefundMessage), args.Error(1)
}

func (m *MockRefundService) ListMessages(ctx context.Context, actor model.Actor, id uuid.UUID) ([]model.RefundMessage, error) {
	args := m.Called(ctx, actor, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.RefundMessage), args.Error(1)
}

func (m *MockRefundService) EscalateOverdue(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

// MockCouponService is a mock implementation of service.CouponService.
type MockCouponService struct {
	mock.Mock
}

func (m *MockCouponService) Resolve(ctx context.Context, actor model.Actor, req *model.CouponResolveRequest) (*model.CouponResolveResponse, error) {
	args := m.Called(ctx, actor, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CouponResolveResponse), args.Error(1)
}

func (m *MockCouponService) CreateGlobal(ctx context.Context, actor model.Actor, req *model.CreateCouponRequest) (*model.Coupon, error) {
	args := m.Called(ctx, actor, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Coupon), args.Error(1)
}

func (m *MockCouponService) CreateSeller(ctx context.Context, actor model.Actor, req *model.CreateCouponRequest) (*model.SellerCoupon, error) {
	args := m.Called(ctx, actor, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SellerCoupon), args.Error(1)
}

func (m *MockCouponService) SetActive(ctx context.Context, actor model.Actor, id uuid.UUID, active bool) error {
	args := m.Called(ctx, actor, id, active)
	return args.Error(0)
}

// MockBalanceService is a mock implementation of service.BalanceService.
type MockBalanceService struct {
	mock.Mock
}

func (m *MockBalanceService) Balance(ctx context.Context, actor model.Actor, sellerID uuid.UUID) (*model.SellerBalance, error) {
	args := m.Called(ctx, actor, sellerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SellerBalance), args.Error(1)
}

func (m *MockBalanceService) Entries(ctx context.Context, actor model.Actor, sellerID uuid.UUID, limit, offset int) ([]model.LedgerEntry, error) {
	args := m.Called(ctx, actor, sellerID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.LedgerEntry), args.Error(1)
}

func (m *MockBalanceService) RequestWithdrawal(ctx context.Context, actor model.Actor, sellerID uuid.UUID, req *model.WithdrawalRequest) (*model.SellerBalance, error) {
	args := m.Called(ctx, actor, sellerID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SellerBalance), args.Error(1)
}

// MockWebhookParser is a mock implementation of WebhookParser.
type MockWebhookParser struct {
	mock.Mock
}

func (m *MockWebhookParser) ParseWebhook(payload []byte, signature string) (*gateway.WebhookEvent, error) {
	args := m.Called(payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.WebhookEvent), args.Error(1)
}

// MockEventGuard is a mock implementation of EventGuard.
type MockEventGuard struct {
	mock.Mock
}

func (m *MockEventGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	args := m.Called(ctx, eventID)
	return args.Bool(0), args.Error(1)
}

func (m *MockEventGuard) Forget(ctx context.Context, eventID string) error {
	args := m.Called(ctx, eventID)
	return args.Error(0)
}

// MockWatcher is a mock implementation of PaymentWatcher.
type MockWatcher struct {
	mock.Mock
}

func (m *MockWatcher) Start(orderID uuid.UUID) {
	m.Called(orderID)
}

// serve routes a JSON request through a chi router so URL params resolve,
// with actor stored as the authenticated caller when set.
func serve(method, pattern, target string, body io.Reader, actor *model.Actor, h http.HandlerFunc) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", "application/json")
	return route(pattern, req, actor, h)
}

func route(pattern string, req *http.Request, actor *model.Actor, h http.HandlerFunc) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.MethodFunc(req.Method, pattern, h)

	if actor != nil {
		req = req.WithContext(middleware.WithActor(req.Context(), *actor))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func customerActor() *model.Actor {
	return &model.Actor{UserID: uuid.New(), Email: "ana@example.com", Name: "Ana", Role: model.RoleCustomer}
}

func sellerActor() *model.Actor {
	return &model.Actor{UserID: uuid.New(), Email: "loja@example.com", Name: "Loja", Role: model.RoleSeller}
}

func adminActor() *model.Actor {
	return &model.Actor{UserID: uuid.New(), Email: "admin@keyvault.gg", Name: "Admin", Role: model.RoleAdmin}
}
