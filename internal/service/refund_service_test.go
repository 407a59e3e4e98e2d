package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"keyvault-glow/internal/events"
	"keyvault-glow/internal/model"
	"keyvault-glow/internal/notify"
	"keyvault-glow/internal/storage"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	pngProof = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")
	pdfProof = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\n")
)

type refundFixture struct {
	refunds  *MockRefundRepository
	orders   *MockOrderRepository
	ledger   *MockLedgerRepository
	store    *MockObjectStore
	tx       *MockTx
	events   *recordingPublisher
	notifier *recordingNotifier
	svc      *refundService
}

func newRefundFixture() *refundFixture {
	f := &refundFixture{
		refunds:  new(MockRefundRepository),
		orders:   new(MockOrderRepository),
		ledger:   new(MockLedgerRepository),
		store:    new(MockObjectStore),
		tx:       new(MockTx),
		events:   &recordingPublisher{},
		notifier: &recordingNotifier{},
	}
	f.svc = NewRefundService(RefundServiceParams{
		Refunds:    f.refunds,
		Orders:     f.orders,
		Ledger:     f.ledger,
		Proofs:     storage.NewStaging(f.store, "refunds", zerolog.Nop()),
		Publisher:  f.events,
		Notifier:   f.notifier,
		AdminEmail: "admin@keyvault.gg",
		Logger:     zerolog.Nop(),
	}).(*refundService)
	f.svc.now = func() time.Time { return fixedNow }
	return f
}

func deliveredOrder(customerID uuid.UUID, seller *uuid.UUID, deliveredAgo time.Duration) *model.Order {
	order := pendingOrder(customerID, seller, "50.00")
	order.PaymentStatus = model.OrderStatusDelivered
	delivered := fixedNow.Add(-deliveredAgo)
	order.DeliveredAt = &delivered
	return order
}

func submission(orderID uuid.UUID, files ...[]byte) model.SubmitRefundInput {
	in := model.SubmitRefundInput{
		OrderID:    orderID,
		Reason:     model.RefundReasonInvalidKey,
		PixKey:     "buyer@example.com",
		PixKeyType: model.PixKeyTypeEmail,
	}
	for i, data := range files {
		in.Proofs = append(in.Proofs, model.ProofFile{Name: "proof-" + string(rune('a'+i)), Data: data})
	}
	return in
}

func (f *refundFixture) expectSubmitted(ctx context.Context, order *model.Order) {
	f.orders.On("GetByID", ctx, order.ID).Return(order, nil)
	f.refunds.On("GetOpenByOrder", ctx, order.ID).Return(nil, nil)
	f.store.On("Put", mock.Anything, mock.AnythingOfType("string"), mock.AnythingOfType("string"), mock.Anything).
		Return("https://cdn.keyvault.gg/proof", nil)
	f.refunds.On("BeginTx", ctx).Return(f.tx, nil)
	f.refunds.On("Create", ctx, f.tx, mock.AnythingOfType("*model.RefundRequest")).Return(nil)
	f.orders.On("UpdateStatus", ctx, f.tx, order.ID, order.PaymentStatus, model.OrderStatusRefundRequested).Return(true, nil)
	f.tx.On("Commit", ctx).Return(nil)
}

func TestRefundService_Submit(t *testing.T) {
	ctx := context.Background()
	f := newRefundFixture()
	buyer := customer()
	seller := uuid.New()
	order := deliveredOrder(buyer.UserID, &seller, 47*time.Hour)
	f.expectSubmitted(ctx, order)

	view, err := f.svc.Submit(ctx, buyer, submission(order.ID, pngProof, pdfProof))

	require.NoError(t, err)
	assert.Equal(t, model.RefundStatusPending, view.Status)
	assert.Equal(t, seller, *view.SellerID)
	assert.True(t, view.OrderAmount.Equal(dec("50")))
	assert.Len(t, view.ProofURLs, 2)
	assert.Equal(t, fixedNow.Add(24*time.Hour), view.SellerResponseDeadline)
	assert.False(t, view.SellerResponseExpired)
	assert.Equal(t, []events.Type{events.RefundSubmitted, events.OrderStatusChanged}, f.events.types())
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, []string{"admin@keyvault.gg"}, f.notifier.sent[0].To)
	assert.Same(t, notify.RefundSubmittedTemplate, f.notifier.sent[0].Template)
	f.store.AssertNumberOfCalls(t, "Put", 2)
	f.store.AssertCalled(t, "Put", mock.Anything, mock.Anything, "image/png", pngProof)
	f.store.AssertCalled(t, "Put", mock.Anything, mock.Anything, "application/pdf", pdfProof)
	f.refunds.AssertExpectations(t)
	f.orders.AssertExpectations(t)
	f.tx.AssertExpectations(t)
}

func TestRefundService_Submit_Eligibility(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		status   model.OrderStatus
		ago      time.Duration
		eligible bool
	}{
		{"delivered 47h ago", model.OrderStatusDelivered, 47 * time.Hour, true},
		{"delivered exactly 48h ago", model.OrderStatusDelivered, 48 * time.Hour, true},
		{"delivered 49h ago", model.OrderStatusDelivered, 49 * time.Hour, false},
		{"approved, not delivered", model.OrderStatusApproved, 0, true},
		{"pending", model.OrderStatusPending, 0, false},
		{"rejected", model.OrderStatusRejected, 0, false},
		{"already refunded", model.OrderStatusRefunded, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRefundFixture()
			buyer := customer()
			order := deliveredOrder(buyer.UserID, nil, tt.ago)
			order.PaymentStatus = tt.status
			if tt.status != model.OrderStatusDelivered {
				order.DeliveredAt = nil
			}

			if tt.eligible {
				f.expectSubmitted(ctx, order)
			} else {
				f.orders.On("GetByID", ctx, order.ID).Return(order, nil)
			}

			_, err := f.svc.Submit(ctx, buyer, submission(order.ID, pngProof))

			if tt.eligible {
				require.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, model.ErrRefundNotEligible)
			f.store.AssertNotCalled(t, "Put")
			f.refunds.AssertNotCalled(t, "BeginTx")
		})
	}
}

func TestRefundService_Submit_RejectsBeforeAnyWrite(t *testing.T) {
	six := make([][]byte, 6)
	for i := range six {
		six[i] = pngProof
	}
	orderID := uuid.New()
	badKey := submission(orderID, pngProof)
	badKey.PixKeyType = model.PixKeyTypeCPF
	badKey.PixKey = "111.111.111-11"
	noReason := submission(orderID, pngProof)
	noReason.Reason = "changed_my_mind"

	tests := []struct {
		name  string
		in    model.SubmitRefundInput
		field string
	}{
		{"no proofs", submission(orderID), "proofs"},
		{"six proofs", submission(orderID, six...), "proofs"},
		{"text file", submission(orderID, []byte("just some plain text, not evidence")), "proofs"},
		{"empty file", submission(orderID, []byte{}), "proofs"},
		{"invalid pix key", badKey, "pixKey"},
		{"unknown reason", noReason, "reason"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRefundFixture()

			_, err := f.svc.Submit(context.Background(), customer(), tt.in)

			domainErr, ok := model.AsDomainError(err)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, model.ErrCodeValidation, domainErr.Code)
			assert.Equal(t, tt.field, domainErr.Field)
			f.orders.AssertNotCalled(t, "GetByID")
			f.store.AssertNotCalled(t, "Put")
			f.refunds.AssertNotCalled(t, "BeginTx")
		})
	}
}

func TestRefundService_Submit_Refusals(t *testing.T) {
	ctx := context.Background()

	t.Run("someone else's order", func(t *testing.T) {
		f := newRefundFixture()
		order := deliveredOrder(uuid.New(), nil, time.Hour)
		f.orders.On("GetByID", ctx, order.ID).Return(order, nil)

		_, err := f.svc.Submit(ctx, customer(), submission(order.ID, pngProof))
		assert.ErrorIs(t, err, model.ErrForbidden)
	})

	t.Run("already open", func(t *testing.T) {
		f := newRefundFixture()
		buyer := customer()
		order := deliveredOrder(buyer.UserID, nil, time.Hour)
		order.PaymentStatus = model.OrderStatusApproved
		f.orders.On("GetByID", ctx, order.ID).Return(order, nil)
		f.refunds.On("GetOpenByOrder", ctx, order.ID).Return(&model.RefundRequest{ID: uuid.New()}, nil)

		_, err := f.svc.Submit(ctx, buyer, submission(order.ID, pngProof))
		assert.ErrorIs(t, err, model.ErrRefundAlreadyOpen)
		f.store.AssertNotCalled(t, "Put")
	})
}

func TestRefundService_Submit_ProofUploadFailure(t *testing.T) {
	ctx := context.Background()
	f := newRefundFixture()
	buyer := customer()
	order := deliveredOrder(buyer.UserID, nil, time.Hour)

	f.orders.On("GetByID", ctx, order.ID).Return(order, nil)
	f.refunds.On("GetOpenByOrder", ctx, order.ID).Return(nil, nil)
	f.store.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("s3: access denied"))
	f.store.On("Delete", mock.Anything, mock.Anything).Return(nil).Maybe()

	_, err := f.svc.Submit(ctx, buyer, submission(order.ID, pngProof))

	assert.True(t, model.HasCode(err, model.ErrCodeProofUploadFailed))
	f.refunds.AssertNotCalled(t, "BeginTx")
	assert.Empty(t, f.events.types())
}

func TestRefundService_Submit_ConcurrentOrderChangeRemovesProofs(t *testing.T) {
	ctx := context.Background()
	f := newRefundFixture()
	buyer := customer()
	order := deliveredOrder(buyer.UserID, nil, time.Hour)

	f.orders.On("GetByID", ctx, order.ID).Return(order, nil)
	f.refunds.On("GetOpenByOrder", ctx, order.ID).Return(nil, nil)
	f.store.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("https://cdn.keyvault.gg/proof", nil)
	f.store.On("Delete", mock.Anything, mock.AnythingOfType("string")).Return(nil)
	f.refunds.On("BeginTx", ctx).Return(f.tx, nil)
	f.refunds.On("Create", ctx, f.tx, mock.Anything).Return(nil)
	f.orders.On("UpdateStatus", ctx, f.tx, order.ID, model.OrderStatusDelivered, model.OrderStatusRefundRequested).Return(false, nil)
	f.tx.On("Rollback", ctx).Return(nil)

	_, err := f.svc.Submit(ctx, buyer, submission(order.ID, pngProof, pdfProof))

	assert.ErrorIs(t, err, model.ErrConcurrentUpdate)
	assert.True(t, f.tx.rolledBack)
	f.store.AssertNumberOfCalls(t, "Delete", 2)
	assert.Empty(t, f.notifier.sent)
}

func pendingRefund(order *model.Order, createdAgo time.Duration) *model.RefundRequest {
	return &model.RefundRequest{
		ID:          uuid.New(),
		OrderID:     order.ID,
		CustomerID:  order.CustomerID,
		SellerID:    order.SellerID,
		Reason:      model.RefundReasonInvalidKey,
		PixKey:      "buyer@example.com",
		PixKeyType:  model.PixKeyTypeEmail,
		OrderAmount: order.TransactionAmount,
		Status:      model.RefundStatusPending,
		CreatedAt:   fixedNow.Add(-createdAgo),
		UpdatedAt:   fixedNow.Add(-createdAgo),
	}
}

func TestRefundService_Decide_ApprovalDebitsSeller(t *testing.T) {
	ctx := context.Background()
	f := newRefundFixture()
	admin := adminActor()
	seller := uuid.New()
	order := deliveredOrder(uuid.New(), &seller, 2*time.Hour)
	order.PaymentStatus = model.OrderStatusRefundRequested
	refund := pendingRefund(order, time.Hour)

	f.refunds.On("GetByID", ctx, refund.ID).Return(refund, nil)
	f.orders.On("GetByID", ctx, order.ID).Return(order, nil)
	f.refunds.On("BeginTx", ctx).Return(f.tx, nil)
	f.refunds.On("UpdateDecision", ctx, f.tx, refund.ID, model.RefundStatusPending, model.RefundStatusApproved,
		(*string)(nil), ptr(fixedNow), ptr(admin.UserID)).Return(true, nil)
	f.orders.On("UpdateStatus", ctx, f.tx, order.ID, model.OrderStatusRefundRequested, model.OrderStatusRefunded).Return(true, nil)
	f.ledger.On("SumByOrder", ctx, f.tx, order.ID, model.LedgerKindSale).
		Return(map[uuid.UUID]decimal.Decimal{seller: dec("50")}, nil)
	f.ledger.On("Append", ctx, f.tx, mock.MatchedBy(func(entries []model.LedgerEntry) bool {
		return len(entries) == 1 &&
			entries[0].SellerID == seller &&
			entries[0].Kind == model.LedgerKindRefund &&
			entries[0].Bucket == model.BucketAvailable &&
			entries[0].Amount.Equal(dec("-50")) &&
			*entries[0].RefundID == refund.ID
	})).Return(nil)
	f.tx.On("Commit", ctx).Return(nil)

	view, err := f.svc.Decide(ctx, admin, refund.ID, model.RefundDecisionRequest{Status: model.RefundStatusApproved})

	require.NoError(t, err)
	assert.Equal(t, model.RefundStatusApproved, view.Status)
	assert.Equal(t, fixedNow, *view.ResolvedAt)
	assert.Equal(t, admin.UserID, *view.ResolvedBy)
	assert.Equal(t, []events.Type{events.RefundDecided, events.OrderStatusChanged}, f.events.types())
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, []string{order.CustomerEmail}, f.notifier.sent[0].To)
	assert.Same(t, notify.RefundDecidedTemplate, f.notifier.sent[0].Template)
	f.refunds.AssertExpectations(t)
	f.orders.AssertExpectations(t)
	f.ledger.AssertExpectations(t)
	f.tx.AssertExpectations(t)
}

func TestRefundService_Decide_RejectionRestoresOrder(t *testing.T) {
	ctx := context.Background()
	f := newRefundFixture()
	order := pendingOrder(uuid.New(), nil, "50.00")
	order.PaymentStatus = model.OrderStatusRefundRequested
	refund := pendingRefund(order, time.Hour)
	notes := "Key was redeemed on the buyer's account"

	f.refunds.On("GetByID", ctx, refund.ID).Return(refund, nil)
	f.orders.On("GetByID", ctx, order.ID).Return(order, nil)
	f.refunds.On("BeginTx", ctx).Return(f.tx, nil)
	f.refunds.On("UpdateDecision", ctx, f.tx, refund.ID, model.RefundStatusPending, model.RefundStatusRejected,
		&notes, mock.Anything, mock.Anything).Return(true, nil)
	f.orders.On("UpdateStatus", ctx, f.tx, order.ID, model.OrderStatusRefundRequested, model.OrderStatusApproved).Return(true, nil)
	f.tx.On("Commit", ctx).Return(nil)

	view, err := f.svc.Decide(ctx, adminActor(), refund.ID, model.RefundDecisionRequest{Status: model.RefundStatusRejected, AdminNotes: &notes})

	require.NoError(t, err)
	assert.Equal(t, model.RefundStatusRejected, view.Status)
	assert.Equal(t, notes, *view.AdminNotes)
	f.ledger.AssertNotCalled(t, "SumByOrder")
	f.ledger.AssertNotCalled(t, "Append")
	f.orders.AssertExpectations(t)
}

func TestRefundService_Decide_MoreInfoLeavesOrder(t *testing.T) {
	ctx := context.Background()
	f := newRefundFixture()
	order := deliveredOrder(uuid.New(), nil, time.Hour)
	order.PaymentStatus = model.OrderStatusRefundRequested
	refund := pendingRefund(order, time.Hour)

	f.refunds.On("GetByID", ctx, refund.ID).Return(refund, nil)
	f.orders.On("GetByID", ctx, order.ID).Return(order, nil)
	f.refunds.On("BeginTx", ctx).Return(f.tx, nil)
	f.refunds.On("UpdateDecision", ctx, f.tx, refund.ID, model.RefundStatusPending, model.RefundStatusMoreInfoRequested,
		(*string)(nil), (*time.Time)(nil), (*uuid.UUID)(nil)).Return(true, nil)
	f.tx.On("Commit", ctx).Return(nil)

	view, err := f.svc.Decide(ctx, adminActor(), refund.ID, model.RefundDecisionRequest{Status: model.RefundStatusMoreInfoRequested})

	require.NoError(t, err)
	assert.Equal(t, model.RefundStatusMoreInfoRequested, view.Status)
	assert.Nil(t, view.ResolvedAt)
	f.orders.AssertNotCalled(t, "UpdateStatus")
	assert.Equal(t, []events.Type{events.RefundDecided}, f.events.types())
	require.Len(t, f.notifier.sent, 1)
	assert.Same(t, notify.RefundMoreInfoTemplate, f.notifier.sent[0].Template)
}

func TestRefundService_Decide_Refusals(t *testing.T) {
	ctx := context.Background()
	order := pendingOrder(uuid.New(), nil, "50.00")
	order.PaymentStatus = model.OrderStatusRefunded

	t.Run("terminal refund", func(t *testing.T) {
		for _, status := range []model.RefundStatus{model.RefundStatusApproved, model.RefundStatusRejected} {
			f := newRefundFixture()
			refund := pendingRefund(order, time.Hour)
			refund.Status = status
			f.refunds.On("GetByID", ctx, refund.ID).Return(refund, nil)

			_, err := f.svc.Decide(ctx, adminActor(), refund.ID, model.RefundDecisionRequest{Status: model.RefundStatusInReview})

			assert.ErrorIs(t, err, model.ErrRefundTerminal)
			f.refunds.AssertNotCalled(t, "BeginTx")
		}
	})

	t.Run("not an admin", func(t *testing.T) {
		f := newRefundFixture()
		_, err := f.svc.Decide(ctx, sellerActor(uuid.New()), uuid.New(), model.RefundDecisionRequest{Status: model.RefundStatusApproved})
		assert.ErrorIs(t, err, model.ErrForbidden)
		f.refunds.AssertNotCalled(t, "GetByID")
	})

	t.Run("unknown status", func(t *testing.T) {
		f := newRefundFixture()
		refund := pendingRefund(order, time.Hour)
		f.refunds.On("GetByID", ctx, refund.ID).Return(refund, nil)

		_, err := f.svc.Decide(ctx, adminActor(), refund.ID, model.RefundDecisionRequest{Status: "escalated"})
		assert.True(t, model.HasCode(err, model.ErrCodeValidation))
	})

	t.Run("concurrent decision", func(t *testing.T) {
		f := newRefundFixture()
		open := pendingOrder(uuid.New(), nil, "50.00")
		open.PaymentStatus = model.OrderStatusRefundRequested
		refund := pendingRefund(open, time.Hour)
		f.refunds.On("GetByID", ctx, refund.ID).Return(refund, nil)
		f.orders.On("GetByID", ctx, open.ID).Return(open, nil)
		f.refunds.On("BeginTx", ctx).Return(f.tx, nil)
		f.refunds.On("UpdateDecision", ctx, f.tx, refund.ID, model.RefundStatusPending, model.RefundStatusRejected,
			mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
		f.tx.On("Rollback", ctx).Return(nil)

		_, err := f.svc.Decide(ctx, adminActor(), refund.ID, model.RefundDecisionRequest{Status: model.RefundStatusRejected})

		assert.ErrorIs(t, err, model.ErrConcurrentUpdate)
		assert.True(t, f.tx.rolledBack)
		f.orders.AssertNotCalled(t, "UpdateStatus")
		assert.Empty(t, f.events.types())
	})
}

func TestRefundService_SellerRespond(t *testing.T) {
	ctx := context.Background()
	seller := uuid.New()

	t.Run("late reply is accepted and flagged", func(t *testing.T) {
		f := newRefundFixture()
		order := deliveredOrder(uuid.New(), &seller, 30*time.Hour)
		order.PaymentStatus = model.OrderStatusRefundRequested
		refund := pendingRefund(order, 25*time.Hour)
		f.refunds.On("GetByID", ctx, refund.ID).Return(refund, nil)
		f.orders.On("GetByID", ctx, order.ID).Return(order, nil)
		f.refunds.On("SetSellerResponse", ctx, refund.ID, "Key works, see attached log", fixedNow).Return(true, nil)

		view, err := f.svc.SellerRespond(ctx, sellerActor(seller), refund.ID,
			model.SellerResponseRequest{Response: "  Key works, see attached log "})

		require.NoError(t, err)
		assert.Equal(t, "Key works, see attached log", *view.SellerResponse)
		assert.Equal(t, model.RefundStatusPending, view.Status)
		assert.False(t, view.SellerResponseExpired)
		require.Len(t, f.events.events, 1)
		assert.Equal(t, events.RefundSellerReplied, f.events.events[0].Type)
		assert.Equal(t, true, f.events.events[0].Data.(map[string]any)["late"])
	})

	t.Run("second reply", func(t *testing.T) {
		f := newRefundFixture()
		order := deliveredOrder(uuid.New(), &seller, time.Hour)
		refund := pendingRefund(order, time.Hour)
		refund.SellerResponse = ptr("first")
		f.refunds.On("GetByID", ctx, refund.ID).Return(refund, nil)
		f.orders.On("GetByID", ctx, order.ID).Return(order, nil)

		_, err := f.svc.SellerRespond(ctx, sellerActor(seller), refund.ID, model.SellerResponseRequest{Response: "again"})
		assert.ErrorIs(t, err, model.ErrSellerAlreadyReplied)
	})

	t.Run("lost race", func(t *testing.T) {
		f := newRefundFixture()
		order := deliveredOrder(uuid.New(), &seller, time.Hour)
		refund := pendingRefund(order, time.Hour)
		f.refunds.On("GetByID", ctx, refund.ID).Return(refund, nil)
		f.orders.On("GetByID", ctx, order.ID).Return(order, nil)
		f.refunds.On("SetSellerResponse", ctx, refund.ID, "reply", fixedNow).Return(false, nil)

		_, err := f.svc.SellerRespond(ctx, sellerActor(seller), refund.ID, model.SellerResponseRequest{Response: "reply"})
		assert.ErrorIs(t, err, model.ErrSellerAlreadyReplied)
	})

	t.Run("not pending", func(t *testing.T) {
		f := newRefundFixture()
		order := deliveredOrder(uuid.New(), &seller, time.Hour)
		refund := pendingRefund(order, time.Hour)
		refund.Status = model.RefundStatusInReview
		f.refunds.On("GetByID", ctx, refund.ID).Return(refund, nil)
		f.orders.On("GetByID", ctx, order.ID).Return(order, nil)

		_, err := f.svc.SellerRespond(ctx, sellerActor(seller), refund.ID, model.SellerResponseRequest{Response: "reply"})
		assert.True(t, model.HasCode(err, model.ErrCodeStateConflict))
	})

	t.Run("other seller", func(t *testing.T) {
		f := newRefundFixture()
		order := deliveredOrder(uuid.New(), &seller, time.Hour)
		refund := pendingRefund(order, time.Hour)
		f.refunds.On("GetByID", ctx, refund.ID).Return(refund, nil)
		f.orders.On("GetByID", ctx, order.ID).Return(order, nil)

		_, err := f.svc.SellerRespond(ctx, sellerActor(uuid.New()), refund.ID, model.SellerResponseRequest{Response: "reply"})
		assert.ErrorIs(t, err, model.ErrForbidden)
		f.refunds.AssertNotCalled(t, "SetSellerResponse")
	})
}

func TestRefundService_Get_DeadlineView(t *testing.T) {
	ctx := context.Background()
	f := newRefundFixture()
	buyer := customer()
	order := deliveredOrder(buyer.UserID, nil, 30*time.Hour)
	refund := pendingRefund(order, 25*time.Hour)
	f.refunds.On("GetByID", ctx, refund.ID).Return(refund, nil)

	view, err := f.svc.Get(ctx, buyer, refund.ID)

	require.NoError(t, err)
	assert.True(t, view.SellerResponseExpired)
	assert.Equal(t, model.RefundStatusPending, view.Status)
	assert.Equal(t, refund.CreatedAt.Add(24*time.Hour), view.SellerResponseDeadline)
	f.orders.AssertNotCalled(t, "GetByID")
}

func TestRefundService_Get_MultiSellerOrder(t *testing.T) {
	ctx := context.Background()
	f := newRefundFixture()
	sellerA, sellerB := uuid.New(), uuid.New()
	order := deliveredOrder(uuid.New(), nil, time.Hour)
	order.Items = []model.OrderItem{{SellerID: &sellerA}, {SellerID: &sellerB}}
	refund := pendingRefund(order, time.Hour)
	f.refunds.On("GetByID", ctx, refund.ID).Return(refund, nil)
	f.orders.On("GetByID", ctx, order.ID).Return(order, nil)

	_, err := f.svc.Get(ctx, sellerActor(sellerB), refund.ID)
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, sellerActor(uuid.New()), refund.ID)
	assert.ErrorIs(t, err, model.ErrForbidden)

	_, err = f.svc.Get(ctx, customer(), refund.ID)
	assert.ErrorIs(t, err, model.ErrForbidden)
}

func TestRefundService_List_ScopesByRole(t *testing.T) {
	ctx := context.Background()
	buyer := customer()
	seller := sellerActor(uuid.New())
	status := model.RefundStatusPending

	t.Run("customer", func(t *testing.T) {
		f := newRefundFixture()
		f.refunds.On("List", ctx, mock.MatchedBy(func(filter model.RefundFilter) bool {
			return filter.CustomerID != nil && *filter.CustomerID == buyer.UserID && filter.SellerID == nil
		})).Return([]model.RefundRequest{}, nil)

		_, err := f.svc.List(ctx, buyer, model.RefundFilter{SellerID: ptr(uuid.New())})
		require.NoError(t, err)
		f.refunds.AssertExpectations(t)
	})

	t.Run("seller", func(t *testing.T) {
		f := newRefundFixture()
		f.refunds.On("List", ctx, mock.MatchedBy(func(filter model.RefundFilter) bool {
			return filter.SellerID != nil && *filter.SellerID == seller.UserID && filter.CustomerID == nil
		})).Return([]model.RefundRequest{}, nil)

		_, err := f.svc.List(ctx, seller, model.RefundFilter{})
		require.NoError(t, err)
		f.refunds.AssertExpectations(t)
	})

	t.Run("admin keeps the filter", func(t *testing.T) {
		f := newRefundFixture()
		order := pendingOrder(uuid.New(), nil, "10.00")
		filter := model.RefundFilter{Status: &status, Limit: 20}
		f.refunds.On("List", ctx, filter).Return([]model.RefundRequest{*pendingRefund(order, time.Hour)}, nil)

		views, err := f.svc.List(ctx, adminActor(), filter)
		require.NoError(t, err)
		assert.Len(t, views, 1)
	})
}

func TestRefundService_Messages(t *testing.T) {
	ctx := context.Background()
	buyer := customer()
	order := deliveredOrder(buyer.UserID, nil, time.Hour)
	refund := pendingRefund(order, time.Hour)

	f := newRefundFixture()
	f.refunds.On("GetByID", ctx, refund.ID).Return(refund, nil)
	f.orders.On("GetByID", ctx, order.ID).Return(order, nil)
	f.refunds.On("CreateMessage", ctx, mock.MatchedBy(func(msg *model.RefundMessage) bool {
		return msg.Body == "The key says already redeemed" && msg.SenderRole == model.RoleCustomer && msg.RefundID == refund.ID
	})).Return(nil)

	msg, err := f.svc.AddMessage(ctx, buyer, refund.ID, model.RefundMessageRequest{Body: "The key says already redeemed "})
	require.NoError(t, err)
	assert.Equal(t, fixedNow, msg.CreatedAt)
	assert.Equal(t, []events.Type{events.RefundMessagePosted}, f.events.types())

	_, err = f.svc.AddMessage(ctx, customer(), refund.ID, model.RefundMessageRequest{Body: "hi"})
	assert.ErrorIs(t, err, model.ErrForbidden)

	_, err = f.svc.AddMessage(ctx, buyer, refund.ID, model.RefundMessageRequest{})
	assert.True(t, model.HasCode(err, model.ErrCodeValidation))

	f.refunds.On("ListMessages", ctx, refund.ID).Return([]model.RefundMessage{*msg}, nil)
	thread, err := f.svc.ListMessages(ctx, adminActor(), refund.ID)
	require.NoError(t, err)
	assert.Len(t, thread, 1)
}

func TestRefundService_EscalateOverdue(t *testing.T) {
	ctx := context.Background()
	f := newRefundFixture()
	seller := uuid.New()
	first := pendingRefund(deliveredOrder(uuid.New(), &seller, 30*time.Hour), 26*time.Hour)
	second := pendingRefund(deliveredOrder(uuid.New(), nil, 30*time.Hour), 25*time.Hour)

	f.refunds.On("ListUnansweredBefore", ctx, fixedNow.Add(-24*time.Hour), escalationBatchSize).
		Return([]model.RefundRequest{*first, *second}, nil)
	f.refunds.On("MarkEscalated", ctx, first.ID, fixedNow).Return(true, nil)
	f.refunds.On("MarkEscalated", ctx, second.ID, fixedNow).Return(false, nil)

	count, err := f.svc.EscalateOverdue(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.Len(t, f.events.events, 1)
	assert.Equal(t, events.RefundEscalated, f.events.events[0].Type)
	assert.Contains(t, f.events.events[0].Channels, events.AdminChannel)
	assert.Contains(t, f.events.events[0].Channels, events.UserChannel(seller))
	require.Len(t, f.notifier.sent, 1)
	assert.Same(t, notify.RefundEscalatedTemplate, f.notifier.sent[0].Template)
	f.refunds.AssertExpectations(t)
}
