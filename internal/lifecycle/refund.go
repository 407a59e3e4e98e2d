package lifecycle

import (
	"fmt"
	"time"

	"keyvault-glow/internal/model"
)

const (
	DefaultRefundWindow         = 48 * time.Hour
	DefaultSellerResponseWindow = 24 * time.Hour
)

var refundTransitions = map[model.RefundStatus][]model.RefundStatus{
	model.RefundStatusPending: {
		model.RefundStatusInReview,
		model.RefundStatusMoreInfoRequested,
		model.RefundStatusApproved,
		model.RefundStatusRejected,
	},
	model.RefundStatusInReview: {
		model.RefundStatusMoreInfoRequested,
		model.RefundStatusApproved,
		model.RefundStatusRejected,
	},
	model.RefundStatusMoreInfoRequested: {
		model.RefundStatusInReview,
		model.RefundStatusApproved,
		model.RefundStatusRejected,
	},
}

// NextRefundStatus validates an admin decision against the current status.
func NextRefundStatus(current, decision model.RefundStatus) (model.RefundStatus, error) {
	if current.IsTerminal() {
		return current, model.ErrRefundTerminal
	}
	if !decision.IsValid() {
		return current, model.NewFieldError("status", fmt.Sprintf("unknown refund status %q", decision))
	}
	for _, allowed := range refundTransitions[current] {
		if allowed == decision {
			return decision, nil
		}
	}
	return current, model.NewDomainError(
		model.ErrCodeStateConflict,
		fmt.Sprintf("refund in status %s cannot move to %s", current, decision),
	)
}

// RefundEligible reports whether the order accepts a new refund request at now.
func RefundEligible(order *model.Order, now time.Time, window time.Duration) bool {
	switch order.PaymentStatus {
	case model.OrderStatusApproved:
		return true
	case model.OrderStatusDelivered:
		if order.DeliveredAt == nil {
			return false
		}
		return now.Sub(*order.DeliveredAt) <= window
	default:
		return false
	}
}

// SellerResponseDeadline is when the seller's reply window closes.
func SellerResponseDeadline(created time.Time, window time.Duration) time.Time {
	return created.Add(window)
}

// SellerResponseExpired reports whether a pending request is past its seller
// deadline without a reply. It never changes the stored status.
func SellerResponseExpired(refund *model.RefundRequest, now time.Time, window time.Duration) bool {
	if refund.SellerResponse != nil || refund.Status != model.RefundStatusPending {
		return false
	}
	return now.After(SellerResponseDeadline(refund.CreatedAt, window))
}

// View decorates a refund with its deadline flags.
func View(refund *model.RefundRequest, now time.Time, window time.Duration) model.RefundView {
	return model.RefundView{
		RefundRequest:          *refund,
		SellerResponseDeadline: SellerResponseDeadline(refund.CreatedAt, window),
		SellerResponseExpired:  SellerResponseExpired(refund, now, window),
	}
}
