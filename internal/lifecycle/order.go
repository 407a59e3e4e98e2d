// Package lifecycle holds the transition tables for orders and refund
// requests. Services never write a status that did not come out of here.
package lifecycle

import (
	"fmt"

	"keyvault-glow/internal/model"
)

// OrderEvent is something that happened to an order.
type OrderEvent string

const (
	EventPaymentPending   OrderEvent = "payment_pending"
	EventPaymentApproved  OrderEvent = "payment_approved"
	EventPaymentRejected  OrderEvent = "payment_rejected"
	EventPaymentCancelled OrderEvent = "payment_cancelled"
	EventDelivered        OrderEvent = "delivered"
	EventRefundOpened     OrderEvent = "refund_opened"
	EventRefundApproved   OrderEvent = "refund_approved"
	EventRefundRejected   OrderEvent = "refund_rejected"
)

type orderEdge struct {
	from  model.OrderStatus
	event OrderEvent
}

var orderTransitions = map[orderEdge]model.OrderStatus{
	{model.OrderStatusPending, EventPaymentPending}:   model.OrderStatusPending,
	{model.OrderStatusPending, EventPaymentApproved}:  model.OrderStatusApproved,
	{model.OrderStatusPending, EventPaymentRejected}:  model.OrderStatusRejected,
	{model.OrderStatusPending, EventPaymentCancelled}: model.OrderStatusCancelled,

	{model.OrderStatusApproved, EventPaymentApproved}: model.OrderStatusApproved,
	{model.OrderStatusApproved, EventDelivered}:       model.OrderStatusDelivered,
	{model.OrderStatusApproved, EventRefundOpened}:    model.OrderStatusRefundRequested,

	{model.OrderStatusDelivered, EventRefundOpened}: model.OrderStatusRefundRequested,

	{model.OrderStatusRefundRequested, EventRefundApproved}: model.OrderStatusRefunded,
}

// NextOrderStatus applies event to current. A rejected refund is resolved
// with RestoreAfterRefundRejection because the target depends on delivery.
func NextOrderStatus(current model.OrderStatus, event OrderEvent) (model.OrderStatus, error) {
	next, ok := orderTransitions[orderEdge{current, event}]
	if !ok {
		return current, model.NewDomainError(
			model.ErrCodeStateConflict,
			fmt.Sprintf("order in status %s cannot accept %s", current, event),
		)
	}
	return next, nil
}

// RestoreAfterRefundRejection returns the status an order goes back to when
// its refund request is rejected.
func RestoreAfterRefundRejection(order *model.Order) (model.OrderStatus, error) {
	if order.PaymentStatus != model.OrderStatusRefundRequested {
		return order.PaymentStatus, model.NewDomainError(
			model.ErrCodeStateConflict,
			fmt.Sprintf("order in status %s cannot accept %s", order.PaymentStatus, EventRefundRejected),
		)
	}
	if order.DeliveredAt != nil {
		return model.OrderStatusDelivered, nil
	}
	return model.OrderStatusApproved, nil
}

// EventForGatewayStatus maps a gateway-reported status onto an order event.
func EventForGatewayStatus(status model.OrderStatus) (OrderEvent, bool) {
	switch status {
	case model.OrderStatusPending:
		return EventPaymentPending, true
	case model.OrderStatusApproved:
		return EventPaymentApproved, true
	case model.OrderStatusRejected:
		return EventPaymentRejected, true
	case model.OrderStatusCancelled:
		return EventPaymentCancelled, true
	default:
		return "", false
	}
}
