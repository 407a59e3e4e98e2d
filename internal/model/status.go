package model

import "fmt"

// OrderStatus tracks the payment lifecycle of an order.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusApproved        OrderStatus = "approved"
	OrderStatusDelivered       OrderStatus = "delivered"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusRejected        OrderStatus = "rejected"
	OrderStatusRefunded        OrderStatus = "refunded"
	OrderStatusRefundRequested OrderStatus = "refund_requested"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusApproved,
	OrderStatusDelivered,
	OrderStatusCancelled,
	OrderStatusRejected,
	OrderStatusRefunded,
	OrderStatusRefundRequested,
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsPaymentSettled reports whether polling for this status can stop.
func (s OrderStatus) IsPaymentSettled() bool {
	return s != OrderStatusPending
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}

// PaymentMethod is the customer's chosen way of paying.
type PaymentMethod string

const (
	PaymentMethodPix        PaymentMethod = "pix"
	PaymentMethodCreditCard PaymentMethod = "credit_card"
	PaymentMethodTicket     PaymentMethod = "ticket"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodPix,
	PaymentMethodCreditCard,
	PaymentMethodTicket,
}

func (m PaymentMethod) String() string {
	return string(m)
}

// IsValid reports whether the value is a known PaymentMethod.
func (m PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == m {
			return true
		}
	}
	return false
}

// RefundStatus tracks a refund request through review.
type RefundStatus string

const (
	RefundStatusPending           RefundStatus = "pending"
	RefundStatusInReview          RefundStatus = "in_review"
	RefundStatusApproved          RefundStatus = "approved"
	RefundStatusRejected          RefundStatus = "rejected"
	RefundStatusMoreInfoRequested RefundStatus = "more_info_requested"
)

var validRefundStatuses = []RefundStatus{
	RefundStatusPending,
	RefundStatusInReview,
	RefundStatusApproved,
	RefundStatusRejected,
	RefundStatusMoreInfoRequested,
}

func (s RefundStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known RefundStatus.
func (s RefundStatus) IsValid() bool {
	for _, candidate := range validRefundStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further decision can change the request.
func (s RefundStatus) IsTerminal() bool {
	return s == RefundStatusApproved || s == RefundStatusRejected
}

// ParseRefundStatus converts raw input into a RefundStatus.
func ParseRefundStatus(value string) (RefundStatus, error) {
	for _, candidate := range validRefundStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid refund status %q", value)
}

// RefundReason is the fixed set of reasons a customer can pick.
type RefundReason string

const (
	RefundReasonNotReceived      RefundReason = "product_not_received"
	RefundReasonNotAsDescribed   RefundReason = "product_not_as_described"
	RefundReasonInvalidKey       RefundReason = "invalid_key"
	RefundReasonAccountRecovered RefundReason = "account_recovered"
	RefundReasonDuplicateCharge  RefundReason = "duplicate_charge"
	RefundReasonOther            RefundReason = "other"
)

var validRefundReasons = []RefundReason{
	RefundReasonNotReceived,
	RefundReasonNotAsDescribed,
	RefundReasonInvalidKey,
	RefundReasonAccountRecovered,
	RefundReasonDuplicateCharge,
	RefundReasonOther,
}

// IsValid reports whether the value is one of the fixed refund reasons.
func (r RefundReason) IsValid() bool {
	for _, candidate := range validRefundReasons {
		if candidate == r {
			return true
		}
	}
	return false
}

// PixKeyType identifies the format of a customer's PIX payout key.
type PixKeyType string

const (
	PixKeyTypeCPF    PixKeyType = "cpf"
	PixKeyTypeCNPJ   PixKeyType = "cnpj"
	PixKeyTypeEmail  PixKeyType = "email"
	PixKeyTypePhone  PixKeyType = "phone"
	PixKeyTypeRandom PixKeyType = "random"
)

var validPixKeyTypes = []PixKeyType{
	PixKeyTypeCPF,
	PixKeyTypeCNPJ,
	PixKeyTypeEmail,
	PixKeyTypePhone,
	PixKeyTypeRandom,
}

// IsValid reports whether the value is a known PIX key type.
func (t PixKeyType) IsValid() bool {
	for _, candidate := range validPixKeyTypes {
		if candidate == t {
			return true
		}
	}
	return false
}
