// Package gateway is the boundary to the external payment processor.
package gateway

import (
	"context"
	"errors"

	"keyvault-glow/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrUnknownPayment is returned when the processor has no record of a payment id.
var ErrUnknownPayment = errors.New("unknown payment")

// Gateway creates charges and reports their settlement status.
type Gateway interface {
	// CreatePayment submits a charge. A rejected charge returns a
	// GATEWAY_REJECTED domain error, a transport failure GATEWAY_UNAVAILABLE.
	CreatePayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error)

	// CheckPaymentStatus reports the current status of a previously created charge.
	CheckPaymentStatus(ctx context.Context, paymentID string) (model.OrderStatus, error)

	// CancelPayment voids a charge that has no order behind it. A charge
	// that already settled is refunded in full instead.
	CancelPayment(ctx context.Context, paymentID string) error
}

// CustomerInfo identifies the payer.
type CustomerInfo struct {
	ID    uuid.UUID
	Email string
	Name  string
	CPF   string
}

// PaymentRequest describes a single charge.
type PaymentRequest struct {
	OrderID     uuid.UUID
	Amount      decimal.Decimal
	Method      model.PaymentMethod
	Customer    CustomerInfo
	Card        *model.CardData
	Description string
}

// PaymentResult is what the processor returned for a new charge. Only the
// artifacts matching the payment method are set.
type PaymentResult struct {
	PaymentID       string
	Status          model.OrderStatus
	PixQRCode       *string
	PixQRCodeBase64 *string
	TicketURL       *string
}

// WebhookEvent is a verified processor notification about one payment.
type WebhookEvent struct {
	ID        string
	Type      string
	PaymentID string
	Status    model.OrderStatus
	Relevant  bool
}

func rejected(cause error, message string) error {
	return model.WrapDomainError(model.ErrCodeGatewayRejected, cause, message)
}

func unavailable(cause error) error {
	return model.WrapDomainError(model.ErrCodeGatewayUnavailable, cause, "Payment provider is unavailable, please try again")
}
