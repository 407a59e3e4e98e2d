package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	MinRefundProofs = 1
	MaxRefundProofs = 5
)

// RefundRequest is a customer's dispute over a paid order.
type RefundRequest struct {
	ID                uuid.UUID       `json:"id" db:"id"`
	OrderID           uuid.UUID       `json:"orderId" db:"order_id"`
	CustomerID        uuid.UUID       `json:"customerId" db:"customer_id"`
	SellerID          *uuid.UUID      `json:"sellerId,omitempty" db:"seller_id"`
	Reason            RefundReason    `json:"reason" db:"reason"`
	Description       *string         `json:"description,omitempty" db:"description"`
	ProofURLs         []string        `json:"proofUrls" db:"proof_urls"`
	PixKey            string          `json:"pixKey" db:"pix_key"`
	PixKeyType        PixKeyType      `json:"pixKeyType" db:"pix_key_type"`
	OrderAmount       decimal.Decimal `json:"orderAmount" db:"order_amount"`
	Status            RefundStatus    `json:"status" db:"status"`
	AdminNotes        *string         `json:"adminNotes,omitempty" db:"admin_notes"`
	SellerResponse    *string         `json:"sellerResponse,omitempty" db:"seller_response"`
	SellerRespondedAt *time.Time      `json:"sellerRespondedAt,omitempty" db:"seller_responded_at"`
	ResolvedAt        *time.Time      `json:"resolvedAt,omitempty" db:"resolved_at"`
	ResolvedBy        *uuid.UUID      `json:"resolvedBy,omitempty" db:"resolved_by"`
	EscalatedAt       *time.Time      `json:"escalatedAt,omitempty" db:"escalated_at"`
	CreatedAt         time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time       `json:"updatedAt" db:"updated_at"`
}

// RefundView decorates a request with its seller response deadline.
type RefundView struct {
	RefundRequest
	SellerResponseDeadline time.Time `json:"sellerResponseDeadline"`
	SellerResponseExpired  bool      `json:"sellerResponseExpired"`
}

// RefundFilter narrows refund listings. Zero values match everything.
type RefundFilter struct {
	Status     *RefundStatus
	CustomerID *uuid.UUID
	SellerID   *uuid.UUID
	Limit      int
	Offset     int
}

// ProofFile is an uploaded piece of refund evidence before it is stored.
type ProofFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// SubmitRefundInput carries a customer's refund submission.
type SubmitRefundInput struct {
	OrderID     uuid.UUID    `validate:"required"`
	Reason      RefundReason `validate:"required"`
	Description *string      `validate:"omitempty,max=2000"`
	PixKey      string       `validate:"required,max=140"`
	PixKeyType  PixKeyType   `validate:"required"`
	Proofs      []ProofFile
}

// SellerResponseRequest is the body of a seller's reply to a refund.
type SellerResponseRequest struct {
	Response string `json:"response" validate:"required,min=1,max=2000"`
}

// RefundDecisionRequest is the body of an admin decision.
type RefundDecisionRequest struct {
	Status     RefundStatus `json:"status" validate:"required"`
	AdminNotes *string      `json:"adminNotes,omitempty" validate:"omitempty,max=2000"`
}

// RefundMessage is one entry of the discussion thread on a refund.
type RefundMessage struct {
	ID         uuid.UUID `json:"id" db:"id"`
	RefundID   uuid.UUID `json:"refundId" db:"refund_id"`
	SenderID   uuid.UUID `json:"senderId" db:"sender_id"`
	SenderRole Role      `json:"senderRole" db:"sender_role"`
	Body       string    `json:"body" db:"body"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}

// RefundMessageRequest is the body of a new thread message.
type RefundMessageRequest struct {
	Body string `json:"body" validate:"required,min=1,max=4000"`
}
