package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"keyvault-glow/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SandboxDeclinedCard is the card number the sandbox always declines.
const SandboxDeclinedCard = "4000000000000002"

// SandboxGateway is an in-memory processor for local runs and tests. Card
// charges settle immediately; PIX and boleto charges are approved after a
// fixed number of status checks.
type SandboxGateway struct {
	mu            sync.Mutex
	payments      map[string]*sandboxPayment
	approveAfter  int
	ticketBaseURL string
	logger        zerolog.Logger
}

type sandboxPayment struct {
	status model.OrderStatus
	checks int
}

// NewSandboxGateway creates a sandbox that approves async charges after
// approveAfter polls.
func NewSandboxGateway(approveAfter int, ticketBaseURL string, logger zerolog.Logger) *SandboxGateway {
	if approveAfter < 1 {
		approveAfter = 1
	}
	return &SandboxGateway{
		payments:      make(map[string]*sandboxPayment),
		approveAfter:  approveAfter,
		ticketBaseURL: strings.TrimRight(ticketBaseURL, "/"),
		logger:        logger.With().Str("component", "sandbox_gateway").Logger(),
	}
}

func (g *SandboxGateway) CreatePayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err)
	}
	if !req.Amount.IsPositive() {
		return nil, rejected(nil, "Amount must be greater than zero")
	}

	id := "sbx_" + uuid.NewString()
	result := &PaymentResult{PaymentID: id, Status: model.OrderStatusPending}

	switch req.Method {
	case model.PaymentMethodCreditCard:
		if req.Card == nil || req.Card.Number == SandboxDeclinedCard {
			return nil, rejected(nil, "Your card was declined.")
		}
		result.Status = model.OrderStatusApproved
	case model.PaymentMethodPix:
		payload := fmt.Sprintf("00020126580014br.gov.bcb.pix0136%s5204000053039865405%s5802BR", req.OrderID, req.Amount.StringFixed(2))
		encoded, err := RenderPixQRCode(payload)
		if err != nil {
			return nil, unavailable(err)
		}
		result.PixQRCode = &payload
		result.PixQRCodeBase64 = &encoded
	case model.PaymentMethodTicket:
		url := fmt.Sprintf("%s/%s", g.ticketBaseURL, id)
		result.TicketURL = &url
	default:
		return nil, rejected(nil, "Unsupported payment method")
	}

	g.mu.Lock()
	g.payments[id] = &sandboxPayment{status: result.Status}
	g.mu.Unlock()

	g.logger.Debug().Str("payment_id", id).Str("status", string(result.Status)).Msg("sandbox payment created")
	return result, nil
}

func (g *SandboxGateway) CheckPaymentStatus(ctx context.Context, paymentID string) (model.OrderStatus, error) {
	if err := ctx.Err(); err != nil {
		return "", unavailable(err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.payments[paymentID]
	if !ok {
		return "", ErrUnknownPayment
	}
	if p.status == model.OrderStatusPending {
		p.checks++
		if p.checks >= g.approveAfter {
			p.status = model.OrderStatusApproved
		}
	}
	return p.status, nil
}

// CancelPayment marks the payment cancelled, whatever its current status.
func (g *SandboxGateway) CancelPayment(ctx context.Context, paymentID string) error {
	if err := ctx.Err(); err != nil {
		return unavailable(err)
	}
	if err := g.SetStatus(paymentID, model.OrderStatusCancelled); err != nil {
		return err
	}
	g.logger.Debug().Str("payment_id", paymentID).Msg("sandbox payment cancelled")
	return nil
}

// SetStatus forces a payment's status, as a processor dashboard would.
func (g *SandboxGateway) SetStatus(paymentID string, status model.OrderStatus) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.payments[paymentID]
	if !ok {
		return ErrUnknownPayment
	}
	p.status = status
	return nil
}
