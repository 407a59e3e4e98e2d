package handler

import (
	"context"
	"io"
	"net/http"

	"keyvault-glow/internal/gateway"
	"keyvault-glow/internal/metrics"
	"keyvault-glow/internal/model"
	"keyvault-glow/internal/service"

	"github.com/rs/zerolog"
)

const (
	maxWebhookBody  = 64 << 10
	signatureHeader = "Stripe-Signature"
)

// WebhookParser verifies and decodes a processor notification.
type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (*gateway.WebhookEvent, error)
}

// EventGuard deduplicates redelivered notifications.
type EventGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

// PaymentStatusApplier applies a gateway-reported status to its order.
type PaymentStatusApplier interface {
	ApplyPaymentStatus(ctx context.Context, paymentID string, status model.OrderStatus, source string) (*model.Order, error)
}

// WebhookHandler receives payment processor notifications.
type WebhookHandler struct {
	parser  WebhookParser
	guard   EventGuard
	orders  PaymentStatusApplier
	metrics *metrics.Domain
	logger  zerolog.Logger
}

// NewWebhookHandler creates a webhook handler. guard may be nil, in which
// case redeliveries rely on the idempotent status transition alone.
func NewWebhookHandler(parser WebhookParser, guard EventGuard, orders PaymentStatusApplier, recorder *metrics.Domain, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		parser:  parser,
		guard:   guard,
		orders:  orders,
		metrics: recorder,
		logger:  logger.With().Str("handler", "webhook").Logger(),
	}
}

// Payment handles POST /api/webhooks/payments requests.
func (h *WebhookHandler) Payment(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		badRequest(w, "failed to read payload", h.logger)
		return
	}

	event, err := h.parser.ParseWebhook(payload, r.Header.Get(signatureHeader))
	if err != nil {
		h.metrics.WebhookEvent("invalid")
		writeError(w, http.StatusBadRequest, model.ErrorResponse{
			Error:   model.ErrCodeValidation,
			Message: "invalid webhook",
		}, h.logger)
		return
	}

	logger := h.logger.With().Str("event_id", event.ID).Str("event_type", event.Type).Logger()

	if !event.Relevant {
		h.metrics.WebhookEvent("ignored")
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	if h.guard != nil {
		seen, err := h.guard.CheckAndMark(r.Context(), event.ID)
		if err != nil {
			logger.Error().Err(err).Msg("idempotency check failed")
			writeServiceError(w, model.WrapDomainError(model.ErrCodeGatewayUnavailable, err, "temporarily unable to process webhook"), logger)
			return
		}
		if seen {
			h.metrics.WebhookEvent("duplicate")
			writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
			return
		}
	}

	order, err := h.orders.ApplyPaymentStatus(r.Context(), event.PaymentID, event.Status, service.SourceWebhook)
	if err != nil {
		if h.guard != nil {
			if forgetErr := h.guard.Forget(r.Context(), event.ID); forgetErr != nil {
				logger.Warn().Err(forgetErr).Msg("failed to release idempotency key")
			}
		}
		h.metrics.WebhookEvent("failed")
		logger.Warn().Err(err).Str("payment_id", event.PaymentID).Msg("webhook processing failed")
		writeServiceError(w, err, logger)
		return
	}

	h.metrics.WebhookEvent("processed")
	logger.Info().
		Str("order_id", order.ID.String()).
		Str("status", string(order.PaymentStatus)).
		Msg("webhook processed")
	writeJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}
