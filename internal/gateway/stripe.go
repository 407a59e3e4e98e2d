package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"keyvault-glow/internal/model"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/paymentintent"
	"github.com/stripe/stripe-go/v83/paymentmethod"
	"github.com/stripe/stripe-go/v83/refund"
	"github.com/stripe/stripe-go/v83/webhook"
)

// StripeConfig holds the Stripe credentials.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
}

// StripeGateway charges through Stripe payment intents.
type StripeGateway struct {
	webhookSecret string
	currency      string
	logger        zerolog.Logger

	newMethod    func(*stripe.PaymentMethodParams) (*stripe.PaymentMethod, error)
	newIntent    func(*stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	getIntent    func(string, *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	cancelIntent func(string, *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error)
	newRefund    func(*stripe.RefundParams) (*stripe.Refund, error)
}

// NewStripeGateway configures the stripe client key and returns the gateway.
func NewStripeGateway(cfg StripeConfig, logger zerolog.Logger) (*StripeGateway, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, fmt.Errorf("stripe secret key is required")
	}
	stripe.Key = cfg.SecretKey

	currency := strings.ToLower(cfg.Currency)
	if currency == "" {
		currency = "brl"
	}

	return &StripeGateway{
		webhookSecret: cfg.WebhookSecret,
		currency:      currency,
		logger:        logger.With().Str("component", "stripe_gateway").Logger(),
		newMethod:     paymentmethod.New,
		newIntent:     paymentintent.New,
		getIntent:     paymentintent.Get,
		cancelIntent:  paymentintent.Cancel,
		newRefund:     refund.New,
	}, nil
}

// CreatePayment creates and confirms a payment intent for the order.
func (g *StripeGateway) CreatePayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error) {
	methodType, methodParams := g.paymentMethodParams(req)

	method, err := g.newMethod(methodParams)
	if err != nil {
		return nil, g.classify(err, req)
	}

	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(req.Amount.Shift(2).Round(0).IntPart()),
		Currency:           stripe.String(g.currency),
		PaymentMethod:      stripe.String(method.ID),
		PaymentMethodTypes: stripe.StringSlice([]string{methodType}),
		Confirm:            stripe.Bool(true),
		Description:        stripe.String(req.Description),
	}
	if req.Customer.Email != "" {
		params.ReceiptEmail = stripe.String(req.Customer.Email)
	}
	params.AddMetadata("order_id", req.OrderID.String())
	params.AddMetadata("customer_id", req.Customer.ID.String())

	intent, err := g.newIntent(params)
	if err != nil {
		return nil, g.classify(err, req)
	}

	status := MapIntentStatus(intent)
	if status == model.OrderStatusRejected {
		msg := "Payment was declined"
		if intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
			msg = intent.LastPaymentError.Msg
		}
		return nil, rejected(nil, msg)
	}

	result := &PaymentResult{
		PaymentID: intent.ID,
		Status:    status,
	}
	g.attachArtifacts(intent, req.Method, result)

	g.logger.Info().
		Str("order_id", req.OrderID.String()).
		Str("payment_id", intent.ID).
		Str("status", string(status)).
		Msg("payment intent created")

	return result, nil
}

// CheckPaymentStatus retrieves the payment intent and maps its status.
func (g *StripeGateway) CheckPaymentStatus(ctx context.Context, paymentID string) (model.OrderStatus, error) {
	intent, err := g.getIntent(paymentID, nil)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == 404 {
			return "", ErrUnknownPayment
		}
		return "", unavailable(err)
	}
	return MapIntentStatus(intent), nil
}

// CancelPayment cancels an unsettled intent or refunds a succeeded one.
func (g *StripeGateway) CancelPayment(ctx context.Context, paymentID string) error {
	intent, err := g.getIntent(paymentID, nil)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == 404 {
			return ErrUnknownPayment
		}
		return unavailable(err)
	}

	switch intent.Status {
	case stripe.PaymentIntentStatusCanceled:
		return nil
	case stripe.PaymentIntentStatusSucceeded:
		params := &stripe.RefundParams{PaymentIntent: stripe.String(paymentID)}
		params.AddMetadata("reason", "order_not_persisted")
		if _, err := g.newRefund(params); err != nil {
			return unavailable(err)
		}
		g.logger.Warn().Str("payment_id", paymentID).Msg("settled payment refunded")
	default:
		params := &stripe.PaymentIntentCancelParams{CancellationReason: stripe.String("abandoned")}
		if _, err := g.cancelIntent(paymentID, params); err != nil {
			return unavailable(err)
		}
		g.logger.Warn().Str("payment_id", paymentID).Msg("payment intent cancelled")
	}
	return nil
}

// ParseWebhook verifies the signature and extracts the payment intent update.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	if g.webhookSecret == "" {
		return nil, fmt.Errorf("stripe webhook secret is not configured")
	}
	event, err := webhook.ConstructEvent(payload, signature, g.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook signature: %w", err)
	}

	out := &WebhookEvent{ID: event.ID, Type: string(event.Type)}
	switch event.Type {
	case "payment_intent.succeeded",
		"payment_intent.payment_failed",
		"payment_intent.canceled",
		"payment_intent.processing":
	default:
		return out, nil
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, fmt.Errorf("failed to decode payment intent: %w", err)
	}

	out.PaymentID = intent.ID
	out.Status = MapIntentStatus(&intent)
	if event.Type == "payment_intent.payment_failed" {
		out.Status = model.OrderStatusRejected
	}
	out.Relevant = true
	return out, nil
}

func (g *StripeGateway) paymentMethodParams(req PaymentRequest) (string, *stripe.PaymentMethodParams) {
	billing := &stripe.PaymentMethodBillingDetailsParams{
		Name:  stripe.String(req.Customer.Name),
		Email: stripe.String(req.Customer.Email),
	}

	switch req.Method {
	case model.PaymentMethodCreditCard:
		card := &stripe.PaymentMethodCardParams{}
		if req.Card != nil {
			card.Number = stripe.String(req.Card.Number)
			card.ExpMonth = stripe.Int64(int64(req.Card.ExpMonth))
			card.ExpYear = stripe.Int64(int64(req.Card.ExpYear))
			card.CVC = stripe.String(req.Card.CVV)
			billing.Name = stripe.String(req.Card.HolderName)
		}
		return "card", &stripe.PaymentMethodParams{
			Type:           stripe.String("card"),
			Card:           card,
			BillingDetails: billing,
		}
	case model.PaymentMethodTicket:
		return "boleto", &stripe.PaymentMethodParams{
			Type:           stripe.String("boleto"),
			Boleto:         &stripe.PaymentMethodBoletoParams{TaxID: stripe.String(req.Customer.CPF)},
			BillingDetails: billing,
		}
	default:
		return "pix", &stripe.PaymentMethodParams{
			Type:           stripe.String("pix"),
			Pix:            &stripe.PaymentMethodPixParams{},
			BillingDetails: billing,
		}
	}
}

func (g *StripeGateway) attachArtifacts(intent *stripe.PaymentIntent, method model.PaymentMethod, result *PaymentResult) {
	if intent.NextAction == nil {
		return
	}

	switch method {
	case model.PaymentMethodPix:
		pix := intent.NextAction.PixDisplayQRCode
		if pix == nil || pix.Data == "" {
			return
		}
		data := pix.Data
		result.PixQRCode = &data
		encoded, err := RenderPixQRCode(data)
		if err != nil {
			g.logger.Warn().Err(err).Str("payment_id", intent.ID).Msg("failed to render pix qr code")
			return
		}
		result.PixQRCodeBase64 = &encoded
	case model.PaymentMethodTicket:
		boleto := intent.NextAction.BoletoDisplayDetails
		if boleto == nil || boleto.HostedVoucherURL == "" {
			return
		}
		url := boleto.HostedVoucherURL
		result.TicketURL = &url
	}
}

func (g *StripeGateway) classify(err error, req PaymentRequest) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		g.logger.Warn().
			Str("order_id", req.OrderID.String()).
			Str("type", string(stripeErr.Type)).
			Str("code", string(stripeErr.Code)).
			Int("http_status", stripeErr.HTTPStatusCode).
			Msg("stripe request failed")

		if stripeErr.Type == stripe.ErrorTypeCard || stripeErr.Type == stripe.ErrorTypeInvalidRequest {
			msg := stripeErr.Msg
			if msg == "" {
				msg = "Payment was declined"
			}
			return rejected(err, msg)
		}
	}
	return unavailable(err)
}

// MapIntentStatus maps a payment intent onto the order payment status.
func MapIntentStatus(intent *stripe.PaymentIntent) model.OrderStatus {
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return model.OrderStatusApproved
	case stripe.PaymentIntentStatusCanceled:
		return model.OrderStatusCancelled
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		if intent.LastPaymentError != nil {
			return model.OrderStatusRejected
		}
		return model.OrderStatusPending
	default:
		return model.OrderStatusPending
	}
}
