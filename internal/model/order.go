package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order represents a checkout transaction and its payment state.
type Order struct {
	ID                uuid.UUID       `json:"id" db:"id"`
	CustomerID        uuid.UUID       `json:"customerId" db:"customer_id"`
	CustomerEmail     string          `json:"customerEmail" db:"customer_email"`
	CustomerName      string          `json:"customerName" db:"customer_name"`
	ProductID         uuid.UUID       `json:"productId" db:"product_id"`
	ProductName       string          `json:"productName" db:"product_name"`
	ProductPrice      decimal.Decimal `json:"productPrice" db:"product_price"`
	TransactionAmount decimal.Decimal `json:"transactionAmount" db:"transaction_amount"`
	PaymentMethod     PaymentMethod   `json:"paymentMethod" db:"payment_method"`
	PaymentStatus     OrderStatus     `json:"paymentStatus" db:"payment_status"`
	CouponCode        *string         `json:"couponCode,omitempty" db:"coupon_code"`
	CouponSellerID    *uuid.UUID      `json:"couponSellerId,omitempty" db:"coupon_seller_id"`
	DiscountAmount    decimal.Decimal `json:"discountAmount" db:"discount_amount"`
	GatewayPaymentID  *string         `json:"gatewayPaymentId,omitempty" db:"gateway_payment_id"`
	PixQRCode         *string         `json:"pixQrCode,omitempty" db:"pix_qr_code"`
	PixQRCodeBase64   *string         `json:"pixQrCodeBase64,omitempty" db:"pix_qr_code_base64"`
	TicketURL         *string         `json:"ticketUrl,omitempty" db:"ticket_url"`
	SellerID          *uuid.UUID      `json:"sellerId,omitempty" db:"seller_id"`
	DeliveredAt       *time.Time      `json:"deliveredAt,omitempty" db:"delivered_at"`
	CreatedAt         time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time       `json:"updatedAt" db:"updated_at"`
	Items             []OrderItem     `json:"items,omitempty" db:"-"`
}

// InvolvesSeller reports whether any line of the order belongs to sellerID.
func (o *Order) InvolvesSeller(sellerID uuid.UUID) bool {
	if o.SellerID != nil && *o.SellerID == sellerID {
		return true
	}
	for _, item := range o.Items {
		if item.SellerID != nil && *item.SellerID == sellerID {
			return true
		}
	}
	return false
}

// OrderItem represents a line item in an order.
type OrderItem struct {
	ID          uuid.UUID       `json:"-" db:"id"`
	OrderID     uuid.UUID       `json:"-" db:"order_id"`
	ProductID   uuid.UUID       `json:"productId" db:"product_id"`
	ProductName string          `json:"productName" db:"product_name"`
	UnitPrice   decimal.Decimal `json:"unitPrice" db:"unit_price"`
	Quantity    int             `json:"quantity" db:"quantity"`
	SellerID    *uuid.UUID      `json:"sellerId,omitempty" db:"seller_id"`
}

// Subtotal returns unit price times quantity.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Checkout bounds. MaxOrderAmount is the largest value the NUMERIC(12,2)
// amount columns hold.
const MaxItemQuantity = 1000

var MaxOrderAmount = decimal.RequireFromString("9999999999.99")

// CheckoutRequest represents the request payload for creating an order.
type CheckoutRequest struct {
	Items         []CheckoutItem `json:"items" validate:"required,min=1,dive"`
	PaymentMethod PaymentMethod  `json:"paymentMethod" validate:"required,oneof=pix credit_card ticket"`
	CouponCode    *string        `json:"couponCode,omitempty" validate:"omitempty,max=64"`
	CPF           string         `json:"cpf" validate:"omitempty,min=11,max=14"`
	Card          *CardData      `json:"card,omitempty"`
}

// CheckoutItem is a single cart line submitted at checkout.
type CheckoutItem struct {
	ProductID uuid.UUID `json:"productId" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,gt=0,max=1000"`
}

// CardData carries the raw card fields collected by the checkout form.
type CardData struct {
	Number     string `json:"number"`
	HolderName string `json:"holderName"`
	CVV        string `json:"cvv"`
	ExpMonth   int    `json:"expMonth"`
	ExpYear    int    `json:"expYear"`
}

// PaymentStatusResponse is returned by the payment status poll endpoint.
type PaymentStatusResponse struct {
	OrderID uuid.UUID   `json:"orderId"`
	Status  OrderStatus `json:"status"`
	Settled bool        `json:"settled"`
}
