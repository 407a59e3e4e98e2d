// Package ledger splits order money across the sellers whose lines it paid for.
package ledger

import (
	"keyvault-glow/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Share is one party's portion of an order amount. SellerID uuid.Nil is the
// platform's own (first-party) portion.
type Share struct {
	SellerID uuid.UUID
	Amount   decimal.Decimal
}

// SellerWeights groups line subtotals by seller in order of first appearance,
// with the platform's group first. A seller-scoped coupon discount is taken
// from the issuing seller's weight only.
func SellerWeights(items []model.OrderItem, couponSellerID *uuid.UUID, discount decimal.Decimal) []Share {
	index := map[uuid.UUID]int{uuid.Nil: 0}
	weights := []Share{{SellerID: uuid.Nil, Amount: decimal.Zero}}

	for _, item := range items {
		seller := uuid.Nil
		if item.SellerID != nil {
			seller = *item.SellerID
		}
		pos, ok := index[seller]
		if !ok {
			pos = len(weights)
			index[seller] = pos
			weights = append(weights, Share{SellerID: seller, Amount: decimal.Zero})
		}
		weights[pos].Amount = weights[pos].Amount.Add(item.Subtotal())
	}

	if couponSellerID != nil {
		if pos, ok := index[*couponSellerID]; ok {
			net := weights[pos].Amount.Sub(discount)
			if net.IsNegative() {
				net = decimal.Zero
			}
			weights[pos].Amount = net
		}
	}

	if weights[0].Amount.IsZero() {
		weights = weights[1:]
	}
	return weights
}

// Allocate splits total across weights pro rata, rounded to cents. The last
// share absorbs the rounding remainder so the shares always sum to total.
func Allocate(weights []Share, total decimal.Decimal) []Share {
	if len(weights) == 0 {
		return nil
	}

	sum := decimal.Zero
	for _, w := range weights {
		sum = sum.Add(w.Amount)
	}

	shares := make([]Share, len(weights))
	allocated := decimal.Zero
	for i, w := range weights {
		var amount decimal.Decimal
		switch {
		case i == len(weights)-1:
			amount = total.Sub(allocated)
		case sum.IsZero():
			amount = decimal.Zero
		default:
			amount = total.Mul(w.Amount).Div(sum).Round(2)
		}
		shares[i] = Share{SellerID: w.SellerID, Amount: amount}
		allocated = allocated.Add(amount)
	}
	return shares
}

// SellerShares drops the platform's portion.
func SellerShares(shares []Share) []Share {
	out := make([]Share, 0, len(shares))
	for _, s := range shares {
		if s.SellerID == uuid.Nil || s.Amount.IsZero() {
			continue
		}
		out = append(out, s)
	}
	return out
}

// ForOrder is the seller split of an order's transaction amount.
func ForOrder(order *model.Order) []Share {
	weights := SellerWeights(order.Items, order.CouponSellerID, order.DiscountAmount)
	return SellerShares(Allocate(weights, order.TransactionAmount))
}
