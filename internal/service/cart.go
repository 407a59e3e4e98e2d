package service

import (
	"context"
	"fmt"
	"strings"

	"keyvault-glow/internal/coupon"
	"keyvault-glow/internal/model"
	"keyvault-glow/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// pricedCart is a checkout cart priced from the catalogue, never from the client.
type pricedCart struct {
	lines []model.CartLine
	items []model.OrderItem
}

// priceCart merges duplicate lines and snapshots name, price and seller of
// every product.
func priceCart(ctx context.Context, products repository.ProductRepository, logger zerolog.Logger, items []model.CheckoutItem) (*pricedCart, error) {
	if len(items) == 0 {
		return nil, model.NewFieldError("items", "cart is empty")
	}

	quantities := make(map[uuid.UUID]int, len(items))
	ids := make([]uuid.UUID, 0, len(items))
	for i, item := range items {
		if item.Quantity <= 0 {
			logger.Warn().
				Int("item_index", i).
				Str("product_id", item.ProductID.String()).
				Int("quantity", item.Quantity).
				Msg("invalid quantity")
			return nil, model.ErrInvalidQuantity
		}
		if _, ok := quantities[item.ProductID]; !ok {
			ids = append(ids, item.ProductID)
		}
		quantities[item.ProductID] += item.Quantity
	}

	for _, id := range ids {
		if quantities[id] > model.MaxItemQuantity {
			logger.Warn().Str("product_id", id.String()).Int("quantity", quantities[id]).Msg("quantity above limit")
			return nil, model.NewFieldError("quantity", fmt.Sprintf("quantity must be at most %d", model.MaxItemQuantity))
		}
	}

	found, err := products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	byID := make(map[uuid.UUID]model.Product, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}

	cart := &pricedCart{}
	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			logger.Warn().Str("product_id", id.String()).Msg("product not found or inactive")
			return nil, model.ErrProductNotFound
		}
		cart.lines = append(cart.lines, model.CartLine{
			ProductID: p.ID,
			SellerID:  p.SellerID,
			UnitPrice: p.Price,
			Quantity:  quantities[id],
		})
		cart.items = append(cart.items, model.OrderItem{
			ID:          uuid.New(),
			ProductID:   p.ID,
			ProductName: p.Name,
			UnitPrice:   p.Price,
			Quantity:    quantities[id],
			SellerID:    p.SellerID,
		})
	}

	if subtotal := coupon.Subtotal(cart.lines); subtotal.GreaterThan(model.MaxOrderAmount) {
		logger.Warn().Str("subtotal", subtotal.StringFixed(2)).Msg("order total above limit")
		return nil, model.NewFieldError("items", "order total exceeds the maximum allowed amount")
	}
	return cart, nil
}

// soleSeller returns the seller of every line, or nil when lines are mixed
// or first-party.
func (c *pricedCart) soleSeller() *uuid.UUID {
	var seller *uuid.UUID
	for i, item := range c.items {
		if item.SellerID == nil {
			return nil
		}
		if i == 0 {
			seller = item.SellerID
			continue
		}
		if *item.SellerID != *seller {
			return nil
		}
	}
	return seller
}

// displayName is the product name snapshot stored on the order.
func (c *pricedCart) displayName() string {
	if len(c.items) == 1 {
		return c.items[0].ProductName
	}
	return fmt.Sprintf("%s + %d more", c.items[0].ProductName, len(c.items)-1)
}

// couponFieldError binds coupon resolution failures to the coupon form field.
func couponFieldError(err error) error {
	domainErr, ok := model.AsDomainError(err)
	if !ok || !strings.HasPrefix(domainErr.Code, "COUPON_") {
		return err
	}
	return &model.DomainError{
		Code:    domainErr.Code,
		Message: domainErr.Message,
		Field:   coupon.FieldName,
	}
}
