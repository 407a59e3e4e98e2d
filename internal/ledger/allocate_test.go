package ledger

import (
	"testing"

	"keyvault-glow/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(seller *uuid.UUID, price string, qty int) model.OrderItem {
	return model.OrderItem{
		ProductID: uuid.New(),
		UnitPrice: decimal.RequireFromString(price),
		Quantity:  qty,
		SellerID:  seller,
	}
}

func TestForOrder_GlobalCouponSplitsProRata(t *testing.T) {
	sellerX := uuid.New()
	sellerY := uuid.New()

	order := &model.Order{
		Items: []model.OrderItem{
			item(&sellerX, "50.00", 1),
			item(&sellerY, "50.00", 1),
		},
		DiscountAmount:    decimal.RequireFromString("10.00"),
		TransactionAmount: decimal.RequireFromString("90.00"),
	}

	shares := ForOrder(order)

	require.Len(t, shares, 2)
	assert.Equal(t, sellerX, shares[0].SellerID)
	assert.True(t, shares[0].Amount.Equal(decimal.RequireFromString("45.00")))
	assert.True(t, shares[1].Amount.Equal(decimal.RequireFromString("45.00")))
}

func TestForOrder_SellerCouponOnlyReducesIssuer(t *testing.T) {
	sellerX := uuid.New()
	sellerY := uuid.New()

	order := &model.Order{
		Items: []model.OrderItem{
			item(&sellerX, "50.00", 1),
			item(&sellerY, "30.00", 1),
		},
		CouponSellerID:    &sellerX,
		DiscountAmount:    decimal.RequireFromString("10.00"),
		TransactionAmount: decimal.RequireFromString("70.00"),
	}

	shares := ForOrder(order)

	require.Len(t, shares, 2)
	assert.True(t, shares[0].Amount.Equal(decimal.RequireFromString("40.00")), shares[0].Amount.String())
	assert.True(t, shares[1].Amount.Equal(decimal.RequireFromString("30.00")), shares[1].Amount.String())
}

func TestForOrder_FirstPartyLinesStayWithPlatform(t *testing.T) {
	seller := uuid.New()

	order := &model.Order{
		Items: []model.OrderItem{
			item(nil, "20.00", 2),
			item(&seller, "60.00", 1),
		},
		DiscountAmount:    decimal.Zero,
		TransactionAmount: decimal.RequireFromString("100.00"),
	}

	shares := ForOrder(order)

	require.Len(t, shares, 1)
	assert.Equal(t, seller, shares[0].SellerID)
	assert.True(t, shares[0].Amount.Equal(decimal.RequireFromString("60.00")))
}

func TestAllocate_RemainderGoesToLastShare(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	weights := []Share{
		{SellerID: a, Amount: decimal.NewFromInt(1)},
		{SellerID: b, Amount: decimal.NewFromInt(1)},
		{SellerID: c, Amount: decimal.NewFromInt(1)},
	}

	shares := Allocate(weights, decimal.RequireFromString("10.00"))

	require.Len(t, shares, 3)
	assert.True(t, shares[0].Amount.Equal(decimal.RequireFromString("3.33")))
	assert.True(t, shares[1].Amount.Equal(decimal.RequireFromString("3.33")))
	assert.True(t, shares[2].Amount.Equal(decimal.RequireFromString("3.34")))

	sum := decimal.Zero
	for _, s := range shares {
		sum = sum.Add(s.Amount)
	}
	assert.True(t, sum.Equal(decimal.RequireFromString("10.00")))
}

func TestAllocate_Empty(t *testing.T) {
	assert.Nil(t, Allocate(nil, decimal.NewFromInt(10)))
}
