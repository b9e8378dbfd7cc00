package service

import (
	"context"
	"testing"

	"checkout-service/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOrder_SnapshotsEffectivePrices(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.addProduct(1, "100.00", 10)
	discounted := models.Product{
		ID:            2,
		Name:          "Kente Scarf",
		Price:         decimal.RequireFromString("80.00"),
		DiscountPrice: decimal.NewNullDecimal(decimal.RequireFromString("60.00")),
		StockQuantity: 10,
		IsActive:      true,
	}
	h.store.PutProduct(discounted)
	h.addToCart(t, 1, 2)
	h.addToCart(t, 2, 1)

	order, err := h.orders.CreateOrder(ctx, testUserID, validOrderRequest())
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, "260.00", order.TotalAmount.StringFixed(2))
	assert.Equal(t, "+233241234567", order.PhoneNumber)
	assert.Regexp(t, `^SG[0-9A-F]{8}$`, order.OrderNumber)
	require.Len(t, order.Items, 2)

	// Later price changes do not touch the snapshot
	discounted.DiscountPrice = decimal.NullDecimal{}
	h.store.PutProduct(discounted)

	details, err := h.orders.GetOrder(ctx, testUserID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "260.00", details.TotalAmount.StringFixed(2))
	for _, item := range details.Items {
		if item.ProductID == 2 {
			assert.Equal(t, "60.00", item.Price.StringFixed(2))
		}
	}

	// The cart is left as is and no stock is reserved
	cart, err := h.store.GetCartByUserID(ctx, testUserID)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 2)
	assert.Equal(t, 10, h.stock(t, 1))

	require.Len(t, h.publisher.created, 1)
	assert.Equal(t, order.ID, h.publisher.created[0].OrderID)
}

func TestCreateOrder_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(h *harness, t *testing.T)
		req     *CreateOrderRequest
		wantErr error
	}{
		{
			name:    "no cart",
			setup:   func(h *harness, t *testing.T) {},
			req:     validOrderRequest(),
			wantErr: ErrCartNotFound,
		},
		{
			name: "empty cart",
			setup: func(h *harness, t *testing.T) {
				_, err := h.store.GetOrCreateCart(context.Background(), testUserID)
				require.NoError(t, err)
			},
			req:     validOrderRequest(),
			wantErr: ErrEmptyCart,
		},
		{
			name: "invalid phone",
			setup: func(h *harness, t *testing.T) {
				h.addProduct(1, "10.00", 5)
				h.addToCart(t, 1, 1)
			},
			req:     &CreateOrderRequest{ShippingAddress: "12 Oxford Street, Osu", PhoneNumber: "12345"},
			wantErr: ErrInvalidPhoneFormat,
		},
		{
			name: "short address",
			setup: func(h *harness, t *testing.T) {
				h.addProduct(1, "10.00", 5)
				h.addToCart(t, 1, 1)
			},
			req:     &CreateOrderRequest{ShippingAddress: "Osu", PhoneNumber: "0241234567"},
			wantErr: ErrInvalidShippingAddress,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.setup(h, t)

			_, err := h.orders.CreateOrder(context.Background(), testUserID, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)

			orders, err := h.orders.ListOrders(context.Background(), testUserID)
			require.NoError(t, err)
			assert.Empty(t, orders)
			assert.Empty(t, h.publisher.created)
		})
	}
}

func TestGetOrder_OtherUsersOrderIsNotFound(t *testing.T) {
	h := newHarness(t)
	h.addProduct(1, "10.00", 5)
	h.addToCart(t, 1, 1)

	order, err := h.orders.CreateOrder(context.Background(), testUserID, validOrderRequest())
	require.NoError(t, err)

	_, err = h.orders.GetOrder(context.Background(), 99, order.ID)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = h.orders.GetOrder(context.Background(), testUserID, uuid.New())
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestCancelOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addProduct(1, "10.00", 5)
	h.addToCart(t, 1, 1)

	order, err := h.orders.CreateOrder(ctx, testUserID, validOrderRequest())
	require.NoError(t, err)

	cancelled, err := h.orders.CancelOrder(ctx, testUserID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, cancelled.Status)
	assert.Len(t, h.publisher.cancelled, 1)

	_, err = h.orders.CancelOrder(ctx, testUserID, order.ID)
	assert.ErrorIs(t, err, ErrOrderNotEligible)

	_, err = h.payments.Initialize(ctx, h.user, &InitializeRequest{OrderID: order.ID})
	assert.ErrorIs(t, err, ErrOrderNotEligible)
}
