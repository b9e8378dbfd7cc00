package service

import (
	"context"
	"fmt"
	"testing"

	"checkout-service/internal/gateway"
	"checkout-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize_CreatesPendingTransaction(t *testing.T) {
	h := newHarness(t)
	h.addProduct(1, "125.50", 5)
	h.addToCart(t, 1, 2)

	order, err := h.orders.CreateOrder(context.Background(), testUserID, validOrderRequest())
	require.NoError(t, err)

	res, err := h.payments.Initialize(context.Background(), h.user, &InitializeRequest{
		OrderID:     order.ID,
		CallbackURL: "https://shop.example.com/paid",
		Metadata:    map[string]interface{}{"source": "web", "order_id": "spoofed"},
	})
	require.NoError(t, err)

	assert.Equal(t, "https://checkout.paystack.com/abc123", res.AuthorizationURL)
	assert.Regexp(t, `^SG_\d+_[0-9A-F]{8}$`, res.Reference)

	txn := h.transaction(t, res.Reference)
	assert.Equal(t, models.TransactionStatusPending, txn.Status)
	assert.Equal(t, "251.00", txn.Amount.StringFixed(2))
	assert.Equal(t, "GHS", txn.Currency)
	assert.Equal(t, "abc123", txn.GatewayReference)

	require.Len(t, h.gateway.initCalls, 1)
	call := h.gateway.initCalls[0]
	assert.Equal(t, "ama@example.com", call.Email)
	assert.Equal(t, "web", call.Metadata["source"])
	assert.Equal(t, order.ID.String(), call.Metadata["order_id"])
	assert.Len(t, h.publisher.inits, 1)
}

func TestInitialize_Rejections(t *testing.T) {
	h := newHarness(t)
	h.addProduct(1, "10.00", 5)
	h.addToCart(t, 1, 1)
	order, err := h.orders.CreateOrder(context.Background(), testUserID, validOrderRequest())
	require.NoError(t, err)

	_, err = h.payments.Initialize(context.Background(), h.user, &InitializeRequest{OrderID: order.ID, CallbackURL: "ftp://x"})
	assert.ErrorIs(t, err, ErrInvalidCallbackURL)

	other := &models.User{ID: 2, Email: "kofi@example.com"}
	_, err = h.payments.Initialize(context.Background(), other, &InitializeRequest{OrderID: order.ID})
	assert.ErrorIs(t, err, ErrOrderNotEligible)

	assert.Empty(t, h.gateway.initCalls)
}

func TestInitialize_GatewayFailureFailsTransaction(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{"unavailable", fmt.Errorf("%w: timeout", gateway.ErrUnavailable), ErrInitializationUnavailable},
		{"rejected", &gateway.RejectedError{Operation: "initialize", StatusCode: 400, Message: "Invalid key"}, ErrGatewayRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.gateway.initErr = tt.err
			h.addProduct(1, "10.00", 5)
			h.addToCart(t, 1, 1)
			order, err := h.orders.CreateOrder(context.Background(), testUserID, validOrderRequest())
			require.NoError(t, err)

			_, err = h.payments.Initialize(context.Background(), h.user, &InitializeRequest{OrderID: order.ID})
			assert.ErrorIs(t, err, tt.wantErr)

			txs, err := h.payments.ListTransactions(context.Background(), testUserID)
			require.NoError(t, err)
			require.Len(t, txs, 1)
			assert.Equal(t, models.TransactionStatusFailed, txs[0].Status)
			assert.Equal(t, models.OrderStatusPending, h.orderStatus(t, order))
			assert.Empty(t, h.publisher.inits)
		})
	}
}

func TestVerify_SettlesSuccess(t *testing.T) {
	h := newHarness(t)
	h.addProduct(1, "50.00", 5)
	order, ref := h.pendingPayment(t, 1, 2)
	h.gateway.verifyRes.Amount = decimal.RequireFromString("100.00")

	res, err := h.payments.Verify(context.Background(), testUserID, ref)
	require.NoError(t, err)

	assert.True(t, res.Applied)
	assert.Equal(t, models.TransactionStatusSuccess, res.Transaction.Status)
	assert.Equal(t, "mobile_money", res.Transaction.PaymentMethod)
	assert.NotNil(t, res.Transaction.PaidAt)
	assert.Equal(t, models.OrderStatusPaid, h.orderStatus(t, order))
	assert.Equal(t, 3, h.stock(t, 1))
	assert.Len(t, h.publisher.succeeded, 1)
}

func TestVerify_AlreadySuccessfulSkipsGateway(t *testing.T) {
	h := newHarness(t)
	h.addProduct(1, "50.00", 5)
	_, ref := h.pendingPayment(t, 1, 1)

	_, err := h.payments.Verify(context.Background(), testUserID, ref)
	require.NoError(t, err)
	require.Equal(t, 1, h.gateway.verifyCalls)

	res, err := h.payments.Verify(context.Background(), testUserID, ref)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, models.TransactionStatusSuccess, res.Transaction.Status)
	assert.Equal(t, 1, h.gateway.verifyCalls)
	assert.Equal(t, 4, h.stock(t, 1))
}

func TestVerify_UnavailableLeavesTransactionPending(t *testing.T) {
	h := newHarness(t)
	h.addProduct(1, "50.00", 5)
	order, ref := h.pendingPayment(t, 1, 1)
	h.gateway.verifyErr = fmt.Errorf("%w: status 503", gateway.ErrUnavailable)

	_, err := h.payments.Verify(context.Background(), testUserID, ref)
	assert.ErrorIs(t, err, ErrVerificationUnavailable)

	assert.Equal(t, models.TransactionStatusPending, h.transaction(t, ref).Status)
	assert.Equal(t, models.OrderStatusPending, h.orderStatus(t, order))
	assert.Equal(t, 5, h.stock(t, 1))
}

func TestVerify_RejectedLeavesTransactionPending(t *testing.T) {
	h := newHarness(t)
	h.addProduct(1, "50.00", 5)
	_, ref := h.pendingPayment(t, 1, 1)
	h.gateway.verifyErr = &gateway.RejectedError{Operation: "verify", StatusCode: 400, Message: "Transaction reference not found"}

	_, err := h.payments.Verify(context.Background(), testUserID, ref)
	assert.ErrorIs(t, err, ErrGatewayRejected)
	assert.Equal(t, models.TransactionStatusPending, h.transaction(t, ref).Status)
}

func TestVerify_StatusMapping(t *testing.T) {
	tests := []struct {
		gatewayStatus string
		want          string
	}{
		{"failed", models.TransactionStatusFailed},
		{"reversed", models.TransactionStatusFailed},
		{"abandoned", models.TransactionStatusAbandoned},
		{"ongoing", models.TransactionStatusPending},
		{"pending", models.TransactionStatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.gatewayStatus, func(t *testing.T) {
			h := newHarness(t)
			h.addProduct(1, "50.00", 5)
			order, ref := h.pendingPayment(t, 1, 1)
			h.gateway.verifyRes.Status = tt.gatewayStatus

			res, err := h.payments.Verify(context.Background(), testUserID, ref)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Transaction.Status)
			assert.Equal(t, models.OrderStatusPending, h.orderStatus(t, order))
			assert.Equal(t, 5, h.stock(t, 1))
		})
	}
}

func TestVerify_OtherUsersReferenceIsNotFound(t *testing.T) {
	h := newHarness(t)
	h.addProduct(1, "50.00", 5)
	_, ref := h.pendingPayment(t, 1, 1)

	_, err := h.payments.Verify(context.Background(), 2, ref)
	assert.ErrorIs(t, err, ErrTransactionNotFound)

	_, err = h.payments.Verify(context.Background(), testUserID, "SG_0_DEADBEEF")
	assert.ErrorIs(t, err, ErrTransactionNotFound)
	assert.Zero(t, h.gateway.verifyCalls)
}

func TestRefund(t *testing.T) {
	h := newHarness(t)
	h.addProduct(1, "50.00", 5)
	order, ref := h.pendingPayment(t, 1, 2)

	_, err := h.payments.Refund(context.Background(), testUserID, &RefundRequest{Reference: ref})
	assert.ErrorIs(t, err, ErrNotRefundable)

	_, err = h.payments.Verify(context.Background(), testUserID, ref)
	require.NoError(t, err)

	_, err = h.payments.Refund(context.Background(), testUserID, &RefundRequest{
		Reference: ref,
		Amount:    decimal.NewNullDecimal(decimal.RequireFromString("100.01")),
	})
	assert.ErrorIs(t, err, ErrInvalidRefundAmount)

	partial, err := h.payments.Refund(context.Background(), testUserID, &RefundRequest{
		Reference: ref,
		Amount:    decimal.NewNullDecimal(decimal.RequireFromString("40.00")),
	})
	require.NoError(t, err)
	assert.False(t, partial.Full)
	assert.Equal(t, models.OrderStatusPaid, h.orderStatus(t, order))

	full, err := h.payments.Refund(context.Background(), testUserID, &RefundRequest{Reference: ref})
	require.NoError(t, err)
	assert.True(t, full.Full)
	assert.Equal(t, "100.00", full.Amount.StringFixed(2))
	assert.Equal(t, models.OrderStatusRefunded, h.orderStatus(t, order))
	assert.Len(t, h.publisher.refunded, 2)
}

func TestRefund_GatewayUnavailable(t *testing.T) {
	h := newHarness(t)
	h.addProduct(1, "50.00", 5)
	order, ref := h.pendingPayment(t, 1, 1)
	_, err := h.payments.Verify(context.Background(), testUserID, ref)
	require.NoError(t, err)

	h.gateway.refundErr = gateway.ErrUnavailable
	_, err = h.payments.Refund(context.Background(), testUserID, &RefundRequest{Reference: ref})
	assert.ErrorIs(t, err, ErrRefundUnavailable)
	assert.Equal(t, models.OrderStatusPaid, h.orderStatus(t, order))
}

func TestSettlementStatus(t *testing.T) {
	for in, want := range map[string]string{
		"success":   models.TransactionStatusSuccess,
		"SUCCESS":   models.TransactionStatusSuccess,
		"failed":    models.TransactionStatusFailed,
		"reversed":  models.TransactionStatusFailed,
		"abandoned": models.TransactionStatusAbandoned,
	} {
		got, ok := SettlementStatus(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"ongoing", "pending", "processing", "queued", ""} {
		_, ok := SettlementStatus(in)
		assert.False(t, ok, in)
	}
}
