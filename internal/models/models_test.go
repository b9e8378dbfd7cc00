package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeGhanaPhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0240123456", "+233240123456"},
		{"233240123456", "+233240123456"},
		{"+233240123456", "+233240123456"},
		{"055 012 3456", "+233550123456"},
		{"+233-20-012-3456", "+233200123456"},
	}
	for _, tc := range cases {
		got, err := NormalizeGhanaPhone(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	// the network prefix is enforced on the 233 form too
	for _, bad := range []string{"12345", "", "0990123456", "2330240123456", "0240123", "233300123456", "+233300123456"} {
		_, err := NormalizeGhanaPhone(bad)
		assert.ErrorIs(t, err, ErrInvalidPhone, bad)
	}
}

func TestEffectivePrice(t *testing.T) {
	p := Product{Price: decimal.RequireFromString("100.00")}
	assert.True(t, p.EffectivePrice().Equal(decimal.RequireFromString("100.00")))

	p.DiscountPrice = decimal.NewNullDecimal(decimal.RequireFromString("80.00"))
	assert.True(t, p.EffectivePrice().Equal(decimal.RequireFromString("80.00")))

	// a discount that is not a discount is ignored
	p.DiscountPrice = decimal.NewNullDecimal(decimal.RequireFromString("120.00"))
	assert.True(t, p.EffectivePrice().Equal(decimal.RequireFromString("100.00")))

	p.DiscountPrice = decimal.NewNullDecimal(decimal.Zero)
	assert.True(t, p.EffectivePrice().Equal(decimal.RequireFromString("100.00")))
}

func TestOrderItemSubtotal(t *testing.T) {
	item := OrderItem{Price: decimal.RequireFromString("19.99"), Quantity: 3}
	assert.Equal(t, "59.97", item.Subtotal().StringFixed(2))
}

func pendingTransaction() Transaction {
	return Transaction{
		ID:        uuid.New(),
		OrderID:   uuid.New(),
		Reference: "SG_1_ABCDEF12",
		Amount:    decimal.RequireFromString("200.00"),
		Currency:  DefaultCurrency,
		Status:    TransactionStatusPending,
	}
}

func TestTransactionApply_Success(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tx := pendingTransaction()

	next, applied := tx.Apply(Settlement{
		Status:           TransactionStatusSuccess,
		Channel:          "Mobile_Money",
		GatewayReference: "4099260516",
		RawPayload:       `{"status":"success"}`,
		At:               now,
	})

	require.True(t, applied)
	assert.Equal(t, TransactionStatusSuccess, next.Status)
	assert.Equal(t, "mobile_money", next.PaymentMethod)
	assert.Equal(t, "4099260516", next.GatewayReference)
	require.NotNil(t, next.PaidAt)
	assert.Equal(t, now, *next.PaidAt)
	assert.Equal(t, TransactionStatusPending, tx.Status, "receiver is not mutated")
}

func TestTransactionApply_TerminalIsNoop(t *testing.T) {
	now := time.Now()
	tx := pendingTransaction()
	settled, _ := tx.Apply(Settlement{Status: TransactionStatusSuccess, Channel: "card", At: now})

	again, applied := settled.Apply(Settlement{Status: TransactionStatusFailed, RawPayload: "late", At: now.Add(time.Minute)})
	assert.False(t, applied)
	assert.Equal(t, settled, again)
}

func TestTransactionApply_FailureKeepsPaymentMethodEmpty(t *testing.T) {
	tx := pendingTransaction()
	next, applied := tx.Apply(Settlement{Status: TransactionStatusFailed, Channel: "card", RawPayload: "declined", At: time.Now()})
	require.True(t, applied)
	assert.Equal(t, TransactionStatusFailed, next.Status)
	assert.Empty(t, next.PaymentMethod)
	assert.Nil(t, next.PaidAt)
	assert.Equal(t, "declined", next.GatewayResponse)

	abandoned, applied := tx.Apply(Settlement{Status: TransactionStatusAbandoned, At: time.Now()})
	require.True(t, applied)
	assert.Equal(t, TransactionStatusAbandoned, abandoned.Status)
}

func TestGatewayReferenceSetOnce(t *testing.T) {
	tx := pendingTransaction()
	tx.GatewayReference = "first"
	next, _ := tx.Apply(Settlement{Status: TransactionStatusSuccess, GatewayReference: "second", At: time.Now()})
	assert.Equal(t, "first", next.GatewayReference)
}

func TestNewTransactionReference(t *testing.T) {
	now := time.Unix(1760000000, 0)
	ref := NewTransactionReference(now)
	assert.Regexp(t, `^SG_1760000000_[0-9A-F]{8}$`, ref)
	assert.NotEqual(t, ref, NewTransactionReference(now))
}

func TestOrderNumberFor(t *testing.T) {
	id := uuid.MustParse("3f2504e0-4f89-11d3-9a0c-0305e82c3301")
	assert.Equal(t, "SG3F2504E0", OrderNumberFor(id))
}
