package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize_SendsPesewasAndReturnsSession(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transaction/initialize", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"status":true,"message":"Authorization URL created","data":{
			"authorization_url":"https://checkout.paystack.com/abc","access_code":"abc","reference":"SG_1_AAAA0000"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk_test", "GHS", time.Second)
	session, err := c.Initialize(context.Background(), InitializeRequest{
		Email:     "ama@example.com",
		Amount:    decimal.RequireFromString("200.00"),
		Reference: "SG_1_AAAA0000",
		Metadata:  map[string]interface{}{"order_number": "SG12345678"},
	})

	require.NoError(t, err)
	assert.Equal(t, "https://checkout.paystack.com/abc", session.AuthorizationURL)
	assert.Equal(t, "abc", session.AccessCode)
	assert.Equal(t, float64(20000), got["amount"])
	assert.Equal(t, "GHS", got["currency"])
	assert.NotContains(t, got, "callback_url")
}

func TestInitialize_RejectedIsNotUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"status":false,"message":"Duplicate Transaction Reference"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk_test", "GHS", time.Second)
	_, err := c.Initialize(context.Background(), InitializeRequest{Amount: decimal.NewFromInt(1)})

	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "Duplicate Transaction Reference", rejected.Message)
	assert.False(t, errors.Is(err, ErrUnavailable))
}

func TestVerify_ParsesResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transaction/verify/SG_1_AAAA0000", r.URL.Path)
		w.Write([]byte(`{"status":true,"message":"Verification successful","data":{
			"id":4099260516,"reference":"SG_1_AAAA0000","status":"success","channel":"mobile_money",
			"amount":20000,"currency":"GHS","gateway_response":"Approved","paid_at":"2026-03-01T12:00:00.000Z"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk_test", "GHS", time.Second)
	res, err := c.Verify(context.Background(), "SG_1_AAAA0000")

	require.NoError(t, err)
	assert.Equal(t, "success", res.Status)
	assert.Equal(t, "mobile_money", res.Channel)
	assert.Equal(t, int64(4099260516), res.ID)
	assert.True(t, res.Amount.Equal(decimal.RequireFromString("200.00")))
	require.NotNil(t, res.PaidAt)
	assert.Contains(t, res.Raw, "Approved")
}

func TestVerify_UnavailableCases(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		},
		"malformed body": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html>maintenance</html>`))
		},
		"missing status": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status":true,"data":{"reference":"x"}}`))
		},
		"timeout": func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		},
	}

	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()

			c := NewClient(srv.URL, "sk_test", "GHS", 50*time.Millisecond)
			_, err := c.Verify(context.Background(), "ref")
			assert.ErrorIs(t, err, ErrUnavailable)
		})
	}
}

func TestRefund_PartialAmount(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/refund", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"status":true,"message":"Refund has been queued","data":{"id":7,"status":"pending","amount":5050}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk_test", "GHS", time.Second)
	res, err := c.Refund(context.Background(), RefundRequest{
		Reference:    "SG_1_AAAA0000",
		Amount:       decimal.NewNullDecimal(decimal.RequireFromString("50.50")),
		CustomerNote: "damaged",
	})

	require.NoError(t, err)
	assert.Equal(t, float64(5050), got["amount"])
	assert.Equal(t, "SG_1_AAAA0000", got["transaction"])
	assert.Equal(t, "pending", res.Status)
	assert.True(t, res.Amount.Equal(decimal.RequireFromString("50.50")))
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(19999), ToMinorUnits(decimal.RequireFromString("199.99")))
	assert.Equal(t, int64(1), ToMinorUnits(decimal.RequireFromString("0.005")))
	assert.Equal(t, "12.34", FromMinorUnits(1234).StringFixed(2))
}
