// Package gateway is the HTTP adapter to the Paystack payment gateway.
// It is stateless; every call carries the client's bounded timeout.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"checkout-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrUnavailable covers network errors, timeouts, 5xx responses and bodies
// that cannot be decoded. It says nothing about the payment itself.
var ErrUnavailable = errors.New("payment gateway unavailable")

// RejectedError is an explicit status:false answer from the gateway
type RejectedError struct {
	Operation  string
	StatusCode int
	Message    string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("gateway rejected %s (%d): %s", e.Operation, e.StatusCode, e.Message)
}

var hundred = decimal.NewFromInt(100)

// Client talks to the Paystack REST API
type Client struct {
	baseURL    string
	secretKey  string
	currency   string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a gateway client whose calls time out after timeout
func NewClient(baseURL, secretKey, currency string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secretKey:  secretKey,
		currency:   currency,
		httpClient: &http.Client{Timeout: timeout},
		logger:     util.GetLogger(),
	}
}

// InitializeRequest starts a hosted checkout session
type InitializeRequest struct {
	Email       string
	Amount      decimal.Decimal
	Reference   string
	CallbackURL string
	Metadata    map[string]interface{}
}

// AuthorizationSession is where the payer is redirected to pay
type AuthorizationSession struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// VerificationResult is the gateway's view of a reference
type VerificationResult struct {
	ID              int64
	Reference       string
	Status          string
	Channel         string
	Amount          decimal.Decimal
	Currency        string
	GatewayResponse string
	PaidAt          *time.Time
	Raw             string
}

// RefundRequest refunds all of a transaction, or Amount when set
type RefundRequest struct {
	Reference    string
	Amount       decimal.NullDecimal
	CustomerNote string
	MerchantNote string
}

// RefundResult is the gateway's refund record
type RefundResult struct {
	ID     int64
	Status string
	Amount decimal.Decimal
	Raw    string
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// ToMinorUnits converts cedis to pesewas
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromMinorUnits converts pesewas to cedis
func FromMinorUnits(amount int64) decimal.Decimal {
	return decimal.New(amount, -2)
}

// Initialize creates a checkout session for the given reference
func (c *Client) Initialize(ctx context.Context, req InitializeRequest) (*AuthorizationSession, error) {
	body := map[string]interface{}{
		"email":     req.Email,
		"amount":    ToMinorUnits(req.Amount),
		"reference": req.Reference,
		"currency":  c.currency,
	}
	if req.CallbackURL != "" {
		body["callback_url"] = req.CallbackURL
	}
	if len(req.Metadata) > 0 {
		body["metadata"] = req.Metadata
	}

	c.logger.Info("Initializing payment",
		zap.String("reference", req.Reference),
		zap.String("amount", req.Amount.StringFixed(2)))

	var session AuthorizationSession
	if _, err := c.do(ctx, "initialize", http.MethodPost, "/transaction/initialize", body, &session); err != nil {
		return nil, err
	}
	if session.AuthorizationURL == "" {
		return nil, fmt.Errorf("%w: initialize response has no authorization_url", ErrUnavailable)
	}
	return &session, nil
}

// Verify fetches the current status of a reference
func (c *Client) Verify(ctx context.Context, reference string) (*VerificationResult, error) {
	var data struct {
		ID              int64      `json:"id"`
		Reference       string     `json:"reference"`
		Status          string     `json:"status"`
		Channel         string     `json:"channel"`
		Amount          int64      `json:"amount"`
		Currency        string     `json:"currency"`
		GatewayResponse string     `json:"gateway_response"`
		PaidAt          *time.Time `json:"paid_at"`
	}

	raw, err := c.do(ctx, "verify", http.MethodGet, "/transaction/verify/"+reference, nil, &data)
	if err != nil {
		return nil, err
	}
	if data.Status == "" {
		return nil, fmt.Errorf("%w: verify response has no status", ErrUnavailable)
	}

	return &VerificationResult{
		ID:              data.ID,
		Reference:       data.Reference,
		Status:          strings.ToLower(data.Status),
		Channel:         data.Channel,
		Amount:          FromMinorUnits(data.Amount),
		Currency:        data.Currency,
		GatewayResponse: data.GatewayResponse,
		PaidAt:          data.PaidAt,
		Raw:             string(raw),
	}, nil
}

// Refund asks the gateway to refund a settled transaction
func (c *Client) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	body := map[string]interface{}{
		"transaction": req.Reference,
		"currency":    c.currency,
	}
	if req.Amount.Valid {
		body["amount"] = ToMinorUnits(req.Amount.Decimal)
	}
	if req.CustomerNote != "" {
		body["customer_note"] = req.CustomerNote
	}
	if req.MerchantNote != "" {
		body["merchant_note"] = req.MerchantNote
	}

	var data struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
		Amount int64  `json:"amount"`
	}
	raw, err := c.do(ctx, "refund", http.MethodPost, "/refund", body, &data)
	if err != nil {
		return nil, err
	}

	return &RefundResult{
		ID:     data.ID,
		Status: data.Status,
		Amount: FromMinorUnits(data.Amount),
		Raw:    string(raw),
	}, nil
}

// do performs one API call and decodes envelope.data into out. It returns
// the raw response body for audit storage.
func (c *Client) do(ctx context.Context, op, method, path string, in, out interface{}) ([]byte, error) {
	start := time.Now()
	outcome := "ok"
	defer func() {
		util.GatewayRequestLatency.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())
	}()

	var reqBody io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			outcome = "error"
			return nil, fmt.Errorf("failed to marshal %s request: %w", op, err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		outcome = "error"
		return nil, fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		outcome = "unavailable"
		c.logger.Error("Gateway request failed", zap.String("operation", op), zap.Error(err))
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		outcome = "unavailable"
		return nil, fmt.Errorf("%w: %s: reading body: %v", ErrUnavailable, op, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		outcome = "unavailable"
		return nil, fmt.Errorf("%w: %s: status %d", ErrUnavailable, op, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		outcome = "unavailable"
		return nil, fmt.Errorf("%w: %s: malformed response: %v", ErrUnavailable, op, err)
	}

	if !env.Status || resp.StatusCode >= http.StatusBadRequest {
		outcome = "rejected"
		msg := env.Message
		if msg == "" {
			msg = "unknown error"
		}
		return raw, &RejectedError{Operation: op, StatusCode: resp.StatusCode, Message: msg}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			outcome = "unavailable"
			return nil, fmt.Errorf("%w: %s: malformed data: %v", ErrUnavailable, op, err)
		}
	}
	return raw, nil
}
