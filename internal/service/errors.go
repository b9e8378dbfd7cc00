package service

import "errors"

// Caller input errors. Nothing is mutated when these are returned.
var (
	ErrCartNotFound           = errors.New("cart not found")
	ErrEmptyCart              = errors.New("cart is empty")
	ErrInvalidPhoneFormat     = errors.New("invalid phone number format")
	ErrInvalidShippingAddress = errors.New("shipping address must be at least 10 characters")
	ErrInvalidQuantity        = errors.New("quantity must be at least 1")
	ErrInvalidCallbackURL     = errors.New("callback URL must start with http:// or https://")
	ErrInvalidRefundAmount    = errors.New("refund amount must be positive and not exceed the charge")
	ErrOrderNotEligible       = errors.New("order not found or not eligible")
	ErrOrderNotFound          = errors.New("order not found")
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrProductNotFound        = errors.New("product not found")
	ErrCartItemNotFound       = errors.New("cart item not found")
	ErrNotRefundable          = errors.New("transaction not found or not eligible for refund")
	ErrInsufficientStock      = errors.New("insufficient stock")
)

// Webhook authentication and integrity errors
var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedWebhook = errors.New("malformed webhook payload")
)

// Upstream gateway errors. Unavailable errors are retryable and never
// settle a transaction.
var (
	ErrInitializationUnavailable = errors.New("payment initialization unavailable")
	ErrVerificationUnavailable   = errors.New("payment verification unavailable")
	ErrRefundUnavailable         = errors.New("refund unavailable")
	ErrGatewayRejected           = errors.New("payment gateway rejected the request")
)
