package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// User is the resolved caller. Authentication happens upstream.
type User struct {
	ID          int64     `db:"id" json:"id"`
	Email       string    `db:"email" json:"email"`
	FirstName   string    `db:"first_name" json:"first_name"`
	LastName    string    `db:"last_name" json:"last_name"`
	PhoneNumber string    `db:"phone_number" json:"phone_number"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Product represents a product in the catalog
type Product struct {
	ID            int64               `db:"id" json:"id"`
	SKU           string              `db:"sku" json:"sku"`
	Name          string              `db:"name" json:"name"`
	Description   string              `db:"description" json:"description"`
	Price         decimal.Decimal     `db:"price" json:"price"`
	DiscountPrice decimal.NullDecimal `db:"discount_price" json:"discount_price"`
	StockQuantity int                 `db:"stock_quantity" json:"stock_quantity"`
	IsActive      bool                `db:"is_active" json:"is_active"`
	CreatedAt     time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time           `db:"updated_at" json:"updated_at"`
}

// EffectivePrice is the discount price when it is set, positive and below
// the list price; otherwise the list price.
func (p Product) EffectivePrice() decimal.Decimal {
	if p.DiscountPrice.Valid && p.DiscountPrice.Decimal.IsPositive() && p.DiscountPrice.Decimal.LessThan(p.Price) {
		return p.DiscountPrice.Decimal
	}
	return p.Price
}

// Cart holds a user's line items
type Cart struct {
	ID        int64      `db:"id" json:"id"`
	UserID    int64      `db:"user_id" json:"user_id"`
	Items     []CartItem `db:"-" json:"items"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// IsEmpty reports whether the cart has no lines
func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// CartItem is one product line in a cart
type CartItem struct {
	ID        int64     `db:"id" json:"id"`
	CartID    int64     `db:"cart_id" json:"cart_id"`
	ProductID int64     `db:"product_id" json:"product_id"`
	Quantity  int       `db:"quantity" json:"quantity"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Order is a frozen snapshot of a cart at checkout time
type Order struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	OrderNumber     string          `db:"order_number" json:"order_number"`
	UserID          int64           `db:"user_id" json:"user_id"`
	Status          string          `db:"status" json:"status"`
	TotalAmount     decimal.Decimal `db:"total_amount" json:"total_amount"`
	ShippingAddress string          `db:"shipping_address" json:"shipping_address"`
	PhoneNumber     string          `db:"phone_number" json:"phone_number"`
	Notes           string          `db:"notes" json:"notes"`
	Items           []OrderItem     `db:"-" json:"items,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// OrderItem records quantity and the price paid at order time
type OrderItem struct {
	ID          int64           `db:"id" json:"id"`
	OrderID     uuid.UUID       `db:"order_id" json:"order_id"`
	ProductID   int64           `db:"product_id" json:"product_id"`
	ProductName string          `db:"product_name" json:"product_name"`
	Quantity    int             `db:"quantity" json:"quantity"`
	Price       decimal.Decimal `db:"price" json:"price"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// Subtotal is price times quantity
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Transaction is one payment attempt against an order
type Transaction struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	OrderID          uuid.UUID       `db:"order_id" json:"order_id"`
	UserID           int64           `db:"user_id" json:"user_id"`
	Reference        string          `db:"reference" json:"reference"`
	GatewayReference string          `db:"gateway_reference" json:"gateway_reference,omitempty"`
	Amount           decimal.Decimal `db:"amount" json:"amount"`
	Currency         string          `db:"currency" json:"currency"`
	Status           string          `db:"status" json:"status"`
	PaymentMethod    string          `db:"payment_method" json:"payment_method,omitempty"`
	GatewayResponse  string          `db:"gateway_response" json:"-"`
	PaidAt           *time.Time      `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// IsTerminal reports whether the transaction can no longer change
func (t Transaction) IsTerminal() bool {
	return t.Status != TransactionStatusPending
}

// WebhookEvent is the append-only audit record of a gateway callback
type WebhookEvent struct {
	ID        int64     `db:"id" json:"id"`
	EventType string    `db:"event_type" json:"event_type"`
	Reference string    `db:"reference" json:"reference"`
	Payload   string    `db:"payload" json:"payload"`
	Processed bool      `db:"processed" json:"processed"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Order statuses
const (
	OrderStatusPending    = "pending"
	OrderStatusPaid       = "paid"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
	OrderStatusRefunded   = "refunded"
)

// Transaction statuses
const (
	TransactionStatusPending   = "pending"
	TransactionStatusSuccess   = "success"
	TransactionStatusFailed    = "failed"
	TransactionStatusAbandoned = "abandoned"
)

// Webhook event types
const (
	WebhookChargeSuccess   = "charge.success"
	WebhookChargeFailed    = "charge.failed"
	WebhookTransferSuccess = "transfer.success"
	WebhookTransferFailed  = "transfer.failed"
)

// DefaultCurrency is the only currency the storefront charges in
const DefaultCurrency = "GHS"
