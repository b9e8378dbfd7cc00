package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderCreated       = "ORDER_CREATED"
	EventTypeOrderCancelled     = "ORDER_CANCELLED"
	EventTypePaymentInitialized = "PAYMENT_INITIALIZED"
	EventTypePaymentSucceeded   = "PAYMENT_SUCCEEDED"
	EventTypePaymentFailed      = "PAYMENT_FAILED"
	EventTypePaymentRefunded    = "PAYMENT_REFUNDED"
	EventTypeStockShortfall     = "STOCK_SHORTFALL"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBaseEvent stamps a fresh event id and time
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

// OrderCreatedEvent published when an order is created from a cart
type OrderCreatedEvent struct {
	BaseEvent
	OrderID     uuid.UUID       `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	UserID      int64           `json:"user_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Items       []OrderItemData `json:"items"`
}

// OrderCancelledEvent published when a pending order is cancelled
type OrderCancelledEvent struct {
	BaseEvent
	OrderID uuid.UUID `json:"order_id"`
	UserID  int64     `json:"user_id"`
}

// PaymentInitializedEvent published once the gateway accepted a session
type PaymentInitializedEvent struct {
	BaseEvent
	OrderID       uuid.UUID       `json:"order_id"`
	TransactionID uuid.UUID       `json:"transaction_id"`
	Reference     string          `json:"reference"`
	Amount        decimal.Decimal `json:"amount"`
}

// PaymentSucceededEvent published after a success settlement commits
type PaymentSucceededEvent struct {
	BaseEvent
	OrderID       uuid.UUID       `json:"order_id"`
	TransactionID uuid.UUID       `json:"transaction_id"`
	Reference     string          `json:"reference"`
	Amount        decimal.Decimal `json:"amount"`
	Channel       string          `json:"channel"`
	Items         []OrderItemData `json:"items"`
}

// PaymentFailedEvent published after a failed or abandoned settlement
type PaymentFailedEvent struct {
	BaseEvent
	OrderID       uuid.UUID `json:"order_id"`
	TransactionID uuid.UUID `json:"transaction_id"`
	Reference     string    `json:"reference"`
	Status        string    `json:"status"`
}

// PaymentRefundedEvent published after the gateway accepted a refund
type PaymentRefundedEvent struct {
	BaseEvent
	OrderID   uuid.UUID       `json:"order_id"`
	Reference string          `json:"reference"`
	Amount    decimal.Decimal `json:"amount"`
}

// StockShortfallEvent published when a paid item could not be taken from stock
type StockShortfallEvent struct {
	BaseEvent
	OrderID   uuid.UUID `json:"order_id"`
	Reference string    `json:"reference"`
	ProductID int64     `json:"product_id"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// ItemData converts order items to their event representation
func ItemData(items []OrderItem) []OrderItemData {
	data := make([]OrderItemData, 0, len(items))
	for _, item := range items {
		data = append(data, OrderItemData{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.Price,
		})
	}
	return data
}
