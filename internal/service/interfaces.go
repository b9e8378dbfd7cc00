package service

import (
	"context"

	"checkout-service/internal/gateway"
	"checkout-service/internal/models"

	"github.com/google/uuid"
)

// UserStore resolves the authenticated caller
type UserStore interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

// CatalogStore is the product side of the store
type CatalogStore interface {
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	ListActiveProducts(ctx context.Context) ([]models.Product, error)
	DecrementStock(ctx context.Context, productID int64, qty int) (int, error)
}

// CartStore holds line items per user
type CartStore interface {
	GetCartByUserID(ctx context.Context, userID int64) (*models.Cart, error)
	GetOrCreateCart(ctx context.Context, userID int64) (*models.Cart, error)
	AddCartItem(ctx context.Context, cartID, productID int64, qty int) error
	SetCartItemQuantity(ctx context.Context, cartID, productID int64, qty int) error
	RemoveCartItem(ctx context.Context, cartID, productID int64) error
	ClearCart(ctx context.Context, cartID int64) error
}

// OrderStore owns orders and their items
type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetOrderForUser(ctx context.Context, id uuid.UUID, userID int64) (*models.Order, error)
	ListOrdersByUser(ctx context.Context, userID int64) ([]models.Order, error)
	GetOrderItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error)
	TransitionOrderStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error)
}

// TransactionStore owns payment attempts. SettleTransaction must perform
// the pending check and the update as one atomic unit.
type TransactionStore interface {
	CreateTransaction(ctx context.Context, t *models.Transaction) error
	SetGatewayReference(ctx context.Context, id uuid.UUID, gatewayRef string) error
	FailPendingTransaction(ctx context.Context, id uuid.UUID, gatewayResponse string) error
	GetTransactionByReference(ctx context.Context, reference string) (*models.Transaction, error)
	GetTransactionForUser(ctx context.Context, id uuid.UUID, userID int64) (*models.Transaction, error)
	ListTransactionsByUser(ctx context.Context, userID int64) ([]models.Transaction, error)
	ListTransactionsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Transaction, error)
	SettleTransaction(ctx context.Context, settlement models.Settlement) (*models.Transaction, bool, error)
}

// WebhookStore is the append-only webhook audit log
type WebhookStore interface {
	CreateWebhookEvent(ctx context.Context, event *models.WebhookEvent) error
	MarkWebhookEventProcessed(ctx context.Context, id int64) error
	ListUnprocessedWebhookEvents(ctx context.Context, limit int) ([]models.WebhookEvent, error)
}

// Store is everything the services persist through
type Store interface {
	UserStore
	CatalogStore
	CartStore
	OrderStore
	TransactionStore
	WebhookStore
	Ping(ctx context.Context) error
}

// PaymentGateway is the remote payment processor
type PaymentGateway interface {
	Initialize(ctx context.Context, req gateway.InitializeRequest) (*gateway.AuthorizationSession, error)
	Verify(ctx context.Context, reference string) (*gateway.VerificationResult, error)
	Refund(ctx context.Context, req gateway.RefundRequest) (*gateway.RefundResult, error)
}

// EventPublisher emits domain events after state changes commit
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
	PublishPaymentInitialized(ctx context.Context, event *models.PaymentInitializedEvent) error
	PublishPaymentSucceeded(ctx context.Context, event *models.PaymentSucceededEvent) error
	PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error
	PublishPaymentRefunded(ctx context.Context, event *models.PaymentRefundedEvent) error
	PublishStockShortfall(ctx context.Context, event *models.StockShortfallEvent) error
}

// StockCache mirrors product stock for catalog reads
type StockCache interface {
	SetStock(ctx context.Context, productID int64, quantity int) error
	GetStock(ctx context.Context, productID int64) (int, error)
}
