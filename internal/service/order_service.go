package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"checkout-service/internal/models"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const minShippingAddressLen = 10

// OrderService turns carts into frozen orders
type OrderService struct {
	store          Store
	eventPublisher EventPublisher
	logger         *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(store Store, eventPublisher EventPublisher) *OrderService {
	return &OrderService{
		store:          store,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
	}
}

// CreateOrderRequest represents a request to create an order
type CreateOrderRequest struct {
	ShippingAddress string `json:"shipping_address" binding:"required"`
	PhoneNumber     string `json:"phone_number" binding:"required"`
	Notes           string `json:"notes"`
}

// OrderDetails is an order with its items and payment attempts
type OrderDetails struct {
	*models.Order
	Transactions []models.Transaction `json:"transactions"`
}

// CreateOrder snapshots the caller's cart into a pending order. Item prices
// are the effective prices at this instant and are never recomputed. The
// cart is left untouched and no stock is reserved.
func (s *OrderService) CreateOrder(ctx context.Context, userID int64, req *CreateOrderRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder", attribute.Int64("user_id", userID))
	defer span.End()

	cart, err := s.store.GetCartByUserID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		util.OrdersRejectedTotal.WithLabelValues("cart_not_found").Inc()
		return nil, ErrCartNotFound
	}
	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	if cart.IsEmpty() {
		util.OrdersRejectedTotal.WithLabelValues("empty_cart").Inc()
		return nil, ErrEmptyCart
	}

	address := strings.TrimSpace(req.ShippingAddress)
	if len(address) < minShippingAddressLen {
		util.OrdersRejectedTotal.WithLabelValues("invalid_address").Inc()
		return nil, ErrInvalidShippingAddress
	}

	phone, err := models.NormalizeGhanaPhone(req.PhoneNumber)
	if err != nil {
		util.OrdersRejectedTotal.WithLabelValues("invalid_phone").Inc()
		return nil, ErrInvalidPhoneFormat
	}

	items, total, err := s.snapshotCart(ctx, cart)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	order := &models.Order{
		ID:              id,
		OrderNumber:     models.OrderNumberFor(id),
		UserID:          userID,
		Status:          models.OrderStatusPending,
		TotalAmount:     total,
		ShippingAddress: address,
		PhoneNumber:     phone,
		Notes:           strings.TrimSpace(req.Notes),
		Items:           items,
	}

	if err := s.store.CreateOrder(ctx, order); err != nil {
		util.OrdersRejectedTotal.WithLabelValues("db_error").Inc()
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.String("order_id", order.ID.String()),
		zap.String("order_number", order.OrderNumber),
		zap.String("total", order.TotalAmount.StringFixed(2)))

	event := &models.OrderCreatedEvent{
		BaseEvent:   models.NewBaseEvent(models.EventTypeOrderCreated),
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		TotalAmount: order.TotalAmount,
		Items:       models.ItemData(order.Items),
	}
	if err := s.eventPublisher.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}

	return order, nil
}

// snapshotCart prices every cart line at the product's current effective
// price and returns the items with their total.
func (s *OrderService) snapshotCart(ctx context.Context, cart *models.Cart) ([]models.OrderItem, decimal.Decimal, error) {
	items := make([]models.OrderItem, 0, len(cart.Items))
	total := decimal.Zero

	for _, line := range cart.Items {
		product, err := s.store.GetProductByID(ctx, line.ProductID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, decimal.Zero, fmt.Errorf("%w: %d", ErrProductNotFound, line.ProductID)
		}
		if err != nil {
			return nil, decimal.Zero, fmt.Errorf("failed to load product %d: %w", line.ProductID, err)
		}

		item := models.OrderItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    line.Quantity,
			Price:       product.EffectivePrice(),
		}
		items = append(items, item)
		total = total.Add(item.Subtotal())
	}

	return items, total, nil
}

// GetOrder retrieves one of the caller's orders with items and transactions
func (s *OrderService) GetOrder(ctx context.Context, userID int64, orderID uuid.UUID) (*OrderDetails, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder")
	defer span.End()

	order, err := s.store.GetOrderForUser(ctx, orderID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	if order.Items, err = s.store.GetOrderItems(ctx, order.ID); err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}

	txs, err := s.store.ListTransactionsByOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}

	return &OrderDetails{Order: order, Transactions: txs}, nil
}

// ListOrders retrieves the caller's orders, newest first
func (s *OrderService) ListOrders(ctx context.Context, userID int64) ([]models.Order, error) {
	return s.store.ListOrdersByUser(ctx, userID)
}

// CancelOrder cancels a pending order. Any other status is not eligible.
func (s *OrderService) CancelOrder(ctx context.Context, userID int64, orderID uuid.UUID) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CancelOrder")
	defer span.End()

	order, err := s.store.GetOrderForUser(ctx, orderID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrOrderNotEligible
	}
	if err != nil {
		return nil, err
	}

	ok, err := s.store.TransitionOrderStatus(ctx, order.ID, models.OrderStatusPending, models.OrderStatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel order: %w", err)
	}
	if !ok {
		return nil, ErrOrderNotEligible
	}

	util.OrdersCancelledTotal.Inc()
	s.logger.Info("Order cancelled", zap.String("order_id", order.ID.String()))

	event := &models.OrderCancelledEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeOrderCancelled),
		OrderID:   order.ID,
		UserID:    userID,
	}
	if err := s.eventPublisher.PublishOrderCancelled(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCancelled event", zap.Error(err))
	}

	return s.store.GetOrderByID(ctx, order.ID)
}
