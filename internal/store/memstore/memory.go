// Package memstore is an in-memory store with the same contract as the
// Postgres store, used by service and handler tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/store"

	"github.com/google/uuid"
)

type Memory struct {
	mu sync.Mutex

	users        map[int64]models.User
	products     map[int64]models.Product
	carts        map[int64]*models.Cart // by user id
	orders       map[uuid.UUID]models.Order
	orderItems   map[uuid.UUID][]models.OrderItem
	transactions map[string]models.Transaction // by reference
	webhooks     []models.WebhookEvent

	nextID int64
}

func New() *Memory {
	return &Memory{
		users:        make(map[int64]models.User),
		products:     make(map[int64]models.Product),
		carts:        make(map[int64]*models.Cart),
		orders:       make(map[uuid.UUID]models.Order),
		orderItems:   make(map[uuid.UUID][]models.OrderItem),
		transactions: make(map[string]models.Transaction),
	}
}

func (m *Memory) id() int64 {
	m.nextID++
	return m.nextID
}

// PutUser seeds a user
func (m *Memory) PutUser(u models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

// PutProduct seeds or replaces a product
func (m *Memory) PutProduct(p models.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
}

func (m *Memory) Ping(_ context.Context) error { return nil }

func (m *Memory) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, store.ErrNotFound)
	}
	return &u, nil
}

// =============================================================================
// CATALOG
// =============================================================================

func (m *Memory) GetProductByID(_ context.Context, id int64) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, store.ErrNotFound)
	}
	return &p, nil
}

func (m *Memory) ListActiveProducts(_ context.Context) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Product
	for _, p := range m.products {
		if p.IsActive {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) DecrementStock(_ context.Context, productID int64, qty int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		return 0, fmt.Errorf("product %d: %w", productID, store.ErrNotFound)
	}
	if p.StockQuantity < qty {
		return p.StockQuantity, store.ErrInsufficientStock
	}
	p.StockQuantity -= qty
	p.UpdatedAt = time.Now()
	m.products[productID] = p
	return p.StockQuantity, nil
}

// =============================================================================
// CARTS
// =============================================================================

func (m *Memory) GetCartByUserID(_ context.Context, userID int64) (*models.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cartLocked(userID)
}

func (m *Memory) cartLocked(userID int64) (*models.Cart, error) {
	c, ok := m.carts[userID]
	if !ok {
		return nil, fmt.Errorf("cart for user %d: %w", userID, store.ErrNotFound)
	}
	out := *c
	out.Items = append([]models.CartItem(nil), c.Items...)
	return &out, nil
}

func (m *Memory) GetOrCreateCart(_ context.Context, userID int64) (*models.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.carts[userID]; !ok {
		now := time.Now()
		m.carts[userID] = &models.Cart{ID: m.id(), UserID: userID, CreatedAt: now, UpdatedAt: now}
	}
	return m.cartLocked(userID)
}

func (m *Memory) cartByID(cartID int64) *models.Cart {
	for _, c := range m.carts {
		if c.ID == cartID {
			return c
		}
	}
	return nil
}

func (m *Memory) AddCartItem(_ context.Context, cartID, productID int64, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.cartByID(cartID)
	if c == nil {
		return fmt.Errorf("cart %d: %w", cartID, store.ErrNotFound)
	}
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items[i].Quantity += qty
			return nil
		}
	}
	c.Items = append(c.Items, models.CartItem{ID: m.id(), CartID: cartID, ProductID: productID, Quantity: qty})
	return nil
}

func (m *Memory) SetCartItemQuantity(_ context.Context, cartID, productID int64, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.cartByID(cartID)
	if c == nil {
		return fmt.Errorf("cart %d: %w", cartID, store.ErrNotFound)
	}
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items[i].Quantity = qty
			return nil
		}
	}
	return fmt.Errorf("cart item: %w", store.ErrNotFound)
}

func (m *Memory) RemoveCartItem(_ context.Context, cartID, productID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.cartByID(cartID)
	if c == nil {
		return fmt.Errorf("cart %d: %w", cartID, store.ErrNotFound)
	}
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("cart item: %w", store.ErrNotFound)
}

func (m *Memory) ClearCart(_ context.Context, cartID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c := m.cartByID(cartID); c != nil {
		c.Items = nil
	}
	return nil
}

// =============================================================================
// ORDERS
// =============================================================================

func (m *Memory) CreateOrder(_ context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.OrderNumber == order.OrderNumber {
			return fmt.Errorf("duplicate order number %s", order.OrderNumber)
		}
	}
	now := time.Now()
	order.CreatedAt, order.UpdatedAt = now, now
	for i := range order.Items {
		order.Items[i].ID = m.id()
		order.Items[i].OrderID = order.ID
		order.Items[i].CreatedAt = now
	}
	stored := *order
	stored.Items = nil
	m.orders[order.ID] = stored
	m.orderItems[order.ID] = append([]models.OrderItem(nil), order.Items...)
	return nil
}

func (m *Memory) GetOrderByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, store.ErrNotFound)
	}
	return &o, nil
}

func (m *Memory) GetOrderForUser(ctx context.Context, id uuid.UUID, userID int64) (*models.Order, error) {
	o, err := m.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, fmt.Errorf("order %s: %w", id, store.ErrNotFound)
	}
	return o, nil
}

func (m *Memory) ListOrdersByUser(_ context.Context, userID int64) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) GetOrderItems(_ context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := append([]models.OrderItem(nil), m.orderItems[orderID]...)
	for i := range items {
		if p, ok := m.products[items[i].ProductID]; ok {
			items[i].ProductName = p.Name
		}
	}
	return items, nil
}

func (m *Memory) TransitionOrderStatus(_ context.Context, id uuid.UUID, from, to string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	m.orders[id] = o
	return true, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func (m *Memory) CreateTransaction(_ context.Context, t *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.transactions[t.Reference]; exists {
		return store.ErrDuplicateReference
	}
	now := time.Now()
	t.CreatedAt, t.UpdatedAt = now, now
	m.transactions[t.Reference] = *t
	return nil
}

func (m *Memory) byID(id uuid.UUID) (models.Transaction, bool) {
	for _, t := range m.transactions {
		if t.ID == id {
			return t, true
		}
	}
	return models.Transaction{}, false
}

func (m *Memory) SetGatewayReference(_ context.Context, id uuid.UUID, gatewayRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byID(id)
	if ok && t.GatewayReference == "" {
		t.GatewayReference = gatewayRef
		m.transactions[t.Reference] = t
	}
	return nil
}

func (m *Memory) FailPendingTransaction(_ context.Context, id uuid.UUID, gatewayResponse string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byID(id)
	if ok && t.Status == models.TransactionStatusPending {
		t.Status = models.TransactionStatusFailed
		t.GatewayResponse = gatewayResponse
		m.transactions[t.Reference] = t
	}
	return nil
}

func (m *Memory) GetTransactionByReference(_ context.Context, reference string) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[reference]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", reference, store.ErrNotFound)
	}
	return &t, nil
}

func (m *Memory) GetTransactionForUser(_ context.Context, id uuid.UUID, userID int64) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byID(id)
	if !ok || t.UserID != userID {
		return nil, fmt.Errorf("transaction %s: %w", id, store.ErrNotFound)
	}
	return &t, nil
}

func (m *Memory) ListTransactionsByUser(_ context.Context, userID int64) ([]models.Transaction, error) {
	return m.filterTransactions(func(t models.Transaction) bool { return t.UserID == userID }), nil
}

func (m *Memory) ListTransactionsByOrder(_ context.Context, orderID uuid.UUID) ([]models.Transaction, error) {
	return m.filterTransactions(func(t models.Transaction) bool { return t.OrderID == orderID }), nil
}

func (m *Memory) filterTransactions(keep func(models.Transaction) bool) []models.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Transaction
	for _, t := range m.transactions {
		if keep(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// SettleTransaction holds the store mutex across check-and-set, which is
// the in-memory equivalent of the row lock.
func (m *Memory) SettleTransaction(_ context.Context, settlement models.Settlement) (*models.Transaction, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.transactions[settlement.Reference]
	if !ok {
		return nil, false, fmt.Errorf("transaction %s: %w", settlement.Reference, store.ErrNotFound)
	}

	next, applied := current.Apply(settlement)
	if !applied {
		return &current, false, nil
	}
	m.transactions[next.Reference] = next

	if next.Status == models.TransactionStatusSuccess {
		if o, ok := m.orders[next.OrderID]; ok {
			o.Status = models.OrderStatusPaid
			o.UpdatedAt = settlement.At
			m.orders[o.ID] = o
		}
	}
	return &next, true, nil
}

// =============================================================================
// WEBHOOK EVENTS
// =============================================================================

func (m *Memory) CreateWebhookEvent(_ context.Context, event *models.WebhookEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	event.ID = m.id()
	event.Processed = false
	event.CreatedAt = time.Now()
	m.webhooks = append(m.webhooks, *event)
	return nil
}

func (m *Memory) MarkWebhookEventProcessed(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.webhooks {
		if m.webhooks[i].ID == id {
			m.webhooks[i].Processed = true
		}
	}
	return nil
}

func (m *Memory) ListUnprocessedWebhookEvents(_ context.Context, limit int) ([]models.WebhookEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.WebhookEvent
	for _, e := range m.webhooks {
		if !e.Processed && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

// WebhookEvents returns every recorded webhook event
func (m *Memory) WebhookEvents() []models.WebhookEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.WebhookEvent(nil), m.webhooks...)
}
