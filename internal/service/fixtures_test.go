package service

import (
	"context"
	"sync"
	"testing"

	"checkout-service/internal/gateway"
	"checkout-service/internal/models"
	"checkout-service/internal/store/memstore"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const testUserID int64 = 1

type fakeGateway struct {
	mu          sync.Mutex
	initErr     error
	verifyErr   error
	refundErr   error
	verifyRes   *gateway.VerificationResult
	initCalls   []gateway.InitializeRequest
	verifyCalls int
	refundCalls []gateway.RefundRequest
}

func (g *fakeGateway) Initialize(_ context.Context, req gateway.InitializeRequest) (*gateway.AuthorizationSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initCalls = append(g.initCalls, req)
	if g.initErr != nil {
		return nil, g.initErr
	}
	return &gateway.AuthorizationSession{
		AuthorizationURL: "https://checkout.paystack.com/abc123",
		AccessCode:       "abc123",
		Reference:        req.Reference,
	}, nil
}

func (g *fakeGateway) Verify(_ context.Context, reference string) (*gateway.VerificationResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifyCalls++
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	res := *g.verifyRes
	res.Reference = reference
	return &res, nil
}

func (g *fakeGateway) Refund(_ context.Context, req gateway.RefundRequest) (*gateway.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refundCalls = append(g.refundCalls, req)
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	return &gateway.RefundResult{ID: 77, Status: "pending"}, nil
}

type recordingPublisher struct {
	mu         sync.Mutex
	created    []*models.OrderCreatedEvent
	cancelled  []*models.OrderCancelledEvent
	inits      []*models.PaymentInitializedEvent
	succeeded  []*models.PaymentSucceededEvent
	failed     []*models.PaymentFailedEvent
	refunded   []*models.PaymentRefundedEvent
	shortfalls []*models.StockShortfallEvent
}

func (p *recordingPublisher) PublishOrderCreated(_ context.Context, e *models.OrderCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, e)
	return nil
}

func (p *recordingPublisher) PublishOrderCancelled(_ context.Context, e *models.OrderCancelledEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = append(p.cancelled, e)
	return nil
}

func (p *recordingPublisher) PublishPaymentInitialized(_ context.Context, e *models.PaymentInitializedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inits = append(p.inits, e)
	return nil
}

func (p *recordingPublisher) PublishPaymentSucceeded(_ context.Context, e *models.PaymentSucceededEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.succeeded = append(p.succeeded, e)
	return nil
}

func (p *recordingPublisher) PublishPaymentFailed(_ context.Context, e *models.PaymentFailedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed = append(p.failed, e)
	return nil
}

func (p *recordingPublisher) PublishPaymentRefunded(_ context.Context, e *models.PaymentRefundedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refunded = append(p.refunded, e)
	return nil
}

func (p *recordingPublisher) PublishStockShortfall(_ context.Context, e *models.StockShortfallEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shortfalls = append(p.shortfalls, e)
	return nil
}

type mapCache struct {
	mu    sync.Mutex
	stock map[int64]int
}

func newMapCache() *mapCache { return &mapCache{stock: make(map[int64]int)} }

func (c *mapCache) SetStock(_ context.Context, productID int64, qty int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stock[productID] = qty
	return nil
}

func (c *mapCache) GetStock(_ context.Context, productID int64) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	qty, ok := c.stock[productID]
	if !ok {
		return 0, ErrProductNotFound
	}
	return qty, nil
}

type harness struct {
	store      *memstore.Memory
	gateway    *fakeGateway
	publisher  *recordingPublisher
	orders     *OrderService
	payments   *PaymentService
	reconciler *Reconciler
	webhooks   *WebhookService
	user       *models.User
}

const testSecret = "sk_test_secret"

func newHarness(t *testing.T) *harness {
	t.Helper()

	st := memstore.New()
	user := models.User{ID: testUserID, Email: "ama@example.com", FirstName: "Ama"}
	st.PutUser(user)

	gw := &fakeGateway{verifyRes: &gateway.VerificationResult{ID: 4099, Status: "success", Channel: "mobile_money"}}
	pub := &recordingPublisher{}
	rec := NewReconciler(st, pub)

	return &harness{
		store:      st,
		gateway:    gw,
		publisher:  pub,
		orders:     NewOrderService(st, pub),
		payments:   NewPaymentService(st, gw, rec, pub, "GHS"),
		reconciler: rec,
		webhooks:   NewWebhookService(st, rec, testSecret),
		user:       &user,
	}
}

func (h *harness) addProduct(id int64, price string, stock int) models.Product {
	p := models.Product{
		ID:            id,
		Name:          "Product",
		Price:         decimal.RequireFromString(price),
		StockQuantity: stock,
		IsActive:      true,
	}
	h.store.PutProduct(p)
	return p
}

func (h *harness) addToCart(t *testing.T, productID int64, qty int) {
	t.Helper()
	ctx := context.Background()
	cart, err := h.store.GetOrCreateCart(ctx, testUserID)
	require.NoError(t, err)
	require.NoError(t, h.store.AddCartItem(ctx, cart.ID, productID, qty))
}

func validOrderRequest() *CreateOrderRequest {
	return &CreateOrderRequest{
		ShippingAddress: "12 Oxford Street, Osu, Accra",
		PhoneNumber:     "0241234567",
	}
}

// pendingPayment places an order for qty of a product and initializes a
// payment for it, returning the order and transaction reference.
func (h *harness) pendingPayment(t *testing.T, productID int64, qty int) (*models.Order, string) {
	t.Helper()
	h.addToCart(t, productID, qty)

	order, err := h.orders.CreateOrder(context.Background(), testUserID, validOrderRequest())
	require.NoError(t, err)

	res, err := h.payments.Initialize(context.Background(), h.user, &InitializeRequest{OrderID: order.ID})
	require.NoError(t, err)
	return order, res.Reference
}

func (h *harness) stock(t *testing.T, productID int64) int {
	t.Helper()
	p, err := h.store.GetProductByID(context.Background(), productID)
	require.NoError(t, err)
	return p.StockQuantity
}

func (h *harness) orderStatus(t *testing.T, order *models.Order) string {
	t.Helper()
	o, err := h.store.GetOrderByID(context.Background(), order.ID)
	require.NoError(t, err)
	return o.Status
}

func (h *harness) transaction(t *testing.T, reference string) *models.Transaction {
	t.Helper()
	txn, err := h.store.GetTransactionByReference(context.Background(), reference)
	require.NoError(t, err)
	return txn
}
