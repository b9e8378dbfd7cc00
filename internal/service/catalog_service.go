package service

import (
	"context"
	"errors"
	"fmt"

	"checkout-service/internal/models"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// CatalogService exposes products and the caller's cart
type CatalogService struct {
	store     Store
	inventory *InventoryClient
	logger    *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(store Store, inventory *InventoryClient) *CatalogService {
	return &CatalogService{
		store:     store,
		inventory: inventory,
		logger:    util.GetLogger(),
	}
}

// CartView is a cart with each line priced at the current effective price.
// These prices are informational; the order snapshot is what gets charged.
type CartView struct {
	*models.Cart
	Lines []CartLine `json:"lines"`
	Total string     `json:"total"`
}

// CartLine is one priced cart line
type CartLine struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Subtotal  string `json:"subtotal"`
}

// ListProducts returns active products with mirrored stock levels
func (cs *CatalogService) ListProducts(ctx context.Context) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListProducts")
	defer span.End()

	products, err := cs.store.ListActiveProducts(ctx)
	if err != nil {
		return nil, err
	}
	cs.inventory.withStock(ctx, products)
	return products, nil
}

// GetProduct returns one active product
func (cs *CatalogService) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.GetProduct", attribute.Int64("product_id", id))
	defer span.End()

	product, err := cs.activeProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if qty, err := cs.inventory.GetStock(ctx, id); err == nil {
		product.StockQuantity = qty
	}
	return product, nil
}

func (cs *CatalogService) activeProduct(ctx context.Context, id int64) (*models.Product, error) {
	product, err := cs.store.GetProductByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !product.IsActive) {
		return nil, ErrProductNotFound
	}
	return product, err
}

// GetCart returns the caller's cart, creating an empty one if needed
func (cs *CatalogService) GetCart(ctx context.Context, userID int64) (*CartView, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.GetCart", attribute.Int64("user_id", userID))
	defer span.End()

	if _, err := cs.store.GetOrCreateCart(ctx, userID); err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	cart, err := cs.store.GetCartByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	return cs.priceCart(ctx, cart)
}

// AddItem adds quantity of a product to the caller's cart
func (cs *CatalogService) AddItem(ctx context.Context, userID, productID int64, qty int) (*CartView, error) {
	if qty < 1 {
		return nil, ErrInvalidQuantity
	}
	if _, err := cs.activeProduct(ctx, productID); err != nil {
		return nil, err
	}

	cart, err := cs.store.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	if err := cs.store.AddCartItem(ctx, cart.ID, productID, qty); err != nil {
		return nil, fmt.Errorf("failed to add cart item: %w", err)
	}
	return cs.GetCart(ctx, userID)
}

// UpdateItem sets the quantity of a product already in the cart
func (cs *CatalogService) UpdateItem(ctx context.Context, userID, productID int64, qty int) (*CartView, error) {
	if qty < 1 {
		return nil, ErrInvalidQuantity
	}
	cart, err := cs.store.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	err = cs.store.SetCartItemQuantity(ctx, cart.ID, productID, qty)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrCartItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update cart item: %w", err)
	}
	return cs.GetCart(ctx, userID)
}

// RemoveItem deletes a product line from the cart
func (cs *CatalogService) RemoveItem(ctx context.Context, userID, productID int64) (*CartView, error) {
	cart, err := cs.store.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	err = cs.store.RemoveCartItem(ctx, cart.ID, productID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrCartItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to remove cart item: %w", err)
	}
	return cs.GetCart(ctx, userID)
}

// ClearCart empties the caller's cart
func (cs *CatalogService) ClearCart(ctx context.Context, userID int64) (*CartView, error) {
	cart, err := cs.store.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	if err := cs.store.ClearCart(ctx, cart.ID); err != nil {
		return nil, fmt.Errorf("failed to clear cart: %w", err)
	}
	cs.logger.Debug("Cart cleared", zap.Int64("user_id", userID))
	return cs.GetCart(ctx, userID)
}

func (cs *CatalogService) priceCart(ctx context.Context, cart *models.Cart) (*CartView, error) {
	view := &CartView{Cart: cart, Lines: make([]CartLine, 0, len(cart.Items))}

	sum := decimal.Zero
	for _, item := range cart.Items {
		product, err := cs.store.GetProductByID(ctx, item.ProductID)
		if err != nil {
			return nil, fmt.Errorf("failed to price cart item %d: %w", item.ProductID, err)
		}
		line := models.OrderItem{Quantity: item.Quantity, Price: product.EffectivePrice()}
		sum = sum.Add(line.Subtotal())
		view.Lines = append(view.Lines, CartLine{
			ProductID: product.ID,
			Name:      product.Name,
			Quantity:  item.Quantity,
			UnitPrice: line.Price.StringFixed(2),
			Subtotal:  line.Subtotal().StringFixed(2),
		})
	}
	view.Total = sum.StringFixed(2)
	return view, nil
}
