package service

import (
	"context"
	"fmt"

	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// InventoryClient serves stock levels from the Redis mirror and keeps the
// mirror in line with the database. The database is always authoritative.
type InventoryClient struct {
	store  CatalogStore
	cache  StockCache
	logger *zap.Logger
}

// NewInventoryClient creates a new inventory client
func NewInventoryClient(store CatalogStore, cache StockCache) *InventoryClient {
	return &InventoryClient{
		store:  store,
		cache:  cache,
		logger: util.GetLogger(),
	}
}

// GetStock reads stock from the mirror, falling back to the database and
// backfilling the mirror on a miss.
func (ic *InventoryClient) GetStock(ctx context.Context, productID int64) (int, error) {
	ctx, span := util.StartSpan(ctx, "InventoryClient.GetStock")
	defer span.End()

	if qty, err := ic.cache.GetStock(ctx, productID); err == nil {
		return qty, nil
	}

	product, err := ic.store.GetProductByID(ctx, productID)
	if err != nil {
		return 0, err
	}
	ic.setStock(ctx, product.ID, product.StockQuantity)
	return product.StockQuantity, nil
}

// RefreshStock copies the database stock of the given products to the mirror
func (ic *InventoryClient) RefreshStock(ctx context.Context, productIDs []int64) error {
	ctx, span := util.StartSpan(ctx, "InventoryClient.RefreshStock")
	defer span.End()

	var failed int
	for _, id := range productIDs {
		product, err := ic.store.GetProductByID(ctx, id)
		if err != nil {
			failed++
			ic.logger.Error("Failed to load product for stock refresh",
				zap.Int64("product_id", id),
				zap.Error(err))
			continue
		}
		if !ic.setStock(ctx, product.ID, product.StockQuantity) {
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("stock refresh failed for %d of %d products", failed, len(productIDs))
	}
	return nil
}

// SyncInventoryToRedis synchronizes database inventory to Redis
func (ic *InventoryClient) SyncInventoryToRedis(ctx context.Context) error {
	ic.logger.Info("Starting inventory sync to Redis")

	products, err := ic.store.ListActiveProducts(ctx)
	if err != nil {
		return fmt.Errorf("failed to get products: %w", err)
	}

	for _, product := range products {
		ic.setStock(ctx, product.ID, product.StockQuantity)
	}

	ic.logger.Info("Inventory sync completed", zap.Int("count", len(products)))
	return nil
}

// withStock overlays mirrored stock levels onto products
func (ic *InventoryClient) withStock(ctx context.Context, products []models.Product) {
	for i := range products {
		if qty, err := ic.cache.GetStock(ctx, products[i].ID); err == nil {
			products[i].StockQuantity = qty
		}
	}
}

func (ic *InventoryClient) setStock(ctx context.Context, productID int64, qty int) bool {
	if err := ic.cache.SetStock(ctx, productID, qty); err != nil {
		ic.logger.Warn("Failed to mirror stock to Redis",
			zap.Int64("product_id", productID),
			zap.Error(err))
		return false
	}
	return true
}
