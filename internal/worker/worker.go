package worker

import (
	"context"

	"checkout-service/internal/broker"
	"checkout-service/internal/models"
	"checkout-service/internal/service"
	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// InventoryWorker keeps the Redis stock mirror current after payments
type InventoryWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	inventory    *service.InventoryClient
	logger       *zap.Logger
}

// NewInventoryWorker creates a new inventory worker
func NewInventoryWorker(consumer *broker.Consumer, inventory *service.InventoryClient) *InventoryWorker {
	w := &InventoryWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		inventory:    inventory,
		logger:       util.GetLogger(),
	}
	w.eventHandler.OnPaymentSucceeded(w.HandlePaymentSucceeded)
	return w
}

// HandlePaymentSucceeded refreshes the mirror for every product in the order
func (w *InventoryWorker) HandlePaymentSucceeded(ctx context.Context, event *models.PaymentSucceededEvent) error {
	ids := make([]int64, 0, len(event.Items))
	for _, item := range event.Items {
		ids = append(ids, item.ProductID)
	}
	return w.inventory.RefreshStock(ctx, ids)
}

// Start starts the worker
func (w *InventoryWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting inventory worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *InventoryWorker) Stop() error {
	w.logger.Info("Stopping inventory worker")
	return w.consumer.Close()
}

// ShortfallWorker raises an alert for every paid item that stock could not cover
type ShortfallWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewShortfallWorker creates a new shortfall worker
func NewShortfallWorker(consumer *broker.Consumer) *ShortfallWorker {
	w := &ShortfallWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		logger:       util.GetLogger(),
	}
	w.eventHandler.OnStockShortfall(w.HandleStockShortfall)
	return w
}

// HandleStockShortfall logs the shortfall for fulfilment follow-up
func (w *ShortfallWorker) HandleStockShortfall(_ context.Context, event *models.StockShortfallEvent) error {
	util.StockShortfallAlertsTotal.Inc()
	w.logger.Error("Paid order cannot be fulfilled from stock",
		zap.String("order_id", event.OrderID.String()),
		zap.String("reference", event.Reference),
		zap.Int64("product_id", event.ProductID),
		zap.Int("requested", event.Requested),
		zap.Int("available", event.Available))
	return nil
}

// Start starts the worker
func (w *ShortfallWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting shortfall worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *ShortfallWorker) Stop() error {
	w.logger.Info("Stopping shortfall worker")
	return w.consumer.Close()
}
