package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Settlement sources
const (
	SourceVerify  = "verify"
	SourceWebhook = "webhook"
	SourceReplay  = "replay"
)

// StockShortfall is a paid item that could not be taken from stock
type StockShortfall struct {
	ProductID int64 `json:"product_id"`
	Requested int   `json:"requested"`
	Available int   `json:"available"`
}

// SettleResult is the outcome of one settlement attempt
type SettleResult struct {
	Transaction *models.Transaction
	Applied     bool
	Shortfalls  []StockShortfall
}

// Reconciler is the single entry point that moves a transaction out of
// pending. Verify, webhook delivery and replay all go through Settle.
type Reconciler struct {
	store          Store
	eventPublisher EventPublisher
	logger         *zap.Logger
	now            func() time.Time
}

// NewReconciler creates a new reconciler
func NewReconciler(store Store, eventPublisher EventPublisher) *Reconciler {
	return &Reconciler{
		store:          store,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
		now:            time.Now,
	}
}

// Settle applies a verified gateway verdict. The transaction and order
// update commit together; repeated or concurrent calls for a reference that
// is already terminal return it unchanged with Applied false. Stock is
// decremented only by the call that applied a success, after commit.
func (r *Reconciler) Settle(ctx context.Context, s models.Settlement, source string) (*SettleResult, error) {
	ctx, span := util.StartSpan(ctx, "Reconciler.Settle",
		attribute.String("reference", s.Reference),
		attribute.String("status", s.Status),
		attribute.String("source", source))
	defer span.End()

	if s.At.IsZero() {
		s.At = r.now().UTC()
	}

	txn, applied, err := r.store.SettleTransaction(ctx, s)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to settle %s: %w", s.Reference, err)
	}

	result := &SettleResult{Transaction: txn, Applied: applied}
	if !applied {
		util.SettlementNoopsTotal.WithLabelValues(source).Inc()
		r.logger.Info("Settlement ignored, transaction already terminal",
			zap.String("reference", txn.Reference),
			zap.String("status", txn.Status),
			zap.String("source", source))
		return result, nil
	}

	util.SettlementsTotal.WithLabelValues(txn.Status, txn.PaymentMethod, source).Inc()
	r.logger.Info("Transaction settled",
		zap.String("reference", txn.Reference),
		zap.String("status", txn.Status),
		zap.String("order_id", txn.OrderID.String()),
		zap.String("source", source))

	if txn.Status != models.TransactionStatusSuccess {
		event := &models.PaymentFailedEvent{
			BaseEvent:     models.NewBaseEvent(models.EventTypePaymentFailed),
			OrderID:       txn.OrderID,
			TransactionID: txn.ID,
			Reference:     txn.Reference,
			Status:        txn.Status,
		}
		if err := r.eventPublisher.PublishPaymentFailed(ctx, event); err != nil {
			r.logger.Error("Failed to publish PaymentFailed event", zap.Error(err))
		}
		return result, nil
	}

	items, err := r.store.GetOrderItems(ctx, txn.OrderID)
	if err != nil {
		// The payment is committed and a retry would be a no-op, so this is
		// logged for manual follow-up rather than returned.
		r.logger.Error("Failed to load order items for stock decrement",
			zap.String("order_id", txn.OrderID.String()),
			zap.Error(err))
		util.RecordError(span, err)
		return result, nil
	}

	result.Shortfalls = r.decrementStock(ctx, txn, items)

	event := &models.PaymentSucceededEvent{
		BaseEvent:     models.NewBaseEvent(models.EventTypePaymentSucceeded),
		OrderID:       txn.OrderID,
		TransactionID: txn.ID,
		Reference:     txn.Reference,
		Amount:        txn.Amount,
		Channel:       txn.PaymentMethod,
		Items:         models.ItemData(items),
	}
	if err := r.eventPublisher.PublishPaymentSucceeded(ctx, event); err != nil {
		r.logger.Error("Failed to publish PaymentSucceeded event", zap.Error(err))
	}

	return result, nil
}

// decrementStock takes each paid item from stock once. Items that cannot be
// fully covered are left untouched and reported as shortfalls.
func (r *Reconciler) decrementStock(ctx context.Context, txn *models.Transaction, items []models.OrderItem) []StockShortfall {
	var shortfalls []StockShortfall

	for _, item := range items {
		remaining, err := r.store.DecrementStock(ctx, item.ProductID, item.Quantity)
		switch {
		case err == nil:
			r.logger.Debug("Stock decremented",
				zap.Int64("product_id", item.ProductID),
				zap.Int("quantity", item.Quantity),
				zap.Int("remaining", remaining))
			continue
		case errors.Is(err, store.ErrInsufficientStock):
		case errors.Is(err, store.ErrNotFound):
			remaining = 0
		default:
			r.logger.Error("Failed to decrement stock",
				zap.Int64("product_id", item.ProductID),
				zap.String("reference", txn.Reference),
				zap.Error(err))
			remaining = -1 // unknown
		}

		shortfall := StockShortfall{ProductID: item.ProductID, Requested: item.Quantity, Available: remaining}
		shortfalls = append(shortfalls, shortfall)
		util.StockShortfallsTotal.Inc()

		r.logger.Warn("Stock shortfall on paid order",
			zap.String("order_id", txn.OrderID.String()),
			zap.String("reference", txn.Reference),
			zap.Int64("product_id", item.ProductID),
			zap.Int("requested", item.Quantity),
			zap.Int("available", remaining))

		event := &models.StockShortfallEvent{
			BaseEvent: models.NewBaseEvent(models.EventTypeStockShortfall),
			OrderID:   txn.OrderID,
			Reference: txn.Reference,
			ProductID: item.ProductID,
			Requested: item.Quantity,
			Available: remaining,
		}
		if err := r.eventPublisher.PublishStockShortfall(ctx, event); err != nil {
			r.logger.Error("Failed to publish StockShortfall event", zap.Error(err))
		}
	}

	return shortfalls
}
