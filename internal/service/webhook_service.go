package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"checkout-service/internal/gateway"
	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// WebhookService authenticates, records and processes gateway callbacks
type WebhookService struct {
	store      WebhookStore
	reconciler *Reconciler
	secret     string
	logger     *zap.Logger
}

// NewWebhookService creates a webhook service keyed with the gateway secret
func NewWebhookService(store WebhookStore, reconciler *Reconciler, secret string) *WebhookService {
	return &WebhookService{
		store:      store,
		reconciler: reconciler,
		secret:     secret,
		logger:     util.GetLogger(),
	}
}

// ReplayReport summarizes a replay run
type ReplayReport struct {
	Scanned   int `json:"scanned"`
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// Ingest handles one delivery. Unsigned or badly signed bodies are rejected
// before anything is stored. Every authentic delivery is recorded before it
// is acted on, and marked processed only once handling succeeded, so a
// failed delivery stays visible for replay.
func (ws *WebhookService) Ingest(ctx context.Context, body []byte, signature string) (*models.WebhookEvent, error) {
	ctx, span := util.StartSpan(ctx, "WebhookService.Ingest")
	defer span.End()

	if !gateway.VerifySignature(ws.secret, body, signature) {
		util.WebhookEventsTotal.WithLabelValues("unknown", "invalid_signature").Inc()
		ws.logger.Warn("Webhook rejected: invalid signature", zap.Int("body_bytes", len(body)))
		return nil, ErrInvalidSignature
	}

	event, err := gateway.ParseWebhook(body)
	if err != nil {
		util.WebhookEventsTotal.WithLabelValues("unknown", "malformed").Inc()
		ws.logger.Warn("Webhook rejected: malformed body", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrMalformedWebhook, err)
	}
	span.SetAttributes(
		attribute.String("event", event.Event),
		attribute.String("reference", event.Data.Reference))

	record := &models.WebhookEvent{
		EventType: event.Event,
		Reference: event.Data.Reference,
		Payload:   string(body),
	}
	if err := ws.store.CreateWebhookEvent(ctx, record); err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to record webhook event: %w", err)
	}

	if err := ws.dispatch(ctx, event, record.Payload, SourceWebhook); err != nil {
		util.WebhookEventsTotal.WithLabelValues(event.Event, "failed").Inc()
		util.RecordError(span, err)
		ws.logger.Error("Webhook processing failed",
			zap.Int64("webhook_event_id", record.ID),
			zap.String("event", event.Event),
			zap.String("reference", event.Data.Reference),
			zap.Error(err))
		return record, err
	}

	if err := ws.store.MarkWebhookEventProcessed(ctx, record.ID); err != nil {
		return record, fmt.Errorf("failed to mark webhook event processed: %w", err)
	}
	record.Processed = true

	util.WebhookEventsTotal.WithLabelValues(event.Event, "processed").Inc()
	return record, nil
}

// dispatch acts on an authenticated event. Charge events settle the
// referenced transaction; everything else is acknowledged and ignored.
func (ws *WebhookService) dispatch(ctx context.Context, event *gateway.WebhookEvent, raw, source string) error {
	var status string
	switch event.Event {
	case models.WebhookChargeSuccess:
		status = models.TransactionStatusSuccess
	case models.WebhookChargeFailed:
		status = models.TransactionStatusFailed
	case models.WebhookTransferSuccess, models.WebhookTransferFailed:
		ws.logger.Info("Transfer event acknowledged",
			zap.String("event", event.Event),
			zap.String("reference", event.Data.Reference))
		return nil
	default:
		ws.logger.Info("Unhandled webhook event ignored", zap.String("event", event.Event))
		return nil
	}

	settlement := models.Settlement{
		Reference:  event.Data.Reference,
		Status:     status,
		Channel:    event.Data.Channel,
		RawPayload: raw,
	}
	if event.Data.ID != 0 {
		settlement.GatewayReference = strconv.FormatInt(event.Data.ID, 10)
	}

	_, err := ws.reconciler.Settle(ctx, settlement, source)
	if errors.Is(err, ErrTransactionNotFound) {
		ws.logger.Warn("Webhook references unknown transaction",
			zap.String("event", event.Event),
			zap.String("reference", event.Data.Reference))
		return nil
	}
	return err
}

// Replay re-dispatches recorded events that were never marked processed,
// oldest first. Settlement is idempotent, so events that did land are
// harmless no-ops.
func (ws *WebhookService) Replay(ctx context.Context, limit int) (*ReplayReport, error) {
	ctx, span := util.StartSpan(ctx, "WebhookService.Replay")
	defer span.End()

	events, err := ws.store.ListUnprocessedWebhookEvents(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unprocessed webhook events: %w", err)
	}

	report := &ReplayReport{Scanned: len(events)}
	for _, rec := range events {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		event, err := gateway.ParseWebhook([]byte(rec.Payload))
		if err != nil {
			report.Failed++
			ws.logger.Error("Stored webhook payload unreadable",
				zap.Int64("webhook_event_id", rec.ID),
				zap.Error(err))
			continue
		}

		if err := ws.dispatch(ctx, event, rec.Payload, SourceReplay); err != nil {
			report.Failed++
			util.WebhookEventsTotal.WithLabelValues(event.Event, "replay_failed").Inc()
			ws.logger.Error("Webhook replay failed",
				zap.Int64("webhook_event_id", rec.ID),
				zap.Error(err))
			continue
		}

		if err := ws.store.MarkWebhookEventProcessed(ctx, rec.ID); err != nil {
			report.Failed++
			ws.logger.Error("Failed to mark replayed webhook processed",
				zap.Int64("webhook_event_id", rec.ID),
				zap.Error(err))
			continue
		}
		report.Processed++
		util.WebhookEventsTotal.WithLabelValues(event.Event, "replayed").Inc()
	}

	ws.logger.Info("Webhook replay finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("processed", report.Processed),
		zap.Int("failed", report.Failed))
	return report, nil
}
