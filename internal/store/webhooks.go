package store

import (
	"context"

	"checkout-service/internal/models"
)

// CreateWebhookEvent appends a webhook audit record
func (s *Store) CreateWebhookEvent(ctx context.Context, event *models.WebhookEvent) error {
	query := `
		INSERT INTO webhook_events (event_type, reference, payload, processed)
		VALUES ($1, $2, $3, FALSE)
		RETURNING id, created_at`

	return s.db.QueryRowxContext(ctx, query,
		event.EventType, event.Reference, event.Payload,
	).Scan(&event.ID, &event.CreatedAt)
}

// MarkWebhookEventProcessed flips the processed flag
func (s *Store) MarkWebhookEventProcessed(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE webhook_events SET processed = TRUE WHERE id = $1", id)
	return err
}

// ListUnprocessedWebhookEvents returns the oldest unprocessed events
func (s *Store) ListUnprocessedWebhookEvents(ctx context.Context, limit int) ([]models.WebhookEvent, error) {
	var events []models.WebhookEvent
	err := s.db.SelectContext(ctx, &events,
		"SELECT * FROM webhook_events WHERE NOT processed ORDER BY id LIMIT $1", limit)
	return events, err
}
