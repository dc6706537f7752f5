package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/webhook"
)

const appendWebhookEventSQL = `INSERT INTO webhook_events (event_id, event_type, payload, signature_valid, received_at)
	VALUES ($1, $2, $3, $4, $5)`

var _ webhook.EventLog = (*WebhookEventRepository)(nil)

// WebhookEventRepository is the append-only webhook delivery log.
type WebhookEventRepository struct {
	pool *pgxpool.Pool
}

// NewWebhookEventRepository returns a WebhookEventRepository that uses the
// given pool.
func NewWebhookEventRepository(pool *pgxpool.Pool) *WebhookEventRepository {
	return &WebhookEventRepository{pool: pool}
}

// Append records one delivery.
func (r *WebhookEventRepository) Append(ctx context.Context, e webhook.Event) error {
	_, err := r.pool.Exec(ctx, appendWebhookEventSQL, e.EventID, e.Type, e.Payload, e.SignatureValid, e.ReceivedAt)
	if err != nil {
		return fmt.Errorf("appending webhook event %q: %w", e.EventID, err)
	}
	return nil
}
