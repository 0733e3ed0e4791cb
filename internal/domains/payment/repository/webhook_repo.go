package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"licensify-backend/internal/domains/payment/model"
	"licensify-backend/pkg/database"
)

type webhookRepository struct {
	pool *pgxpool.Pool
}

func NewWebhookRepository(pool *pgxpool.Pool) WebhookRepoInterface {
	return &webhookRepository{pool: pool}
}

func (r *webhookRepository) q(ctx context.Context) database.Querier {
	return database.FromContext(ctx, r.pool)
}

func (r *webhookRepository) Create(ctx context.Context, event *model.WebhookEvent) error {
	query := `
		INSERT INTO webhook_events (
			id, provider, external_ref, event_id, extracted_status, status,
			raw_body, headers, error_message, received_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	headersJSON, err := json.Marshal(event.Headers)
	if err != nil {
		return fmt.Errorf("failed to marshal event headers: %w", err)
	}

	_, err = r.q(ctx).Exec(ctx, query,
		event.ID,
		event.Provider,
		event.ExternalRef,
		event.EventID,
		event.ExtractedStatus,
		event.Status,
		event.RawBody,
		headersJSON,
		event.ErrorMessage,
		event.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert webhook event: %w", err)
	}

	return nil
}

func (r *webhookRepository) GetByProviderExternalRef(ctx context.Context, provider, externalRef string) (*model.WebhookEvent, error) {
	query := `
		SELECT id, provider, external_ref, event_id, extracted_status, status,
			raw_body, headers, error_message, processed_at, received_at
		FROM webhook_events
		WHERE provider = $1 AND external_ref = $2
		ORDER BY received_at DESC
		LIMIT 1
	`

	event := &model.WebhookEvent{}
	var headersJSON []byte

	err := r.q(ctx).QueryRow(ctx, query, provider, externalRef).Scan(
		&event.ID,
		&event.Provider,
		&event.ExternalRef,
		&event.EventID,
		&event.ExtractedStatus,
		&event.Status,
		&event.RawBody,
		&headersJSON,
		&event.ErrorMessage,
		&event.ProcessedAt,
		&event.ReceivedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrWebhookEventNotFound
		}
		return nil, fmt.Errorf("failed to get webhook event: %w", err)
	}

	if headersJSON != nil {
		json.Unmarshal(headersJSON, &event.Headers)
	}

	return event, nil
}

func (r *webhookRepository) UpdateStatusAndEventID(ctx context.Context, id uuid.UUID, extractedStatus, eventID string) error {
	query := `
		UPDATE webhook_events
		SET extracted_status = $2, event_id = $3, status = $4, processed_at = NULL, error_message = NULL
		WHERE id = $1
	`
	return r.exec(ctx, query, id, extractedStatus, eventID, model.WebhookStatusReceived)
}

func (r *webhookRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE webhook_events
		SET status = $2, processed_at = NOW(), error_message = NULL
		WHERE id = $1
	`
	return r.exec(ctx, query, id, model.WebhookStatusProcessed)
}

func (r *webhookRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	query := `
		UPDATE webhook_events
		SET status = $2, processed_at = NOW(), error_message = $3
		WHERE id = $1
	`
	return r.exec(ctx, query, id, model.WebhookStatusFailed, errMsg)
}

func (r *webhookRepository) exec(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.q(ctx).Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update webhook event: %w", err)
	}
	if result.RowsAffected() == 0 {
		return model.ErrWebhookEventNotFound
	}
	return nil
}
