package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"licensify-backend/internal/domains/payment/gateway"
	"licensify-backend/internal/domains/payment/model"
	"licensify-backend/internal/domains/payment/repository"
	"licensify-backend/internal/shared/utils"
	"licensify-backend/pkg/logger"
)

// WebhookService is the ingress pipeline: signature check, parse,
// idempotency bookkeeping, dispatch to the transaction state machine.
type WebhookService struct {
	registry           *gateway.Registry
	webhookRepo        repository.WebhookRepoInterface
	transactionService *TransactionService
}

func NewWebhookService(registry *gateway.Registry, webhookRepository repository.WebhookRepoInterface, transactionService *TransactionService) *WebhookService {
	return &WebhookService{
		registry:           registry,
		webhookRepo:        webhookRepository,
		transactionService: transactionService,
	}
}

// Process runs one inbound delivery through the pipeline and returns
// the per-event summary the endpoint echoes back.
func (s *WebhookService) Process(ctx context.Context, providerName string, req *gateway.WebhookRequest) (*model.ProcessSummary, error) {
	started := time.Now()

	adapter, err := s.registry.Adapter(providerName)
	if err != nil {
		return nil, err
	}

	if err := adapter.VerifySignature(req); err != nil {
		s.recordRejected(ctx, providerName, req, "signature verification failed")
		return nil, err
	}

	events, err := adapter.ParseWebhook(req)
	if err != nil {
		s.recordRejected(ctx, providerName, req, utils.TruncateString(err.Error(), 500))
		return nil, err
	}

	summary := &model.ProcessSummary{TotalEvents: len(events)}
	for _, event := range events {
		outcome := s.processEvent(ctx, event, req)
		switch outcome {
		case model.OutcomeDuplicate:
			summary.DuplicateEvents++
		case model.OutcomeFailed:
			summary.FailedEvents++
		default:
			summary.ProcessedEvents++
		}
	}

	summary.ProcessingTimeMs = time.Since(started).Milliseconds()

	logger.Info("Webhook processed", map[string]interface{}{
		"provider":   providerName,
		"total":      summary.TotalEvents,
		"processed":  summary.ProcessedEvents,
		"duplicates": summary.DuplicateEvents,
		"failed":     summary.FailedEvents,
		"elapsed_ms": summary.ProcessingTimeMs,
	})

	return summary, nil
}

// processEvent applies idempotency rules for one event and dispatches
// it when it carries new information.
func (s *WebhookService) processEvent(ctx context.Context, event *model.NormalizedEvent, req *gateway.WebhookRequest) string {
	// Reference-less events cannot be deduplicated: (provider, "") would
	// make unrelated deliveries collide. Each one gets its own record and
	// is dispatched, the state machine's own guards absorb replays.
	var existing *model.WebhookEvent
	if event.ExternalRef != "" {
		var err error
		existing, err = s.webhookRepo.GetByProviderExternalRef(ctx, event.Provider, event.ExternalRef)
		if err != nil && !errors.Is(err, model.ErrWebhookEventNotFound) {
			logger.Error("Idempotency lookup failed", err)
			return model.OutcomeFailed
		}
	}

	var recordID uuid.UUID
	switch {
	case existing == nil:
		record := s.newRecord(event, req)
		if err := s.webhookRepo.Create(ctx, record); err != nil {
			logger.Error("Failed to persist webhook event", err)
			return model.OutcomeFailed
		}
		recordID = record.ID

	case existing.ExtractedStatus == event.Status:
		// Same (provider, externalRef, status): a pure replay.
		return model.OutcomeDuplicate

	default:
		// Status changed: update the record and re-dispatch so a
		// PENDING to PAID transition is never lost.
		if err := s.webhookRepo.UpdateStatusAndEventID(ctx, existing.ID, event.Status, event.EventID); err != nil {
			logger.Error("Failed to update webhook event", err)
			return model.OutcomeFailed
		}
		recordID = existing.ID
	}

	result, err := s.transactionService.Handle(ctx, event)
	if err != nil {
		s.markOutcome(ctx, recordID, model.OutcomeFailed, err.Error())
		return model.OutcomeFailed
	}

	s.markOutcome(ctx, recordID, result.Outcome, result.Reason)
	if result.Outcome == model.OutcomeDuplicate {
		return model.OutcomeDuplicate
	}
	return model.OutcomeProcessed
}

func (s *WebhookService) newRecord(event *model.NormalizedEvent, req *gateway.WebhookRequest) *model.WebhookEvent {
	headers := make(map[string]interface{}, len(req.Headers))
	for k, v := range req.Headers {
		headers[k] = utils.SanitizeString(v)
	}

	return &model.WebhookEvent{
		ID:              uuid.New(),
		Provider:        event.Provider,
		ExternalRef:     utils.SanitizeString(event.ExternalRef),
		EventID:         utils.SanitizeString(event.EventID),
		ExtractedStatus: event.Status,
		Status:          model.WebhookStatusReceived,
		RawBody:         utils.SanitizeRawBody(req.Body),
		Headers:         utils.SanitizeObject(headers),
		ReceivedAt:      time.Now(),
	}
}

func (s *WebhookService) markOutcome(ctx context.Context, id uuid.UUID, outcome, reason string) {
	var err error
	if outcome == model.OutcomeFailed {
		err = s.webhookRepo.MarkFailed(ctx, id, utils.SanitizeString(reason))
	} else {
		err = s.webhookRepo.MarkProcessed(ctx, id)
	}
	if err != nil {
		logger.Error("Failed to record webhook outcome", err)
	}
}

// recordRejected keeps an audit record for deliveries that never made
// it past signature or parse checks.
func (s *WebhookService) recordRejected(ctx context.Context, provider string, req *gateway.WebhookRequest, reason string) {
	record := &model.WebhookEvent{
		ID:         uuid.New(),
		Provider:   provider,
		Status:     model.WebhookStatusFailed,
		RawBody:    utils.SanitizeRawBody(req.Body),
		ReceivedAt: time.Now(),
	}
	record.ErrorMessage = &reason

	if err := s.webhookRepo.Create(ctx, record); err != nil {
		logger.Error("Failed to persist rejected webhook", err)
	}
}
