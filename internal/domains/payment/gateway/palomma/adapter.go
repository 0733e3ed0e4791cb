package palomma

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"licensify-backend/internal/domains/payment/gateway"
	"licensify-backend/internal/domains/payment/model"
	"licensify-backend/pkg/logger"
)

// statusMap translates money-movement statuses. Amounts arrive already
// in minor units, no conversion needed. Unknown statuses map to FAILED.
var statusMap = map[string]string{
	"completed":   model.TxStatusPaid,
	"approved":    model.TxStatusPaid,
	"pending":     model.TxStatusPending,
	"in_progress": model.TxStatusPending,
	"created":     model.TxStatusPending,
	"failed":      model.TxStatusFailed,
	"cancelled":   model.TxStatusFailed,
	"rejected":    model.TxStatusFailed,
	"expired":     model.TxStatusFailed,
}

type webhookEnvelope struct {
	Events []webhookEvent `json:"events"`
	// Single-event deliveries put the fields at the top level.
	webhookEvent
}

type webhookEvent struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	CreatedAt  string          `json:"created_at"`
	ExternalID string          `json:"external_id"`
	Content    json.RawMessage `json:"content"`
}

type eventContent struct {
	ExternalID          string                 `json:"external_id"`
	UniqueTransactionID string                 `json:"unique_transaction_id"`
	Status              string                 `json:"status"`
	Amount              int64                  `json:"amount"`
	Currency            string                 `json:"currency"`
	Metadata            map[string]interface{} `json:"metadata"`
}

// Adapter handles webhook deliveries: HMAC verification and event
// normalization.
type Adapter struct {
	webhookSecret string
}

func NewAdapter(webhookSecret string) *Adapter {
	return &Adapter{webhookSecret: webhookSecret}
}

func (a *Adapter) Provider() string {
	return model.ProviderPalomma
}

func (a *Adapter) VerifySignature(req *gateway.WebhookRequest) error {
	timestamp := req.Header(HeaderTimestamp)
	signature := req.Header(HeaderSignature)
	if !VerifySignature(a.webhookSecret, timestamp, signature, req.Body) {
		return model.NewInvalidSignatureError(model.ProviderPalomma)
	}
	return nil
}

func (a *Adapter) ParseWebhook(req *gateway.WebhookRequest) ([]*model.NormalizedEvent, error) {
	var envelope webhookEnvelope
	if err := json.Unmarshal(req.Body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrParseFailure, err)
	}

	raws := envelope.Events
	if len(raws) == 0 {
		if envelope.EventID == "" {
			return nil, fmt.Errorf("%w: no events in payload", model.ErrParseFailure)
		}
		raws = []webhookEvent{envelope.webhookEvent}
	}

	events := make([]*model.NormalizedEvent, 0, len(raws))
	for i, raw := range raws {
		ev, err := a.normalize(raw, i)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func (a *Adapter) normalize(raw webhookEvent, index int) (*model.NormalizedEvent, error) {
	var content eventContent
	if len(raw.Content) > 0 {
		if err := json.Unmarshal(raw.Content, &content); err != nil {
			return nil, fmt.Errorf("%w: bad event content: %v", model.ErrParseFailure, err)
		}
	}

	eventType := model.EventTypePayment
	if strings.Contains(raw.EventType, "balance") {
		eventType = model.EventTypeBalanceCredit
	}

	status, ok := statusMap[strings.ToLower(content.Status)]
	if !ok {
		logger.Warn("Unknown provider status, treating as FAILED", map[string]interface{}{
			"provider": model.ProviderPalomma,
			"status":   content.Status,
			"event_id": raw.EventID,
		})
		status = model.TxStatusFailed
	}

	occurredAt := time.Now()
	if raw.CreatedAt != "" {
		if ts, err := time.Parse(time.RFC3339, raw.CreatedAt); err == nil {
			occurredAt = ts
		}
	}

	var payload map[string]interface{}
	if len(raw.Content) > 0 {
		json.Unmarshal(raw.Content, &payload)
	}

	return &model.NormalizedEvent{
		Provider:    model.ProviderPalomma,
		ExternalRef: a.resolveExternalRef(raw, content),
		EventID:     raw.EventID,
		Type:        eventType,
		Status:      status,
		RawStatus:   content.Status,
		Amount:      content.Amount,
		Currency:    strings.ToUpper(content.Currency),
		OccurredAt:  occurredAt,
		EventIndex:  index,
		Payload:     payload,
	}, nil
}

// resolveExternalRef walks the reference fields in priority order:
// content.external_id, content.unique_transaction_id,
// content.metadata.uniqueTransactionId, top-level external_id, and
// finally the event id itself.
func (a *Adapter) resolveExternalRef(raw webhookEvent, content eventContent) string {
	if content.ExternalID != "" {
		return content.ExternalID
	}
	if content.UniqueTransactionID != "" {
		return content.UniqueTransactionID
	}
	if v, ok := content.Metadata["uniqueTransactionId"].(string); ok && v != "" {
		return v
	}
	if raw.ExternalID != "" {
		return raw.ExternalID
	}

	logger.Warn("No external reference on event, falling back to event id", map[string]interface{}{
		"provider": model.ProviderPalomma,
		"event_id": raw.EventID,
	})
	return raw.EventID
}
