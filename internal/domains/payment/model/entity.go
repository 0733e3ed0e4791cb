package model

import (
	"time"

	"github.com/google/uuid"
)

// =====================================================
// TRANSACTION STATUS
// =====================================================
const (
	TxStatusCreated = "CREATED"
	TxStatusPending = "PENDING"
	TxStatusPaid    = "PAID"
	TxStatusFailed  = "FAILED"
)

// statusRank orders transaction statuses for the monotonic guard: a
// terminal status never regresses to an earlier one.
var statusRank = map[string]int{
	TxStatusCreated: 0,
	TxStatusPending: 1,
	TxStatusFailed:  2,
	TxStatusPaid:    3,
}

// IsTerminalStatus reports whether a status ends the transaction
// lifecycle. PAID wins over FAILED when both arrive.
func IsTerminalStatus(status string) bool {
	return status == TxStatusPaid || status == TxStatusFailed
}

// StatusRank returns the precedence of a status, higher wins.
// Unknown statuses rank lowest.
func StatusRank(status string) int {
	return statusRank[status]
}

// =====================================================
// PROVIDERS
// =====================================================
const (
	ProviderPalomma = "palomma"
	ProviderEPayco  = "epayco"
	ProviderMock    = "mock"
)

// =====================================================
// TRANSACTION ENTITY
// =====================================================

// Transaction tracks one payment attempt for an order. GatewayRef is
// the provider-side reference (checkout id or refPayco) once known;
// amounts are integer minor units.
type Transaction struct {
	ID         uuid.UUID              `json:"id" db:"id"`
	OrderID    uuid.UUID              `json:"order_id" db:"order_id"`
	Gateway    string                 `json:"gateway" db:"gateway"`
	GatewayRef *string                `json:"gateway_ref,omitempty" db:"gateway_ref"`
	Amount     int64                  `json:"amount" db:"amount"`
	Currency   string                 `json:"currency" db:"currency"`
	Status     string                 `json:"status" db:"status"`
	Meta       map[string]interface{} `json:"meta,omitempty" db:"meta"`
	CreatedAt  time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at" db:"updated_at"`
}

// IsOpen reports whether the transaction can still change status.
func (t *Transaction) IsOpen() bool {
	return t.Status == TxStatusCreated || t.Status == TxStatusPending
}

// LastWebhookAt reads the meta.lastWebhookAt guard timestamp, zero
// when never set.
func (t *Transaction) LastWebhookAt() time.Time {
	raw, ok := t.Meta["lastWebhookAt"].(string)
	if !ok {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return ts
}

// =====================================================
// WEBHOOK EVENT ENTITY
// =====================================================
const (
	WebhookStatusReceived  = "RECEIVED"
	WebhookStatusProcessed = "PROCESSED"
	WebhookStatusFailed    = "FAILED"
)

// WebhookEvent is the audit record for one ingested provider event.
// (Provider, ExternalRef, ExtractedStatus) is the idempotency key: a
// replay with the same triple is a duplicate, a replay with a new
// status is a legitimate state change.
type WebhookEvent struct {
	ID              uuid.UUID              `json:"id" db:"id"`
	Provider        string                 `json:"provider" db:"provider"`
	ExternalRef     string                 `json:"external_ref" db:"external_ref"`
	EventID         string                 `json:"event_id" db:"event_id"`
	ExtractedStatus string                 `json:"extracted_status" db:"extracted_status"`
	Status          string                 `json:"status" db:"status"`
	RawBody         string                 `json:"raw_body" db:"raw_body"`
	Headers         map[string]interface{} `json:"headers,omitempty" db:"headers"`
	ErrorMessage    *string                `json:"error_message,omitempty" db:"error_message"`
	ProcessedAt     *time.Time             `json:"processed_at,omitempty" db:"processed_at"`
	ReceivedAt      time.Time              `json:"received_at" db:"received_at"`
}
