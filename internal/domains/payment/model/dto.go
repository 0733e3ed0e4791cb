package model

import (
	"time"

	"github.com/google/uuid"
)

// =====================================================
// NORMALIZED EVENT
// =====================================================

// Event types distinguish payment notifications from account-level
// balance credits, which carry no order correlation.
const (
	EventTypePayment       = "payment"
	EventTypeBalanceCredit = "balance_credit"
)

// NormalizedEvent is the provider-independent shape every adapter
// produces. Status is one of the transaction statuses; RawStatus keeps
// the provider's own value for the audit trail. ExternalRef may be
// empty for providers that omit it on failures, in which case amount
// correlation is attempted downstream.
type NormalizedEvent struct {
	Provider    string
	ExternalRef string
	EventID     string
	Type        string
	Status      string
	RawStatus   string
	Amount      int64
	Currency    string
	OccurredAt  time.Time
	EventIndex  int
	Payload     map[string]interface{}
}

// =====================================================
// PROCESSING OUTCOMES
// =====================================================
const (
	OutcomeProcessed = "processed"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
	OutcomeFailed    = "failed"
)

// HandleResult reports what one event did to the transaction state.
type HandleResult struct {
	Outcome       string    `json:"outcome"`
	TransactionID uuid.UUID `json:"transaction_id,omitempty"`
	OrderID       uuid.UUID `json:"order_id,omitempty"`
	OldStatus     string    `json:"old_status,omitempty"`
	NewStatus     string    `json:"new_status,omitempty"`
	Waitlisted    bool      `json:"waitlisted,omitempty"`
	Reason        string    `json:"reason,omitempty"`
}

// ProcessSummary is the webhook endpoint response body. Providers
// that batch events get per-event accounting.
type ProcessSummary struct {
	TotalEvents      int   `json:"totalEvents"`
	ProcessedEvents  int   `json:"processedEvents"`
	FailedEvents     int   `json:"failedEvents"`
	DuplicateEvents  int   `json:"duplicateEvents"`
	ProcessingTimeMs int64 `json:"processingTimeMs"`
}

// =====================================================
// VERIFICATION
// =====================================================

// VerificationResult is the outcome of one reconciliation check
// against the provider's status API.
type VerificationResult struct {
	TransactionID  uuid.UUID `json:"transaction_id"`
	OrderID        uuid.UUID `json:"order_id"`
	LocalStatus    string    `json:"local_status"`
	GatewayStatus  string    `json:"gateway_status"`
	Changed        bool      `json:"changed"`
	Applied        bool      `json:"applied"`
	IntegrityIssue string    `json:"integrity_issue,omitempty"`
	FromCache      bool      `json:"from_cache"`
}

// VerifyBatchSummary aggregates a stuck-transaction sweep.
type VerifyBatchSummary struct {
	Checked int `json:"checked"`
	Changed int `json:"changed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}
