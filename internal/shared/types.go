package shared

import "github.com/google/uuid"

// Asynq task types
const (
	TypeProcessNextWaitlistEntry = "waitlist:process_next"
	TypeStageWaitlist            = "waitlist:stage"
	TypeVerifyStuckTransactions  = "payment:verify_stuck"
	TypeSendWaitlistNotification = "email:waitlist_notification"
	TypeSendOrderConfirmation    = "email:order_confirmation"
)

// Asynq queue names
const (
	QueueFulfillment = "fulfillment"
	QueueEmail       = "email"
	QueueDefault     = "default"
)

// StageWaitlistPayload triggers waitlist staging for one product.
type StageWaitlistPayload struct {
	ProductRef string `json:"productRef"`
}

// VerifyStuckPayload caps the reconciliation sweep batch.
type VerifyStuckPayload struct {
	Limit int `json:"limit"`
}

// WaitlistNotificationPayload carries the entry whose customer gets notified.
type WaitlistNotificationPayload struct {
	EntryID uuid.UUID `json:"entryId"`
}

// OrderConfirmationPayload carries the confirmed order.
type OrderConfirmationPayload struct {
	OrderID uuid.UUID `json:"orderId"`
}
