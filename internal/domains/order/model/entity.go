package model

import (
	"time"

	"github.com/google/uuid"
)

// =====================================================
// ORDER STATUS
// =====================================================
const (
	OrderStatusPending   = "PENDING"
	OrderStatusInProcess = "IN_PROCESS"
	OrderStatusCompleted = "COMPLETED"
	OrderStatusCanceled  = "CANCELED"
)

var ValidOrderStatuses = []string{
	OrderStatusPending,
	OrderStatusInProcess,
	OrderStatusCompleted,
	OrderStatusCanceled,
}

// =====================================================
// ORDER ENTITY
// =====================================================

// Order is a purchase of one product. Monetary fields are integer minor
// units (cents). ShippingInfo and Meta are JSONB columns: ShippingInfo holds
// delivery metadata (including the email confirmation subtree), Meta holds
// append-only audit subtrees (webhook, revived, statusVerification,
// licenseChange).
type Order struct {
	ID            uuid.UUID              `json:"id" db:"id"`
	CustomerID    uuid.UUID              `json:"customer_id" db:"customer_id"`
	ProductRef    string                 `json:"product_ref" db:"product_ref"`
	Qty           int                    `json:"qty" db:"qty"`
	Subtotal      int64                  `json:"subtotal" db:"subtotal"`
	DiscountTotal int64                  `json:"discount_total" db:"discount_total"`
	TaxTotal      int64                  `json:"tax_total" db:"tax_total"`
	GrandTotal    int64                  `json:"grand_total" db:"grand_total"`
	Currency      string                 `json:"currency" db:"currency"`
	Status        string                 `json:"status" db:"status"`
	ShippingInfo  map[string]interface{} `json:"shipping_info,omitempty" db:"shipping_info"`
	Meta          map[string]interface{} `json:"meta,omitempty" db:"meta"`
	CreatedAt     time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at" db:"updated_at"`
}

// EmailConfirmation is the shippingInfo.email subtree recorded when a
// fulfillment email is attempted.
type EmailConfirmation struct {
	Sent        bool       `json:"sent"`
	SentAt      *time.Time `json:"sentAt,omitempty"`
	AttemptedAt *time.Time `json:"attemptedAt,omitempty"`
	MessageID   string     `json:"messageId,omitempty"`
	Recipient   string     `json:"recipient,omitempty"`
	Type        string     `json:"type,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// EmailSent reports whether the license email confirmation is recorded.
// An order with a license product must never be COMPLETED without it.
func (o *Order) EmailSent() bool {
	raw, ok := o.ShippingInfo["email"].(map[string]interface{})
	if !ok {
		return false
	}
	sent, _ := raw["sent"].(bool)
	return sent
}
