package model

import (
	"time"

	"github.com/google/uuid"
)

// =====================================================
// LICENSE STATUS
// =====================================================
const (
	LicenseStatusAvailable = "AVAILABLE"
	LicenseStatusReserved  = "RESERVED"
	LicenseStatusSold      = "SOLD"
)

// =====================================================
// WAITLIST ENTRY STATUS
// =====================================================
const (
	WaitlistStatusPending       = "PENDING"
	WaitlistStatusReadyForEmail = "READY_FOR_EMAIL"
	WaitlistStatusProcessing    = "PROCESSING"
	WaitlistStatusCompleted     = "COMPLETED"
	WaitlistStatusFailed        = "FAILED"
)

// License is a pre-provisioned key for one product.
// Invariant: status = SOLD iff orderId and soldAt are set.
type License struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	ProductRef   string     `json:"product_ref" db:"product_ref"`
	LicenseKey   string     `json:"license_key" db:"license_key"`
	Status       string     `json:"status" db:"status"`
	OrderID      *uuid.UUID `json:"order_id,omitempty" db:"order_id"`
	ReservedAt   *time.Time `json:"reserved_at,omitempty" db:"reserved_at"`
	SoldAt       *time.Time `json:"sold_at,omitempty" db:"sold_at"`
	Instructions string     `json:"instructions" db:"instructions"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

// WaitlistEntry is a paid order waiting for inventory. Priority is the
// creation timestamp; delivery is FIFO per product. Staging fills
// LicenseIDs with exactly Qty reserved licenses.
type WaitlistEntry struct {
	ID           uuid.UUID   `json:"id" db:"id"`
	OrderID      uuid.UUID   `json:"order_id" db:"order_id"`
	CustomerID   uuid.UUID   `json:"customer_id" db:"customer_id"`
	ProductRef   string      `json:"product_ref" db:"product_ref"`
	Qty          int         `json:"qty" db:"qty"`
	Status       string      `json:"status" db:"status"`
	Priority     time.Time   `json:"priority" db:"priority"`
	LicenseIDs   []uuid.UUID `json:"license_ids,omitempty" db:"license_ids"`
	RetryCount   int         `json:"retry_count" db:"retry_count"`
	ErrorMessage *string     `json:"error_message,omitempty" db:"error_message"`
	ProcessedAt  *time.Time  `json:"processed_at,omitempty" db:"processed_at"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
}

// InventoryCounts is the per-product license breakdown.
// available + reserved + sold is invariant under waitlist staging.
type InventoryCounts struct {
	Available int `json:"available"`
	Reserved  int `json:"reserved"`
	Sold      int `json:"sold"`
}
