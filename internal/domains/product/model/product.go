package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrProductNotFound = errors.New("product not found")
var ErrDuplicateProductRef = errors.New("product ref already exists")

// Product is a storefront item. LicenseType products are fulfilled by
// delivering a pre-provisioned license key; the rest complete on payment.
type Product struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Ref         string    `json:"ref" db:"ref"`
	Name        string    `json:"name" db:"name"`
	PriceCents  int64     `json:"price_cents" db:"price_cents"`
	Currency    string    `json:"currency" db:"currency"`
	LicenseType bool      `json:"license_type" db:"license_type"`
	Active      bool      `json:"active" db:"active"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}
