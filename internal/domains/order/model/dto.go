package model

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	customerModel "licensify-backend/internal/domains/customer/model"
)

// =====================================================
// CREATE ORDER REQUEST/RESPONSE
// =====================================================

type CreateOrderRequest struct {
	ProductRef   string                      `json:"product_ref" binding:"required"`
	Qty          int                         `json:"qty"`
	DiscountCode string                      `json:"discount_code"`
	Gateway      string                      `json:"gateway" binding:"required"`
	Customer     customerModel.CustomerInput `json:"customer" binding:"required"`
}

// Validate checks the request. Qty defaults to 1 at the service layer, so
// zero is accepted here.
func (r CreateOrderRequest) Validate() error {
	err := validation.ValidateStruct(&r,
		validation.Field(&r.ProductRef, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.Qty, validation.Min(0)),
		validation.Field(&r.Gateway, validation.Required),
	)
	if err != nil {
		return fmt.Errorf("invalid order request: %w", err)
	}
	return r.Customer.Validate()
}

type CreateOrderResponse struct {
	Order        *Order                 `json:"order"`
	Transaction  interface{}            `json:"transaction"`
	CheckoutData map[string]interface{} `json:"checkout_data,omitempty"`
}

// =====================================================
// ADMIN OPERATIONS
// =====================================================

type ReviveOrderRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type ReviveOrderResponse struct {
	OrderID    uuid.UUID `json:"order_id"`
	Status     string    `json:"status"`
	LicenseKey string    `json:"license_key,omitempty"`
	RevivedAt  time.Time `json:"revived_at"`
}

type ChangeLicenseResponse struct {
	OrderID       uuid.UUID `json:"order_id"`
	OldLicenseID  uuid.UUID `json:"old_license_id"`
	NewLicenseID  uuid.UUID `json:"new_license_id"`
	NewLicenseKey string    `json:"new_license_key"`
}
