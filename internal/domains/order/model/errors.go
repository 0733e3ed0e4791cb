package model

import (
	"errors"
	"fmt"
)

// =====================================================
// PREDEFINED ERRORS
// =====================================================

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrOrderNotCanceled  = errors.New("order is not in canceled status")
	ErrOrderNotCompleted = errors.New("order is not in completed status")
	ErrOrderAlreadyPaid  = errors.New("order already has a paid transaction")
	ErrInvalidQty        = errors.New("quantity must be at least 1")
	ErrProductInactive   = errors.New("product is not active")
)

// =====================================================
// INTERNAL ERROR CODES
// =====================================================
const (
	ErrCodeOrderNotFound    = "ORD001"
	ErrCodeOrderAlreadyPaid = "ORD002"
	ErrCodeInvalidRequest   = "ORD003"
	ErrCodeOrderNotCanceled = "ORD004"
	ErrCodeNoLicenseToShip  = "ORD005"
	ErrCodeGatewayFailure   = "ORD006"
)

// OrderError carries an internal code alongside the wrapped cause.
type OrderError struct {
	Code    string
	Message string
	Err     error
}

func (e *OrderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *OrderError) Unwrap() error {
	return e.Err
}

func NewOrderError(code, message string, err error) *OrderError {
	return &OrderError{Code: code, Message: message, Err: err}
}

func NewOrderNotFoundError(orderID string) *OrderError {
	return NewOrderError(
		ErrCodeOrderNotFound,
		fmt.Sprintf("Order not found: %s", orderID),
		ErrOrderNotFound,
	)
}

func NewOrderNotCanceledError(status string) *OrderError {
	return NewOrderError(
		ErrCodeOrderNotCanceled,
		fmt.Sprintf("Order must be CANCELED to revive, current status: %s", status),
		ErrOrderNotCanceled,
	)
}
