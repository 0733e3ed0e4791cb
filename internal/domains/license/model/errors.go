package model

import (
	"errors"
	"fmt"
)

// =====================================================
// PREDEFINED ERRORS
// =====================================================

var (
	ErrLicenseNotFound       = errors.New("license not found")
	ErrNoAvailableLicense    = errors.New("no available license for product")
	ErrLicenseNotSold        = errors.New("license is not in sold status")
	ErrWaitlistEntryNotFound = errors.New("waitlist entry not found")
	ErrWaitlistEntryClosed   = errors.New("waitlist entry is already completed or failed")
	ErrDuplicateLicenseKey   = errors.New("license key already exists for product")
)

// =====================================================
// INTERNAL ERROR CODES
// =====================================================
const (
	ErrCodeLicenseNotFound    = "LIC001"
	ErrCodeNoAvailableLicense = "LIC002"
	ErrCodeWaitlistNotFound   = "LIC003"
	ErrCodeWaitlistClosed     = "LIC004"
	ErrCodeDuplicateKey       = "LIC005"
	ErrCodeDeliveryFailed     = "LIC006"
)

// LicenseError carries an internal code alongside the wrapped cause.
type LicenseError struct {
	Code    string
	Message string
	Err     error
}

func (e *LicenseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *LicenseError) Unwrap() error {
	return e.Err
}

func NewLicenseError(code, message string, err error) *LicenseError {
	return &LicenseError{Code: code, Message: message, Err: err}
}

func NewNoAvailableLicenseError(productRef string) *LicenseError {
	return NewLicenseError(
		ErrCodeNoAvailableLicense,
		fmt.Sprintf("No available license for product: %s", productRef),
		ErrNoAvailableLicense,
	)
}
