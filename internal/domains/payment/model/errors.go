package model

import (
	"errors"
	"fmt"
)

// =====================================================
// PREDEFINED ERRORS
// =====================================================

var (
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrWebhookEventNotFound = errors.New("webhook event not found")
	ErrUnknownProvider      = errors.New("unknown payment provider")
	ErrInvalidSignature     = errors.New("webhook signature verification failed")
	ErrParseFailure         = errors.New("webhook payload could not be parsed")
	ErrMissingExternalRef   = errors.New("event carries no external reference")
	ErrAmbiguousMatch       = errors.New("amount correlation matched more than one transaction")
	ErrNoMatch              = errors.New("no transaction matched the event")
	ErrAlreadyProcessing    = errors.New("transaction verification already in progress")
	ErrStaleEvent           = errors.New("event is older than the last applied webhook")
	ErrStatusConflict       = errors.New("transaction status changed concurrently")
	ErrGatewayUnavailable   = errors.New("payment gateway request failed")
	ErrRateLimited          = errors.New("gateway rate limit reached")
)

// =====================================================
// INTERNAL ERROR CODES
// =====================================================
const (
	ErrCodeTransactionNotFound = "PAY001"
	ErrCodeUnknownProvider     = "PAY002"
	ErrCodeInvalidSignature    = "PAY003"
	ErrCodeParseFailure        = "PAY004"
	ErrCodeAmbiguousMatch      = "PAY005"
	ErrCodeNoMatch             = "PAY006"
	ErrCodeAlreadyProcessing   = "PAY007"
	ErrCodeGatewayFailure      = "PAY008"
	ErrCodeRateLimited         = "PAY009"
)

// PaymentError carries an internal code alongside the wrapped cause.
type PaymentError struct {
	Code    string
	Message string
	Err     error
}

func (e *PaymentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

func NewPaymentError(code, message string, err error) *PaymentError {
	return &PaymentError{Code: code, Message: message, Err: err}
}

func NewInvalidSignatureError(provider string) *PaymentError {
	return NewPaymentError(
		ErrCodeInvalidSignature,
		fmt.Sprintf("Signature verification failed for provider: %s", provider),
		ErrInvalidSignature,
	)
}

func NewAmbiguousMatchError(amount int64, candidates int) *PaymentError {
	return NewPaymentError(
		ErrCodeAmbiguousMatch,
		fmt.Sprintf("Amount %d matched %d open transactions, refusing to guess", amount, candidates),
		ErrAmbiguousMatch,
	)
}
