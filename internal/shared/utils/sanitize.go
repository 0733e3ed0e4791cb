package utils

import (
	"encoding/json"
	"regexp"
)

const (
	// Caps applied before webhook payloads are persisted.
	MaxStringLen  = 1000
	MaxObjectLen  = 50000
	MaxRawBodyLen = 10000
)

var checkoutTextPattern = regexp.MustCompile(`[^\w\s.\-]`)

// TruncateString caps a string at max characters.
func TruncateString(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// SanitizeString caps untrusted strings before persistence.
func SanitizeString(s string) string {
	return TruncateString(s, MaxStringLen)
}

// SanitizeRawBody caps a raw webhook body before persistence.
func SanitizeRawBody(body []byte) string {
	if len(body) > MaxRawBodyLen {
		body = body[:MaxRawBodyLen]
	}
	return string(body)
}

// SanitizeObject round-trips a value through JSON and caps its serialized
// size. Oversized objects are replaced by a marker so persistence never fails
// on payload size.
func SanitizeObject(v map[string]interface{}) map[string]interface{} {
	if v == nil {
		return nil
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return map[string]interface{}{"_sanitize_error": err.Error()}
	}
	if len(raw) > MaxObjectLen {
		return map[string]interface{}{
			"_truncated":     true,
			"_original_size": len(raw),
		}
	}

	var clean map[string]interface{}
	if err := json.Unmarshal(raw, &clean); err != nil {
		return map[string]interface{}{"_sanitize_error": err.Error()}
	}
	return clean
}

// SanitizeCheckoutText strips characters the checkout API rejects and caps
// the length. Used for checkout_header, checkout_item and description fields.
func SanitizeCheckoutText(s string, max int) string {
	s = checkoutTextPattern.ReplaceAllString(s, "")
	return TruncateString(s, max)
}
