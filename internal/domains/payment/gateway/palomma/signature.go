package palomma

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Signature header names used on webhook deliveries.
const (
	HeaderSignature = "Palomma-Signature"
	HeaderTimestamp = "Palomma-Timestamp"
)

// ComputeSignature returns the hex HMAC-SHA256 of "<timestamp>.<rawBody>"
// under the webhook secret. The raw body bytes must be exactly what was
// received on the wire.
func ComputeSignature(secret, timestamp string, rawBody []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(rawBody)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received signature in constant time.
// Missing inputs or a malformed hex signature fail closed.
func VerifySignature(secret, timestamp, signature string, rawBody []byte) bool {
	if secret == "" || timestamp == "" || signature == "" {
		return false
	}
	received, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(rawBody)
	return hmac.Equal(received, mac.Sum(nil))
}
