package epayco

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// ComputeSignature returns the hex SHA-256 of the caret-joined tuple
// the confirmation webhook is signed with:
// clientId^pKey^refPayco^transactionId^amount^currency.
// The amount string must be used exactly as received, not reformatted.
func ComputeSignature(clientID, pKey, refPayco, transactionID, amount, currency string) string {
	tuple := strings.Join([]string{clientID, pKey, refPayco, transactionID, amount, currency}, "^")
	sum := sha256.Sum256([]byte(tuple))
	return hex.EncodeToString(sum[:])
}

// VerifySignature compares the received hex signature against the
// recomputed one. Missing fields fail closed.
func VerifySignature(clientID, pKey, refPayco, transactionID, amount, currency, signature string) bool {
	if refPayco == "" || transactionID == "" || amount == "" || currency == "" || signature == "" {
		return false
	}
	expected := ComputeSignature(clientID, pKey, refPayco, transactionID, amount, currency)
	return subtle.ConstantTimeCompare([]byte(strings.ToLower(signature)), []byte(expected)) == 1
}
