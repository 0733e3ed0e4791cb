package palomma

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeSignature(t *testing.T) {
	body := []byte(`{"event_id":"evt_1"}`)

	sig := ComputeSignature("whsec_test", "1700000000", body)

	assert.Len(t, sig, 64)
	// Deterministic for the same inputs.
	assert.Equal(t, sig, ComputeSignature("whsec_test", "1700000000", body))
	// Timestamp participates in the digest.
	assert.NotEqual(t, sig, ComputeSignature("whsec_test", "1700000001", body))
}

func TestVerifySignature(t *testing.T) {
	secret := "whsec_test"
	timestamp := "1700000000"
	body := []byte(`{"event_id":"evt_1","content":{"status":"completed"}}`)
	valid := ComputeSignature(secret, timestamp, body)

	tests := []struct {
		name      string
		secret    string
		timestamp string
		signature string
		body      []byte
		want      bool
	}{
		{
			name:      "valid signature",
			secret:    secret,
			timestamp: timestamp,
			signature: valid,
			body:      body,
			want:      true,
		},
		{
			name:      "tampered body",
			secret:    secret,
			timestamp: timestamp,
			signature: valid,
			body:      []byte(`{"event_id":"evt_1","content":{"status":"failed"}}`),
			want:      false,
		},
		{
			name:      "wrong timestamp",
			secret:    secret,
			timestamp: "1700000099",
			signature: valid,
			body:      body,
			want:      false,
		},
		{
			name:      "wrong secret",
			secret:    "whsec_other",
			timestamp: timestamp,
			signature: valid,
			body:      body,
			want:      false,
		},
		{
			name:      "missing signature",
			secret:    secret,
			timestamp: timestamp,
			signature: "",
			body:      body,
			want:      false,
		},
		{
			name:      "missing timestamp",
			secret:    secret,
			timestamp: "",
			signature: valid,
			body:      body,
			want:      false,
		},
		{
			name:      "malformed hex",
			secret:    secret,
			timestamp: timestamp,
			signature: "not-hex!",
			body:      body,
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := VerifySignature(tt.secret, tt.timestamp, tt.signature, tt.body)
			assert.Equal(t, tt.want, got)
		})
	}
}
