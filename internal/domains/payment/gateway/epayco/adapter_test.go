package epayco

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensify-backend/internal/config"
	"licensify-backend/internal/domains/payment/gateway"
	"licensify-backend/internal/domains/payment/model"
)

func testAdapter() *Adapter {
	return NewAdapter(config.EPaycoConfig{ClientID: "client1", PKey: "pkey1"})
}

func confirmationBody(overrides map[string]string) []byte {
	v := url.Values{}
	v.Set("x_ref_payco", "ref123")
	v.Set("x_transaction_id", "tx456")
	v.Set("x_amount", "150000.00")
	v.Set("x_currency_code", "COP")
	v.Set("x_cod_response", "1")
	v.Set("x_response", "Aceptada")
	v.Set("x_id_invoice", "office-2024-epayco-order1")
	v.Set("x_transaction_date", "2026-03-01 10:00:00")
	for k, val := range overrides {
		if val == "" {
			v.Del(k)
		} else {
			v.Set(k, val)
		}
	}
	v.Set("x_signature", ComputeSignature(
		"client1", "pkey1",
		v.Get("x_ref_payco"), v.Get("x_transaction_id"),
		v.Get("x_amount"), v.Get("x_currency_code"),
	))
	return []byte(v.Encode())
}

func TestAdapterVerifySignature(t *testing.T) {
	adapter := testAdapter()

	t.Run("valid form body", func(t *testing.T) {
		req := &gateway.WebhookRequest{Body: confirmationBody(nil)}
		assert.NoError(t, adapter.VerifySignature(req))
	})

	t.Run("fields may arrive as query params", func(t *testing.T) {
		body := confirmationBody(nil)
		values, _ := url.ParseQuery(string(body))
		query := make(map[string]string, len(values))
		for k := range values {
			query[k] = values.Get(k)
		}
		req := &gateway.WebhookRequest{Query: query}
		assert.NoError(t, adapter.VerifySignature(req))
	})

	t.Run("tampered amount", func(t *testing.T) {
		body := confirmationBody(nil)
		values, _ := url.ParseQuery(string(body))
		values.Set("x_amount", "1.00")
		req := &gateway.WebhookRequest{Body: []byte(values.Encode())}
		assert.ErrorIs(t, adapter.VerifySignature(req), model.ErrInvalidSignature)
	})
}

func TestParseConfirmation(t *testing.T) {
	adapter := testAdapter()

	events, err := adapter.ParseWebhook(&gateway.WebhookRequest{Body: confirmationBody(nil)})
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, model.ProviderEPayco, ev.Provider)
	assert.Equal(t, "office-2024-epayco-order1", ev.ExternalRef)
	assert.Equal(t, "ref123", ev.EventID)
	assert.Equal(t, model.TxStatusPaid, ev.Status)
	assert.Equal(t, "Aceptada", ev.RawStatus)
	assert.Equal(t, int64(15000000), ev.Amount)
	assert.Equal(t, "COP", ev.Currency)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), ev.OccurredAt)
}

func TestResponseCodeMapping(t *testing.T) {
	adapter := testAdapter()

	tests := []struct {
		cod  string
		want string
	}{
		{cod: "1", want: model.TxStatusPaid},
		{cod: "2", want: model.TxStatusFailed},
		{cod: "3", want: model.TxStatusPending},
		{cod: "4", want: model.TxStatusFailed},
		{cod: "99", want: model.TxStatusFailed},
	}

	for _, tt := range tests {
		t.Run("cod "+tt.cod, func(t *testing.T) {
			body := confirmationBody(map[string]string{"x_cod_response": tt.cod})
			events, err := adapter.ParseWebhook(&gateway.WebhookRequest{Body: body})
			require.NoError(t, err)
			assert.Equal(t, tt.want, events[0].Status)
		})
	}
}

func TestExternalRefFallback(t *testing.T) {
	adapter := testAdapter()

	t.Run("pending without invoice falls back to ref payco", func(t *testing.T) {
		body := confirmationBody(map[string]string{"x_id_invoice": "", "x_cod_response": "3"})
		events, err := adapter.ParseWebhook(&gateway.WebhookRequest{Body: body})
		require.NoError(t, err)
		assert.Equal(t, "ref123", events[0].ExternalRef)
	})

	t.Run("failure without invoice keeps empty ref for amount correlation", func(t *testing.T) {
		body := confirmationBody(map[string]string{"x_id_invoice": "", "x_cod_response": "2"})
		events, err := adapter.ParseWebhook(&gateway.WebhookRequest{Body: body})
		require.NoError(t, err)
		assert.Empty(t, events[0].ExternalRef)
	})
}

func TestParseConfirmationErrors(t *testing.T) {
	adapter := testAdapter()

	t.Run("missing ref payco", func(t *testing.T) {
		_, err := adapter.ParseWebhook(&gateway.WebhookRequest{Body: []byte("x_amount=100")})
		assert.ErrorIs(t, err, model.ErrParseFailure)
	})

	t.Run("bad amount", func(t *testing.T) {
		body := confirmationBody(map[string]string{"x_amount": "abc"})
		_, err := adapter.ParseWebhook(&gateway.WebhookRequest{Body: body})
		assert.ErrorIs(t, err, model.ErrParseFailure)
	})
}

func TestToCents(t *testing.T) {
	tests := []struct {
		raw     string
		want    int64
		wantErr bool
	}{
		{raw: "150000.00", want: 15000000},
		{raw: "150000", want: 15000000},
		{raw: "0.5", want: 50},
		{raw: "99.999", want: 10000},
		{raw: "", wantErr: true},
		{raw: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := toCents(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
