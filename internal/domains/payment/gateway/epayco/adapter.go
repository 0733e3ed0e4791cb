package epayco

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"licensify-backend/internal/config"
	"licensify-backend/internal/domains/payment/gateway"
	"licensify-backend/internal/domains/payment/model"
	"licensify-backend/pkg/logger"
)

// x_cod_response values from the confirmation webhook.
var codResponseMap = map[string]string{
	"1": model.TxStatusPaid,    // Aceptada
	"2": model.TxStatusFailed,  // Rechazada
	"3": model.TxStatusPending, // Pendiente
	"4": model.TxStatusFailed,  // Fallida
}

// Adapter handles the confirmation webhook, which arrives as a
// form-encoded body of x_* fields. Amounts come in major units
// (pesos) and are converted to cents.
type Adapter struct {
	cfg config.EPaycoConfig
}

func NewAdapter(cfg config.EPaycoConfig) *Adapter {
	return &Adapter{cfg: cfg}
}

func (a *Adapter) Provider() string {
	return model.ProviderEPayco
}

// fields merges the form body with query params; the provider has
// delivered confirmations both ways.
func (a *Adapter) fields(req *gateway.WebhookRequest) url.Values {
	values, err := url.ParseQuery(string(req.Body))
	if err != nil {
		values = url.Values{}
	}
	for k, v := range req.Query {
		if values.Get(k) == "" {
			values.Set(k, v)
		}
	}
	return values
}

func (a *Adapter) VerifySignature(req *gateway.WebhookRequest) error {
	v := a.fields(req)
	ok := VerifySignature(
		a.cfg.ClientID,
		a.cfg.PKey,
		v.Get("x_ref_payco"),
		v.Get("x_transaction_id"),
		v.Get("x_amount"),
		v.Get("x_currency_code"),
		v.Get("x_signature"),
	)
	if !ok {
		return model.NewInvalidSignatureError(model.ProviderEPayco)
	}
	return nil
}

func (a *Adapter) ParseWebhook(req *gateway.WebhookRequest) ([]*model.NormalizedEvent, error) {
	v := a.fields(req)

	refPayco := v.Get("x_ref_payco")
	if refPayco == "" {
		return nil, fmt.Errorf("%w: missing x_ref_payco", model.ErrParseFailure)
	}

	amount, err := toCents(v.Get("x_amount"))
	if err != nil {
		return nil, fmt.Errorf("%w: bad x_amount: %v", model.ErrParseFailure, err)
	}

	cod := v.Get("x_cod_response")
	status, ok := codResponseMap[cod]
	if !ok {
		logger.Warn("Unknown provider response code, treating as FAILED", map[string]interface{}{
			"provider":       model.ProviderEPayco,
			"x_cod_response": cod,
		})
		status = model.TxStatusFailed
	}

	occurredAt := time.Now()
	if raw := v.Get("x_transaction_date"); raw != "" {
		if ts, err := time.Parse("2006-01-02 15:04:05", raw); err == nil {
			occurredAt = ts
		}
	}

	// x_id_invoice carries our reference; failures sometimes arrive
	// without it, leaving correlation to the amount fallback.
	externalRef := v.Get("x_id_invoice")
	if externalRef == "" && status != model.TxStatusFailed {
		externalRef = refPayco
	}

	payload := make(map[string]interface{}, len(v))
	for k := range v {
		payload[k] = v.Get(k)
	}

	return []*model.NormalizedEvent{{
		Provider:    model.ProviderEPayco,
		ExternalRef: externalRef,
		EventID:     refPayco,
		Type:        model.EventTypePayment,
		Status:      status,
		RawStatus:   v.Get("x_response"),
		Amount:      amount,
		Currency:    strings.ToUpper(v.Get("x_currency_code")),
		OccurredAt:  occurredAt,
		Payload:     payload,
	}}, nil
}

// toCents converts a major-unit decimal string ("150000.00") to cents.
func toCents(raw string) (int64, error) {
	if raw == "" {
		return 0, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, err
	}
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart(), nil
}
