package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"licensify-backend/internal/domains/payment/gateway"
	"licensify-backend/internal/domains/payment/model"
)

// Adapter accepts hand-crafted webhook payloads in development and
// test environments. A payload is a JSON object (or array of objects)
// with external_ref, event_id, status, amount and currency.
// Signature check: the Mock-Signature header must equal "valid".
type Adapter struct{}

func NewAdapter() *Adapter {
	return &Adapter{}
}

func (a *Adapter) Provider() string {
	return model.ProviderMock
}

func (a *Adapter) VerifySignature(req *gateway.WebhookRequest) error {
	if req.Header("Mock-Signature") != "valid" {
		return model.NewInvalidSignatureError(model.ProviderMock)
	}
	return nil
}

type mockEvent struct {
	ExternalRef string `json:"external_ref"`
	EventID     string `json:"event_id"`
	Type        string `json:"type"`
	Status      string `json:"status"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
}

func (a *Adapter) ParseWebhook(req *gateway.WebhookRequest) ([]*model.NormalizedEvent, error) {
	var raws []mockEvent
	if err := json.Unmarshal(req.Body, &raws); err != nil {
		var single mockEvent
		if err := json.Unmarshal(req.Body, &single); err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrParseFailure, err)
		}
		raws = []mockEvent{single}
	}
	if len(raws) == 0 {
		return nil, fmt.Errorf("%w: empty payload", model.ErrParseFailure)
	}

	events := make([]*model.NormalizedEvent, 0, len(raws))
	for i, raw := range raws {
		eventID := raw.EventID
		if eventID == "" {
			eventID = uuid.NewString()
		}
		eventType := raw.Type
		if eventType == "" {
			eventType = model.EventTypePayment
		}
		events = append(events, &model.NormalizedEvent{
			Provider:    model.ProviderMock,
			ExternalRef: raw.ExternalRef,
			EventID:     eventID,
			Type:        eventType,
			Status:      raw.Status,
			RawStatus:   raw.Status,
			Amount:      raw.Amount,
			Currency:    raw.Currency,
			OccurredAt:  time.Now(),
			EventIndex:  i,
			Payload: map[string]interface{}{
				"external_ref": raw.ExternalRef,
				"status":       raw.Status,
			},
		})
	}
	return events, nil
}

// Client fakes the outbound provider in development. Checkout statuses
// can be primed per checkout id; unprimed checkouts report PENDING.
type Client struct {
	mu       sync.Mutex
	statuses map[string]gateway.StatusResult
}

func NewClient() *Client {
	return &Client{statuses: make(map[string]gateway.StatusResult)}
}

func (c *Client) Provider() string {
	return model.ProviderMock
}

func (c *Client) CreateCheckout(ctx context.Context, req *gateway.CheckoutRequest) (*gateway.Checkout, error) {
	id := "mock-" + uuid.NewString()
	c.mu.Lock()
	c.statuses[id] = gateway.StatusResult{
		Status:     model.TxStatusPending,
		RawStatus:  "pending",
		ExternalID: req.ExternalID,
		Amount:     req.Amount,
		Currency:   req.Currency,
	}
	c.mu.Unlock()

	return &gateway.Checkout{
		ID:          id,
		RedirectURL: "https://mock.checkout/" + id,
		ExpiresAt:   time.Now().Add(30 * time.Minute).Format(time.RFC3339),
	}, nil
}

func (c *Client) FetchStatus(ctx context.Context, checkoutID string, bypassCache bool) (*gateway.StatusResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if result, ok := c.statuses[checkoutID]; ok {
		return &result, nil
	}
	return nil, model.ErrTransactionNotFound
}

// PrimeStatus sets the status the next FetchStatus will report.
func (c *Client) PrimeStatus(checkoutID string, result gateway.StatusResult) {
	c.mu.Lock()
	c.statuses[checkoutID] = result
	c.mu.Unlock()
}
