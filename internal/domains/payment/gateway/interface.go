package gateway

import (
	"context"
	"strings"

	"licensify-backend/internal/domains/payment/model"
)

// WebhookRequest is the raw inbound request handed to an adapter:
// headers, query params and the unmodified body bytes the signature
// was computed over.
type WebhookRequest struct {
	Headers map[string]string
	Query   map[string]string
	Body    []byte
}

// Header does a case-insensitive lookup, since providers are not
// consistent about header casing.
func (r *WebhookRequest) Header(name string) string {
	if v, ok := r.Headers[name]; ok {
		return v
	}
	for k, v := range r.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Adapter turns one provider's webhook dialect into normalized events.
// VerifySignature runs before ParseWebhook; an adapter must verify
// against the raw body, never a re-serialized one.
type Adapter interface {
	Provider() string
	VerifySignature(req *WebhookRequest) error
	ParseWebhook(req *WebhookRequest) ([]*model.NormalizedEvent, error)
}

// CheckoutRequest is the provider-independent input for creating a
// hosted checkout session.
type CheckoutRequest struct {
	ExternalID    string
	Amount        int64
	Currency      string
	Description   string
	CustomerEmail string
	CustomerName  string
	RedirectURL   string
}

// Checkout is the created session the storefront redirects to.
type Checkout struct {
	ID          string
	RedirectURL string
	ExpiresAt   string
}

// StatusResult is a provider's canonical view of one checkout, used
// by reconciliation to cross-check local state.
type StatusResult struct {
	Status     string
	RawStatus  string
	ExternalID string
	Amount     int64
	Currency   string
	FromCache  bool
}

// ProviderClient is the outbound side of a provider integration:
// session creation for payment initiation and status fetch for
// reconciliation.
type ProviderClient interface {
	Provider() string
	CreateCheckout(ctx context.Context, req *CheckoutRequest) (*Checkout, error)
	// FetchStatus returns the provider's current status for a checkout
	// id, already mapped to a transaction status. Results are cached
	// briefly; bypassCache forces a live call.
	FetchStatus(ctx context.Context, checkoutID string, bypassCache bool) (*StatusResult, error)
}

// Registry resolves adapters and clients by provider name.
type Registry struct {
	adapters map[string]Adapter
	clients  map[string]ProviderClient
}

func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
		clients:  make(map[string]ProviderClient),
	}
}

func (r *Registry) RegisterAdapter(a Adapter) {
	r.adapters[a.Provider()] = a
}

func (r *Registry) RegisterClient(c ProviderClient) {
	r.clients[c.Provider()] = c
}

func (r *Registry) Adapter(provider string) (Adapter, error) {
	a, ok := r.adapters[provider]
	if !ok {
		return nil, model.ErrUnknownProvider
	}
	return a, nil
}

func (r *Registry) Client(provider string) (ProviderClient, error) {
	c, ok := r.clients[provider]
	if !ok {
		return nil, model.ErrUnknownProvider
	}
	return c, nil
}
