package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	orderModel "licensify-backend/internal/domains/order/model"
	"licensify-backend/internal/domains/payment/gateway"
	"licensify-backend/internal/domains/payment/model"
)

// stubAdapter lets tests feed pre-normalized events through the
// ingress pipeline without real signatures.
type stubAdapter struct {
	events   []*model.NormalizedEvent
	sigErr   error
	parseErr error
}

func (a *stubAdapter) Provider() string { return model.ProviderPalomma }

func (a *stubAdapter) VerifySignature(req *gateway.WebhookRequest) error { return a.sigErr }

func (a *stubAdapter) ParseWebhook(req *gateway.WebhookRequest) ([]*model.NormalizedEvent, error) {
	if a.parseErr != nil {
		return nil, a.parseErr
	}
	return a.events, nil
}

func newWebhookFixture(t *testing.T, adapter *stubAdapter) (*WebhookService, *fakeWebhookRepo, *fixture) {
	t.Helper()
	f := newFixture(t, fixtureOpts{})

	registry := gateway.NewRegistry()
	registry.RegisterAdapter(adapter)

	webhookRepo := &fakeWebhookRepo{}
	return NewWebhookService(registry, webhookRepo, f.service), webhookRepo, f
}

func webhookReq() *gateway.WebhookRequest {
	return &gateway.WebhookRequest{Body: []byte(`{}`)}
}

func TestProcessNewEvent(t *testing.T) {
	adapter := &stubAdapter{}
	svc, repo, f := newWebhookFixture(t, adapter)
	adapter.events = []*model.NormalizedEvent{f.paidEvent()}

	summary, err := svc.Process(context.Background(), model.ProviderPalomma, webhookReq())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.TotalEvents)
	assert.Equal(t, 1, summary.ProcessedEvents)
	assert.Equal(t, 0, summary.DuplicateEvents)

	// Audit record created and marked processed.
	require.Len(t, repo.records, 1)
	assert.Equal(t, model.TxStatusPaid, repo.records[0].ExtractedStatus)
	assert.Len(t, repo.processed, 1)

	assert.Equal(t, model.TxStatusPaid, f.transaction.Status)
}

func TestProcessReplaySameStatusIsDuplicate(t *testing.T) {
	adapter := &stubAdapter{}
	svc, repo, f := newWebhookFixture(t, adapter)
	adapter.events = []*model.NormalizedEvent{f.paidEvent()}

	_, err := svc.Process(context.Background(), model.ProviderPalomma, webhookReq())
	require.NoError(t, err)

	// Same (provider, externalRef, status) again.
	adapter.events = []*model.NormalizedEvent{f.paidEvent()}
	summary, err := svc.Process(context.Background(), model.ProviderPalomma, webhookReq())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.DuplicateEvents)
	assert.Equal(t, 0, summary.ProcessedEvents)
	// No new record, no re-dispatch bookkeeping.
	assert.Len(t, repo.records, 1)
	assert.Empty(t, repo.updated)
}

func TestProcessReplayNewStatusRedispatches(t *testing.T) {
	adapter := &stubAdapter{}
	svc, repo, f := newWebhookFixture(t, adapter)

	pending := f.paidEvent()
	pending.Status = model.TxStatusPending
	adapter.events = []*model.NormalizedEvent{pending}

	_, err := svc.Process(context.Background(), model.ProviderPalomma, webhookReq())
	require.NoError(t, err)
	assert.Equal(t, model.TxStatusPending, f.transaction.Status)

	// PENDING then PAID for the same reference: the existing record is
	// updated and the event re-dispatched, not swallowed as duplicate.
	adapter.events = []*model.NormalizedEvent{f.paidEvent()}
	summary, err := svc.Process(context.Background(), model.ProviderPalomma, webhookReq())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.ProcessedEvents)
	assert.Len(t, repo.records, 1)
	assert.Len(t, repo.updated, 1)
	assert.Equal(t, model.TxStatusPaid, f.transaction.Status)
}

// Failure events that lost their reference must not share an
// idempotency record: (provider, "") is not a key. Each delivery is
// dispatched on its own and correlated by amount.
func TestProcessReferenceLessFailuresDoNotCollide(t *testing.T) {
	adapter := &stubAdapter{}
	svc, repo, f := newWebhookFixture(t, adapter)

	otherOrder := &orderModel.Order{
		ID:         uuid.New(),
		CustomerID: f.order.CustomerID,
		ProductRef: f.order.ProductRef,
		Qty:        1,
		GrandTotal: 77000,
		Currency:   "COP",
		Status:     orderModel.OrderStatusPending,
	}
	f.orderRepo.orders[otherOrder.ID] = otherOrder
	otherTx := &model.Transaction{
		ID:        uuid.New(),
		OrderID:   otherOrder.ID,
		Gateway:   model.ProviderPalomma,
		Amount:    77000,
		Currency:  "COP",
		Status:    model.TxStatusPending,
		Meta:      map[string]interface{}{},
		CreatedAt: time.Now(),
	}
	f.txRepo.transactions = append(f.txRepo.transactions, otherTx)

	first := f.failedEvent()
	first.ExternalRef = ""
	adapter.events = []*model.NormalizedEvent{first}

	_, err := svc.Process(context.Background(), model.ProviderPalomma, webhookReq())
	require.NoError(t, err)
	assert.Equal(t, model.TxStatusFailed, f.transaction.Status)

	second := f.failedEvent()
	second.ExternalRef = ""
	second.Amount = 77000
	adapter.events = []*model.NormalizedEvent{second}

	summary, err := svc.Process(context.Background(), model.ProviderPalomma, webhookReq())
	require.NoError(t, err)

	// The second failure is a distinct event, not a replay of the first.
	assert.Equal(t, 1, summary.ProcessedEvents)
	assert.Equal(t, 0, summary.DuplicateEvents)
	assert.Equal(t, model.TxStatusFailed, otherTx.Status)
	assert.Equal(t, orderModel.OrderStatusCanceled, otherOrder.Status)

	// One audit record per delivery.
	assert.Len(t, repo.records, 2)
}

func TestProcessInvalidSignature(t *testing.T) {
	adapter := &stubAdapter{sigErr: model.NewInvalidSignatureError(model.ProviderPalomma)}
	svc, repo, _ := newWebhookFixture(t, adapter)

	_, err := svc.Process(context.Background(), model.ProviderPalomma, webhookReq())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrInvalidSignature)

	// Rejected deliveries still leave an audit record.
	require.Len(t, repo.records, 1)
	assert.Equal(t, model.WebhookStatusFailed, repo.records[0].Status)
}

func TestProcessParseFailure(t *testing.T) {
	adapter := &stubAdapter{parseErr: model.ErrParseFailure}
	svc, repo, _ := newWebhookFixture(t, adapter)

	_, err := svc.Process(context.Background(), model.ProviderPalomma, webhookReq())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrParseFailure)
	require.Len(t, repo.records, 1)
	assert.Equal(t, model.WebhookStatusFailed, repo.records[0].Status)
}

func TestProcessUnknownProvider(t *testing.T) {
	svc, _, _ := newWebhookFixture(t, &stubAdapter{})

	_, err := svc.Process(context.Background(), "stripe", webhookReq())
	assert.ErrorIs(t, err, model.ErrUnknownProvider)
}
