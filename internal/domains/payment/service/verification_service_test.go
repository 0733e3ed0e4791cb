package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensify-backend/internal/config"
	orderModel "licensify-backend/internal/domains/order/model"
	"licensify-backend/internal/domains/payment/gateway"
	"licensify-backend/internal/domains/payment/model"
)

// stubClient serves canned status results, optionally blocking until
// released so tests can overlap two verifications.
type stubClient struct {
	status  *gateway.StatusResult
	err     error
	blockOn chan struct{}

	mu    sync.Mutex
	calls int
}

func (c *stubClient) Provider() string { return model.ProviderPalomma }

func (c *stubClient) CreateCheckout(ctx context.Context, req *gateway.CheckoutRequest) (*gateway.Checkout, error) {
	return &gateway.Checkout{ID: "chk_stub"}, nil
}

func (c *stubClient) FetchStatus(ctx context.Context, checkoutID string, bypassCache bool) (*gateway.StatusResult, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.blockOn != nil {
		<-c.blockOn
	}
	if c.err != nil {
		return nil, c.err
	}
	return c.status, nil
}

func newVerificationFixture(t *testing.T, client *stubClient, opts fixtureOpts) (*VerificationService, *fixture) {
	t.Helper()
	f := newFixture(t, opts)
	f.transaction.Meta["checkoutId"] = "chk_123"

	registry := gateway.NewRegistry()
	registry.RegisterClient(client)

	svc := NewVerificationService(fakeTxManager{}, f.txRepo, registry, f.service, config.JobConfig{
		VerifyBatchSize:  2,
		VerifyBatchPause: time.Millisecond,
		VerifyStuckAfter: 30 * time.Minute,
	})
	return svc, f
}

func TestVerifyAppliesDiscoveredPayment(t *testing.T) {
	client := &stubClient{status: &gateway.StatusResult{
		Status:    model.TxStatusPaid,
		RawStatus: "completed",
		Amount:    150000,
		Currency:  "COP",
	}}
	svc, f := newVerificationFixture(t, client, fixtureOpts{})

	result, err := svc.VerifyTransactionStatus(context.Background(), f.transaction.ID, "", false)
	require.NoError(t, err)

	assert.True(t, result.Changed)
	assert.True(t, result.Applied)
	assert.Equal(t, model.TxStatusPending, result.LocalStatus)
	assert.Equal(t, model.TxStatusPaid, result.GatewayStatus)

	// Discovered PAID runs the same fulfillment path as a webhook.
	assert.Equal(t, model.TxStatusPaid, f.transaction.Status)
	assert.Equal(t, orderModel.OrderStatusCompleted, f.order.Status)
}

func TestVerifyNoChange(t *testing.T) {
	client := &stubClient{status: &gateway.StatusResult{Status: model.TxStatusPending}}
	svc, f := newVerificationFixture(t, client, fixtureOpts{})

	result, err := svc.VerifyTransactionStatus(context.Background(), f.transaction.ID, "", false)
	require.NoError(t, err)

	assert.False(t, result.Changed)
	assert.Equal(t, model.TxStatusPending, f.transaction.Status)
}

func TestVerifyIntegrityMismatchAborts(t *testing.T) {
	client := &stubClient{status: &gateway.StatusResult{
		Status: model.TxStatusPaid,
		Amount: 999, // provider disagrees on the amount
	}}
	svc, f := newVerificationFixture(t, client, fixtureOpts{})

	result, err := svc.VerifyTransactionStatus(context.Background(), f.transaction.ID, "", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrNoMatch)

	require.NotNil(t, result)
	assert.Contains(t, result.IntegrityIssue, "amount mismatch")
	// Nothing mutated.
	assert.Equal(t, model.TxStatusPending, f.transaction.Status)
	assert.Equal(t, orderModel.OrderStatusPending, f.order.Status)
}

func TestVerifyNoCheckoutID(t *testing.T) {
	client := &stubClient{status: &gateway.StatusResult{Status: model.TxStatusPaid}}
	svc, f := newVerificationFixture(t, client, fixtureOpts{})
	delete(f.transaction.Meta, "checkoutId")

	_, err := svc.VerifyTransactionStatus(context.Background(), f.transaction.ID, "", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrNoMatch)
	assert.Zero(t, client.calls)
}

func TestVerifyConcurrentGuard(t *testing.T) {
	release := make(chan struct{})
	client := &stubClient{
		status:  &gateway.StatusResult{Status: model.TxStatusPending},
		blockOn: release,
	}
	svc, f := newVerificationFixture(t, client, fixtureOpts{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		svc.VerifyTransactionStatus(context.Background(), f.transaction.ID, "", false)
	}()

	// Wait until the first verification holds the slot.
	deadline := time.Now().Add(2 * time.Second)
	for {
		client.mu.Lock()
		started := client.calls > 0
		client.mu.Unlock()
		if started || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	_, err := svc.VerifyTransactionStatus(context.Background(), f.transaction.ID, "", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrAlreadyProcessing)

	close(release)
	wg.Wait()

	// Slot released: a new verification goes through.
	_, err = svc.VerifyTransactionStatus(context.Background(), f.transaction.ID, "", false)
	assert.NoError(t, err)
}

func TestVerifyMultipleSummary(t *testing.T) {
	client := &stubClient{status: &gateway.StatusResult{
		Status:   model.TxStatusPaid,
		Amount:   150000,
		Currency: "COP",
	}}
	svc, f := newVerificationFixture(t, client, fixtureOpts{})

	summary := svc.VerifyMultiple(context.Background(), []uuid.UUID{f.transaction.ID, uuid.New()})

	assert.Equal(t, 2, summary.Checked)
	assert.Equal(t, 1, summary.Changed)
	assert.Equal(t, 1, summary.Failed) // unknown id
}

func TestVerifyStuckEmptySweep(t *testing.T) {
	client := &stubClient{status: &gateway.StatusResult{Status: model.TxStatusPending}}
	svc, _ := newVerificationFixture(t, client, fixtureOpts{})

	summary, err := svc.VerifyStuck(context.Background(), 20)
	require.NoError(t, err)
	assert.Zero(t, summary.Checked)
}

func TestVerifyStuckSweepsOpenTransactions(t *testing.T) {
	client := &stubClient{status: &gateway.StatusResult{Status: model.TxStatusPending}}
	svc, f := newVerificationFixture(t, client, fixtureOpts{})
	f.txRepo.stuck = []*model.Transaction{f.transaction}

	summary, err := svc.VerifyStuck(context.Background(), 20)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Checked)
	assert.Equal(t, 0, summary.Changed)
}
