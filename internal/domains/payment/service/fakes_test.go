package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	customerModel "licensify-backend/internal/domains/customer/model"
	licenseModel "licensify-backend/internal/domains/license/model"
	licenseService "licensify-backend/internal/domains/license/service"
	orderModel "licensify-backend/internal/domains/order/model"
	"licensify-backend/internal/domains/payment/model"
	productModel "licensify-backend/internal/domains/product/model"
)

// =====================================================
// IN-MEMORY FAKES
// =====================================================

// fakeTxManager runs the callback directly; the repositories underneath
// are in-memory so there is nothing to roll back.
type fakeTxManager struct{}

func (fakeTxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (fakeTxManager) WithinSerializableTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// fakeTransactionRepo hands out detached copies the way a row scan
// does, so callers never share mutable state with the store. Safe for
// concurrent use.
type fakeTransactionRepo struct {
	mu           sync.Mutex
	transactions []*model.Transaction
	openCount    int
	paidOrders   map[uuid.UUID]bool
	stuck        []*model.Transaction

	statusLog map[uuid.UUID][]string
}

func newFakeTransactionRepo(txs ...*model.Transaction) *fakeTransactionRepo {
	return &fakeTransactionRepo{
		transactions: txs,
		paidOrders:   make(map[uuid.UUID]bool),
		statusLog:    make(map[uuid.UUID][]string),
	}
}

func cloneTx(tx *model.Transaction) *model.Transaction {
	cp := *tx
	if tx.Meta != nil {
		cp.Meta = make(map[string]interface{}, len(tx.Meta))
		for k, v := range tx.Meta {
			cp.Meta[k] = v
		}
	}
	return &cp
}

func (r *fakeTransactionRepo) Create(ctx context.Context, tx *model.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transactions = append(r.transactions, tx)
	return nil
}

func (r *fakeTransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tx := range r.transactions {
		if tx.ID == id {
			return cloneTx(tx), nil
		}
	}
	return nil, model.ErrTransactionNotFound
}

func (r *fakeTransactionRepo) GetByGatewayRef(ctx context.Context, gateway, ref string) (*model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tx := range r.transactions {
		if tx.Gateway == gateway && tx.GatewayRef != nil && *tx.GatewayRef == ref {
			return cloneTx(tx), nil
		}
	}
	return nil, model.ErrTransactionNotFound
}

func (r *fakeTransactionRepo) GetLatestByOrderID(ctx context.Context, orderID uuid.UUID) (*model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.transactions) - 1; i >= 0; i-- {
		if r.transactions[i].OrderID == orderID {
			return cloneTx(r.transactions[i]), nil
		}
	}
	return nil, model.ErrTransactionNotFound
}

func (r *fakeTransactionRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statusLog[id] = append(r.statusLog[id], status)
	for _, tx := range r.transactions {
		if tx.ID == id {
			tx.Status = status
			return nil
		}
	}
	return model.ErrTransactionNotFound
}

func (r *fakeTransactionRepo) UpdateStatusFrom(ctx context.Context, id uuid.UUID, current, next string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tx := range r.transactions {
		if tx.ID == id {
			if tx.Status != current {
				return model.ErrStatusConflict
			}
			r.statusLog[id] = append(r.statusLog[id], next)
			tx.Status = next
			return nil
		}
	}
	return model.ErrTransactionNotFound
}

func (r *fakeTransactionRepo) SetGatewayRef(ctx context.Context, id uuid.UUID, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tx := range r.transactions {
		if tx.ID == id {
			tx.GatewayRef = &ref
			return nil
		}
	}
	return model.ErrTransactionNotFound
}

func (r *fakeTransactionRepo) MergeMeta(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tx := range r.transactions {
		if tx.ID == id {
			if tx.Meta == nil {
				tx.Meta = map[string]interface{}{}
			}
			for k, v := range fields {
				tx.Meta[k] = v
			}
			return nil
		}
	}
	return model.ErrTransactionNotFound
}

func (r *fakeTransactionRepo) AppendMeta(ctx context.Context, id uuid.UUID, key string, value map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tx := range r.transactions {
		if tx.ID == id {
			if tx.Meta == nil {
				tx.Meta = map[string]interface{}{}
			}
			subtree, _ := tx.Meta[key].(map[string]interface{})
			if subtree == nil {
				subtree = map[string]interface{}{}
			}
			for k, v := range value {
				subtree[k] = v
			}
			tx.Meta[key] = subtree
			return nil
		}
	}
	return model.ErrTransactionNotFound
}

func (r *fakeTransactionRepo) FindRecentOpenByAmount(ctx context.Context, gateway string, amount int64, since time.Time) ([]*model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Transaction
	for _, tx := range r.transactions {
		if tx.Gateway == gateway && tx.Amount == amount && tx.IsOpen() && tx.CreatedAt.After(since) {
			out = append(out, cloneTx(tx))
		}
	}
	return out, nil
}

func (r *fakeTransactionRepo) CountOpenByOrder(ctx context.Context, orderID uuid.UUID, excludeID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.openCount, nil
}

func (r *fakeTransactionRepo) HasPaidForOrder(ctx context.Context, orderID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.paidOrders[orderID], nil
}

func (r *fakeTransactionRepo) ListStuck(ctx context.Context, olderThan time.Time, limit int) ([]*model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.stuck) > limit {
		return r.stuck[:limit], nil
	}
	return r.stuck, nil
}

type fakeOrderRepo struct {
	orders map[uuid.UUID]*orderModel.Order
	emails []orderModel.EmailConfirmation
}

func newFakeOrderRepo(orders ...*orderModel.Order) *fakeOrderRepo {
	r := &fakeOrderRepo{orders: make(map[uuid.UUID]*orderModel.Order)}
	for _, o := range orders {
		r.orders[o.ID] = o
	}
	return r
}

func (r *fakeOrderRepo) Create(ctx context.Context, order *orderModel.Order) error {
	r.orders[order.ID] = order
	return nil
}

func (r *fakeOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*orderModel.Order, error) {
	order, ok := r.orders[id]
	if !ok {
		return nil, orderModel.ErrOrderNotFound
	}
	return order, nil
}

func (r *fakeOrderRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	order, ok := r.orders[id]
	if !ok {
		return orderModel.ErrOrderNotFound
	}
	order.Status = status
	return nil
}

func (r *fakeOrderRepo) SetShippingEmail(ctx context.Context, id uuid.UUID, email orderModel.EmailConfirmation) error {
	order, ok := r.orders[id]
	if !ok {
		return orderModel.ErrOrderNotFound
	}
	if order.ShippingInfo == nil {
		order.ShippingInfo = map[string]interface{}{}
	}
	order.ShippingInfo["email"] = map[string]interface{}{"sent": email.Sent}
	r.emails = append(r.emails, email)
	return nil
}

func (r *fakeOrderRepo) AppendMeta(ctx context.Context, id uuid.UUID, key string, value map[string]interface{}) error {
	order, ok := r.orders[id]
	if !ok {
		return orderModel.ErrOrderNotFound
	}
	if order.Meta == nil {
		order.Meta = map[string]interface{}{}
	}
	order.Meta[key] = value
	return nil
}

type fakeCustomerRepo struct {
	customers map[uuid.UUID]*customerModel.Customer
}

func newFakeCustomerRepo(customers ...*customerModel.Customer) *fakeCustomerRepo {
	r := &fakeCustomerRepo{customers: make(map[uuid.UUID]*customerModel.Customer)}
	for _, c := range customers {
		r.customers[c.ID] = c
	}
	return r
}

func (r *fakeCustomerRepo) Upsert(ctx context.Context, customer *customerModel.Customer) (*customerModel.Customer, error) {
	r.customers[customer.ID] = customer
	return customer, nil
}

func (r *fakeCustomerRepo) GetByID(ctx context.Context, id uuid.UUID) (*customerModel.Customer, error) {
	c, ok := r.customers[id]
	if !ok {
		return nil, errors.New("customer not found")
	}
	return c, nil
}

type fakeProductRepo struct {
	products map[string]*productModel.Product
}

func newFakeProductRepo(products ...*productModel.Product) *fakeProductRepo {
	r := &fakeProductRepo{products: make(map[string]*productModel.Product)}
	for _, p := range products {
		r.products[p.Ref] = p
	}
	return r
}

func (r *fakeProductRepo) Create(ctx context.Context, product *productModel.Product) error {
	r.products[product.Ref] = product
	return nil
}

func (r *fakeProductRepo) GetByRef(ctx context.Context, ref string) (*productModel.Product, error) {
	p, ok := r.products[ref]
	if !ok {
		return nil, productModel.ErrProductNotFound
	}
	return p, nil
}

type fakeLicenseRepo struct {
	available []*licenseModel.License
	byOrder   map[uuid.UUID]*licenseModel.License
	sold      []uuid.UUID
	released  []uuid.UUID
}

func newFakeLicenseRepo(available ...*licenseModel.License) *fakeLicenseRepo {
	return &fakeLicenseRepo{
		available: available,
		byOrder:   make(map[uuid.UUID]*licenseModel.License),
	}
}

func (r *fakeLicenseRepo) Create(ctx context.Context, license *licenseModel.License) error {
	r.available = append(r.available, license)
	return nil
}

func (r *fakeLicenseRepo) GetByID(ctx context.Context, id uuid.UUID) (*licenseModel.License, error) {
	for _, lic := range r.available {
		if lic.ID == id {
			return lic, nil
		}
	}
	return nil, licenseModel.ErrLicenseNotFound
}

func (r *fakeLicenseRepo) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*licenseModel.License, error) {
	lic, ok := r.byOrder[orderID]
	if !ok {
		return nil, licenseModel.ErrLicenseNotFound
	}
	return lic, nil
}

func (r *fakeLicenseRepo) SelectAvailableForUpdate(ctx context.Context, productRef string, limit int) ([]*licenseModel.License, error) {
	var out []*licenseModel.License
	for _, lic := range r.available {
		if lic.ProductRef == productRef && lic.Status == licenseModel.LicenseStatusAvailable {
			out = append(out, lic)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeLicenseRepo) MarkSold(ctx context.Context, id uuid.UUID, orderID uuid.UUID, soldAt time.Time) error {
	r.sold = append(r.sold, id)
	for _, lic := range r.available {
		if lic.ID == id {
			lic.Status = licenseModel.LicenseStatusSold
			r.byOrder[orderID] = lic
		}
	}
	return nil
}

func (r *fakeLicenseRepo) MarkReserved(ctx context.Context, id uuid.UUID, orderID uuid.UUID, reservedAt time.Time) error {
	for _, lic := range r.available {
		if lic.ID == id {
			lic.Status = licenseModel.LicenseStatusReserved
			lic.OrderID = &orderID
		}
	}
	return nil
}

func (r *fakeLicenseRepo) Release(ctx context.Context, id uuid.UUID) error {
	r.released = append(r.released, id)
	for _, lic := range r.available {
		if lic.ID == id {
			lic.Status = licenseModel.LicenseStatusAvailable
			lic.OrderID = nil
		}
	}
	return nil
}

func (r *fakeLicenseRepo) CountByProduct(ctx context.Context, productRef string) (*licenseModel.InventoryCounts, error) {
	counts := &licenseModel.InventoryCounts{}
	for _, lic := range r.available {
		if lic.ProductRef != productRef {
			continue
		}
		switch lic.Status {
		case licenseModel.LicenseStatusAvailable:
			counts.Available++
		case licenseModel.LicenseStatusReserved:
			counts.Reserved++
		case licenseModel.LicenseStatusSold:
			counts.Sold++
		}
	}
	return counts, nil
}

type fakeWaitlistRepo struct {
	entries []*licenseModel.WaitlistEntry
}

func (r *fakeWaitlistRepo) Create(ctx context.Context, entry *licenseModel.WaitlistEntry) error {
	r.entries = append(r.entries, entry)
	return nil
}

func (r *fakeWaitlistRepo) GetByID(ctx context.Context, id uuid.UUID) (*licenseModel.WaitlistEntry, error) {
	for _, e := range r.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, licenseModel.ErrWaitlistEntryNotFound
}

func (r *fakeWaitlistRepo) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*licenseModel.WaitlistEntry, error) {
	for _, e := range r.entries {
		if e.OrderID == orderID {
			return e, nil
		}
	}
	return nil, licenseModel.ErrWaitlistEntryNotFound
}

func (r *fakeWaitlistRepo) OldestReadyForUpdate(ctx context.Context) (*licenseModel.WaitlistEntry, error) {
	for _, e := range r.entries {
		if e.Status == licenseModel.WaitlistStatusReadyForEmail {
			return e, nil
		}
	}
	return nil, licenseModel.ErrWaitlistEntryNotFound
}

func (r *fakeWaitlistRepo) PendingForUpdate(ctx context.Context, productRef string, limit int) ([]*licenseModel.WaitlistEntry, error) {
	var out []*licenseModel.WaitlistEntry
	for _, e := range r.entries {
		if e.ProductRef == productRef && e.Status == licenseModel.WaitlistStatusPending {
			out = append(out, e)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeWaitlistRepo) ProductRefsWithPending(ctx context.Context) ([]string, error) {
	seen := map[string]bool{}
	var refs []string
	for _, e := range r.entries {
		if e.Status == licenseModel.WaitlistStatusPending && !seen[e.ProductRef] {
			seen[e.ProductRef] = true
			refs = append(refs, e.ProductRef)
		}
	}
	return refs, nil
}

func (r *fakeWaitlistRepo) MarkReadyForEmail(ctx context.Context, id uuid.UUID, licenseIDs []uuid.UUID) error {
	return r.setStatus(id, func(e *licenseModel.WaitlistEntry) {
		e.Status = licenseModel.WaitlistStatusReadyForEmail
		e.LicenseIDs = licenseIDs
	})
}

func (r *fakeWaitlistRepo) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	return r.setStatus(id, func(e *licenseModel.WaitlistEntry) {
		e.Status = licenseModel.WaitlistStatusProcessing
	})
}

func (r *fakeWaitlistRepo) MarkCompleted(ctx context.Context, id uuid.UUID, processedAt time.Time) error {
	return r.setStatus(id, func(e *licenseModel.WaitlistEntry) {
		e.Status = licenseModel.WaitlistStatusCompleted
		e.ProcessedAt = &processedAt
	})
}

func (r *fakeWaitlistRepo) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	return r.setStatus(id, func(e *licenseModel.WaitlistEntry) {
		e.Status = licenseModel.WaitlistStatusFailed
		e.ErrorMessage = &errMsg
	})
}

func (r *fakeWaitlistRepo) RecordRetry(ctx context.Context, id uuid.UUID, errMsg string) error {
	return r.setStatus(id, func(e *licenseModel.WaitlistEntry) {
		e.Status = licenseModel.WaitlistStatusReadyForEmail
		e.RetryCount++
		e.ErrorMessage = &errMsg
	})
}

func (r *fakeWaitlistRepo) Delete(ctx context.Context, id uuid.UUID) error {
	for i, e := range r.entries {
		if e.ID == id {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return nil
		}
	}
	return licenseModel.ErrWaitlistEntryNotFound
}

func (r *fakeWaitlistRepo) setStatus(id uuid.UUID, apply func(*licenseModel.WaitlistEntry)) error {
	for _, e := range r.entries {
		if e.ID == id {
			apply(e)
			return nil
		}
	}
	return licenseModel.ErrWaitlistEntryNotFound
}

// fakeMailer implements both the fulfillment and the waitlist mailer.
type fakeMailer struct {
	mu           sync.Mutex
	sent         []LicenseEmailData
	waitlistSent []licenseService.WaitlistEmailData
	err          error
}

func (m *fakeMailer) SendLicenseDelivery(ctx context.Context, data LicenseEmailData) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, data)
	return "msg-" + uuid.NewString()[:8], nil
}

func (m *fakeMailer) SendWaitlistNotification(ctx context.Context, data licenseService.WaitlistEmailData) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.waitlistSent = append(m.waitlistSent, data)
	return "msg-" + uuid.NewString()[:8], nil
}

type fakeScheduler struct {
	confirmations []uuid.UUID
	notifications []uuid.UUID
}

func (s *fakeScheduler) EnqueueOrderConfirmation(orderID uuid.UUID) error {
	s.confirmations = append(s.confirmations, orderID)
	return nil
}

func (s *fakeScheduler) EnqueueWaitlistNotification(entryID uuid.UUID) error {
	s.notifications = append(s.notifications, entryID)
	return nil
}

type fakeWebhookRepo struct {
	records   []*model.WebhookEvent
	processed []uuid.UUID
	failed    []uuid.UUID
	updated   []uuid.UUID
}

func (r *fakeWebhookRepo) Create(ctx context.Context, event *model.WebhookEvent) error {
	r.records = append(r.records, event)
	return nil
}

func (r *fakeWebhookRepo) GetByProviderExternalRef(ctx context.Context, provider, externalRef string) (*model.WebhookEvent, error) {
	for _, rec := range r.records {
		if rec.Provider == provider && rec.ExternalRef == externalRef {
			return rec, nil
		}
	}
	return nil, model.ErrWebhookEventNotFound
}

func (r *fakeWebhookRepo) UpdateStatusAndEventID(ctx context.Context, id uuid.UUID, extractedStatus, eventID string) error {
	r.updated = append(r.updated, id)
	for _, rec := range r.records {
		if rec.ID == id {
			rec.ExtractedStatus = extractedStatus
			rec.EventID = eventID
			return nil
		}
	}
	return model.ErrWebhookEventNotFound
}

func (r *fakeWebhookRepo) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	r.processed = append(r.processed, id)
	return nil
}

func (r *fakeWebhookRepo) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	r.failed = append(r.failed, id)
	return nil
}
