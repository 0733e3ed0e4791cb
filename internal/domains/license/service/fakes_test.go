package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	customerModel "licensify-backend/internal/domains/customer/model"
	"licensify-backend/internal/domains/license/model"
	orderModel "licensify-backend/internal/domains/order/model"
	productModel "licensify-backend/internal/domains/product/model"
)

// In-memory doubles for the repository interfaces. They implement just
// enough row-locking semantics (status transitions, FIFO ordering) for
// the service logic to be exercised without a database.

type fakeTxManager struct{}

func (fakeTxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (fakeTxManager) WithinSerializableTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// lockingTxManager serializes transactions the way FOR UPDATE row
// locks do in Postgres: one writer at a time.
type lockingTxManager struct {
	mu sync.Mutex
}

func (m *lockingTxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx)
}

func (m *lockingTxManager) WithinSerializableTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.WithinTx(ctx, fn)
}

// =====================================================
// LICENSE REPO
// =====================================================

type fakeLicenseRepo struct {
	licenses []*model.License
}

func (r *fakeLicenseRepo) Create(ctx context.Context, license *model.License) error {
	for _, lic := range r.licenses {
		if lic.ProductRef == license.ProductRef && lic.LicenseKey == license.LicenseKey {
			return model.ErrDuplicateLicenseKey
		}
	}
	r.licenses = append(r.licenses, license)
	return nil
}

func (r *fakeLicenseRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.License, error) {
	for _, lic := range r.licenses {
		if lic.ID == id {
			return lic, nil
		}
	}
	return nil, model.ErrLicenseNotFound
}

func (r *fakeLicenseRepo) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*model.License, error) {
	for i := len(r.licenses) - 1; i >= 0; i-- {
		lic := r.licenses[i]
		if lic.OrderID != nil && *lic.OrderID == orderID {
			return lic, nil
		}
	}
	return nil, model.ErrLicenseNotFound
}

func (r *fakeLicenseRepo) SelectAvailableForUpdate(ctx context.Context, productRef string, limit int) ([]*model.License, error) {
	var out []*model.License
	for _, lic := range r.licenses {
		if lic.ProductRef == productRef && lic.Status == model.LicenseStatusAvailable {
			out = append(out, lic)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeLicenseRepo) MarkSold(ctx context.Context, id uuid.UUID, orderID uuid.UUID, soldAt time.Time) error {
	lic, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	lic.Status = model.LicenseStatusSold
	lic.OrderID = &orderID
	lic.SoldAt = &soldAt
	return nil
}

func (r *fakeLicenseRepo) MarkReserved(ctx context.Context, id uuid.UUID, orderID uuid.UUID, reservedAt time.Time) error {
	lic, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	lic.Status = model.LicenseStatusReserved
	lic.OrderID = &orderID
	lic.ReservedAt = &reservedAt
	return nil
}

func (r *fakeLicenseRepo) Release(ctx context.Context, id uuid.UUID) error {
	lic, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	lic.Status = model.LicenseStatusAvailable
	lic.OrderID = nil
	lic.ReservedAt = nil
	lic.SoldAt = nil
	return nil
}

func (r *fakeLicenseRepo) CountByProduct(ctx context.Context, productRef string) (*model.InventoryCounts, error) {
	counts := &model.InventoryCounts{}
	for _, lic := range r.licenses {
		if lic.ProductRef != productRef {
			continue
		}
		switch lic.Status {
		case model.LicenseStatusAvailable:
			counts.Available++
		case model.LicenseStatusReserved:
			counts.Reserved++
		case model.LicenseStatusSold:
			counts.Sold++
		}
	}
	return counts, nil
}

// =====================================================
// WAITLIST REPO
// =====================================================

type fakeWaitlistRepo struct {
	entries []*model.WaitlistEntry
	deleted []uuid.UUID
}

func (r *fakeWaitlistRepo) Create(ctx context.Context, entry *model.WaitlistEntry) error {
	r.entries = append(r.entries, entry)
	return nil
}

func (r *fakeWaitlistRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.WaitlistEntry, error) {
	for _, e := range r.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, model.ErrWaitlistEntryNotFound
}

func (r *fakeWaitlistRepo) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*model.WaitlistEntry, error) {
	for _, e := range r.entries {
		if e.OrderID == orderID {
			return e, nil
		}
	}
	return nil, model.ErrWaitlistEntryNotFound
}

func (r *fakeWaitlistRepo) OldestReadyForUpdate(ctx context.Context) (*model.WaitlistEntry, error) {
	var oldest *model.WaitlistEntry
	for _, e := range r.entries {
		if e.Status != model.WaitlistStatusReadyForEmail {
			continue
		}
		if oldest == nil || e.Priority.Before(oldest.Priority) {
			oldest = e
		}
	}
	if oldest == nil {
		return nil, model.ErrWaitlistEntryNotFound
	}
	return oldest, nil
}

func (r *fakeWaitlistRepo) PendingForUpdate(ctx context.Context, productRef string, limit int) ([]*model.WaitlistEntry, error) {
	var out []*model.WaitlistEntry
	for _, e := range r.entries {
		if e.ProductRef == productRef && e.Status == model.WaitlistStatusPending {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority.Before(out[j].Priority) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeWaitlistRepo) ProductRefsWithPending(ctx context.Context) ([]string, error) {
	seen := map[string]bool{}
	var refs []string
	for _, e := range r.entries {
		if e.Status == model.WaitlistStatusPending && !seen[e.ProductRef] {
			seen[e.ProductRef] = true
			refs = append(refs, e.ProductRef)
		}
	}
	return refs, nil
}

func (r *fakeWaitlistRepo) MarkReadyForEmail(ctx context.Context, id uuid.UUID, licenseIDs []uuid.UUID) error {
	e, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	e.Status = model.WaitlistStatusReadyForEmail
	e.LicenseIDs = licenseIDs
	return nil
}

func (r *fakeWaitlistRepo) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	e, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	e.Status = model.WaitlistStatusProcessing
	return nil
}

func (r *fakeWaitlistRepo) MarkCompleted(ctx context.Context, id uuid.UUID, processedAt time.Time) error {
	e, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	e.Status = model.WaitlistStatusCompleted
	e.ProcessedAt = &processedAt
	return nil
}

func (r *fakeWaitlistRepo) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	e, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	e.Status = model.WaitlistStatusFailed
	e.ErrorMessage = &errMsg
	return nil
}

func (r *fakeWaitlistRepo) RecordRetry(ctx context.Context, id uuid.UUID, errMsg string) error {
	e, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	e.Status = model.WaitlistStatusReadyForEmail
	e.RetryCount++
	e.ErrorMessage = &errMsg
	return nil
}

func (r *fakeWaitlistRepo) Delete(ctx context.Context, id uuid.UUID) error {
	for i, e := range r.entries {
		if e.ID == id {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			r.deleted = append(r.deleted, id)
			return nil
		}
	}
	return model.ErrWaitlistEntryNotFound
}

// =====================================================
// ORDER / CUSTOMER / PRODUCT REPOS
// =====================================================

type fakeOrderRepo struct {
	orders map[uuid.UUID]*orderModel.Order
	emails []orderModel.EmailConfirmation
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: map[uuid.UUID]*orderModel.Order{}}
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
	order, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	order.Status = status
	return nil
}

func (r *fakeOrderRepo) SetShippingEmail(ctx context.Context, id uuid.UUID, email orderModel.EmailConfirmation) error {
	order, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if order.ShippingInfo == nil {
		order.ShippingInfo = map[string]interface{}{}
	}
	order.ShippingInfo["email"] = map[string]interface{}{"sent": email.Sent}
	r.emails = append(r.emails, email)
	return nil
}

func (r *fakeOrderRepo) AppendMeta(ctx context.Context, id uuid.UUID, key string, value map[string]interface{}) error {
	order, err := r.GetByID(ctx, id)
	if err != nil {
		return err
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

func newFakeCustomerRepo() *fakeCustomerRepo {
	return &fakeCustomerRepo{customers: map[uuid.UUID]*customerModel.Customer{}}
}

func (r *fakeCustomerRepo) Upsert(ctx context.Context, customer *customerModel.Customer) (*customerModel.Customer, error) {
	r.customers[customer.ID] = customer
	return customer, nil
}

func (r *fakeCustomerRepo) GetByID(ctx context.Context, id uuid.UUID) (*customerModel.Customer, error) {
	cust, ok := r.customers[id]
	if !ok {
		return nil, customerModel.ErrCustomerNotFound
	}
	return cust, nil
}

type fakeProductRepo struct {
	products map[string]*productModel.Product
}

func newFakeProductRepo() *fakeProductRepo {
	return &fakeProductRepo{products: map[string]*productModel.Product{}}
}

func (r *fakeProductRepo) Create(ctx context.Context, product *productModel.Product) error {
	r.products[product.Ref] = product
	return nil
}

func (r *fakeProductRepo) GetByRef(ctx context.Context, ref string) (*productModel.Product, error) {
	prod, ok := r.products[ref]
	if !ok {
		return nil, productModel.ErrProductNotFound
	}
	return prod, nil
}

// =====================================================
// MAILER
// =====================================================

type fakeWaitlistMailer struct {
	mu   sync.Mutex
	sent []WaitlistEmailData
	err  error
}

func (m *fakeWaitlistMailer) SendWaitlistNotification(ctx context.Context, data WaitlistEmailData) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, data)
	return "brevo-msg-1", nil
}
