package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	customerRepo "licensify-backend/internal/domains/customer/repository"
	"licensify-backend/internal/domains/license/model"
	"licensify-backend/internal/domains/license/repository"
	orderModel "licensify-backend/internal/domains/order/model"
	orderRepo "licensify-backend/internal/domains/order/repository"
	productRepo "licensify-backend/internal/domains/product/repository"
	"licensify-backend/pkg/database"
	"licensify-backend/pkg/logger"
)

// =====================================================
// DEPENDENCIES
// =====================================================

// WaitlistMailer delivers the license email for a staged waitlist
// entry. Implemented by the email infrastructure; returns the provider
// message id on success.
type WaitlistMailer interface {
	SendWaitlistNotification(ctx context.Context, data WaitlistEmailData) (string, error)
}

// WaitlistLicense is one staged key in the notification email.
type WaitlistLicense struct {
	Key          string
	Instructions string
}

// WaitlistEmailData is everything the notification template needs.
// Licenses holds one key per unit the order paid for.
type WaitlistEmailData struct {
	EntryID        uuid.UUID
	OrderID        uuid.UUID
	Recipient      string
	CustomerName   string
	ProductName    string
	Licenses       []WaitlistLicense
	IdempotencyTag string
}

// ReservationResult reports how a paid order was fulfilled: either
// licenses were sold immediately, or the order joined the waitlist.
type ReservationResult struct {
	Licenses      []*model.License
	Waitlisted    bool
	WaitlistEntry *model.WaitlistEntry
}

// ImportResult summarizes a bulk key import.
type ImportResult struct {
	Imported   int      `json:"imported"`
	Duplicates []string `json:"duplicates"`
}

// =====================================================
// SERVICE
// =====================================================

type InventoryService struct {
	txManager    database.TxManager
	licenseRepo  repository.LicenseRepoInterface
	waitlistRepo repository.WaitlistRepoInterface
	orderRepo    orderRepo.OrderRepoInterface
	customerRepo customerRepo.CustomerRepoInterface
	productRepo  productRepo.ProductRepoInterface
	mailer       WaitlistMailer
	maxRetries   int
}

func NewInventoryService(
	txManager database.TxManager,
	licenseRepository repository.LicenseRepoInterface,
	waitlistRepository repository.WaitlistRepoInterface,
	orderRepository orderRepo.OrderRepoInterface,
	customerRepository customerRepo.CustomerRepoInterface,
	productRepository productRepo.ProductRepoInterface,
	mailer WaitlistMailer,
	maxRetries int,
) *InventoryService {
	return &InventoryService{
		txManager:    txManager,
		licenseRepo:  licenseRepository,
		waitlistRepo: waitlistRepository,
		orderRepo:    orderRepository,
		customerRepo: customerRepository,
		productRepo:  productRepository,
		mailer:       mailer,
		maxRetries:   maxRetries,
	}
}

// =====================================================
// RESERVATION (payment success path)
// =====================================================

// ReserveLicense fulfills a paid order from inventory, or waitlists it
// when stock is short. Must run inside the caller's transaction so the
// sale commits atomically with the payment state change. Fulfillment
// is all-or-nothing for multi-qty orders: a partial match goes to the
// waitlist in full.
func (s *InventoryService) ReserveLicense(ctx context.Context, orderID, customerID uuid.UUID, productRef string, qty int) (*ReservationResult, error) {
	if qty < 1 {
		qty = 1
	}

	licenses, err := s.licenseRepo.SelectAvailableForUpdate(ctx, productRef, qty)
	if err != nil {
		return nil, err
	}

	if len(licenses) >= qty {
		now := time.Now()
		for _, lic := range licenses[:qty] {
			if err := s.licenseRepo.MarkSold(ctx, lic.ID, orderID, now); err != nil {
				return nil, err
			}
			lic.Status = model.LicenseStatusSold
			lic.OrderID = &orderID
			lic.SoldAt = &now
		}
		return &ReservationResult{Licenses: licenses[:qty]}, nil
	}

	entry := &model.WaitlistEntry{
		ID:         uuid.New(),
		OrderID:    orderID,
		CustomerID: customerID,
		ProductRef: productRef,
		Qty:        qty,
		Status:     model.WaitlistStatusPending,
		Priority:   time.Now(),
		CreatedAt:  time.Now(),
	}
	if err := s.waitlistRepo.Create(ctx, entry); err != nil {
		return nil, err
	}

	logger.Info("Order waitlisted, no available license", map[string]interface{}{
		"order_id":    orderID.String(),
		"product_ref": productRef,
		"qty":         qty,
	})

	return &ReservationResult{Waitlisted: true, WaitlistEntry: entry}, nil
}

// =====================================================
// WAITLIST STAGING
// =====================================================

// StageWaitlistReservations pairs newly available licenses with the
// oldest PENDING entries for one product. Licenses move to RESERVED
// and entries to READY_FOR_EMAIL inside a single transaction; the
// delivery tick picks them up afterwards.
func (s *InventoryService) StageWaitlistReservations(ctx context.Context, productRef string) (int, error) {
	staged := 0

	err := s.txManager.WithinTx(ctx, func(txCtx context.Context) error {
		entries, err := s.waitlistRepo.PendingForUpdate(txCtx, productRef, 50)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}

		now := time.Now()
		for _, entry := range entries {
			licenses, err := s.licenseRepo.SelectAvailableForUpdate(txCtx, productRef, entry.Qty)
			if err != nil {
				return err
			}
			if len(licenses) < entry.Qty {
				// FIFO: never skip ahead of an older entry that
				// cannot be filled yet.
				break
			}

			// One reserved license per unit, the entry is staged whole.
			licenseIDs := make([]uuid.UUID, 0, entry.Qty)
			for _, lic := range licenses[:entry.Qty] {
				if err := s.licenseRepo.MarkReserved(txCtx, lic.ID, entry.OrderID, now); err != nil {
					return err
				}
				licenseIDs = append(licenseIDs, lic.ID)
			}
			if err := s.waitlistRepo.MarkReadyForEmail(txCtx, entry.ID, licenseIDs); err != nil {
				return err
			}
			staged++
		}

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to stage waitlist for %s: %w", productRef, err)
	}

	if staged > 0 {
		logger.Info("Staged waitlist reservations", map[string]interface{}{
			"product_ref": productRef,
			"staged":      staged,
		})
	}

	return staged, nil
}

// StageAllPending runs the staging sweep across every product that has
// waiting entries. Used by the periodic safety-net job.
func (s *InventoryService) StageAllPending(ctx context.Context) (int, error) {
	refs, err := s.waitlistRepo.ProductRefsWithPending(ctx)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, ref := range refs {
		n, err := s.StageWaitlistReservations(ctx, ref)
		if err != nil {
			logger.Error("Waitlist staging failed for product", err)
			continue
		}
		total += n
	}

	return total, nil
}

// =====================================================
// WAITLIST DELIVERY
// =====================================================

// ProcessNextWaitlistEntry delivers at most one staged entry per call.
// The pacing comes from the scheduler tick, so this method never
// loops. Returns the processed entry, or nil when the queue is empty.
//
// The email is sent between two transactions: the first claims the
// entry (PROCESSING), the second records the outcome. A crash between
// them leaves the entry in PROCESSING for manual review rather than
// risking a double send.
func (s *InventoryService) ProcessNextWaitlistEntry(ctx context.Context) (*model.WaitlistEntry, error) {
	var entry *model.WaitlistEntry
	var data WaitlistEmailData

	err := s.txManager.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		entry, err = s.waitlistRepo.OldestReadyForUpdate(txCtx)
		if err != nil {
			if errors.Is(err, model.ErrWaitlistEntryNotFound) {
				entry = nil
				return nil
			}
			return err
		}
		if err := s.waitlistRepo.MarkProcessing(txCtx, entry.ID); err != nil {
			return err
		}

		data, err = s.buildEmailData(txCtx, entry)
		return err
	})
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, nil
	}

	messageID, sendErr := s.mailer.SendWaitlistNotification(ctx, data)
	if sendErr != nil {
		return entry, s.recordDeliveryFailure(ctx, entry, sendErr)
	}

	err = s.txManager.WithinTx(ctx, func(txCtx context.Context) error {
		now := time.Now()
		for _, licenseID := range entry.LicenseIDs {
			if err := s.licenseRepo.MarkSold(txCtx, licenseID, entry.OrderID, now); err != nil {
				return err
			}
		}
		if err := s.waitlistRepo.MarkCompleted(txCtx, entry.ID, now); err != nil {
			return err
		}
		if err := s.orderRepo.UpdateStatus(txCtx, entry.OrderID, orderModel.OrderStatusCompleted); err != nil {
			return err
		}
		return s.orderRepo.SetShippingEmail(txCtx, entry.OrderID, orderModel.EmailConfirmation{
			Sent:      true,
			SentAt:    &now,
			MessageID: messageID,
			Recipient: data.Recipient,
			Type:      "waitlist_notification",
		})
	})
	if err != nil {
		return entry, fmt.Errorf("email sent but completion failed for entry %s: %w", entry.ID, err)
	}

	logger.Info("Waitlist entry delivered", map[string]interface{}{
		"entry_id":   entry.ID.String(),
		"order_id":   entry.OrderID.String(),
		"message_id": messageID,
	})

	entry.Status = model.WaitlistStatusCompleted
	return entry, nil
}

func (s *InventoryService) buildEmailData(ctx context.Context, entry *model.WaitlistEntry) (WaitlistEmailData, error) {
	if len(entry.LicenseIDs) == 0 {
		return WaitlistEmailData{}, NewStagingInconsistencyError(entry.ID)
	}

	licenses := make([]WaitlistLicense, 0, len(entry.LicenseIDs))
	for _, licenseID := range entry.LicenseIDs {
		lic, err := s.licenseRepo.GetByID(ctx, licenseID)
		if err != nil {
			return WaitlistEmailData{}, err
		}
		licenses = append(licenses, WaitlistLicense{Key: lic.LicenseKey, Instructions: lic.Instructions})
	}
	cust, err := s.customerRepo.GetByID(ctx, entry.CustomerID)
	if err != nil {
		return WaitlistEmailData{}, err
	}
	prod, err := s.productRepo.GetByRef(ctx, entry.ProductRef)
	if err != nil {
		return WaitlistEmailData{}, err
	}

	return WaitlistEmailData{
		EntryID:        entry.ID,
		OrderID:        entry.OrderID,
		Recipient:      cust.Email,
		CustomerName:   cust.FullName,
		ProductName:    prod.Name,
		Licenses:       licenses,
		IdempotencyTag: fmt.Sprintf("waitlist_%s_%d", entry.ID, time.Now().UnixMilli()),
	}, nil
}

// recordDeliveryFailure returns the entry to READY_FOR_EMAIL while
// retries remain, otherwise parks it as FAILED. The reserved licenses
// stay on the entry either way; releasing them is an explicit admin
// action, not an automatic one.
func (s *InventoryService) recordDeliveryFailure(ctx context.Context, entry *model.WaitlistEntry, sendErr error) error {
	logger.Error("Waitlist notification send failed", sendErr)

	if entry.RetryCount+1 > s.maxRetries {
		if err := s.waitlistRepo.MarkFailed(ctx, entry.ID, sendErr.Error()); err != nil {
			return err
		}
		return model.NewLicenseError(
			model.ErrCodeDeliveryFailed,
			fmt.Sprintf("Waitlist entry %s failed after %d attempts", entry.ID, entry.RetryCount+1),
			sendErr,
		)
	}

	return s.waitlistRepo.RecordRetry(ctx, entry.ID, sendErr.Error())
}

// =====================================================
// ADMIN OPERATIONS
// =====================================================

// ChangeLicense swaps the sold license on an order for a fresh one,
// releasing the old key back to inventory. Used when a delivered key
// turns out to be invalid.
func (s *InventoryService) ChangeLicense(ctx context.Context, orderID uuid.UUID) (oldLic, newLic *model.License, err error) {
	err = s.txManager.WithinTx(ctx, func(txCtx context.Context) error {
		current, err := s.licenseRepo.GetByOrderID(txCtx, orderID)
		if err != nil {
			return err
		}
		if current.Status != model.LicenseStatusSold {
			return model.ErrLicenseNotSold
		}

		candidates, err := s.licenseRepo.SelectAvailableForUpdate(txCtx, current.ProductRef, 1)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			return model.NewNoAvailableLicenseError(current.ProductRef)
		}

		now := time.Now()
		replacement := candidates[0]
		if err := s.licenseRepo.MarkSold(txCtx, replacement.ID, orderID, now); err != nil {
			return err
		}
		if err := s.licenseRepo.Release(txCtx, current.ID); err != nil {
			return err
		}

		replacement.Status = model.LicenseStatusSold
		replacement.OrderID = &orderID
		replacement.SoldAt = &now
		oldLic, newLic = current, replacement
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	logger.Info("License changed for order", map[string]interface{}{
		"order_id":       orderID.String(),
		"old_license_id": oldLic.ID.String(),
		"new_license_id": newLic.ID.String(),
	})

	return oldLic, newLic, nil
}

// RemoveWaitlistEntry drops an open entry, releasing any license that
// staging had already reserved for it.
func (s *InventoryService) RemoveWaitlistEntry(ctx context.Context, entryID uuid.UUID) error {
	return s.txManager.WithinTx(ctx, func(txCtx context.Context) error {
		entry, err := s.waitlistRepo.GetByID(txCtx, entryID)
		if err != nil {
			return err
		}
		if entry.Status == model.WaitlistStatusCompleted {
			return model.ErrWaitlistEntryClosed
		}

		for _, licenseID := range entry.LicenseIDs {
			if err := s.licenseRepo.Release(txCtx, licenseID); err != nil && !errors.Is(err, model.ErrLicenseNotFound) {
				return err
			}
		}

		return s.waitlistRepo.Delete(txCtx, entryID)
	})
}

// ImportLicenses bulk-loads keys for a product. Duplicate keys are
// reported, not treated as errors, so re-running an import is safe.
func (s *InventoryService) ImportLicenses(ctx context.Context, productRef string, keys []string, instructions string) (*ImportResult, error) {
	if _, err := s.productRepo.GetByRef(ctx, productRef); err != nil {
		return nil, err
	}

	result := &ImportResult{}
	for _, key := range keys {
		lic := &model.License{
			ID:           uuid.New(),
			ProductRef:   productRef,
			LicenseKey:   key,
			Status:       model.LicenseStatusAvailable,
			Instructions: instructions,
			CreatedAt:    time.Now(),
		}
		err := s.licenseRepo.Create(ctx, lic)
		if err != nil {
			if errors.Is(err, model.ErrDuplicateLicenseKey) {
				result.Duplicates = append(result.Duplicates, key)
				continue
			}
			return result, err
		}
		result.Imported++
	}

	logger.Info("License import finished", map[string]interface{}{
		"product_ref": productRef,
		"imported":    result.Imported,
		"duplicates":  len(result.Duplicates),
	})

	return result, nil
}

// LicenseByOrder returns the license most recently linked to an order.
func (s *InventoryService) LicenseByOrder(ctx context.Context, orderID uuid.UUID) (*model.License, error) {
	return s.licenseRepo.GetByOrderID(ctx, orderID)
}

// GetInventory returns the per-status counts for one product.
func (s *InventoryService) GetInventory(ctx context.Context, productRef string) (*model.InventoryCounts, error) {
	return s.licenseRepo.CountByProduct(ctx, productRef)
}

// NewStagingInconsistencyError flags an entry in READY_FOR_EMAIL with
// no reserved license, which staging should make impossible.
func NewStagingInconsistencyError(entryID uuid.UUID) error {
	return model.NewLicenseError(
		model.ErrCodeWaitlistClosed,
		fmt.Sprintf("Waitlist entry %s is staged without a license", entryID),
		model.ErrLicenseNotFound,
	)
}
