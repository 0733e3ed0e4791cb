package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	customerRepo "licensify-backend/internal/domains/customer/repository"
	licenseModel "licensify-backend/internal/domains/license/model"
	licenseService "licensify-backend/internal/domains/license/service"
	orderModel "licensify-backend/internal/domains/order/model"
	orderRepo "licensify-backend/internal/domains/order/repository"
	"licensify-backend/internal/domains/payment/model"
	"licensify-backend/internal/domains/payment/repository"
	productRepo "licensify-backend/internal/domains/product/repository"
	"licensify-backend/internal/shared/utils"
	"licensify-backend/pkg/database"
	"licensify-backend/pkg/logger"
)

// =====================================================
// DEPENDENCIES
// =====================================================

// LicenseInfo is one delivered key.
type LicenseInfo struct {
	Key          string
	Instructions string
}

// LicenseEmailData feeds the license delivery template.
type LicenseEmailData struct {
	OrderID      uuid.UUID
	Recipient    string
	CustomerName string
	ProductName  string
	Licenses     []LicenseInfo
	Tag          string
}

// FulfillmentMailer sends the license email synchronously on the paid
// path. An order is only COMPLETED after this succeeds.
type FulfillmentMailer interface {
	SendLicenseDelivery(ctx context.Context, data LicenseEmailData) (string, error)
}

// TaskScheduler enqueues background work after the surrounding DB
// transaction commits.
type TaskScheduler interface {
	EnqueueOrderConfirmation(orderID uuid.UUID) error
	EnqueueWaitlistNotification(entryID uuid.UUID) error
}

// =====================================================
// SERVICE
// =====================================================

// TransactionService applies normalized payment events to the
// transaction and order state machines.
type TransactionService struct {
	txManager        database.TxManager
	transactionRepo  repository.TransactionRepoInterface
	orderRepo        orderRepo.OrderRepoInterface
	customerRepo     customerRepo.CustomerRepoInterface
	productRepo      productRepo.ProductRepoInterface
	inventoryService *licenseService.InventoryService
	mailer           FulfillmentMailer
	scheduler        TaskScheduler
	fallbackWindow   time.Duration
}

func NewTransactionService(
	txManager database.TxManager,
	transactionRepository repository.TransactionRepoInterface,
	orderRepository orderRepo.OrderRepoInterface,
	customerRepository customerRepo.CustomerRepoInterface,
	productRepository productRepo.ProductRepoInterface,
	inventoryService *licenseService.InventoryService,
	mailer FulfillmentMailer,
	scheduler TaskScheduler,
	fallbackWindow time.Duration,
) *TransactionService {
	return &TransactionService{
		txManager:        txManager,
		transactionRepo:  transactionRepository,
		orderRepo:        orderRepository,
		customerRepo:     customerRepository,
		productRepo:      productRepository,
		inventoryService: inventoryService,
		mailer:           mailer,
		scheduler:        scheduler,
		fallbackWindow:   fallbackWindow,
	}
}

// =====================================================
// EVENT HANDLING
// =====================================================

// Handle correlates one event to a transaction and applies the
// transition. Missing correlations are acknowledged, not errored: the
// provider must not retry events we can never match.
func (s *TransactionService) Handle(ctx context.Context, event *model.NormalizedEvent) (*model.HandleResult, error) {
	tx, err := s.lookup(ctx, event)
	if err != nil {
		var payErr *model.PaymentError
		if errors.As(err, &payErr) && payErr.Code == model.ErrCodeAmbiguousMatch {
			return &model.HandleResult{Outcome: model.OutcomeFailed, Reason: "ambiguous_amount_match"}, err
		}
		return nil, err
	}
	if tx == nil {
		if event.Type == model.EventTypeBalanceCredit {
			return &model.HandleResult{Outcome: model.OutcomeIgnored, Reason: "balance_credit"}, nil
		}
		logger.Warn("No transaction matched event", map[string]interface{}{
			"provider":     event.Provider,
			"external_ref": event.ExternalRef,
			"event_id":     event.EventID,
		})
		return &model.HandleResult{Outcome: model.OutcomeIgnored, Reason: "transaction_not_found"}, nil
	}

	// Idempotency and ordering guards.
	if tx.Status == model.TxStatusPaid && event.Status == model.TxStatusPaid {
		return &model.HandleResult{
			Outcome:       model.OutcomeDuplicate,
			TransactionID: tx.ID,
			OrderID:       tx.OrderID,
			Reason:        "already_processed",
		}, nil
	}
	if model.IsTerminalStatus(tx.Status) && model.StatusRank(event.Status) < model.StatusRank(tx.Status) {
		return &model.HandleResult{
			Outcome:       model.OutcomeIgnored,
			TransactionID: tx.ID,
			OrderID:       tx.OrderID,
			Reason:        "status_downgrade",
		}, nil
	}
	if last := tx.LastWebhookAt(); !last.IsZero() && event.OccurredAt.Before(last) {
		return &model.HandleResult{
			Outcome:       model.OutcomeIgnored,
			TransactionID: tx.ID,
			OrderID:       tx.OrderID,
			Reason:        "stale_event",
		}, nil
	}

	result := &model.HandleResult{
		Outcome:       model.OutcomeProcessed,
		TransactionID: tx.ID,
		OrderID:       tx.OrderID,
		OldStatus:     tx.Status,
		NewStatus:     event.Status,
	}

	var postCommit []func()

	err = s.txManager.WithinSerializableTx(ctx, func(txCtx context.Context) error {
		// Compare-and-swap against the status we read the guards with:
		// a concurrent delivery of the same event loses here instead of
		// double-fulfilling.
		if err := s.transactionRepo.UpdateStatusFrom(txCtx, tx.ID, result.OldStatus, event.Status); err != nil {
			return err
		}

		metaFields := map[string]interface{}{
			"lastWebhookAt": time.Now().UTC().Format(time.RFC3339Nano),
		}
		if event.Status == model.TxStatusPaid {
			metaFields["invoiceStatus"] = "PENDING"
		}
		if err := s.transactionRepo.MergeMeta(txCtx, tx.ID, metaFields); err != nil {
			return err
		}
		if err := s.transactionRepo.AppendMeta(txCtx, tx.ID, "webhook", map[string]interface{}{
			event.EventID: utils.SanitizeObject(event.Payload),
		}); err != nil {
			return err
		}

		switch {
		case result.OldStatus != model.TxStatusPaid && event.Status == model.TxStatusPaid:
			actions, err := s.HandlePaymentSuccess(txCtx, tx, result)
			if err != nil {
				return err
			}
			postCommit = append(postCommit, actions...)
		case event.Status == model.TxStatusFailed:
			return s.HandlePaymentFailure(txCtx, tx)
		}
		return nil
	})
	if errors.Is(err, model.ErrStatusConflict) {
		return &model.HandleResult{
			Outcome:       model.OutcomeDuplicate,
			TransactionID: tx.ID,
			OrderID:       tx.OrderID,
			Reason:        "concurrent_update",
		}, nil
	}
	if err != nil {
		return &model.HandleResult{Outcome: model.OutcomeFailed, TransactionID: tx.ID, Reason: err.Error()}, err
	}

	for _, action := range postCommit {
		action()
	}

	logger.Info("Payment event applied", map[string]interface{}{
		"transaction_id": tx.ID.String(),
		"order_id":       tx.OrderID.String(),
		"old_status":     result.OldStatus,
		"new_status":     result.NewStatus,
		"waitlisted":     result.Waitlisted,
	})

	return result, nil
}

// lookup resolves the transaction for an event: gatewayRef first, then
// amount correlation for failure events that lost their reference.
func (s *TransactionService) lookup(ctx context.Context, event *model.NormalizedEvent) (*model.Transaction, error) {
	if event.ExternalRef != "" {
		tx, err := s.transactionRepo.GetByGatewayRef(ctx, event.Provider, event.ExternalRef)
		if err == nil {
			return tx, nil
		}
		if !errors.Is(err, model.ErrTransactionNotFound) {
			return nil, err
		}
	}

	if event.Status != model.TxStatusFailed {
		return nil, nil
	}

	since := time.Now().Add(-s.fallbackWindow)
	candidates, err := s.transactionRepo.FindRecentOpenByAmount(ctx, event.Provider, event.Amount, since)
	if err != nil {
		return nil, err
	}
	switch len(candidates) {
	case 0:
		return nil, nil
	case 1:
		logger.Warn("Correlated failure event by amount", map[string]interface{}{
			"provider":       event.Provider,
			"event_id":       event.EventID,
			"transaction_id": candidates[0].ID.String(),
		})
		return candidates[0], nil
	default:
		return nil, model.NewAmbiguousMatchError(event.Amount, len(candidates))
	}
}

// =====================================================
// TRANSITIONS
// =====================================================

// HandlePaymentSuccess fulfills the order inside the caller's
// transaction. Returned actions run after commit (async email
// scheduling); the synchronous license email happens inline because
// COMPLETED requires a confirmed delivery.
func (s *TransactionService) HandlePaymentSuccess(ctx context.Context, tx *model.Transaction, result *model.HandleResult) ([]func(), error) {
	if err := s.orderRepo.UpdateStatus(ctx, tx.OrderID, orderModel.OrderStatusInProcess); err != nil {
		return nil, err
	}

	order, err := s.orderRepo.GetByID(ctx, tx.OrderID)
	if err != nil {
		return nil, err
	}
	product, err := s.productRepo.GetByRef(ctx, order.ProductRef)
	if err != nil {
		return nil, err
	}

	if !product.LicenseType {
		if err := s.orderRepo.UpdateStatus(ctx, tx.OrderID, orderModel.OrderStatusCompleted); err != nil {
			return nil, err
		}
		orderID := tx.OrderID
		return []func(){func() {
			if err := s.scheduler.EnqueueOrderConfirmation(orderID); err != nil {
				logger.Error("Failed to enqueue order confirmation", err)
			}
		}}, nil
	}

	reservation, err := s.inventoryService.ReserveLicense(ctx, order.ID, order.CustomerID, order.ProductRef, order.Qty)
	if err != nil {
		return nil, err
	}

	if reservation.Waitlisted {
		result.Waitlisted = true
		entryID := reservation.WaitlistEntry.ID
		return []func(){func() {
			if err := s.scheduler.EnqueueWaitlistNotification(entryID); err != nil {
				logger.Error("Failed to enqueue waitlist notification", err)
			}
		}}, nil
	}

	return nil, s.deliverLicenses(ctx, order, product.Name, reservation.Licenses)
}

// DeliverLicenses exposes the synchronous delivery path for flows
// outside webhook handling, such as admin revive and license change.
func (s *TransactionService) DeliverLicenses(ctx context.Context, order *orderModel.Order, productName string, licenses []*licenseModel.License) error {
	return s.deliverLicenses(ctx, order, productName, licenses)
}

// deliverLicenses attempts the synchronous license email. On failure
// the order deliberately stays IN_PROCESS with a failed email record;
// an order must never read COMPLETED without a sent confirmation.
func (s *TransactionService) deliverLicenses(ctx context.Context, order *orderModel.Order, productName string, licenses []*licenseModel.License) error {
	customer, err := s.customerRepo.GetByID(ctx, order.CustomerID)
	if err != nil {
		return err
	}

	data := LicenseEmailData{
		OrderID:      order.ID,
		Recipient:    customer.Email,
		CustomerName: customer.FullName,
		ProductName:  productName,
		Tag:          fmt.Sprintf("order_%s_%d", order.ID, time.Now().UnixMilli()),
	}
	for _, lic := range licenses {
		data.Licenses = append(data.Licenses, LicenseInfo{Key: lic.LicenseKey, Instructions: lic.Instructions})
	}

	now := time.Now()
	messageID, sendErr := s.mailer.SendLicenseDelivery(ctx, data)
	if sendErr != nil {
		logger.Error("License email failed, order stays in process", sendErr)
		return s.orderRepo.SetShippingEmail(ctx, order.ID, orderModel.EmailConfirmation{
			Sent:        false,
			AttemptedAt: &now,
			Recipient:   customer.Email,
			Type:        "license_delivery",
			Error:       sendErr.Error(),
		})
	}

	if err := s.orderRepo.UpdateStatus(ctx, order.ID, orderModel.OrderStatusCompleted); err != nil {
		return err
	}
	return s.orderRepo.SetShippingEmail(ctx, order.ID, orderModel.EmailConfirmation{
		Sent:      true,
		SentAt:    &now,
		MessageID: messageID,
		Recipient: customer.Email,
		Type:      "license_delivery",
	})
}

// HandlePaymentFailure cancels the order only when no other open
// transaction could still pay for it.
func (s *TransactionService) HandlePaymentFailure(ctx context.Context, tx *model.Transaction) error {
	open, err := s.transactionRepo.CountOpenByOrder(ctx, tx.OrderID, tx.ID)
	if err != nil {
		return err
	}
	if open > 0 {
		return nil
	}
	return s.orderRepo.UpdateStatus(ctx, tx.OrderID, orderModel.OrderStatusCanceled)
}

// ResendLicenseEmail retries delivery for an order whose synchronous
// email failed. The license is already SOLD; only the email record and
// the order status move.
func (s *TransactionService) ResendLicenseEmail(ctx context.Context, orderID uuid.UUID) error {
	return s.txManager.WithinTx(ctx, func(txCtx context.Context) error {
		order, err := s.orderRepo.GetByID(txCtx, orderID)
		if err != nil {
			return err
		}
		if order.EmailSent() {
			return orderModel.NewOrderError(orderModel.ErrCodeInvalidRequest, "License email already confirmed for order "+orderID.String(), nil)
		}
		paid, err := s.transactionRepo.HasPaidForOrder(txCtx, orderID)
		if err != nil {
			return err
		}
		if !paid {
			return orderModel.NewOrderError(orderModel.ErrCodeInvalidRequest, "Order has no paid transaction", nil)
		}

		product, err := s.productRepo.GetByRef(txCtx, order.ProductRef)
		if err != nil {
			return err
		}
		lic, err := s.licenseForOrder(txCtx, orderID)
		if err != nil {
			return err
		}

		return s.deliverLicenses(txCtx, order, product.Name, []*licenseModel.License{lic})
	})
}

func (s *TransactionService) licenseForOrder(ctx context.Context, orderID uuid.UUID) (*licenseModel.License, error) {
	lic, err := s.inventoryService.LicenseByOrder(ctx, orderID)
	if err != nil {
		return nil, orderModel.NewOrderError(orderModel.ErrCodeNoLicenseToShip, "No license recorded for order "+orderID.String(), err)
	}
	return lic, nil
}
