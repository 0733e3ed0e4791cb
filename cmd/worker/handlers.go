package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	licenseService "licensify-backend/internal/domains/license/service"
	paymentService "licensify-backend/internal/domains/payment/service"
	"licensify-backend/internal/infrastructure/email"
	"licensify-backend/internal/shared"
	"licensify-backend/pkg/container"
	"licensify-backend/pkg/logger"
)

// HandlerRegistry holds all job handlers.
type HandlerRegistry struct {
	inventoryService    *licenseService.InventoryService
	verificationService *paymentService.VerificationService
	deliveryQueue       *email.DeliveryQueue
}

func initializeHandlers(c *container.Container) *HandlerRegistry {
	return &HandlerRegistry{
		inventoryService:    c.InventoryService,
		verificationService: c.VerificationService,
		deliveryQueue:       c.DeliveryQueue,
	}
}

// RegisterHandlers binds task types to their handlers.
func (h *HandlerRegistry) RegisterHandlers(mux *asynq.ServeMux) {
	// Fulfillment tasks
	mux.HandleFunc(shared.TypeProcessNextWaitlistEntry, h.processNextWaitlistEntry)
	mux.HandleFunc(shared.TypeStageWaitlist, h.stageWaitlist)

	// Reconciliation tasks
	mux.HandleFunc(shared.TypeVerifyStuckTransactions, h.verifyStuckTransactions)

	// Email tasks
	mux.HandleFunc(shared.TypeSendWaitlistNotification, h.sendWaitlistNotification)
	mux.HandleFunc(shared.TypeSendOrderConfirmation, h.sendOrderConfirmation)
}

// processNextWaitlistEntry delivers at most one staged waitlist entry.
// The scheduler tick provides the pacing, so an empty queue is a no-op.
func (h *HandlerRegistry) processNextWaitlistEntry(ctx context.Context, t *asynq.Task) error {
	entry, err := h.inventoryService.ProcessNextWaitlistEntry(ctx)
	if err != nil {
		// Delivery failures are already recorded on the entry; the
		// error here is for operator visibility only.
		return err
	}
	if entry == nil {
		return nil
	}

	logger.Debug("Waitlist tick processed entry", map[string]interface{}{
		"entry_id": entry.ID.String(),
	})
	return nil
}

// stageWaitlist reserves freed licenses for waiting entries. An empty
// product ref means the periodic safety net: sweep every product with
// pending entries.
func (h *HandlerRegistry) stageWaitlist(ctx context.Context, t *asynq.Task) error {
	var payload shared.StageWaitlistPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid staging payload: %w", err)
	}

	var staged int
	var err error
	if payload.ProductRef == "" {
		staged, err = h.inventoryService.StageAllPending(ctx)
	} else {
		staged, err = h.inventoryService.StageWaitlistReservations(ctx, payload.ProductRef)
	}
	if err != nil {
		return err
	}

	if staged > 0 {
		logger.Info("Waitlist staging run finished", map[string]interface{}{
			"product_ref": payload.ProductRef,
			"staged":      staged,
		})
	}
	return nil
}

// verifyStuckTransactions reconciles transactions that never received
// their webhook.
func (h *HandlerRegistry) verifyStuckTransactions(ctx context.Context, t *asynq.Task) error {
	var payload shared.VerifyStuckPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid verify payload: %w", err)
	}

	summary, err := h.verificationService.VerifyStuck(ctx, payload.Limit)
	if err != nil {
		return err
	}

	if summary.Checked > 0 {
		logger.Info("Stuck transaction sweep finished", map[string]interface{}{
			"checked": summary.Checked,
			"changed": summary.Changed,
			"failed":  summary.Failed,
		})
	}
	return nil
}

// sendWaitlistNotification hands the email off to the paced delivery
// queue. A full queue fails the task so asynq retries it with backoff,
// which is exactly the backpressure we want.
func (h *HandlerRegistry) sendWaitlistNotification(ctx context.Context, t *asynq.Task) error {
	var payload shared.WaitlistNotificationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid notification payload: %w", err)
	}
	return h.deliveryQueue.Submit(email.TaskWaitlistNotification, payload.EntryID)
}

func (h *HandlerRegistry) sendOrderConfirmation(ctx context.Context, t *asynq.Task) error {
	var payload shared.OrderConfirmationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid confirmation payload: %w", err)
	}
	return h.deliveryQueue.Submit(email.TaskOrderConfirmation, payload.OrderID)
}
