package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"licensify-backend/internal/config"
	"licensify-backend/internal/domains/payment/gateway"
	"licensify-backend/internal/domains/payment/model"
	"licensify-backend/internal/domains/payment/repository"
	"licensify-backend/pkg/database"
	"licensify-backend/pkg/logger"
)

// processingSet guards against concurrent verification of the same
// transaction. Scoped acquire/release, nothing global.
type processingSet struct {
	mu  sync.Mutex
	ids map[uuid.UUID]struct{}
}

func newProcessingSet() *processingSet {
	return &processingSet{ids: make(map[uuid.UUID]struct{})}
}

func (p *processingSet) acquire(id uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.ids[id]; busy {
		return false
	}
	p.ids[id] = struct{}{}
	return true
}

func (p *processingSet) release(id uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.ids, id)
}

// VerificationService reconciles local transaction state against the
// provider's status API. Transitions it discovers run through the same
// paths webhooks use.
type VerificationService struct {
	txManager          database.TxManager
	transactionRepo    repository.TransactionRepoInterface
	registry           *gateway.Registry
	transactionService *TransactionService
	processing         *processingSet
	batchSize          int
	batchPause         time.Duration
	stuckAfter         time.Duration
}

func NewVerificationService(
	txManager database.TxManager,
	transactionRepository repository.TransactionRepoInterface,
	registry *gateway.Registry,
	transactionService *TransactionService,
	jobs config.JobConfig,
) *VerificationService {
	return &VerificationService{
		txManager:          txManager,
		transactionRepo:    transactionRepository,
		registry:           registry,
		transactionService: transactionService,
		processing:         newProcessingSet(),
		batchSize:          jobs.VerifyBatchSize,
		batchPause:         jobs.VerifyBatchPause,
		stuckAfter:         jobs.VerifyStuckAfter,
	}
}

// VerifyTransactionStatus fetches the canonical status for one
// transaction and applies any discovered transition. Integrity
// mismatches abort without mutating anything.
func (s *VerificationService) VerifyTransactionStatus(ctx context.Context, transactionID uuid.UUID, providerStatusID string, bypassCache bool) (*model.VerificationResult, error) {
	if !s.processing.acquire(transactionID) {
		return nil, model.NewPaymentError(
			model.ErrCodeAlreadyProcessing,
			"Verification already running for transaction "+transactionID.String(),
			model.ErrAlreadyProcessing,
		)
	}
	defer s.processing.release(transactionID)

	tx, err := s.transactionRepo.GetByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	client, err := s.registry.Client(tx.Gateway)
	if err != nil {
		return nil, model.NewPaymentError(model.ErrCodeUnknownProvider, "No client for gateway "+tx.Gateway, err)
	}

	if providerStatusID == "" {
		providerStatusID, _ = tx.Meta["checkoutId"].(string)
	}
	if providerStatusID == "" {
		return nil, model.NewPaymentError(model.ErrCodeNoMatch, "Transaction has no provider checkout id to verify against", model.ErrNoMatch)
	}

	status, err := client.FetchStatus(ctx, providerStatusID, bypassCache)
	if err != nil {
		return nil, err
	}

	result := &model.VerificationResult{
		TransactionID: tx.ID,
		OrderID:       tx.OrderID,
		LocalStatus:   tx.Status,
		GatewayStatus: status.Status,
		FromCache:     status.FromCache,
	}

	if issue := s.integrityCheck(tx, status); issue != "" {
		result.IntegrityIssue = issue
		return result, model.NewPaymentError(model.ErrCodeNoMatch, "Integrity check failed: "+issue, model.ErrNoMatch)
	}

	if status.Status == tx.Status {
		return result, nil
	}
	result.Changed = true

	var postCommit []func()
	handleResult := &model.HandleResult{TransactionID: tx.ID, OrderID: tx.OrderID}

	err = s.txManager.WithinSerializableTx(ctx, func(txCtx context.Context) error {
		if err := s.transactionRepo.UpdateStatusFrom(txCtx, tx.ID, tx.Status, status.Status); err != nil {
			return err
		}
		if err := s.transactionRepo.AppendMeta(txCtx, tx.ID, "statusVerification", map[string]interface{}{
			"checkedAt":     time.Now().UTC().Format(time.RFC3339),
			"oldStatus":     tx.Status,
			"gatewayStatus": status.RawStatus,
		}); err != nil {
			return err
		}

		switch {
		case tx.Status != model.TxStatusPaid && status.Status == model.TxStatusPaid:
			actions, err := s.transactionService.HandlePaymentSuccess(txCtx, tx, handleResult)
			if err != nil {
				return err
			}
			postCommit = append(postCommit, actions...)
		case status.Status == model.TxStatusFailed:
			return s.transactionService.HandlePaymentFailure(txCtx, tx)
		}
		return nil
	})
	if errors.Is(err, model.ErrStatusConflict) {
		// A webhook applied a transition while we were verifying.
		logger.Warn("Verification lost to a concurrent update", map[string]interface{}{
			"transaction_id": tx.ID.String(),
		})
		return result, nil
	}
	if err != nil {
		return result, err
	}

	for _, action := range postCommit {
		action()
	}
	result.Applied = true

	logger.Info("Verification applied status change", map[string]interface{}{
		"transaction_id": tx.ID.String(),
		"old_status":     tx.Status,
		"new_status":     status.Status,
	})

	return result, nil
}

// integrityCheck cross-validates the provider record against the local
// transaction before trusting its status.
func (s *VerificationService) integrityCheck(tx *model.Transaction, status *gateway.StatusResult) string {
	if status.ExternalID != "" && tx.GatewayRef != nil && status.ExternalID != *tx.GatewayRef {
		return fmt.Sprintf("external id mismatch: provider %q vs local %q", status.ExternalID, *tx.GatewayRef)
	}
	if status.Amount != 0 && status.Amount != tx.Amount {
		return fmt.Sprintf("amount mismatch: provider %d vs local %d", status.Amount, tx.Amount)
	}
	if status.Currency != "" && !strings.EqualFold(status.Currency, tx.Currency) {
		return fmt.Sprintf("currency mismatch: provider %s vs local %s", status.Currency, tx.Currency)
	}
	return ""
}

// VerifyMultiple checks transactions in small batches with a pause in
// between, to stay inside provider rate limits.
func (s *VerificationService) VerifyMultiple(ctx context.Context, ids []uuid.UUID) *model.VerifyBatchSummary {
	summary := &model.VerifyBatchSummary{}

	for i := 0; i < len(ids); i += s.batchSize {
		end := i + s.batchSize
		if end > len(ids) {
			end = len(ids)
		}

		for _, id := range ids[i:end] {
			result, err := s.VerifyTransactionStatus(ctx, id, "", false)
			summary.Checked++
			switch {
			case err != nil && result == nil:
				summary.Failed++
			case err != nil:
				if result.IntegrityIssue != "" {
					summary.Failed++
				} else {
					summary.Skipped++
				}
			case result.Changed:
				summary.Changed++
			}
		}

		if end < len(ids) {
			select {
			case <-ctx.Done():
				return summary
			case <-time.After(s.batchPause):
			}
		}
	}

	return summary
}

// VerifyStuck sweeps open transactions older than the configured
// cutoff. Run by the scheduler.
func (s *VerificationService) VerifyStuck(ctx context.Context, limit int) (*model.VerifyBatchSummary, error) {
	cutoff := time.Now().Add(-s.stuckAfter)
	stuck, err := s.transactionRepo.ListStuck(ctx, cutoff, limit)
	if err != nil {
		return nil, err
	}
	if len(stuck) == 0 {
		return &model.VerifyBatchSummary{}, nil
	}

	ids := make([]uuid.UUID, 0, len(stuck))
	for _, tx := range stuck {
		ids = append(ids, tx.ID)
	}

	logger.Info("Verifying stuck transactions", map[string]interface{}{
		"count": len(ids),
	})

	return s.VerifyMultiple(ctx, ids), nil
}
