package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"licensify-backend/internal/domains/payment/model"
	"licensify-backend/internal/domains/payment/service"
	"licensify-backend/internal/shared/response"
	"licensify-backend/pkg/logger"
)

type VerificationHandler struct {
	verificationService *service.VerificationService
}

func NewVerificationHandler(verificationService *service.VerificationService) *VerificationHandler {
	return &VerificationHandler{verificationService: verificationService}
}

type verifyRequest struct {
	ProviderStatusID string `json:"provider_status_id"`
	BypassCache      bool   `json:"bypass_cache"`
}

// Verify handles POST /api/v1/admin/transactions/:id/verify
func (h *VerificationHandler) Verify(c *gin.Context) {
	transactionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "Invalid transaction id")
		return
	}

	var req verifyRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}
	}

	result, err := h.verificationService.VerifyTransactionStatus(c.Request.Context(), transactionID, req.ProviderStatusID, req.BypassCache)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrTransactionNotFound):
			response.NotFound(c, "Transaction not found")
		case errors.Is(err, model.ErrAlreadyProcessing):
			response.Conflict(c, "Verification already in progress for this transaction")
		case errors.Is(err, model.ErrRateLimited):
			response.ErrorResponse(c, http.StatusTooManyRequests, model.ErrCodeRateLimited, "Provider status polling rate limit reached")
		case result != nil && result.IntegrityIssue != "":
			response.ErrorWithDetails(c, http.StatusConflict, model.ErrCodeNoMatch, "Provider record does not match local transaction", result.IntegrityIssue)
		default:
			logger.Error("Transaction verification failed", err)
			response.InternalError(c, "Transaction verification failed")
		}
		return
	}

	response.Success(c, http.StatusOK, result)
}

type verifyBatchRequest struct {
	TransactionIDs []string `json:"transaction_ids"`
}

// VerifyBatch handles POST /api/v1/admin/transactions/verify-batch
func (h *VerificationHandler) VerifyBatch(c *gin.Context) {
	var req verifyBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}
	if len(req.TransactionIDs) == 0 {
		response.BadRequest(c, "transaction_ids is required")
		return
	}

	ids := make([]uuid.UUID, 0, len(req.TransactionIDs))
	for _, raw := range req.TransactionIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.BadRequest(c, "Invalid transaction id: "+raw)
			return
		}
		ids = append(ids, id)
	}

	summary := h.verificationService.VerifyMultiple(c.Request.Context(), ids)
	response.Success(c, http.StatusOK, summary)
}
