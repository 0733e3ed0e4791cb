package handler

import (
	"errors"
	"fmt"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"licensify-backend/internal/domains/license/model"
	"licensify-backend/internal/domains/license/service"
	productModel "licensify-backend/internal/domains/product/model"
	"licensify-backend/internal/shared/response"
	"licensify-backend/pkg/logger"
)

// StagingScheduler triggers the waitlist staging job after inventory
// grows.
type StagingScheduler interface {
	EnqueueWaitlistStaging(productRef string) error
}

type LicenseHandler struct {
	inventoryService *service.InventoryService
	stager           StagingScheduler
}

func NewLicenseHandler(inventoryService *service.InventoryService, stager StagingScheduler) *LicenseHandler {
	return &LicenseHandler{inventoryService: inventoryService, stager: stager}
}

// =====================================================
// REQUEST TYPES
// =====================================================

type ImportLicensesRequest struct {
	ProductRef   string   `json:"product_ref"`
	Keys         []string `json:"keys"`
	Instructions string   `json:"instructions"`
}

func (r ImportLicensesRequest) Validate() error {
	err := validation.ValidateStruct(&r,
		validation.Field(&r.ProductRef, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.Keys, validation.Required, validation.Length(1, 5000)),
	)
	if err != nil {
		return fmt.Errorf("invalid import request: %w", err)
	}
	return nil
}

// =====================================================
// HANDLERS
// =====================================================

// ImportLicenses handles POST /api/v1/admin/licenses/import
func (h *LicenseHandler) ImportLicenses(c *gin.Context) {
	var req ImportLicensesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body", err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "INVALID_REQUEST", "Validation failed", err.Error())
		return
	}

	result, err := h.inventoryService.ImportLicenses(c.Request.Context(), req.ProductRef, req.Keys, req.Instructions)
	if err != nil {
		if errors.Is(err, productModel.ErrProductNotFound) {
			response.NotFound(c, "Product not found")
			return
		}
		logger.Error("License import failed", err)
		response.InternalError(c, "Failed to import licenses")
		return
	}

	if result.Imported > 0 {
		if err := h.stager.EnqueueWaitlistStaging(req.ProductRef); err != nil {
			logger.Error("Failed to schedule waitlist staging after import", err)
		}
	}

	response.Success(c, http.StatusOK, result)
}

// GetInventory handles GET /api/v1/admin/products/:ref/inventory
func (h *LicenseHandler) GetInventory(c *gin.Context) {
	productRef := c.Param("ref")
	if productRef == "" {
		response.BadRequest(c, "Product ref is required")
		return
	}

	counts, err := h.inventoryService.GetInventory(c.Request.Context(), productRef)
	if err != nil {
		logger.Error("Inventory lookup failed", err)
		response.InternalError(c, "Failed to load inventory")
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"product_ref": productRef,
		"counts":      counts,
	})
}

// StageWaitlist handles POST /api/v1/admin/products/:ref/stage-waitlist
// Manual trigger for the staging sweep, same path the scheduler uses.
func (h *LicenseHandler) StageWaitlist(c *gin.Context) {
	productRef := c.Param("ref")
	if productRef == "" {
		response.BadRequest(c, "Product ref is required")
		return
	}

	staged, err := h.inventoryService.StageWaitlistReservations(c.Request.Context(), productRef)
	if err != nil {
		logger.Error("Manual waitlist staging failed", err)
		response.InternalError(c, "Failed to stage waitlist")
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"product_ref": productRef,
		"staged":      staged,
	})
}

// RemoveWaitlistEntry handles DELETE /api/v1/admin/waitlist/:id
func (h *LicenseHandler) RemoveWaitlistEntry(c *gin.Context) {
	entryID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "Invalid waitlist entry id")
		return
	}

	err = h.inventoryService.RemoveWaitlistEntry(c.Request.Context(), entryID)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrWaitlistEntryNotFound):
			response.NotFound(c, "Waitlist entry not found")
		case errors.Is(err, model.ErrWaitlistEntryClosed):
			response.Conflict(c, "Waitlist entry is already completed")
		default:
			logger.Error("Waitlist removal failed", err)
			response.InternalError(c, "Failed to remove waitlist entry")
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"removed": entryID})
}
