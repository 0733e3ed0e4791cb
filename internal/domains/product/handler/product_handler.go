package handler

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"licensify-backend/internal/domains/product/model"
	"licensify-backend/internal/domains/product/repository"
	"licensify-backend/internal/shared/response"
	"licensify-backend/pkg/logger"
)

type ProductHandler struct {
	productRepo repository.ProductRepoInterface
}

func NewProductHandler(productRepo repository.ProductRepoInterface) *ProductHandler {
	return &ProductHandler{productRepo: productRepo}
}

type createProductRequest struct {
	Ref         string `json:"ref"`
	Name        string `json:"name"`
	PriceCents  int64  `json:"price_cents"`
	Currency    string `json:"currency"`
	LicenseType bool   `json:"license_type"`
}

func (r createProductRequest) Validate() error {
	err := validation.ValidateStruct(&r,
		validation.Field(&r.Ref, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.PriceCents, validation.Required, validation.Min(1)),
		validation.Field(&r.Currency, validation.Required, validation.Length(3, 3)),
	)
	if err != nil {
		return fmt.Errorf("invalid product: %w", err)
	}
	return nil
}

// Create handles POST /api/v1/admin/products
func (h *ProductHandler) Create(c *gin.Context) {
	var req createProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body", err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "INVALID_REQUEST", "Validation failed", err.Error())
		return
	}

	now := time.Now()
	product := &model.Product{
		ID:          uuid.New(),
		Ref:         req.Ref,
		Name:        req.Name,
		PriceCents:  req.PriceCents,
		Currency:    req.Currency,
		LicenseType: req.LicenseType,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := h.productRepo.Create(c.Request.Context(), product); err != nil {
		if errors.Is(err, model.ErrDuplicateProductRef) {
			response.Conflict(c, "Product ref already exists: "+req.Ref)
			return
		}
		logger.Error("Product creation failed", err)
		response.InternalError(c, "Failed to create product")
		return
	}

	response.Success(c, http.StatusCreated, product)
}

// Get handles GET /api/v1/products/:ref
func (h *ProductHandler) Get(c *gin.Context) {
	product, err := h.productRepo.GetByRef(c.Request.Context(), c.Param("ref"))
	if err != nil {
		if errors.Is(err, model.ErrProductNotFound) {
			response.NotFound(c, "Product not found")
			return
		}
		logger.Error("Product lookup failed", err)
		response.InternalError(c, "Failed to load product")
		return
	}

	response.Success(c, http.StatusOK, product)
}
