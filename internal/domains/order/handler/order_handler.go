package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	licenseModel "licensify-backend/internal/domains/license/model"
	"licensify-backend/internal/domains/order/model"
	"licensify-backend/internal/domains/order/service"
	paymentModel "licensify-backend/internal/domains/payment/model"
	productModel "licensify-backend/internal/domains/product/model"
	"licensify-backend/internal/shared/response"
	"licensify-backend/pkg/logger"
)

type OrderHandler struct {
	orderService *service.OrderService
}

func NewOrderHandler(orderService *service.OrderService) *OrderHandler {
	return &OrderHandler{orderService: orderService}
}

// Create handles POST /api/v1/orders
func (h *OrderHandler) Create(c *gin.Context) {
	var req model.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body", err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "INVALID_REQUEST", "Validation failed", err.Error())
		return
	}

	result, err := h.orderService.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, productModel.ErrProductNotFound):
			response.NotFound(c, "Product not found: "+req.ProductRef)
		case errors.Is(err, model.ErrProductInactive):
			response.Conflict(c, "Product is not active")
		case errors.Is(err, paymentModel.ErrUnknownProvider):
			response.BadRequest(c, "Unknown payment gateway: "+req.Gateway)
		default:
			logger.Error("Order creation failed", err)
			response.InternalError(c, "Failed to create order")
		}
		return
	}

	response.Success(c, http.StatusCreated, result)
}

// Get handles GET /api/v1/orders/:id
func (h *OrderHandler) Get(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "Invalid order id")
		return
	}

	order, tx, err := h.orderService.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		if errors.Is(err, model.ErrOrderNotFound) {
			response.NotFound(c, "Order not found")
			return
		}
		logger.Error("Order lookup failed", err)
		response.InternalError(c, "Failed to load order")
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"order":       order,
		"transaction": tx,
	})
}

// InitiatePayment handles POST /api/v1/orders/:id/payment
func (h *OrderHandler) InitiatePayment(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "Invalid order id")
		return
	}

	checkout, err := h.orderService.RetryPayment(c.Request.Context(), orderID)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrOrderNotFound):
			response.NotFound(c, "Order not found")
		case errors.Is(err, model.ErrOrderAlreadyPaid):
			response.Conflict(c, "Order is not awaiting payment")
		case errors.Is(err, paymentModel.ErrTransactionNotFound):
			response.Conflict(c, "Order has no open transaction")
		default:
			logger.Error("Payment initiation failed", err)
			response.InternalError(c, "Failed to initiate payment")
		}
		return
	}

	response.Success(c, http.StatusOK, checkout)
}

// Revive handles POST /api/v1/admin/orders/:id/revive
func (h *OrderHandler) Revive(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "Invalid order id")
		return
	}

	var req model.ReviveOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Reason is required")
		return
	}

	adminEmail := c.GetString("adminEmail")
	result, err := h.orderService.ReviveOrder(c.Request.Context(), orderID, req.Reason, adminEmail)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrOrderNotFound):
			response.NotFound(c, "Order not found")
		case errors.Is(err, model.ErrOrderNotCanceled):
			response.Conflict(c, "Only canceled orders can be revived")
		default:
			logger.Error("Order revive failed", err)
			response.InternalError(c, "Failed to revive order")
		}
		return
	}

	response.Success(c, http.StatusOK, result)
}

// ChangeLicense handles POST /api/v1/admin/orders/:id/change-license
func (h *OrderHandler) ChangeLicense(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "Invalid order id")
		return
	}

	result, err := h.orderService.ChangeLicense(c.Request.Context(), orderID)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrOrderNotFound):
			response.NotFound(c, "Order not found")
		case errors.Is(err, model.ErrOrderNotCompleted):
			response.Conflict(c, "Order must be completed to change its license")
		case errors.Is(err, licenseModel.ErrNoAvailableLicense):
			response.Conflict(c, "No replacement license available")
		case errors.Is(err, licenseModel.ErrLicenseNotFound), errors.Is(err, licenseModel.ErrLicenseNotSold):
			response.Conflict(c, "Order has no sold license to replace")
		default:
			logger.Error("License change failed", err)
			response.InternalError(c, "Failed to change license")
		}
		return
	}

	response.Success(c, http.StatusOK, result)
}

// ResendEmail handles POST /api/v1/admin/orders/:id/resend-email
func (h *OrderHandler) ResendEmail(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "Invalid order id")
		return
	}

	if err := h.orderService.ResendLicenseEmail(c.Request.Context(), orderID); err != nil {
		switch {
		case errors.Is(err, model.ErrOrderNotFound):
			response.NotFound(c, "Order not found")
		default:
			var orderErr *model.OrderError
			if errors.As(err, &orderErr) {
				response.ErrorResponse(c, http.StatusConflict, orderErr.Code, orderErr.Message)
				return
			}
			logger.Error("License email resend failed", err)
			response.InternalError(c, "Failed to resend license email")
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"resent": orderID})
}
