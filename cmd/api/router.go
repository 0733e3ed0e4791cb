package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"licensify-backend/internal/shared/middleware"
	"licensify-backend/pkg/container"
)

func SetupRouter(c *container.Container) *gin.Engine {
	router := gin.New()

	// Global middlewares
	router.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		middleware.CORS(),
	)

	v1 := router.Group("/api/v1")
	{
		// Health check
		v1.GET("/health", healthCheckHandler(c))

		setupWebhookRoutes(v1, c)
		setupStoreRoutes(v1, c)
		setupAuthRoutes(v1, c)
		setupAdminRoutes(v1, c)
	}

	return router
}

// ========================================
// WEBHOOK ROUTES
// ========================================
func setupWebhookRoutes(v1 *gin.RouterGroup, c *container.Container) {
	webhooks := v1.Group("/webhooks")
	{
		// ePayco posts form-encoded confirmations, Palomma posts JSON.
		// Both land on the same ingress and are dispatched by provider.
		webhooks.POST("/:provider", c.WebhookHandler.Process)
	}
}

// ========================================
// STOREFRONT ROUTES
// ========================================
func setupStoreRoutes(v1 *gin.RouterGroup, c *container.Container) {
	v1.GET("/products/:ref", c.ProductHandler.Get)

	orders := v1.Group("/orders")
	{
		orders.POST("", c.OrderHandler.Create)
		orders.GET("/:id", c.OrderHandler.Get)
		orders.POST("/:id/payment", c.OrderHandler.InitiatePayment)
	}
}

// ========================================
// AUTH ROUTES
// ========================================
func setupAuthRoutes(v1 *gin.RouterGroup, c *container.Container) {
	auth := v1.Group("/auth")
	{
		auth.POST("/login", c.AuthHandler.Login)
	}
}

// ========================================
// ADMIN ROUTES
// ========================================
func setupAdminRoutes(v1 *gin.RouterGroup, c *container.Container) {
	admin := v1.Group("/admin")
	admin.Use(middleware.AdminAuth(c.JWTManager))
	{
		// Catalog
		admin.POST("/products", c.ProductHandler.Create)

		// Inventory
		admin.POST("/licenses/import", c.LicenseHandler.ImportLicenses)
		admin.GET("/products/:ref/inventory", c.LicenseHandler.GetInventory)
		admin.POST("/products/:ref/stage-waitlist", c.LicenseHandler.StageWaitlist)
		admin.DELETE("/waitlist/:id", c.LicenseHandler.RemoveWaitlistEntry)

		// Order lifecycle
		admin.POST("/orders/:id/revive", c.OrderHandler.Revive)
		admin.POST("/orders/:id/change-license", c.OrderHandler.ChangeLicense)
		admin.POST("/orders/:id/resend-email", c.OrderHandler.ResendEmail)

		// Reconciliation
		admin.POST("/transactions/:id/verify", c.VerificationHandler.Verify)
		admin.POST("/transactions/verify-batch", c.VerificationHandler.VerifyBatch)
	}
}

// ========================================
// HEALTH CHECK HANDLER
// ========================================
func healthCheckHandler(appCtx *container.Container) gin.HandlerFunc {
	return func(c *gin.Context) {
		health := gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
			"version":   appCtx.Config.App.Version,
		}

		dbStatus := "ok"
		if appCtx.DB == nil || appCtx.DB.Pool == nil {
			dbStatus = "disconnected"
			health["status"] = "degraded"
		} else {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()

			if err := appCtx.DB.HealthCheck(ctx); err != nil {
				dbStatus = fmt.Sprintf("error: %v", err)
				health["status"] = "degraded"
			}
		}

		redisStatus := "ok"
		if appCtx.Redis == nil {
			redisStatus = "disconnected"
		} else {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()

			if err := appCtx.Redis.HealthCheck(ctx); err != nil {
				redisStatus = fmt.Sprintf("error: %v", err)
			}
		}

		health["services"] = gin.H{
			"database":    dbStatus,
			"redis":       redisStatus,
			"email_queue": appCtx.DeliveryQueue.Len(),
		}

		statusCode := http.StatusOK
		if dbStatus != "ok" {
			statusCode = http.StatusServiceUnavailable
		}

		c.JSON(statusCode, health)
	}
}
