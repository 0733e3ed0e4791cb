package container

import (
	"context"
	"fmt"
	"time"

	"licensify-backend/internal/config"
	authHandler "licensify-backend/internal/domains/auth/handler"
	customerRepo "licensify-backend/internal/domains/customer/repository"
	licenseHandler "licensify-backend/internal/domains/license/handler"
	licenseRepo "licensify-backend/internal/domains/license/repository"
	licenseService "licensify-backend/internal/domains/license/service"
	orderHandler "licensify-backend/internal/domains/order/handler"
	orderRepo "licensify-backend/internal/domains/order/repository"
	orderService "licensify-backend/internal/domains/order/service"
	"licensify-backend/internal/domains/payment/gateway"
	"licensify-backend/internal/domains/payment/gateway/epayco"
	"licensify-backend/internal/domains/payment/gateway/mock"
	"licensify-backend/internal/domains/payment/gateway/palomma"
	paymentHandler "licensify-backend/internal/domains/payment/handler"
	paymentRepo "licensify-backend/internal/domains/payment/repository"
	paymentService "licensify-backend/internal/domains/payment/service"
	productHandler "licensify-backend/internal/domains/product/handler"
	productRepo "licensify-backend/internal/domains/product/repository"
	"licensify-backend/internal/infrastructure/cache"
	"licensify-backend/internal/infrastructure/database"
	"licensify-backend/internal/infrastructure/email"
	"licensify-backend/internal/infrastructure/queue"
	pkgdatabase "licensify-backend/pkg/database"
	"licensify-backend/pkg/jwt"
	"licensify-backend/pkg/logger"
)

// Container wires every dependency once at startup. Both the API and
// the worker build from it, so wiring stays in one place.
type Container struct {
	Config *config.Config

	// Infrastructure
	DB          *database.PostgresDB
	Redis       *cache.RedisClient
	RateLimiter *cache.RateLimiter
	TxManager   pkgdatabase.TxManager
	JWTManager  *jwt.Manager
	QueueClient *queue.Client

	// Email
	EmailService  *email.Service
	DeliveryQueue *email.DeliveryQueue

	// Gateways
	Registry *gateway.Registry

	// Repositories
	ProductRepo     productRepo.ProductRepoInterface
	CustomerRepo    customerRepo.CustomerRepoInterface
	OrderRepo       orderRepo.OrderRepoInterface
	LicenseRepo     licenseRepo.LicenseRepoInterface
	WaitlistRepo    licenseRepo.WaitlistRepoInterface
	TransactionRepo paymentRepo.TransactionRepoInterface
	WebhookRepo     paymentRepo.WebhookRepoInterface

	// Services
	InventoryService    *licenseService.InventoryService
	TransactionService  *paymentService.TransactionService
	WebhookService      *paymentService.WebhookService
	VerificationService *paymentService.VerificationService
	OrderService        *orderService.OrderService

	// Handlers
	AuthHandler         *authHandler.AuthHandler
	ProductHandler      *productHandler.ProductHandler
	OrderHandler        *orderHandler.OrderHandler
	LicenseHandler      *licenseHandler.LicenseHandler
	WebhookHandler      *paymentHandler.WebhookHandler
	VerificationHandler *paymentHandler.VerificationHandler
}

// New connects infrastructure and assembles the object graph.
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	c := &Container{Config: cfg}

	// ===== INFRASTRUCTURE =====
	db := database.NewPostgresDB(&cfg.Database)
	if err := db.Connect(ctx); err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	c.DB = db

	c.Redis = cache.NewRedisClient(cfg.Redis.Host, cfg.Redis.Password, cfg.Redis.DB)
	if err := c.Redis.Connect(ctx); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	c.RateLimiter = cache.NewRateLimiter(c.Redis, cfg.Jobs.RateLimitWindow, cfg.Jobs.RateLimitMaxPerKey)

	c.TxManager = pkgdatabase.NewTxManager(db.Pool)
	c.JWTManager = jwt.NewManager(cfg.JWT.Secret)
	c.QueueClient = queue.NewClient(cfg.Redis)

	// ===== REPOSITORIES =====
	c.ProductRepo = productRepo.NewProductRepository(db.Pool)
	c.CustomerRepo = customerRepo.NewCustomerRepository(db.Pool)
	c.OrderRepo = orderRepo.NewOrderRepository(db.Pool)
	c.LicenseRepo = licenseRepo.NewLicenseRepository(db.Pool)
	c.WaitlistRepo = licenseRepo.NewWaitlistRepository(db.Pool)
	c.TransactionRepo = paymentRepo.NewTransactionRepository(db.Pool)
	c.WebhookRepo = paymentRepo.NewWebhookRepository(db.Pool)

	// ===== GATEWAYS =====
	c.Registry = gateway.NewRegistry()
	c.Registry.RegisterAdapter(palomma.NewAdapter(cfg.Palomma.WebhookSecret))
	c.Registry.RegisterClient(palomma.NewClient(cfg.Palomma, cfg.Jobs, c.Redis, c.RateLimiter))
	c.Registry.RegisterAdapter(epayco.NewAdapter(cfg.EPayco))
	if cfg.App.Environment != "production" {
		c.Registry.RegisterAdapter(mock.NewAdapter())
		c.Registry.RegisterClient(mock.NewClient())
	}

	// ===== EMAIL =====
	brevo := email.NewBrevoClient(cfg.Email)
	c.EmailService = email.NewService(brevo, c.OrderRepo, c.CustomerRepo, c.ProductRepo, c.LicenseRepo, c.WaitlistRepo)
	c.DeliveryQueue = email.NewDeliveryQueue(cfg.Delivery, c.EmailService)

	// ===== SERVICES =====
	c.InventoryService = licenseService.NewInventoryService(
		c.TxManager,
		c.LicenseRepo,
		c.WaitlistRepo,
		c.OrderRepo,
		c.CustomerRepo,
		c.ProductRepo,
		c.EmailService,
		cfg.Jobs.WaitlistMaxRetries,
	)
	c.TransactionService = paymentService.NewTransactionService(
		c.TxManager,
		c.TransactionRepo,
		c.OrderRepo,
		c.CustomerRepo,
		c.ProductRepo,
		c.InventoryService,
		c.EmailService,
		c.QueueClient,
		time.Duration(cfg.Jobs.AmountFallbackHours)*time.Hour,
	)
	c.WebhookService = paymentService.NewWebhookService(c.Registry, c.WebhookRepo, c.TransactionService)
	c.VerificationService = paymentService.NewVerificationService(
		c.TxManager,
		c.TransactionRepo,
		c.Registry,
		c.TransactionService,
		cfg.Jobs,
	)
	c.OrderService = orderService.NewOrderService(
		c.TxManager,
		c.OrderRepo,
		c.CustomerRepo,
		c.ProductRepo,
		c.TransactionRepo,
		c.Registry,
		c.InventoryService,
		c.TransactionService,
	)

	// ===== HANDLERS =====
	c.AuthHandler = authHandler.NewAuthHandler(cfg.Admin, c.JWTManager)
	c.ProductHandler = productHandler.NewProductHandler(c.ProductRepo)
	c.OrderHandler = orderHandler.NewOrderHandler(c.OrderService)
	c.LicenseHandler = licenseHandler.NewLicenseHandler(c.InventoryService, c.QueueClient)
	c.WebhookHandler = paymentHandler.NewWebhookHandler(c.WebhookService)
	c.VerificationHandler = paymentHandler.NewVerificationHandler(c.VerificationService)

	logger.Info("Container initialized", map[string]interface{}{
		"environment": cfg.App.Environment,
	})

	return c, nil
}

// Close releases infrastructure resources in reverse order.
func (c *Container) Close() {
	if c.DeliveryQueue != nil {
		c.DeliveryQueue.Shutdown()
	}
	if c.QueueClient != nil {
		if err := c.QueueClient.Close(); err != nil {
			logger.Error("Failed to close queue client", err)
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			logger.Error("Failed to close redis", err)
		}
	}
	if c.DB != nil {
		c.DB.Close()
	}
}
