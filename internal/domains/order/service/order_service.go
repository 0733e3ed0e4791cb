package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	customerModel "licensify-backend/internal/domains/customer/model"
	customerRepo "licensify-backend/internal/domains/customer/repository"
	licenseModel "licensify-backend/internal/domains/license/model"
	licenseService "licensify-backend/internal/domains/license/service"
	"licensify-backend/internal/domains/order/model"
	"licensify-backend/internal/domains/order/repository"
	"licensify-backend/internal/domains/payment/gateway"
	"licensify-backend/internal/domains/payment/gateway/palomma"
	paymentModel "licensify-backend/internal/domains/payment/model"
	paymentRepo "licensify-backend/internal/domains/payment/repository"
	paymentService "licensify-backend/internal/domains/payment/service"
	productRepo "licensify-backend/internal/domains/product/repository"
	"licensify-backend/pkg/database"
	"licensify-backend/pkg/logger"
)

// OrderService handles order intake and the admin lifecycle
// operations that sit on top of fulfillment.
type OrderService struct {
	txManager          database.TxManager
	orderRepo          repository.OrderRepoInterface
	customerRepo       customerRepo.CustomerRepoInterface
	productRepo        productRepo.ProductRepoInterface
	transactionRepo    paymentRepo.TransactionRepoInterface
	registry           *gateway.Registry
	inventoryService   *licenseService.InventoryService
	transactionService *paymentService.TransactionService
}

func NewOrderService(
	txManager database.TxManager,
	orderRepository repository.OrderRepoInterface,
	customerRepository customerRepo.CustomerRepoInterface,
	productRepository productRepo.ProductRepoInterface,
	transactionRepository paymentRepo.TransactionRepoInterface,
	registry *gateway.Registry,
	inventoryService *licenseService.InventoryService,
	transactionService *paymentService.TransactionService,
) *OrderService {
	return &OrderService{
		txManager:          txManager,
		orderRepo:          orderRepository,
		customerRepo:       customerRepository,
		productRepo:        productRepository,
		transactionRepo:    transactionRepository,
		registry:           registry,
		inventoryService:   inventoryService,
		transactionService: transactionService,
	}
}

// =====================================================
// ORDER INTAKE
// =====================================================

// CreateOrder creates Order, Transaction and Customer atomically, then
// initiates the provider checkout outside the DB transaction. A
// checkout failure leaves the order PENDING for a later retry instead
// of rolling back the intake.
func (s *OrderService) CreateOrder(ctx context.Context, req *model.CreateOrderRequest) (*model.CreateOrderResponse, error) {
	product, err := s.productRepo.GetByRef(ctx, req.ProductRef)
	if err != nil {
		return nil, err
	}
	if !product.Active {
		return nil, model.ErrProductInactive
	}
	if _, err := s.registry.Client(req.Gateway); err != nil {
		return nil, err
	}

	qty := req.Qty
	if qty < 1 {
		qty = 1
	}

	now := time.Now()
	subtotal := product.PriceCents * int64(qty)

	var customer *customerModel.Customer
	order := &model.Order{
		ID:         uuid.New(),
		ProductRef: product.Ref,
		Qty:        qty,
		Subtotal:   subtotal,
		GrandTotal: subtotal,
		Currency:   product.Currency,
		Status:     model.OrderStatusPending,
		Meta:       map[string]interface{}{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	transaction := &paymentModel.Transaction{
		ID:        uuid.New(),
		OrderID:   order.ID,
		Gateway:   req.Gateway,
		Amount:    subtotal,
		Currency:  product.Currency,
		Status:    paymentModel.TxStatusCreated,
		Meta:      map[string]interface{}{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.txManager.WithinTx(ctx, func(txCtx context.Context) error {
		customer, err = s.customerRepo.Upsert(txCtx, &customerModel.Customer{
			ID:             uuid.New(),
			Email:          req.Customer.Email,
			FullName:       req.Customer.FullName,
			Phone:          req.Customer.Phone,
			DocumentType:   req.Customer.DocumentType,
			DocumentNumber: req.Customer.DocumentNumber,
			CreatedAt:      now,
		})
		if err != nil {
			return err
		}
		order.CustomerID = customer.ID

		if err := s.orderRepo.Create(txCtx, order); err != nil {
			return err
		}
		return s.transactionRepo.Create(txCtx, transaction)
	})
	if err != nil {
		return nil, err
	}

	checkoutData, err := s.initiatePayment(ctx, order, transaction, customer)
	if err != nil {
		logger.Error("Checkout initiation failed, order stays pending", err)
		return &model.CreateOrderResponse{Order: order, Transaction: transaction}, nil
	}

	return &model.CreateOrderResponse{
		Order:        order,
		Transaction:  transaction,
		CheckoutData: checkoutData,
	}, nil
}

// initiatePayment creates the provider checkout and records its
// identifiers on the transaction. The transaction moves to PENDING on
// provider acknowledgement.
func (s *OrderService) initiatePayment(ctx context.Context, order *model.Order, tx *paymentModel.Transaction, customer *customerModel.Customer) (map[string]interface{}, error) {
	client, err := s.registry.Client(tx.Gateway)
	if err != nil {
		return nil, err
	}

	externalID := s.externalID(tx.Gateway, order)
	checkout, err := client.CreateCheckout(ctx, &gateway.CheckoutRequest{
		ExternalID:    externalID,
		Amount:        tx.Amount,
		Currency:      tx.Currency,
		Description:   order.ProductRef,
		CustomerEmail: customer.Email,
		CustomerName:  customer.FullName,
	})
	if err != nil {
		return nil, err
	}

	err = s.txManager.WithinTx(ctx, func(txCtx context.Context) error {
		if err := s.transactionRepo.SetGatewayRef(txCtx, tx.ID, externalID); err != nil {
			return err
		}
		if err := s.transactionRepo.MergeMeta(txCtx, tx.ID, map[string]interface{}{
			"checkoutId": checkout.ID,
		}); err != nil {
			return err
		}
		return s.transactionRepo.UpdateStatus(txCtx, tx.ID, paymentModel.TxStatusPending)
	})
	if err != nil {
		return nil, err
	}

	tx.GatewayRef = &externalID
	tx.Status = paymentModel.TxStatusPending
	tx.Meta["checkoutId"] = checkout.ID

	return map[string]interface{}{
		"checkoutId":  checkout.ID,
		"redirectUrl": checkout.RedirectURL,
		"expiresAt":   checkout.ExpiresAt,
	}, nil
}

func (s *OrderService) externalID(gatewayName string, order *model.Order) string {
	if gatewayName == paymentModel.ProviderPalomma {
		return palomma.BuildExternalID(order.ProductRef, order.ID, time.Now())
	}
	return order.ProductRef + "-" + gatewayName + "-" + order.ID.String()
}

// RetryPayment re-initiates the provider checkout for a PENDING order
// whose intake-time checkout creation failed. A fresh external id is
// generated so the provider never sees a stale session reused.
func (s *OrderService) RetryPayment(ctx context.Context, orderID uuid.UUID) (map[string]interface{}, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	paid, err := s.transactionRepo.HasPaidForOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if paid || order.Status != model.OrderStatusPending {
		return nil, model.NewOrderError(
			model.ErrCodeOrderAlreadyPaid,
			"Order is not awaiting payment, current status: "+order.Status,
			model.ErrOrderAlreadyPaid,
		)
	}

	tx, err := s.transactionRepo.GetLatestByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	customer, err := s.customerRepo.GetByID(ctx, order.CustomerID)
	if err != nil {
		return nil, err
	}

	return s.initiatePayment(ctx, order, tx, customer)
}

// GetOrder returns an order with its latest transaction.
func (s *OrderService) GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, *paymentModel.Transaction, error) {
	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	tx, err := s.transactionRepo.GetLatestByOrderID(ctx, id)
	if err != nil && !errors.Is(err, paymentModel.ErrTransactionNotFound) {
		return nil, nil, err
	}
	return order, tx, nil
}

// =====================================================
// ADMIN LIFECYCLE
// =====================================================

// ReviveOrder completes a CANCELED order by hand, selling a fresh
// license to it. Used when a payment actually went through but every
// automated path failed.
func (s *OrderService) ReviveOrder(ctx context.Context, orderID uuid.UUID, reason, adminEmail string) (*model.ReviveOrderResponse, error) {
	var licenseKey string
	now := time.Now()

	err := s.txManager.WithinTx(ctx, func(txCtx context.Context) error {
		order, err := s.orderRepo.GetByID(txCtx, orderID)
		if err != nil {
			return err
		}
		if order.Status != model.OrderStatusCanceled {
			return model.NewOrderNotCanceledError(order.Status)
		}

		product, err := s.productRepo.GetByRef(txCtx, order.ProductRef)
		if err != nil {
			return err
		}

		if err := s.orderRepo.UpdateStatus(txCtx, orderID, model.OrderStatusInProcess); err != nil {
			return err
		}
		if err := s.orderRepo.AppendMeta(txCtx, orderID, "revived", map[string]interface{}{
			"reason":    reason,
			"revivedAt": now.UTC().Format(time.RFC3339),
			"revivedBy": adminEmail,
		}); err != nil {
			return err
		}

		if !product.LicenseType {
			return s.orderRepo.UpdateStatus(txCtx, orderID, model.OrderStatusCompleted)
		}

		reservation, err := s.inventoryService.ReserveLicense(txCtx, order.ID, order.CustomerID, order.ProductRef, order.Qty)
		if err != nil {
			return err
		}
		if reservation.Waitlisted {
			// No stock: the entry keeps FIFO priority and the order
			// stays IN_PROCESS until delivery.
			return nil
		}

		licenseKey = reservation.Licenses[0].LicenseKey
		order.Status = model.OrderStatusInProcess
		return s.transactionService.DeliverLicenses(txCtx, order, product.Name, reservation.Licenses)
	})
	if err != nil {
		return nil, err
	}

	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	logger.Info("Order revived", map[string]interface{}{
		"order_id": orderID.String(),
		"status":   order.Status,
		"admin":    adminEmail,
	})

	return &model.ReviveOrderResponse{
		OrderID:    orderID,
		Status:     order.Status,
		LicenseKey: licenseKey,
		RevivedAt:  now,
	}, nil
}

// ChangeLicense swaps the license on a completed order and re-sends
// the delivery email with the new key.
func (s *OrderService) ChangeLicense(ctx context.Context, orderID uuid.UUID) (*model.ChangeLicenseResponse, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != model.OrderStatusCompleted {
		return nil, model.ErrOrderNotCompleted
	}
	product, err := s.productRepo.GetByRef(ctx, order.ProductRef)
	if err != nil {
		return nil, err
	}

	oldLic, newLic, err := s.inventoryService.ChangeLicense(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if err := s.orderRepo.AppendMeta(ctx, orderID, "licenseChange", map[string]interface{}{
		"changedAt":    time.Now().UTC().Format(time.RFC3339),
		"oldLicenseId": oldLic.ID.String(),
		"newLicenseId": newLic.ID.String(),
	}); err != nil {
		return nil, err
	}

	if err := s.transactionService.DeliverLicenses(ctx, order, product.Name, []*licenseModel.License{newLic}); err != nil {
		logger.Error("Replacement license email failed", err)
	}

	return &model.ChangeLicenseResponse{
		OrderID:       orderID,
		OldLicenseID:  oldLic.ID,
		NewLicenseID:  newLic.ID,
		NewLicenseKey: newLic.LicenseKey,
	}, nil
}

// ResendLicenseEmail retries a failed license delivery for a paid
// order.
func (s *OrderService) ResendLicenseEmail(ctx context.Context, orderID uuid.UUID) error {
	return s.transactionService.ResendLicenseEmail(ctx, orderID)
}
