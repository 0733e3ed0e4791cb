package email

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	customerRepo "licensify-backend/internal/domains/customer/repository"
	licenseRepo "licensify-backend/internal/domains/license/repository"
	licenseService "licensify-backend/internal/domains/license/service"
	orderRepo "licensify-backend/internal/domains/order/repository"
	paymentService "licensify-backend/internal/domains/payment/service"
	productRepo "licensify-backend/internal/domains/product/repository"
	"licensify-backend/pkg/logger"
)

// Service renders and sends every transactional email. It backs both
// the synchronous fulfillment path and the paced delivery queue.
type Service struct {
	client       *BrevoClient
	orderRepo    orderRepo.OrderRepoInterface
	customerRepo customerRepo.CustomerRepoInterface
	productRepo  productRepo.ProductRepoInterface
	licenseRepo  licenseRepo.LicenseRepoInterface
	waitlistRepo licenseRepo.WaitlistRepoInterface
}

func NewService(
	client *BrevoClient,
	orderRepository orderRepo.OrderRepoInterface,
	customerRepository customerRepo.CustomerRepoInterface,
	productRepository productRepo.ProductRepoInterface,
	licenseRepository licenseRepo.LicenseRepoInterface,
	waitlistRepository licenseRepo.WaitlistRepoInterface,
) *Service {
	return &Service{
		client:       client,
		orderRepo:    orderRepository,
		customerRepo: customerRepository,
		productRepo:  productRepository,
		licenseRepo:  licenseRepository,
		waitlistRepo: waitlistRepository,
	}
}

// =====================================================
// SYNCHRONOUS SENDS
// =====================================================

// SendLicenseDelivery sends the license email on the paid path.
func (s *Service) SendLicenseDelivery(ctx context.Context, data paymentService.LicenseEmailData) (string, error) {
	html, err := render(licenseDeliveryTmpl, data)
	if err != nil {
		return "", fmt.Errorf("failed to render license email: %w", err)
	}

	return s.client.Send(ctx, &Message{
		To:      data.Recipient,
		ToName:  data.CustomerName,
		Subject: "Tu licencia de " + data.ProductName,
		HTML:    html,
		Tags:    []string{"license_delivery", data.Tag},
	})
}

// SendWaitlistNotification delivers a staged waitlist entry's licenses.
func (s *Service) SendWaitlistNotification(ctx context.Context, data licenseService.WaitlistEmailData) (string, error) {
	licenses := make([]map[string]string, 0, len(data.Licenses))
	for _, lic := range data.Licenses {
		licenses = append(licenses, map[string]string{
			"Key":          lic.Key,
			"Instructions": lic.Instructions,
		})
	}
	html, err := render(licenseDeliveryTmpl, map[string]interface{}{
		"CustomerName": data.CustomerName,
		"ProductName":  data.ProductName,
		"OrderID":      data.OrderID,
		"Licenses":     licenses,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render waitlist delivery email: %w", err)
	}

	return s.client.Send(ctx, &Message{
		To:      data.Recipient,
		ToName:  data.CustomerName,
		Subject: "Tu licencia de " + data.ProductName + " está lista",
		HTML:    html,
		Tags:    []string{"waitlist_delivery", data.IdempotencyTag},
	})
}

// =====================================================
// QUEUE EXECUTOR
// =====================================================

// Execute resolves a queued task's entities and sends the email.
// Implements TaskExecutor for the delivery queue.
func (s *Service) Execute(ctx context.Context, task *Task) error {
	switch task.Type {
	case TaskOrderConfirmation:
		return s.sendOrderConfirmation(ctx, task)
	case TaskWaitlistNotification:
		return s.sendWaitlistNotice(ctx, task)
	case TaskLicenseEmail:
		return s.sendQueuedLicenseEmail(ctx, task)
	default:
		logger.Warn("Unknown email task type, dropping", map[string]interface{}{
			"task_id": task.ID.String(),
			"type":    task.Type,
		})
		return nil
	}
}

func (s *Service) sendOrderConfirmation(ctx context.Context, task *Task) error {
	order, err := s.orderRepo.GetByID(ctx, task.RefID)
	if err != nil {
		return err
	}
	customer, err := s.customerRepo.GetByID(ctx, order.CustomerID)
	if err != nil {
		return err
	}
	product, err := s.productRepo.GetByRef(ctx, order.ProductRef)
	if err != nil {
		return err
	}

	total := decimal.NewFromInt(order.GrandTotal).Div(decimal.NewFromInt(100))
	html, err := render(orderConfirmationTmpl, map[string]interface{}{
		"CustomerName": customer.FullName,
		"ProductName":  product.Name,
		"Total":        total.StringFixed(2),
		"Currency":     order.Currency,
		"OrderID":      order.ID,
	})
	if err != nil {
		return err
	}

	_, err = s.client.Send(ctx, &Message{
		To:      customer.Email,
		ToName:  customer.FullName,
		Subject: "Confirmación de tu pedido",
		HTML:    html,
		Tags:    []string{"order_confirmation"},
	})
	return err
}

// sendWaitlistNotice tells the customer their paid order is queued for
// inventory, distinct from the later license delivery.
func (s *Service) sendWaitlistNotice(ctx context.Context, task *Task) error {
	entry, err := s.waitlistRepo.GetByID(ctx, task.RefID)
	if err != nil {
		return err
	}
	customer, err := s.customerRepo.GetByID(ctx, entry.CustomerID)
	if err != nil {
		return err
	}
	product, err := s.productRepo.GetByRef(ctx, entry.ProductRef)
	if err != nil {
		return err
	}

	html, err := render(waitlistNoticeTmpl, map[string]interface{}{
		"CustomerName": customer.FullName,
		"ProductName":  product.Name,
		"OrderID":      entry.OrderID,
	})
	if err != nil {
		return err
	}

	_, err = s.client.Send(ctx, &Message{
		To:      customer.Email,
		ToName:  customer.FullName,
		Subject: "Tu pedido está en preparación",
		HTML:    html,
		Tags:    []string{"waitlist_notice"},
	})
	return err
}

func (s *Service) sendQueuedLicenseEmail(ctx context.Context, task *Task) error {
	order, err := s.orderRepo.GetByID(ctx, task.RefID)
	if err != nil {
		return err
	}
	customer, err := s.customerRepo.GetByID(ctx, order.CustomerID)
	if err != nil {
		return err
	}
	product, err := s.productRepo.GetByRef(ctx, order.ProductRef)
	if err != nil {
		return err
	}
	lic, err := s.licenseRepo.GetByOrderID(ctx, order.ID)
	if err != nil {
		return err
	}

	_, err = s.SendLicenseDelivery(ctx, paymentService.LicenseEmailData{
		OrderID:      order.ID,
		Recipient:    customer.Email,
		CustomerName: customer.FullName,
		ProductName:  product.Name,
		Licenses:     []paymentService.LicenseInfo{{Key: lic.LicenseKey, Instructions: lic.Instructions}},
	})
	return err
}
