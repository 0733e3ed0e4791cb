package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"licensify-backend/internal/config"
	"licensify-backend/internal/shared"
	"licensify-backend/pkg/logger"
)

// Client enqueues background tasks. It implements the scheduler
// dependency of the payment services, so email and staging work
// submitted after a commit survives a process restart.
type Client struct {
	client *asynq.Client
}

func NewClient(cfg config.RedisConfig) *Client {
	return &Client{
		client: asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.Host,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) enqueue(taskType string, payload interface{}, opts ...asynq.Option) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal task payload: %w", err)
	}

	info, err := c.client.Enqueue(asynq.NewTask(taskType, data), opts...)
	if err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", taskType, err)
	}

	logger.Debug("Task enqueued", map[string]interface{}{
		"type":  taskType,
		"id":    info.ID,
		"queue": info.Queue,
	})
	return nil
}

func (c *Client) EnqueueOrderConfirmation(orderID uuid.UUID) error {
	return c.enqueue(
		shared.TypeSendOrderConfirmation,
		shared.OrderConfirmationPayload{OrderID: orderID},
		asynq.Queue(shared.QueueEmail),
		asynq.MaxRetry(5),
	)
}

func (c *Client) EnqueueWaitlistNotification(entryID uuid.UUID) error {
	return c.enqueue(
		shared.TypeSendWaitlistNotification,
		shared.WaitlistNotificationPayload{EntryID: entryID},
		asynq.Queue(shared.QueueEmail),
		asynq.MaxRetry(5),
	)
}

// EnqueueWaitlistStaging triggers staging for a product after an
// inventory import.
func (c *Client) EnqueueWaitlistStaging(productRef string) error {
	return c.enqueue(
		shared.TypeStageWaitlist,
		shared.StageWaitlistPayload{ProductRef: productRef},
		asynq.Queue(shared.QueueFulfillment),
		asynq.MaxRetry(3),
		asynq.Timeout(time.Minute),
	)
}
