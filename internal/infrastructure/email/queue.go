package email

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"licensify-backend/internal/config"
	"licensify-backend/pkg/logger"
)

// Task types handled by the delivery queue.
const (
	TaskLicenseEmail         = "LICENSE_EMAIL"
	TaskWaitlistNotification = "WAITLIST_NOTIFICATION"
	TaskOrderConfirmation    = "ORDER_CONFIRMATION"
)

// ErrQueueFull rejects submissions while the queue is at capacity.
// Callers treat it as transient backpressure.
var ErrQueueFull = errors.New("email delivery queue is full")

// Task references the entity an email should be rendered from; the
// executor resolves it at send time so the queue never holds stale
// entity snapshots.
type Task struct {
	ID         uuid.UUID
	Type       string
	RefID      uuid.UUID
	RetryCount int
	CreatedAt  time.Time
}

// TaskExecutor resolves a task's entities, renders the template and
// sends the email.
type TaskExecutor interface {
	Execute(ctx context.Context, task *Task) error
}

// DeliveryQueue is a bounded in-process FIFO that paces outbound email
// to one send per interval. A single worker goroutine starts on first
// submission and stops when the queue drains; transient failures go
// back to the tail until retries run out.
type DeliveryQueue struct {
	executor TaskExecutor
	interval time.Duration
	maxRetry int
	maxSize  int

	mu      sync.Mutex
	tasks   []*Task
	running bool
	closed  bool
	wg      sync.WaitGroup
}

func NewDeliveryQueue(cfg config.DeliveryConfig, executor TaskExecutor) *DeliveryQueue {
	return &DeliveryQueue{
		executor: executor,
		interval: cfg.Interval,
		maxRetry: cfg.MaxRetries,
		maxSize:  cfg.MaxQueueSize,
	}
}

// Submit appends a task and wakes the worker if it is idle.
func (q *DeliveryQueue) Submit(taskType string, refID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return errors.New("email delivery queue is shut down")
	}
	if len(q.tasks) >= q.maxSize {
		return ErrQueueFull
	}

	q.tasks = append(q.tasks, &Task{
		ID:        uuid.New(),
		Type:      taskType,
		RefID:     refID,
		CreatedAt: time.Now(),
	})

	if !q.running {
		q.running = true
		q.wg.Add(1)
		go q.loop()
	}
	return nil
}

// Len reports the number of queued tasks.
func (q *DeliveryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Shutdown stops accepting tasks and waits for the worker to finish
// its current send. Queued tasks are dropped; durable retry sits a
// layer above.
func (q *DeliveryQueue) Shutdown() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wg.Wait()
}

func (q *DeliveryQueue) loop() {
	defer q.wg.Done()

	for {
		time.Sleep(q.interval)

		q.mu.Lock()
		if q.closed || len(q.tasks) == 0 {
			q.running = false
			q.mu.Unlock()
			return
		}
		task := q.tasks[0]
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		q.process(task)
	}
}

func (q *DeliveryQueue) process(task *Task) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := q.executor.Execute(ctx, task)
	if err == nil {
		logger.Debug("Email task delivered", map[string]interface{}{
			"task_id": task.ID.String(),
			"type":    task.Type,
		})
		return
	}

	task.RetryCount++
	if task.RetryCount > q.maxRetry {
		logger.Error("Email task failed permanently after retries", err)
		return
	}

	q.mu.Lock()
	if !q.closed && len(q.tasks) < q.maxSize {
		q.tasks = append(q.tasks, task)
	} else {
		logger.Error("Email task dropped, queue unavailable for retry", err)
	}
	q.mu.Unlock()
}
