package email

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensify-backend/internal/config"
)

// recordingExecutor counts executions and fails the configured number
// of times before succeeding.
type recordingExecutor struct {
	mu        sync.Mutex
	executed  []*Task
	failFirst int
}

func (e *recordingExecutor) Execute(ctx context.Context, task *Task) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.executed = append(e.executed, task)
	if e.failFirst > 0 {
		e.failFirst--
		return errors.New("smtp unavailable")
	}
	return nil
}

func (e *recordingExecutor) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.executed)
}

func testQueue(executor TaskExecutor, maxSize int) *DeliveryQueue {
	return NewDeliveryQueue(config.DeliveryConfig{
		Interval:     time.Millisecond,
		MaxRetries:   3,
		MaxQueueSize: maxSize,
	}, executor)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestSubmitAndDrain(t *testing.T) {
	executor := &recordingExecutor{}
	q := testQueue(executor, 10)

	require.NoError(t, q.Submit(TaskOrderConfirmation, uuid.New()))
	require.NoError(t, q.Submit(TaskWaitlistNotification, uuid.New()))

	waitFor(t, func() bool { return executor.count() == 2 })
	waitFor(t, func() bool { return q.Len() == 0 })

	// FIFO order.
	assert.Equal(t, TaskOrderConfirmation, executor.executed[0].Type)
	assert.Equal(t, TaskWaitlistNotification, executor.executed[1].Type)
}

func TestQueueFull(t *testing.T) {
	// A long interval keeps the worker asleep so the queue stays full
	// for the duration of the test.
	executor := &recordingExecutor{}
	q := NewDeliveryQueue(config.DeliveryConfig{
		Interval:     time.Minute,
		MaxRetries:   3,
		MaxQueueSize: 2,
	}, executor)

	require.NoError(t, q.Submit(TaskOrderConfirmation, uuid.New()))
	require.NoError(t, q.Submit(TaskOrderConfirmation, uuid.New()))

	assert.ErrorIs(t, q.Submit(TaskOrderConfirmation, uuid.New()), ErrQueueFull)
}

func TestRetryGoesToTail(t *testing.T) {
	executor := &recordingExecutor{failFirst: 2}
	q := testQueue(executor, 10)

	require.NoError(t, q.Submit(TaskLicenseEmail, uuid.New()))

	// Two failures then a success: three executions of the same task.
	waitFor(t, func() bool { return executor.count() == 3 })

	executor.mu.Lock()
	defer executor.mu.Unlock()
	assert.Equal(t, executor.executed[0].ID, executor.executed[1].ID)
	assert.Equal(t, executor.executed[0].ID, executor.executed[2].ID)
	assert.Equal(t, 2, executor.executed[2].RetryCount)
}

func TestDropsAfterMaxRetries(t *testing.T) {
	executor := &recordingExecutor{failFirst: 100}
	q := testQueue(executor, 10)

	require.NoError(t, q.Submit(TaskLicenseEmail, uuid.New()))

	// Initial attempt plus MaxRetries retries, then the task is dropped.
	waitFor(t, func() bool { return executor.count() == 4 })
	waitFor(t, func() bool { return q.Len() == 0 })

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 4, executor.count())
}

func TestShutdownRejectsSubmissions(t *testing.T) {
	executor := &recordingExecutor{}
	q := testQueue(executor, 10)

	q.Shutdown()

	err := q.Submit(TaskOrderConfirmation, uuid.New())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrQueueFull)
}
