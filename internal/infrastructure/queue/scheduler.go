package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"licensify-backend/internal/config"
	"licensify-backend/internal/shared"
	"licensify-backend/pkg/logger"
)

// NewScheduler registers the periodic jobs: the waitlist delivery
// tick, a staging safety net and the stuck-transaction sweep.
func NewScheduler(redisCfg config.RedisConfig, jobs config.JobConfig) (*asynq.Scheduler, error) {
	scheduler := asynq.NewScheduler(
		asynq.RedisClientOpt{
			Addr:     redisCfg.Host,
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
		},
		&asynq.SchedulerOpts{Location: time.UTC},
	)

	entries := []struct {
		spec    string
		task    *asynq.Task
		opts    []asynq.Option
		comment string
	}{
		{
			spec:    fmt.Sprintf("@every %s", jobs.WaitlistTick),
			task:    asynq.NewTask(shared.TypeProcessNextWaitlistEntry, nil),
			opts:    []asynq.Option{asynq.Queue(shared.QueueFulfillment), asynq.MaxRetry(0)},
			comment: "waitlist delivery tick, one entry per run",
		},
		{
			spec:    "@every 1h",
			task:    mustTask(shared.TypeStageWaitlist, shared.StageWaitlistPayload{}),
			opts:    []asynq.Option{asynq.Queue(shared.QueueFulfillment), asynq.MaxRetry(0)},
			comment: "staging safety net, all products",
		},
		{
			spec:    "@every 10m",
			task:    mustTask(shared.TypeVerifyStuckTransactions, shared.VerifyStuckPayload{Limit: 20}),
			opts:    []asynq.Option{asynq.Queue(shared.QueueDefault), asynq.MaxRetry(0)},
			comment: "reconciliation sweep for stuck transactions",
		},
	}

	for _, e := range entries {
		entryID, err := scheduler.Register(e.spec, e.task, e.opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", e.task.Type(), err)
		}
		logger.Info("Scheduled job registered", map[string]interface{}{
			"entry_id": entryID,
			"task":     e.task.Type(),
			"spec":     e.spec,
		})
	}

	return scheduler, nil
}

func mustTask(taskType string, payload interface{}) *asynq.Task {
	data, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return asynq.NewTask(taskType, data)
}
