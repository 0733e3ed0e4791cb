package main

import (
	"log"

	"github.com/hibiken/asynq"

	"licensify-backend/internal/config"
	"licensify-backend/internal/infrastructure/queue"
)

// asynqScheduler wraps asynq.Scheduler for symmetric shutdown.
type asynqScheduler struct {
	*asynq.Scheduler
}

func setupScheduler(cfg *config.Config) *asynqScheduler {
	scheduler, err := queue.NewScheduler(cfg.Redis, cfg.Jobs)
	if err != nil {
		log.Fatalf("Failed to build scheduler: %v", err)
	}

	go func() {
		if err := scheduler.Run(); err != nil {
			log.Fatalf("Scheduler failed: %v", err)
		}
	}()

	return &asynqScheduler{Scheduler: scheduler}
}

func (s *asynqScheduler) Shutdown() {
	s.Scheduler.Shutdown()
}
