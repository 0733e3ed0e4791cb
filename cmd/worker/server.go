package main

import (
	"context"
	"log"

	"github.com/hibiken/asynq"

	"licensify-backend/internal/config"
	"licensify-backend/internal/shared"
	"licensify-backend/pkg/logger"
)

// asynqServer wraps asynq.Server so shutdown lives next to startup.
type asynqServer struct {
	*asynq.Server
}

// setupAsynqServer creates the task server and starts it. Fulfillment
// work outranks email rendering, which outranks the reconciliation
// sweep.
func setupAsynqServer(cfg *config.Config, handlers *HandlerRegistry) *asynqServer {
	mux := asynq.NewServeMux()
	handlers.RegisterHandlers(mux)

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Host,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Queues: map[string]int{
				shared.QueueFulfillment: 6,
				shared.QueueEmail:       3,
				shared.QueueDefault:     1,
			},
			Concurrency: 10,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task failed: "+task.Type(), err)
			}),
		},
	)

	go func() {
		if err := srv.Run(mux); err != nil {
			log.Fatalf("Worker failed: %v", err)
		}
	}()

	return &asynqServer{Server: srv}
}

func (s *asynqServer) Shutdown() {
	s.Server.Shutdown()
}
