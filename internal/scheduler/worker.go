package scheduler

import (
	"context"
	"fmt"

	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jonboulle/clockwork"
)

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	repo   followUpStore
	clock  clockwork.Clock
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, repo *FollowUpRepository, clock clockwork.Clock, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server: server,
		mux:    mux,
		repo:   repo,
		clock:  clock,
		log:    log,
	}

	mux.HandleFunc(TaskLeadFollowUpDue, w.handleLeadFollowUpDue)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleLeadFollowUpDue(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseLeadFollowUpPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	followUpID, err := uuid.Parse(payload.FollowUpID)
	if err != nil {
		return fmt.Errorf("%w: follow-up id: %v", asynq.SkipRetry, err)
	}

	tenantID, err := uuid.Parse(payload.TenantID)
	if err != nil {
		return fmt.Errorf("%w: tenant id: %v", asynq.SkipRetry, err)
	}

	marked, err := w.repo.MarkDue(ctx, tenantID, followUpID, w.clock.Now())
	if err != nil {
		return err
	}
	if !marked {
		w.log.Debug("follow-up already processed", "follow_up_id", payload.FollowUpID)
		return nil
	}

	w.log.Info("lead follow-up due",
		"follow_up_id", payload.FollowUpID,
		"lead_id", payload.LeadID,
		"appointment_id", payload.AppointmentID,
		"reason", payload.Reason,
	)
	return nil
}
