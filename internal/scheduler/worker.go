package scheduler

import (
	"context"
	"fmt"

	"uph_backend/internal/sync/job"
	syncservice "uph_backend/internal/sync/service"
	"uph_backend/internal/top3"
	"uph_backend/platform/apperr"
	"uph_backend/platform/config"
	"uph_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// Worker consumes the periodic tasks. The reconciliation runs through the
// same single-slot supervisor the HTTP surface uses, so a scheduled run and
// a manual run can never execute concurrently.
type Worker struct {
	server     *asynq.Server
	mux        *asynq.ServeMux
	supervisor *job.Supervisor
	top3       *top3.Service
	log        *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, supervisor *job.Supervisor, top3Svc *top3.Service, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:     server,
		mux:        mux,
		supervisor: supervisor,
		top3:       top3Svc,
		log:        log,
	}

	mux.HandleFunc(TaskSyncIncremental, w.handleSyncIncremental)
	mux.HandleFunc(TaskTop3Push, w.handleTop3Push)

	return w, nil
}

func (w *Worker) handleSyncIncremental(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseSyncIncrementalPayload(task)
	if err != nil {
		return err
	}

	// Auto admission supersedes a still-running scheduled job rather than
	// piling up behind it.
	admission := w.supervisor.Start(job.Params{
		Options: syncservice.Options{
			Sources:      payload.Sources,
			LookbackDays: payload.Days,
		},
		Auto: true,
	})
	if !admission.Accepted {
		w.log.Warn("scheduled sync rejected", "reason", admission.Reason)
		return nil
	}

	w.log.Info("scheduled sync started", "job_id", admission.Job.ID)
	return nil
}

func (w *Worker) handleTop3Push(ctx context.Context, task *asynq.Task) error {
	result, err := w.top3.Push(ctx)
	if err != nil {
		// A manual push may have already run today. That is not a task
		// failure, so don't let asynq retry it.
		if apperr.KindOf(err) == apperr.KindConflict {
			w.log.Info("scheduled top3 push skipped", "reason", err.Error())
			return nil
		}
		return err
	}
	w.log.Info("scheduled top3 push finished",
		"count", result.Count, "message", result.Message)
	return nil
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
