package scheduler

import (
	"context"
	"fmt"
	"time"

	"uph_backend/platform/config"
	"uph_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// Cadence of the periodic jobs; cron in the scheduler's local time.
const (
	syncCronSpec = "0 */2 * * *"
	top3CronSpec = "0 9 * * *"
)

// Periodic registers the recurring tasks with asynq's cron scheduler: the
// incremental reconciliation every two hours and the TOP3 push daily at
// 09:00.
type Periodic struct {
	scheduler *asynq.Scheduler
	log       *logger.Logger
}

func NewPeriodic(cfg config.SchedulerConfig, sourceTags []string, lookbackDays int, log *logger.Logger) (*Periodic, error) {
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

	sched := asynq.NewScheduler(opt, &asynq.SchedulerOpts{
		Location: time.Local,
	})

	syncTask, err := NewSyncIncrementalTask(SyncIncrementalPayload{
		Sources: sourceTags,
		Days:    lookbackDays,
	})
	if err != nil {
		return nil, err
	}

	if _, err := sched.Register(syncCronSpec, syncTask, asynq.Queue(queue)); err != nil {
		return nil, err
	}
	if _, err := sched.Register(top3CronSpec, NewTop3PushTask(), asynq.Queue(queue)); err != nil {
		return nil, err
	}

	return &Periodic{scheduler: sched, log: log}, nil
}

func (p *Periodic) Run(ctx context.Context) {
	if p == nil || p.scheduler == nil {
		return
	}

	go func() {
		<-ctx.Done()
		p.scheduler.Shutdown()
	}()

	p.log.Info("periodic scheduler started",
		"sync_cron", syncCronSpec, "top3_cron", top3CronSpec)

	if err := p.scheduler.Run(); err != nil {
		p.log.Error("periodic scheduler stopped", "error", err)
	}
}
