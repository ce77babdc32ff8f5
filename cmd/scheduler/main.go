package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"uph_backend/internal/scheduler"
	syncjob "uph_backend/internal/sync/job"
	syncrepo "uph_backend/internal/sync/repository"
	syncservice "uph_backend/internal/sync/service"
	"uph_backend/internal/top3"
	"uph_backend/platform/config"
	"uph_backend/platform/db"
	"uph_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reportPool := connectPool(ctx, log, "reporting database", cfg.GetReportingDatabaseURL())
	defer reportPool.Close()

	sources := make([]syncrepo.SourceReader, 0, len(cfg.GetSourceTags()))
	for _, tag := range cfg.GetSourceTags() {
		pool := connectPool(ctx, log, tag+" source database", cfg.GetSourceDatabaseURL(tag))
		defer pool.Close()
		sources = append(sources, syncrepo.NewMESSource(tag, pool, cfg.GetSourceQueryRate()))
	}

	// Worker-side reconciliation wiring (no HTTP handlers required).
	store := syncrepo.NewPGReportStore(reportPool)
	svc := syncservice.New(sources, store, cfg.GetSyncLookbackDays(), log)
	supervisor := syncjob.New(svc, cfg.GetSyncMaxDuration(), cfg.GetSyncCompletedRetention(), log)

	top3Svc := top3.NewService(top3.NewRepository(reportPool), log)

	periodic, err := scheduler.NewPeriodic(cfg, cfg.GetSourceTags(), cfg.GetSyncLookbackDays(), log)
	if err != nil {
		log.Error("failed to initialize periodic scheduler", "error", err)
		panic("failed to initialize periodic scheduler: " + err.Error())
	}
	go periodic.Run(ctx)

	worker, err := scheduler.NewWorker(cfg, supervisor, top3Svc, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
}

func connectPool(ctx context.Context, log *logger.Logger, name, dsn string) *pgxpool.Pool {
	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, name+" connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, dsn)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "name", name, "error", err)
		panic("failed to connect to " + name + ": " + err.Error())
	}
	return pool
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
