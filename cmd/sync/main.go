// Command sync runs one blocking reconciliation pass and exits. Useful for
// backfills and for operators who want a run outside the job supervisor.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"uph_backend/internal/scheduler"
	syncrepo "uph_backend/internal/sync/repository"
	syncservice "uph_backend/internal/sync/service"
	"uph_backend/platform/config"
	"uph_backend/platform/db"
	"uph_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	dateFrom := flag.String("from", "", "window start (YYYY-MM-DD or YYYY-MM-DD HH:MM:SS); empty resumes from the reporting high-water mark")
	dateTo := flag.String("to", "", "window end (YYYY-MM-DD or YYYY-MM-DD HH:MM:SS); empty uses the source high-water mark")
	days := flag.Int("days", 0, "lookback days when no start is known (1-31); 0 uses the configured default")
	sourcesFlag := flag.String("sources", "", "comma-separated source tags; empty runs all")
	enqueue := flag.String("enqueue", "", "hand the job to the worker fleet instead of running inline: 'sync' or 'top3'")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *enqueue != "" {
		enqueueTask(ctx, cfg, log, *enqueue, *sourcesFlag, *days)
		return
	}

	reportPool := connectPool(ctx, log, "reporting database", cfg.GetReportingDatabaseURL())
	defer reportPool.Close()

	sources := make([]syncrepo.SourceReader, 0, len(cfg.GetSourceTags()))
	for _, tag := range cfg.GetSourceTags() {
		pool := connectPool(ctx, log, tag+" source database", cfg.GetSourceDatabaseURL(tag))
		defer pool.Close()
		sources = append(sources, syncrepo.NewMESSource(tag, pool, cfg.GetSourceQueryRate()))
	}

	store := syncrepo.NewPGReportStore(reportPool)
	svc := syncservice.New(sources, store, cfg.GetSyncLookbackDays(), log)

	opts := syncservice.Options{
		DateFrom:     *dateFrom,
		DateTo:       *dateTo,
		LookbackDays: *days,
	}
	if *sourcesFlag != "" {
		opts.Sources = strings.Split(*sourcesFlag, ",")
	}

	result, err := svc.Reconcile(ctx, opts)
	if err != nil {
		log.Error("reconciliation failed", "error", err)
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	os.Stdout.Write(append(out, '\n'))
}

// enqueueTask queues the named task on redis for the scheduler worker,
// instead of reconciling in this process.
func enqueueTask(ctx context.Context, cfg *config.Config, log *logger.Logger, kind, sourcesFlag string, days int) {
	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to build scheduler client", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	switch kind {
	case "sync":
		payload := scheduler.SyncIncrementalPayload{Days: days}
		if sourcesFlag != "" {
			payload.Sources = strings.Split(sourcesFlag, ",")
		}
		err = client.EnqueueSyncIncremental(ctx, payload)
	case "top3":
		err = client.EnqueueTop3Push(ctx)
	default:
		log.Error("unknown enqueue kind", "kind", kind)
		os.Exit(2)
	}
	if err != nil {
		log.Error("failed to enqueue task", "kind", kind, "error", err)
		os.Exit(1)
	}
	log.Info("task enqueued", "kind", kind)
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
