package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"uph_backend/internal/analyses"
	apphttp "uph_backend/internal/http"
	"uph_backend/internal/http/router"
	"uph_backend/internal/items"
	syncmodule "uph_backend/internal/sync"
	syncrepo "uph_backend/internal/sync/repository"
	"uph_backend/internal/top3"
	"uph_backend/platform/config"
	"uph_backend/platform/db"
	"uph_backend/platform/logger"
	"uph_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, "migrations")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	reportPool := connectPool(ctx, log, "reporting database", cfg.GetReportingDatabaseURL())
	defer reportPool.Close()

	sources := make([]syncrepo.SourceReader, 0, len(cfg.GetSourceTags()))
	for _, tag := range cfg.GetSourceTags() {
		pool := connectPool(ctx, log, tag+" source database", cfg.GetSourceDatabaseURL(tag))
		defer pool.Close()
		sources = append(sources, syncrepo.NewMESSource(tag, pool, cfg.GetSourceQueryRate()))
	}
	log.Info("database connections established", "sources", len(sources))

	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	syncModule := syncmodule.NewModule(sources, reportPool, cfg, val, log)
	analysesModule := analyses.NewModule(reportPool, sources, val)
	itemsModule := items.NewModule(reportPool)
	top3Module := top3.NewModule(reportPool, log)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config: cfg,
		Logger: log,
		Health: db.NewPoolAdapter(reportPool),
		Modules: []apphttp.Module{
			syncModule,
			analysesModule,
			itemsModule,
			top3Module,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		if cancelRunning := syncModule.Supervisor().Cancel(); cancelRunning.OK {
			log.Info("running sync job canceled for shutdown")
		}
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
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
