// Package sync is the reconciliation bounded context: it compares planned
// and actual production quantities from the upstream MES databases and
// maintains the per-bucket diff records in the reporting store.
package sync

import (
	apphttp "uph_backend/internal/http"
	"uph_backend/internal/sync/handler"
	"uph_backend/internal/sync/job"
	"uph_backend/internal/sync/repository"
	syncservice "uph_backend/internal/sync/service"
	"uph_backend/platform/config"
	"uph_backend/platform/logger"
	"uph_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the sync bounded context module implementing http.Module.
type Module struct {
	handler    *handler.Handler
	service    *syncservice.Service
	supervisor *job.Supervisor
}

// NewModule wires the reconciliation core: the shared source readers, the
// reporting store, the engine and its single-slot supervisor. The readers
// are built by the composition root so other modules (bucket drill-down)
// see the same upstream data.
func NewModule(sources []repository.SourceReader, reportPool *pgxpool.Pool, cfg config.SyncConfig, val *validator.Validator, log *logger.Logger) *Module {
	store := repository.NewPGReportStore(reportPool)
	svc := syncservice.New(sources, store, cfg.GetSyncLookbackDays(), log)
	supervisor := job.New(svc, cfg.GetSyncMaxDuration(), cfg.GetSyncCompletedRetention(), log)
	h := handler.New(svc, supervisor, val)

	return &Module{
		handler:    h,
		service:    svc,
		supervisor: supervisor,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "sync"
}

// Service returns the reconciliation engine for non-HTTP callers.
func (m *Module) Service() *syncservice.Service {
	return m.service
}

// Supervisor returns the job supervisor for scheduler-originated starts.
func (m *Module) Supervisor() *job.Supervisor {
	return m.supervisor
}

// RegisterRoutes mounts the sync routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.V1.Group("/sync")
	group.POST("", m.handler.RunSync)
	group.GET("/status", m.handler.GetStatus)
	group.POST("/cancel", m.handler.CancelSync)
	group.GET("/max-dates", m.handler.GetMaxDates)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
