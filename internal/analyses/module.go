package analyses

import (
	apphttp "uph_backend/internal/http"
	syncrepo "uph_backend/internal/sync/repository"
	"uph_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the analyses bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	repo    *Repository
}

// NewModule wires the analyses read side. The source readers are shared
// with the sync module so the bucket drill-down sees the same upstream data
// the reconciliation sees.
func NewModule(reportPool *pgxpool.Pool, sources []syncrepo.SourceReader, val *validator.Validator) *Module {
	repo := NewRepository(reportPool)
	return &Module{
		handler: NewHandler(repo, sources, val),
		repo:    repo,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "analyses"
}

// RegisterRoutes mounts the analyses routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.V1.Group("/analyses")
	group.GET("", m.handler.ListAnalyses)
	group.GET("/:serial", m.handler.GetAnalysisDetail)
	group.GET("/:serial/bucket", m.handler.GetBucketDetail)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
