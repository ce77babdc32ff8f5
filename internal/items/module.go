package items

import (
	apphttp "uph_backend/internal/http"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the items bounded context module implementing http.Module.
type Module struct {
	handler *Handler
}

func NewModule(reportPool *pgxpool.Pool) *Module {
	return &Module{handler: NewHandler(NewRepository(reportPool))}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "items"
}

// RegisterRoutes mounts the items routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.V1.Group("/items")
	group.GET("/:id", m.handler.GetItem)
	group.PATCH("/:id", m.handler.PatchItem)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
