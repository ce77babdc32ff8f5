package top3

import (
	apphttp "uph_backend/internal/http"
	"uph_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the top3 bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	service *Service
}

func NewModule(reportPool *pgxpool.Pool, log *logger.Logger) *Module {
	svc := NewService(NewRepository(reportPool), log)
	return &Module{handler: NewHandler(svc), service: svc}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "top3"
}

// Service returns the push service for scheduler-originated pushes.
func (m *Module) Service() *Service {
	return m.service
}

// RegisterRoutes mounts the top3 routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.V1.Group("/top3")
	group.POST("/push", m.handler.PushTop3)
	group.GET("/status", m.handler.GetPushStatus)
	group.GET("/preview", m.handler.PreviewTop3)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
