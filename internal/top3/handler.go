package top3

import (
	"uph_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// Handler serves the push endpoints.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// PushTop3 triggers the daily push manually.
func (h *Handler) PushTop3(c *gin.Context) {
	result, err := h.svc.Push(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// GetPushStatus reports whether today's push already happened.
func (h *Handler) GetPushStatus(c *gin.Context) {
	status, err := h.svc.PushStatus(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, status)
}

// PreviewTop3 returns what a push right now would send, without writing.
func (h *Handler) PreviewTop3(c *gin.Context) {
	candidates, err := h.svc.Preview(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	if candidates == nil {
		candidates = []Candidate{}
	}
	httpkit.OK(c, candidates)
}
