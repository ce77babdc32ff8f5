// Package handler exposes the sync core over HTTP. It is a thin layer: all
// admission, window and upsert logic lives in the job supervisor and the
// reconciliation service.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"uph_backend/internal/sync/job"
	syncservice "uph_backend/internal/sync/service"
	"uph_backend/internal/sync/transport"
	"uph_backend/platform/apperr"
	"uph_backend/platform/httpkit"
	"uph_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

// Handler handles sync requests.
type Handler struct {
	svc        *syncservice.Service
	supervisor *job.Supervisor
	val        *validator.Validator
}

func New(svc *syncservice.Service, supervisor *job.Supervisor, val *validator.Validator) *Handler {
	return &Handler{svc: svc, supervisor: supervisor, val: val}
}

// RunSync starts a reconciliation. By default it admits a background job and
// returns immediately; with async=false it blocks and returns the engine's
// result directly.
func (h *Handler) RunSync(c *gin.Context) {
	var req transport.SyncRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid sync parameters", err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid sync parameters", err.Error())
		return
	}

	opts := syncservice.Options{
		DateFrom:     req.DateFrom,
		DateTo:       req.DateTo,
		LookbackDays: req.Days,
		Sources:      req.SourceTags(),
	}

	if !req.IsAsync() {
		// An inline run bypasses the supervisor slot, so refuse it while a
		// background job holds the slot instead of hitting the sources twice.
		if snap := h.supervisor.Status(); snap.Status == job.StatusRunning {
			httpkit.HandleError(c, apperr.New(apperr.KindBusy, "a sync job is already running"))
			return
		}

		ctx := c.Request.Context()
		var cancel context.CancelFunc
		if req.MaxMS > 0 {
			ctx, cancel = context.WithTimeout(ctx, time.Duration(req.MaxMS)*time.Millisecond)
			defer cancel()
		}

		result, err := h.svc.Reconcile(ctx, opts)
		if errors.Is(err, context.DeadlineExceeded) {
			err = apperr.Wrap(apperr.KindTimeout, "reconciliation exceeded its deadline", err)
		}
		if httpkit.HandleError(c, err) {
			return
		}
		httpkit.OK(c, result)
		return
	}

	admission := h.supervisor.Start(job.Params{
		Options:     opts,
		Force:       req.Force,
		MaxDuration: time.Duration(req.MaxMS) * time.Millisecond,
	})
	if !admission.Accepted {
		httpkit.JSON(c, http.StatusConflict, admission)
		return
	}
	httpkit.JSON(c, http.StatusAccepted, admission)
}

// GetStatus returns the current job snapshot, or an idle placeholder.
func (h *Handler) GetStatus(c *gin.Context) {
	httpkit.OK(c, h.supervisor.Status())
}

// CancelSync cancels the running job if there is one.
func (h *Handler) CancelSync(c *gin.Context) {
	httpkit.OK(c, h.supervisor.Cancel())
}

// GetMaxDates reports the latest known timestamps across the sources and the
// reporting store, for the sync form's defaults.
func (h *Handler) GetMaxDates(c *gin.Context) {
	dates, err := h.svc.ListMaxDates(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, dates)
}
