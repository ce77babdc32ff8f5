package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"uph_backend/internal/sync/job"
	syncservice "uph_backend/internal/sync/service"
	"uph_backend/platform/logger"
	"uph_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

// stuckRunner blocks every reconciliation until released, keeping the
// supervisor slot occupied for the duration of a test.
type stuckRunner struct {
	started chan struct{}
	release chan struct{}
}

func newStuckRunner() *stuckRunner {
	return &stuckRunner{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (r *stuckRunner) Reconcile(ctx context.Context, opts syncservice.Options) (*syncservice.Result, error) {
	r.started <- struct{}{}
	select {
	case <-r.release:
	case <-ctx.Done():
	}
	return &syncservice.Result{}, nil
}

func newTestRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/sync", h.RunSync)
	r.GET("/sync/status", h.GetStatus)
	return r
}

func TestRunSyncAsyncBusyReturnsConflict(t *testing.T) {
	runner := newStuckRunner()
	sup := job.New(runner, time.Minute, time.Minute, logger.NewNop())
	h := New(nil, sup, validator.New())
	router := newTestRouter(h)

	first := sup.Start(job.Params{})
	if !first.Accepted {
		t.Fatalf("seed job rejected: %+v", first)
	}
	<-runner.started
	defer close(runner.release)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sync", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), job.ReasonBusy) {
		t.Fatalf("body lacks busy reason: %s", rec.Body.String())
	}
}

func TestRunSyncInlineBusyReturnsConflict(t *testing.T) {
	runner := newStuckRunner()
	sup := job.New(runner, time.Minute, time.Minute, logger.NewNop())
	h := New(nil, sup, validator.New())
	router := newTestRouter(h)

	sup.Start(job.Params{})
	<-runner.started
	defer close(runner.release)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sync?async=false", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "already running") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestRunSyncRejectsBadParameters(t *testing.T) {
	sup := job.New(newStuckRunner(), time.Minute, time.Minute, logger.NewNop())
	h := New(nil, sup, validator.New())
	router := newTestRouter(h)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sync?days=99", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
}

func TestGetStatusIdle(t *testing.T) {
	sup := job.New(newStuckRunner(), time.Minute, time.Minute, logger.NewNop())
	h := New(nil, sup, validator.New())
	router := newTestRouter(h)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/sync/status", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), string(job.StatusIdle)) {
		t.Fatalf("body = %s", rec.Body.String())
	}
}
