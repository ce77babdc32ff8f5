// Package job provides the single-slot supervisor that serializes
// reconciliation runs within this process. It admits or rejects start
// requests, enforces a wall-clock timeout, supports cancellation and exposes
// the current job snapshot for polling callers.
package job

import (
	"context"
	"fmt"
	"sync"
	"time"

	syncservice "uph_backend/internal/sync/service"
	"uph_backend/platform/logger"

	"github.com/google/uuid"
)

// Status is the lifecycle state of the sync job slot.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ReasonBusy is returned when an admission is rejected because a job is
// already running.
const ReasonBusy = "busy"

// ReasonNoRunningJob is returned by Cancel when there is nothing to cancel.
const ReasonNoRunningJob = "no_running_job"

// Runner is the engine contract the supervisor drives.
type Runner interface {
	Reconcile(ctx context.Context, opts syncservice.Options) (*syncservice.Result, error)
}

// Snapshot is the immutable view of the job slot handed to pollers.
type Snapshot struct {
	ID         string                              `json:"id"`
	Status     Status                              `json:"status"`
	StartedAt  *time.Time                          `json:"started_at,omitempty"`
	FinishedAt *time.Time                          `json:"finished_at,omitempty"`
	From       string                              `json:"from,omitempty"`
	To         string                              `json:"to,omitempty"`
	Inserted   int                                 `json:"inserted"`
	Updated    int                                 `json:"updated"`
	BySource   map[string]syncservice.SourceCounts `json:"by_source,omitempty"`
	Error      string                              `json:"error,omitempty"`
}

// Params describes one start request.
type Params struct {
	Options syncservice.Options
	// Force supersedes a running job instead of being rejected.
	Force bool
	// Auto marks scheduler-originated incremental syncs, which are never
	// rejected as busy.
	Auto bool
	// MaxDuration overrides the configured watchdog timeout when positive.
	MaxDuration time.Duration
}

// Admission is the immediate, non-blocking answer to a start request.
type Admission struct {
	Accepted bool     `json:"accepted"`
	Reason   string   `json:"reason,omitempty"`
	Job      Snapshot `json:"job"`
}

// CancelResult reports the outcome of a cancel request.
type CancelResult struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

type jobState struct {
	snapshot Snapshot
	cancel   context.CancelFunc
	watchdog *time.Timer
}

// Supervisor owns the process-wide job slot. All transitions go through its
// mutex, and every terminal transition checks the job id so a stale engine
// callback or watchdog can never clobber a newer job's state.
type Supervisor struct {
	mu        sync.Mutex
	current   *jobState
	runner    Runner
	log       *logger.Logger
	maxDur    time.Duration
	retention time.Duration
	now       func() time.Time
}

// New builds a supervisor. maxDuration bounds how long a job may run before
// the watchdog force-fails it; retention is how long a completed snapshot
// stays pollable before the slot resets to idle.
func New(runner Runner, maxDuration, retention time.Duration, log *logger.Logger) *Supervisor {
	return &Supervisor{
		runner:    runner,
		log:       log.WithComponent("sync-job"),
		maxDur:    maxDuration,
		retention: retention,
		now:       time.Now,
	}
}

// Start admits or rejects a reconciliation run. It never blocks: on
// admission the engine proceeds in the background and is observable only via
// Status. A running job rejects plain requests; forced and automatic
// requests supersede it, installing a fresh job id so the superseded
// engine's callbacks are discarded.
func (s *Supervisor) Start(params Params) Admission {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && s.current.snapshot.Status == StatusRunning {
		if !params.Force && !params.Auto {
			return Admission{Accepted: false, Reason: ReasonBusy, Job: s.current.snapshot}
		}
		// Supersede: the old engine invocation keeps running until its
		// context cancellation lands, but its id no longer matches the
		// slot, so its outcome is dropped.
		s.current.cancel()
		stopTimer(s.current.watchdog)
		s.log.Info("superseding running sync job", "old_id", s.current.snapshot.ID, "forced", params.Force, "auto", params.Auto)
	}

	id := uuid.NewString()
	startedAt := s.now()
	ctx, cancel := context.WithCancel(context.Background())

	maxDur := s.maxDur
	if params.MaxDuration > 0 {
		maxDur = params.MaxDuration
	}

	st := &jobState{
		snapshot: Snapshot{ID: id, Status: StatusRunning, StartedAt: &startedAt},
		cancel:   cancel,
	}
	st.watchdog = time.AfterFunc(maxDur, func() { s.timeout(id, maxDur) })
	s.current = st

	go s.run(ctx, id, params.Options)

	s.log.Info("sync job started", "id", id, "auto", params.Auto, "max_duration", maxDur)
	return Admission{Accepted: true, Job: st.snapshot}
}

// Status returns the current snapshot, or an idle placeholder when the slot
// is empty.
func (s *Supervisor) Status() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return Snapshot{Status: StatusIdle}
	}
	return s.current.snapshot
}

// Cancel marks a running job failed with a caller-cancellation error. The
// in-flight database call cannot be interrupted, but the engine's context is
// canceled and its eventual callback will find a non-running slot and leave
// it alone.
func (s *Supervisor) Cancel() CancelResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil || s.current.snapshot.Status != StatusRunning {
		return CancelResult{OK: false, Reason: ReasonNoRunningJob}
	}

	s.current.cancel()
	stopTimer(s.current.watchdog)
	s.finishLocked(s.current, StatusFailed, "canceled by caller")
	s.log.Info("sync job canceled", "id", s.current.snapshot.ID)
	return CancelResult{OK: true}
}

func (s *Supervisor) run(ctx context.Context, id string, opts syncservice.Options) {
	result, err := s.runner.Reconcile(ctx, opts)
	if err != nil {
		s.fail(id, err)
		return
	}
	s.complete(id, result)
}

func (s *Supervisor) complete(id string, result *syncservice.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.current
	if st == nil || st.snapshot.ID != id || st.snapshot.Status != StatusRunning {
		return
	}

	stopTimer(st.watchdog)
	s.finishLocked(st, StatusCompleted, "")
	st.snapshot.Inserted = result.Inserted
	st.snapshot.Updated = result.Updated
	st.snapshot.BySource = result.BySource
	st.snapshot.From = result.From
	st.snapshot.To = result.To

	if s.retention > 0 {
		time.AfterFunc(s.retention, func() { s.clear(id) })
	}
	s.log.Info("sync job completed", "id", id, "inserted", result.Inserted, "updated", result.Updated)
}

func (s *Supervisor) fail(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.current
	if st == nil || st.snapshot.ID != id || st.snapshot.Status != StatusRunning {
		return
	}

	stopTimer(st.watchdog)
	s.finishLocked(st, StatusFailed, err.Error())
	s.log.Error("sync job failed", "id", id, "error", err)
}

func (s *Supervisor) timeout(id string, maxDur time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.current
	if st == nil || st.snapshot.ID != id || st.snapshot.Status != StatusRunning {
		return
	}

	st.cancel()
	s.finishLocked(st, StatusFailed, fmt.Sprintf("sync timeout after %s", maxDur))
	s.log.Error("sync job timed out", "id", id, "max_duration", maxDur)
}

// clear resets the slot to idle once a completed snapshot's retention
// elapses. A failed snapshot is left in place until the next admission
// overwrites it; it never blocks, since only a running status rejects.
func (s *Supervisor) clear(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && s.current.snapshot.ID == id && s.current.snapshot.Status != StatusRunning {
		s.current = nil
	}
}

func (s *Supervisor) finishLocked(st *jobState, status Status, errMsg string) {
	finishedAt := s.now()
	st.snapshot.Status = status
	st.snapshot.FinishedAt = &finishedAt
	st.snapshot.Error = errMsg
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}
