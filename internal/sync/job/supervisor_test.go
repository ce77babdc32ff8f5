package job

import (
	"context"
	"errors"
	"testing"
	"time"

	syncservice "uph_backend/internal/sync/service"
	"uph_backend/platform/logger"
)

// blockingRunner holds every Reconcile call until released, so tests control
// exactly when the engine finishes.
type blockingRunner struct {
	started chan string
	release chan struct{}
	result  *syncservice.Result
	err     error
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{
		started: make(chan string, 10),
		release: make(chan struct{}),
		result:  &syncservice.Result{Inserted: 3, Updated: 2},
	}
}

func (r *blockingRunner) Reconcile(ctx context.Context, opts syncservice.Options) (*syncservice.Result, error) {
	r.started <- opts.DateFrom
	select {
	case <-r.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if r.err != nil {
		return nil, r.err
	}
	return r.result, nil
}

func waitForStatus(t *testing.T, s *Supervisor, want Status) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap := s.Status()
		if snap.Status == want {
			return snap
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for status %q, last %q", want, s.Status().Status)
	return Snapshot{}
}

func TestStartRejectsWhileRunning(t *testing.T) {
	runner := newBlockingRunner()
	s := New(runner, time.Minute, time.Minute, logger.NewNop())

	first := s.Start(Params{})
	if !first.Accepted {
		t.Fatalf("first start rejected: %+v", first)
	}
	<-runner.started

	second := s.Start(Params{})
	if second.Accepted {
		t.Fatal("second start must be rejected while the first runs")
	}
	if second.Reason != ReasonBusy {
		t.Fatalf("reason = %q, want %q", second.Reason, ReasonBusy)
	}
	if second.Job.ID != first.Job.ID {
		t.Fatal("busy rejection must expose the running job snapshot")
	}

	close(runner.release)
	snap := waitForStatus(t, s, StatusCompleted)
	if snap.Inserted != 3 || snap.Updated != 2 {
		t.Fatalf("snapshot counts = %d/%d, want 3/2", snap.Inserted, snap.Updated)
	}
	if snap.FinishedAt == nil {
		t.Fatal("completed snapshot must carry a finish time")
	}
}

func TestForceSupersedesRunningJob(t *testing.T) {
	runner := newBlockingRunner()
	s := New(runner, time.Minute, time.Minute, logger.NewNop())

	first := s.Start(Params{})
	<-runner.started

	forced := s.Start(Params{Force: true})
	if !forced.Accepted {
		t.Fatalf("forced start rejected: %+v", forced)
	}
	if forced.Job.ID == first.Job.ID {
		t.Fatal("superseding must install a fresh job id")
	}
	<-runner.started

	// Releasing both engine invocations: the superseded one's outcome must
	// be discarded, the new one's must land.
	close(runner.release)
	snap := waitForStatus(t, s, StatusCompleted)
	if snap.ID != forced.Job.ID {
		t.Fatalf("slot holds job %q, want the superseding job %q", snap.ID, forced.Job.ID)
	}
}

func TestAutoSupersedesRunningJob(t *testing.T) {
	runner := newBlockingRunner()
	s := New(runner, time.Minute, time.Minute, logger.NewNop())

	s.Start(Params{})
	<-runner.started

	auto := s.Start(Params{Auto: true})
	if !auto.Accepted {
		t.Fatalf("auto start rejected: %+v", auto)
	}
}

func TestWatchdogTimesOutRunawayJob(t *testing.T) {
	runner := newBlockingRunner()
	s := New(runner, 10*time.Millisecond, time.Minute, logger.NewNop())

	admission := s.Start(Params{})
	<-runner.started

	snap := waitForStatus(t, s, StatusFailed)
	if snap.ID != admission.Job.ID {
		t.Fatalf("failed snapshot id = %q, want %q", snap.ID, admission.Job.ID)
	}
	if snap.Error == "" {
		t.Fatal("timeout must record an error message")
	}

	// The failed snapshot stays pollable but never blocks a new start.
	next := s.Start(Params{})
	if !next.Accepted {
		t.Fatalf("start after timeout rejected: %+v", next)
	}
	close(runner.release)
}

func TestCancelRunningJob(t *testing.T) {
	runner := newBlockingRunner()
	s := New(runner, time.Minute, time.Minute, logger.NewNop())

	s.Start(Params{})
	<-runner.started

	res := s.Cancel()
	if !res.OK {
		t.Fatalf("cancel failed: %+v", res)
	}

	snap := s.Status()
	if snap.Status != StatusFailed {
		t.Fatalf("status = %q, want %q", snap.Status, StatusFailed)
	}
	if snap.Error != "canceled by caller" {
		t.Fatalf("error = %q", snap.Error)
	}

	// The canceled engine's eventual return must not disturb the slot.
	time.Sleep(10 * time.Millisecond)
	if got := s.Status().Status; got != StatusFailed {
		t.Fatalf("status after engine return = %q, want %q", got, StatusFailed)
	}
}

func TestCancelWithoutRunningJob(t *testing.T) {
	s := New(newBlockingRunner(), time.Minute, time.Minute, logger.NewNop())

	res := s.Cancel()
	if res.OK {
		t.Fatal("cancel must fail with nothing running")
	}
	if res.Reason != ReasonNoRunningJob {
		t.Fatalf("reason = %q, want %q", res.Reason, ReasonNoRunningJob)
	}
}

func TestFailedRunKeepsSnapshot(t *testing.T) {
	runner := newBlockingRunner()
	runner.err = errors.New("source unreachable")
	s := New(runner, time.Minute, time.Minute, logger.NewNop())

	s.Start(Params{})
	<-runner.started
	close(runner.release)

	snap := waitForStatus(t, s, StatusFailed)
	if snap.Error != "source unreachable" {
		t.Fatalf("error = %q", snap.Error)
	}
}

func TestCompletedSnapshotClearsAfterRetention(t *testing.T) {
	runner := newBlockingRunner()
	s := New(runner, time.Minute, 10*time.Millisecond, logger.NewNop())

	s.Start(Params{})
	<-runner.started
	close(runner.release)

	waitForStatus(t, s, StatusCompleted)
	waitForStatus(t, s, StatusIdle)
}

func TestStatusIdleOnFreshSupervisor(t *testing.T) {
	s := New(newBlockingRunner(), time.Minute, time.Minute, logger.NewNop())
	if got := s.Status().Status; got != StatusIdle {
		t.Fatalf("status = %q, want %q", got, StatusIdle)
	}
}
