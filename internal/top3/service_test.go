package top3

import (
	"context"
	"testing"
	"time"

	"uph_backend/platform/apperr"
	"uph_backend/platform/logger"
)

type fakeStore struct {
	candidates []Candidate
	pushed     bool
	lastPush   *time.Time
	inserted   []Alarm
}

func (f *fakeStore) ListCandidates(ctx context.Context, from, to time.Time) ([]Candidate, error) {
	return f.candidates, nil
}

func (f *fakeStore) HasPushOn(ctx context.Context, day time.Time, level string) (bool, error) {
	return f.pushed, nil
}

func (f *fakeStore) LastPushTime(ctx context.Context, level string) (*time.Time, error) {
	return f.lastPush, nil
}

func (f *fakeStore) InsertAlarms(ctx context.Context, alarms []Alarm) (int, error) {
	f.inserted = append(f.inserted, alarms...)
	return len(alarms), nil
}

func TestWorstPerSourceCapsAtThree(t *testing.T) {
	// Repository order: by source, worst diff first.
	candidates := []Candidate{
		{SerialNumber: 1, DataSource: "cs", DiffTotal: -50},
		{SerialNumber: 2, DataSource: "cs", DiffTotal: -40},
		{SerialNumber: 3, DataSource: "cs", DiffTotal: -30},
		{SerialNumber: 4, DataSource: "cs", DiffTotal: -20},
		{SerialNumber: 5, DataSource: "sz", DiffTotal: -10},
		{SerialNumber: 6, DataSource: "sz", DiffTotal: -5},
	}

	got := worstPerSource(candidates)
	if len(got) != 5 {
		t.Fatalf("selected %d candidates, want 5", len(got))
	}

	var cs, sz int
	for _, c := range got {
		switch c.DataSource {
		case "cs":
			cs++
		case "sz":
			sz++
		}
		if c.SerialNumber == 4 {
			t.Error("fourth-worst cs record must not be selected")
		}
	}
	if cs != 3 || sz != 2 {
		t.Fatalf("per-source counts cs=%d sz=%d, want 3 and 2", cs, sz)
	}
}

func TestWorstPerSourceEmpty(t *testing.T) {
	if got := worstPerSource(nil); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestWindowIsPreviousProductionDay(t *testing.T) {
	s := NewService(nil, logger.NewNop())
	s.now = func() time.Time {
		return time.Date(2026, 3, 2, 9, 30, 0, 0, time.Local)
	}

	from, to := s.window()

	wantFrom := time.Date(2026, 3, 1, 1, 0, 0, 0, time.Local)
	wantTo := time.Date(2026, 3, 2, 1, 0, 0, 0, time.Local)
	if !from.Equal(wantFrom) {
		t.Errorf("from = %v, want %v", from, wantFrom)
	}
	if !to.Equal(wantTo) {
		t.Errorf("to = %v, want %v", to, wantTo)
	}
}

func TestWindowBeforeOneAM(t *testing.T) {
	s := NewService(nil, logger.NewNop())
	s.now = func() time.Time {
		// Shortly after midnight the window still anchors at today's
		// 01:00, reaching back a full day.
		return time.Date(2026, 3, 2, 0, 30, 0, 0, time.Local)
	}

	from, to := s.window()
	if !to.Equal(time.Date(2026, 3, 2, 1, 0, 0, 0, time.Local)) {
		t.Errorf("to = %v", to)
	}
	if !from.Equal(time.Date(2026, 3, 1, 1, 0, 0, 0, time.Local)) {
		t.Errorf("from = %v", from)
	}
}

func TestPushWritesAlarms(t *testing.T) {
	line := "A01"
	store := &fakeStore{candidates: []Candidate{
		{SerialNumber: 1, LineName: &line, ModelType: "M1", DataSource: "cs", DiffTotal: -42},
		{SerialNumber: 2, LineName: &line, ModelType: "M2", DataSource: "sz", DiffTotal: -7},
	}}
	s := NewService(store, logger.NewNop())

	result, err := s.Push(context.Background())
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if result.Count != 2 {
		t.Fatalf("count = %d, want 2", result.Count)
	}
	if len(store.inserted) != 2 {
		t.Fatalf("inserted %d alarms, want 2", len(store.inserted))
	}

	first := store.inserted[0]
	if first.PCNumber != "HNZ" {
		t.Errorf("cs alarm pc_number = %q, want HNZ", first.PCNumber)
	}
	if first.AlarmMessage != "差异：-42" {
		t.Errorf("alarm message = %q", first.AlarmMessage)
	}
	if first.AlarmLevel != alarmLevelTag {
		t.Errorf("alarm level = %q, want %q", first.AlarmLevel, alarmLevelTag)
	}
	if store.inserted[1].PCNumber != "ZLT" {
		t.Errorf("sz alarm pc_number = %q, want ZLT", store.inserted[1].PCNumber)
	}
}

func TestPushRefusesSecondSameDay(t *testing.T) {
	line := "A01"
	store := &fakeStore{
		pushed: true,
		candidates: []Candidate{
			{SerialNumber: 1, LineName: &line, ModelType: "M1", DataSource: "cs", DiffTotal: -5},
		},
	}
	s := NewService(store, logger.NewNop())

	_, err := s.Push(context.Background())
	if err == nil {
		t.Fatal("expected a conflict error")
	}
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("error kind = %v, want conflict", apperr.KindOf(err))
	}
	if len(store.inserted) != 0 {
		t.Fatalf("refused push wrote %d alarms", len(store.inserted))
	}
}

func TestPushNoCandidates(t *testing.T) {
	store := &fakeStore{}
	s := NewService(store, logger.NewNop())

	result, err := s.Push(context.Background())
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if result.Count != 0 || len(store.inserted) != 0 {
		t.Fatalf("empty window wrote alarms: %+v", result)
	}
}

func TestPCNumberMapping(t *testing.T) {
	if pcNumberBySource["cs"] != "HNZ" {
		t.Errorf("cs maps to %q, want HNZ", pcNumberBySource["cs"])
	}
	if pcNumberBySource["sz"] != "ZLT" {
		t.Errorf("sz maps to %q, want ZLT", pcNumberBySource["sz"])
	}
}
