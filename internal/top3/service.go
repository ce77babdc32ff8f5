package top3

import (
	"context"
	"fmt"
	"time"

	"uph_backend/platform/apperr"
	"uph_backend/platform/logger"
)

// alarmLevelTag marks our rows in the shared alarm_info table. The alarm
// board filters on this exact string, so it must not change.
const alarmLevelTag = "UPH_TOP3差异推送"

// pcNumberBySource maps a reconciliation source tag to the alarm board's
// plant code.
var pcNumberBySource = map[string]string{
	"cs": "HNZ",
	"sz": "ZLT",
}

// Store is the persistence contract the push service depends on.
type Store interface {
	ListCandidates(ctx context.Context, from, to time.Time) ([]Candidate, error)
	HasPushOn(ctx context.Context, day time.Time, level string) (bool, error)
	LastPushTime(ctx context.Context, level string) (*time.Time, error)
	InsertAlarms(ctx context.Context, alarms []Alarm) (int, error)
}

// Result is the outcome of a push.
type Result struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// Status reports whether today's push already happened.
type Status struct {
	Pushed       bool       `json:"pushed"`
	LastPushTime *time.Time `json:"last_push_time"`
}

// Service selects the worst three negative-diff records per source from the
// previous production day and pushes them as alarms, at most once per day.
type Service struct {
	store Store
	log   *logger.Logger
	now   func() time.Time
}

func NewService(store Store, log *logger.Logger) *Service {
	return &Service{store: store, log: log, now: time.Now}
}

// window returns the previous production day: yesterday 01:00 to today
// 01:00 local time.
func (s *Service) window() (time.Time, time.Time) {
	now := s.now()
	to := time.Date(now.Year(), now.Month(), now.Day(), 1, 0, 0, 0, now.Location())
	return to.AddDate(0, 0, -1), to
}

// worstPerSource keeps the first three candidates of each source. The input
// is ordered by source then worst-first, so "first three" is "worst three".
func worstPerSource(candidates []Candidate) []Candidate {
	taken := make(map[string]int, 2)
	var out []Candidate
	for _, c := range candidates {
		if taken[c.DataSource] >= 3 {
			continue
		}
		taken[c.DataSource]++
		out = append(out, c)
	}
	return out
}

// Preview returns what a push right now would send, without writing.
func (s *Service) Preview(ctx context.Context) ([]Candidate, error) {
	from, to := s.window()
	candidates, err := s.store.ListCandidates(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return worstPerSource(candidates), nil
}

// Push runs the daily TOP3 push. A second push on the same day fails with a
// conflict and does not touch the alarm table.
func (s *Service) Push(ctx context.Context) (Result, error) {
	pushed, err := s.store.HasPushOn(ctx, s.now(), alarmLevelTag)
	if err != nil {
		return Result{}, err
	}
	if pushed {
		return Result{}, apperr.New(apperr.KindConflict, "top3 already pushed today")
	}

	from, to := s.window()
	s.log.Info("fetching top3 candidates", "from", from, "to", to)

	candidates, err := s.store.ListCandidates(ctx, from, to)
	if err != nil {
		return Result{}, err
	}
	selected := worstPerSource(candidates)
	if len(selected) == 0 {
		return Result{Message: "no qualifying records"}, nil
	}

	now := s.now()
	alarms := make([]Alarm, 0, len(selected))
	for _, c := range selected {
		lineName := ""
		if c.LineName != nil {
			lineName = *c.LineName
		}
		alarms = append(alarms, Alarm{
			PCNumber:     pcNumberBySource[c.DataSource],
			Model:        c.ModelType,
			Location:     lineName,
			AlarmMessage: fmt.Sprintf("差异：%d", c.DiffTotal),
			UpdatedAt:    now,
			AlarmLevel:   alarmLevelTag,
		})
	}

	count, err := s.store.InsertAlarms(ctx, alarms)
	if err != nil {
		return Result{}, err
	}
	s.log.Info("top3 push completed", "count", count)
	return Result{Message: "push completed", Count: count}, nil
}

// PushStatus reports whether today's push already happened, with the last
// push timestamp when it did.
func (s *Service) PushStatus(ctx context.Context) (Status, error) {
	pushed, err := s.store.HasPushOn(ctx, s.now(), alarmLevelTag)
	if err != nil {
		return Status{}, err
	}
	status := Status{Pushed: pushed}
	if pushed {
		last, err := s.store.LastPushTime(ctx, alarmLevelTag)
		if err != nil {
			return Status{}, err
		}
		status.LastPushTime = last
	}
	return status, nil
}
