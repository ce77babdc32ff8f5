package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"uph_backend/internal/sync/domain"
	"uph_backend/internal/sync/repository"
	"uph_backend/platform/apperr"
	"uph_backend/platform/logger"
)

type fakeSource struct {
	tag     string
	runs    []repository.PlannedRun
	samples map[int64][]domain.QuantitySample
	lines   map[int64]repository.LineInfo
	max     *time.Time

	listErr error
}

func (f *fakeSource) Tag() string { return f.tag }

func (f *fakeSource) ListRunsUpdatedBetween(_ context.Context, w domain.Window) ([]repository.PlannedRun, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []repository.PlannedRun
	for _, run := range f.runs {
		if w.Contains(run.UpdatedAt) {
			out = append(out, run)
		}
	}
	return out, nil
}

func (f *fakeSource) ListQuantitySamples(_ context.Context, runID int64) ([]domain.QuantitySample, error) {
	return f.samples[runID], nil
}

func (f *fakeSource) ListBucketSamples(_ context.Context, runID int64, slots [2]int) ([]domain.QuantitySample, error) {
	var out []domain.QuantitySample
	for _, s := range f.samples[runID] {
		if s.SlotID == slots[0] || s.SlotID == slots[1] {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSource) LookupLine(_ context.Context, lineID int64) (*repository.LineInfo, error) {
	line, ok := f.lines[lineID]
	if !ok {
		return nil, nil
	}
	return &line, nil
}

func (f *fakeSource) MaxUpdateTimestamp(_ context.Context) (*time.Time, error) {
	return f.max, nil
}

type fakeStore struct {
	records map[string]repository.ReconciledRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]repository.ReconciledRecord)}
}

func storeKey(serial int64, source string) string {
	return fmt.Sprintf("%d/%s", serial, source)
}

func (f *fakeStore) UpsertRecord(_ context.Context, rec repository.ReconciledRecord) (bool, error) {
	key := storeKey(rec.SerialNumber, rec.DataSource)
	_, exists := f.records[key]
	f.records[key] = rec
	return !exists, nil
}

func (f *fakeStore) ExistsRecord(_ context.Context, serial int64, source string) (bool, error) {
	_, exists := f.records[storeKey(serial, source)]
	return exists, nil
}

func (f *fakeStore) MaxRecordTimestamp(_ context.Context) (*time.Time, error) {
	var max *time.Time
	for _, rec := range f.records {
		if max == nil || rec.DateRecord.After(*max) {
			ts := rec.DateRecord
			max = &ts
		}
	}
	return max, nil
}

func ts(t *testing.T, s string) time.Time {
	t.Helper()
	parsed, err := time.Parse(domain.DateTimeLayout, s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return parsed
}

func newTestService(sources []repository.SourceReader, store repository.ReportStore, now time.Time) *Service {
	svc := New(sources, store, 7, logger.NewNop())
	svc.now = func() time.Time { return now }
	return svc
}

func TestReconcileEndToEnd(t *testing.T) {
	now := ts(t, "2026-03-02 09:00:00")
	updated := ts(t, "2026-03-02 06:00:00")
	lineID := int64(7)

	src := &fakeSource{
		tag: "cs",
		runs: []repository.PlannedRun{
			{ID: 501, Model: "X200", Qty: 120, LineID: &lineID, UpdatedAt: updated},
		},
		samples: map[int64][]domain.QuantitySample{
			501: {
				{SlotID: 1, Planned: 5, Auto: 3},
				{SlotID: 2, Planned: 5, Auto: 3},
				{SlotID: 23, Planned: 2, Manual: 4},
			},
		},
		lines: map[int64]repository.LineInfo{
			7: {Name: "A01", Model: "X200-L"},
		},
		max: &updated,
	}
	store := newFakeStore()
	svc := newTestService([]repository.SourceReader{src}, store, now)

	result, err := svc.Reconcile(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if result.Inserted != 1 || result.Updated != 0 {
		t.Fatalf("counts = %d/%d, want 1/0", result.Inserted, result.Updated)
	}
	if c := result.BySource["cs"]; c.Inserted != 1 {
		t.Fatalf("cs counts = %+v, want 1 insert", c)
	}

	rec, ok := store.records[storeKey(501, "cs")]
	if !ok {
		t.Fatal("expected record for run 501")
	}
	if rec.Diffs[0] != -4 {
		t.Errorf("diff 8_10 = %d, want -4", rec.Diffs[0])
	}
	if rec.Diffs[11] != 2 {
		t.Errorf("diff 6_8 = %d, want 2", rec.Diffs[11])
	}
	if rec.LineName == nil || *rec.LineName != "A01" {
		t.Errorf("line name = %v, want A01", rec.LineName)
	}
	if rec.LineModel == nil || *rec.LineModel != "X200-L" {
		t.Errorf("line model = %v, want X200-L", rec.LineModel)
	}
	if !rec.DateRecord.Equal(updated) {
		t.Errorf("date record = %v, want %v", rec.DateRecord, updated)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	now := ts(t, "2026-03-02 09:00:00")
	updated := ts(t, "2026-03-02 06:00:00")

	src := &fakeSource{
		tag: "cs",
		runs: []repository.PlannedRun{
			{ID: 501, Model: "X200", UpdatedAt: updated},
		},
		samples: map[int64][]domain.QuantitySample{
			501: {{SlotID: 1, Planned: 10, Auto: 7}},
		},
		max: &updated,
	}
	store := newFakeStore()
	svc := newTestService([]repository.SourceReader{src}, store, now)

	// Re-running the same explicit window replays the run as an update.
	opts := Options{DateFrom: "2026-03-01", DateTo: "2026-03-02"}

	first, err := svc.Reconcile(context.Background(), opts)
	if err != nil {
		t.Fatalf("first Reconcile: %v", err)
	}
	second, err := svc.Reconcile(context.Background(), opts)
	if err != nil {
		t.Fatalf("second Reconcile: %v", err)
	}

	if first.Inserted != 1 || first.Updated != 0 {
		t.Errorf("first counts = %d/%d, want 1/0", first.Inserted, first.Updated)
	}
	if second.Inserted != 0 || second.Updated != 1 {
		t.Errorf("second counts = %d/%d, want 0/1", second.Inserted, second.Updated)
	}
	if len(store.records) != 1 {
		t.Errorf("store holds %d records, want 1", len(store.records))
	}
}

func TestReconcileResumesPastHighWaterMark(t *testing.T) {
	now := ts(t, "2026-03-02 09:00:00")
	atMark := ts(t, "2026-03-02 06:00:00")
	afterMark := atMark.Add(time.Second)

	src := &fakeSource{
		tag: "cs",
		runs: []repository.PlannedRun{
			{ID: 501, Model: "X200", UpdatedAt: atMark},
			{ID: 502, Model: "X200", UpdatedAt: afterMark},
		},
		samples: map[int64][]domain.QuantitySample{},
		max:     &afterMark,
	}
	store := newFakeStore()
	// Simulate a previous sync that stored run 501 at the mark.
	store.records[storeKey(501, "cs")] = repository.ReconciledRecord{
		SerialNumber: 501, DataSource: "cs", DateRecord: atMark,
	}
	svc := newTestService([]repository.SourceReader{src}, store, now)

	result, err := svc.Reconcile(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	// Run 501 sits exactly at the high-water mark and must not replay;
	// run 502 one second later must.
	if result.Inserted != 1 || result.Updated != 0 {
		t.Fatalf("counts = %d/%d, want 1/0", result.Inserted, result.Updated)
	}
	if _, ok := store.records[storeKey(502, "cs")]; !ok {
		t.Fatal("expected record for run 502")
	}
}

func TestReconcileUnknownSource(t *testing.T) {
	svc := newTestService([]repository.SourceReader{&fakeSource{tag: "cs"}}, newFakeStore(), time.Now())

	_, err := svc.Reconcile(context.Background(), Options{Sources: []string{"nope"}})
	if err == nil {
		t.Fatal("expected error for unknown source")
	}
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("kind = %v, want validation", apperr.KindOf(err))
	}
}

func TestReconcileSourceFailureAborts(t *testing.T) {
	now := ts(t, "2026-03-02 09:00:00")
	updated := ts(t, "2026-03-02 06:00:00")

	good := &fakeSource{
		tag: "cs",
		runs: []repository.PlannedRun{
			{ID: 501, Model: "X200", UpdatedAt: updated},
		},
		samples: map[int64][]domain.QuantitySample{},
		max:     &updated,
	}
	bad := &fakeSource{tag: "sz", listErr: errors.New("connection reset")}

	svc := newTestService([]repository.SourceReader{good, bad}, newFakeStore(), now)

	_, err := svc.Reconcile(context.Background(), Options{})
	if err == nil {
		t.Fatal("expected error when a source fails")
	}
}

func TestReconcileInvalidLookback(t *testing.T) {
	svc := newTestService([]repository.SourceReader{&fakeSource{tag: "cs"}}, newFakeStore(), time.Now())

	for _, days := range []int{-1, 32, 100} {
		_, err := svc.Reconcile(context.Background(), Options{LookbackDays: days})
		if apperr.KindOf(err) != apperr.KindValidation {
			t.Errorf("days %d: kind = %v, want validation", days, apperr.KindOf(err))
		}
	}
}

func TestListMaxDates(t *testing.T) {
	updated := ts(t, "2026-03-02 06:00:00")
	src := &fakeSource{tag: "cs", max: &updated}
	empty := &fakeSource{tag: "sz"}
	store := newFakeStore()
	store.records[storeKey(501, "cs")] = repository.ReconciledRecord{
		SerialNumber: 501, DataSource: "cs", DateRecord: updated,
	}

	svc := newTestService([]repository.SourceReader{src, empty}, store, time.Now())

	got, err := svc.ListMaxDates(context.Background())
	if err != nil {
		t.Fatalf("ListMaxDates: %v", err)
	}
	if got.Sources["cs"] == nil || !got.Sources["cs"].Equal(updated) {
		t.Errorf("cs max = %v, want %v", got.Sources["cs"], updated)
	}
	if got.Sources["sz"] != nil {
		t.Errorf("sz max = %v, want nil", got.Sources["sz"])
	}
	if got.Report == nil || !got.Report.Equal(updated) {
		t.Errorf("report max = %v, want %v", got.Report, updated)
	}
}
