// Package repository provides data access for the reconciliation core: the
// read-only MES source databases and the reporting store.
package repository

import (
	"context"
	"time"

	"uph_backend/internal/sync/domain"
)

// PlannedRun is one production run read from a source system. Immutable once
// read; owned by the source.
type PlannedRun struct {
	ID        int64
	Model     string
	Qty       int
	LineID    *int64
	UpdatedAt time.Time
}

// LineInfo is the best-effort production-line lookup result.
type LineInfo struct {
	Name  string
	Model string
}

// ReconciledRecord is one reporting-store row, keyed by (run ID, source).
type ReconciledRecord struct {
	SerialNumber int64
	ModelType    string
	LineName     *string
	LineModel    *string
	DataSource   string
	DateRecord   time.Time
	// Diffs holds the twelve signed bucket diffs in domain.Buckets order.
	Diffs [12]int
}

// SourceReader reads plan and quantity data from one upstream MES database.
type SourceReader interface {
	// Tag identifies the source system ("cs" or "sz").
	Tag() string
	// ListRunsUpdatedBetween returns runs with update timestamp in
	// (w.From, w.To], ordered by update timestamp ascending.
	ListRunsUpdatedBetween(ctx context.Context, w domain.Window) ([]PlannedRun, error)
	// ListQuantitySamples returns all per-slot quantity rows for a run.
	ListQuantitySamples(ctx context.Context, runID int64) ([]domain.QuantitySample, error)
	// ListBucketSamples returns the quantity rows for one bucket's slot pair.
	ListBucketSamples(ctx context.Context, runID int64, slots [2]int) ([]domain.QuantitySample, error)
	// LookupLine resolves a production line. Returns (nil, nil) when the
	// line is unknown.
	LookupLine(ctx context.Context, lineID int64) (*LineInfo, error)
	// MaxUpdateTimestamp returns the latest plan update timestamp, or nil
	// when the source has no plans.
	MaxUpdateTimestamp(ctx context.Context) (*time.Time, error)
}

// ReportStore writes reconciled records to the reporting database.
type ReportStore interface {
	// UpsertRecord inserts or replaces the record for its (run, source)
	// key. wasInsert reports whether the key was new.
	UpsertRecord(ctx context.Context, rec ReconciledRecord) (wasInsert bool, err error)
	// ExistsRecord reports whether a record exists for the key.
	ExistsRecord(ctx context.Context, serialNumber int64, source string) (bool, error)
	// MaxRecordTimestamp returns the reporting store's high-water mark, or
	// nil when it holds no records.
	MaxRecordTimestamp(ctx context.Context) (*time.Time, error)
}
