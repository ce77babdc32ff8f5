package domain

import (
	"fmt"
	"time"

	"uph_backend/platform/apperr"
)

const (
	// DateLayout accepts day-granularity bounds from callers.
	DateLayout = "2006-01-02"
	// DateTimeLayout is the canonical timestamp layout for bounds and
	// source update timestamps.
	DateTimeLayout = "2006-01-02 15:04:05"
)

// Window is a resolved synchronization range over source update timestamps.
// It is applied as date_record > From AND date_record <= To: the exclusive
// lower bound prevents re-processing the run that exactly matched the
// previous sync's high-water mark, while the inclusive upper bound still
// catches ties at the new one.
type Window struct {
	From time.Time
	To   time.Time
}

// Contains reports whether a source update timestamp falls in the window.
func (w Window) Contains(ts time.Time) bool {
	return ts.After(w.From) && !ts.After(w.To)
}

// ParseFrom parses a lower bound. Date-only values normalize to the start of
// that day; full timestamps pass through unchanged.
func ParseFrom(s string) (time.Time, error) {
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(DateTimeLayout, s)
	if err != nil {
		return time.Time{}, apperr.Wrap(apperr.KindValidation, fmt.Sprintf("invalid date_from %q", s), err)
	}
	return t, nil
}

// ParseTo parses an upper bound. Date-only values normalize to 23:59:59 of
// that day; full timestamps pass through unchanged.
func ParseTo(s string) (time.Time, error) {
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t.Add(23*time.Hour + 59*time.Minute + 59*time.Second), nil
	}
	t, err := time.Parse(DateTimeLayout, s)
	if err != nil {
		return time.Time{}, apperr.Wrap(apperr.KindValidation, fmt.Sprintf("invalid date_to %q", s), err)
	}
	return t, nil
}

// ResolveInput carries everything window resolution depends on, so the
// function stays pure and the callers own the database round trips.
type ResolveInput struct {
	// ExplicitFrom/ExplicitTo are caller-supplied bounds, already parsed.
	ExplicitFrom *time.Time
	ExplicitTo   *time.Time
	// LookbackDays is the fallback look-back applied when the reporting
	// store is empty. Callers bound it to 1..31.
	LookbackDays int
	// SourceMax holds the latest known update timestamp of each source
	// that reported one.
	SourceMax []time.Time
	// ReportMax is the reporting store's high-water mark, nil when the
	// store has no reconciled record yet.
	ReportMax *time.Time
	// Now anchors the resolution when no source timestamp is available.
	Now time.Time
}

// ResolveWindow determines the sync range.
//
// Upper bound: the explicit value if given, else the maximum of the sources'
// latest update timestamps, else Now. Lower bound: the explicit value if
// given, else the reporting store's high-water mark (incremental mode), else
// the upper bound minus LookbackDays.
//
// An inverted range with an explicit bound is rejected rather than silently
// swapped: it indicates a caller error, and swapping would hide it. Fully
// auto-resolved bounds can invert on clock skew and collapse to an empty
// window instead.
func ResolveWindow(in ResolveInput) (Window, error) {
	var to time.Time
	if in.ExplicitTo != nil {
		to = *in.ExplicitTo
	} else {
		for _, ts := range in.SourceMax {
			if ts.After(to) {
				to = ts
			}
		}
		if to.IsZero() {
			to = in.Now
		}
	}

	var from time.Time
	switch {
	case in.ExplicitFrom != nil:
		from = *in.ExplicitFrom
	case in.ReportMax != nil:
		from = *in.ReportMax
	default:
		from = to.AddDate(0, 0, -in.LookbackDays)
	}

	if from.After(to) {
		if in.ExplicitFrom != nil || in.ExplicitTo != nil {
			return Window{}, apperr.New(apperr.KindValidation,
				fmt.Sprintf("invalid sync range: from %s is after to %s",
					from.Format(DateTimeLayout), to.Format(DateTimeLayout)))
		}
		// Auto-resolved bounds can invert when the reporting store's
		// high-water mark leads the sources (clock skew). Collapse to an
		// empty window instead of failing the scheduled sync.
		from = to
	}

	return Window{From: from, To: to}, nil
}
