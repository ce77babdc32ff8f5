// Package service implements the reconciliation engine: it resolves the sync
// window, walks each source's planned runs, aggregates bucket diffs and
// upserts reconciled records into the reporting store.
package service

import (
	"context"
	"fmt"
	"time"

	"uph_backend/internal/sync/domain"
	"uph_backend/internal/sync/repository"
	"uph_backend/platform/apperr"
	"uph_backend/platform/logger"

	"golang.org/x/sync/errgroup"
)

// Options selects what a reconciliation run covers. Zero values mean
// "resolve automatically".
type Options struct {
	// DateFrom/DateTo are explicit window bounds, date or date-time strings.
	DateFrom string
	DateTo   string
	// LookbackDays overrides the fallback look-back window (1..31).
	LookbackDays int
	// Sources restricts the run to a subset of source tags. Empty selects
	// every known source.
	Sources []string
}

// SourceCounts is the per-source upsert accounting.
type SourceCounts struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
}

// Result summarizes one reconciliation run.
type Result struct {
	Inserted int                     `json:"inserted"`
	Updated  int                     `json:"updated"`
	BySource map[string]SourceCounts `json:"by_source"`
	Sources  []string                `json:"sources"`
	From     string                  `json:"from"`
	To       string                  `json:"to"`
}

// MaxDates reports the latest known timestamps per source plus the reporting
// store's high-water mark, for the caller-facing max-dates endpoint.
type MaxDates struct {
	Sources map[string]*time.Time `json:"sources"`
	Report  *time.Time            `json:"report"`
}

// Service is the reconciliation engine. It owns no job state; the supervisor
// serializes calls to Reconcile.
type Service struct {
	sources      []repository.SourceReader
	report       repository.ReportStore
	lookbackDays int
	log          *logger.Logger
	now          func() time.Time
}

func New(sources []repository.SourceReader, report repository.ReportStore, lookbackDays int, log *logger.Logger) *Service {
	return &Service{
		sources:      sources,
		report:       report,
		lookbackDays: lookbackDays,
		log:          log.WithComponent("sync"),
		now:          time.Now,
	}
}

// Reconcile runs one full reconciliation over the selected sources. The
// sources proceed concurrently; each source's runs are processed in
// ascending update-timestamp order so the incremental high-water mark
// advances monotonically. A source-read failure aborts the whole run;
// records already upserted stay committed, since every write is
// independently idempotent.
func (s *Service) Reconcile(ctx context.Context, opts Options) (*Result, error) {
	selected, err := s.selectSources(opts.Sources)
	if err != nil {
		return nil, err
	}

	window, err := s.resolveWindow(ctx, opts, selected)
	if err != nil {
		return nil, err
	}

	result := &Result{
		BySource: make(map[string]SourceCounts, len(selected)),
		From:     window.From.Format(domain.DateTimeLayout),
		To:       window.To.Format(domain.DateTimeLayout),
	}
	counts := make([]SourceCounts, len(selected))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range selected {
		g.Go(func() error {
			c, err := s.reconcileSource(gctx, src, window)
			if err != nil {
				return fmt.Errorf("source %s: %w", src.Tag(), err)
			}
			counts[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, src := range selected {
		result.BySource[src.Tag()] = counts[i]
		result.Sources = append(result.Sources, src.Tag())
		result.Inserted += counts[i].Inserted
		result.Updated += counts[i].Updated
	}

	s.log.Info("reconciliation finished",
		"from", result.From, "to", result.To,
		"inserted", result.Inserted, "updated", result.Updated)
	return result, nil
}

// ListMaxDates collects the latest update timestamp of every source and the
// reporting store's high-water mark.
func (s *Service) ListMaxDates(ctx context.Context) (*MaxDates, error) {
	out := &MaxDates{Sources: make(map[string]*time.Time, len(s.sources))}
	for _, src := range s.sources {
		max, err := src.MaxUpdateTimestamp(ctx)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "failed to read source max timestamp", err).WithOp("sync.ListMaxDates")
		}
		out.Sources[src.Tag()] = max
	}
	max, err := s.report.MaxRecordTimestamp(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to read reporting max timestamp", err).WithOp("sync.ListMaxDates")
	}
	out.Report = max
	return out, nil
}

func (s *Service) selectSources(tags []string) ([]repository.SourceReader, error) {
	if len(tags) == 0 {
		return s.sources, nil
	}

	var selected []repository.SourceReader
	for _, tag := range tags {
		found := false
		for _, src := range s.sources {
			if src.Tag() == tag {
				selected = append(selected, src)
				found = true
				break
			}
		}
		if !found {
			return nil, apperr.New(apperr.KindValidation, fmt.Sprintf("unknown source %q", tag))
		}
	}
	return selected, nil
}

func (s *Service) resolveWindow(ctx context.Context, opts Options, selected []repository.SourceReader) (domain.Window, error) {
	in := domain.ResolveInput{
		LookbackDays: s.lookbackDays,
		Now:          s.now(),
	}

	if opts.LookbackDays != 0 {
		if opts.LookbackDays < 1 || opts.LookbackDays > 31 {
			return domain.Window{}, apperr.New(apperr.KindValidation, "lookback days must be between 1 and 31")
		}
		in.LookbackDays = opts.LookbackDays
	}

	if opts.DateFrom != "" {
		from, err := domain.ParseFrom(opts.DateFrom)
		if err != nil {
			return domain.Window{}, err
		}
		in.ExplicitFrom = &from
	}
	if opts.DateTo != "" {
		to, err := domain.ParseTo(opts.DateTo)
		if err != nil {
			return domain.Window{}, err
		}
		in.ExplicitTo = &to
	}

	// Auto-detected bounds are best effort: a source that cannot report its
	// max timestamp just does not contribute one, matching the fallback
	// chain (sources max, then now; report max, then look-back).
	if in.ExplicitTo == nil {
		for _, src := range selected {
			max, err := src.MaxUpdateTimestamp(ctx)
			if err != nil {
				s.log.Warn("failed to read source max timestamp", "source", src.Tag(), "error", err)
				continue
			}
			if max != nil {
				in.SourceMax = append(in.SourceMax, *max)
			}
		}
	}
	if in.ExplicitFrom == nil {
		max, err := s.report.MaxRecordTimestamp(ctx)
		if err != nil {
			s.log.Warn("failed to read reporting max timestamp", "error", err)
		} else {
			in.ReportMax = max
		}
	}

	return domain.ResolveWindow(in)
}

func (s *Service) reconcileSource(ctx context.Context, src repository.SourceReader, window domain.Window) (SourceCounts, error) {
	var counts SourceCounts

	runs, err := src.ListRunsUpdatedBetween(ctx, window)
	if err != nil {
		return counts, err
	}

	lineMisses := 0
	for _, run := range runs {
		samples, err := src.ListQuantitySamples(ctx, run.ID)
		if err != nil {
			return counts, err
		}

		rec := repository.ReconciledRecord{
			SerialNumber: run.ID,
			ModelType:    run.Model,
			DataSource:   src.Tag(),
			DateRecord:   run.UpdatedAt,
		}
		for i, d := range domain.Aggregate(samples) {
			rec.Diffs[i] = d.Diff
		}

		// Line resolution is best effort: a miss or error leaves the line
		// fields null and never fails the run.
		if run.LineID != nil {
			line, err := src.LookupLine(ctx, *run.LineID)
			switch {
			case err != nil:
				lineMisses++
				s.log.Warn("line lookup failed", "source", src.Tag(), "run", run.ID, "line", *run.LineID, "error", err)
			case line != nil:
				rec.LineName = &line.Name
				rec.LineModel = &line.Model
			}
		}

		wasInsert, err := s.report.UpsertRecord(ctx, rec)
		if err != nil {
			return counts, err
		}
		if wasInsert {
			counts.Inserted++
		} else {
			counts.Updated++
		}
	}

	s.log.Info("source reconciled", "source", src.Tag(),
		"runs", len(runs), "inserted", counts.Inserted, "updated", counts.Updated,
		"line_lookup_misses", lineMisses)
	return counts, nil
}
