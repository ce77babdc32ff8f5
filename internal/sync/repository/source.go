package repository

import (
	"context"
	"errors"
	"time"

	"uph_backend/internal/sync/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"
)

// MESSource reads one upstream MES database. All queries are read-only; the
// optional limiter keeps per-run fetch loops from hammering a production
// system.
type MESSource struct {
	tag     string
	pool    *pgxpool.Pool
	limiter *rate.Limiter
}

// NewMESSource wraps a source pool. queriesPerSecond <= 0 disables
// throttling.
func NewMESSource(tag string, pool *pgxpool.Pool, queriesPerSecond float64) *MESSource {
	var limiter *rate.Limiter
	if queriesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(queriesPerSecond), 1)
	}
	return &MESSource{tag: tag, pool: pool, limiter: limiter}
}

func (s *MESSource) Tag() string { return s.tag }

func (s *MESSource) wait(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Wait(ctx)
}

func (s *MESSource) ListRunsUpdatedBetween(ctx context.Context, w domain.Window) ([]PlannedRun, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, model, qty, line_id, fupdate_date
		FROM mes_plan
		WHERE fupdate_date > $1 AND fupdate_date <= $2
		ORDER BY fupdate_date ASC, id ASC
	`, w.From, w.To)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []PlannedRun
	for rows.Next() {
		var run PlannedRun
		if err := rows.Scan(&run.ID, &run.Model, &run.Qty, &run.LineID, &run.UpdatedAt); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *MESSource) ListQuantitySamples(ctx context.Context, runID int64) ([]domain.QuantitySample, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, COALESCE(p_qty, 0), COALESCE(m_qty, 0), COALESCE(a_qty, 0)
		FROM mes_hqty2
		WHERE pid = $1
		ORDER BY id ASC
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSamples(rows)
}

func (s *MESSource) ListBucketSamples(ctx context.Context, runID int64, slots [2]int) ([]domain.QuantitySample, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, COALESCE(p_qty, 0), COALESCE(m_qty, 0), COALESCE(a_qty, 0)
		FROM mes_hqty2
		WHERE pid = $1 AND id IN ($2, $3)
		ORDER BY id ASC
	`, runID, slots[0], slots[1])
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSamples(rows)
}

func (s *MESSource) LookupLine(ctx context.Context, lineID int64) (*LineInfo, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	var info LineInfo
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(name, ''), COALESCE(model, '')
		FROM mes_line
		WHERE id = $1
	`, lineID).Scan(&info.Name, &info.Model)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &info, nil
}

func (s *MESSource) MaxUpdateTimestamp(ctx context.Context) (*time.Time, error) {
	var max *time.Time
	if err := s.pool.QueryRow(ctx, `SELECT MAX(fupdate_date) FROM mes_plan`).Scan(&max); err != nil {
		return nil, err
	}
	return max, nil
}

func scanSamples(rows pgx.Rows) ([]domain.QuantitySample, error) {
	var samples []domain.QuantitySample
	for rows.Next() {
		var s domain.QuantitySample
		if err := rows.Scan(&s.SlotID, &s.Planned, &s.Manual, &s.Auto); err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// Compile-time check that MESSource implements SourceReader.
var _ SourceReader = (*MESSource)(nil)
