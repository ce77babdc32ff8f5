package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGReportStore persists reconciled records in the reporting database.
type PGReportStore struct {
	pool *pgxpool.Pool
}

func NewPGReportStore(pool *pgxpool.Pool) *PGReportStore {
	return &PGReportStore{pool: pool}
}

// UpsertRecord writes the record under its (serial_number, data_source) key.
// The existence probe ahead of the write is how insert-vs-update accounting
// is produced; it is not atomic against other writers, which is acceptable
// because the job supervisor admits only one reconciliation at a time and
// this process is the table's only writer. The write itself conflicts on the
// primary key and replaces every field, so re-running a sync is idempotent.
func (s *PGReportStore) UpsertRecord(ctx context.Context, rec ReconciledRecord) (bool, error) {
	existed, err := s.ExistsRecord(ctx, rec.SerialNumber, rec.DataSource)
	if err != nil {
		return false, err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO uph_analysis (
			serial_number, model_type, line_name, line_model, data_source, date_record,
			diff_cnt_8_10, diff_cnt_10_12, diff_cnt_12_14, diff_cnt_14_16,
			diff_cnt_16_18, diff_cnt_18_20, diff_cnt_20_22, diff_cnt_22_24,
			diff_cnt_24_2, diff_cnt_2_4, diff_cnt_4_6, diff_cnt_6_8
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (serial_number, data_source) DO UPDATE SET
			model_type = EXCLUDED.model_type,
			line_name = EXCLUDED.line_name,
			line_model = EXCLUDED.line_model,
			date_record = EXCLUDED.date_record,
			diff_cnt_8_10 = EXCLUDED.diff_cnt_8_10,
			diff_cnt_10_12 = EXCLUDED.diff_cnt_10_12,
			diff_cnt_12_14 = EXCLUDED.diff_cnt_12_14,
			diff_cnt_14_16 = EXCLUDED.diff_cnt_14_16,
			diff_cnt_16_18 = EXCLUDED.diff_cnt_16_18,
			diff_cnt_18_20 = EXCLUDED.diff_cnt_18_20,
			diff_cnt_20_22 = EXCLUDED.diff_cnt_20_22,
			diff_cnt_22_24 = EXCLUDED.diff_cnt_22_24,
			diff_cnt_24_2 = EXCLUDED.diff_cnt_24_2,
			diff_cnt_2_4 = EXCLUDED.diff_cnt_2_4,
			diff_cnt_4_6 = EXCLUDED.diff_cnt_4_6,
			diff_cnt_6_8 = EXCLUDED.diff_cnt_6_8
	`, rec.SerialNumber, rec.ModelType, rec.LineName, rec.LineModel, rec.DataSource, rec.DateRecord,
		rec.Diffs[0], rec.Diffs[1], rec.Diffs[2], rec.Diffs[3],
		rec.Diffs[4], rec.Diffs[5], rec.Diffs[6], rec.Diffs[7],
		rec.Diffs[8], rec.Diffs[9], rec.Diffs[10], rec.Diffs[11])
	if err != nil {
		return false, err
	}

	return !existed, nil
}

func (s *PGReportStore) ExistsRecord(ctx context.Context, serialNumber int64, source string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM uph_analysis WHERE serial_number = $1 AND data_source = $2
		)
	`, serialNumber, source).Scan(&exists)
	return exists, err
}

func (s *PGReportStore) MaxRecordTimestamp(ctx context.Context) (*time.Time, error) {
	var max *time.Time
	if err := s.pool.QueryRow(ctx, `SELECT MAX(date_record) FROM uph_analysis`).Scan(&max); err != nil {
		return nil, err
	}
	return max, nil
}

// Compile-time check that PGReportStore implements ReportStore.
var _ ReportStore = (*PGReportStore)(nil)
