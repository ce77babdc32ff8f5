// Package top3 pushes the worst per-source diff records of the previous
// production day into the factory alarm board.
package top3

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Candidate is one reconciled record eligible for the push: a negative
// total diff summed over all twelve buckets.
type Candidate struct {
	SerialNumber int64   `json:"serial_number"`
	LineName     *string `json:"line_name"`
	ModelType    string  `json:"model_type"`
	LineModel    *string `json:"line_model"`
	DataSource   string  `json:"data_source"`
	DiffTotal    int     `json:"diff_total"`
}

// Alarm is one row written to alarm_info.
type Alarm struct {
	PCNumber     string
	Model        string
	Location     string
	AlarmMessage string
	UpdatedAt    time.Time
	AlarmLevel   string
}

const diffTotalExpr = `
	(diff_cnt_8_10 + diff_cnt_10_12 + diff_cnt_12_14 + diff_cnt_14_16 +
	 diff_cnt_16_18 + diff_cnt_18_20 + diff_cnt_20_22 + diff_cnt_22_24 +
	 diff_cnt_24_2 + diff_cnt_2_4 + diff_cnt_4_6 + diff_cnt_6_8)`

// Repository reads candidates from uph_analysis and writes alarms.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListCandidates returns every negative-total record on an A-prefixed line
// inside the window, ordered by source then worst-first.
func (r *Repository) ListCandidates(ctx context.Context, from, to time.Time) ([]Candidate, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT serial_number, line_name, model_type, line_model, data_source,
			`+diffTotalExpr+` AS diff_total
		FROM uph_analysis
		WHERE date_record BETWEEN $1 AND $2
			AND line_name LIKE 'A%'
			AND `+diffTotalExpr+` < 0
		ORDER BY data_source ASC, diff_total ASC
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.SerialNumber, &c.LineName, &c.ModelType,
			&c.LineModel, &c.DataSource, &c.DiffTotal); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// HasPushOn reports whether alarms with the given level tag were already
// written on the given calendar day.
func (r *Repository) HasPushOn(ctx context.Context, day time.Time, level string) (bool, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(1) FROM alarm_info
		WHERE updated_at::date = $1::date AND alarm_level = $2
	`, day, level).Scan(&count)
	return count > 0, err
}

// LastPushTime returns the most recent alarm timestamp for the level tag,
// or nil when none exists.
func (r *Repository) LastPushTime(ctx context.Context, level string) (*time.Time, error) {
	var last *time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT MAX(updated_at) FROM alarm_info WHERE alarm_level = $1
	`, level).Scan(&last)
	return last, err
}

// InsertAlarms writes the batch and returns the inserted count.
func (r *Repository) InsertAlarms(ctx context.Context, alarms []Alarm) (int, error) {
	inserted := 0
	for _, a := range alarms {
		tag, err := r.pool.Exec(ctx, `
			INSERT INTO alarm_info
				(pc_number, model, location, alarm_message, updated_at, alarm_level,
				 mac_address, responsible_person)
			VALUES ($1, $2, $3, $4, $5, $6, '', '')
		`, a.PCNumber, a.Model, a.Location, a.AlarmMessage, a.UpdatedAt, a.AlarmLevel)
		if err != nil {
			return inserted, err
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}
