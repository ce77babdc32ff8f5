// Package analyses serves the reconciled diff records to the reporting UI:
// filtered listing, per-run detail and live bucket drill-down.
package analyses

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AnalysisRow is one reconciled record as stored in uph_analysis.
type AnalysisRow struct {
	SerialNumber int64     `json:"serial_number"`
	ModelType    string    `json:"model_type"`
	LineName     *string   `json:"line_name"`
	LineModel    *string   `json:"line_model"`
	DataSource   string    `json:"data_source"`
	DateRecord   time.Time `json:"date_record"`
	Diffs        [12]int   `json:"diffs"`
}

// ItemRow is the responsibility annotation attached to a run, when present.
type ItemRow struct {
	ID             int64  `json:"id"`
	LineLeaderItem string `json:"line_leader_item"`
	LineName       string `json:"line_name"`
	PieItem        string `json:"pie_item"`
	PieName        string `json:"pie_name"`
	QcItem         string `json:"qc_item"`
	QcName         string `json:"qc_name"`
}

// ListParams filters and pages the analyses listing.
type ListParams struct {
	DateFrom   *time.Time
	DateTo     *time.Time
	Model      string
	Source     string
	LinePrefix string
	Page       int
	Size       int
	SortBy     string
	SortDesc   bool
}

// ListResult is one page of analyses.
type ListResult struct {
	Items []AnalysisRow `json:"items"`
	Page  int           `json:"page"`
	Size  int           `json:"size"`
	Total int           `json:"total"`
}

// sortColumns is the allow-list for ORDER BY; anything else falls back to
// date_record.
var sortColumns = map[string]string{
	"date_record":   "date_record",
	"serial_number": "serial_number",
	"model_type":    "model_type",
	"data_source":   "data_source",
}

const analysisColumns = `
	serial_number, model_type, line_name, line_model, data_source, date_record,
	diff_cnt_8_10, diff_cnt_10_12, diff_cnt_12_14, diff_cnt_14_16,
	diff_cnt_16_18, diff_cnt_18_20, diff_cnt_20_22, diff_cnt_22_24,
	diff_cnt_24_2, diff_cnt_2_4, diff_cnt_4_6, diff_cnt_6_8`

// Repository provides read access to the reporting tables.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns one page of reconciled records plus the unpaged total.
func (r *Repository) List(ctx context.Context, p ListParams) (ListResult, error) {
	var where []string
	var args []interface{}

	addArg := func(clause string, value interface{}) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if p.DateFrom != nil {
		addArg("date_record >= $%d", *p.DateFrom)
	}
	if p.DateTo != nil {
		addArg("date_record <= $%d", *p.DateTo)
	}
	if p.Model != "" {
		addArg("model_type ILIKE $%d", "%"+p.Model+"%")
	}
	if p.Source != "" {
		addArg("data_source = $%d", p.Source)
	}
	if p.LinePrefix != "" {
		addArg("line_name LIKE $%d", p.LinePrefix+"%")
	}

	whereSQL := ""
	if len(where) > 0 {
		whereSQL = "WHERE " + strings.Join(where, " AND ")
	}

	sortCol, ok := sortColumns[p.SortBy]
	if !ok {
		sortCol = "date_record"
	}
	direction := "ASC"
	if p.SortDesc {
		direction = "DESC"
	}

	size := p.Size
	if size <= 0 {
		size = 20
	}
	page := p.Page
	if page <= 0 {
		page = 1
	}

	result := ListResult{Items: []AnalysisRow{}, Page: page, Size: size}

	countSQL := fmt.Sprintf("SELECT COUNT(1) FROM uph_analysis %s", whereSQL)
	if err := r.pool.QueryRow(ctx, countSQL, args...).Scan(&result.Total); err != nil {
		return result, err
	}

	listSQL := fmt.Sprintf(`
		SELECT %s FROM uph_analysis %s
		ORDER BY %s %s, serial_number ASC
		LIMIT $%d OFFSET $%d
	`, analysisColumns, whereSQL, sortCol, direction, len(args)+1, len(args)+2)
	args = append(args, size, (page-1)*size)

	rows, err := r.pool.Query(ctx, listSQL, args...)
	if err != nil {
		return result, err
	}
	defer rows.Close()

	for rows.Next() {
		row, err := scanAnalysis(rows)
		if err != nil {
			return result, err
		}
		result.Items = append(result.Items, row)
	}
	return result, rows.Err()
}

// GetBySerial returns the reconciled records for one run (one row per
// source that observed it).
func (r *Repository) GetBySerial(ctx context.Context, serial int64) ([]AnalysisRow, error) {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM uph_analysis WHERE serial_number = $1 ORDER BY data_source ASC
	`, analysisColumns), serial)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []AnalysisRow
	for rows.Next() {
		row, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, row)
	}
	return records, rows.Err()
}

// GetItem returns the responsibility annotation for a run, or nil.
func (r *Repository) GetItem(ctx context.Context, serial int64) (*ItemRow, error) {
	var item ItemRow
	err := r.pool.QueryRow(ctx, `
		SELECT id, line_leader_item, line_name, pie_item, pie_name, qc_item, qc_name
		FROM uph_item WHERE id = $1
	`, serial).Scan(&item.ID, &item.LineLeaderItem, &item.LineName,
		&item.PieItem, &item.PieName, &item.QcItem, &item.QcName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func scanAnalysis(rows pgx.Rows) (AnalysisRow, error) {
	var row AnalysisRow
	err := rows.Scan(&row.SerialNumber, &row.ModelType, &row.LineName, &row.LineModel,
		&row.DataSource, &row.DateRecord,
		&row.Diffs[0], &row.Diffs[1], &row.Diffs[2], &row.Diffs[3],
		&row.Diffs[4], &row.Diffs[5], &row.Diffs[6], &row.Diffs[7],
		&row.Diffs[8], &row.Diffs[9], &row.Diffs[10], &row.Diffs[11])
	return row, err
}
