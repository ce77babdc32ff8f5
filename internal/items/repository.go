// Package items manages the per-run responsibility annotations: who on the
// line-leader, PIE and QC side accounted for a diff, and their display names.
package items

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Item is one annotation row in uph_item, keyed by the run serial number.
type Item struct {
	ID             int64  `json:"id"`
	LineLeaderItem string `json:"line_leader_item"`
	LineName       string `json:"line_name"`
	PieItem        string `json:"pie_item"`
	PieName        string `json:"pie_name"`
	QcItem         string `json:"qc_item"`
	QcName         string `json:"qc_name"`
}

// Patch carries the annotation fields a caller wants to change. A nil field
// is untouched; a set field is written together with the caller's display
// name in the matching *_name column.
type Patch struct {
	LineLeaderItem *string `json:"line_leader_item"`
	PieItem        *string `json:"pie_item"`
	QcItem         *string `json:"qc_item"`
}

// Repository persists annotations in the reporting database.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get returns the annotation for a run, or nil when none exists yet.
func (r *Repository) Get(ctx context.Context, id int64) (*Item, error) {
	var item Item
	err := r.pool.QueryRow(ctx, `
		SELECT id, line_leader_item, line_name, pie_item, pie_name, qc_item, qc_name
		FROM uph_item WHERE id = $1
	`, id).Scan(&item.ID, &item.LineLeaderItem, &item.LineName,
		&item.PieItem, &item.PieName, &item.QcItem, &item.QcName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// UpdatePartial applies a patch to a run's annotation, creating an empty row
// first when none exists. Two concurrent first-patches can race on the
// insert; the loser's duplicate-key error is ignored and its UPDATE still
// lands.
func (r *Repository) UpdatePartial(ctx context.Context, id int64, patch Patch, displayName string) (*Item, error) {
	existing, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO uph_item (id, line_leader_item, line_name, pie_item, pie_name, qc_item, qc_name)
			VALUES ($1, '', '', '', '', '', '')
		`, id)
		if err != nil && !isUniqueViolation(err) {
			return nil, err
		}
	}

	var sets []string
	var args []interface{}

	set := func(column, value string) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.LineLeaderItem != nil {
		set("line_leader_item", *patch.LineLeaderItem)
		if displayName != "" {
			set("line_name", displayName)
		}
	}
	if patch.PieItem != nil {
		set("pie_item", *patch.PieItem)
		if displayName != "" {
			set("pie_name", displayName)
		}
	}
	if patch.QcItem != nil {
		set("qc_item", *patch.QcItem)
		if displayName != "" {
			set("qc_name", displayName)
		}
	}

	if len(sets) == 0 {
		return r.Get(ctx, id)
	}

	args = append(args, id)
	sql := fmt.Sprintf("UPDATE uph_item SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	if _, err := r.pool.Exec(ctx, sql, args...); err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
