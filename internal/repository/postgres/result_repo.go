package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/check"
)

var _ check.Repo = (*ResultRepoImpl)(nil)

type ResultRepoImpl struct{ db *DB }

func NewResultRepo(db *DB) *ResultRepoImpl { return &ResultRepoImpl{db: db} }

const (
	qResultInsert = `
INSERT INTO check_results (monitor_id, user_id, status, status_code, latency_ms, error_message,
                           validation_errors, diagnostics, response_sample, meta, checked_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING id;`

	qResultsByMonitor = `
SELECT id, monitor_id, user_id, status, status_code, latency_ms, error_message,
       validation_errors, diagnostics, response_sample, meta, checked_at
FROM check_results
WHERE monitor_id = $1
ORDER BY checked_at DESC, id DESC
LIMIT $2;`
)

func (r *ResultRepoImpl) Create(ctx context.Context, o *check.Outcome) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	meta, err := jsonb(o.Meta)
	if err != nil {
		return err
	}
	if err := r.db.execQueryer(ctx).QueryRow(ctx, qResultInsert,
		o.MonitorID,
		o.UserID,
		string(o.Status),
		o.StatusCode,
		o.LatencyMs,
		o.ErrorMessage,
		nonNil(o.ValidationErrors),
		nonNil(o.Diagnostics),
		o.ResponseSample,
		meta,
		o.CheckedAt,
	).Scan(&o.ID); err != nil {
		return fmt.Errorf("insert check result: %w", err)
	}
	return nil
}

func (r *ResultRepoImpl) ListByMonitor(ctx context.Context, monitorID int64, limit int) ([]*check.Outcome, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.execQueryer(ctx).Query(ctx, qResultsByMonitor, monitorID, limitOr(limit, 50))
	if err != nil {
		return nil, fmt.Errorf("query check results: %w", err)
	}
	defer rows.Close()

	var out []*check.Outcome
	for rows.Next() {
		var (
			o       check.Outcome
			status  string
			metaRaw []byte
		)
		if err := rows.Scan(&o.ID, &o.MonitorID, &o.UserID, &status, &o.StatusCode, &o.LatencyMs,
			&o.ErrorMessage, &o.ValidationErrors, &o.Diagnostics, &o.ResponseSample, &metaRaw, &o.CheckedAt); err != nil {
			return nil, fmt.Errorf("scan check result: %w", err)
		}
		o.Status = check.Result(status)
		if len(metaRaw) > 0 {
			if err := json.Unmarshal(metaRaw, &o.Meta); err != nil {
				return nil, fmt.Errorf("decode result meta: %w", err)
			}
		}
		out = append(out, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
