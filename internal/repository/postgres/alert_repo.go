package postgres

import (
	"context"
	"fmt"

	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/alert"
)

var _ alert.Repo = (*AlertRepoImpl)(nil)

type AlertRepoImpl struct{ db *DB }

func NewAlertRepo(db *DB) *AlertRepoImpl { return &AlertRepoImpl{db: db} }

const (
	qAlertInsert = `
INSERT INTO alerts (monitor_id, user_id, check_result_id, type, message, recipients, sent, error, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, now()))
RETURNING id, created_at;`

	qAlertsByMonitor = `
SELECT id, monitor_id, user_id, check_result_id, type, message, recipients, sent, error, created_at
FROM alerts
WHERE monitor_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2;`
)

func (r *AlertRepoImpl) Create(ctx context.Context, rec *alert.Record) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var createdAt any
	if !rec.CreatedAt.IsZero() {
		createdAt = rec.CreatedAt
	}
	if err := r.db.execQueryer(ctx).QueryRow(ctx, qAlertInsert,
		rec.MonitorID,
		rec.UserID,
		rec.CheckResultID,
		string(rec.Type),
		rec.Message,
		nonNil(rec.Recipients),
		rec.Sent,
		rec.Error,
		createdAt,
	).Scan(&rec.ID, &rec.CreatedAt); err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (r *AlertRepoImpl) ListByMonitor(ctx context.Context, monitorID int64, limit int) ([]*alert.Record, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.execQueryer(ctx).Query(ctx, qAlertsByMonitor, monitorID, limitOr(limit, 50))
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var out []*alert.Record
	for rows.Next() {
		var (
			a   alert.Record
			typ string
		)
		if err := rows.Scan(&a.ID, &a.MonitorID, &a.UserID, &a.CheckResultID, &typ, &a.Message,
			&a.Recipients, &a.Sent, &a.Error, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Type = alert.Type(typ)
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}
