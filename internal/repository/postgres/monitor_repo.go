package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/monitor"
)

var _ monitor.Repo = (*MonitorRepoImpl)(nil)

type MonitorRepoImpl struct {
	db *DB
}

func NewMonitorRepo(db *DB) *MonitorRepoImpl { return &MonitorRepoImpl{db: db} }

const monitorColumns = `
id, user_id, collection_id, name, url, auth, validation, check_interval, alert_emails, enabled,
status, next_check_time, last_check_time, last_latency, consecutive_failures, total_checks,
successful_checks, created_at, updated_at`

const (
	qMonitorInsert = `
INSERT INTO monitors (user_id, collection_id, name, url, auth, validation, check_interval, alert_emails, enabled, next_check_time)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING` + monitorColumns + `;`

	qMonitorGetByID = `SELECT` + monitorColumns + ` FROM monitors WHERE id = $1;`

	qMonitorListByOwner = `SELECT` + monitorColumns + ` FROM monitors WHERE user_id = $1 ORDER BY id;`

	qMonitorListEnabled = `SELECT` + monitorColumns + ` FROM monitors WHERE enabled = TRUE ORDER BY id;`

	qMonitorFindDue = `
SELECT` + monitorColumns + `
FROM monitors
WHERE enabled = TRUE
  AND next_check_time IS NOT NULL
  AND next_check_time <= $1
  AND (cardinality($2::bigint[]) = 0 OR user_id = ANY($2::bigint[]))
ORDER BY next_check_time, id
LIMIT $3;`

	qMonitorClaim = `
UPDATE monitors
SET next_check_time = $3, updated_at = now()
WHERE id = $1 AND next_check_time IS NOT DISTINCT FROM $2;`

	qMonitorAdvance = `
UPDATE monitors
SET next_check_time = $2, updated_at = now()
WHERE id = $1;`

	qMonitorUpdateStats = `
UPDATE monitors
SET status = $2,
    last_check_time = $3,
    last_latency = $4,
    consecutive_failures = $5,
    total_checks = total_checks + 1,
    successful_checks = successful_checks + CASE WHEN $6 THEN 1 ELSE 0 END,
    updated_at = now()
WHERE id = $1;`
)

func scanMonitor(row pgx.Row, m *monitor.Monitor) error {
	var (
		authRaw, rulesRaw []byte
		status            string
	)
	if err := row.Scan(
		&m.ID,
		&m.UserID,
		&m.CollectionID,
		&m.Name,
		&m.URL,
		&authRaw,
		&rulesRaw,
		&m.CheckInterval,
		&m.AlertEmails,
		&m.Enabled,
		&status,
		&m.NextCheckTime,
		&m.LastCheckTime,
		&m.LastLatency,
		&m.ConsecutiveFailures,
		&m.TotalChecks,
		&m.SuccessfulChecks,
		&m.CreatedAt,
		&m.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %w", monitor.ErrNotFound, ErrNotFound)
		}
		return fmt.Errorf("scan monitor: %w", err)
	}
	m.Status = monitor.Status(status)
	if len(authRaw) > 0 {
		if err := json.Unmarshal(authRaw, &m.Auth); err != nil {
			return fmt.Errorf("decode auth of monitor %d: %w", m.ID, err)
		}
	}
	if len(rulesRaw) > 0 {
		var rules monitor.ValidationRules
		if err := json.Unmarshal(rulesRaw, &rules); err != nil {
			return fmt.Errorf("decode validation of monitor %d: %w", m.ID, err)
		}
		m.Validation = &rules
	}
	return nil
}

func (r *MonitorRepoImpl) queryMonitors(ctx context.Context, q string, args ...any) ([]*monitor.Monitor, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.execQueryer(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query monitors: %w", err)
	}
	defer rows.Close()

	var out []*monitor.Monitor
	for rows.Next() {
		var m monitor.Monitor
		if err := scanMonitor(rows, &m); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// Create inserts m and fills in the generated columns.
func (r *MonitorRepoImpl) Create(ctx context.Context, m *monitor.Monitor) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	authRaw, err := jsonb(m.Auth)
	if err != nil {
		return err
	}
	rulesRaw, err := jsonb(m.Validation)
	if err != nil {
		return err
	}
	emails := m.AlertEmails
	if emails == nil {
		emails = []string{}
	}
	row := r.db.execQueryer(ctx).QueryRow(ctx, qMonitorInsert,
		m.UserID, m.CollectionID, m.Name, m.URL, authRaw, rulesRaw,
		m.CheckInterval, emails, m.Enabled, m.NextCheckTime,
	)
	return scanMonitor(row, m)
}

func (r *MonitorRepoImpl) FindDue(ctx context.Context, q monitor.DueQuery) ([]*monitor.Monitor, error) {
	owners := q.Owners
	if owners == nil {
		owners = []int64{}
	}
	return r.queryMonitors(ctx, qMonitorFindDue, q.Now, owners, limitOr(q.Limit, 1000))
}

func (r *MonitorRepoImpl) ClaimDue(ctx context.Context, id int64, expected *time.Time, next time.Time) (bool, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qMonitorClaim, id, expected, next)
	if err != nil {
		return false, fmt.Errorf("claim monitor %d: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *MonitorRepoImpl) AdvanceNextCheck(ctx context.Context, id int64, next time.Time) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qMonitorAdvance, id, next)
	if err != nil {
		return fmt.Errorf("advance monitor %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return monitor.ErrNotFound
	}
	return nil
}

func (r *MonitorRepoImpl) UpdateStats(ctx context.Context, id int64, u monitor.StatsUpdate) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qMonitorUpdateStats,
		id, string(u.Status), u.LastCheckTime, u.LastLatency, u.ConsecutiveFailures, u.IsSuccess,
	)
	if err != nil {
		return fmt.Errorf("update monitor %d stats: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return monitor.ErrNotFound
	}
	return nil
}

func (r *MonitorRepoImpl) GetByID(ctx context.Context, id int64) (*monitor.Monitor, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var m monitor.Monitor
	if err := scanMonitor(r.db.execQueryer(ctx).QueryRow(ctx, qMonitorGetByID, id), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MonitorRepoImpl) ListByOwner(ctx context.Context, userID int64) ([]*monitor.Monitor, error) {
	return r.queryMonitors(ctx, qMonitorListByOwner, userID)
}

func (r *MonitorRepoImpl) ListEnabled(ctx context.Context) ([]*monitor.Monitor, error) {
	return r.queryMonitors(ctx, qMonitorListEnabled)
}
