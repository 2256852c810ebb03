package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/alert"
)

const (
	SettingDefaultAlertEmail = "default_alert_email"
	SettingRecoveryAlerts    = "recovery_alerts_enabled"
)

var _ alert.Settings = (*SettingsRepoImpl)(nil)

// SettingsRepoImpl reads alert preferences from the settings table and
// falls back to the configured values when a key is absent.
type SettingsRepoImpl struct {
	db              *DB
	defaultEmail    string
	defaultRecovery bool
}

func NewSettingsRepo(db *DB, defaultEmail string, recovery bool) *SettingsRepoImpl {
	return &SettingsRepoImpl{db: db, defaultEmail: defaultEmail, defaultRecovery: recovery}
}

const (
	qSettingGet = `SELECT value FROM settings WHERE key = $1;`
	qSettingPut = `
INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now();`
)

func (r *SettingsRepoImpl) get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var v string
	err := r.db.execQueryer(ctx).QueryRow(ctx, qSettingGet, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read setting %s: %w", key, err)
	}
	return v, true, nil
}

func (r *SettingsRepoImpl) Put(ctx context.Context, key, value string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.execQueryer(ctx).Exec(ctx, qSettingPut, key, value); err != nil {
		return fmt.Errorf("write setting %s: %w", key, err)
	}
	return nil
}

func (r *SettingsRepoImpl) DefaultRecipient(ctx context.Context) (string, error) {
	v, ok, err := r.get(ctx, SettingDefaultAlertEmail)
	if err != nil {
		return "", err
	}
	if !ok {
		return r.defaultEmail, nil
	}
	return v, nil
}

func (r *SettingsRepoImpl) RecoveryAlertsEnabled(ctx context.Context) (bool, error) {
	v, ok, err := r.get(ctx, SettingRecoveryAlerts)
	if err != nil {
		return r.defaultRecovery, err
	}
	if !ok || v == "" {
		return r.defaultRecovery, nil
	}
	on, err := strconv.ParseBool(v)
	if err != nil {
		return r.defaultRecovery, fmt.Errorf("parse setting %s=%q: %w", SettingRecoveryAlerts, v, err)
	}
	return on, nil
}
