package alert

import "context"

type Repo interface {
	Create(ctx context.Context, r *Record) error
	ListByMonitor(ctx context.Context, monitorID int64, limit int) ([]*Record, error)
}

// Settings are process-wide alert preferences.
type Settings interface {
	// DefaultRecipient returns "" when none is configured.
	DefaultRecipient(ctx context.Context) (string, error)
	RecoveryAlertsEnabled(ctx context.Context) (bool, error)
}
