package notification

import (
	"context"

	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/check"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/monitor"
)

// Notifier delivers alerts. A non-nil error means at least one channel
// failed to deliver.
type Notifier interface {
	SendFailureAlert(ctx context.Context, m *monitor.Monitor, o *check.Outcome, recipients []string) error
	SendRecoveryAlert(ctx context.Context, m *monitor.Monitor, o *check.Outcome, recipients []string) error
}
