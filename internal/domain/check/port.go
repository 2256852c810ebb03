package check

import "context"

type Repo interface {
	Create(ctx context.Context, o *Outcome) error
	ListByMonitor(ctx context.Context, monitorID int64, limit int) ([]*Outcome, error)
}
