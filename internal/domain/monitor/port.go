package monitor

import (
	"context"
	"time"
)

type DueQuery struct {
	Now time.Time
	// Owners limits the result to these users; empty means everyone.
	Owners []int64
	Limit  int
}

type Repo interface {
	FindDue(ctx context.Context, q DueQuery) ([]*Monitor, error)
	// ClaimDue moves next_check_time from expected to next and reports
	// whether this caller won the row.
	ClaimDue(ctx context.Context, id int64, expected *time.Time, next time.Time) (bool, error)
	AdvanceNextCheck(ctx context.Context, id int64, next time.Time) error
	UpdateStats(ctx context.Context, id int64, u StatsUpdate) error
	GetByID(ctx context.Context, id int64) (*Monitor, error)
	ListByOwner(ctx context.Context, userID int64) ([]*Monitor, error)
	ListEnabled(ctx context.Context) ([]*Monitor, error)
}
