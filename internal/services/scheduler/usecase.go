package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/alert"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/check"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/event"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/monitor"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/notification"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/services/status"
)

type Prober interface {
	Execute(ctx context.Context, m *monitor.Monitor) *check.Outcome
}

type StatusMachine interface {
	Apply(ctx context.Context, m *monitor.Monitor, o *check.Outcome) status.Transition
}

type AlertDispatcher interface {
	Deliver(ctx context.Context, m *monitor.Monitor, o *check.Outcome, in *alert.Intent) (*alert.Record, error)
}

// OwnerSource reports the owners that currently hold a live session.
type OwnerSource interface {
	ActiveOwners(ctx context.Context) ([]int64, error)
}

type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type RestartPolicy string

const (
	// RestartClamp moves stale due times to now at startup.
	RestartClamp RestartPolicy = "clamp"
	// RestartCatchUp keeps stale due times, so overdue monitors run on the first tick.
	RestartCatchUp RestartPolicy = "catchup"
)

const (
	DefaultBatchLimit  = 500
	DefaultMaxBackoff  = 5 * time.Minute
	DefaultTaskTimeout = 2 * time.Minute
	firstCheckDelay    = time.Minute
)

type Policy struct {
	Concurrency      int
	BatchLimit       int
	ActiveOwnersOnly bool
	ErrorBackoff     bool
	MaxBackoff       time.Duration
	TaskTimeout      time.Duration
	RestartPolicy    RestartPolicy
}

func (p Policy) withDefaults() Policy {
	if p.Concurrency <= 0 {
		p.Concurrency = DefaultConcurrency
	}
	if p.BatchLimit <= 0 {
		p.BatchLimit = DefaultBatchLimit
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = DefaultMaxBackoff
	}
	if p.TaskTimeout <= 0 {
		p.TaskTimeout = DefaultTaskTimeout
	}
	if p.RestartPolicy == "" {
		p.RestartPolicy = RestartClamp
	}
	return p
}

type Deps struct {
	Monitors   monitor.Repo
	Results    check.Repo
	Prober     Prober
	Machine    StatusMachine
	Dispatcher AlertDispatcher
	// Events and Owners are optional.
	Events event.CheckEvents
	Owners OwnerSource
	// Tx makes outcome and stats writes atomic when set.
	Tx    Transactor
	Clock notification.Clock
}

type TickStats struct {
	Due        int
	Dispatched int
	Skipped    int
	Errors     int
}

var ErrNoActiveOwners = errors.New("no active owner source configured")

type Usecase struct {
	d      Deps
	policy Policy
	pool   *Pool
	log    *zap.Logger

	mu       sync.Mutex
	inflight map[int64]struct{}
}

func NewUC(d Deps, p Policy, log *zap.Logger) *Usecase {
	p = p.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	if d.Events == nil {
		d.Events = event.Nop{}
	}
	if d.Clock == nil {
		d.Clock = notification.SystemClock{}
	}
	log = log.With(zap.String("component", "scheduler.uc"))
	return &Usecase{
		d:        d,
		policy:   p,
		pool:     NewPool(p.Concurrency, log),
		log:      log,
		inflight: make(map[int64]struct{}),
	}
}

func (u *Usecase) Policy() Policy { return u.policy }

// Init assigns a due time to every enabled monitor that lacks one and
// applies the restart policy to stale due times.
func (u *Usecase) Init(ctx context.Context) (int, error) {
	ctx, span := otel.Tracer("scheduler.uc").Start(ctx, "scheduler.init")
	defer span.End()

	ms, err := u.d.Monitors.ListEnabled(ctx)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("list enabled: %w", err)
	}

	now := u.d.Clock.Now()
	updated := 0
	var errs []error
	for _, m := range ms {
		next, ok := u.initialNext(m, now)
		if !ok {
			continue
		}
		if err := u.d.Monitors.AdvanceNextCheck(ctx, m.ID, next); err != nil {
			errs = append(errs, fmt.Errorf("monitor %d: %w", m.ID, err))
			continue
		}
		updated++
	}
	span.SetAttributes(attribute.Int("monitors.enabled", len(ms)), attribute.Int("monitors.updated", updated))
	u.log.Info("scheduler initialized", zap.Int("enabled", len(ms)), zap.Int("updated", updated),
		zap.String("restart_policy", string(u.policy.RestartPolicy)))
	return updated, errors.Join(errs...)
}

func (u *Usecase) initialNext(m *monitor.Monitor, now time.Time) (time.Time, bool) {
	clamp := u.policy.RestartPolicy == RestartClamp
	switch {
	case m.NextCheckTime != nil:
		if clamp && m.NextCheckTime.Before(now) {
			return now, true
		}
		return time.Time{}, false
	case m.LastCheckTime != nil:
		next := m.LastCheckTime.Add(m.Interval())
		if clamp && next.Before(now) {
			next = now
		}
		return next, true
	default:
		return now.Add(firstCheckDelay), true
	}
}

// Tick selects due monitors, moves each one's due time forward and hands
// it to the pool. It returns once every monitor is dispatched; the checks
// themselves complete in the background.
func (u *Usecase) Tick(ctx context.Context) (TickStats, error) {
	tr := otel.Tracer("scheduler.uc")
	ctx, span := tr.Start(ctx, "scheduler.tick",
		trace.WithAttributes(attribute.Int("batch.limit", u.policy.BatchLimit)),
	)
	defer span.End()

	var st TickStats
	now := u.d.Clock.Now()
	q := monitor.DueQuery{Now: now, Limit: u.policy.BatchLimit}

	if u.policy.ActiveOwnersOnly {
		if u.d.Owners == nil {
			return st, ErrNoActiveOwners
		}
		owners, err := u.d.Owners.ActiveOwners(ctx)
		if err != nil {
			span.RecordError(err)
			return st, fmt.Errorf("active owners: %w", err)
		}
		if len(owners) == 0 {
			span.SetAttributes(attribute.Int("batch.fetched", 0))
			return st, nil
		}
		q.Owners = owners
	}

	due, err := u.d.Monitors.FindDue(ctx, q)
	if err != nil {
		span.RecordError(err)
		return st, fmt.Errorf("find due: %w", err)
	}
	st.Due = len(due)

	for _, m := range due {
		if !u.acquire(m.ID) {
			st.Skipped++
			continue
		}
		next := m.NextAfterSchedule(now)
		won, err := u.d.Monitors.ClaimDue(ctx, m.ID, m.NextCheckTime, next)
		if err != nil || !won {
			u.release(m.ID)
			if err != nil {
				st.Errors++
				u.log.Warn("advance next check", zap.Int64("monitor_id", m.ID), zap.Error(err))
			} else {
				st.Skipped++
			}
			continue
		}
		m.NextCheckTime = &next
		st.Dispatched++

		mon := m
		// A stopping loop lets dispatched checks finish; TaskTimeout bounds them.
		u.pool.Go(context.WithoutCancel(ctx), func(ctx context.Context) error {
			defer u.release(mon.ID)
			return u.runScheduled(ctx, mon)
		})
	}

	span.SetAttributes(
		attribute.Int("batch.fetched", st.Due),
		attribute.Int("batch.dispatched", st.Dispatched),
		attribute.Int("batch.skipped", st.Skipped),
	)
	return st, nil
}

// Wait blocks until every dispatched check has finished.
func (u *Usecase) Wait() { u.pool.Wait() }

func (u *Usecase) acquire(id int64) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, busy := u.inflight[id]; busy {
		return false
	}
	u.inflight[id] = struct{}{}
	return true
}

func (u *Usecase) release(id int64) {
	u.mu.Lock()
	delete(u.inflight, id)
	u.mu.Unlock()
}

func (u *Usecase) runScheduled(ctx context.Context, m *monitor.Monitor) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, u.policy.TaskTimeout)
	defer cancel()

	_, err := u.run(ctx, m, "scheduled")
	if err == nil {
		return nil
	}
	u.log.Error("scheduled check failed", zap.Int64("monitor_id", m.ID), zap.Error(err))
	if u.policy.ErrorBackoff {
		u.backoff(context.WithoutCancel(ctx), m)
	}
	return nil
}

// backoff pulls the next due time closer so a monitor whose bookkeeping
// failed is retried within min(interval, MaxBackoff).
func (u *Usecase) backoff(ctx context.Context, m *monitor.Monitor) {
	wait := m.Interval()
	if wait > u.policy.MaxBackoff {
		wait = u.policy.MaxBackoff
	}
	retryAt := u.d.Clock.Now().Add(wait)
	if m.NextCheckTime != nil && !retryAt.Before(*m.NextCheckTime) {
		return
	}
	if err := u.d.Monitors.AdvanceNextCheck(ctx, m.ID, retryAt); err != nil {
		u.log.Warn("apply error backoff", zap.Int64("monitor_id", m.ID), zap.Error(err))
		return
	}
	u.log.Info("next check pulled forward after failure", zap.Int64("monitor_id", m.ID), zap.Time("next_check_time", retryAt))
}

// TriggerManual runs the monitor now, outside the schedule. The due time
// is left untouched.
func (u *Usecase) TriggerManual(ctx context.Context, id int64) (*check.Outcome, error) {
	m, err := u.d.Monitors.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get monitor %d: %w", id, err)
	}
	return u.TriggerManualMonitor(ctx, m)
}

func (u *Usecase) TriggerManualMonitor(ctx context.Context, m *monitor.Monitor) (*check.Outcome, error) {
	return u.run(ctx, m, "manual")
}

// RunMonitor is the per-monitor pipeline shared by scheduled and manual
// runs. The outcome is returned even when bookkeeping or alerting failed.
func (u *Usecase) RunMonitor(ctx context.Context, m *monitor.Monitor) (*check.Outcome, error) {
	return u.run(ctx, m, "direct")
}

func (u *Usecase) run(ctx context.Context, m *monitor.Monitor, trigger string) (*check.Outcome, error) {
	ctx, span := otel.Tracer("scheduler.uc").Start(ctx, "scheduler.run_monitor",
		trace.WithAttributes(
			attribute.Int64("monitor.id", m.ID),
			attribute.String("check.trigger", trigger),
		),
	)
	defer span.End()

	mInflight.Inc()
	defer mInflight.Dec()

	o := u.d.Prober.Execute(ctx, m)
	mChecks.WithLabelValues(trigger, string(o.Status)).Inc()

	tr := u.d.Machine.Apply(ctx, m, o)

	var errs []error
	if err := u.persist(ctx, m, o, tr.Stats); err != nil {
		errs = append(errs, err)
	}
	tr.Stats.ApplyTo(m)

	if tr.Intent != nil && u.d.Dispatcher != nil {
		if _, err := u.d.Dispatcher.Deliver(ctx, m, o, tr.Intent); err != nil {
			errs = append(errs, fmt.Errorf("alert: %w", err))
		}
	}

	u.d.Events.EmitCheckEvent(ctx, m.UserID, m, o)

	if tr.Changed {
		u.log.Info("monitor status changed",
			zap.Int64("monitor_id", m.ID),
			zap.String("from", string(tr.Previous)),
			zap.String("to", string(tr.Next)),
		)
	}
	err := errors.Join(errs...)
	if err != nil {
		span.RecordError(err)
	}
	return o, err
}

func (u *Usecase) persist(ctx context.Context, m *monitor.Monitor, o *check.Outcome, st monitor.StatsUpdate) error {
	write := func(ctx context.Context) error {
		if err := u.d.Results.Create(ctx, o); err != nil {
			return fmt.Errorf("store outcome: %w", err)
		}
		if err := u.d.Monitors.UpdateStats(ctx, m.ID, st); err != nil {
			return fmt.Errorf("update stats: %w", err)
		}
		return nil
	}
	if u.d.Tx == nil {
		return write(ctx)
	}
	if err := u.d.Tx.WithTx(ctx, write); err != nil {
		// the row was rolled back with the transaction
		o.ID = 0
		return err
	}
	return nil
}
