package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

const DefaultTickPeriod = time.Minute

var ErrAlreadyRunning = errors.New("scheduler already running")

type RunnerConfig struct {
	Tick time.Duration
	// InitOnStart runs Usecase.Init before the first tick.
	InitOnStart bool
}

type Status struct {
	IsRunning  bool          `json:"is_running"`
	TickPeriod time.Duration `json:"-"`
	// Period is TickPeriod rendered for JSON.
	Period    string    `json:"tick_period"`
	StartedAt time.Time `json:"started_at,omitempty"`
	InFlight  int       `json:"in_flight"`
	PoolCap   int       `json:"pool_cap"`
}

// Runner owns the tick loop. Each Runner is an independent instance; a
// process normally creates one.
type Runner struct {
	Log *zap.Logger
	UC  *Usecase
	Cfg RunnerConfig

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	startedAt time.Time
}

func New(log *zap.Logger, uc *Usecase, cfg RunnerConfig) *Runner {
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTickPeriod
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		Log: log.With(zap.String("component", "scheduler.runner")),
		UC:  uc,
		Cfg: cfg,
	}
}

// Start launches the loop in the background and returns immediately.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.cancel, r.done, r.startedAt = cancel, done, time.Now().UTC()

	go func() {
		defer close(done)
		defer r.finished(done, cancel)
		if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.Log.Error("scheduler loop stopped", zap.Error(err))
		}
	}()
	r.Log.Info("scheduler started", zap.Duration("tick", r.Cfg.Tick))
	return nil
}

// finished clears the running state when the loop exits on its own, for
// example because the parent context of Start was cancelled.
func (r *Runner) finished(done chan struct{}, cancel context.CancelFunc) {
	cancel()
	r.mu.Lock()
	if r.done == done {
		r.cancel, r.done = nil, nil
	}
	r.mu.Unlock()
}

// Stop ends the loop and waits for checks already dispatched. Calling Stop
// on a stopped runner is a no-op.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	r.UC.Wait()
	r.Log.Info("scheduler stopped")
}

func (r *Runner) Status() Status {
	r.mu.Lock()
	running, started := r.cancel != nil, r.startedAt
	r.mu.Unlock()

	st := Status{
		IsRunning:  running,
		TickPeriod: r.Cfg.Tick,
		Period:     r.Cfg.Tick.String(),
		InFlight:   r.UC.pool.InUse(),
		PoolCap:    r.UC.pool.Cap(),
	}
	if running {
		st.StartedAt = started
	}
	return st
}

func (r *Runner) tick(ctx context.Context) {
	start := time.Now()
	st, err := r.UC.Tick(ctx)
	if err != nil {
		mErr.Inc()
		r.Log.Warn("tick error", zap.Error(err))
	}
	if st.Due > 0 {
		mDue.Add(float64(st.Due))
		mDispatched.Add(float64(st.Dispatched))
		mSkipped.Add(float64(st.Skipped))
		if st.Errors > 0 {
			mErr.Add(float64(st.Errors))
		}
		r.Log.Debug("scheduled batch",
			zap.Int("due", st.Due),
			zap.Int("dispatched", st.Dispatched),
			zap.Int("skipped", st.Skipped),
			zap.Int("errors", st.Errors),
		)
	}
	mLoopDur.Observe(time.Since(start).Seconds())
}

// Run blocks until ctx is done. The first tick runs immediately.
func (r *Runner) Run(ctx context.Context) error {
	if r.Cfg.InitOnStart {
		if _, err := r.UC.Init(ctx); err != nil {
			r.Log.Warn("init next check times", zap.Error(err))
		}
	}

	ticker := time.NewTicker(r.Cfg.Tick)
	defer ticker.Stop()

	r.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}
