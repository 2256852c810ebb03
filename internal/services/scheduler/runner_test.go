package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/monitor"
)

func TestRunnerStartStop(t *testing.T) {
	e := newEnv()
	uc := e.usecase(stubProber{clock: e.clock}, Policy{}, nil)
	m := e.monitors.Put(&monitor.Monitor{URL: "http://x", CheckInterval: 5, Enabled: true})
	r := New(zap.NewNop(), uc, RunnerConfig{Tick: time.Hour, InitOnStart: true})

	assert.False(t, r.Status().IsRunning)
	require.NoError(t, r.Start(context.Background()))
	assert.ErrorIs(t, r.Start(context.Background()), ErrAlreadyRunning)

	st := r.Status()
	assert.True(t, st.IsRunning)
	assert.Equal(t, time.Hour, st.TickPeriod)
	assert.Equal(t, "1h0m0s", st.Period)
	assert.Equal(t, DefaultConcurrency, st.PoolCap)

	assert.Eventually(t, func() bool {
		got, err := e.monitors.GetByID(context.Background(), m.ID)
		return err == nil && got.NextCheckTime != nil
	}, time.Second, 10*time.Millisecond)

	r.Stop()
	r.Stop()
	assert.False(t, r.Status().IsRunning)

	require.NoError(t, r.Start(context.Background()))
	r.Stop()
}

func TestRunnerFirstTickIsImmediate(t *testing.T) {
	e := newEnv()
	uc := e.usecase(stubProber{clock: e.clock}, Policy{}, nil)
	m := e.monitors.Put(&monitor.Monitor{URL: "http://x", CheckInterval: 5, Enabled: true, NextCheckTime: tp(t0)})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(nil, uc, RunnerConfig{Tick: time.Hour}).Run(ctx) }()

	assert.Eventually(t, func() bool {
		got, err := e.monitors.GetByID(context.Background(), m.ID)
		return err == nil && got.TotalChecks == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	uc.Wait()
}

func TestRunnerParentCancelClearsState(t *testing.T) {
	e := newEnv()
	uc := e.usecase(stubProber{clock: e.clock}, Policy{}, nil)
	r := New(zap.NewNop(), uc, RunnerConfig{Tick: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, r.Start(ctx))
	assert.True(t, r.Status().IsRunning)

	cancel()
	assert.Eventually(t, func() bool { return !r.Status().IsRunning }, time.Second, 10*time.Millisecond)

	require.NoError(t, r.Start(context.Background()))
	assert.True(t, r.Status().IsRunning)
	r.Stop()
	assert.False(t, r.Status().IsRunning)
}

func TestPoolDefaults(t *testing.T) {
	p := NewPool(0, nil)
	assert.Equal(t, DefaultConcurrency, p.Cap())
	assert.Equal(t, 0, p.InUse())
}
