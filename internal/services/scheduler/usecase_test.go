package scheduler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/alert"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/check"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/monitor"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/repository/memory"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/services/probe"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/services/probe/auth"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/services/status"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type sentAlert struct {
	monitorID int64
	typ       alert.Type
	to        []string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentAlert
}

func (n *recordingNotifier) SendFailureAlert(_ context.Context, m *monitor.Monitor, _ *check.Outcome, to []string) error {
	n.add(sentAlert{m.ID, alert.TypeFailure, to})
	return nil
}

func (n *recordingNotifier) SendRecoveryAlert(_ context.Context, m *monitor.Monitor, _ *check.Outcome, to []string) error {
	n.add(sentAlert{m.ID, alert.TypeRecovery, to})
	return nil
}

func (n *recordingNotifier) add(a sentAlert) {
	n.mu.Lock()
	n.sent = append(n.sent, a)
	n.mu.Unlock()
}

func (n *recordingNotifier) all() []sentAlert {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentAlert(nil), n.sent...)
}

type stubProber struct {
	clock *testClock
	fn    func(m *monitor.Monitor) check.Result
}

func (p stubProber) Execute(_ context.Context, m *monitor.Monitor) *check.Outcome {
	res := check.ResultSuccess
	if p.fn != nil {
		res = p.fn(m)
	}
	return &check.Outcome{MonitorID: m.ID, UserID: m.UserID, Status: res, LatencyMs: 5, CheckedAt: p.clock.Now()}
}

type env struct {
	clock    *testClock
	monitors *memory.Monitors
	results  *memory.Results
	alerts   *memory.Alerts
	notifier *recordingNotifier
}

func newEnv() *env {
	return &env{
		clock:    &testClock{t: t0},
		monitors: memory.NewMonitors(),
		results:  memory.NewResults(),
		alerts:   memory.NewAlerts(),
		notifier: &recordingNotifier{},
	}
}

func (e *env) usecase(p Prober, policy Policy, owners OwnerSource) *Usecase {
	settings := memory.NewSettings("ops@example.com", true)
	return NewUC(Deps{
		Monitors:   e.monitors,
		Results:    e.results,
		Prober:     p,
		Machine:    status.NewMachine(settings, e.clock, zap.NewNop()),
		Dispatcher: status.NewDispatcher(e.notifier, e.alerts, zap.NewNop()),
		Owners:     owners,
		Clock:      e.clock,
	}, policy, zap.NewNop())
}

func (e *env) get(t *testing.T, id int64) *monitor.Monitor {
	t.Helper()
	m, err := e.monitors.GetByID(context.Background(), id)
	require.NoError(t, err)
	return m
}

func tp(t time.Time) *time.Time { return &t }

func TestLifecycleAgainstHTTPTarget(t *testing.T) {
	var failing atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	e := newEnv()
	cfg := probe.Config{Timeout: 2 * time.Second}
	client := probe.NewHTTPClient(cfg)
	exec := probe.NewExecutor(client, auth.NewResolver(client, probe.DefaultUserAgent, zap.NewNop()), cfg, zap.NewNop())
	uc := e.usecase(exec, Policy{}, nil)

	code := 200
	m := e.monitors.Put(&monitor.Monitor{
		UserID: 1, Name: "api", URL: srv.URL, CheckInterval: 5, Enabled: true,
		Validation: &monitor.ValidationRules{StatusCode: &code},
	})
	ctx := context.Background()

	n, err := uc.Init(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NotNil(t, e.get(t, m.ID).NextCheckTime)
	assert.Equal(t, t0.Add(time.Minute), *e.get(t, m.ID).NextCheckTime)

	st, err := uc.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, st.Due)

	e.clock.Set(t0.Add(time.Minute))
	st, err = uc.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Dispatched)
	uc.Wait()

	got := e.get(t, m.ID)
	assert.Equal(t, monitor.StatusUp, got.Status)
	assert.Equal(t, t0.Add(6*time.Minute), *got.NextCheckTime)
	assert.Equal(t, 1, got.TotalChecks)
	assert.Empty(t, e.alerts.All())

	failing.Store(true)
	e.clock.Set(t0.Add(6 * time.Minute))
	_, err = uc.Tick(ctx)
	require.NoError(t, err)
	uc.Wait()

	got = e.get(t, m.ID)
	assert.Equal(t, monitor.StatusDown, got.Status)
	assert.Equal(t, 1, got.ConsecutiveFailures)
	recs := e.alerts.All()
	require.Len(t, recs, 1)
	assert.Equal(t, alert.TypeFailure, recs[0].Type)
	assert.True(t, recs[0].Sent)
	assert.Equal(t, []string{"ops@example.com"}, recs[0].Recipients)

	failing.Store(false)
	e.clock.Set(t0.Add(11 * time.Minute))
	_, err = uc.Tick(ctx)
	require.NoError(t, err)
	uc.Wait()

	got = e.get(t, m.ID)
	assert.Equal(t, monitor.StatusUp, got.Status)
	assert.Equal(t, 0, got.ConsecutiveFailures)
	assert.Equal(t, 3, got.TotalChecks)
	assert.Equal(t, 2, got.SuccessfulChecks)

	sent := e.notifier.all()
	require.Len(t, sent, 2)
	assert.Equal(t, alert.TypeFailure, sent[0].typ)
	assert.Equal(t, alert.TypeRecovery, sent[1].typ)

	outcomes, err := e.results.ListByMonitor(ctx, m.ID, 10)
	require.NoError(t, err)
	assert.Len(t, outcomes, 3)
}

func TestTickAdvancesFromPreviousDueTime(t *testing.T) {
	e := newEnv()
	uc := e.usecase(stubProber{clock: e.clock}, Policy{}, nil)
	m := e.monitors.Put(&monitor.Monitor{UserID: 1, URL: "http://x", CheckInterval: 5, Enabled: true, NextCheckTime: tp(t0)})

	e.clock.Set(t0.Add(30 * time.Second))
	_, err := uc.Tick(context.Background())
	require.NoError(t, err)
	uc.Wait()

	assert.Equal(t, t0.Add(5*time.Minute), *e.get(t, m.ID).NextCheckTime)
}

func TestTickRespectsPoolCap(t *testing.T) {
	e := newEnv()
	var cur, peak, total atomic.Int32
	p := stubProber{clock: e.clock, fn: func(*monitor.Monitor) check.Result {
		n := cur.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		cur.Add(-1)
		total.Add(1)
		return check.ResultSuccess
	}}
	uc := e.usecase(p, Policy{Concurrency: 10}, nil)
	for i := 0; i < 25; i++ {
		e.monitors.Put(&monitor.Monitor{UserID: 1, URL: "http://x", CheckInterval: 1, Enabled: true, NextCheckTime: tp(t0)})
	}

	st, err := uc.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 25, st.Dispatched)
	uc.Wait()

	assert.Equal(t, int32(25), total.Load())
	assert.LessOrEqual(t, peak.Load(), int32(10))
	assert.Greater(t, peak.Load(), int32(1))
}

func TestNoSecondRunWhileInFlight(t *testing.T) {
	e := newEnv()
	release := make(chan struct{})
	var calls atomic.Int32
	p := stubProber{clock: e.clock, fn: func(*monitor.Monitor) check.Result {
		calls.Add(1)
		<-release
		return check.ResultSuccess
	}}
	uc := e.usecase(p, Policy{}, nil)
	// Far overdue: one interval forward is still in the past.
	m := e.monitors.Put(&monitor.Monitor{UserID: 1, URL: "http://x", CheckInterval: 1, Enabled: true, NextCheckTime: tp(t0.Add(-10 * time.Minute))})

	st, err := uc.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, st.Dispatched)

	st, err = uc.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, st.Due)
	assert.Equal(t, 0, st.Dispatched)
	assert.Equal(t, 1, st.Skipped)

	close(release)
	uc.Wait()
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, t0.Add(-9*time.Minute), *e.get(t, m.ID).NextCheckTime)
}

func TestPanickingTaskDoesNotAffectOthers(t *testing.T) {
	e := newEnv()
	p := stubProber{clock: e.clock, fn: func(m *monitor.Monitor) check.Result {
		if m.Name == "bad" {
			panic("boom")
		}
		return check.ResultSuccess
	}}
	uc := e.usecase(p, Policy{}, nil)
	bad := e.monitors.Put(&monitor.Monitor{UserID: 1, Name: "bad", URL: "http://x", CheckInterval: 1, Enabled: true, NextCheckTime: tp(t0)})
	good := e.monitors.Put(&monitor.Monitor{UserID: 1, Name: "good", URL: "http://y", CheckInterval: 1, Enabled: true, NextCheckTime: tp(t0)})

	_, err := uc.Tick(context.Background())
	require.NoError(t, err)
	uc.Wait()

	assert.Equal(t, monitor.StatusUp, e.get(t, good.ID).Status)
	assert.Equal(t, monitor.StatusPending, e.get(t, bad.ID).Status)
	// Advanced before dispatch, so the panic does not leave it due.
	assert.Equal(t, t0.Add(time.Minute), *e.get(t, bad.ID).NextCheckTime)

	e.clock.Set(t0.Add(time.Minute))
	st, err := uc.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, st.Dispatched)
	uc.Wait()
}

func TestManualTriggerKeepsSchedule(t *testing.T) {
	e := newEnv()
	uc := e.usecase(stubProber{clock: e.clock, fn: func(*monitor.Monitor) check.Result { return check.ResultFailure }}, Policy{}, nil)
	next := t0.Add(3 * time.Minute)
	m := e.monitors.Put(&monitor.Monitor{UserID: 1, Name: "api", URL: "http://x", CheckInterval: 5, Enabled: true, Status: monitor.StatusUp, NextCheckTime: &next})

	o, err := uc.TriggerManual(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, check.ResultFailure, o.Status)
	assert.NotZero(t, o.ID)

	got := e.get(t, m.ID)
	assert.Equal(t, next, *got.NextCheckTime)
	assert.Equal(t, monitor.StatusDown, got.Status)
	require.Len(t, e.alerts.All(), 1)

	_, err = uc.TriggerManual(context.Background(), 404)
	assert.ErrorIs(t, err, monitor.ErrNotFound)
}

type ownersFunc func() ([]int64, error)

func (f ownersFunc) ActiveOwners(context.Context) ([]int64, error) { return f() }

func TestActiveOwnersOnly(t *testing.T) {
	e := newEnv()
	owners := []int64{2}
	uc := e.usecase(stubProber{clock: e.clock}, Policy{ActiveOwnersOnly: true}, ownersFunc(func() ([]int64, error) { return owners, nil }))
	e.monitors.Put(&monitor.Monitor{UserID: 1, URL: "http://x", CheckInterval: 1, Enabled: true, NextCheckTime: tp(t0)})
	m2 := e.monitors.Put(&monitor.Monitor{UserID: 2, URL: "http://y", CheckInterval: 1, Enabled: true, NextCheckTime: tp(t0)})

	st, err := uc.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, st.Dispatched)
	uc.Wait()
	assert.Equal(t, monitor.StatusUp, e.get(t, m2.ID).Status)

	owners = nil
	e.clock.Set(t0.Add(time.Hour))
	st, err = uc.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TickStats{}, st)

	noSource := e.usecase(stubProber{clock: e.clock}, Policy{ActiveOwnersOnly: true}, nil)
	_, err = noSource.Tick(context.Background())
	assert.ErrorIs(t, err, ErrNoActiveOwners)
}

func TestInitRestartPolicies(t *testing.T) {
	for _, tc := range []struct {
		policy RestartPolicy
		stale  time.Time
		last   time.Time
	}{
		{RestartClamp, t0, t0},
		{RestartCatchUp, t0.Add(-time.Hour), t0.Add(-55 * time.Minute)},
	} {
		t.Run(string(tc.policy), func(t *testing.T) {
			e := newEnv()
			uc := e.usecase(stubProber{clock: e.clock}, Policy{RestartPolicy: tc.policy}, nil)
			stale := e.monitors.Put(&monitor.Monitor{URL: "http://x", CheckInterval: 5, Enabled: true, NextCheckTime: tp(t0.Add(-time.Hour))})
			checked := e.monitors.Put(&monitor.Monitor{URL: "http://y", CheckInterval: 5, Enabled: true, LastCheckTime: tp(t0.Add(-time.Hour))})
			recent := e.monitors.Put(&monitor.Monitor{URL: "http://z", CheckInterval: 5, Enabled: true, LastCheckTime: tp(t0.Add(-2 * time.Minute))})
			disabled := e.monitors.Put(&monitor.Monitor{URL: "http://w", CheckInterval: 5})

			_, err := uc.Init(context.Background())
			require.NoError(t, err)

			assert.Equal(t, tc.stale, *e.get(t, stale.ID).NextCheckTime)
			assert.Equal(t, tc.last, *e.get(t, checked.ID).NextCheckTime)
			assert.Equal(t, t0.Add(3*time.Minute), *e.get(t, recent.ID).NextCheckTime)
			assert.Nil(t, e.get(t, disabled.ID).NextCheckTime)
		})
	}
}

type failingResults struct{ *memory.Results }

func (failingResults) Create(context.Context, *check.Outcome) error { return errors.New("disk full") }

func TestErrorBackoffPullsNextCheckCloser(t *testing.T) {
	e := newEnv()
	settings := memory.NewSettings("", true)
	uc := NewUC(Deps{
		Monitors:   e.monitors,
		Results:    failingResults{e.results},
		Prober:     stubProber{clock: e.clock},
		Machine:    status.NewMachine(settings, e.clock, nil),
		Dispatcher: status.NewDispatcher(e.notifier, e.alerts, nil),
		Clock:      e.clock,
	}, Policy{ErrorBackoff: true}, nil)
	m := e.monitors.Put(&monitor.Monitor{URL: "http://x", CheckInterval: 30, Enabled: true, NextCheckTime: tp(t0)})

	_, err := uc.Tick(context.Background())
	require.NoError(t, err)
	uc.Wait()

	assert.Equal(t, t0.Add(5*time.Minute), *e.get(t, m.ID).NextCheckTime)
}

func TestErrorBackoffOff(t *testing.T) {
	e := newEnv()
	uc := NewUC(Deps{
		Monitors:   e.monitors,
		Results:    failingResults{e.results},
		Prober:     stubProber{clock: e.clock},
		Machine:    status.NewMachine(nil, e.clock, nil),
		Dispatcher: status.NewDispatcher(e.notifier, e.alerts, nil),
		Clock:      e.clock,
	}, Policy{}, nil)
	m := e.monitors.Put(&monitor.Monitor{URL: "http://x", CheckInterval: 30, Enabled: true, NextCheckTime: tp(t0)})

	_, err := uc.Tick(context.Background())
	require.NoError(t, err)
	uc.Wait()

	assert.Equal(t, t0.Add(30*time.Minute), *e.get(t, m.ID).NextCheckTime)
}

type commitFailTx struct{}

func (commitFailTx) WithTx(ctx context.Context, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		return err
	}
	return errors.New("commit: connection reset")
}

func TestRolledBackOutcomeIsNotReferenced(t *testing.T) {
	e := newEnv()
	uc := NewUC(Deps{
		Monitors:   e.monitors,
		Results:    e.results,
		Prober:     stubProber{clock: e.clock, fn: func(*monitor.Monitor) check.Result { return check.ResultFailure }},
		Machine:    status.NewMachine(memory.NewSettings("ops@example.com", true), e.clock, nil),
		Dispatcher: status.NewDispatcher(e.notifier, e.alerts, nil),
		Tx:         commitFailTx{},
		Clock:      e.clock,
	}, Policy{}, nil)
	m := e.monitors.Put(&monitor.Monitor{UserID: 1, Name: "api", URL: "http://x", CheckInterval: 5, Enabled: true, Status: monitor.StatusUp})

	o, err := uc.TriggerManual(context.Background(), m.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "commit")
	require.NotNil(t, o)
	assert.Zero(t, o.ID)

	recs := e.alerts.All()
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Sent)
	assert.Nil(t, recs[0].CheckResultID)
}
