package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/check"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/monitor"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/realtime"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/repository/memory"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/services/scheduler"
)

type schedulerMock struct{ mock.Mock }

func (s *schedulerMock) Start(ctx context.Context) error { return s.Called().Error(0) }
func (s *schedulerMock) Stop()                           { s.Called() }
func (s *schedulerMock) Status() scheduler.Status {
	return s.Called().Get(0).(scheduler.Status)
}

type triggerMock struct{ mock.Mock }

func (t *triggerMock) TriggerManual(ctx context.Context, id int64) (*check.Outcome, error) {
	args := t.Called(id)
	o, _ := args.Get(0).(*check.Outcome)
	return o, args.Error(1)
}

func newServer(t *testing.T) (*Server, *schedulerMock, *triggerMock, *httptest.Server) {
	t.Helper()
	sched, trig := &schedulerMock{}, &triggerMock{}
	s := &Server{
		Scheduler: sched,
		Trigger:   trig,
		Hub:       realtime.NewHub(nil, nil),
		Results:   memory.NewResults(),
		Alerts:    memory.NewAlerts(),
		Health:    func(context.Context) error { return nil },
	}
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return s, sched, trig, srv
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealthAndMetrics(t *testing.T) {
	_, _, _, srv := newServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSchedulerStatusAndControl(t *testing.T) {
	_, sched, _, srv := newServer(t)
	sched.On("Status").Return(scheduler.Status{IsRunning: true, TickPeriod: time.Minute, Period: "1m0s"})
	sched.On("Start").Return(scheduler.ErrAlreadyRunning).Once()
	sched.On("Stop").Return()

	resp, err := http.Get(srv.URL + "/v1/scheduler/status")
	require.NoError(t, err)
	var st map[string]any
	decode(t, resp, &st)
	assert.Equal(t, true, st["is_running"])
	assert.Equal(t, "1m0s", st["tick_period"])

	resp, err = http.Post(srv.URL+"/v1/scheduler/start", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/v1/scheduler/stop", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	sched.AssertCalled(t, "Stop")
}

func TestManualCheck(t *testing.T) {
	_, _, trig, srv := newServer(t)
	code := 200
	trig.On("TriggerManual", int64(5)).Return(&check.Outcome{ID: 1, MonitorID: 5, Status: check.ResultSuccess, StatusCode: &code}, nil)
	trig.On("TriggerManual", int64(6)).Return(&check.Outcome{MonitorID: 6, Status: check.ResultFailure}, errors.New("store outcome: down"))
	trig.On("TriggerManual", int64(7)).Return(nil, monitor.ErrNotFound)

	resp, err := http.Post(srv.URL+"/v1/monitors/5/check", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body checkResponse
	decode(t, resp, &body)
	require.NotNil(t, body.Outcome)
	assert.Equal(t, check.ResultSuccess, body.Outcome.Status)
	assert.Empty(t, body.Error)

	resp, err = http.Post(srv.URL+"/v1/monitors/6/check", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body = checkResponse{}
	decode(t, resp, &body)
	assert.Contains(t, body.Error, "store outcome")

	resp, err = http.Post(srv.URL+"/v1/monitors/7/check", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/v1/monitors/abc/check", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestResultHistory(t *testing.T) {
	s, _, _, srv := newServer(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Results.Create(context.Background(), &check.Outcome{MonitorID: 9, Status: check.ResultSuccess}))
	}

	resp, err := http.Get(srv.URL + "/v1/monitors/9/results?limit=2")
	require.NoError(t, err)
	var out []check.Outcome
	decode(t, resp, &out)
	require.Len(t, out, 2)
	assert.Equal(t, int64(3), out[0].ID)

	resp, err = http.Get(srv.URL + "/v1/monitors/9/alerts")
	require.NoError(t, err)
	var alerts []any
	decode(t, resp, &alerts)
	assert.Empty(t, alerts)
}

func TestWebsocketRequiresOwner(t *testing.T) {
	_, _, _, srv := newServer(t)
	resp, err := http.Get(srv.URL + "/v1/ws")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws?user_id=4"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var hello map[string]any
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "subscribed", hello["type"])
}
