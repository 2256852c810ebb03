package notifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/alert"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/check"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/monitor"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/obs/retry"
)

type recordingChannel struct {
	name string
	err  error
	got  []Message
}

func (c *recordingChannel) Name() string { return c.name }

func (c *recordingChannel) Deliver(_ context.Context, msg Message) error {
	c.got = append(c.got, msg)
	return c.err
}

func sampleMonitor() *monitor.Monitor {
	return &monitor.Monitor{ID: 3, Name: "checkout", URL: "https://shop.example.com/health", ConsecutiveFailures: 2}
}

func TestNotifierFansOutAndAggregatesErrors(t *testing.T) {
	ok := &recordingChannel{name: "ok"}
	bad := &recordingChannel{name: "bad", err: errors.New("boom")}
	n := New("", nil, bad, ok)
	assert.Equal(t, []string{"bad", "ok"}, n.Channels())

	err := n.SendFailureAlert(context.Background(), sampleMonitor(), &check.Outcome{ErrorMessage: "Request failed"}, []string{"a@x"})
	require.Error(t, err)
	var de *check.DeliveryError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "bad", de.Channel)

	require.Len(t, ok.got, 1, "a failing channel must not stop the others")
	assert.Equal(t, alert.TypeFailure, ok.got[0].Type)
	assert.Equal(t, []string{"a@x"}, ok.got[0].Recipients)
}

func TestNotifierWithoutChannels(t *testing.T) {
	err := New("x", nil).SendRecoveryAlert(context.Background(), sampleMonitor(), &check.Outcome{}, nil)
	assert.Error(t, err)
}

func TestRenderFailure(t *testing.T) {
	code := 502
	msg := Render("MonitorHealth", alert.TypeFailure, sampleMonitor(), &check.Outcome{
		StatusCode:       &code,
		LatencyMs:        81,
		ValidationErrors: []string{"Expected status code 200, got 502"},
		Diagnostics:      []string{"Status: 502 Bad Gateway"},
		CheckedAt:        time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
	}, nil)

	assert.Equal(t, "[MonitorHealth] DOWN: checkout", msg.Subject)
	assert.Contains(t, msg.Body, "Reason: Expected status code 200, got 502")
	assert.Contains(t, msg.Body, "Status code: 502")
	assert.Contains(t, msg.Body, "Response time: 81 ms")
	assert.Contains(t, msg.Body, "Checked at: 2024-03-01T08:00:00Z")
	assert.Contains(t, msg.Body, "Consecutive failures: 2")
	assert.Contains(t, msg.Body, "Status: 502 Bad Gateway")
}

func TestRenderRecoveryFallsBackToURL(t *testing.T) {
	m := sampleMonitor()
	m.Name = ""
	msg := Render("MH", alert.TypeRecovery, m, &check.Outcome{LatencyMs: 9}, nil)
	assert.Equal(t, "[MH] RECOVERED: https://shop.example.com/health", msg.Subject)
	assert.Contains(t, msg.Body, "is back up")
	assert.NotContains(t, msg.Body, "Consecutive failures")
}

type flakyChannel struct {
	failures int
	err      error
	calls    int
}

func (c *flakyChannel) Name() string { return "flaky" }

func (c *flakyChannel) Deliver(context.Context, Message) error {
	c.calls++
	if c.calls <= c.failures {
		return c.err
	}
	return nil
}

type noWait struct{}

func (noWait) Next(int) time.Duration { return time.Millisecond }

func TestNotifierRetriesChannel(t *testing.T) {
	ch := &flakyChannel{failures: 2, err: errors.New("421 try later")}
	n := New("", nil, ch).WithRetry(retry.Policy{Name: "alerts", Attempts: 3, Backoff: noWait{}})

	require.NoError(t, n.SendFailureAlert(context.Background(), sampleMonitor(), &check.Outcome{}, []string{"a@x"}))
	assert.Equal(t, 3, ch.calls)
}

func TestNotifierDoesNotRetryPermanent(t *testing.T) {
	ch := &flakyChannel{failures: 5, err: retry.Permanent(errors.New("550 no such user"))}
	n := New("", nil, ch).WithRetry(retry.Policy{Attempts: 3, Backoff: noWait{}})

	err := n.SendFailureAlert(context.Background(), sampleMonitor(), &check.Outcome{}, []string{"a@x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "550 no such user")
	assert.Equal(t, 1, ch.calls)
}
