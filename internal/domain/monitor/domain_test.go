package monitor

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainsValuesKeepsOrder(t *testing.T) {
	var r ValidationRules
	err := json.Unmarshal([]byte(`{"containsValue":{"zeta":"z","alpha":"a","mid":5}}`), &r)
	require.NoError(t, err)

	require.Len(t, r.ContainsValue, 3)
	assert.Equal(t, "zeta", r.ContainsValue[0].Label)
	assert.Equal(t, "alpha", r.ContainsValue[1].Label)
	assert.Equal(t, "mid", r.ContainsValue[2].Label)
	assert.Equal(t, "5", r.ContainsValue[2].Value)

	b, err := json.Marshal(r.ContainsValue)
	require.NoError(t, err)
	assert.Equal(t, `{"zeta":"z","alpha":"a","mid":"5"}`, string(b))
}

func TestContainsValuesRejectsArray(t *testing.T) {
	var c ContainsValues
	assert.Error(t, json.Unmarshal([]byte(`["a"]`), &c))
}

func TestNextAfterSchedule(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m := &Monitor{CheckInterval: 5}

	assert.Equal(t, now.Add(5*time.Minute), m.NextAfterSchedule(now))

	prev := now.Add(-30 * time.Second)
	m.NextCheckTime = &prev
	assert.Equal(t, prev.Add(5*time.Minute), m.NextAfterSchedule(now))

	m.CheckInterval = 0
	assert.Equal(t, time.Minute, m.Interval())
}

func TestStatsUpdateApplyTo(t *testing.T) {
	m := &Monitor{Status: StatusPending, TotalChecks: 2, SuccessfulChecks: 1, ConsecutiveFailures: 1}
	at := time.Now()

	StatsUpdate{Status: StatusUp, LastCheckTime: at, LastLatency: 12, IsSuccess: true}.ApplyTo(m)

	assert.Equal(t, StatusUp, m.Status)
	assert.Equal(t, 3, m.TotalChecks)
	assert.Equal(t, 2, m.SuccessfulChecks)
	assert.Equal(t, 0, m.ConsecutiveFailures)
	require.NotNil(t, m.LastLatency)
	assert.Equal(t, int64(12), *m.LastLatency)
}

func TestCloneIsDeep(t *testing.T) {
	code := 200
	next := time.Now()
	m := &Monitor{
		AlertEmails:   []string{"a@example.com"},
		NextCheckTime: &next,
		Validation:    &ValidationRules{StatusCode: &code},
	}
	cp := m.Clone()
	cp.AlertEmails[0] = "b@example.com"
	*cp.Validation.StatusCode = 500
	*cp.NextCheckTime = next.Add(time.Hour)

	assert.Equal(t, "a@example.com", m.AlertEmails[0])
	assert.Equal(t, 200, *m.Validation.StatusCode)
	assert.Equal(t, next, *m.NextCheckTime)
}
