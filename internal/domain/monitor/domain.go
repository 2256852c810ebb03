package monitor

import (
	"errors"
	"time"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusUp      Status = "up"
	StatusDown    Status = "down"
)

var ErrNotFound = errors.New("monitor not found")

type Monitor struct {
	ID           int64            `json:"id"`
	UserID       int64            `json:"user_id"`
	CollectionID *int64           `json:"collection_id,omitempty"`
	Name         string           `json:"name"`
	URL          string           `json:"url"`
	Auth         AuthConfig       `json:"auth"`
	Validation   *ValidationRules `json:"validation,omitempty"`
	// CheckInterval is in minutes.
	CheckInterval int      `json:"check_interval"`
	AlertEmails   []string `json:"alert_emails,omitempty"`
	Enabled       bool     `json:"enabled"`

	Status              Status     `json:"status"`
	NextCheckTime       *time.Time `json:"next_check_time,omitempty"`
	LastCheckTime       *time.Time `json:"last_check_time,omitempty"`
	LastLatency         *int64     `json:"last_latency,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	TotalChecks         int        `json:"total_checks"`
	SuccessfulChecks    int        `json:"successful_checks"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Interval never returns less than one minute.
func (m *Monitor) Interval() time.Duration {
	if m.CheckInterval < 1 {
		return time.Minute
	}
	return time.Duration(m.CheckInterval) * time.Minute
}

// NextAfterSchedule returns the previous due time plus one interval, or
// now plus one interval when the monitor was never scheduled.
func (m *Monitor) NextAfterSchedule(now time.Time) time.Time {
	if m.NextCheckTime == nil {
		return now.Add(m.Interval())
	}
	return m.NextCheckTime.Add(m.Interval())
}

func (m *Monitor) Clone() *Monitor {
	cp := *m
	cp.AlertEmails = append([]string(nil), m.AlertEmails...)
	if m.CollectionID != nil {
		v := *m.CollectionID
		cp.CollectionID = &v
	}
	if m.NextCheckTime != nil {
		v := *m.NextCheckTime
		cp.NextCheckTime = &v
	}
	if m.LastCheckTime != nil {
		v := *m.LastCheckTime
		cp.LastCheckTime = &v
	}
	if m.LastLatency != nil {
		v := *m.LastLatency
		cp.LastLatency = &v
	}
	if m.Validation != nil {
		v := m.Validation.Clone()
		cp.Validation = &v
	}
	return &cp
}

// StatsUpdate is the bookkeeping written after every completed probe.
// TotalChecks and SuccessfulChecks are incremented by the store.
type StatsUpdate struct {
	Status              Status
	LastCheckTime       time.Time
	LastLatency         int64
	ConsecutiveFailures int
	IsSuccess           bool
}

func (u StatsUpdate) ApplyTo(m *Monitor) {
	m.Status = u.Status
	t := u.LastCheckTime
	m.LastCheckTime = &t
	lat := u.LastLatency
	m.LastLatency = &lat
	m.ConsecutiveFailures = u.ConsecutiveFailures
	m.TotalChecks++
	if u.IsSuccess {
		m.SuccessfulChecks++
	}
}
