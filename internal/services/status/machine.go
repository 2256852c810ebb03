package status

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/alert"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/check"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/monitor"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/notification"
)

// Decision is the pure result of comparing the previous status with a
// new outcome.
type Decision struct {
	Previous monitor.Status
	Next     monitor.Status
	Changed  bool
	// Alert is empty when no alert intent should be produced.
	Alert alert.Type
}

// Evaluate applies the transition rules. The first check of a monitor only
// sets a baseline; recovery alerts are produced only when enabled.
func Evaluate(prev monitor.Status, success, recoveryEnabled bool) Decision {
	d := Decision{Previous: prev, Next: monitor.StatusDown}
	if success {
		d.Next = monitor.StatusUp
	}
	d.Changed = prev != d.Next
	if !d.Changed || prev == monitor.StatusPending || prev == "" {
		return d
	}
	switch d.Next {
	case monitor.StatusDown:
		d.Alert = alert.TypeFailure
	case monitor.StatusUp:
		if recoveryEnabled {
			d.Alert = alert.TypeRecovery
		}
	}
	return d
}

type Transition struct {
	Decision
	Stats monitor.StatsUpdate
	// Intent is nil when the transition is not alert-worthy.
	Intent *alert.Intent
}

type Machine struct {
	settings alert.Settings
	clock    notification.Clock
	log      *zap.Logger
}

func NewMachine(settings alert.Settings, clock notification.Clock, log *zap.Logger) *Machine {
	if clock == nil {
		clock = notification.SystemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Machine{settings: settings, clock: clock, log: log.With(zap.String("component", "status.machine"))}
}

// Apply interprets the outcome for m. It does not mutate m or persist
// anything.
func (s *Machine) Apply(ctx context.Context, m *monitor.Monitor, o *check.Outcome) Transition {
	prev := m.Status
	if prev == "" {
		prev = monitor.StatusPending
	}
	success := o.Success()

	d := Evaluate(prev, success, s.recoveryEnabled(ctx))

	failures := 0
	if !success {
		failures = m.ConsecutiveFailures + 1
	}
	checkedAt := o.CheckedAt
	if checkedAt.IsZero() {
		checkedAt = s.clock.Now()
	}

	tr := Transition{
		Decision: d,
		Stats: monitor.StatsUpdate{
			Status:              d.Next,
			LastCheckTime:       checkedAt,
			LastLatency:         o.LatencyMs,
			ConsecutiveFailures: failures,
			IsSuccess:           success,
		},
	}
	if d.Alert == "" {
		return tr
	}

	tr.Intent = &alert.Intent{
		MonitorID:  m.ID,
		UserID:     m.UserID,
		Type:       d.Alert,
		Message:    message(m, o, d.Alert),
		Recipients: s.recipients(ctx, m),
		CreatedAt:  s.clock.Now(),
	}
	return tr
}

func (s *Machine) recoveryEnabled(ctx context.Context) bool {
	if s.settings == nil {
		return true
	}
	on, err := s.settings.RecoveryAlertsEnabled(ctx)
	if err != nil {
		s.log.Warn("read recovery alert setting, assuming enabled", zap.Error(err))
		return true
	}
	return on
}

func (s *Machine) recipients(ctx context.Context, m *monitor.Monitor) []string {
	out := make([]string, 0, len(m.AlertEmails))
	for _, e := range m.AlertEmails {
		if e != "" {
			out = append(out, e)
		}
	}
	if len(out) > 0 || s.settings == nil {
		return out
	}
	def, err := s.settings.DefaultRecipient(ctx)
	if err != nil {
		s.log.Warn("read default alert recipient", zap.Int64("monitor_id", m.ID), zap.Error(err))
		return out
	}
	if def != "" {
		out = append(out, def)
	}
	return out
}

func message(m *monitor.Monitor, o *check.Outcome, t alert.Type) string {
	name := m.Name
	if name == "" {
		name = m.URL
	}
	if t == alert.TypeRecovery {
		return fmt.Sprintf("%s is back up (%d ms)", name, o.LatencyMs)
	}
	return fmt.Sprintf("%s is down: %s", name, o.Reason())
}
