package status

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/alert"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/check"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/monitor"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/notification"
)

const errNoRecipients = "no alert recipients configured"

var mAlerts = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "alerts_total", Help: "Alert intents by type and delivery result",
}, []string{"type", "result"})

// Dispatcher sends alert intents and records every attempt.
type Dispatcher struct {
	notifier notification.Notifier
	alerts   alert.Repo
	log      *zap.Logger
}

func NewDispatcher(n notification.Notifier, alerts alert.Repo, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{notifier: n, alerts: alerts, log: log.With(zap.String("component", "status.dispatcher"))}
}

// Deliver never fails the check: delivery problems end up in the stored
// record. The returned error is only about persisting that record.
func (d *Dispatcher) Deliver(ctx context.Context, m *monitor.Monitor, o *check.Outcome, in *alert.Intent) (*alert.Record, error) {
	rec := &alert.Record{Intent: *in}
	if o != nil && o.ID != 0 {
		id := o.ID
		rec.CheckResultID = &id
	}

	switch {
	case len(in.Recipients) == 0:
		rec.Error = errNoRecipients
		d.log.Warn("alert has no recipients",
			zap.Int64("monitor_id", m.ID), zap.String("type", string(in.Type)))
	case d.notifier == nil:
		rec.Error = "no notifier configured"
	default:
		if err := d.send(ctx, m, o, in); err != nil {
			rec.Error = err.Error()
			d.log.Error("alert delivery failed",
				zap.Int64("monitor_id", m.ID), zap.String("type", string(in.Type)), zap.Error(err))
		} else {
			rec.Sent = true
		}
	}

	result := "sent"
	if !rec.Sent {
		result = "failed"
	}
	mAlerts.WithLabelValues(string(in.Type), result).Inc()

	if d.alerts == nil {
		return rec, nil
	}
	if err := d.alerts.Create(ctx, rec); err != nil {
		return rec, fmt.Errorf("store alert: %w", err)
	}
	return rec, nil
}

func (d *Dispatcher) send(ctx context.Context, m *monitor.Monitor, o *check.Outcome, in *alert.Intent) error {
	var err error
	switch in.Type {
	case alert.TypeRecovery:
		err = d.notifier.SendRecoveryAlert(ctx, m, o, in.Recipients)
	default:
		err = d.notifier.SendFailureAlert(ctx, m, o, in.Recipients)
	}
	if err == nil {
		return nil
	}
	var de *check.DeliveryError
	if errors.As(err, &de) {
		return err
	}
	return &check.DeliveryError{Channel: "notifier", Err: err}
}
