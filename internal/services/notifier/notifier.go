package notifier

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/alert"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/check"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/monitor"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/notification"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/obs/retry"
)

// Channel delivers a rendered alert over one medium.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, msg Message) error
}

var _ notification.Notifier = (*Notifier)(nil)

// Notifier renders alerts and fans them out to every channel. A failing
// channel does not stop the others.
type Notifier struct {
	channels []Channel
	product  string
	retry    *retry.Policy
	log      *zap.Logger
}

func New(product string, log *zap.Logger, channels ...Channel) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	if product == "" {
		product = "MonitorHealth"
	}
	var cs []Channel
	for _, c := range channels {
		if c != nil {
			cs = append(cs, c)
		}
	}
	return &Notifier{channels: cs, product: product, log: log.With(zap.String("component", "notifier"))}
}

// WithRetry retries each channel independently under p. Without it every
// channel gets a single attempt.
func (n *Notifier) WithRetry(p retry.Policy) *Notifier {
	cp := *n
	cp.retry = &p
	return &cp
}

func (n *Notifier) Channels() []string {
	out := make([]string, 0, len(n.channels))
	for _, c := range n.channels {
		out = append(out, c.Name())
	}
	return out
}

func (n *Notifier) SendFailureAlert(ctx context.Context, m *monitor.Monitor, o *check.Outcome, recipients []string) error {
	return n.send(ctx, Render(n.product, alert.TypeFailure, m, o, recipients))
}

func (n *Notifier) SendRecoveryAlert(ctx context.Context, m *monitor.Monitor, o *check.Outcome, recipients []string) error {
	return n.send(ctx, Render(n.product, alert.TypeRecovery, m, o, recipients))
}

func (n *Notifier) send(ctx context.Context, msg Message) error {
	if len(n.channels) == 0 {
		return errors.New("no notification channels configured")
	}
	var errs []error
	for _, c := range n.channels {
		if err := n.deliver(ctx, c, msg); err != nil {
			n.log.Warn("channel delivery failed",
				zap.String("channel", c.Name()), zap.Int64("monitor_id", msg.MonitorID), zap.Error(err))
			errs = append(errs, &check.DeliveryError{Channel: c.Name(), Err: err})
			continue
		}
		n.log.Debug("alert delivered", zap.String("channel", c.Name()), zap.Int64("monitor_id", msg.MonitorID))
	}
	return errors.Join(errs...)
}

func (n *Notifier) deliver(ctx context.Context, c Channel, msg Message) error {
	if n.retry == nil {
		return c.Deliver(ctx, msg)
	}
	p := *n.retry
	p.Name = n.retry.Name + "." + c.Name()
	return retry.Do(ctx, func(ctx context.Context) error { return c.Deliver(ctx, msg) }, p)
}
