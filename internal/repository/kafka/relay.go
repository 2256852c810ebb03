package kafka

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/event"
)

var mRelayed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "check_events_relayed_total",
	Help: "Check events read from the topic by result: relayed, own or bad.",
}, []string{"result"})

// EventSink receives check events produced by other engine instances.
type EventSink interface {
	Publish(ev event.CheckEvent)
}

// CheckEventRelay returns a handler that forwards check events written by
// peers to sink. Events stamped with origin (this instance) are skipped,
// since they were already delivered locally.
func CheckEventRelay(origin string, sink EventSink, log *zap.Logger) Handler {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("component", "kafka.check_event_relay"), zap.String("origin", origin))

	return CheckEventHandler(func(_ context.Context, key []byte, fields map[string]any) error {
		ev, err := event.FromFields(fields)
		if err != nil {
			mRelayed.WithLabelValues("bad").Inc()
			return fmt.Errorf("%w: key %s: %v", ErrPoison, key, err)
		}
		if ev.Origin != "" && ev.Origin == origin {
			mRelayed.WithLabelValues("own").Inc()
			return nil
		}
		sink.Publish(ev)
		mRelayed.WithLabelValues("relayed").Inc()
		log.Debug("check event relayed",
			zap.String("event_id", ev.ID),
			zap.String("from", ev.Origin),
			zap.Int64("monitor_id", ev.MonitorID),
		)
		return nil
	})
}
