package kafka

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/check"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/event"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/monitor"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/obs/retry"
)

type ProtoPublisher interface {
	PublishProto(ctx context.Context, key []byte, m proto.Message) error
}

var _ event.CheckEvents = (*CheckEventsKafka)(nil)

// CheckEventsKafka publishes every completed check as a structpb.Struct
// keyed by monitor id. Publishing runs in the background so a slow broker
// never holds up a probe task.
type CheckEventsKafka struct {
	p       ProtoPublisher
	policy  retry.Policy
	timeout time.Duration
	origin  string
	log     *zap.Logger
	wg      sync.WaitGroup
}

func NewCheckEventsKafka(p ProtoPublisher, policy retry.Policy, timeout time.Duration, log *zap.Logger) *CheckEventsKafka {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CheckEventsKafka{
		p:       p,
		policy:  policy,
		timeout: timeout,
		log:     log.With(zap.String("component", "kafka.check_events")),
	}
}

// WithOrigin stamps published events with the engine instance id so a
// relay can skip its own events. Call it before the first publish.
func (e *CheckEventsKafka) WithOrigin(id string) *CheckEventsKafka {
	e.origin = id
	return e
}

func (e *CheckEventsKafka) EmitCheckEvent(ctx context.Context, ownerID int64, m *monitor.Monitor, o *check.Outcome) {
	ev := event.NewCheckEvent(ownerID, m, o)
	ev.Origin = e.origin
	msg, err := structpb.NewStruct(ev.Fields())
	if err != nil {
		e.log.Warn("encode check event", zap.Int64("monitor_id", m.ID), zap.Error(err))
		return
	}
	key := KeyFromInt64(m.ID)

	e.wg.Add(1)
	go func(ctx context.Context) {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		err := retry.Do(ctx, func(ctx context.Context) error { return e.p.PublishProto(ctx, key, msg) }, e.policy)
		if err != nil {
			e.log.Warn("check event dropped",
				zap.String("event_id", ev.ID), zap.Int64("monitor_id", m.ID), zap.Error(err))
		}
	}(context.WithoutCancel(ctx))
}

// Flush waits for in-flight publishes.
func (e *CheckEventsKafka) Flush() { e.wg.Wait() }
