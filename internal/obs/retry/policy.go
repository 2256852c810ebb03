package retry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

func notCancelled(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// DefaultPublishPolicy is used for best-effort event publishing.
func DefaultPublishPolicy(name string, log *zap.Logger) Policy {
	return Policy{
		Name:      name,
		Attempts:  5,
		Backoff:   ExpoJitter{Base: 200 * time.Millisecond, Max: 10 * time.Second, Jitter: 0.2},
		Retryable: notCancelled,
		OnAttempt: func(i int, err error) {
			if log != nil {
				log.Debug("publish retry", zap.String("policy", name), zap.Int("attempt", i+1), zap.Error(err))
			}
		},
		OnExhaust: func(err error) {
			if log != nil && !errors.Is(err, context.Canceled) {
				log.Warn("publish retries exhausted", zap.String("policy", name), zap.Error(err))
			}
		},
	}
}

// DefaultDeliveryPolicy retries alert channels a few times within a short
// budget so a flaky SMTP relay or chat API does not hold a check task for
// long.
func DefaultDeliveryPolicy(name string, log *zap.Logger) Policy {
	return Policy{
		Name:       name,
		Attempts:   3,
		Backoff:    ExpoJitter{Base: 500 * time.Millisecond, Max: 4 * time.Second, Jitter: 0.2},
		MaxElapsed: 20 * time.Second,
		Retryable:  notCancelled,
		OnAttempt: func(i int, err error) {
			if log != nil {
				log.Debug("delivery retry", zap.String("policy", name), zap.Int("attempt", i+1), zap.Error(err))
			}
		},
	}
}
