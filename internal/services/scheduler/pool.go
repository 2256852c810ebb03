package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"
)

const DefaultConcurrency = 10

// Pool runs tasks on goroutines with at most cap tasks in flight. Tasks
// submitted while the pool is full wait for a free slot.
type Pool struct {
	sem chan struct{}
	wg  sync.WaitGroup
	log *zap.Logger
}

func NewPool(capacity int, log *zap.Logger) *Pool {
	if capacity <= 0 {
		capacity = DefaultConcurrency
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pool{sem: make(chan struct{}, capacity), log: log}
}

// Go schedules fn. A panic inside fn is logged and does not affect other
// tasks. If ctx ends before a slot frees up, fn is called right away with
// the cancelled context so it can release what it holds.
func (p *Pool) Go(ctx context.Context, fn func(ctx context.Context) error) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		select {
		case p.sem <- struct{}{}:
			defer func() { <-p.sem }()
		case <-ctx.Done():
		}

		if err := p.run(ctx, fn); err != nil && !errors.Is(err, context.Canceled) {
			p.log.Warn("task failed", zap.Error(err))
		}
	}()
}

func (p *Pool) run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			mPanics.Inc()
			p.log.Error("task panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

// Wait blocks until every submitted task has returned.
func (p *Pool) Wait() { p.wg.Wait() }

func (p *Pool) InUse() int { return len(p.sem) }

func (p *Pool) Cap() int { return cap(p.sem) }
