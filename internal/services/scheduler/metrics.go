package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mDue = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_monitors_due_total", Help: "Due monitors fetched from the store",
	})
	mDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_monitors_dispatched_total", Help: "Monitors claimed and handed to the pool",
	})
	mSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_monitors_skipped_total", Help: "Due monitors left alone because they were in flight or claimed elsewhere",
	})
	mErr = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_errors_total", Help: "Errors in scheduler loop",
	})
	mPanics = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_task_panics_total", Help: "Recovered panics in monitor tasks",
	})
	mChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_checks_total", Help: "Completed monitor checks by trigger and result",
	}, []string{"trigger", "result"})
	mInflight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_checks_inflight", Help: "Monitor checks currently running",
	})
	mLoopDur = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "scheduler_loop_duration_seconds", Help: "Scheduler tick duration",
		Buckets: prometheus.DefBuckets,
	})
)
