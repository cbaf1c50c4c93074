// Package metrics turns dispatch and scheduler events into Prometheus
// collectors.
package metrics

import (
	"context"
	"errors"

	"mindwatch/internal/eventbus"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mindwatch"

// Collector owns the mindwatch collectors.
type Collector struct {
	ticks        *prometheus.CounterVec
	tickDuration prometheus.Histogram
	dispatches   *prometheus.CounterVec
	expired      prometheus.Counter
	skippedJobs  prometheus.Counter
}

// New registers the collectors with reg. Registering twice on the same
// registry returns the already-registered collectors.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Dispatch ticks by result (ok or fallback).",
		}, []string{"result"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Wall time of one dispatch tick.",
			Buckets:   prometheus.DefBuckets,
		}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "Per-channel send outcomes.",
		}, []string{"kind", "status"}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expired_total",
			Help:      "Reminders auto-disabled after their time passed.",
		}),
		skippedJobs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_skipped_total",
			Help:      "Scheduled ticks skipped because the previous run was still in flight.",
		}),
	}

	c.ticks = register(reg, c.ticks)
	c.tickDuration = register(reg, c.tickDuration)
	c.dispatches = register(reg, c.dispatches)
	c.expired = register(reg, c.expired)
	c.skippedJobs = register(reg, c.skippedJobs)
	return c
}

func register[T prometheus.Collector](reg prometheus.Registerer, col T) T {
	if err := reg.Register(col); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return col
}

// Observe applies one event.
func (c *Collector) Observe(ev eventbus.Event) {
	switch ev.Type {
	case eventbus.TickDone, eventbus.TickFallback:
		result := "ok"
		if ev.Type == eventbus.TickFallback {
			result = "fallback"
		}
		c.ticks.WithLabelValues(result).Inc()
		if t, ok := ev.Data.(eventbus.Tick); ok {
			c.tickDuration.Observe(t.Elapsed.Seconds())
		}
	case eventbus.DispatchSent, eventbus.DispatchFailed:
		status := "success"
		if ev.Type == eventbus.DispatchFailed {
			status = "fail"
		}
		kind := "unknown"
		if d, ok := ev.Data.(eventbus.Dispatch); ok && d.Kind != "" {
			kind = d.Kind
		}
		c.dispatches.WithLabelValues(kind, status).Inc()
	case eventbus.MindExpired:
		c.expired.Inc()
	case eventbus.JobSkipped:
		c.skippedJobs.Inc()
	}
}

// Consume observes bus events until ctx ends.
func (c *Collector) Consume(ctx context.Context, bus eventbus.Bus) error {
	ch, unsub := bus.Subscribe(256)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			c.Observe(ev)
		}
	}
}
