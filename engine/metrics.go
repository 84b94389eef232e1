package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics render and callback counters, shared by any number of instances
type Metrics struct {
	flushes  prometheus.Histogram
	writes   prometheus.Counter
	failures *prometheus.CounterVec
}

// NewMetrics creates and registers the engine collectors. A nil registerer skips the registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		flushes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "stx",
			Subsystem: "engine",
			Name:      "flush_duration_seconds",
			Help:      "Duration of render flushes.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .016, .05, .1},
		}),
		writes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stx",
			Subsystem: "engine",
			Name:      "writes_total",
			Help:      "Writers executed by render flushes.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stx",
			Subsystem: "engine",
			Name:      "callback_errors_total",
			Help:      "Failures of user callbacks, by trace label.",
		}, []string{"trace"}),
	}
	if reg != nil {
		reg.MustRegister(m.flushes, m.writes, m.failures)
	}
	return m
}

func (m *Metrics) flush(seconds float64, writes int) {
	if m == nil {
		return
	}
	m.flushes.Observe(seconds)
	m.writes.Add(float64(writes))
}

func (m *Metrics) failure(trace string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(trace).Inc()
}
