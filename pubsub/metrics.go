package pubsub

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	attempts       prometheus.Counter
	results        *prometheus.CounterVec
	inbound        prometheus.Counter
	decodeFailures prometheus.Counter
	channels       prometheus.Gauge
	connected      prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stx",
			Subsystem: "pubsub",
			Name:      "push_attempts_total",
			Help:      "Outbound delivery attempts, retries included.",
		}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stx",
			Subsystem: "pubsub",
			Name:      "pushes_total",
			Help:      "Logical pushes by result (ok, failed, timeout, canceled).",
		}, []string{"result"}),
		inbound: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stx",
			Subsystem: "pubsub",
			Name:      "inbound_messages_total",
			Help:      "Inbound envelopes received.",
		}),
		decodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stx",
			Subsystem: "pubsub",
			Name:      "inbound_decode_failures_total",
			Help:      "Malformed inbound payloads.",
		}),
		channels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "stx",
			Subsystem: "pubsub",
			Name:      "channels",
			Help:      "Open channels.",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "stx",
			Subsystem: "pubsub",
			Name:      "connected",
			Help:      "1 when the server-push transport is connected.",
		}),
	}
	reg.MustRegister(m.attempts, m.results, m.inbound, m.decodeFailures, m.channels, m.connected)
	return m
}
