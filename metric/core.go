package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// CoreMetrics contains session-level metrics shared by every gzweb client
// instance registered with a MetricsRegistry.
type CoreMetrics struct {
	// Session metrics
	SessionState     prometheus.Gauge
	StateTransitions *prometheus.CounterVec
	Reconnects       prometheus.Counter

	// Frame metrics
	FramesReceived *prometheus.CounterVec
	FramesSent     *prometheus.CounterVec
	DecodeErrors   *prometheus.CounterVec

	// Topic and asset metrics
	SubscriptionsActive prometheus.Gauge
	AssetsServed        prometheus.Counter
}

// NewCoreMetrics creates a new CoreMetrics instance
func NewCoreMetrics() *CoreMetrics {
	return &CoreMetrics{
		SessionState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "gzweb",
				Subsystem: "session",
				Name:      "state",
				Help:      "Session state (0=disconnected, 1=awaiting_schema, 2=connected, 3=ready, 4=error)",
			},
		),

		StateTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gzweb",
				Subsystem: "session",
				Name:      "state_transitions_total",
				Help:      "Total number of session state transitions",
			},
			[]string{"from", "to"},
		),

		Reconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "gzweb",
				Subsystem: "session",
				Name:      "reconnects_total",
				Help:      "Total number of reconnection attempts",
			},
		),

		FramesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gzweb",
				Subsystem: "frames",
				Name:      "received_total",
				Help:      "Total number of frames received by operation",
			},
			[]string{"operation"},
		),

		FramesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gzweb",
				Subsystem: "frames",
				Name:      "sent_total",
				Help:      "Total number of frames sent by operation",
			},
			[]string{"operation"},
		),

		DecodeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gzweb",
				Subsystem: "frames",
				Name:      "decode_errors_total",
				Help:      "Total number of frame or payload decode errors",
			},
			[]string{"kind"},
		),

		SubscriptionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "gzweb",
				Subsystem: "topics",
				Name:      "subscriptions_active",
				Help:      "Number of currently registered topic subscriptions",
			},
		),

		AssetsServed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "gzweb",
				Subsystem: "assets",
				Name:      "served_total",
				Help:      "Total number of asset responses delivered to callers",
			},
		),
	}
}

// mustRegister registers all core metrics with the given Prometheus registry
func (m *CoreMetrics) mustRegister(reg *prometheus.Registry) {
	reg.MustRegister(
		m.SessionState,
		m.StateTransitions,
		m.Reconnects,
		m.FramesReceived,
		m.FramesSent,
		m.DecodeErrors,
		m.SubscriptionsActive,
		m.AssetsServed,
	)
}
