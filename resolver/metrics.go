package resolver

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gazebo-web/gzweb-sub000/metric"
)

// resolverMetrics holds Prometheus metrics for one resolver instance.
type resolverMetrics struct {
	hits      prometheus.Counter
	coalesced prometheus.Counter
	fetches   prometheus.Counter
	failures  prometheus.Counter

	size    prometheus.Gauge
	pending prometheus.Gauge
}

// newResolverMetrics creates and registers resolver metrics with the
// provided registry, labeled with the resource class prefix.
func newResolverMetrics(registry *metric.MetricsRegistry, prefix string) (*resolverMetrics, error) {
	m := &resolverMetrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "gzweb",
			Subsystem:   "resolver",
			Name:        "hits_total",
			ConstLabels: prometheus.Labels{"class": prefix},
			Help:        "Total number of resolutions served from the permanent cache",
		}),
		coalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "gzweb",
			Subsystem:   "resolver",
			Name:        "coalesced_total",
			ConstLabels: prometheus.Labels{"class": prefix},
			Help:        "Total number of resolutions folded into an in-flight fetch",
		}),
		fetches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "gzweb",
			Subsystem:   "resolver",
			Name:        "fetches_total",
			ConstLabels: prometheus.Labels{"class": prefix},
			Help:        "Total number of fetches started",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "gzweb",
			Subsystem:   "resolver",
			Name:        "failures_total",
			ConstLabels: prometheus.Labels{"class": prefix},
			Help:        "Total number of fetches that failed",
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "gzweb",
			Subsystem:   "resolver",
			Name:        "cache_size",
			ConstLabels: prometheus.Labels{"class": prefix},
			Help:        "Number of resources in the permanent cache",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "gzweb",
			Subsystem:   "resolver",
			Name:        "pending",
			ConstLabels: prometheus.Labels{"class": prefix},
			Help:        "Number of keys with an outstanding fetch",
		}),
	}

	component := "resolver-" + prefix
	counters := map[string]prometheus.Counter{
		"hits":      m.hits,
		"coalesced": m.coalesced,
		"fetches":   m.fetches,
		"failures":  m.failures,
	}
	for name, counter := range counters {
		if err := registry.RegisterCounter(component, name, counter); err != nil {
			return nil, err
		}
	}
	if err := registry.RegisterGauge(component, "cache_size", m.size); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(component, "pending", m.pending); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *resolverMetrics) recordHit()       { m.hits.Inc() }
func (m *resolverMetrics) recordCoalesced() { m.coalesced.Inc() }
func (m *resolverMetrics) recordFetch()     { m.fetches.Inc() }
func (m *resolverMetrics) recordFailure()   { m.failures.Inc() }

func (m *resolverMetrics) updateSize(size int) {
	m.size.Set(float64(size))
}

func (m *resolverMetrics) setPending(n int) {
	m.pending.Set(float64(n))
}
