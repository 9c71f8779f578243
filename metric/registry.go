// Package metric provides Prometheus metrics registration for the gzweb
// client. A single MetricsRegistry owns the Prometheus registry, the core
// session metrics, and any component-scoped metrics registered at runtime.
package metric

import (
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registrar defines the interface for registering component-scoped metrics
type Registrar interface {
	RegisterCounter(component, name string, counter prometheus.Counter) error
	RegisterGauge(component, name string, gauge prometheus.Gauge) error
	RegisterCounterVec(component, name string, vec *prometheus.CounterVec) error
	RegisterGaugeVec(component, name string, vec *prometheus.GaugeVec) error
	RegisterHistogramVec(component, name string, vec *prometheus.HistogramVec) error
	Unregister(component, name string) bool
}

// MetricsRegistry manages the registration and lifecycle of metrics
type MetricsRegistry struct {
	prometheusRegistry *prometheus.Registry
	Core               *CoreMetrics
	registered         map[string]prometheus.Collector
	mu                 sync.Mutex
}

// NewMetricsRegistry creates a new metrics registry with core session metrics
// and Go runtime collectors pre-registered.
func NewMetricsRegistry() *MetricsRegistry {
	prometheusRegistry := prometheus.NewRegistry()

	registry := &MetricsRegistry{
		prometheusRegistry: prometheusRegistry,
		Core:               NewCoreMetrics(),
		registered:         make(map[string]prometheus.Collector),
	}

	registry.Core.mustRegister(prometheusRegistry)

	prometheusRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return registry
}

// PrometheusRegistry returns the underlying Prometheus registry
func (r *MetricsRegistry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

// register adds a collector under "component.name", rejecting duplicates.
func (r *MetricsRegistry) register(component, name string, c prometheus.Collector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", component, name)
	if _, exists := r.registered[key]; exists {
		return fmt.Errorf("metric %s already registered for component %s", name, component)
	}

	if err := r.prometheusRegistry.Register(c); err != nil {
		var alreadyRegErr prometheus.AlreadyRegisteredError
		if stderrors.As(err, &alreadyRegErr) {
			return fmt.Errorf("prometheus conflict for metric %s: %w", key, err)
		}
		return fmt.Errorf("register metric %s: %w", key, err)
	}

	r.registered[key] = c
	return nil
}

// RegisterCounter registers a counter metric for a component
func (r *MetricsRegistry) RegisterCounter(component, name string, counter prometheus.Counter) error {
	return r.register(component, name, counter)
}

// RegisterGauge registers a gauge metric for a component
func (r *MetricsRegistry) RegisterGauge(component, name string, gauge prometheus.Gauge) error {
	return r.register(component, name, gauge)
}

// RegisterCounterVec registers a counter vector metric for a component
func (r *MetricsRegistry) RegisterCounterVec(component, name string, vec *prometheus.CounterVec) error {
	return r.register(component, name, vec)
}

// RegisterGaugeVec registers a gauge vector metric for a component
func (r *MetricsRegistry) RegisterGaugeVec(component, name string, vec *prometheus.GaugeVec) error {
	return r.register(component, name, vec)
}

// RegisterHistogramVec registers a histogram vector metric for a component
func (r *MetricsRegistry) RegisterHistogramVec(component, name string, vec *prometheus.HistogramVec) error {
	return r.register(component, name, vec)
}

// Unregister removes a metric from the registry
func (r *MetricsRegistry) Unregister(component, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", component, name)
	collector, exists := r.registered[key]
	if !exists {
		return false
	}

	success := r.prometheusRegistry.Unregister(collector)
	if success {
		delete(r.registered, key)
	}
	return success
}
