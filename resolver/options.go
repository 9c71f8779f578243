package resolver

import (
	"github.com/gazebo-web/gzweb-sub000/metric"
)

// Option configures resolver behavior using the functional options pattern.
type Option[V any] func(*resolverOptions[V])

type resolverOptions[V any] struct {
	// metricsReg is optional; if provided, resolver statistics are also
	// exposed as Prometheus metrics
	metricsReg *metric.MetricsRegistry

	// metricsPrefix labels the metrics with the resource class this
	// resolver serves (mesh, model, texture)
	metricsPrefix string
}

// WithMetrics enables Prometheus metrics export for resolver statistics.
// If registry is nil or prefix is empty the option is ignored.
func WithMetrics[V any](registry *metric.MetricsRegistry, prefix string) Option[V] {
	return func(opts *resolverOptions[V]) {
		if registry != nil && prefix != "" {
			opts.metricsReg = registry
			opts.metricsPrefix = prefix
		}
	}
}

func applyOptions[V any](options ...Option[V]) *resolverOptions[V] {
	opts := &resolverOptions[V]{}
	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}
	return opts
}
