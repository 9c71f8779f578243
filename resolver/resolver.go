// Package resolver provides a generic coalescing cache for named external
// resources. Concurrent requests for the same key share a single fetch, every
// waiter is served an independent copy of the result, and completed results
// are cached permanently for instant future resolution.
//
// Keys are only unique within a resource class, so callers keep one Resolver
// instance per class (meshes, included sub-models, textures).
package resolver

import (
	"sync"

	"github.com/gazebo-web/gzweb-sub000/errors"
)

// FetchFunc produces the value for a key. It is invoked at most once per
// outstanding key, on a background goroutine.
type FetchFunc[V any] func(key string) (V, error)

// DoneFunc receives the resolved value (an independent copy) or the fetch
// failure. Waiters on the same key are invoked in registration order.
type DoneFunc[V any] func(value V, err error)

// pendingState tracks the lifecycle of an outstanding fetch.
type pendingState int

const (
	stateInFlight pendingState = iota
	stateDone
	stateFailed
)

// pendingResource accumulates waiters for a key whose fetch is outstanding.
// The record is discarded once all waiters have been serviced; the resolved
// value lives on in the permanent cache.
type pendingResource[V any] struct {
	key     string
	state   pendingState
	waiters []DoneFunc[V]
}

// Resolver is a coalescing cache keyed by resource identity. The permanent
// cache is append-only: keys are never invalidated or evicted, and values
// are only handed out as defensive copies.
type Resolver[V any] struct {
	mu      sync.Mutex
	cache   map[string]V
	pending map[string]*pendingResource[V]
	clone   func(V) V
	stats   *Statistics
	metrics *resolverMetrics
}

// New creates a resolver. clone produces the independent copy handed to each
// caller; nil means values are copied by assignment, which is only safe for
// value types without interior pointers.
func New[V any](clone func(V) V, opts ...Option[V]) (*Resolver[V], error) {
	options := applyOptions(opts...)

	if clone == nil {
		clone = func(v V) V { return v }
	}

	var metrics *resolverMetrics
	if options.metricsReg != nil && options.metricsPrefix != "" {
		var err error
		metrics, err = newResolverMetrics(options.metricsReg, options.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "Resolver", "New", "metrics registration")
		}
	}

	return &Resolver[V]{
		cache:   make(map[string]V),
		pending: make(map[string]*pendingResource[V]),
		clone:   clone,
		stats:   NewStatistics(),
		metrics: metrics,
	}, nil
}

// NewBytes creates a resolver for opaque binary resources with a deep-copy
// clone, the common case for mesh, model and texture bytes.
func NewBytes(opts ...Option[[]byte]) (*Resolver[[]byte], error) {
	return New(func(b []byte) []byte {
		if b == nil {
			return nil
		}
		out := make([]byte, len(b))
		copy(out, b)
		return out
	}, opts...)
}

// Resolve requests the resource under key. A cached key invokes done
// synchronously with a fresh copy. A key with an outstanding fetch appends
// done to the waiter list without fetching again. Otherwise fetch runs
// exactly once on a background goroutine; on success the value is cached and
// every accumulated waiter receives an independent copy in registration
// order, on failure every waiter receives the error and the cache is left
// unpopulated so a later Resolve retries from scratch.
func (r *Resolver[V]) Resolve(key string, fetch FetchFunc[V], done DoneFunc[V]) {
	r.mu.Lock()

	if value, ok := r.cache[key]; ok {
		r.mu.Unlock()
		r.stats.Hit()
		if r.metrics != nil {
			r.metrics.recordHit()
		}
		done(r.clone(value), nil)
		return
	}

	if p, ok := r.pending[key]; ok && p.state == stateInFlight {
		p.waiters = append(p.waiters, done)
		r.mu.Unlock()
		r.stats.Coalesce()
		if r.metrics != nil {
			r.metrics.recordCoalesced()
		}
		return
	}

	p := &pendingResource[V]{
		key:     key,
		state:   stateInFlight,
		waiters: []DoneFunc[V]{done},
	}
	r.pending[key] = p
	r.mu.Unlock()

	r.stats.Miss()
	if r.metrics != nil {
		r.metrics.recordFetch()
		r.metrics.setPending(r.PendingCount())
	}

	go r.runFetch(key, fetch)
}

// runFetch executes the single fetch for key and fans the outcome out to
// every waiter registered while it was outstanding.
func (r *Resolver[V]) runFetch(key string, fetch FetchFunc[V]) {
	value, err := fetch(key)

	r.mu.Lock()
	p := r.pending[key]
	delete(r.pending, key)
	if err == nil {
		p.state = stateDone
		r.cache[key] = value
	} else {
		p.state = stateFailed
	}
	waiters := p.waiters
	p.waiters = nil
	size := len(r.cache)
	r.mu.Unlock()

	if err != nil {
		r.stats.Failure()
		if r.metrics != nil {
			r.metrics.recordFailure()
			r.metrics.setPending(r.PendingCount())
		}
		wrapped := errors.WrapTransient(err, "Resolver", "Resolve", "fetch "+key)
		var zero V
		for _, done := range waiters {
			done(zero, wrapped)
		}
		return
	}

	r.stats.Complete()
	r.stats.UpdateSize(int64(size))
	if r.metrics != nil {
		r.metrics.updateSize(size)
		r.metrics.setPending(r.PendingCount())
	}

	for _, done := range waiters {
		done(r.clone(value), nil)
	}
}

// Cached reports whether key has completed successfully and returns a fresh
// copy of its value.
func (r *Resolver[V]) Cached(key string) (V, bool) {
	r.mu.Lock()
	value, ok := r.cache[key]
	r.mu.Unlock()

	if !ok {
		var zero V
		return zero, false
	}
	return r.clone(value), true
}

// Size returns the number of permanently cached resources.
func (r *Resolver[V]) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cache)
}

// PendingCount returns the number of keys with an outstanding fetch.
func (r *Resolver[V]) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Stats returns the resolver's statistics.
func (r *Resolver[V]) Stats() *Statistics {
	return r.stats
}
