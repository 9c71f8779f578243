package resolver

import (
	"sync"
	"sync/atomic"
	"time"
)

// Statistics tracks resolver performance. Counters are always collected;
// Prometheus export is opt-in via WithMetrics.
type Statistics struct {
	hits      int64
	misses    int64
	coalesced int64
	completed int64
	failures  int64

	mu          sync.RWMutex
	startTime   time.Time
	currentSize int64
	maxSize     int64
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{
		startTime: time.Now(),
	}
}

// Hit records a permanent-cache hit served synchronously.
func (s *Statistics) Hit() {
	atomic.AddInt64(&s.hits, 1)
}

// Miss records a resolution that started a new fetch.
func (s *Statistics) Miss() {
	atomic.AddInt64(&s.misses, 1)
}

// Coalesce records a resolution folded into an in-flight fetch.
func (s *Statistics) Coalesce() {
	atomic.AddInt64(&s.coalesced, 1)
}

// Complete records a fetch that finished successfully.
func (s *Statistics) Complete() {
	atomic.AddInt64(&s.completed, 1)
}

// Failure records a fetch that failed.
func (s *Statistics) Failure() {
	atomic.AddInt64(&s.failures, 1)
}

// UpdateSize updates the permanent cache size.
func (s *Statistics) UpdateSize(size int64) {
	s.mu.Lock()
	s.currentSize = size
	if size > s.maxSize {
		s.maxSize = size
	}
	s.mu.Unlock()
}

// Hits returns the total number of cache hits.
func (s *Statistics) Hits() int64 {
	return atomic.LoadInt64(&s.hits)
}

// Misses returns the total number of fetch-starting resolutions.
func (s *Statistics) Misses() int64 {
	return atomic.LoadInt64(&s.misses)
}

// Coalesced returns the total number of coalesced resolutions.
func (s *Statistics) Coalesced() int64 {
	return atomic.LoadInt64(&s.coalesced)
}

// Completed returns the total number of successful fetches.
func (s *Statistics) Completed() int64 {
	return atomic.LoadInt64(&s.completed)
}

// Failures returns the total number of failed fetches.
func (s *Statistics) Failures() int64 {
	return atomic.LoadInt64(&s.failures)
}

// CurrentSize returns the current number of cached resources.
func (s *Statistics) CurrentSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentSize
}

// MaxSize returns the high-water mark of the cache size.
func (s *Statistics) MaxSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxSize
}

// HitRate returns the fraction of resolutions served from the permanent
// cache, in [0, 1].
func (s *Statistics) HitRate() float64 {
	hits := s.Hits()
	total := hits + s.Misses() + s.Coalesced()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// Uptime returns the time since the statistics tracker was created.
func (s *Statistics) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.startTime)
}
