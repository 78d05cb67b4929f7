// Package ratelimit implements the fixed-window limiter bank protecting
// the API. Each tier is an independently configured counter set keyed by
// client identity.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// CounterStore is the storage behind the limiter bank. Implementations
// must make Incr an atomic increment-and-compare so concurrent bursts
// from the same key never undercount.
type CounterStore interface {
	// Incr records one hit for key within its current fixed window,
	// creating the counter lazily and resetting it when the window has
	// elapsed. It returns the count including this hit and the moment the
	// window resets.
	Incr(ctx context.Context, key string, window time.Duration) (count int64, reset time.Time, err error)

	// Decr refunds one previously counted hit. Expired or missing
	// counters are left alone.
	Decr(ctx context.Context, key string) error
}

// counter is one key's state within a window.
type counter struct {
	windowStart time.Time
	count       int64
}

// MemoryStore keeps counters in process memory. Windows reset lazily on
// access; an optional sweep reclaims keys that have gone stale.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*counter
	nowFunc  func() time.Time

	// window per key is remembered so the sweep knows when an entry is
	// reclaimable.
	windows map[string]time.Duration

	stopSweep chan struct{}
	sweepOnce sync.Once
}

// NewMemoryStore creates the in-process counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counters:  make(map[string]*counter),
		windows:   make(map[string]time.Duration),
		nowFunc:   time.Now,
		stopSweep: make(chan struct{}),
	}
}

func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, time.Time, error) {
	now := s.nowFunc()

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok || now.Sub(c.windowStart) >= window {
		c = &counter{windowStart: now}
		s.counters[key] = c
	}
	c.count++
	s.windows[key] = window

	return c.count, c.windowStart.Add(window), nil
}

func (s *MemoryStore) Decr(_ context.Context, key string) error {
	now := s.nowFunc()

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok {
		return nil
	}
	if window, ok := s.windows[key]; ok && now.Sub(c.windowStart) >= window {
		return nil
	}
	if c.count > 0 {
		c.count--
	}
	return nil
}

// StartEviction launches a periodic sweep reclaiming counters whose window
// elapsed more than grace ago. The returned stop function is safe to call
// more than once.
func (s *MemoryStore) StartEviction(interval, grace time.Duration) func() {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				s.evict(grace)
			case <-s.stopSweep:
				ticker.Stop()
				return
			}
		}
	}()
	return func() {
		s.sweepOnce.Do(func() { close(s.stopSweep) })
	}
}

func (s *MemoryStore) evict(grace time.Duration) {
	now := s.nowFunc()

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, c := range s.counters {
		window := s.windows[key]
		if now.Sub(c.windowStart) >= window+grace {
			delete(s.counters, key)
			delete(s.windows, key)
		}
	}
}
