package attemptlimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for single-instance deployments and
// tests. A rolling window of attempt timestamps is kept per key, matching the
// Redis implementation's semantics.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	cleanupOnce     sync.Once
}

type entry struct {
	timestamps  []time.Time
	lockedUntil time.Time
	window      time.Duration // rolling window the failures were recorded under
	streak      int           // consecutive lockouts, drives exponential backoff
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithCleanupInterval sets how often the janitor drops stale entries.
func WithCleanupInterval(interval time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) {
		if interval > 0 {
			s.cleanupInterval = interval
		}
	}
}

// NewMemoryStore creates an in-memory store with a background janitor.
// Call Close to stop the janitor.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		entries:         make(map[string]*entry),
		cleanupInterval: time.Minute,
		stopCleanup:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	go s.cleanupLoop()

	return s
}

func (s *MemoryStore) IncrementIfAllowed(ctx context.Context, key string, now time.Time, window time.Duration, policy LockPolicy) (int64, time.Time, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, time.Time{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[key]
	if !exists {
		e = &entry{}
		s.entries[key] = e
	}
	e.window = window

	if e.lockedUntil.After(now) {
		return int64(len(e.timestamps)), e.lockedUntil, false, nil
	}

	e.trim(now, window)
	e.timestamps = append(e.timestamps, now)

	count := int64(len(e.timestamps))
	if count >= int64(policy.Threshold) {
		e.streak++
		e.lockedUntil = now.Add(policy.DurationFor(e.streak))
		e.timestamps = nil
		return count, e.lockedUntil, true, nil
	}

	return count, time.Time{}, true, nil
}

func (s *MemoryStore) Peek(ctx context.Context, key string, now time.Time, window time.Duration) (int64, time.Time, error) {
	if err := ctx.Err(); err != nil {
		return 0, time.Time{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[key]
	if !exists {
		return 0, time.Time{}, nil
	}

	if e.lockedUntil.After(now) {
		return int64(len(e.timestamps)), e.lockedUntil, nil
	}

	e.trim(now, window)
	return int64(len(e.timestamps)), time.Time{}, nil
}

func (s *MemoryStore) Reset(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) DeleteExpired(ctx context.Context, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Only empty entries are dropped: each entry is trimmed under the window
	// it was recorded with, so failures still inside a live window survive
	// the janitor no matter how often it runs.
	for key, e := range s.entries {
		if e.lockedUntil.After(now) {
			continue
		}
		window := e.window
		if window <= 0 {
			window = DefaultWindow
		}
		e.trim(now, window)
		if len(e.timestamps) == 0 {
			delete(s.entries, key)
		}
	}
	return nil
}

// Close stops the background janitor.
func (s *MemoryStore) Close() {
	s.cleanupOnce.Do(func() {
		close(s.stopCleanup)
	})
}

func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = s.DeleteExpired(context.Background(), time.Now())
		case <-s.stopCleanup:
			return
		}
	}
}

// trim drops timestamps that fell out of the rolling window. Caller holds the lock.
func (e *entry) trim(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	kept := e.timestamps[:0]
	for _, ts := range e.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	e.timestamps = kept
}
