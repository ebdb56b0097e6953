// Package ratelimit enforces a fixed-window request ceiling per requester.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Window is the fixed-window counter state for one key. The window starts
// at the first request and is replaced, not slid, once it expires.
type Window struct {
	Count       int
	WindowStart time.Time
}

// Store persists rate-limit windows keyed by requester identity. The
// in-memory implementation below is the default; a database can back the
// same interface so several instances share one view.
type Store interface {
	Window(ctx context.Context, key string) (*Window, error)
	SetWindow(ctx context.Context, key string, w Window) error
}

// Limiter counts requests per key within a fixed window
type Limiter struct {
	store  Store
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewLimiter creates a limiter allowing limit requests per window per key
func NewLimiter(store Store, limit int, window time.Duration) *Limiter {
	return &Limiter{
		store:  store,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow records one request for key and reports whether it fits in the
// current window. The first request after a window expires starts a new one.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	now := l.now()

	w, err := l.store.Window(ctx, key)
	if err != nil {
		return false, err
	}

	if w == nil || now.Sub(w.WindowStart) >= l.window {
		if err := l.store.SetWindow(ctx, key, Window{Count: 1, WindowStart: now}); err != nil {
			return false, err
		}
		return true, nil
	}

	if w.Count >= l.limit {
		return false, nil
	}

	w.Count++
	if err := l.store.SetWindow(ctx, key, *w); err != nil {
		return false, err
	}
	return true, nil
}

// sweepEvery bounds how often the memory store scans for expired entries
const sweepEvery = 256

// MemoryStore is the in-process Store used when no database is configured.
// Entries older than the retention period are evicted opportunistically
// during lookups rather than by a background goroutine.
type MemoryStore struct {
	mu        sync.Mutex
	entries   map[string]Window
	retention time.Duration
	ops       int
	now       func() time.Time
}

// NewMemoryStore creates a memory store evicting entries whose window
// started more than retention ago.
func NewMemoryStore(retention time.Duration) *MemoryStore {
	return &MemoryStore{
		entries:   make(map[string]Window),
		retention: retention,
		now:       time.Now,
	}
}

// Window returns the stored window for key, or nil if none exists
func (s *MemoryStore) Window(ctx context.Context, key string) (*Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.maybeSweep()

	w, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	cp := w
	return &cp, nil
}

// SetWindow stores the window for key
func (s *MemoryStore) SetWindow(ctx context.Context, key string, w Window) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = w
	return nil
}

// maybeSweep drops expired entries every sweepEvery lookups. Caller holds mu.
func (s *MemoryStore) maybeSweep() {
	s.ops++
	if s.ops%sweepEvery != 0 {
		return
	}

	cutoff := s.now().Add(-s.retention)
	for k, w := range s.entries {
		if w.WindowStart.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}
