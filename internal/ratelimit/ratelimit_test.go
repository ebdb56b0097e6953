package ratelimit

import (
	"context"
	"testing"
	"time"
)

func newTestLimiter(limit int, window time.Duration) (*Limiter, *time.Time) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := NewLimiter(NewMemoryStore(window), limit, window)
	l.now = func() time.Time { return current }
	return l, &current
}

func TestLimiter_Allow(t *testing.T) {
	ctx := context.Background()

	t.Run("allows up to limit then rejects", func(t *testing.T) {
		l, _ := newTestLimiter(10, time.Hour)

		for i := 0; i < 10; i++ {
			ok, err := l.Allow(ctx, "0xabc")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !ok {
				t.Fatalf("request %d should be allowed", i+1)
			}
		}

		ok, err := l.Allow(ctx, "0xabc")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok {
			t.Error("request 11 should be rejected")
		}
	})

	t.Run("window reset re-allows", func(t *testing.T) {
		l, clock := newTestLimiter(2, time.Hour)

		for i := 0; i < 2; i++ {
			if ok, _ := l.Allow(ctx, "0xabc"); !ok {
				t.Fatalf("request %d should be allowed", i+1)
			}
		}
		if ok, _ := l.Allow(ctx, "0xabc"); ok {
			t.Fatal("third request should be rejected")
		}

		*clock = clock.Add(time.Hour + time.Second)

		if ok, _ := l.Allow(ctx, "0xabc"); !ok {
			t.Error("request after window expiry should be allowed")
		}
	})

	t.Run("keys are independent", func(t *testing.T) {
		l, _ := newTestLimiter(1, time.Hour)

		if ok, _ := l.Allow(ctx, "0xaaa"); !ok {
			t.Fatal("first key should be allowed")
		}
		if ok, _ := l.Allow(ctx, "0xaaa"); ok {
			t.Fatal("first key should now be limited")
		}
		if ok, _ := l.Allow(ctx, "0xbbb"); !ok {
			t.Error("second key should be unaffected")
		}
	})

	t.Run("partial window does not reset", func(t *testing.T) {
		l, clock := newTestLimiter(2, time.Hour)

		l.Allow(ctx, "0xabc")
		*clock = clock.Add(30 * time.Minute)
		l.Allow(ctx, "0xabc")
		*clock = clock.Add(20 * time.Minute)

		// 50 minutes into the window, still limited
		if ok, _ := l.Allow(ctx, "0xabc"); ok {
			t.Error("request inside the original window should be rejected")
		}
	})
}

func TestMemoryStore_Eviction(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour)

	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }

	stale := Window{Count: 5, WindowStart: current.Add(-2 * time.Hour)}
	fresh := Window{Count: 1, WindowStart: current.Add(-time.Minute)}
	store.SetWindow(ctx, "stale", stale)
	store.SetWindow(ctx, "fresh", fresh)

	// Force a sweep by exhausting the lookup counter.
	for i := 0; i < sweepEvery; i++ {
		store.Window(ctx, "fresh")
	}

	w, err := store.Window(ctx, "stale")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w != nil {
		t.Error("stale entry should have been evicted")
	}

	w, _ = store.Window(ctx, "fresh")
	if w == nil {
		t.Error("fresh entry should survive the sweep")
	}
}
