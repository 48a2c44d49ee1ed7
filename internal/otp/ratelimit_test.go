package otp

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryCounterSlidingWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	c := NewMemoryCounter()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if ok, _ := c.Hit(ctx, "k", 3, time.Minute); !ok {
			t.Fatalf("hit %d unexpectedly limited", i)
		}
		now = now.Add(15 * time.Second)
	}
	if ok, _ := c.Hit(ctx, "k", 3, time.Minute); ok {
		t.Fatal("4th hit within the window should be limited")
	}

	// 09:01:00 pushes the 09:00:00 hit out of the window
	now = time.Date(2026, 1, 1, 9, 1, 0, 0, time.UTC)
	if ok, _ := c.Hit(ctx, "k", 3, time.Minute); !ok {
		t.Fatal("expected the oldest hit to decay")
	}
	if ok, _ := c.Hit(ctx, "k", 3, time.Minute); ok {
		t.Fatal("window is full again")
	}
}

func TestMemoryCounterConcurrentHitsRespectLimit(t *testing.T) {
	t.Parallel()

	c := NewMemoryCounter()
	ctx := context.Background()

	var mu sync.Mutex
	allowed := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := c.Hit(ctx, "same", 3, time.Minute); ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 3 {
		t.Errorf("expected exactly 3 allowed hits, got %d", allowed)
	}
}

func TestMemoryCounterPrune(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	c := NewMemoryCounter()
	c.now = func() time.Time { return now }

	_, _ = c.Hit(context.Background(), "old", 3, time.Minute)
	now = now.Add(2 * time.Minute)
	_, _ = c.Hit(context.Background(), "fresh", 3, time.Minute)

	if removed := c.Prune(time.Minute); removed != 1 {
		t.Errorf("expected 1 pruned key, got %d", removed)
	}
	if _, ok := c.keys["fresh"]; !ok {
		t.Error("fresh key must survive")
	}
}
