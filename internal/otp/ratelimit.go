package otp

import (
	"context"
	"sync"
	"time"
)

// CounterStore is the sliding-window counter behind request rate limiting.
// The in-memory store only limits a single process; multi-process
// deployments use the Redis-backed store.
type CounterStore interface {
	// Hit records one attempt for key unless limit attempts already fall
	// inside the window ending now. It reports whether the attempt was recorded.
	Hit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type hitLog struct {
	mu   sync.Mutex
	hits []time.Time
}

// MemoryCounter keeps a per-key log of attempt times. Keys are locked
// independently.
type MemoryCounter struct {
	mu   sync.Mutex
	keys map[string]*hitLog
	now  func() time.Time
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{keys: make(map[string]*hitLog), now: time.Now}
}

func (c *MemoryCounter) entry(key string) *hitLog {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.keys[key]
	if !ok {
		e = &hitLog{}
		c.keys[key] = e
	}
	return e
}

func (c *MemoryCounter) Hit(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	e := c.entry(key)
	now := c.now()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.hits = trim(e.hits, now.Add(-window))
	if len(e.hits) >= limit {
		return false, nil
	}
	e.hits = append(e.hits, now)
	return true, nil
}

// Prune drops keys with no attempt inside window.
func (c *MemoryCounter) Prune(window time.Duration) int {
	cutoff := c.now().Add(-window)

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.keys {
		e.mu.Lock()
		e.hits = trim(e.hits, cutoff)
		empty := len(e.hits) == 0
		e.mu.Unlock()
		if empty {
			delete(c.keys, key)
			removed++
		}
	}
	return removed
}

// trim drops hits at or before cutoff; hits are in ascending order.
func trim(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return hits[i:]
}
