package otp

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps challenges in process memory.
type MemoryRepository struct {
	mu         sync.Mutex
	challenges map[uuid.UUID]*Challenge
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{challenges: make(map[uuid.UUID]*Challenge)}
}

func (r *MemoryRepository) Replace(_ context.Context, ch *Challenge, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.challenges {
		if existing.Identifier == ch.Identifier && existing.Active(now) {
			existing.Used = true
			usedAt := now
			existing.UsedAt = &usedAt
		}
	}
	c := *ch
	c.CreatedAt = now
	r.challenges[c.ID] = &c
	return nil
}

func (r *MemoryRepository) Consume(_ context.Context, identifier string, t Type, code string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ch := range r.challenges {
		if ch.Identifier == identifier && ch.Type == t && ch.Code == code && ch.Active(now) {
			ch.Used = true
			usedAt := now
			ch.UsedAt = &usedAt
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRepository) Invalidate(_ context.Context, id uuid.UUID, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ch, ok := r.challenges[id]; ok && !ch.Used {
		ch.Used = true
		usedAt := now
		ch.UsedAt = &usedAt
	}
	return nil
}

func (r *MemoryRepository) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, ch := range r.challenges {
		if ch.ExpiresAt.Before(cutoff) {
			delete(r.challenges, id)
			n++
		}
	}
	return n, nil
}

// Active returns the active challenges for identifier.
func (r *MemoryRepository) Active(identifier string, now time.Time) []Challenge {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Challenge
	for _, ch := range r.challenges {
		if ch.Identifier == identifier && ch.Active(now) {
			out = append(out, *ch)
		}
	}
	return out
}
