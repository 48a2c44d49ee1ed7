package otp

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists challenges.
type Repository interface {
	// Replace invalidates every active challenge for the identifier and
	// stores ch, as one unit.
	Replace(ctx context.Context, ch *Challenge, now time.Time) error

	// Consume marks the matching active challenge used. It reports false
	// when no unused, unexpired challenge matched; only one concurrent
	// caller can ever see true for a given challenge.
	Consume(ctx context.Context, identifier string, t Type, code string, now time.Time) (bool, error)

	// Invalidate marks a single challenge used without consuming it.
	Invalidate(ctx context.Context, id uuid.UUID, now time.Time) error

	// DeleteExpired removes challenges that expired before cutoff.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
