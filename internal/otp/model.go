package otp

import (
	"time"

	"github.com/google/uuid"
)

// Type is the channel a code is delivered through.
type Type string

const (
	TypeEmail Type = "email"
	TypePhone Type = "phone"
)

func (t Type) Valid() bool {
	return t == TypeEmail || t == TypePhone
}

// Challenge is one issued code. At most one unused, unexpired challenge
// exists per identifier.
type Challenge struct {
	ID         uuid.UUID
	Identifier string
	Code       string
	Type       Type
	ExpiresAt  time.Time
	Used       bool
	UsedAt     *time.Time
	CreatedAt  time.Time
}

func (c *Challenge) Active(now time.Time) bool {
	return !c.Used && now.Before(c.ExpiresAt)
}
