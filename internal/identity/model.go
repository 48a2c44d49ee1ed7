package identity

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// IdentifierKind is the channel an identity was verified through.
type IdentifierKind string

const (
	KindEmail IdentifierKind = "email"
	KindPhone IdentifierKind = "phone"
)

// Identity holds verified identifiers in Email and Phone; only those are used
// for lookups. ContactEmail and ContactPhone come from finalized appointments
// and are never trusted for login.
type Identity struct {
	ID             uuid.UUID
	Role           Role
	Email          *string
	Phone          *string
	ContactEmail   string
	ContactPhone   string
	Name           string
	PassportNumber string
	PaymentStatus  PaymentStatus
	PaymentID      *string
	PasswordHash   *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NotifyAddress picks where to reach the identity, verified identifiers first.
func (i *Identity) NotifyAddress() (string, IdentifierKind, bool) {
	switch {
	case i.Email != nil && *i.Email != "":
		return *i.Email, KindEmail, true
	case i.Phone != nil && *i.Phone != "":
		return *i.Phone, KindPhone, true
	case i.ContactEmail != "":
		return i.ContactEmail, KindEmail, true
	case i.ContactPhone != "":
		return i.ContactPhone, KindPhone, true
	}
	return "", "", false
}

// Profile is the subset of applicant data copied onto the identity when an
// appointment is finalized. Empty values are ignored.
type Profile struct {
	Name           string
	Email          string
	Phone          string
	PassportNumber string
}
