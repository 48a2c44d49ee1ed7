package identity

import (
	"context"

	"github.com/google/uuid"

	"github.com/hackgods/medverify-booking/internal/apperr"
)

var (
	ErrIdentityNotFound = apperr.New(apperr.KindNotFound, "identity not found")
	ErrIdentityExists   = apperr.New(apperr.KindInvalidState, "identity already exists")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Identity, error)
	GetByEmail(ctx context.Context, email string) (*Identity, error)
	GetByPhone(ctx context.Context, phone string) (*Identity, error)

	// Create fails with ErrIdentityExists when email or phone is taken.
	Create(ctx context.Context, ident *Identity) (*Identity, error)

	// UpdateProfile overwrites name, passport and the contact email/phone with
	// any non-empty values. Verified identifiers are never touched.
	UpdateProfile(ctx context.Context, id uuid.UUID, p Profile) error
	SetPaymentStatus(ctx context.Context, id uuid.UUID, status PaymentStatus, paymentID *string) error
}
