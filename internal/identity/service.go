package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/hackgods/medverify-booking/internal/apperr"
)

var ErrBadCredentials = apperr.New(apperr.KindUnauthorized, "invalid credentials")

// PasswordHasher hashes admin passwords.
type PasswordHasher interface {
	Hash(pw string) (string, error)
	Verify(hash, pw string) bool
}

type BcryptHasher struct{ Cost int }

func (b BcryptHasher) Hash(pw string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (b BcryptHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

type Service struct {
	repo   Repository
	hasher PasswordHasher
	log    *zap.Logger
}

func NewService(repo Repository, hasher PasswordHasher, log *zap.Logger) *Service {
	if hasher == nil {
		hasher = BcryptHasher{Cost: 12}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, hasher: hasher, log: log}
}

// Resolve returns the identity owning a verified identifier, creating it on
// first use. The identifier must already be normalized.
func (s *Service) Resolve(ctx context.Context, identifier string, kind IdentifierKind) (*Identity, error) {
	return s.findOrCreate(ctx, identifier, kind, uuid.Nil)
}

func (s *Service) findOrCreate(ctx context.Context, identifier string, kind IdentifierKind, id uuid.UUID) (*Identity, error) {
	existing, err := s.lookup(ctx, identifier, kind)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrIdentityNotFound) {
		return nil, apperr.Persistence(err, "load identity")
	}

	ident := &Identity{ID: id, Role: RoleUser, PaymentStatus: PaymentPending}
	switch kind {
	case KindEmail:
		ident.Email = &identifier
	case KindPhone:
		ident.Phone = &identifier
	default:
		return nil, apperr.New(apperr.KindInvalidIdentifier, fmt.Sprintf("unsupported identifier kind %q", kind))
	}

	created, err := s.repo.Create(ctx, ident)
	if errors.Is(err, ErrIdentityExists) {
		// lost a race with a concurrent verification of the same identifier
		return s.lookup(ctx, identifier, kind)
	}
	if err != nil {
		return nil, apperr.Persistence(err, "create identity")
	}

	s.log.Info("identity created", zap.String("identity_id", created.ID.String()), zap.String("kind", string(kind)))
	return created, nil
}

func (s *Service) lookup(ctx context.Context, identifier string, kind IdentifierKind) (*Identity, error) {
	if kind == KindEmail {
		return s.repo.GetByEmail(ctx, identifier)
	}
	return s.repo.GetByPhone(ctx, identifier)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Identity, error) {
	ident, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Persistence(err, "load identity")
	}
	return ident, nil
}

// CopyProfile carries applicant details forward onto the identity. Form email
// and phone land in the contact fields, so they never become login keys.
func (s *Service) CopyProfile(ctx context.Context, id uuid.UUID, p Profile) error {
	return apperr.Persistence(s.repo.UpdateProfile(ctx, id, p), "update identity profile")
}

func (s *Service) SetPaymentStatus(ctx context.Context, id uuid.UUID, status PaymentStatus, paymentID *string) error {
	return apperr.Persistence(s.repo.SetPaymentStatus(ctx, id, status, paymentID), "update identity payment status")
}

// AuthenticateAdmin checks an admin email/password pair. Unknown emails,
// non-admin identities and wrong passwords are indistinguishable.
func (s *Service) AuthenticateAdmin(ctx context.Context, email, password string) (*Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	ident, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return nil, ErrBadCredentials
		}
		return nil, apperr.Persistence(err, "load identity")
	}
	if ident.Role != RoleAdmin || ident.PasswordHash == nil || !s.hasher.Verify(*ident.PasswordHash, password) {
		return nil, ErrBadCredentials
	}
	return ident, nil
}

// CreateAdmin registers an admin identity with a hashed password.
func (s *Service) CreateAdmin(ctx context.Context, email, name, password string) (*Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, apperr.Validation("email and password are required", nil)
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	created, err := s.repo.Create(ctx, &Identity{
		Role:          RoleAdmin,
		Email:         &email,
		Name:          name,
		PaymentStatus: PaymentPending,
		PasswordHash:  &hash,
	})
	if err != nil {
		return nil, apperr.Persistence(err, "create admin")
	}
	return created, nil
}
