// Package auth issues session tokens after OTP or admin login and guards
// routes with them.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hackgods/medverify-booking/internal/apperr"
	"github.com/hackgods/medverify-booking/internal/identity"
)

const issuer = "medverify-booking"

var (
	ErrInvalidToken = apperr.New(apperr.KindUnauthorized, "invalid or expired session")
	ErrMissingToken = apperr.New(apperr.KindUnauthorized, "missing session token")
	ErrWrongRole    = apperr.New(apperr.KindForbidden, "insufficient role")
)

type Claims struct {
	Role identity.Role `json:"role"`
	jwt.RegisteredClaims
}

type Session struct {
	UserID    uuid.UUID
	Role      identity.Role
	ExpiresAt time.Time
}

// Issuer signs and parses HS256 session tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (i *Issuer) Issue(userID uuid.UUID, role identity.Role) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(i.ttl)

	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session: %w", err)
	}
	return signed, exp, nil
}

func (i *Issuer) Parse(raw string) (*Session, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(*jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnauthorized, err, ErrInvalidToken.Message)
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if claims.Role != identity.RoleUser && claims.Role != identity.RoleAdmin {
		return nil, ErrInvalidToken
	}

	s := &Session{UserID: id, Role: claims.Role}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}
