package otp

import (
	"net/mail"
	"strings"

	"github.com/hackgods/medverify-booking/internal/apperr"
)

var (
	ErrInvalidEmail = apperr.New(apperr.KindInvalidIdentifier, "invalid email address")
	ErrInvalidPhone = apperr.New(apperr.KindInvalidIdentifier, "invalid phone number")
	ErrInvalidType  = apperr.New(apperr.KindInvalidIdentifier, "type must be email or phone")
)

// Normalize returns the canonical form of an identifier: lowercase trimmed
// email, or an E.164 phone number using defaultCC for national numbers.
func Normalize(identifier string, t Type, defaultCC string) (string, error) {
	switch t {
	case TypeEmail:
		return normalizeEmail(identifier)
	case TypePhone:
		return normalizePhone(identifier, defaultCC)
	default:
		return "", ErrInvalidType
	}
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" || len(email) > 254 {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	at := strings.LastIndexByte(email, '@')
	if !strings.Contains(email[at+1:], ".") {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func normalizePhone(raw, defaultCC string) (string, error) {
	s := strings.TrimSpace(raw)
	plus := strings.HasPrefix(s, "+")

	var b strings.Builder
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		case r == '+' && i == 0:
		default:
			return "", ErrInvalidPhone
		}
	}
	digits := b.String()

	switch {
	case plus:
	case strings.HasPrefix(digits, "00"):
		digits = digits[2:]
	case len(digits) == 10:
		digits = defaultCC + digits
	case len(digits) == 11 && digits[0] == '0':
		digits = defaultCC + digits[1:]
	case len(digits) == len(defaultCC)+10 && strings.HasPrefix(digits, defaultCC):
	default:
		return "", ErrInvalidPhone
	}

	// E.164: at most 15 digits, no leading zero in the country code
	if len(digits) < 8 || len(digits) > 15 || digits[0] == '0' {
		return "", ErrInvalidPhone
	}
	return "+" + digits, nil
}
