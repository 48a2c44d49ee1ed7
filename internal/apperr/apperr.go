// Package apperr defines the error kinds shared by the booking core and the
// API layer. Domain packages declare their sentinels with New and the API maps
// a Kind to a status code.
package apperr

import (
	"errors"
	"strings"
)

type Kind string

const (
	KindInvalidIdentifier Kind = "InvalidIdentifier"
	KindRateLimited       Kind = "RateLimited"
	KindInvalidOrExpired  Kind = "InvalidOrExpired"
	KindValidation        Kind = "ValidationError"
	KindMismatch          Kind = "MismatchError"
	KindNotFound          Kind = "NotFound"
	KindForbidden         Kind = "Forbidden"
	KindInvalidState      Kind = "InvalidState"
	KindProvider          Kind = "ProviderError"
	KindSignatureInvalid  Kind = "SignatureInvalid"
	KindPersistence       Kind = "PersistenceError"
	KindUnauthorized      Kind = "Unauthorized"
)

// Error carries a Kind alongside a user-displayable message. Fields lists the
// offending input fields for validation failures.
type Error struct {
	Kind    Kind
	Message string
	Fields  []string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if len(e.Fields) > 0 {
		msg += ": " + strings.Join(e.Fields, ", ")
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind when the target is a bare kind
// sentinel (no message), so errors.Is(err, apperr.ErrNotFound) works for every
// domain-specific not-found error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Kind sentinels.
var (
	ErrInvalidIdentifier = &Error{Kind: KindInvalidIdentifier}
	ErrRateLimited       = &Error{Kind: KindRateLimited}
	ErrInvalidOrExpired  = &Error{Kind: KindInvalidOrExpired}
	ErrValidation        = &Error{Kind: KindValidation}
	ErrMismatch          = &Error{Kind: KindMismatch}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrForbidden         = &Error{Kind: KindForbidden}
	ErrInvalidState      = &Error{Kind: KindInvalidState}
	ErrProvider          = &Error{Kind: KindProvider}
	ErrSignatureInvalid  = &Error{Kind: KindSignatureInvalid}
	ErrPersistence       = &Error{Kind: KindPersistence}
	ErrUnauthorized      = &Error{Kind: KindUnauthorized}
)

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Persistence wraps a storage failure. Errors that already carry a kind are
// returned unchanged.
func Persistence(err error, message string) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return Wrap(KindPersistence, err, message)
}

func Validation(message string, fields []string) *Error {
	return &Error{Kind: KindValidation, Message: message, Fields: fields}
}

// KindOf reports the kind of err, or KindPersistence for unclassified errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindPersistence
}

// FieldsOf returns the field list attached to err, if any.
func FieldsOf(err error) []string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Fields
	}
	return nil
}
