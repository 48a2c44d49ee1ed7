package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/hackgods/medverify-booking/internal/identity"
)

type ctxKey struct{}

// ErrorWriter renders an error response; the API layer supplies its envelope.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// RequireSession rejects requests without a valid bearer token and stores the
// session in the request context.
func RequireSession(issuer *Issuer, writeErr ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearer(r)
			if !ok {
				writeErr(w, r, ErrMissingToken)
				return
			}
			sess, err := issuer.Parse(raw)
			if err != nil {
				writeErr(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
		})
	}
}

// RequireRole must run after RequireSession.
func RequireRole(role identity.Role, writeErr ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := SessionFrom(r.Context())
			if !ok {
				writeErr(w, r, ErrMissingToken)
				return
			}
			if sess.Role != role {
				writeErr(w, r, ErrWrongRole)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(h[len(prefix):])
	return tok, tok != ""
}

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

func SessionFrom(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Session)
	return s, ok && s != nil
}
