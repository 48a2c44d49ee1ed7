package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/medverify-booking/internal/apperr"
	"github.com/hackgods/medverify-booking/internal/identity"
)

func TestIssueAndParse(t *testing.T) {
	t.Parallel()
	iss := NewIssuer("secret", time.Hour)
	id := uuid.New()

	tok, exp, err := iss.Issue(id, identity.RoleAdmin)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Errorf("expiry in the past: %s", exp)
	}

	sess, err := iss.Parse(tok)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if sess.UserID != id || sess.Role != identity.RoleAdmin {
		t.Errorf("unexpected session %+v", sess)
	}
}

func TestParseRejectsExpiredAndForeignTokens(t *testing.T) {
	t.Parallel()
	iss := NewIssuer("secret", time.Minute)
	tok, _, err := iss.Issue(uuid.New(), identity.RoleUser)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	later := NewIssuer("secret", time.Minute)
	later.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := later.Parse(tok); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Errorf("expected Unauthorized for expired token, got %v", err)
	}

	other := NewIssuer("another-secret", time.Minute)
	if _, err := other.Parse(tok); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Errorf("expected Unauthorized for foreign token, got %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	t.Parallel()
	iss := NewIssuer("secret", time.Hour)
	var gotErr error
	writeErr := func(w http.ResponseWriter, _ *http.Request, err error) {
		gotErr = err
		w.WriteHeader(http.StatusTeapot)
	}

	var seen *Session
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = SessionFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := RequireSession(iss, writeErr)(RequireRole(identity.RoleAdmin, writeErr)(final))

	// no header
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if !errors.Is(gotErr, ErrMissingToken) {
		t.Errorf("expected missing token, got %v", gotErr)
	}

	// user token on an admin route
	userTok, _, _ := iss.Issue(uuid.New(), identity.RoleUser)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+userTok)
	h.ServeHTTP(httptest.NewRecorder(), req)
	if !errors.Is(gotErr, apperr.ErrForbidden) {
		t.Errorf("expected Forbidden, got %v", gotErr)
	}

	adminID := uuid.New()
	adminTok, _, _ := iss.Issue(adminID, identity.RoleAdmin)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer "+adminTok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if seen == nil || seen.UserID != adminID {
		t.Errorf("session not propagated: %+v", seen)
	}
}
