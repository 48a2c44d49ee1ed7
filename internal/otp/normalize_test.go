package otp

import (
	"errors"
	"testing"

	"github.com/hackgods/medverify-booking/internal/apperr"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		in      string
		typ     Type
		want    string
		wantErr bool
	}{
		{"e164 phone", "+911234567890", TypePhone, "+911234567890", false},
		{"spaced phone", " +91 12345-67890 ", TypePhone, "+911234567890", false},
		{"national phone", "1234567890", TypePhone, "+911234567890", false},
		{"trunk prefix", "01234567890", TypePhone, "+911234567890", false},
		{"country code without plus", "911234567890", TypePhone, "+911234567890", false},
		{"international prefix", "00971501234567", TypePhone, "+971501234567", false},
		{"letters", "+91abc4567890", TypePhone, "", true},
		{"too short", "12345", TypePhone, "", true},
		{"too long", "+1234567890123456", TypePhone, "", true},
		{"email case and space", "  A@B.Com ", TypeEmail, "a@b.com", false},
		{"email without domain dot", "a@localhost", TypeEmail, "", true},
		{"email with display name", "Bob <bob@b.com>", TypeEmail, "", true},
		{"not an email", "not-an-email", TypeEmail, "", true},
		{"unknown type", "a@b.com", Type("fax"), "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Normalize(tc.in, tc.typ, "91")
			if tc.wantErr {
				if !errors.Is(err, apperr.ErrInvalidIdentifier) {
					t.Fatalf("expected InvalidIdentifier, got %q, %v", got, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}
