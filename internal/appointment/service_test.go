package appointment

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/google/uuid"

	"github.com/hackgods/medverify-booking/internal/apperr"
	"github.com/hackgods/medverify-booking/internal/identity"
)

type fakeOwners struct {
	known  map[uuid.UUID]bool
	copied []identity.Profile
}

func (f *fakeOwners) Get(_ context.Context, id uuid.UUID) (*identity.Identity, error) {
	if !f.known[id] {
		return nil, identity.ErrIdentityNotFound
	}
	return &identity.Identity{ID: id}, nil
}

func (f *fakeOwners) CopyProfile(_ context.Context, _ uuid.UUID, p identity.Profile) error {
	f.copied = append(f.copied, p)
	return nil
}

func newTestService(users ...uuid.UUID) (*Service, *MemoryRepository, *fakeOwners) {
	owners := &fakeOwners{known: map[uuid.UUID]bool{}}
	for _, u := range users {
		owners.known[u] = true
	}
	repo := NewMemoryRepository()
	return NewService(repo, owners, nil), repo, owners
}

func completeFields() Fields {
	return Fields{
		"firstName":             "Asha",
		"lastName":              "Rao",
		"email":                 "asha@example.com",
		"phone":                 "+919876543210",
		"dateOfBirth":           "1990-04-01",
		"gender":                "female",
		"nationality":           "Indian",
		"maritalStatus":         "single",
		"passportNumber":        "P1234567",
		"confirmPassportNumber": "P1234567",
		"passportIssueDate":     "2020-01-01",
		"passportIssuePlace":    "Mumbai",
		"passportExpiryDate":    "2030-01-01",
		"visaType":              "work",
		"position":              "nurse",
		"country":               "India",
		"city":                  "Mumbai",
		"appointmentType":       "standard",
	}
}

func TestSaveDraftMergesPartialSaves(t *testing.T) {
	t.Parallel()
	user := uuid.New()
	svc, repo, _ := newTestService(user)
	ctx := context.Background()

	first, err := svc.SaveDraft(ctx, user, Fields{"firstName": "Asha", "city": "Pune"})
	if err != nil {
		t.Fatalf("SaveDraft: %v", err)
	}
	if first == nil || first.Status != StatusDraft {
		t.Fatalf("expected a draft, got %+v", first)
	}

	second, err := svc.SaveDraft(ctx, user, Fields{"lastName": "Rao", "city": "  "})
	if err != nil {
		t.Fatalf("SaveDraft: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected the same draft, got %s and %s", first.ID, second.ID)
	}
	if second.Profile.FirstName != "Asha" || second.Profile.LastName != "Rao" {
		t.Errorf("expected merged names, got %+v", second.Profile)
	}
	if second.Profile.City != "Pune" {
		t.Errorf("blank value overwrote city: %q", second.Profile.City)
	}
	if n := repo.Count(user); n != 1 {
		t.Errorf("expected 1 appointment, got %d", n)
	}
}

func TestSaveDraftWithoutMeaningfulDataCreatesNothing(t *testing.T) {
	t.Parallel()
	user := uuid.New()
	svc, repo, _ := newTestService(user)

	got, err := svc.SaveDraft(context.Background(), user, Fields{"city": "Pune"})
	if err != nil {
		t.Fatalf("SaveDraft: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil draft, got %+v", got)
	}
	if n := repo.Count(user); n != 0 {
		t.Errorf("expected no appointments, got %d", n)
	}
}

func TestSaveDraftUnknownUser(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService()

	_, err := svc.SaveDraft(context.Background(), uuid.New(), Fields{"firstName": "A"})
	if !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected Forbidden, got %v", err)
	}
}

func TestFinalizeReportsMissingFields(t *testing.T) {
	t.Parallel()
	user := uuid.New()
	svc, repo, _ := newTestService(user)

	f := completeFields()
	delete(f, "visaType")
	f["city"] = " "

	_, err := svc.Finalize(context.Background(), user, f)
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	want := []string{"visaType", "city"}
	if got := apperr.FieldsOf(err); !reflect.DeepEqual(got, want) {
		t.Errorf("missing fields = %v, want %v", got, want)
	}
	if n := repo.Count(user); n != 0 {
		t.Errorf("expected no writes, got %d appointments", n)
	}
}

func TestFinalizePassportMismatchWritesNothing(t *testing.T) {
	t.Parallel()
	user := uuid.New()
	svc, repo, owners := newTestService(user)
	ctx := context.Background()

	if _, err := svc.SaveDraft(ctx, user, Fields{"firstName": "Asha"}); err != nil {
		t.Fatalf("SaveDraft: %v", err)
	}

	f := completeFields()
	f["confirmPassportNumber"] = "P7654321"
	_, err := svc.Finalize(ctx, user, f)
	if !errors.Is(err, apperr.ErrMismatch) {
		t.Fatalf("expected MismatchError, got %v", err)
	}

	draft, err := svc.FindLatestDraft(ctx, user)
	if err != nil || draft == nil {
		t.Fatalf("draft should survive: %v %v", draft, err)
	}
	if draft.Profile.LastName != "" {
		t.Errorf("draft was modified: %+v", draft.Profile)
	}
	if n := repo.Count(user); n != 1 {
		t.Errorf("expected 1 appointment, got %d", n)
	}
	if len(owners.copied) != 0 {
		t.Errorf("identity should not be touched")
	}
}

func TestFinalizePromotesDraft(t *testing.T) {
	t.Parallel()
	user := uuid.New()
	svc, repo, owners := newTestService(user)
	ctx := context.Background()

	draft, err := svc.SaveDraft(ctx, user, Fields{"firstName": "Asha", "medicalCenter": "North"})
	if err != nil {
		t.Fatalf("SaveDraft: %v", err)
	}

	appt, err := svc.Finalize(ctx, user, completeFields())
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if appt.ID != draft.ID {
		t.Errorf("expected draft %s to be promoted, got %s", draft.ID, appt.ID)
	}
	if appt.Status != StatusPaymentPending || appt.PaymentStatus != PaymentPending {
		t.Errorf("unexpected state %s/%s", appt.Status, appt.PaymentStatus)
	}
	if appt.Profile.MedicalCenter != "North" {
		t.Errorf("optional draft value lost: %+v", appt.Profile)
	}
	if n := repo.Count(user); n != 1 {
		t.Errorf("expected 1 appointment, got %d", n)
	}
	if len(owners.copied) != 1 || owners.copied[0].Name != "Asha Rao" || owners.copied[0].PassportNumber != "P1234567" {
		t.Errorf("unexpected identity copy %+v", owners.copied)
	}

	if d, _ := svc.FindLatestDraft(ctx, user); d != nil {
		t.Errorf("no draft should remain, got %s", d.ID)
	}
}

func TestFinalizeWithoutDraftInsertsFresh(t *testing.T) {
	t.Parallel()
	user := uuid.New()
	svc, repo, _ := newTestService(user)

	appt, err := svc.Finalize(context.Background(), user, completeFields())
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if appt.Status != StatusPaymentPending {
		t.Errorf("expected payment_pending, got %s", appt.Status)
	}
	if n := repo.Count(user); n != 1 {
		t.Errorf("expected 1 appointment, got %d", n)
	}
	events := repo.Events()
	if len(events) != 1 || events[0] != EventAppointmentFinalized {
		t.Errorf("unexpected events %v", events)
	}
}

func TestGetByIDChecksOwner(t *testing.T) {
	t.Parallel()
	owner, other := uuid.New(), uuid.New()
	svc, _, _ := newTestService(owner, other)
	ctx := context.Background()

	appt, err := svc.Finalize(ctx, owner, completeFields())
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	if _, err := svc.GetByID(ctx, owner, appt.ID); err != nil {
		t.Errorf("owner read failed: %v", err)
	}
	if _, err := svc.GetByID(ctx, other, appt.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected Forbidden, got %v", err)
	}
	if _, err := svc.GetByID(ctx, owner, uuid.New()); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestConfirmPaidIsIdempotent(t *testing.T) {
	t.Parallel()
	user := uuid.New()
	svc, repo, _ := newTestService(user)
	ctx := context.Background()

	appt, err := svc.Finalize(ctx, user, completeFields())
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	for i := 0; i < 2; i++ {
		got, err := svc.ConfirmPaid(ctx, appt.ID, "pay_1")
		if err != nil {
			t.Fatalf("ConfirmPaid #%d: %v", i, err)
		}
		if got.Status != StatusConfirmed || got.PaymentStatus != PaymentCompleted {
			t.Errorf("unexpected state %s/%s", got.Status, got.PaymentStatus)
		}
	}

	confirmed := 0
	for _, ev := range repo.Events() {
		if ev == EventAppointmentConfirmed {
			confirmed++
		}
	}
	if confirmed != 1 {
		t.Errorf("expected one confirmation event, got %d", confirmed)
	}
}

func TestStatusOnlyMovesForward(t *testing.T) {
	t.Parallel()

	cases := []struct {
		from, to AppointmentStatus
		want     bool
	}{
		{StatusDraft, StatusDraft, true},
		{StatusDraft, StatusPaymentPending, true},
		{StatusPaymentPending, StatusConfirmed, true},
		{StatusPaymentPending, StatusDraft, false},
		{StatusConfirmed, StatusPaymentPending, false},
		{StatusConfirmed, StatusConfirmed, false},
	}
	for _, c := range cases {
		if got := c.from.CanMoveTo(c.to); got != c.want {
			t.Errorf("%s -> %s = %t, want %t", c.from, c.to, got, c.want)
		}
	}
}
