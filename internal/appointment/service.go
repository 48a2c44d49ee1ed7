package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/medverify-booking/internal/apperr"
	"github.com/hackgods/medverify-booking/internal/identity"
)

const (
	EventDraftCreated         = "DRAFT_CREATED"
	EventDraftUpdated         = "DRAFT_UPDATED"
	EventAppointmentFinalized = "APPOINTMENT_FINALIZED"
	EventAppointmentConfirmed = "APPOINTMENT_CONFIRMED"
)

var (
	ErrPassportMismatch = apperr.New(apperr.KindMismatch, "passport confirmation does not match passport number")
	ErrNotOwner         = apperr.New(apperr.KindForbidden, "appointment belongs to another user")
	ErrUnknownUser      = apperr.New(apperr.KindForbidden, "unknown user")
)

// Owners is the slice of the identity store the ledger needs.
type Owners interface {
	Get(ctx context.Context, id uuid.UUID) (*identity.Identity, error)
	CopyProfile(ctx context.Context, id uuid.UUID, p identity.Profile) error
}

type Service struct {
	repo   Repository
	owners Owners
	log    *zap.Logger
}

func NewService(repo Repository, owners Owners, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		repo:   repo,
		owners: owners,
		log:    log,
	}
}

// SaveDraft merges fields into the user's latest draft, or opens a draft
// when none exists and fields carry a name, email or appointment type. It
// returns nil when there is neither a draft nor enough data to start one.
// Concurrent saves for one user are last-write-wins.
func (s *Service) SaveDraft(ctx context.Context, userID uuid.UUID, fields Fields) (*Appointment, error) {
	if err := s.ensureOwner(ctx, userID); err != nil {
		return nil, err
	}
	clean := fields.Clean()

	draft, err := s.latestDraft(ctx, userID)
	if err != nil {
		return nil, err
	}

	if draft != nil {
		if len(clean) == 0 {
			return draft, nil
		}
		updated, err := s.repo.UpdateFields(ctx, draft.ID, StatusDraft, StatusDraft, clean)
		switch {
		case err == nil:
			s.logEvent(ctx, updated.ID, EventDraftUpdated, map[string]any{"fields": len(clean)})
			return updated, nil
		case !errors.Is(err, ErrAppointmentNotFound):
			return nil, apperr.Persistence(err, "update draft")
		}
		// the draft was finalized underneath us; start a new one below
	}

	if !clean.Meaningful() {
		return nil, nil
	}

	created, err := s.repo.CreateAppointment(ctx, userID, StatusDraft, clean)
	if err != nil {
		return nil, apperr.Persistence(err, "create draft")
	}
	s.logEvent(ctx, created.ID, EventDraftCreated, map[string]any{"user_id": userID.String()})
	return created, nil
}

// Finalize validates a complete submission and moves the user's draft, or a
// fresh record, to payment_pending. All validation happens before any write.
func (s *Service) Finalize(ctx context.Context, userID uuid.UUID, fields Fields) (*Appointment, error) {
	clean := fields.Clean()

	if missing := clean.Missing(); len(missing) > 0 {
		return nil, apperr.Validation("missing required fields", missing)
	}
	// exact comparison of the raw input is deliberate
	if fields["passportNumber"] != fields[confirmPassportKey] {
		return nil, ErrPassportMismatch
	}

	if err := s.ensureOwner(ctx, userID); err != nil {
		return nil, err
	}

	draft, err := s.latestDraft(ctx, userID)
	if err != nil {
		return nil, err
	}

	var appt *Appointment
	if draft != nil {
		appt, err = s.repo.UpdateFields(ctx, draft.ID, StatusDraft, StatusPaymentPending, clean)
		if errors.Is(err, ErrAppointmentNotFound) {
			draft = nil
		} else if err != nil {
			return nil, apperr.Persistence(err, "finalize draft")
		}
	}
	if draft == nil {
		appt, err = s.repo.CreateAppointment(ctx, userID, StatusPaymentPending, clean)
		if err != nil {
			return nil, apperr.Persistence(err, "create appointment")
		}
	}

	p := appt.Profile
	if err := s.owners.CopyProfile(ctx, userID, identity.Profile{
		Name:           p.FullName(),
		Email:          p.Email,
		Phone:          p.Phone,
		PassportNumber: p.PassportNumber,
	}); err != nil {
		s.log.Error("copy applicant profile to identity",
			zap.String("user_id", userID.String()),
			zap.String("appointment_id", appt.ID.String()),
			zap.Error(err))
	}

	s.logEvent(ctx, appt.ID, EventAppointmentFinalized, map[string]any{
		"user_id":     userID.String(),
		"from_draft":  draft != nil,
		"appointment": p.AppointmentType,
	})
	return appt, nil
}

// FindLatestDraft returns the user's current draft, or nil.
func (s *Service) FindLatestDraft(ctx context.Context, userID uuid.UUID) (*Appointment, error) {
	return s.latestDraft(ctx, userID)
}

// GetByID returns an appointment owned by userID.
func (s *Service) GetByID(ctx context.Context, userID, id uuid.UUID) (*Appointment, error) {
	appt, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.UserID != userID {
		return nil, ErrNotOwner
	}
	return appt, nil
}

// Get loads an appointment without an ownership check.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, apperr.Persistence(err, "load appointment")
	}
	return appt, nil
}

// GetByOrder finds the appointment a provider order was created for.
func (s *Service) GetByOrder(ctx context.Context, orderID string) (*Appointment, error) {
	appt, err := s.repo.FindByPaymentOrder(ctx, orderID)
	if err != nil {
		return nil, apperr.Persistence(err, "load appointment by order")
	}
	return appt, nil
}

// AttachOrder records the provider order created for the appointment.
func (s *Service) AttachOrder(ctx context.Context, id uuid.UUID, orderID string) error {
	return apperr.Persistence(s.repo.SetPaymentOrder(ctx, id, orderID), "attach payment order")
}

// ConfirmPaid moves the appointment to confirmed/completed after a verified
// payment. Re-applying it is a no-op.
func (s *Service) ConfirmPaid(ctx context.Context, id uuid.UUID, paymentID string) (*Appointment, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == StatusConfirmed && current.PaymentStatus == PaymentCompleted {
		return current, nil
	}

	updated, err := s.repo.MarkPaid(ctx, id)
	if err != nil {
		return nil, apperr.Persistence(err, "confirm appointment")
	}
	s.logEvent(ctx, id, EventAppointmentConfirmed, map[string]any{"payment_id": paymentID})
	return updated, nil
}

func (s *Service) ensureOwner(ctx context.Context, userID uuid.UUID) error {
	if _, err := s.owners.Get(ctx, userID); err != nil {
		if errors.Is(err, identity.ErrIdentityNotFound) {
			return ErrUnknownUser
		}
		return fmt.Errorf("load owner: %w", err)
	}
	return nil
}

func (s *Service) latestDraft(ctx context.Context, userID uuid.UUID) (*Appointment, error) {
	draft, err := s.repo.FindLatestDraft(ctx, userID)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Persistence(err, "find latest draft")
	}
	return draft, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn("marshal event payload", zap.String("event", eventType), zap.Error(err))
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Warn("insert event log",
			zap.String("event", eventType),
			zap.String("appointment_id", appointmentID.String()),
			zap.Error(err))
	}
}
