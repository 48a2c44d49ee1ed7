package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/medverify-booking/internal/apperr"
)

var (
	ErrAppointmentNotFound = apperr.New(apperr.KindNotFound, "appointment not found")
)

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// Repository contains all DB interactions needed by the ledger.
type Repository interface {
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// FindLatestDraft returns the most recently updated draft for the user.
	FindLatestDraft(ctx context.Context, userID uuid.UUID) (*Appointment, error)

	CreateAppointment(ctx context.Context, userID uuid.UUID, status AppointmentStatus, fields Fields) (*Appointment, error)

	// UpdateFields writes fields and moves the status from -> to, only while
	// the row is still in status from. ErrAppointmentNotFound otherwise.
	UpdateFields(ctx context.Context, id uuid.UUID, from, to AppointmentStatus, fields Fields) (*Appointment, error)

	FindByPaymentOrder(ctx context.Context, orderID string) (*Appointment, error)

	SetPaymentOrder(ctx context.Context, id uuid.UUID, orderID string) error

	// MarkPaid sets confirmed/completed. Applying it twice is harmless.
	MarkPaid(ctx context.Context, id uuid.UUID) (*Appointment, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
