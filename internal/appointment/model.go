package appointment

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusDraft          AppointmentStatus = "draft"
	StatusPaymentPending AppointmentStatus = "payment_pending"
	StatusConfirmed      AppointmentStatus = "confirmed"
)

// rank orders statuses along the only allowed direction of travel.
func (s AppointmentStatus) rank() int {
	switch s {
	case StatusDraft:
		return 0
	case StatusPaymentPending:
		return 1
	case StatusConfirmed:
		return 2
	default:
		return -1
	}
}

// CanMoveTo reports whether the state machine allows s -> next. Staying in
// draft is allowed; nothing moves backward.
func (s AppointmentStatus) CanMoveTo(next AppointmentStatus) bool {
	if s == StatusDraft && next == StatusDraft {
		return true
	}
	return s.rank() >= 0 && next.rank() > s.rank()
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
)

// Profile is the applicant data collected by the booking form.
type Profile struct {
	FirstName          string
	LastName           string
	Email              string
	Phone              string
	DateOfBirth        string
	Gender             string
	Nationality        string
	MaritalStatus      string
	NationalID         string
	PassportNumber     string
	PassportIssueDate  string
	PassportIssuePlace string
	PassportExpiryDate string
	VisaType           string
	Position           string
	Country            string
	City               string
	TravelCountry      string
	AppointmentType    string
	AppointmentDate    string
	MedicalCenter      string
}

func (p Profile) FullName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	default:
		return p.FirstName + " " + p.LastName
	}
}

type Appointment struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	Status         AppointmentStatus
	PaymentStatus  PaymentStatus
	PaymentOrderID *string
	Profile        Profile
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
