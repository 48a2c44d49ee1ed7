package payment

import (
	"time"

	"github.com/google/uuid"
)

type TransactionStatus string

const (
	TransactionCreated TransactionStatus = "created"
	TransactionPaid    TransactionStatus = "paid"
)

// Transaction is one attempt to pay for an appointment. AppointmentID is nil
// when the live schema has no column for it.
type Transaction struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	AppointmentID *uuid.UUID
	OrderID       string
	PaymentID     *string
	Amount        int64 // minor units
	Currency      string
	Status        TransactionStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Order is what the client needs to open the provider checkout.
type Order struct {
	OrderID       string    `json:"orderId"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	KeyID         string    `json:"keyId"`
	AppointmentID uuid.UUID `json:"appointmentId"`
}

// Proof is the client's claim that an order was paid. Signature proofs carry
// the checkout signature; reference proofs leave it empty and are checked
// against the provider.
type Proof struct {
	OrderID       string
	PaymentID     string
	Signature     string
	AppointmentID uuid.UUID // uuid.Nil when the client did not send one
}

func (p Proof) isReference() bool { return p.Signature == "" }

type VerifyResult struct {
	OrderID           string    `json:"orderId"`
	PaymentID         string    `json:"paymentId"`
	AppointmentID     uuid.UUID `json:"appointmentId"`
	AppointmentStatus string    `json:"appointmentStatus"`
	PaymentStatus     string    `json:"paymentStatus"`
	AlreadyVerified   bool      `json:"alreadyVerified"`
}

// ReconcileReport summarises one reconciliation pass.
type ReconcileReport struct {
	Checked              int `json:"checked"`
	AppointmentsRepaired int `json:"appointmentsRepaired"`
	IdentitiesRepaired   int `json:"identitiesRepaired"`
	Failures             int `json:"failures"`
}
