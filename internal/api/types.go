package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/medverify-booking/internal/appointment"
	"github.com/hackgods/medverify-booking/internal/identity"
)

type envelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type ErrorResponse struct {
	Success   bool     `json:"success"`
	Error     string   `json:"error"`
	ErrorKind string   `json:"errorKind"`
	Fields    []string `json:"fields,omitempty"`
}

type OTPRequest struct {
	Identifier string `json:"identifier"`
	Type       string `json:"type"`
}

type OTPRequestResponse struct {
	Identifier string    `json:"identifier"`
	Type       string    `json:"type"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

type OTPVerifyRequest struct {
	Identifier string `json:"identifier"`
	Type       string `json:"type"`
	Code       string `json:"code"`
}

type SessionResponse struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expiresAt"`
	User      IdentityResponse `json:"user"`
}

type IdentityResponse struct {
	ID            uuid.UUID `json:"id"`
	Role          string    `json:"role"`
	Email         *string   `json:"email"`
	Phone         *string   `json:"phone"`
	ContactEmail  string    `json:"contactEmail,omitempty"`
	ContactPhone  string    `json:"contactPhone,omitempty"`
	Name          string    `json:"name"`
	PaymentStatus string    `json:"paymentStatus"`
}

func toIdentityResponse(i *identity.Identity) IdentityResponse {
	return IdentityResponse{
		ID:            i.ID,
		Role:          string(i.Role),
		Email:         i.Email,
		Phone:         i.Phone,
		ContactEmail:  i.ContactEmail,
		ContactPhone:  i.ContactPhone,
		Name:          i.Name,
		PaymentStatus: string(i.PaymentStatus),
	}
}

type AdminLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AppointmentResponse struct {
	ID             uuid.UUID          `json:"id"`
	UserID         uuid.UUID          `json:"userId"`
	Status         string             `json:"status"`
	PaymentStatus  string             `json:"paymentStatus"`
	PaymentOrderID *string            `json:"paymentOrderId"`
	Fields         appointment.Fields `json:"fields"`
	CreatedAt      time.Time          `json:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

func toAppointmentResponse(a *appointment.Appointment) *AppointmentResponse {
	if a == nil {
		return nil
	}
	return &AppointmentResponse{
		ID:             a.ID,
		UserID:         a.UserID,
		Status:         string(a.Status),
		PaymentStatus:  string(a.PaymentStatus),
		PaymentOrderID: a.PaymentOrderID,
		Fields:         appointment.FieldsOf(a.Profile),
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

type CreateOrderRequest struct {
	AppointmentID string `json:"appointmentId"`
}

// VerifyPaymentRequest accepts either a checkout signature or, for UPI
// flows, a payment reference in place of paymentId.
type VerifyPaymentRequest struct {
	OrderID       string `json:"orderId"`
	PaymentID     string `json:"paymentId"`
	Reference     string `json:"reference"`
	Signature     string `json:"signature"`
	AppointmentID string `json:"appointmentId"`
}
