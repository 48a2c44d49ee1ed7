package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/medverify-booking/internal/apperr"
	"github.com/hackgods/medverify-booking/internal/appointment"
	"github.com/hackgods/medverify-booking/internal/auth"
	"github.com/hackgods/medverify-booking/internal/identity"
	"github.com/hackgods/medverify-booking/internal/otp"
	"github.com/hackgods/medverify-booking/internal/payment"
)

type server struct {
	cfg RouterConfig
	log *zap.Logger
}

var errBadBody = apperr.New(apperr.KindValidation, "could not parse JSON body")

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errBadBody
	}
	return nil
}

func parseID(raw, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.Validation(field+" must be a valid UUID", []string{field})
	}
	return id, nil
}

func (s *server) requestOTP(w http.ResponseWriter, r *http.Request) {
	var req OTPRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.cfg.OTP.RequestCode(r.Context(), req.Identifier, otp.Type(req.Type))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, OTPRequestResponse{
		Identifier: res.Identifier,
		Type:       string(res.Type),
		ExpiresAt:  res.ExpiresAt,
	})
}

func (s *server) verifyOTP(w http.ResponseWriter, r *http.Request) {
	var req OTPVerifyRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.cfg.OTP.VerifyCode(r.Context(), req.Identifier, req.Code, otp.Type(req.Type))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ident, err := s.cfg.Identities.Resolve(r.Context(), res.Identifier, identity.IdentifierKind(res.Type))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.issueSession(w, r, ident)
}

func (s *server) adminLogin(w http.ResponseWriter, r *http.Request) {
	var req AdminLoginRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	ident, err := s.cfg.IdentityService.AuthenticateAdmin(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.issueSession(w, r, ident)
}

func (s *server) issueSession(w http.ResponseWriter, r *http.Request, ident *identity.Identity) {
	token, exp, err := s.cfg.Sessions.Issue(ident.ID, ident.Role)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{
		Token:     token,
		ExpiresAt: exp,
		User:      toIdentityResponse(ident),
	})
}

func (s *server) saveDraft(w http.ResponseWriter, r *http.Request) {
	var fields appointment.Fields
	if err := decode(r, &fields); err != nil {
		s.writeError(w, r, err)
		return
	}

	appt, err := s.cfg.Ledger.SaveDraft(r.Context(), userID(r), fields)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (s *server) latestDraft(w http.ResponseWriter, r *http.Request) {
	appt, err := s.cfg.Ledger.FindLatestDraft(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (s *server) finalize(w http.ResponseWriter, r *http.Request) {
	var fields appointment.Fields
	if err := decode(r, &fields); err != nil {
		s.writeError(w, r, err)
		return
	}

	appt, err := s.cfg.Ledger.Finalize(r.Context(), userID(r), fields)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (s *server) getAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"), "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	appt, err := s.cfg.Ledger.GetByID(r.Context(), userID(r), id)
	if errors.Is(err, apperr.ErrForbidden) {
		// another user's appointment looks the same as a missing one
		err = appointment.ErrAppointmentNotFound
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (s *server) adminGetAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"), "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	appt, err := s.cfg.Ledger.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (s *server) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	apptID, err := parseID(req.AppointmentID, "appointmentId")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	order, err := s.cfg.Payments.CreateOrder(r.Context(), userID(r), apptID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (s *server) verifyPayment(w http.ResponseWriter, r *http.Request) {
	var req VerifyPaymentRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	proof := payment.Proof{
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
	}
	if proof.PaymentID == "" {
		proof.PaymentID = req.Reference
	}
	if req.AppointmentID != "" {
		id, err := parseID(req.AppointmentID, "appointmentId")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		proof.AppointmentID = id
	}

	res, err := s.cfg.Payments.VerifyPayment(r.Context(), userID(r), proof)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := s.cfg.Payments.Reconcile(r.Context(), s.cfg.ReconcileLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func userID(r *http.Request) uuid.UUID {
	sess, _ := auth.SessionFrom(r.Context())
	if sess == nil {
		return uuid.Nil
	}
	return sess.UserID
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInvalidIdentifier, apperr.KindValidation, apperr.KindMismatch, apperr.KindInvalidOrExpired:
		return http.StatusBadRequest
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindRateLimited:
		return http.StatusTooManyRequests
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindInvalidState:
		return http.StatusConflict
	case apperr.KindProvider:
		return http.StatusBadGateway
	case apperr.KindSignatureInvalid:
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err in the error envelope. Internal failures and
// signature problems get a fixed message; the detail stays in the log.
func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)

	var msg string
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Message != "" {
		msg = ae.Message
	} else {
		msg = string(kind)
	}

	switch kind {
	case apperr.KindSignatureInvalid:
		msg = "payment verification failed"
	case apperr.KindPersistence:
		msg = "internal error"
	}

	if status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("error_kind", string(kind)),
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Success:   false,
		Error:     msg,
		ErrorKind: string(kind),
		Fields:    apperr.FieldsOf(err),
	})
}
