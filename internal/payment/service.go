// Package payment creates provider orders for finalized appointments and
// reconciles verified payments onto the transaction, identity and appointment.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"github.com/hackgods/medverify-booking/internal/apperr"
	"github.com/hackgods/medverify-booking/internal/appointment"
	"github.com/hackgods/medverify-booking/internal/identity"
	"github.com/hackgods/medverify-booking/internal/notify"
	redisclient "github.com/hackgods/medverify-booking/internal/redis"
)

var (
	ErrNotPayable        = apperr.New(apperr.KindInvalidState, "appointment is not awaiting payment")
	ErrOrderInProgress   = apperr.New(apperr.KindInvalidState, "an order is already being created for this appointment")
	ErrSignatureInvalid  = apperr.New(apperr.KindSignatureInvalid, "payment verification failed")
	ErrNotOwner          = apperr.New(apperr.KindForbidden, "appointment belongs to another user")
	ErrUnknownOrder      = apperr.New(apperr.KindNotFound, "payment order not found")
	ErrAppointmentAbsent = apperr.New(apperr.KindNotFound, "no appointment for payment order")
)

// Appointments is the part of the ledger the orchestrator drives.
type Appointments interface {
	Get(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	GetByOrder(ctx context.Context, orderID string) (*appointment.Appointment, error)
	AttachOrder(ctx context.Context, id uuid.UUID, orderID string) error
	ConfirmPaid(ctx context.Context, id uuid.UUID, paymentID string) (*appointment.Appointment, error)
}

type Identities interface {
	Get(ctx context.Context, id uuid.UUID) (*identity.Identity, error)
	SetPaymentStatus(ctx context.Context, id uuid.UUID, status identity.PaymentStatus, paymentID *string) error
}

type Options struct {
	KeyID           string
	KeySecret       string
	Currency        string
	ProviderTimeout time.Duration
	NotifyTimeout   time.Duration
}

type Service struct {
	repo         Repository
	appointments Appointments
	identities   Identities
	provider     Provider
	locker       redisclient.Locker
	notifier     notify.Notifier
	opts         Options
	log          *zap.Logger

	// async runs the confirmation notification; tests make it synchronous.
	async func(func())
}

func NewService(
	repo Repository,
	appointments Appointments,
	identities Identities,
	provider Provider,
	locker redisclient.Locker,
	notifier notify.Notifier,
	opts Options,
	log *zap.Logger,
) *Service {
	if opts.Currency == "" {
		opts.Currency = "INR"
	}
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = 10 * time.Second
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	if locker == nil {
		locker = redisclient.NewLocalLocker()
	}
	return &Service{
		repo:         repo,
		appointments: appointments,
		identities:   identities,
		provider:     provider,
		locker:       locker,
		notifier:     notifier,
		opts:         opts,
		log:          log,
		async:        func(f func()) { go f() },
	}
}

// CreateOrder opens a provider order for the caller's appointment. The
// amount comes from the appointment type only.
func (s *Service) CreateOrder(ctx context.Context, userID, appointmentID uuid.UUID) (*Order, error) {
	appt, err := s.appointments.Get(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.UserID != userID {
		return nil, ErrNotOwner
	}
	if !payable(appt) {
		return nil, ErrNotPayable
	}

	var order *Order
	err = s.locker.WithLock(ctx, "order:"+appointmentID.String(), func(ctx context.Context) error {
		var err error
		order, err = s.createOrderLocked(ctx, userID, appt)
		return err
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return nil, ErrOrderInProgress
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

func payable(a *appointment.Appointment) bool {
	if a.PaymentStatus == appointment.PaymentCompleted {
		return false
	}
	return a.Status == appointment.StatusPaymentPending || a.Status == appointment.StatusDraft
}

func (s *Service) createOrderLocked(ctx context.Context, userID uuid.UUID, appt *appointment.Appointment) (*Order, error) {
	amount := PriceFor(appt.Profile.AppointmentType)

	pctx, cancel := context.WithTimeout(ctx, s.opts.ProviderTimeout)
	defer cancel()

	remote, err := s.provider.CreateOrder(pctx, OrderRequest{
		Amount:   amount,
		Currency: s.opts.Currency,
		Receipt:  "rcpt_" + ksuid.New().String(),
		Notes: map[string]string{
			"appointment_id": appt.ID.String(),
			"user_id":        userID.String(),
		},
	})
	if err != nil {
		if apperr.KindOf(err) != apperr.KindProvider {
			err = apperr.Wrap(apperr.KindProvider, err, "create payment order")
		}
		s.log.Warn("payment provider create order failed",
			zap.String("appointment_id", appt.ID.String()),
			zap.Error(err))
		return nil, err
	}

	apptID := appt.ID
	tx := &Transaction{
		ID:            uuid.New(),
		UserID:        userID,
		AppointmentID: &apptID,
		OrderID:       remote.ID,
		Amount:        amount,
		Currency:      s.opts.Currency,
		Status:        TransactionCreated,
	}
	recorded := true
	if err := s.repo.Insert(ctx, tx); err != nil {
		recorded = false
		s.log.Error("record transaction",
			zap.String("order_id", remote.ID),
			zap.String("appointment_id", appt.ID.String()),
			zap.Error(err))
	}

	if err := s.identities.SetPaymentStatus(ctx, userID, identity.PaymentPending, nil); err != nil {
		s.log.Error("set identity payment pending",
			zap.String("user_id", userID.String()),
			zap.Error(err))
	}

	if err := s.appointments.AttachOrder(ctx, appt.ID, remote.ID); err != nil {
		// a transaction row carrying the appointment id still lets the order verify
		if !recorded || !s.transactionBinds(ctx, remote.ID, appt.ID) {
			return nil, err
		}
		s.log.Error("attach order to appointment",
			zap.String("order_id", remote.ID),
			zap.String("appointment_id", appt.ID.String()),
			zap.Error(err))
	}

	s.log.Info("payment order created",
		zap.String("order_id", remote.ID),
		zap.String("appointment_id", appt.ID.String()),
		zap.Int64("amount", amount))

	return &Order{
		OrderID:       remote.ID,
		Amount:        amount,
		Currency:      s.opts.Currency,
		KeyID:         s.opts.KeyID,
		AppointmentID: appt.ID,
	}, nil
}

// transactionBinds reports whether the stored transaction for orderID carries
// appointmentID. Schemas without transactions.appointment_id never do.
func (s *Service) transactionBinds(ctx context.Context, orderID string, appointmentID uuid.UUID) bool {
	tx, err := s.repo.GetByOrderID(ctx, orderID)
	if err != nil {
		return false
	}
	return tx.AppointmentID != nil && *tx.AppointmentID == appointmentID
}

// verifyContext is everything a verification failure gets logged with.
type verifyContext struct {
	userID        uuid.UUID
	orderID       string
	paymentID     string
	appointmentID uuid.UUID
	requestID     string
	reference     bool
}

func (v verifyContext) fields() []zap.Field {
	return []zap.Field{
		zap.String("user_id", v.userID.String()),
		zap.String("order_id", v.orderID),
		zap.String("payment_id", v.paymentID),
		zap.String("appointment_id", v.appointmentID.String()),
		zap.String("request_id", v.requestID),
		zap.Bool("reference_proof", v.reference),
	}
}

// VerifyPayment checks a payment proof and, once verified, marks the
// transaction paid, the identity paid and the appointment confirmed. Those
// writes are independent: a failure is logged and never undoes an earlier one.
func (s *Service) VerifyPayment(ctx context.Context, userID uuid.UUID, proof Proof) (*VerifyResult, error) {
	vc := verifyContext{
		userID:        userID,
		orderID:       proof.OrderID,
		paymentID:     proof.PaymentID,
		appointmentID: proof.AppointmentID,
		requestID:     middleware.GetReqID(ctx),
		reference:     proof.isReference(),
	}

	var missing []string
	if proof.OrderID == "" {
		missing = append(missing, "orderId")
	}
	if proof.PaymentID == "" {
		missing = append(missing, "paymentId")
	}
	if len(missing) > 0 {
		return nil, apperr.Validation("missing payment proof fields", missing)
	}

	tx, err := s.repo.GetByOrderID(ctx, proof.OrderID)
	if err != nil && !errors.Is(err, ErrTransactionNotFound) {
		return nil, apperr.Persistence(err, "load transaction")
	}
	if errors.Is(err, ErrTransactionNotFound) {
		tx = nil
	}
	if tx != nil && tx.UserID != userID {
		return nil, ErrNotOwner
	}

	appt, err := s.resolveAppointment(ctx, proof, tx)
	if err != nil {
		return nil, err
	}
	vc.appointmentID = appt.ID
	if appt.UserID != userID {
		return nil, ErrNotOwner
	}
	if !orderBelongsTo(tx, appt, proof.OrderID) {
		s.log.Warn("payment proof names an appointment the order was not opened for", vc.fields()...)
		return nil, ErrUnknownOrder
	}

	amount := PriceFor(appt.Profile.AppointmentType)
	if tx != nil {
		amount = tx.Amount
	}

	if err := s.checkProof(ctx, proof, amount, vc); err != nil {
		return nil, err
	}

	already := false
	if tx != nil && tx.Status == TransactionPaid {
		if tx.PaymentID == nil || *tx.PaymentID != proof.PaymentID {
			s.log.Warn("verified proof for an order paid with another payment", vc.fields()...)
			return nil, ErrPaidWithOther
		}
		already = true
	}

	// (a) transaction
	var txErr error
	if tx == nil {
		apptID := appt.ID
		paymentID := proof.PaymentID
		txErr = s.repo.Insert(ctx, &Transaction{
			ID:            uuid.New(),
			UserID:        userID,
			AppointmentID: &apptID,
			OrderID:       proof.OrderID,
			PaymentID:     &paymentID,
			Amount:        amount,
			Currency:      s.opts.Currency,
			Status:        TransactionPaid,
		})
	} else if !already {
		txErr = s.repo.MarkPaid(ctx, proof.OrderID, proof.PaymentID)
	}
	if errors.Is(txErr, ErrPaidWithOther) {
		s.log.Warn("order paid concurrently with another payment", vc.fields()...)
		return nil, ErrPaidWithOther
	}
	if txErr != nil {
		s.log.Error("mark transaction paid", append(vc.fields(), zap.Error(txErr))...)
	}

	// (b) identity
	paymentID := proof.PaymentID
	if err := s.identities.SetPaymentStatus(ctx, userID, identity.PaymentPaid, &paymentID); err != nil {
		s.log.Error("mark identity paid", append(vc.fields(), zap.Error(err))...)
	}

	// (c) appointment
	confirmed, err := s.appointments.ConfirmPaid(ctx, appt.ID, proof.PaymentID)
	if err != nil {
		s.log.Error("confirm appointment", append(vc.fields(), zap.Error(err))...)
		confirmed = appt
	}

	if !already {
		s.log.Info("payment verified", vc.fields()...)
		s.sendConfirmation(ctx, userID, proof.OrderID, amount)
	}

	return &VerifyResult{
		OrderID:           proof.OrderID,
		PaymentID:         proof.PaymentID,
		AppointmentID:     confirmed.ID,
		AppointmentStatus: string(confirmed.Status),
		PaymentStatus:     string(confirmed.PaymentStatus),
		AlreadyVerified:   already,
	}, nil
}

// orderBelongsTo reports whether orderID was opened for appt. A transaction
// row without an appointment id falls back to the order attached to appt.
func orderBelongsTo(tx *Transaction, appt *appointment.Appointment, orderID string) bool {
	if tx != nil && tx.AppointmentID != nil {
		return *tx.AppointmentID == appt.ID
	}
	return appt.PaymentOrderID != nil && *appt.PaymentOrderID == orderID
}

// resolveAppointment prefers the appointment named in the proof, then the
// one recorded on the transaction, then the one the order was attached to.
func (s *Service) resolveAppointment(ctx context.Context, proof Proof, tx *Transaction) (*appointment.Appointment, error) {
	switch {
	case proof.AppointmentID != uuid.Nil:
		return s.appointments.Get(ctx, proof.AppointmentID)
	case tx != nil && tx.AppointmentID != nil:
		return s.appointments.Get(ctx, *tx.AppointmentID)
	}

	appt, err := s.appointments.GetByOrder(ctx, proof.OrderID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, ErrAppointmentAbsent
	}
	return appt, err
}

func (s *Service) checkProof(ctx context.Context, proof Proof, amount int64, vc verifyContext) error {
	if !proof.isReference() {
		if !VerifySignature(s.opts.KeySecret, proof.OrderID, proof.PaymentID, proof.Signature) {
			s.log.Warn("payment signature mismatch", vc.fields()...)
			return ErrSignatureInvalid
		}
		return nil
	}

	pctx, cancel := context.WithTimeout(ctx, s.opts.ProviderTimeout)
	defer cancel()

	remote, err := s.provider.FetchPayment(pctx, proof.PaymentID)
	if err != nil {
		if apperr.KindOf(err) != apperr.KindProvider {
			err = apperr.Wrap(apperr.KindProvider, err, "fetch payment")
		}
		s.log.Warn("payment provider fetch failed", append(vc.fields(), zap.Error(err))...)
		return err
	}

	if !remote.Settled() || remote.OrderID != proof.OrderID || remote.Amount != amount {
		s.log.Warn("payment reference did not match order",
			append(vc.fields(),
				zap.String("remote_status", remote.Status),
				zap.String("remote_order_id", remote.OrderID),
				zap.Int64("remote_amount", remote.Amount),
				zap.Int64("expected_amount", amount))...)
		return ErrSignatureInvalid
	}
	return nil
}

func (s *Service) sendConfirmation(ctx context.Context, userID uuid.UUID, orderID string, amount int64) {
	if s.notifier == nil {
		return
	}
	ident, err := s.identities.Get(ctx, userID)
	if err != nil {
		s.log.Warn("load identity for payment confirmation", zap.String("user_id", userID.String()), zap.Error(err))
		return
	}

	to, kind, ok := ident.NotifyAddress()
	if !ok {
		return
	}
	ch := notify.ChannelSMS
	if kind == identity.KindEmail {
		ch = notify.ChannelEmail
	}

	msg := notify.PaymentConfirmationMessage(orderID, amount, s.opts.Currency)
	base := context.WithoutCancel(ctx)
	s.async(func() {
		nctx, cancel := context.WithTimeout(base, s.opts.NotifyTimeout)
		defer cancel()
		if _, err := s.notifier.Send(nctx, to, ch, msg); err != nil {
			s.log.Warn("send payment confirmation",
				zap.String("user_id", userID.String()),
				zap.String("order_id", orderID),
				zap.Error(err))
		}
	})
}

// Reconcile repairs paid transactions whose appointment is not confirmed or
// whose owner is not marked paid. An owner is only repaired from their latest
// order; an older payment says nothing about an order opened since. Each
// repair is independent.
func (s *Service) Reconcile(ctx context.Context, limit int) (ReconcileReport, error) {
	var report ReconcileReport

	unsettled, err := s.repo.ListUnsettled(ctx, limit)
	if err != nil {
		return report, apperr.Persistence(err, "list unsettled transactions")
	}

	for _, tx := range unsettled {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++
		if tx.PaymentID == nil {
			continue
		}

		appt, err := s.transactionAppointment(ctx, tx)
		if err != nil {
			report.Failures++
			s.log.Error("reconcile: load appointment", zap.String("order_id", tx.OrderID), zap.Error(err))
		} else if appt.Status != appointment.StatusConfirmed || appt.PaymentStatus != appointment.PaymentCompleted {
			if _, err := s.appointments.ConfirmPaid(ctx, appt.ID, *tx.PaymentID); err != nil {
				report.Failures++
				s.log.Error("reconcile: confirm appointment", zap.String("order_id", tx.OrderID), zap.Error(err))
			} else {
				report.AppointmentsRepaired++
			}
		}

		repaired, err := s.reconcileIdentity(ctx, tx)
		if err != nil {
			report.Failures++
			s.log.Error("reconcile: identity", zap.String("order_id", tx.OrderID), zap.Error(err))
			continue
		}
		if repaired {
			report.IdentitiesRepaired++
		}
	}

	if report.AppointmentsRepaired > 0 || report.IdentitiesRepaired > 0 || report.Failures > 0 {
		s.log.Info("reconciliation pass",
			zap.Int("checked", report.Checked),
			zap.Int("appointments_repaired", report.AppointmentsRepaired),
			zap.Int("identities_repaired", report.IdentitiesRepaired),
			zap.Int("failures", report.Failures))
	}
	return report, nil
}

func (s *Service) reconcileIdentity(ctx context.Context, tx Transaction) (bool, error) {
	ident, err := s.identities.Get(ctx, tx.UserID)
	if err != nil {
		return false, fmt.Errorf("load identity: %w", err)
	}
	if ident.PaymentStatus == identity.PaymentPaid {
		return false, nil
	}

	latest, err := s.repo.LatestForUser(ctx, tx.UserID)
	if err != nil {
		return false, fmt.Errorf("load latest transaction: %w", err)
	}
	if latest.OrderID != tx.OrderID {
		return false, nil
	}

	if err := s.identities.SetPaymentStatus(ctx, tx.UserID, identity.PaymentPaid, tx.PaymentID); err != nil {
		return false, fmt.Errorf("mark identity paid: %w", err)
	}
	return true, nil
}

func (s *Service) transactionAppointment(ctx context.Context, tx Transaction) (*appointment.Appointment, error) {
	if tx.AppointmentID != nil {
		return s.appointments.Get(ctx, *tx.AppointmentID)
	}
	appt, err := s.appointments.GetByOrder(ctx, tx.OrderID)
	if err != nil {
		return nil, fmt.Errorf("order %s: %w", tx.OrderID, err)
	}
	return appt, nil
}
