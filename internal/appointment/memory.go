package appointment

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps appointments in process memory.
type MemoryRepository struct {
	mu           sync.Mutex
	appointments map[uuid.UUID]*Appointment
	events       []EventLog
	now          func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{appointments: make(map[uuid.UUID]*Appointment), now: time.Now}
}

func cloneAppointment(a *Appointment) *Appointment {
	c := *a
	if a.PaymentOrderID != nil {
		id := *a.PaymentOrderID
		c.PaymentOrderID = &id
	}
	return &c
}

func (r *MemoryRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return cloneAppointment(a), nil
}

func (r *MemoryRepository) FindLatestDraft(_ context.Context, userID uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var latest *Appointment
	for _, a := range r.appointments {
		if a.UserID != userID || a.Status != StatusDraft {
			continue
		}
		if latest == nil || a.UpdatedAt.After(latest.UpdatedAt) {
			latest = a
		}
	}
	if latest == nil {
		return nil, ErrAppointmentNotFound
	}
	return cloneAppointment(latest), nil
}

func (r *MemoryRepository) CreateAppointment(_ context.Context, userID uuid.UUID, status AppointmentStatus, fields Fields) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	a := &Appointment{
		ID:            uuid.New(),
		UserID:        userID,
		Status:        status,
		PaymentStatus: PaymentPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	fields.ApplyTo(&a.Profile)
	r.appointments[a.ID] = a
	return cloneAppointment(a), nil
}

func (r *MemoryRepository) UpdateFields(_ context.Context, id uuid.UUID, from, to AppointmentStatus, fields Fields) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok || a.Status != from || !from.CanMoveTo(to) {
		return nil, ErrAppointmentNotFound
	}
	fields.ApplyTo(&a.Profile)
	a.Status = to
	a.UpdatedAt = r.now()
	return cloneAppointment(a), nil
}

func (r *MemoryRepository) FindByPaymentOrder(_ context.Context, orderID string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.appointments {
		if a.PaymentOrderID != nil && *a.PaymentOrderID == orderID {
			return cloneAppointment(a), nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (r *MemoryRepository) SetPaymentOrder(_ context.Context, id uuid.UUID, orderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	a.PaymentOrderID = &orderID
	a.UpdatedAt = r.now()
	return nil
}

func (r *MemoryRepository) MarkPaid(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	a.Status = StatusConfirmed
	a.PaymentStatus = PaymentCompleted
	a.UpdatedAt = r.now()
	return cloneAppointment(a), nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ev.ID = int64(len(r.events) + 1)
	r.events = append(r.events, ev)
	return nil
}

// Count returns the number of stored appointments for userID.
func (r *MemoryRepository) Count(userID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, a := range r.appointments {
		if a.UserID == userID {
			n++
		}
	}
	return n
}

// Events returns the recorded event types in insertion order.
func (r *MemoryRepository) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.EventType
	}
	return out
}
