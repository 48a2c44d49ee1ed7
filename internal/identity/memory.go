package identity

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps identities in process memory. It backs STORAGE=memory
// and the package tests.
type MemoryRepository struct {
	mu         sync.RWMutex
	identities map[uuid.UUID]*Identity
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{identities: make(map[uuid.UUID]*Identity)}
}

func clone(i *Identity) *Identity {
	c := *i
	return &c
}

func (r *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.identities[id]
	if !ok {
		return nil, ErrIdentityNotFound
	}
	return clone(i), nil
}

func (r *MemoryRepository) GetByEmail(_ context.Context, email string) (*Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.findLocked(func(i *Identity) bool { return i.Email != nil && *i.Email == email })
}

func (r *MemoryRepository) GetByPhone(_ context.Context, phone string) (*Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.findLocked(func(i *Identity) bool { return i.Phone != nil && *i.Phone == phone })
}

func (r *MemoryRepository) findLocked(match func(*Identity) bool) (*Identity, error) {
	for _, i := range r.identities {
		if match(i) {
			return clone(i), nil
		}
	}
	return nil, ErrIdentityNotFound
}

func (r *MemoryRepository) Create(_ context.Context, ident *Identity) (*Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.identities {
		if ident.Email != nil && existing.Email != nil && *existing.Email == *ident.Email {
			return nil, ErrIdentityExists
		}
		if ident.Phone != nil && existing.Phone != nil && *existing.Phone == *ident.Phone {
			return nil, ErrIdentityExists
		}
	}

	c := clone(ident)
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if _, taken := r.identities[c.ID]; taken {
		return nil, ErrIdentityExists
	}
	if c.PaymentStatus == "" {
		c.PaymentStatus = PaymentPending
	}
	now := time.Now()
	c.CreatedAt, c.UpdatedAt = now, now
	r.identities[c.ID] = c
	return clone(c), nil
}

func (r *MemoryRepository) UpdateProfile(_ context.Context, id uuid.UUID, p Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.identities[id]
	if !ok {
		return ErrIdentityNotFound
	}
	if p.Name != "" {
		i.Name = p.Name
	}
	if p.PassportNumber != "" {
		i.PassportNumber = p.PassportNumber
	}
	if p.Email != "" {
		i.ContactEmail = p.Email
	}
	if p.Phone != "" {
		i.ContactPhone = p.Phone
	}
	i.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryRepository) SetPaymentStatus(_ context.Context, id uuid.UUID, status PaymentStatus, paymentID *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.identities[id]
	if !ok {
		return ErrIdentityNotFound
	}
	i.PaymentStatus = status
	if paymentID != nil {
		pid := *paymentID
		i.PaymentID = &pid
	}
	i.UpdatedAt = time.Now()
	return nil
}
