package payment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps transactions in process memory.
type MemoryRepository struct {
	mu      sync.Mutex
	byOrder map[string]*Transaction
	seq     map[string]int64 // insertion order, ties on CreatedAt are common
	next    int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byOrder: make(map[string]*Transaction),
		seq:     make(map[string]int64),
	}
}

func cloneTransaction(t *Transaction) *Transaction {
	c := *t
	if t.AppointmentID != nil {
		id := *t.AppointmentID
		c.AppointmentID = &id
	}
	if t.PaymentID != nil {
		id := *t.PaymentID
		c.PaymentID = &id
	}
	return &c
}

func (r *MemoryRepository) Insert(_ context.Context, tx *Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byOrder[tx.OrderID]; ok {
		return ErrDuplicateOrder
	}
	now := time.Now()
	c := cloneTransaction(tx)
	c.CreatedAt, c.UpdatedAt = now, now
	r.byOrder[tx.OrderID] = c
	r.next++
	r.seq[tx.OrderID] = r.next
	return nil
}

func (r *MemoryRepository) GetByOrderID(_ context.Context, orderID string) (*Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.byOrder[orderID]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	return cloneTransaction(t), nil
}

func (r *MemoryRepository) MarkPaid(_ context.Context, orderID, paymentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.byOrder[orderID]
	if !ok {
		return ErrTransactionNotFound
	}
	if t.Status == TransactionPaid {
		if t.PaymentID != nil && *t.PaymentID == paymentID {
			return nil
		}
		return ErrPaidWithOther
	}
	t.Status = TransactionPaid
	t.PaymentID = &paymentID
	t.UpdatedAt = time.Now()
	return nil
}

// ListUnsettled returns every paid transaction, oldest first. The memory
// store cannot see appointments or identities.
func (r *MemoryRepository) ListUnsettled(_ context.Context, limit int) ([]Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Transaction
	for _, t := range r.byOrder {
		if t.Status == TransactionPaid {
			out = append(out, *cloneTransaction(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return r.seq[out[i].OrderID] < r.seq[out[j].OrderID] })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) LatestForUser(_ context.Context, userID uuid.UUID) (*Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var latest *Transaction
	for orderID, t := range r.byOrder {
		if t.UserID != userID {
			continue
		}
		if latest == nil || r.seq[orderID] > r.seq[latest.OrderID] {
			latest = t
		}
	}
	if latest == nil {
		return nil, ErrTransactionNotFound
	}
	return cloneTransaction(latest), nil
}

// Len returns the number of stored transactions.
func (r *MemoryRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byOrder)
}
