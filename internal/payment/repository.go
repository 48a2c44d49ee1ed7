package payment

import (
	"context"

	"github.com/google/uuid"

	"github.com/hackgods/medverify-booking/internal/apperr"
)

var (
	ErrTransactionNotFound = apperr.New(apperr.KindNotFound, "transaction not found")
	ErrDuplicateOrder      = apperr.New(apperr.KindInvalidState, "transaction already recorded for order")
	ErrPaidWithOther       = apperr.New(apperr.KindInvalidState, "order already paid with a different payment")
)

type Repository interface {
	Insert(ctx context.Context, tx *Transaction) error

	GetByOrderID(ctx context.Context, orderID string) (*Transaction, error)

	// MarkPaid moves a created transaction to paid. Re-applying the same
	// payment id is a no-op; a different one yields ErrPaidWithOther.
	MarkPaid(ctx context.Context, orderID, paymentID string) error

	// ListUnsettled returns paid transactions whose appointment is not
	// confirmed, or whose owner is not paid while this is the owner's latest
	// order. Stores that cannot join may return a superset; callers re-check.
	ListUnsettled(ctx context.Context, limit int) ([]Transaction, error)

	// LatestForUser returns the user's most recently opened transaction.
	LatestForUser(ctx context.Context, userID uuid.UUID) (*Transaction, error)
}
