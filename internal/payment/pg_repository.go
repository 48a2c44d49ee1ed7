package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/medverify-booking/internal/db"
)

type PgRepository struct {
	pool *pgxpool.Pool
	caps db.Capabilities
}

// NewPgRepository picks its column set from caps, so it works against schemas
// where transactions has no appointment_id.
func NewPgRepository(pool *pgxpool.Pool, caps db.Capabilities) *PgRepository {
	return &PgRepository{pool: pool, caps: caps}
}

func (r *PgRepository) columns(alias string) string {
	cols := []string{"id", "user_id", "order_id", "payment_id", "amount", "currency", "status", "created_at", "updated_at"}
	if r.caps.TransactionAppointmentID {
		cols = append(cols, "appointment_id")
	}
	if alias != "" {
		for i, c := range cols {
			cols[i] = alias + "." + c
		}
	}
	return strings.Join(cols, ", ")
}

// appointmentMatch is the join from transaction t to appointment a.
func (r *PgRepository) appointmentMatch() string {
	if r.caps.TransactionAppointmentID {
		return "(a.id = t.appointment_id OR (t.appointment_id IS NULL AND a.payment_order_id = t.order_id))"
	}
	return "a.payment_order_id = t.order_id"
}

func (r *PgRepository) scanTransaction(row pgx.Row) (*Transaction, error) {
	var t Transaction
	dest := []any{
		&t.ID,
		&t.UserID,
		&t.OrderID,
		&t.PaymentID,
		&t.Amount,
		&t.Currency,
		&t.Status,
		&t.CreatedAt,
		&t.UpdatedAt,
	}
	if r.caps.TransactionAppointmentID {
		dest = append(dest, &t.AppointmentID)
	}

	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	return &t, nil
}

func (r *PgRepository) Insert(ctx context.Context, tx *Transaction) error {
	var err error
	if r.caps.TransactionAppointmentID {
		_, err = r.pool.Exec(ctx, `
			INSERT INTO transactions (id, user_id, order_id, payment_id, amount, currency, status, appointment_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, tx.ID, tx.UserID, tx.OrderID, tx.PaymentID, tx.Amount, tx.Currency, tx.Status, tx.AppointmentID)
	} else {
		_, err = r.pool.Exec(ctx, `
			INSERT INTO transactions (id, user_id, order_id, payment_id, amount, currency, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, tx.ID, tx.UserID, tx.OrderID, tx.PaymentID, tx.Amount, tx.Currency, tx.Status)
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateOrder
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (r *PgRepository) GetByOrderID(ctx context.Context, orderID string) (*Transaction, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+r.columns("")+`
		FROM transactions
		WHERE order_id = $1
	`, orderID)
	return r.scanTransaction(row)
}

func (r *PgRepository) MarkPaid(ctx context.Context, orderID, paymentID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE transactions
		SET status = 'paid',
		    payment_id = $2,
		    updated_at = now()
		WHERE order_id = $1
		  AND status = 'created'
	`, orderID, paymentID)
	if err != nil {
		return fmt.Errorf("mark transaction paid: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	current, err := r.GetByOrderID(ctx, orderID)
	if err != nil {
		return err
	}
	if current.PaymentID != nil && *current.PaymentID == paymentID {
		return nil
	}
	return ErrPaidWithOther
}

// ListUnsettled finds drift directly: a paid transaction whose appointment is
// not confirmed and completed, or whose owner is not paid while no later
// transaction exists for that owner.
func (r *PgRepository) ListUnsettled(ctx context.Context, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+r.columns("t")+`
		FROM transactions t
		JOIN identities i ON i.id = t.user_id
		WHERE t.status = 'paid'
		  AND t.payment_id IS NOT NULL
		  AND (
		    EXISTS (
		      SELECT 1 FROM appointments a
		      WHERE `+r.appointmentMatch()+`
		        AND (a.status <> 'confirmed' OR a.payment_status <> 'completed')
		    )
		    OR (
		      i.payment_status <> 'paid'
		      AND NOT EXISTS (
		        SELECT 1 FROM transactions n
		        WHERE n.user_id = t.user_id AND n.created_at > t.created_at
		      )
		    )
		  )
		ORDER BY t.updated_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unsettled transactions: %w", err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		t, err := r.scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (r *PgRepository) LatestForUser(ctx context.Context, userID uuid.UUID) (*Transaction, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+r.columns("")+`
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, userID)
	return r.scanTransaction(row)
}
