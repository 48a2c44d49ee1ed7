package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// appointmentColumns is the SELECT list matching scanAppointment.
var appointmentColumns = func() string {
	cols := []string{"id", "user_id", "status", "payment_status", "payment_order_id", "created_at", "updated_at"}
	for _, s := range storedSpecs {
		cols = append(cols, s.Column)
	}
	return strings.Join(cols, ", ")
}()

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	dest := []any{
		&a.ID,
		&a.UserID,
		&a.Status,
		&a.PaymentStatus,
		&a.PaymentOrderID,
		&a.CreatedAt,
		&a.UpdatedAt,
	}
	for _, s := range storedSpecs {
		dest = append(dest, s.get(&a.Profile))
	}

	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	return scanAppointment(row)
}

func (r *PgRepository) FindLatestDraft(ctx context.Context, userID uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE user_id = $1 AND status = 'draft'
		ORDER BY updated_at DESC
		LIMIT 1
	`, userID)
	return scanAppointment(row)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, userID uuid.UUID, status AppointmentStatus, fields Fields) (*Appointment, error) {
	cols, vals := fields.columnValues()

	cols = append([]string{"id", "user_id", "status", "payment_status"}, cols...)
	vals = append([]any{uuid.New(), userID, status, PaymentPending}, vals...)

	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (`+strings.Join(cols, ", ")+`, created_at, updated_at)
		VALUES (`+strings.Join(placeholders, ", ")+`, now(), now())
		RETURNING `+appointmentColumns, vals...)

	return scanAppointment(row)
}

func (r *PgRepository) UpdateFields(ctx context.Context, id uuid.UUID, from, to AppointmentStatus, fields Fields) (*Appointment, error) {
	if !from.CanMoveTo(to) {
		return nil, fmt.Errorf("appointment status %s -> %s not allowed", from, to)
	}
	cols, vals := fields.columnValues()

	args := []any{id, from, to}
	sets := []string{"status = $3", "updated_at = now()"}
	for i, c := range cols {
		sets = append(sets, fmt.Sprintf("%s = $%d", c, i+4))
		args = append(args, vals[i])
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET `+strings.Join(sets, ", ")+`
		WHERE id = $1
		  AND status = $2
		RETURNING `+appointmentColumns, args...)

	return scanAppointment(row)
}

func (r *PgRepository) FindByPaymentOrder(ctx context.Context, orderID string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE payment_order_id = $1
		LIMIT 1
	`, orderID)
	return scanAppointment(row)
}

func (r *PgRepository) SetPaymentOrder(ctx context.Context, id uuid.UUID, orderID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET payment_order_id = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, orderID)
	if err != nil {
		return fmt.Errorf("set payment order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) MarkPaid(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'confirmed',
		    payment_status = 'completed',
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns, id)
	return scanAppointment(row)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
