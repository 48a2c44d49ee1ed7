package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const identityColumns = `id, role, email, phone, contact_email, contact_phone, name, passport_number, payment_status, payment_id, password_hash, created_at, updated_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanIdentity(row pgx.Row) (*Identity, error) {
	var i Identity

	err := row.Scan(
		&i.ID,
		&i.Role,
		&i.Email,
		&i.Phone,
		&i.ContactEmail,
		&i.ContactPhone,
		&i.Name,
		&i.PassportNumber,
		&i.PaymentStatus,
		&i.PaymentID,
		&i.PasswordHash,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrIdentityNotFound
		}
		return nil, err
	}

	return &i, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Identity, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = $1`, id)
	return scanIdentity(row)
}

func (r *PgRepository) GetByEmail(ctx context.Context, email string) (*Identity, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE email = $1`, email)
	return scanIdentity(row)
}

func (r *PgRepository) GetByPhone(ctx context.Context, phone string) (*Identity, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE phone = $1`, phone)
	return scanIdentity(row)
}

func (r *PgRepository) Create(ctx context.Context, ident *Identity) (*Identity, error) {
	id := ident.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	status := ident.PaymentStatus
	if status == "" {
		status = PaymentPending
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO identities (id, role, email, phone, name, passport_number, payment_status, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING `+identityColumns,
		id, ident.Role, ident.Email, ident.Phone, ident.Name, ident.PassportNumber, status, ident.PasswordHash)

	created, err := scanIdentity(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrIdentityExists
		}
		return nil, fmt.Errorf("insert identity: %w", err)
	}
	return created, nil
}

func (r *PgRepository) UpdateProfile(ctx context.Context, id uuid.UUID, p Profile) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE identities
		SET name = COALESCE(NULLIF($2, ''), name),
		    passport_number = COALESCE(NULLIF($3, ''), passport_number),
		    contact_email = COALESCE(NULLIF($4, ''), contact_email),
		    contact_phone = COALESCE(NULLIF($5, ''), contact_phone),
		    updated_at = now()
		WHERE id = $1
	`, id, p.Name, p.PassportNumber, p.Email, p.Phone)
	if err != nil {
		return fmt.Errorf("update identity profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrIdentityNotFound
	}
	return nil
}

func (r *PgRepository) SetPaymentStatus(ctx context.Context, id uuid.UUID, status PaymentStatus, paymentID *string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE identities
		SET payment_status = $2,
		    payment_id = COALESCE($3, payment_id),
		    updated_at = now()
		WHERE id = $1
	`, id, status, paymentID)
	if err != nil {
		return fmt.Errorf("update identity payment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrIdentityNotFound
	}
	return nil
}
