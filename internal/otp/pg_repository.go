package otp

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) Replace(ctx context.Context, ch *Challenge, now time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace challenge: %w", err)
	}
	defer tx.Rollback(ctx)

	// serialises concurrent requests for the same identifier
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, ch.Identifier); err != nil {
		return fmt.Errorf("lock identifier: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE otp_challenges
		SET used = true,
		    used_at = $2
		WHERE identifier = $1
		  AND used = false
		  AND expires_at > $2
	`, ch.Identifier, now)
	if err != nil {
		return fmt.Errorf("invalidate challenges: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO otp_challenges (id, identifier, code, type, expires_at, used, created_at)
		VALUES ($1, $2, $3, $4, $5, false, $6)
	`, ch.ID, ch.Identifier, ch.Code, ch.Type, ch.ExpiresAt, now)
	if err != nil {
		return fmt.Errorf("insert challenge: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit replace challenge: %w", err)
	}
	return nil
}

func (r *PgRepository) Consume(ctx context.Context, identifier string, t Type, code string, now time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE otp_challenges
		SET used = true,
		    used_at = $4
		WHERE identifier = $1
		  AND type = $2
		  AND code = $3
		  AND used = false
		  AND expires_at > $4
	`, identifier, t, code, now)
	if err != nil {
		return false, fmt.Errorf("consume challenge: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgRepository) Invalidate(ctx context.Context, id uuid.UUID, now time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE otp_challenges
		SET used = true,
		    used_at = $2
		WHERE id = $1
		  AND used = false
	`, id, now)
	if err != nil {
		return fmt.Errorf("invalidate challenge: %w", err)
	}
	return nil
}

func (r *PgRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM otp_challenges WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired challenges: %w", err)
	}
	return tag.RowsAffected(), nil
}
