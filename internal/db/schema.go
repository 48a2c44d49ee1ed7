package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS identities (
	id             UUID PRIMARY KEY,
	role           TEXT NOT NULL DEFAULT 'user',
	email          TEXT UNIQUE,
	phone          TEXT UNIQUE,
	contact_email  TEXT NOT NULL DEFAULT '',
	contact_phone  TEXT NOT NULL DEFAULT '',
	name           TEXT NOT NULL DEFAULT '',
	passport_number TEXT NOT NULL DEFAULT '',
	payment_status TEXT NOT NULL DEFAULT 'pending',
	payment_id     TEXT,
	password_hash  TEXT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

ALTER TABLE identities ADD COLUMN IF NOT EXISTS contact_email TEXT NOT NULL DEFAULT '';
ALTER TABLE identities ADD COLUMN IF NOT EXISTS contact_phone TEXT NOT NULL DEFAULT '';

CREATE TABLE IF NOT EXISTS otp_challenges (
	id         UUID PRIMARY KEY,
	identifier TEXT NOT NULL,
	code       TEXT NOT NULL,
	type       TEXT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	used       BOOLEAN NOT NULL DEFAULT false,
	used_at    TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_otp_challenges_identifier ON otp_challenges (identifier, used, expires_at);

CREATE TABLE IF NOT EXISTS appointments (
	id                    UUID PRIMARY KEY,
	user_id               UUID NOT NULL REFERENCES identities (id),
	status                TEXT NOT NULL,
	payment_status        TEXT NOT NULL DEFAULT 'pending',
	payment_order_id      TEXT,
	first_name            TEXT NOT NULL DEFAULT '',
	last_name             TEXT NOT NULL DEFAULT '',
	email                 TEXT NOT NULL DEFAULT '',
	phone                 TEXT NOT NULL DEFAULT '',
	date_of_birth         TEXT NOT NULL DEFAULT '',
	gender                TEXT NOT NULL DEFAULT '',
	nationality           TEXT NOT NULL DEFAULT '',
	marital_status        TEXT NOT NULL DEFAULT '',
	national_id           TEXT NOT NULL DEFAULT '',
	passport_number       TEXT NOT NULL DEFAULT '',
	passport_issue_date   TEXT NOT NULL DEFAULT '',
	passport_issue_place  TEXT NOT NULL DEFAULT '',
	passport_expiry_date  TEXT NOT NULL DEFAULT '',
	visa_type             TEXT NOT NULL DEFAULT '',
	position              TEXT NOT NULL DEFAULT '',
	country               TEXT NOT NULL DEFAULT '',
	city                  TEXT NOT NULL DEFAULT '',
	travel_country        TEXT NOT NULL DEFAULT '',
	appointment_type      TEXT NOT NULL DEFAULT '',
	appointment_date      TEXT NOT NULL DEFAULT '',
	medical_center        TEXT NOT NULL DEFAULT '',
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_appointments_user_status ON appointments (user_id, status, updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_appointments_payment_order ON appointments (payment_order_id);

CREATE TABLE IF NOT EXISTS event_logs (
	id             BIGSERIAL PRIMARY KEY,
	event_type     TEXT NOT NULL,
	appointment_id UUID,
	payload        JSONB,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS transactions (
	id             UUID PRIMARY KEY,
	user_id        UUID NOT NULL,
	appointment_id UUID,
	order_id       TEXT NOT NULL UNIQUE,
	payment_id     TEXT,
	amount         BIGINT NOT NULL,
	currency       TEXT NOT NULL,
	status         TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions (status);
CREATE INDEX IF NOT EXISTS idx_transactions_user_created ON transactions (user_id, created_at DESC);
`

// EnsureSchema creates the tables if they do not exist. Deployments whose
// transactions table predates appointment_id keep working; see Capabilities.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Capabilities describes optional columns of the live schema. It is resolved
// once at startup and handed to the repositories.
type Capabilities struct {
	TransactionAppointmentID bool
}

func DetectCapabilities(ctx context.Context, pool *pgxpool.Pool) (Capabilities, error) {
	var caps Capabilities

	err := pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM information_schema.columns
			WHERE table_schema = current_schema()
			  AND table_name = 'transactions'
			  AND column_name = 'appointment_id'
		)
	`).Scan(&caps.TransactionAppointmentID)
	if err != nil {
		return Capabilities{}, fmt.Errorf("detect schema capabilities: %w", err)
	}

	return caps, nil
}
