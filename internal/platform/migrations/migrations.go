// Package migrations applies the database schema. Statements are ordered
// and idempotent, so Apply is safe to run on every startup.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		telegram_id BIGINT NOT NULL UNIQUE,
		username TEXT NOT NULL DEFAULT '',
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('user', 'admin')),
		credits BIGINT NOT NULL DEFAULT 0 CHECK (credits >= 0),
		last_login_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`ALTER TABLE users ADD COLUMN IF NOT EXISTS last_login_at TIMESTAMPTZ`,

	`CREATE TABLE IF NOT EXISTS parcel_requests (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		type TEXT NOT NULL CHECK (type IN ('send', 'receive')),
		from_location TEXT NOT NULL,
		to_location TEXT NOT NULL,
		description TEXT NOT NULL,
		weight DOUBLE PRECISION NOT NULL CHECK (weight > 0),
		contact_name TEXT NOT NULL,
		trip_date TIMESTAMPTZ,
		status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'accepted', 'completed', 'cancelled')),
		accepted_by UUID REFERENCES users(id) ON DELETE SET NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS credit_transactions (
		id UUID PRIMARY KEY,
		seq BIGSERIAL,
		user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		type TEXT NOT NULL CHECK (type IN ('add', 'deduct', 'refund')),
		amount BIGINT NOT NULL CHECK (amount >= 0),
		description TEXT NOT NULL DEFAULT '',
		related_request_id UUID REFERENCES parcel_requests(id) ON DELETE SET NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_parcel_requests_user_id ON parcel_requests (user_id)`,

	`CREATE INDEX IF NOT EXISTS idx_parcel_requests_status ON parcel_requests (status)`,

	`CREATE INDEX IF NOT EXISTS idx_credit_transactions_user_seq ON credit_transactions (user_id, seq DESC)`,
}

// Apply runs every schema statement in order.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
