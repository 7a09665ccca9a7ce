// Package migrations applies the database schema. Statements are idempotent
// so Apply can run on every startup.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		name TEXT NOT NULL,
		role TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS donations (
		id UUID PRIMARY KEY,
		donor_id UUID NOT NULL REFERENCES users(id),
		title TEXT NOT NULL,
		category TEXT NOT NULL,
		quantity DOUBLE PRECISION NOT NULL,
		unit TEXT NOT NULL,
		location TEXT NOT NULL,
		expiry_date TIMESTAMPTZ NOT NULL,
		notes TEXT,
		image_url TEXT,
		status TEXT NOT NULL DEFAULT 'available',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_donations_status_expiry ON donations (status, expiry_date)`,
	`CREATE INDEX IF NOT EXISTS idx_donations_donor ON donations (donor_id)`,
	`CREATE TABLE IF NOT EXISTS claims (
		id UUID PRIMARY KEY,
		donation_id UUID NOT NULL REFERENCES donations(id),
		receiver_id UUID NOT NULL REFERENCES users(id),
		status TEXT NOT NULL DEFAULT 'pending',
		claimed_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	// One live claim per receiver and donation; cancelled claims do not block
	// a fresh attempt.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_claims_active_pair
		ON claims (donation_id, receiver_id) WHERE status <> 'cancelled'`,
	`CREATE INDEX IF NOT EXISTS idx_claims_receiver ON claims (receiver_id)`,
	`CREATE TABLE IF NOT EXISTS verification_events (
		id UUID PRIMARY KEY,
		donation_id UUID NOT NULL REFERENCES donations(id),
		verification_code TEXT NOT NULL UNIQUE,
		event_type TEXT NOT NULL,
		scheduled_for TIMESTAMPTZ NOT NULL,
		verified_at TIMESTAMPTZ,
		data_hash TEXT,
		tx_ref TEXT,
		notes TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_verification_events_donation ON verification_events (donation_id)`,
}

// Apply runs every schema statement in order.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
