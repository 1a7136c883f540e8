package database

import (
	"context"
	"fmt"
	"log/slog"
)

func (db *DB) RunMigrations(ctx context.Context) error {
	slog.Info("Running database migrations...")

	migrations := []string{
		createEventsTable,
		createVouchersTable,
		createBookingsTable,
		createPaymentRecordsTable,
		addBookingsLastReconciledAt,
		addPaymentRecordsFraudStatus,
		dropBookingsPendingCreatedIndex,
		createBookingsPendingIndex,
	}

	for i, migration := range migrations {
		slog.Info("Running migration", "step", i+1)
		if _, err := db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	slog.Info("All migrations completed successfully")
	return nil
}

const createEventsTable = `
CREATE TABLE IF NOT EXISTS events (
    id BIGSERIAL PRIMARY KEY,
    title VARCHAR(500) NOT NULL,
    published BOOLEAN NOT NULL DEFAULT FALSE,
    booth_price BIGINT NOT NULL DEFAULT 0,
    booth_quota BIGINT,
    booth_sold BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CHECK (booth_sold >= 0),
    CHECK (booth_quota IS NULL OR booth_sold <= booth_quota)
);`

const createVouchersTable = `
CREATE TABLE IF NOT EXISTS vouchers (
    code VARCHAR(64) PRIMARY KEY,
    used_count BIGINT NOT NULL DEFAULT 0,
    usage_cap BIGINT,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CHECK (usage_cap IS NULL OR used_count <= usage_cap)
);`

const createBookingsTable = `
CREATE TABLE IF NOT EXISTS bookings (
    id BIGSERIAL PRIMARY KEY,
    order_id VARCHAR(64) NOT NULL UNIQUE,
    event_id BIGINT NOT NULL REFERENCES events(id),
    amount BIGINT NOT NULL,
    voucher_code VARCHAR(64) REFERENCES vouchers(code),
    voucher_redeemed BOOLEAN NOT NULL DEFAULT FALSE,
    status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
    review_reason VARCHAR(40),
    paid_at TIMESTAMPTZ,
    last_reconciled_at TIMESTAMPTZ,
    buyer_name VARCHAR(255) NOT NULL DEFAULT '',
    buyer_email VARCHAR(255) NOT NULL DEFAULT '',
    buyer_phone VARCHAR(50) NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CHECK (status IN ('PENDING', 'PAID', 'FAILED', 'REVIEW', 'CANCELLED')),
    CHECK (status <> 'PAID' OR paid_at IS NOT NULL)
);`

const createPaymentRecordsTable = `
CREATE TABLE IF NOT EXISTS payment_records (
    order_id VARCHAR(64) PRIMARY KEY,
    booking_id BIGINT NOT NULL REFERENCES bookings(id),
    status VARCHAR(40) NOT NULL,
    fraud_status VARCHAR(20) NOT NULL DEFAULT '',
    channel VARCHAR(60) NOT NULL DEFAULT '',
    gross_amount BIGINT NOT NULL DEFAULT 0,
    session_token VARCHAR(255) NOT NULL DEFAULT '',
    redirect_url TEXT NOT NULL DEFAULT '',
    raw JSONB,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const addBookingsLastReconciledAt = `
ALTER TABLE bookings ADD COLUMN IF NOT EXISTS last_reconciled_at TIMESTAMPTZ;`

const addPaymentRecordsFraudStatus = `
ALTER TABLE payment_records ADD COLUMN IF NOT EXISTS fraud_status VARCHAR(20) NOT NULL DEFAULT '';`

const dropBookingsPendingCreatedIndex = `
DROP INDEX IF EXISTS bookings_pending_created_at_idx;`

// Sweep order: never-tried bookings by age, tried ones by their last attempt
const createBookingsPendingIndex = `
CREATE INDEX IF NOT EXISTS bookings_pending_sweep_idx
ON bookings (COALESCE(last_reconciled_at, created_at)) WHERE status = 'PENDING';`
