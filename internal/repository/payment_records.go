package repository

import (
	"context"
	"database/sql"

	"boothpay/internal/database"
	"boothpay/internal/models"
)

// PaymentRecordRepository stores the last known gateway snapshot per order.
// It is a cache and audit trail, never the source of truth for booking state.
type PaymentRecordRepository struct {
	db *database.DB
}

func NewPaymentRecordRepository(db *database.DB) *PaymentRecordRepository {
	return &PaymentRecordRepository{db: db}
}

func (r *PaymentRecordRepository) GetByOrderID(ctx context.Context, orderID string) (*models.PaymentRecord, error) {
	record := &models.PaymentRecord{}
	var raw []byte
	query := `
		SELECT order_id, booking_id, status, fraud_status, channel, gross_amount,
		       session_token, redirect_url, raw, updated_at
		FROM payment_records
		WHERE order_id = $1`

	err := r.db.Conn(ctx).QueryRowContext(ctx, query, orderID).Scan(
		&record.OrderID,
		&record.BookingID,
		&record.Status,
		&record.FraudStatus,
		&record.Channel,
		&record.GrossAmount,
		&record.SessionToken,
		&record.RedirectURL,
		&raw,
		&record.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	record.Raw = raw

	return record, nil
}

// Upsert writes the latest snapshot. Empty session fields and channel keep
// whatever was stored before, so a status refresh never drops the session.
func (r *PaymentRecordRepository) Upsert(ctx context.Context, record *models.PaymentRecord) error {
	query := `
		INSERT INTO payment_records
		    (order_id, booking_id, status, fraud_status, channel, gross_amount, session_token, redirect_url, raw, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (order_id) DO UPDATE SET
		    status        = EXCLUDED.status,
		    fraud_status  = EXCLUDED.fraud_status,
		    channel       = COALESCE(NULLIF(EXCLUDED.channel, ''), payment_records.channel),
		    gross_amount  = EXCLUDED.gross_amount,
		    session_token = COALESCE(NULLIF(EXCLUDED.session_token, ''), payment_records.session_token),
		    redirect_url  = COALESCE(NULLIF(EXCLUDED.redirect_url, ''), payment_records.redirect_url),
		    raw           = COALESCE(EXCLUDED.raw, payment_records.raw),
		    updated_at    = NOW()
		RETURNING updated_at`

	var raw any
	if len(record.Raw) > 0 {
		raw = string(record.Raw)
	}

	return r.db.Conn(ctx).QueryRowContext(ctx, query,
		record.OrderID,
		record.BookingID,
		record.Status,
		record.FraudStatus,
		record.Channel,
		record.GrossAmount,
		record.SessionToken,
		record.RedirectURL,
		raw,
	).Scan(&record.UpdatedAt)
}
