package repository

import (
	"context"
	"database/sql"
	"time"

	"boothpay/internal/database"
	"boothpay/internal/models"
)

type BookingRepository struct {
	db *database.DB
}

func NewBookingRepository(db *database.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

const bookingColumns = `
		id, order_id, event_id, amount, voucher_code, voucher_redeemed, status,
		review_reason, paid_at, last_reconciled_at, buyer_name, buyer_email, buyer_phone, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	booking := &models.Booking{}
	var status string
	err := row.Scan(
		&booking.ID,
		&booking.OrderID,
		&booking.EventID,
		&booking.Amount,
		&booking.VoucherCode,
		&booking.VoucherRedeemed,
		&status,
		&booking.ReviewReason,
		&booking.PaidAt,
		&booking.LastReconciledAt,
		&booking.BuyerName,
		&booking.BuyerEmail,
		&booking.BuyerPhone,
		&booking.CreatedAt,
		&booking.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	booking.Status = models.BookingStatus(status)
	return booking, nil
}

func (r *BookingRepository) Create(ctx context.Context, booking *models.Booking) error {
	query := `
		INSERT INTO bookings (order_id, event_id, amount, voucher_code, status, buyer_name, buyer_email, buyer_phone)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	if booking.Status == "" {
		booking.Status = models.BookingPending
	}

	return r.db.Conn(ctx).QueryRowContext(ctx, query,
		booking.OrderID,
		booking.EventID,
		booking.Amount,
		booking.VoucherCode,
		string(booking.Status),
		booking.BuyerName,
		booking.BuyerEmail,
		booking.BuyerPhone,
	).Scan(&booking.ID, &booking.CreatedAt, &booking.UpdatedAt)
}

func (r *BookingRepository) GetByID(ctx context.Context, id int64) (*models.Booking, error) {
	query := `SELECT` + bookingColumns + ` FROM bookings WHERE id = $1`

	booking, err := scanBooking(r.db.Conn(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return booking, err
}

func (r *BookingRepository) GetByOrderID(ctx context.Context, orderID string) (*models.Booking, error) {
	query := `SELECT` + bookingColumns + ` FROM bookings WHERE order_id = $1`

	booking, err := scanBooking(r.db.Conn(ctx).QueryRowContext(ctx, query, orderID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return booking, err
}

// ListStalePending returns PENDING bookings created before olderThan. Bookings
// never reconciled come first by age; the rest follow by their last attempt,
// so orders that keep failing rotate to the back instead of filling every batch.
func (r *BookingRepository) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]models.Booking, error) {
	query := `SELECT` + bookingColumns + `
		FROM bookings
		WHERE status = 'PENDING'
		  AND created_at < $1
		ORDER BY COALESCE(last_reconciled_at, created_at) ASC, id ASC
		LIMIT $2`

	rows, err := r.db.Conn(ctx).QueryContext(ctx, query, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *booking)
	}

	return bookings, rows.Err()
}

// MarkPaid performs the PENDING -> PAID transition. It reports whether this
// call was the one that changed the row.
func (r *BookingRepository) MarkPaid(ctx context.Context, id int64, paidAt time.Time) (bool, error) {
	query := `
		UPDATE bookings
		SET status = 'PAID', paid_at = $2, review_reason = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'`

	return r.execAffected(ctx, query, id, paidAt)
}

// MarkReview routes a booking to manual review unless it is already PAID.
// A booking already in REVIEW keeps its first reason.
func (r *BookingRepository) MarkReview(ctx context.Context, id int64, reason string) (bool, error) {
	query := `
		UPDATE bookings
		SET status = 'REVIEW',
		    review_reason = CASE WHEN status = 'REVIEW' THEN COALESCE(review_reason, $2) ELSE $2 END,
		    updated_at = NOW()
		WHERE id = $1 AND status <> 'PAID'`

	return r.execAffected(ctx, query, id, reason)
}

// RevertPaidToReview undoes a PAID transition made earlier in the same
// transaction when the inventory increment was refused
func (r *BookingRepository) RevertPaidToReview(ctx context.Context, id int64, reason string) (bool, error) {
	query := `
		UPDATE bookings
		SET status = 'REVIEW', review_reason = $2, paid_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'PAID'`

	return r.execAffected(ctx, query, id, reason)
}

// MarkFailed sets FAILED from PENDING, REVIEW or FAILED; PAID is never overridden
func (r *BookingRepository) MarkFailed(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE bookings
		SET status = 'FAILED', updated_at = NOW()
		WHERE id = $1 AND status IN ('PENDING', 'REVIEW', 'FAILED')`

	return r.execAffected(ctx, query, id)
}

// TouchReconciled stamps a reconcile attempt, successful or not
func (r *BookingRepository) TouchReconciled(ctx context.Context, id int64, at time.Time) error {
	query := `UPDATE bookings SET last_reconciled_at = $2 WHERE id = $1`
	_, err := r.db.Conn(ctx).ExecContext(ctx, query, id, at)
	return err
}

func (r *BookingRepository) SetVoucherRedeemed(ctx context.Context, id int64) error {
	query := `UPDATE bookings SET voucher_redeemed = TRUE, updated_at = NOW() WHERE id = $1`
	_, err := r.db.Conn(ctx).ExecContext(ctx, query, id)
	return err
}

func (r *BookingRepository) execAffected(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := r.db.Conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
