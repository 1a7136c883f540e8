package service

import (
	"context"
	"fmt"
	"time"

	"boothpay/internal/clock"
	apperrors "boothpay/internal/errors"
	"boothpay/internal/logger"
	"boothpay/internal/metrics"
	"boothpay/internal/models"
)

const (
	DefaultSweepMaxAge = 15 * time.Minute
	DefaultSweepLimit  = 50
	MaxSweepLimit      = 500
)

type ReconcileResult struct {
	OrderID   string `json:"order_id"`
	BookingID int64  `json:"booking_id"`
	// Mapped is the outcome the gateway status mapped to
	Mapped string `json:"mapped"`
	// Reconciled is true when this call changed the booking status
	Reconciled bool                 `json:"reconciled"`
	Status     models.BookingStatus `json:"status"`
	Reason     string               `json:"reason,omitempty"`
}

// SweepItem carries either a result or the error for one stale booking
type SweepItem struct {
	OrderID string
	Result  *ReconcileResult
	Err     error
}

// Reconciler pulls fresh gateway state and feeds it to the settlement.
// Both notifications and the sweep go through ReconcileOne; notification
// bodies are never trusted for state.
type Reconciler struct {
	bookings       BookingStore
	gateway        Gateway
	settlement     *Settlement
	audit          AuditSink
	clock          clock.Clock
	gatewayTimeout time.Duration
}

func NewReconciler(bookings BookingStore, gateway Gateway, settlement *Settlement, audit AuditSink, clk clock.Clock, gatewayTimeout time.Duration) *Reconciler {
	if gatewayTimeout <= 0 {
		gatewayTimeout = 15 * time.Second
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Reconciler{
		bookings:       bookings,
		gateway:        gateway,
		settlement:     settlement,
		audit:          audit,
		clock:          clk,
		gatewayTimeout: gatewayTimeout,
	}
}

func (r *Reconciler) ReconcileOne(ctx context.Context, orderID string) (*ReconcileResult, error) {
	log := logger.WithContext(ctx).With("order_id", orderID)

	booking, err := r.bookings.GetByOrderID(ctx, orderID)
	if err != nil {
		metrics.ReconcileTotal.WithLabelValues("none", "error").Inc()
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	if booking == nil {
		metrics.ReconcileTotal.WithLabelValues("none", "not_found").Inc()
		return nil, apperrors.ErrBookingNotFound
	}
	defer r.touch(ctx, booking.ID)

	gctx, cancel := context.WithTimeout(ctx, r.gatewayTimeout)
	snap, err := r.gateway.FetchStatus(gctx, orderID)
	cancel()
	if err != nil {
		metrics.ReconcileTotal.WithLabelValues("none", "gateway_error").Inc()
		log.Warn("Failed to fetch gateway status", "error", err)
		return nil, fmt.Errorf("fetch status for %s: %w", orderID, err)
	}

	decision, err := r.settlement.Apply(ctx, orderID, snap)
	if err != nil {
		metrics.ReconcileTotal.WithLabelValues("none", "error").Inc()
		log.Error("Failed to apply gateway status", "error", err, "transaction_status", snap.TransactionStatus)
		return nil, err
	}

	mapped := decision.Outcome.String()
	metrics.ReconcileTotal.WithLabelValues(mapped, resultLabel(decision.Changed)).Inc()

	if r.audit != nil && decision.Record != nil {
		if err := r.audit.IndexPaymentRecord(ctx, decision.Record, mapped); err != nil {
			log.Warn("Failed to index payment record", "error", err)
		}
	}

	if decision.Changed {
		log.Info("Booking reconciled",
			"booking_id", booking.ID, "outcome", mapped, "status", decision.Status, "reason", decision.Reason)
	}

	return &ReconcileResult{
		OrderID:    orderID,
		BookingID:  booking.ID,
		Mapped:     mapped,
		Reconciled: decision.Changed,
		Status:     decision.Status,
		Reason:     decision.Reason,
	}, nil
}

// ReconcileSweep reconciles PENDING bookings older than maxAge. Bookings not
// tried yet go oldest first, then those whose last attempt is oldest.
// A failing order does not stop the others; its error is kept on its item.
func (r *Reconciler) ReconcileSweep(ctx context.Context, maxAge time.Duration, limit int) ([]SweepItem, error) {
	if maxAge <= 0 {
		maxAge = DefaultSweepMaxAge
	}
	if limit <= 0 {
		limit = DefaultSweepLimit
	}
	if limit > MaxSweepLimit {
		limit = MaxSweepLimit
	}

	stale, err := r.bookings.ListStalePending(ctx, r.clock.Now().Add(-maxAge), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale bookings: %w", err)
	}

	items := make([]SweepItem, 0, len(stale))
	for _, b := range stale {
		if err := ctx.Err(); err != nil {
			return items, err
		}
		res, err := r.ReconcileOne(ctx, b.OrderID)
		items = append(items, SweepItem{OrderID: b.OrderID, Result: res, Err: err})
	}

	logger.WithContext(ctx).Info("Reconcile sweep finished",
		"candidates", len(stale), "max_age", maxAge.String(), "limit", limit)
	return items, nil
}

// touch stamps the attempt so the sweep rotates past orders that keep failing
func (r *Reconciler) touch(ctx context.Context, bookingID int64) {
	if err := r.bookings.TouchReconciled(ctx, bookingID, r.clock.Now()); err != nil {
		logger.WithContext(ctx).Warn("Failed to stamp reconcile attempt", "error", err, "booking_id", bookingID)
	}
}

func resultLabel(changed bool) string {
	if changed {
		return "changed"
	}
	return "unchanged"
}
