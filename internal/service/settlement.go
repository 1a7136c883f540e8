package service

import (
	"context"
	"fmt"

	"boothpay/internal/clock"
	apperrors "boothpay/internal/errors"
	"boothpay/internal/external"
	"boothpay/internal/logger"
	"boothpay/internal/metrics"
	"boothpay/internal/models"
)

// Settlement is the booking state machine. It applies one fresh gateway
// snapshot to local booking, inventory and voucher state.
type Settlement struct {
	tx        TxManager
	bookings  BookingStore
	events    InventoryStore
	vouchers  VoucherStore
	payments  PaymentRecordStore
	notifier  Notifier
	clock     clock.Clock
	fees      FeePolicy
	tolerance int64
}

func NewSettlement(tx TxManager, bookings BookingStore, events InventoryStore, vouchers VoucherStore, payments PaymentRecordStore, notifier Notifier, clk clock.Clock, fees FeePolicy, tolerance int64) *Settlement {
	if notifier == nil {
		notifier = NewLogNotifier()
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	if tolerance < 0 {
		tolerance = 0
	}
	return &Settlement{
		tx:        tx,
		bookings:  bookings,
		events:    events,
		vouchers:  vouchers,
		payments:  payments,
		notifier:  notifier,
		clock:     clk,
		fees:      fees,
		tolerance: tolerance,
	}
}

// Decision describes what Apply did
type Decision struct {
	Outcome external.Outcome
	// Changed is true when this call moved the booking to a new status
	Changed bool
	// Transitioned is true only for the single call that performed PENDING -> PAID
	Transitioned bool
	Status       models.BookingStatus
	Reason       string
	Record       *models.PaymentRecord
}

// Apply runs the transition function for a snapshot of orderID
func (s *Settlement) Apply(ctx context.Context, orderID string, snap *external.Snapshot) (*Decision, error) {
	if snap == nil {
		return nil, fmt.Errorf("order %s: missing gateway snapshot", orderID)
	}
	outcome := external.MapStatus(snap)

	var (
		decision *Decision
		err      error
	)
	switch outcome {
	case external.OutcomePaid:
		decision, err = s.commitPaid(ctx, orderID, snap)
	case external.OutcomeTerminalFailure:
		decision, err = s.applyFailure(ctx, orderID, snap)
	default:
		decision, err = s.applyOther(ctx, orderID, snap)
	}
	if err != nil {
		return nil, err
	}
	decision.Outcome = outcome

	if decision.Reason != "" && decision.Changed {
		metrics.ReviewTotal.WithLabelValues(decision.Reason).Inc()
	}

	if decision.Transitioned {
		s.notifyPaid(ctx, orderID, decision)
	}

	return decision, nil
}

func (s *Settlement) applyOther(ctx context.Context, orderID string, snap *external.Snapshot) (*Decision, error) {
	d := &Decision{}
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		booking, err := s.loadBooking(ctx, orderID)
		if err != nil {
			return err
		}
		d.Status = booking.Status
		d.Record = recordFromSnapshot(orderID, booking.ID, snap)
		return s.payments.Upsert(ctx, d.Record)
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Settlement) applyFailure(ctx context.Context, orderID string, snap *external.Snapshot) (*Decision, error) {
	d := &Decision{}
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		booking, err := s.loadBooking(ctx, orderID)
		if err != nil {
			return err
		}
		*d = Decision{Status: booking.Status}

		updated, err := s.bookings.MarkFailed(ctx, booking.ID)
		if err != nil {
			return fmt.Errorf("mark failed: %w", err)
		}
		if updated {
			d.Status = models.BookingFailed
			d.Changed = booking.Status != models.BookingFailed
		}

		d.Record = recordFromSnapshot(orderID, booking.ID, snap)
		return s.payments.Upsert(ctx, d.Record)
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// commitPaid is the paid-outcome commit protocol. The whole function may run
// several times when the serializable transaction is retried, so it rebuilds
// the decision from scratch on every attempt.
func (s *Settlement) commitPaid(ctx context.Context, orderID string, snap *external.Snapshot) (*Decision, error) {
	d := &Decision{}
	err := s.tx.WithSerializableTx(ctx, func(ctx context.Context) error {
		*d = Decision{}

		booking, err := s.loadBooking(ctx, orderID)
		if err != nil {
			return err
		}
		d.Status = booking.Status
		d.Record = recordFromSnapshot(orderID, booking.ID, snap)
		log := logger.WithContext(ctx).With("order_id", orderID, "booking_id", booking.ID)

		if booking.Status == models.BookingPaid {
			return s.payments.Upsert(ctx, d.Record)
		}

		expected := s.fees.Expected(booking.Amount, snap.PaymentType)
		gross := snap.GrossAmount.Int64()
		if diff := gross - expected; diff > s.tolerance || -diff > s.tolerance {
			log.Warn("Paid amount does not match booking, routing to review",
				"expected", expected, "gross_amount", gross, "channel", snap.PaymentType)
			if err := s.review(ctx, d, booking, models.ReviewAmountMismatch); err != nil {
				return err
			}
			return s.payments.Upsert(ctx, d.Record)
		}

		switch booking.Status {
		case models.BookingFailed, models.BookingCancelled:
			log.Warn("Gateway reports paid for a closed booking, routing to review", "status", booking.Status)
			if err := s.review(ctx, d, booking, models.ReviewPaidAfterTerminal); err != nil {
				return err
			}
			return s.payments.Upsert(ctx, d.Record)
		case models.BookingReview:
			return s.payments.Upsert(ctx, d.Record)
		}

		event, err := s.events.GetByID(ctx, booking.EventID)
		if err != nil {
			return fmt.Errorf("get event: %w", err)
		}
		if event == nil {
			return fmt.Errorf("event %d: %w", booking.EventID, apperrors.ErrEventNotFound)
		}
		if event.SoldOut() {
			log.Warn("Paid after sell-out, routing to review",
				"event_id", event.ID, "booth_sold", event.BoothSold, "booth_quota", *event.BoothQuota)
			if err := s.review(ctx, d, booking, models.ReviewSoldOut); err != nil {
				return err
			}
			return s.payments.Upsert(ctx, d.Record)
		}

		paid, err := s.bookings.MarkPaid(ctx, booking.ID, s.clock.Now())
		if err != nil {
			return fmt.Errorf("mark paid: %w", err)
		}
		if !paid {
			// Another attempt got there first; it owns the side effects.
			return s.payments.Upsert(ctx, d.Record)
		}

		incremented, err := s.events.IncrementSold(ctx, event.ID)
		if err != nil {
			return fmt.Errorf("increment sold: %w", err)
		}
		if !incremented {
			log.Warn("Inventory guard refused increment, reverting to review", "event_id", event.ID)
			if _, err := s.bookings.RevertPaidToReview(ctx, booking.ID, models.ReviewQuotaRace); err != nil {
				return fmt.Errorf("revert to review: %w", err)
			}
			d.Status = models.BookingReview
			d.Reason = models.ReviewQuotaRace
			d.Changed = true
			return s.payments.Upsert(ctx, d.Record)
		}

		d.Status = models.BookingPaid
		d.Changed = true
		d.Transitioned = true

		if booking.VoucherCode != nil && *booking.VoucherCode != "" {
			redeemed, err := s.vouchers.Redeem(ctx, *booking.VoucherCode)
			if err != nil {
				return fmt.Errorf("redeem voucher: %w", err)
			}
			if redeemed {
				if err := s.bookings.SetVoucherRedeemed(ctx, booking.ID); err != nil {
					return fmt.Errorf("set voucher redeemed: %w", err)
				}
			} else {
				log.Info("Voucher exhausted or inactive, redemption skipped", "voucher_code", *booking.VoucherCode)
			}
		}

		return s.payments.Upsert(ctx, d.Record)
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// review routes a booking to REVIEW. A booking already there keeps the reason
// it was first parked with.
func (s *Settlement) review(ctx context.Context, d *Decision, booking *models.Booking, reason string) error {
	if booking.Status == models.BookingReview {
		d.Status = models.BookingReview
		if booking.ReviewReason != nil {
			d.Reason = *booking.ReviewReason
		}
		return nil
	}

	updated, err := s.bookings.MarkReview(ctx, booking.ID, reason)
	if err != nil {
		return fmt.Errorf("mark review: %w", err)
	}
	if updated {
		d.Status = models.BookingReview
		d.Reason = reason
		d.Changed = booking.Status != models.BookingReview
	}
	return nil
}

func (s *Settlement) loadBooking(ctx context.Context, orderID string) (*models.Booking, error) {
	booking, err := s.bookings.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	if booking == nil {
		return nil, fmt.Errorf("order %s: %w", orderID, apperrors.ErrBookingNotFound)
	}
	return booking, nil
}

// notifyPaid runs outside the transaction; failures never touch booking state
func (s *Settlement) notifyPaid(ctx context.Context, orderID string, d *Decision) {
	booking, err := s.bookings.GetByOrderID(ctx, orderID)
	if err != nil || booking == nil {
		metrics.NotifyFailures.Inc()
		logger.WithContext(ctx).Error("Failed to load paid booking for notification",
			"error", err, "order_id", orderID)
		return
	}

	event := models.BookingPaidEvent{
		BookingID:   booking.ID,
		OrderID:     booking.OrderID,
		EventID:     booking.EventID,
		Amount:      booking.Amount,
		GrossAmount: d.Record.GrossAmount,
		Channel:     d.Record.Channel,
		VoucherCode: booking.VoucherCode,
		BuyerEmail:  booking.BuyerEmail,
		PaidAt:      s.clock.Now(),
	}
	if booking.PaidAt != nil {
		event.PaidAt = *booking.PaidAt
	}

	if err := s.notifier.NotifyPaid(ctx, event); err != nil {
		metrics.NotifyFailures.Inc()
		logger.WithContext(ctx).Error("Failed to send paid notification",
			"error", err, "order_id", orderID, "booking_id", booking.ID)
	}
}

func recordFromSnapshot(orderID string, bookingID int64, snap *external.Snapshot) *models.PaymentRecord {
	return &models.PaymentRecord{
		OrderID:     orderID,
		BookingID:   bookingID,
		Status:      snap.TransactionStatus,
		FraudStatus: snap.FraudStatus,
		Channel:     snap.PaymentType,
		GrossAmount: snap.GrossAmount.Int64(),
		Raw:         snap.Raw,
	}
}
