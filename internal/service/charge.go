package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "boothpay/internal/errors"
	"boothpay/internal/external"
	"boothpay/internal/logger"
	"boothpay/internal/metrics"
	"boothpay/internal/models"
)

type ChargeOptions struct {
	Description     string
	EnabledChannels []string
	ExpiryMinutes   int
}

// ChargeResult is the payable session handed back to the buyer
type ChargeResult struct {
	OrderID      string `json:"order_id"`
	SessionToken string `json:"session_token"`
	RedirectURL  string `json:"redirect_url"`
	// Cached is true when an existing session was returned instead of a new one
	Cached bool `json:"cached"`
}

// ChargeService creates payable gateway sessions for bookings
type ChargeService struct {
	bookings       BookingStore
	events         InventoryStore
	payments       PaymentRecordStore
	gateway        Gateway
	opts           ChargeOptions
	gatewayTimeout time.Duration
}

func NewChargeService(bookings BookingStore, events InventoryStore, payments PaymentRecordStore, gateway Gateway, opts ChargeOptions, gatewayTimeout time.Duration) *ChargeService {
	if gatewayTimeout <= 0 {
		gatewayTimeout = 15 * time.Second
	}
	return &ChargeService{
		bookings:       bookings,
		events:         events,
		payments:       payments,
		gateway:        gateway,
		opts:           opts,
		gatewayTimeout: gatewayTimeout,
	}
}

// Charge returns a session for bookingID, reusing a cached one when the
// booking is still unpaid so repeated calls never open duplicate sessions.
func (s *ChargeService) Charge(ctx context.Context, bookingID int64) (*ChargeResult, error) {
	result, err := s.charge(ctx, bookingID)
	metrics.ChargeTotal.WithLabelValues(chargeResultLabel(result, err)).Inc()
	return result, err
}

func (s *ChargeService) charge(ctx context.Context, bookingID int64) (*ChargeResult, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	if booking == nil {
		return nil, apperrors.ErrBookingNotFound
	}

	switch booking.Status {
	case models.BookingPaid:
		return nil, apperrors.ErrBookingAlreadyPaid
	case models.BookingCancelled:
		return nil, apperrors.ErrBookingCancelled
	case models.BookingFailed:
		return nil, apperrors.ErrBookingFailed
	case models.BookingReview:
		return nil, apperrors.ErrBookingUnderReview
	}

	event, err := s.events.GetByID(ctx, booking.EventID)
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	if event == nil {
		return nil, apperrors.ErrEventNotFound
	}
	if !event.Published {
		return nil, apperrors.ErrEventNotPublished
	}
	if event.SoldOut() {
		return nil, apperrors.ErrSoldOut
	}
	if booking.Amount <= 0 {
		return nil, apperrors.ErrInvalidAmount
	}

	record, err := s.payments.GetByOrderID(ctx, booking.OrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment record: %w", err)
	}
	if record != nil && record.SessionToken != "" {
		if external.MapTransactionStatus(record.Status, record.FraudStatus) == external.OutcomePaid {
			return nil, apperrors.ErrBookingAlreadyPaid
		}
		return cachedResult(record), nil
	}

	gctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	session, err := s.gateway.CreateSession(gctx, external.SessionRequest{
		OrderID: booking.OrderID,
		Amount:  booking.Amount,
		Customer: external.Customer{
			Name:  booking.BuyerName,
			Email: booking.BuyerEmail,
			Phone: booking.BuyerPhone,
		},
		Options: external.SessionOptions{
			Description:     s.description(event),
			EnabledChannels: s.opts.EnabledChannels,
			ExpiryMinutes:   s.opts.ExpiryMinutes,
		},
	})
	cancel()
	if err != nil {
		if errors.Is(err, apperrors.ErrOrderIDConflict) {
			return s.resolveConflict(ctx, booking)
		}
		return nil, fmt.Errorf("failed to create payment session: %w", err)
	}

	record = &models.PaymentRecord{
		OrderID:      booking.OrderID,
		BookingID:    booking.ID,
		Status:       models.PaymentRecordPending,
		GrossAmount:  booking.Amount,
		SessionToken: session.Token,
		RedirectURL:  session.RedirectURL,
		Raw:          session.Raw,
	}
	if err := s.payments.Upsert(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to save payment record: %w", err)
	}

	logger.WithContext(ctx).Info("Payment session created",
		"booking_id", booking.ID, "order_id", booking.OrderID, "amount", booking.Amount)

	return &ChargeResult{
		OrderID:      booking.OrderID,
		SessionToken: session.Token,
		RedirectURL:  session.RedirectURL,
	}, nil
}

// resolveConflict classifies a reused order id from the gateway's live view.
// A previous attempt may have succeeded at the gateway without a local record.
func (s *ChargeService) resolveConflict(ctx context.Context, booking *models.Booking) (*ChargeResult, error) {
	log := logger.WithContext(ctx).With("booking_id", booking.ID, "order_id", booking.OrderID)

	gctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	snap, err := s.gateway.FetchStatus(gctx, booking.OrderID)
	cancel()
	if err != nil {
		log.Warn("Order id conflict and status fetch failed", "error", err)
		return nil, &apperrors.ConflictError{Kind: apperrors.ConflictUnknown, OrderID: booking.OrderID, Err: err}
	}

	if err := s.payments.Upsert(ctx, recordFromSnapshot(booking.OrderID, booking.ID, snap)); err != nil {
		log.Error("Failed to cache conflicting gateway snapshot", "error", err)
	}

	conflict := &apperrors.ConflictError{OrderID: booking.OrderID, GatewayStatus: snap.TransactionStatus}
	switch external.MapStatus(snap) {
	case external.OutcomePaid:
		conflict.Kind = apperrors.ConflictAlreadyPaid
	case external.OutcomeTerminalFailure:
		conflict.Kind = apperrors.ConflictNotPayable
	default:
		switch strings.ToLower(strings.TrimSpace(snap.TransactionStatus)) {
		case "pending", "authorize", "capture":
			// A concurrent charge may have cached its session by now.
			record, err := s.payments.GetByOrderID(ctx, booking.OrderID)
			if err == nil && record != nil && record.SessionToken != "" {
				return cachedResult(record), nil
			}
			conflict.Kind = apperrors.ConflictAlreadyPending
		case "":
			conflict.Kind = apperrors.ConflictUnknown
		default:
			conflict.Kind = apperrors.ConflictNotPayable
		}
	}

	log.Info("Order id conflict classified", "kind", conflict.Kind, "gateway_status", snap.TransactionStatus)
	return nil, conflict
}

func (s *ChargeService) description(event *models.Event) string {
	if s.opts.Description != "" {
		return s.opts.Description
	}
	return "Booth: " + event.Title
}

func cachedResult(record *models.PaymentRecord) *ChargeResult {
	return &ChargeResult{
		OrderID:      record.OrderID,
		SessionToken: record.SessionToken,
		RedirectURL:  record.RedirectURL,
		Cached:       true,
	}
}

func chargeResultLabel(result *ChargeResult, err error) string {
	switch {
	case err == nil && result.Cached:
		return "cached"
	case err == nil:
		return "created"
	case errors.Is(err, apperrors.ErrOrderIDConflict):
		return "conflict"
	case external.IsTransient(err):
		return "gateway_error"
	default:
		return "rejected"
	}
}
