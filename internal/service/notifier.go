package service

import (
	"context"

	"boothpay/internal/logger"
	"boothpay/internal/models"
)

// Notifier is told about genuine PENDING -> PAID transitions, after commit
type Notifier interface {
	NotifyPaid(ctx context.Context, event models.BookingPaidEvent) error
}

// LogNotifier only writes the paid event to the log
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (LogNotifier) NotifyPaid(ctx context.Context, event models.BookingPaidEvent) error {
	logger.WithContext(ctx).Info("Booking paid",
		"booking_id", event.BookingID,
		"order_id", event.OrderID,
		"event_id", event.EventID,
		"gross_amount", event.GrossAmount)
	return nil
}
