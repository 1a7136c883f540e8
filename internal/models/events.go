package models

import "time"

// NATS Event Types
const (
	EventPaymentReconcileRequested = "payment.reconcile.requested"
	EventBookingPaid               = "booking.paid"
)

// ReconcileRequestedEvent asks a consumer to pull gateway truth for an order
type ReconcileRequestedEvent struct {
	OrderID   string    `json:"order_id"`
	Source    string    `json:"source"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// BookingPaidEvent is published once per genuine PENDING -> PAID transition
type BookingPaidEvent struct {
	BookingID   int64     `json:"booking_id"`
	OrderID     string    `json:"order_id"`
	EventID     int64     `json:"event_id"`
	Amount      int64     `json:"amount"`
	GrossAmount int64     `json:"gross_amount"`
	Channel     string    `json:"channel"`
	VoucherCode *string   `json:"voucher_code,omitempty"`
	BuyerEmail  string    `json:"buyer_email"`
	PaidAt      time.Time `json:"paid_at"`
}
