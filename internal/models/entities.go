package models

import (
	"encoding/json"
	"time"
)

// BookingStatus is the lifecycle state of a booth booking
type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingPaid      BookingStatus = "PAID"
	BookingFailed    BookingStatus = "FAILED"
	BookingReview    BookingStatus = "REVIEW"
	BookingCancelled BookingStatus = "CANCELLED"
)

// Review reasons recorded on bookings routed to manual resolution
const (
	ReviewAmountMismatch    = "amount_mismatch"
	ReviewSoldOut           = "sold_out"
	ReviewQuotaRace         = "quota_race"
	ReviewPaidAfterTerminal = "paid_after_terminal"
)

// Booking represents a buyer's claim on one booth at one event
type Booking struct {
	ID              int64         `json:"id" db:"id"`
	OrderID         string        `json:"order_id" db:"order_id"`
	EventID         int64         `json:"event_id" db:"event_id"`
	Amount          int64         `json:"amount" db:"amount"`
	VoucherCode     *string       `json:"voucher_code,omitempty" db:"voucher_code"`
	VoucherRedeemed bool          `json:"voucher_redeemed" db:"voucher_redeemed"`
	Status          BookingStatus `json:"status" db:"status"`
	ReviewReason    *string       `json:"review_reason,omitempty" db:"review_reason"`
	PaidAt          *time.Time    `json:"paid_at,omitempty" db:"paid_at"`
	// LastReconciledAt is the last reconcile attempt, failed ones included
	LastReconciledAt *time.Time `json:"last_reconciled_at,omitempty" db:"last_reconciled_at"`
	BuyerName        string     `json:"buyer_name" db:"buyer_name"`
	BuyerEmail       string     `json:"buyer_email" db:"buyer_email"`
	BuyerPhone       string     `json:"buyer_phone" db:"buyer_phone"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// Event holds the subset of event fields the payment engine reads and mutates
type Event struct {
	ID         int64  `json:"id" db:"id"`
	Title      string `json:"title" db:"title"`
	Published  bool   `json:"published" db:"published"`
	BoothPrice int64  `json:"booth_price" db:"booth_price"`
	BoothQuota *int64 `json:"booth_quota,omitempty" db:"booth_quota"`
	BoothSold  int64  `json:"booth_sold" db:"booth_sold"`
}

// SoldOut reports whether a finite quota has been reached
func (e *Event) SoldOut() bool {
	return e.BoothQuota != nil && e.BoothSold >= *e.BoothQuota
}

// Voucher is a discount code with an optional usage cap
type Voucher struct {
	Code      string `json:"code" db:"code"`
	UsedCount int64  `json:"used_count" db:"used_count"`
	UsageCap  *int64 `json:"usage_cap,omitempty" db:"usage_cap"`
	Active    bool   `json:"active" db:"active"`
}

// PaymentRecord caches the latest gateway snapshot for one order
type PaymentRecord struct {
	OrderID      string          `json:"order_id" db:"order_id"`
	BookingID    int64           `json:"booking_id" db:"booking_id"`
	Status       string          `json:"status" db:"status"`
	FraudStatus  string          `json:"fraud_status,omitempty" db:"fraud_status"`
	Channel      string          `json:"channel" db:"channel"`
	GrossAmount  int64           `json:"gross_amount" db:"gross_amount"`
	SessionToken string          `json:"session_token,omitempty" db:"session_token"`
	RedirectURL  string          `json:"redirect_url,omitempty" db:"redirect_url"`
	Raw          json.RawMessage `json:"raw,omitempty" db:"raw"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// PaymentRecordPending is the local status written when a session is created
const PaymentRecordPending = "PENDING"
