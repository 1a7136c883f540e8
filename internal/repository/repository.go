package repository

import (
	"boothpay/internal/database"
)

type Repositories struct {
	Events   *EventRepository
	Bookings *BookingRepository
	Vouchers *VoucherRepository
	Payments *PaymentRecordRepository
}

func NewRepositories(db *database.DB) *Repositories {
	return &Repositories{
		Events:   NewEventRepository(db),
		Bookings: NewBookingRepository(db),
		Vouchers: NewVoucherRepository(db),
		Payments: NewPaymentRecordRepository(db),
	}
}
