package service

import (
	"context"
	"time"

	"boothpay/internal/clock"
	"boothpay/internal/external"
	"boothpay/internal/models"
	"boothpay/internal/repository"
)

type BookingStore interface {
	GetByID(ctx context.Context, id int64) (*models.Booking, error)
	GetByOrderID(ctx context.Context, orderID string) (*models.Booking, error)
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]models.Booking, error)
	MarkPaid(ctx context.Context, id int64, paidAt time.Time) (bool, error)
	MarkReview(ctx context.Context, id int64, reason string) (bool, error)
	RevertPaidToReview(ctx context.Context, id int64, reason string) (bool, error)
	MarkFailed(ctx context.Context, id int64) (bool, error)
	TouchReconciled(ctx context.Context, id int64, at time.Time) error
	SetVoucherRedeemed(ctx context.Context, id int64) error
}

type InventoryStore interface {
	GetByID(ctx context.Context, id int64) (*models.Event, error)
	IncrementSold(ctx context.Context, id int64) (bool, error)
}

type VoucherStore interface {
	Redeem(ctx context.Context, code string) (bool, error)
}

type PaymentRecordStore interface {
	GetByOrderID(ctx context.Context, orderID string) (*models.PaymentRecord, error)
	Upsert(ctx context.Context, record *models.PaymentRecord) error
}

// TxManager runs fn in a transaction carried by the returned context
type TxManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	WithSerializableTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Gateway interface {
	CreateSession(ctx context.Context, in external.SessionRequest) (*external.Session, error)
	FetchStatus(ctx context.Context, orderID string) (*external.Snapshot, error)
}

// AuditSink mirrors payment snapshots somewhere searchable. Best effort.
type AuditSink interface {
	IndexPaymentRecord(ctx context.Context, record *models.PaymentRecord, outcome string) error
}

type Options struct {
	AmountTolerance int64
	Fees            FeePolicy
	GatewayTimeout  time.Duration
	Charge          ChargeOptions
}

type Services struct {
	Charges    *ChargeService
	Settlement *Settlement
	Reconciler *Reconciler
}

func NewServices(repos *repository.Repositories, tx TxManager, gateway Gateway, notifier Notifier, audit AuditSink, opts Options) *Services {
	clk := clock.NewSystem()

	settlement := NewSettlement(tx, repos.Bookings, repos.Events, repos.Vouchers, repos.Payments, notifier, clk, opts.Fees, opts.AmountTolerance)
	charges := NewChargeService(repos.Bookings, repos.Events, repos.Payments, gateway, opts.Charge, opts.GatewayTimeout)
	reconciler := NewReconciler(repos.Bookings, gateway, settlement, audit, clk, opts.GatewayTimeout)

	return &Services{
		Charges:    charges,
		Settlement: settlement,
		Reconciler: reconciler,
	}
}
