package errors

import (
	"errors"
	"fmt"
)

var (
	ErrBookingNotFound    = errors.New("booking not found")
	ErrBookingAlreadyPaid = errors.New("booking is already paid")
	ErrBookingCancelled   = errors.New("booking is cancelled")
	ErrBookingFailed      = errors.New("booking payment has failed")
	ErrBookingUnderReview = errors.New("booking is under manual review")
	ErrEventNotFound      = errors.New("event not found")
	ErrEventNotPublished  = errors.New("event is not published")
	ErrSoldOut            = errors.New("event booths are sold out")
	ErrInvalidAmount      = errors.New("booking amount must be positive")

	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderIDConflict    = errors.New("order id already used at gateway")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrInvalidSignature   = errors.New("invalid notification signature")

	ErrChargeAlreadyPending  = errors.New("payment already pending at gateway")
	ErrChargeAlreadyPaid     = errors.New("payment already settled at gateway")
	ErrChargeNotPayable      = errors.New("order is no longer payable at gateway")
	ErrChargeUnknownConflict = errors.New("gateway order conflict could not be classified")
)

// ConflictKind classifies a gateway order-id conflict after a live status fetch
type ConflictKind string

const (
	ConflictAlreadyPending ConflictKind = "already_pending"
	ConflictAlreadyPaid    ConflictKind = "already_paid"
	ConflictNotPayable     ConflictKind = "not_payable"
	ConflictUnknown        ConflictKind = "unknown"
)

// ConflictError is returned by charge when the gateway refused to create a
// session because the order id was already used.
type ConflictError struct {
	Kind          ConflictKind
	OrderID       string
	GatewayStatus string
	Err           error
}

func (e *ConflictError) Error() string {
	if e.GatewayStatus != "" {
		return fmt.Sprintf("order %s: %s (gateway status %q)", e.OrderID, e.sentinel(), e.GatewayStatus)
	}
	if e.Err != nil {
		return fmt.Sprintf("order %s: %s: %v", e.OrderID, e.sentinel(), e.Err)
	}
	return fmt.Sprintf("order %s: %s", e.OrderID, e.sentinel())
}

// Is lets errors.Is match the kind sentinel
func (e *ConflictError) Is(target error) bool {
	return target == e.sentinel() || target == ErrOrderIDConflict
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

func (e *ConflictError) sentinel() error {
	switch e.Kind {
	case ConflictAlreadyPending:
		return ErrChargeAlreadyPending
	case ConflictAlreadyPaid:
		return ErrChargeAlreadyPaid
	case ConflictNotPayable:
		return ErrChargeNotPayable
	default:
		return ErrChargeUnknownConflict
	}
}
