package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "boothpay/internal/errors"
	"boothpay/internal/models"
)

func TestReconcileOneUnknownOrderSkipsGateway(t *testing.T) {
	f := newFixture(t, nil, 2)
	f.seed(1, nil, 0, 100000)

	_, err := f.reconciler.ReconcileOne(context.Background(), "BOOTH-404")

	assert.ErrorIs(t, err, apperrors.ErrBookingNotFound)
	assert.Equal(t, 0, f.gateway.fetchCalls)
}

func TestReconcileOneTransientFailureLeavesPending(t *testing.T) {
	f := newFixture(t, nil, 2)
	b := f.seed(1, nil, 0, 100000)
	f.gateway.fetchErr = fmt.Errorf("%w: fetch_status: timeout", apperrors.ErrGatewayUnavailable)

	_, err := f.reconciler.ReconcileOne(context.Background(), b.OrderID)

	assert.ErrorIs(t, err, apperrors.ErrGatewayUnavailable)
	assert.Equal(t, models.BookingPending, f.store.booking(1).Status)
	assert.Nil(t, f.store.payment(b.OrderID))
	assert.Empty(t, f.audit.outcomes)
}

func TestReconcileOneAuditFailureIsIgnored(t *testing.T) {
	f := newFixture(t, nil, 2)
	b := f.seed(1, nil, 0, 100000)
	f.audit.err = fmt.Errorf("es down")
	f.gateway.setStatus(b.OrderID, "settlement", 100000)

	res, err := f.reconciler.ReconcileOne(context.Background(), b.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingPaid, res.Status)
}

func TestReconcileSweepCollectsErrors(t *testing.T) {
	f := newFixture(t, nil, 2)
	f.seed(1, nil, 0, 100000)
	f.addBooking(2, 100000, nil)
	f.addBooking(3, 100000, nil)

	// BOOTH-2 has no gateway order yet, so fetching it fails
	f.gateway.setStatus("BOOTH-1", "settlement", 100000)
	f.gateway.setStatus("BOOTH-3", "expire", 100000)

	items, err := f.reconciler.ReconcileSweep(context.Background(), 30*time.Minute, 10)
	require.NoError(t, err)
	require.Len(t, items, 3)

	// Oldest first
	assert.Equal(t, "BOOTH-3", items[0].OrderID)
	assert.Equal(t, "BOOTH-2", items[1].OrderID)
	assert.Equal(t, "BOOTH-1", items[2].OrderID)

	assert.NoError(t, items[0].Err)
	assert.Equal(t, models.BookingFailed, items[0].Result.Status)
	assert.ErrorIs(t, items[1].Err, apperrors.ErrOrderNotFound)
	assert.Nil(t, items[1].Result)
	assert.NoError(t, items[2].Err)
	assert.Equal(t, models.BookingPaid, items[2].Result.Status)

	assert.Equal(t, models.BookingPending, f.store.booking(2).Status)
}

func TestReconcileOneStampsFailedAttempts(t *testing.T) {
	f := newFixture(t, nil, 2)
	b := f.seed(1, nil, 0, 100000)

	_, err := f.reconciler.ReconcileOne(context.Background(), b.OrderID)
	require.ErrorIs(t, err, apperrors.ErrOrderNotFound)

	got := f.store.booking(1)
	require.NotNil(t, got.LastReconciledAt)
	assert.Equal(t, fixtureNow, *got.LastReconciledAt)
}

func TestReconcileSweepRotatesPastFailingOrders(t *testing.T) {
	f := newFixture(t, nil, 2)
	f.seed(1, nil, 0, 100000)
	for id := int64(2); id <= 4; id++ {
		f.addBooking(id, 100000, nil)
	}
	// 2, 3 and 4 were never charged; the newest booking is paid at the gateway
	f.gateway.setStatus("BOOTH-1", "settlement", 100000)

	items, err := f.reconciler.ReconcileSweep(context.Background(), 30*time.Minute, 3)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "BOOTH-4", items[0].OrderID)
	assert.Equal(t, models.BookingPending, f.store.booking(1).Status)

	items, err = f.reconciler.ReconcileSweep(context.Background(), 30*time.Minute, 3)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "BOOTH-1", items[0].OrderID)
	assert.NoError(t, items[0].Err)

	assert.Equal(t, models.BookingPaid, f.store.booking(1).Status)
	assert.Equal(t, int64(1), f.store.event(1).BoothSold)
}

func TestReconcileSweepAgeAndLimit(t *testing.T) {
	f := newFixture(t, nil, 2)
	f.seed(1, nil, 0, 100000)
	for id := int64(2); id <= 5; id++ {
		f.addBooking(id, 100000, nil)
	}
	for id := int64(1); id <= 5; id++ {
		f.gateway.setStatus(fmt.Sprintf("BOOTH-%d", id), "pending", 100000)
	}

	// Bookings are id hours old; only 3, 4 and 5 are older than 150 minutes
	items, err := f.reconciler.ReconcileSweep(context.Background(), 150*time.Minute, 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "BOOTH-5", items[0].OrderID)
	assert.Equal(t, "BOOTH-4", items[1].OrderID)

	// Defaults: 15 minutes, 50 bookings
	items, err = f.reconciler.ReconcileSweep(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Len(t, items, 5)
}

func TestReconcileSweepSkipsNonPending(t *testing.T) {
	f := newFixture(t, nil, 2)
	b := f.seed(1, nil, 0, 100000)
	b.Status = models.BookingReview
	f.store.addBooking(b)

	items, err := f.reconciler.ReconcileSweep(context.Background(), time.Minute, 10)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, 0, f.gateway.fetchCalls)
}

func TestReconcileSweepStopsOnCancel(t *testing.T) {
	f := newFixture(t, nil, 2)
	f.seed(1, nil, 0, 100000)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	items, err := f.reconciler.ReconcileSweep(ctx, time.Minute, 10)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, items)
}
