package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boothpay/internal/clock"
	"boothpay/internal/models"
	"boothpay/internal/repository"
	"boothpay/internal/testutil"
)

// Postgres-backed settlement. Skipped when TEST_DATABASE_URL is unreachable.

func newPGReconciler(t *testing.T) (*repository.Repositories, *fakeGateway, *countingNotifier, *Reconciler) {
	t.Helper()
	db := testutil.NewTestDB(t, 20)
	repos := repository.NewRepositories(db)
	gw := newFakeGateway()
	notifier := &countingNotifier{}
	clk := clock.NewFixed(fixtureNow)

	settlement := NewSettlement(db, repos.Bookings, repos.Events, repos.Vouchers, repos.Payments, notifier, clk, nil, 2)
	return repos, gw, notifier, NewReconciler(repos.Bookings, gw, settlement, nil, clk, time.Second)
}

func TestPostgresConcurrentReconcileExactlyOnce(t *testing.T) {
	repos, gw, notifier, reconciler := newPGReconciler(t)
	ctx := context.Background()

	event := &models.Event{Title: "Expo", Published: true, BoothPrice: 100000, BoothQuota: int64p(10)}
	require.NoError(t, repos.Events.Create(ctx, event))
	require.NoError(t, repos.Vouchers.Create(ctx, &models.Voucher{Code: "EARLY", UsageCap: int64p(5), Active: true}))

	booking := &models.Booking{
		OrderID:     "BOOTH-1",
		EventID:     event.ID,
		Amount:      100000,
		VoucherCode: strp("EARLY"),
		BuyerName:   "Ayu",
		BuyerEmail:  "ayu@example.com",
	}
	require.NoError(t, repos.Bookings.Create(ctx, booking))
	gw.setStatus(booking.OrderID, "settlement", 100000)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reconciler.ReconcileOne(ctx, booking.OrderID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := repos.Bookings.GetByID(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingPaid, got.Status)
	assert.True(t, got.VoucherRedeemed)

	ev, err := repos.Events.GetByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ev.BoothSold)

	v, err := repos.Vouchers.GetByCode(ctx, "EARLY")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v.UsedCount)

	assert.Equal(t, 1, notifier.count())
}

func TestPostgresQuotaNeverExceeded(t *testing.T) {
	repos, gw, notifier, reconciler := newPGReconciler(t)
	ctx := context.Background()

	event := &models.Event{Title: "Expo", Published: true, BoothPrice: 100000, BoothQuota: int64p(3)}
	require.NoError(t, repos.Events.Create(ctx, event))

	orders := make([]string, 0, 8)
	for i := 1; i <= 8; i++ {
		b := &models.Booking{
			OrderID:    fmt.Sprintf("BOOTH-%d", i),
			EventID:    event.ID,
			Amount:     100000,
			BuyerName:  "Ayu",
			BuyerEmail: "ayu@example.com",
		}
		require.NoError(t, repos.Bookings.Create(ctx, b))
		gw.setStatus(b.OrderID, "settlement", 100000)
		orders = append(orders, b.OrderID)
	}

	var wg sync.WaitGroup
	for _, orderID := range orders {
		wg.Add(1)
		go func(orderID string) {
			defer wg.Done()
			_, err := reconciler.ReconcileOne(ctx, orderID)
			assert.NoError(t, err)
		}(orderID)
	}
	wg.Wait()

	ev, err := repos.Events.GetByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), ev.BoothSold)

	var paid, review int
	for _, orderID := range orders {
		b, err := repos.Bookings.GetByOrderID(ctx, orderID)
		require.NoError(t, err)
		switch b.Status {
		case models.BookingPaid:
			paid++
		case models.BookingReview:
			review++
			require.NotNil(t, b.ReviewReason)
			assert.Contains(t, []string{models.ReviewSoldOut, models.ReviewQuotaRace}, *b.ReviewReason)
		}
	}
	assert.Equal(t, 3, paid)
	assert.Equal(t, 5, review)
	assert.Equal(t, 3, notifier.count())
}
