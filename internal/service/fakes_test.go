package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"boothpay/internal/clock"
	apperrors "boothpay/internal/errors"
	"boothpay/internal/external"
	"boothpay/internal/models"
)

type inTxKey struct{}

// memStore is an in-memory stand-in for the Postgres repositories. Whole
// transactions are serialized on txMu and rolled back from a snapshot on
// error; single statements are atomic under dataMu.
type memStore struct {
	txMu   sync.Mutex
	dataMu sync.Mutex

	bookings map[int64]*models.Booking
	events   map[int64]*models.Event
	vouchers map[string]*models.Voucher
	payments map[string]*models.PaymentRecord

	failUpsert error
}

func newMemStore() *memStore {
	return &memStore{
		bookings: map[int64]*models.Booking{},
		events:   map[int64]*models.Event{},
		vouchers: map[string]*models.Voucher{},
		payments: map[string]*models.PaymentRecord{},
	}
}

type memSnapshot struct {
	bookings map[int64]models.Booking
	events   map[int64]models.Event
	vouchers map[string]models.Voucher
	payments map[string]models.PaymentRecord
}

func (s *memStore) snapshot() memSnapshot {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	snap := memSnapshot{
		bookings: map[int64]models.Booking{},
		events:   map[int64]models.Event{},
		vouchers: map[string]models.Voucher{},
		payments: map[string]models.PaymentRecord{},
	}
	for k, v := range s.bookings {
		snap.bookings[k] = *v
	}
	for k, v := range s.events {
		snap.events[k] = *v
	}
	for k, v := range s.vouchers {
		snap.vouchers[k] = *v
	}
	for k, v := range s.payments {
		snap.payments[k] = *v
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	s.bookings = map[int64]*models.Booking{}
	for k, v := range snap.bookings {
		v := v
		s.bookings[k] = &v
	}
	s.events = map[int64]*models.Event{}
	for k, v := range snap.events {
		v := v
		s.events[k] = &v
	}
	s.vouchers = map[string]*models.Voucher{}
	for k, v := range snap.vouchers {
		v := v
		s.vouchers[k] = &v
	}
	s.payments = map[string]*models.PaymentRecord{}
	for k, v := range snap.payments {
		v := v
		s.payments[k] = &v
	}
}

func (s *memStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(inTxKey{}) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, inTxKey{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *memStore) WithSerializableTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.WithTx(ctx, fn)
}

// bookings

func (s *memStore) addBooking(b models.Booking) {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	s.bookings[b.ID] = &b
}

func (s *memStore) booking(id int64) models.Booking {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	return *s.bookings[id]
}

func (s *memStore) GetByOrderID(_ context.Context, orderID string) (*models.Booking, error) {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	for _, b := range s.bookings {
		if b.OrderID == orderID {
			cp := *b
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) ListStalePending(_ context.Context, olderThan time.Time, limit int) ([]models.Booking, error) {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	var out []models.Booking
	for _, b := range s.bookings {
		if b.Status == models.BookingPending && b.CreatedAt.Before(olderThan) {
			out = append(out, *b)
		}
	}
	sweepKey := func(b models.Booking) time.Time {
		if b.LastReconciledAt != nil {
			return *b.LastReconciledAt
		}
		return b.CreatedAt
	}
	sort.Slice(out, func(i, j int) bool {
		ki, kj := sweepKey(out[i]), sweepKey(out[j])
		if !ki.Equal(kj) {
			return ki.Before(kj)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) MarkPaid(_ context.Context, id int64, paidAt time.Time) (bool, error) {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	b, ok := s.bookings[id]
	if !ok || b.Status != models.BookingPending {
		return false, nil
	}
	b.Status = models.BookingPaid
	b.PaidAt = &paidAt
	return true, nil
}

func (s *memStore) MarkReview(_ context.Context, id int64, reason string) (bool, error) {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	b, ok := s.bookings[id]
	if !ok || b.Status == models.BookingPaid {
		return false, nil
	}
	if b.Status != models.BookingReview || b.ReviewReason == nil {
		b.ReviewReason = &reason
	}
	b.Status = models.BookingReview
	return true, nil
}

func (s *memStore) RevertPaidToReview(_ context.Context, id int64, reason string) (bool, error) {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	b, ok := s.bookings[id]
	if !ok || b.Status != models.BookingPaid {
		return false, nil
	}
	b.Status = models.BookingReview
	b.ReviewReason = &reason
	b.PaidAt = nil
	return true, nil
}

func (s *memStore) MarkFailed(_ context.Context, id int64) (bool, error) {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return false, nil
	}
	switch b.Status {
	case models.BookingPending, models.BookingReview, models.BookingFailed:
		b.Status = models.BookingFailed
		return true, nil
	}
	return false, nil
}

func (s *memStore) TouchReconciled(_ context.Context, id int64, at time.Time) error {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	if b, ok := s.bookings[id]; ok {
		b.LastReconciledAt = &at
	}
	return nil
}

func (s *memStore) SetVoucherRedeemed(_ context.Context, id int64) error {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	if b, ok := s.bookings[id]; ok {
		b.VoucherRedeemed = true
	}
	return nil
}

// memBookings adapts memStore to BookingStore; GetByID clashes with events
type memBookings struct{ *memStore }

func (b memBookings) GetByID(_ context.Context, id int64) (*models.Booking, error) {
	b.dataMu.Lock()
	defer b.dataMu.Unlock()
	bk, ok := b.bookings[id]
	if !ok {
		return nil, nil
	}
	cp := *bk
	return &cp, nil
}

// events

type memEvents struct{ *memStore }

func (s *memStore) addEvent(e models.Event) {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	s.events[e.ID] = &e
}

func (s *memStore) event(id int64) models.Event {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	return *s.events[id]
}

func (e memEvents) GetByID(_ context.Context, id int64) (*models.Event, error) {
	e.dataMu.Lock()
	defer e.dataMu.Unlock()
	ev, ok := e.events[id]
	if !ok {
		return nil, nil
	}
	cp := *ev
	return &cp, nil
}

func (e memEvents) IncrementSold(_ context.Context, id int64) (bool, error) {
	e.dataMu.Lock()
	defer e.dataMu.Unlock()
	ev, ok := e.events[id]
	if !ok {
		return false, nil
	}
	if ev.BoothQuota != nil && ev.BoothSold >= *ev.BoothQuota {
		return false, nil
	}
	ev.BoothSold++
	return true, nil
}

// vouchers

func (s *memStore) addVoucher(v models.Voucher) {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	s.vouchers[v.Code] = &v
}

func (s *memStore) voucher(code string) models.Voucher {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	return *s.vouchers[code]
}

func (s *memStore) Redeem(_ context.Context, code string) (bool, error) {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	v, ok := s.vouchers[code]
	if !ok || !v.Active {
		return false, nil
	}
	if v.UsageCap != nil && v.UsedCount >= *v.UsageCap {
		return false, nil
	}
	v.UsedCount++
	return true, nil
}

// payment records

type memPayments struct{ *memStore }

func (p memPayments) GetByOrderID(_ context.Context, orderID string) (*models.PaymentRecord, error) {
	p.dataMu.Lock()
	defer p.dataMu.Unlock()
	r, ok := p.payments[orderID]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

// Upsert keeps existing session fields when the new record leaves them empty
func (p memPayments) Upsert(_ context.Context, record *models.PaymentRecord) error {
	p.dataMu.Lock()
	defer p.dataMu.Unlock()
	if p.failUpsert != nil {
		return p.failUpsert
	}
	next := *record
	if prev, ok := p.payments[record.OrderID]; ok {
		if next.Channel == "" {
			next.Channel = prev.Channel
		}
		if next.SessionToken == "" {
			next.SessionToken = prev.SessionToken
		}
		if next.RedirectURL == "" {
			next.RedirectURL = prev.RedirectURL
		}
		if len(next.Raw) == 0 {
			next.Raw = prev.Raw
		}
	}
	p.payments[record.OrderID] = &next
	return nil
}

func (s *memStore) payment(orderID string) *models.PaymentRecord {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	r, ok := s.payments[orderID]
	if !ok {
		return nil
	}
	cp := *r
	return &cp
}

// gateway

type fakeGateway struct {
	mu        sync.Mutex
	sessions  map[string]*external.Session
	snapshots map[string]*external.Snapshot

	createErr   error
	fetchErr    error
	createCalls int
	fetchCalls  int
	// onCreate runs before a session is stored, to stage races
	onCreate func(orderID string)
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		sessions:  map[string]*external.Session{},
		snapshots: map[string]*external.Snapshot{},
	}
}

func (g *fakeGateway) CreateSession(_ context.Context, in external.SessionRequest) (*external.Session, error) {
	g.mu.Lock()
	g.createCalls++
	hook := g.onCreate
	g.mu.Unlock()

	if hook != nil {
		hook(in.OrderID)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	if _, used := g.sessions[in.OrderID]; used {
		return nil, fmt.Errorf("create session: %w", apperrors.ErrOrderIDConflict)
	}
	session := &external.Session{
		Token:       "tok-" + in.OrderID,
		RedirectURL: "https://pay.example/" + in.OrderID,
		Raw:         json.RawMessage(`{"token":"tok-` + in.OrderID + `"}`),
	}
	g.sessions[in.OrderID] = session
	return session, nil
}

func (g *fakeGateway) FetchStatus(_ context.Context, orderID string) (*external.Snapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fetchCalls++
	if g.fetchErr != nil {
		return nil, g.fetchErr
	}
	snap, ok := g.snapshots[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", orderID, apperrors.ErrOrderNotFound)
	}
	cp := *snap
	return &cp, nil
}

func (g *fakeGateway) setStatus(orderID, status string, gross int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.snapshots[orderID] = &external.Snapshot{
		OrderID:           orderID,
		TransactionStatus: status,
		PaymentType:       "bank_transfer",
		GrossAmount:       external.Amount(gross),
		Raw:               json.RawMessage(`{"transaction_status":"` + status + `"}`),
	}
}

// notifier

type countingNotifier struct {
	mu     sync.Mutex
	events []models.BookingPaidEvent
	err    error
}

func (n *countingNotifier) NotifyPaid(_ context.Context, event models.BookingPaidEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

// audit

type recordingAudit struct {
	mu       sync.Mutex
	outcomes []string
	err      error
}

func (a *recordingAudit) IndexPaymentRecord(_ context.Context, _ *models.PaymentRecord, outcome string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.outcomes = append(a.outcomes, outcome)
	return a.err
}

// fixture

var fixtureNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store      *memStore
	gateway    *fakeGateway
	notifier   *countingNotifier
	audit      *recordingAudit
	settlement *Settlement
	charges    *ChargeService
	reconciler *Reconciler
}

func newFixture(t *testing.T, fees FeePolicy, tolerance int64) *fixture {
	t.Helper()
	store := newMemStore()
	gw := newFakeGateway()
	notifier := &countingNotifier{}
	audit := &recordingAudit{}
	clk := clock.NewFixed(fixtureNow)

	bookings := memBookings{store}
	events := memEvents{store}
	payments := memPayments{store}

	settlement := NewSettlement(store, bookings, events, store, payments, notifier, clk, fees, tolerance)
	return &fixture{
		store:      store,
		gateway:    gw,
		notifier:   notifier,
		audit:      audit,
		settlement: settlement,
		charges:    NewChargeService(bookings, events, payments, gw, ChargeOptions{}, time.Second),
		reconciler: NewReconciler(bookings, gw, settlement, audit, clk, time.Second),
	}
}

func int64p(v int64) *int64 { return &v }

func strp(v string) *string { return &v }

// seed adds a published event with the given quota and sold count, plus one
// PENDING booking for it
func (f *fixture) seed(bookingID int64, quota *int64, sold int64, amount int64) models.Booking {
	f.store.addEvent(models.Event{
		ID:         1,
		Title:      "Expo",
		Published:  true,
		BoothPrice: amount,
		BoothQuota: quota,
		BoothSold:  sold,
	})
	return f.addBooking(bookingID, amount, nil)
}

func (f *fixture) addBooking(id int64, amount int64, voucher *string) models.Booking {
	b := models.Booking{
		ID:          id,
		OrderID:     fmt.Sprintf("BOOTH-%d", id),
		EventID:     1,
		Amount:      amount,
		VoucherCode: voucher,
		Status:      models.BookingPending,
		BuyerName:   "Ayu",
		BuyerEmail:  "ayu@example.com",
		CreatedAt:   fixtureNow.Add(-time.Duration(id) * time.Hour),
	}
	f.store.addBooking(b)
	return b
}
