package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"boothpay/internal/service"
)

type countingSweeper struct {
	mu     sync.Mutex
	calls  int
	maxAge time.Duration
	limit  int
	items  []service.SweepItem
	block  chan struct{}
}

func (s *countingSweeper) ReconcileSweep(_ context.Context, maxAge time.Duration, limit int) ([]service.SweepItem, error) {
	s.mu.Lock()
	s.calls++
	s.maxAge, s.limit = maxAge, limit
	s.mu.Unlock()
	if s.block != nil {
		<-s.block
	}
	return s.items, nil
}

type fakeLease struct {
	held     bool
	err      error
	acquired int
	released int
}

func (l *fakeLease) AcquireLease(_ context.Context, _ string, _ time.Duration) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	if l.held {
		return false, nil
	}
	l.acquired++
	return true, nil
}

func (l *fakeLease) ReleaseLease(_ context.Context, _ string) error {
	l.released++
	return nil
}

func TestRunOnceWithoutLease(t *testing.T) {
	sweeper := &countingSweeper{items: []service.SweepItem{
		{OrderID: "BOOTH-1", Result: &service.ReconcileResult{Reconciled: true}},
		{OrderID: "BOOTH-2", Err: errors.New("gateway down")},
	}}
	job := NewReconcileSweepJob(sweeper, nil, SweepConfig{MaxAge: 20 * time.Minute, Limit: 10})

	assert.True(t, job.RunOnce(context.Background()))
	assert.Equal(t, 1, sweeper.calls)
	assert.Equal(t, 20*time.Minute, sweeper.maxAge)
	assert.Equal(t, 10, sweeper.limit)
}

func TestRunOnceSkipsWhenLeaseHeld(t *testing.T) {
	sweeper := &countingSweeper{}
	lease := &fakeLease{held: true}
	job := NewReconcileSweepJob(sweeper, lease, SweepConfig{})

	assert.False(t, job.RunOnce(context.Background()))
	assert.Equal(t, 0, sweeper.calls)
}

func TestRunOnceAcquiresAndReleasesLease(t *testing.T) {
	sweeper := &countingSweeper{}
	lease := &fakeLease{}
	job := NewReconcileSweepJob(sweeper, lease, SweepConfig{})

	assert.True(t, job.RunOnce(context.Background()))
	assert.Equal(t, 1, lease.acquired)
	assert.Equal(t, 1, lease.released)
	assert.Equal(t, 1, sweeper.calls)
}

func TestRunOnceSweepsWhenLeaseBackendFails(t *testing.T) {
	sweeper := &countingSweeper{}
	job := NewReconcileSweepJob(sweeper, &fakeLease{err: errors.New("valkey down")}, SweepConfig{})

	assert.True(t, job.RunOnce(context.Background()))
	assert.Equal(t, 1, sweeper.calls)
}

func TestRunOnceSkipsOverlappingTick(t *testing.T) {
	sweeper := &countingSweeper{block: make(chan struct{})}
	job := NewReconcileSweepJob(sweeper, nil, SweepConfig{})

	done := make(chan bool)
	go func() { done <- job.RunOnce(context.Background()) }()

	assert.Eventually(t, func() bool {
		sweeper.mu.Lock()
		defer sweeper.mu.Unlock()
		return sweeper.calls == 1
	}, time.Second, 5*time.Millisecond)

	assert.False(t, job.RunOnce(context.Background()))

	close(sweeper.block)
	assert.True(t, <-done)
	assert.Equal(t, 1, sweeper.calls)
}
