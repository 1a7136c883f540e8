package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"boothpay/internal/service"
)

const sweepLeaseKey = "boothpay:reconcile-sweep"

type Sweeper interface {
	ReconcileSweep(ctx context.Context, maxAge time.Duration, limit int) ([]service.SweepItem, error)
}

// Lease keeps replicas from sweeping on the same tick. Correctness never
// depends on it; settlement is safe under concurrent sweeps.
type Lease interface {
	AcquireLease(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, key string) error
}

type SweepConfig struct {
	Interval time.Duration
	MaxAge   time.Duration
	Limit    int
	LeaseTTL time.Duration
}

// ReconcileSweepJob periodically reconciles stale PENDING bookings
type ReconcileSweepJob struct {
	sweeper Sweeper
	lease   Lease
	cfg     SweepConfig
	ticker  *time.Ticker
	done    chan struct{}
	running sync.Mutex
}

// NewReconcileSweepJob creates the job. lease may be nil.
func NewReconcileSweepJob(sweeper Sweeper, lease Lease, cfg SweepConfig) *ReconcileSweepJob {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = cfg.Interval
	}
	return &ReconcileSweepJob{
		sweeper: sweeper,
		lease:   lease,
		cfg:     cfg,
		done:    make(chan struct{}),
	}
}

// Start runs a sweep immediately and then on every tick
func (j *ReconcileSweepJob) Start(ctx context.Context) {
	slog.Info("Starting reconcile sweep job",
		"interval", j.cfg.Interval.String(), "max_age", j.cfg.MaxAge.String(), "limit", j.cfg.Limit)

	j.ticker = time.NewTicker(j.cfg.Interval)

	go j.RunOnce(ctx)

	go func() {
		for {
			select {
			case <-j.ticker.C:
				go j.RunOnce(ctx)
			case <-j.done:
				slog.Info("Reconcile sweep job stopped")
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop gracefully stops the background job
func (j *ReconcileSweepJob) Stop() {
	if j.ticker != nil {
		j.ticker.Stop()
	}
	close(j.done)
}

// RunOnce sweeps once unless a sweep is already running here or elsewhere.
// It reports whether a sweep ran.
func (j *ReconcileSweepJob) RunOnce(ctx context.Context) bool {
	if !j.running.TryLock() {
		slog.Debug("Previous sweep still running, skipping tick")
		return false
	}
	defer j.running.Unlock()

	if j.lease != nil {
		ok, err := j.lease.AcquireLease(ctx, sweepLeaseKey, j.cfg.LeaseTTL)
		if err != nil {
			// Sweeping without the lease only costs duplicate gateway calls
			slog.Warn("Sweep lease unavailable, sweeping anyway", "error", err)
		} else if !ok {
			slog.Debug("Sweep lease held by another replica, skipping tick")
			return false
		} else {
			defer func() {
				if err := j.lease.ReleaseLease(context.Background(), sweepLeaseKey); err != nil {
					slog.Warn("Failed to release sweep lease", "error", err)
				}
			}()
		}
	}

	start := time.Now()
	items, err := j.sweeper.ReconcileSweep(ctx, j.cfg.MaxAge, j.cfg.Limit)
	if err != nil {
		slog.Error("Reconcile sweep failed", "error", err)
		return true
	}

	var changed, failed int
	for _, item := range items {
		switch {
		case item.Err != nil:
			failed++
			slog.Warn("Failed to reconcile stale booking", "order_id", item.OrderID, "error", item.Err)
		case item.Result.Reconciled:
			changed++
		}
	}

	if len(items) > 0 {
		slog.Info("Reconcile sweep completed",
			"candidates", len(items), "changed", changed, "failed", failed,
			"elapsed_ms", time.Since(start).Milliseconds())
	}
	return true
}
