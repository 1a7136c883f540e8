package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"boothpay/internal/metrics"

	"github.com/lib/pq"
)

// Querier is satisfied by both *sql.DB and *sql.Tx
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// Conn returns the transaction carried by ctx, or the pool when there is none
func (db *DB) Conn(ctx context.Context) Querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return db.DB
}

// WithTx runs fn inside a read-committed transaction. Nested calls join the
// outer transaction.
func (db *DB) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.runTx(ctx, nil, fn)
}

// WithSerializableTx runs fn inside a SERIALIZABLE transaction and retries the
// whole function when Postgres aborts it with a serialization or deadlock
// failure. fn must therefore be safe to re-run from scratch.
func (db *DB) WithSerializableTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	const backoffDelay = 20 * time.Millisecond
	opts := &sql.TxOptions{Isolation: sql.LevelSerializable}

	var lastErr error
	for attempt := 1; attempt <= db.txMaxAttempts; attempt++ {
		err := db.runTx(ctx, opts, fn)
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsSerializationFailure(err) {
			return err
		}
		metrics.TxRetries.Inc()
		if attempt < db.txMaxAttempts {
			slog.Debug("Serializable transaction conflict, retrying",
				"attempt", attempt, "max_attempts", db.txMaxAttempts, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * backoffDelay):
			}
		}
	}

	return fmt.Errorf("transaction failed after %d attempts: %w", db.txMaxAttempts, lastErr)
}

func (db *DB) runTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// IsSerializationFailure reports SQLSTATE 40001 (serialization_failure) and
// 40P01 (deadlock_detected)
func IsSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "40001" || pqErr.Code == "40P01"
}
