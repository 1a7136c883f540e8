package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8081", cfg.Port)
	assert.Equal(t, "IDR", cfg.Payment.Currency)
	assert.Equal(t, 15*time.Second, cfg.Payment.Timeout)
	assert.Equal(t, int64(2), cfg.Reconcile.AmountTolerance)
	assert.Equal(t, 15*time.Minute, cfg.Reconcile.SweepMaxAge)
	assert.Equal(t, 50, cfg.Reconcile.SweepLimit)
	assert.Equal(t, 5, cfg.Database.TxMaxAttempts)
	assert.True(t, cfg.Reconcile.InlineFallback)
	assert.False(t, cfg.Valkey.Enabled)
	assert.False(t, cfg.Elasticsearch.Enabled)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("RECONCILE_AMOUNT_TOLERANCE", "0")
	t.Setenv("RECONCILE_SWEEP_INTERVAL", "90s")
	t.Setenv("RECONCILE_SWEEP_LIMIT", "not-a-number")
	t.Setenv("PAYMENT_ENABLED_CHANNELS", "qris, bank_transfer,,")
	t.Setenv("DB_TX_MAX_ATTEMPTS", "8")

	cfg := Load()

	assert.Equal(t, int64(0), cfg.Reconcile.AmountTolerance)
	assert.Equal(t, 90*time.Second, cfg.Reconcile.SweepInterval)
	assert.Equal(t, 50, cfg.Reconcile.SweepLimit)
	assert.Equal(t, []string{"qris", "bank_transfer"}, cfg.Reconcile.EnabledChannels)
	assert.Equal(t, 8, cfg.Database.TxMaxAttempts)
}
