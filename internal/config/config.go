package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"boothpay/internal/cache"
	"boothpay/internal/database"
	"boothpay/internal/external"
	"boothpay/internal/messaging"
)

// Config содержит конфигурацию приложения
type Config struct {
	Port           string
	GinMode        string
	LogLevel       string
	LogFormat      string
	RequestTimeout time.Duration

	// Basic auth для административных эндпоинтов
	AdminUser     string
	AdminPassword string

	Database      database.Config
	NATS          messaging.Config
	Payment       external.PaymentConfig
	Reconcile     ReconcileConfig
	Valkey        cache.Config
	Elasticsearch ElasticsearchConfig
}

// ReconcileConfig содержит параметры сверки с платежным шлюзом
type ReconcileConfig struct {
	AmountTolerance int64
	// FeePolicy в формате "channel:rate_bp:fixed,..."
	FeePolicy       string
	EnabledChannels []string
	SweepInterval   time.Duration
	SweepMaxAge     time.Duration
	SweepLimit      int
	SweepLeaseTTL   time.Duration
	// InlineFallback - сверять сразу, если NATS недоступен
	InlineFallback bool
}

// Load загружает конфигурацию из переменных окружения
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8081"),
		GinMode:        getEnv("GIN_MODE", "debug"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		RequestTimeout: time.Duration(getEnvInt("REQUEST_TIMEOUT_SEC", 30)) * time.Second,

		AdminUser:     getEnv("ADMIN_USER", "admin"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),

		Database: database.Config{
			Host:               getEnv("DB_HOST", "localhost"),
			Port:               getEnvInt("DB_PORT", 5432),
			User:               getEnv("DB_USER", "boothpay"),
			Password:           getEnv("DB_PASSWORD", "boothpay"),
			DBName:             getEnv("DB_NAME", "boothpay"),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetimeMin: getEnvInt("DB_CONN_MAX_LIFETIME_MIN", 5),
			ConnMaxIdleTimeMin: getEnvInt("DB_CONN_MAX_IDLE_TIME_MIN", 1),
			TxMaxAttempts:      getEnvInt("DB_TX_MAX_ATTEMPTS", 5),
		},

		NATS: messaging.Config{
			URL:       getEnv("NATS_URL", "nats://localhost:4222"),
			ClusterID: getEnv("NATS_CLUSTER_ID", "boothpay"),
			ClientID:  getEnv("NATS_CLIENT_ID", "boothpay"),
			AckWait:   getEnvDuration("NATS_ACK_WAIT", 30*time.Second),
		},

		Payment: external.PaymentConfig{
			BaseURL:         getEnv("PAYMENT_GATEWAY_URL", "http://localhost:8090"),
			MerchantID:      getEnv("PAYMENT_MERCHANT_ID", ""),
			ServerKey:       getEnv("PAYMENT_SERVER_KEY", ""),
			Currency:        getEnv("PAYMENT_CURRENCY", "IDR"),
			NotificationURL: getEnv("PAYMENT_NOTIFICATION_URL", ""),
			FinishURL:       getEnv("PAYMENT_FINISH_URL", ""),
			ExpiryMinutes:   getEnvInt("PAYMENT_EXPIRY_MIN", 60),
			Timeout:         time.Duration(getEnvInt("PAYMENT_TIMEOUT_SEC", 15)) * time.Second,
		},

		Reconcile: ReconcileConfig{
			AmountTolerance: int64(getEnvInt("RECONCILE_AMOUNT_TOLERANCE", 2)),
			FeePolicy:       getEnv("RECONCILE_FEE_POLICY", ""),
			EnabledChannels: getEnvList("PAYMENT_ENABLED_CHANNELS"),
			SweepInterval:   getEnvDuration("RECONCILE_SWEEP_INTERVAL", 5*time.Minute),
			SweepMaxAge:     time.Duration(getEnvInt("RECONCILE_SWEEP_MAX_AGE_MIN", 15)) * time.Minute,
			SweepLimit:      getEnvInt("RECONCILE_SWEEP_LIMIT", 50),
			SweepLeaseTTL:   getEnvDuration("RECONCILE_SWEEP_LEASE_TTL", 4*time.Minute),
			InlineFallback:  getEnv("RECONCILE_INLINE_FALLBACK", "true") == "true",
		},

		Valkey: cache.Config{
			Enabled:  getEnv("VALKEY_ENABLED", "false") == "true",
			Addr:     getEnv("VALKEY_ADDR", "localhost:6379"),
			Password: os.Getenv("VALKEY_PASSWORD"),
			DB:       getEnvInt("VALKEY_DB", 0),
		},

		Elasticsearch: LoadElasticsearchConfig(),
	}
}

// getEnv получает значение переменной окружения или возвращает значение по умолчанию
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt получает целочисленное значение переменной окружения
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration принимает значения вида "30s", "5m"
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
