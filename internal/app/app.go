package app

import (
	"fmt"
	"log/slog"

	"boothpay/internal/cache"
	"boothpay/internal/config"
	"boothpay/internal/database"
	"boothpay/internal/external"
	"boothpay/internal/messaging"
	"boothpay/internal/repository"
	"boothpay/internal/search"
	"boothpay/internal/service"
)

// Options controls which optional backends a binary insists on
type Options struct {
	// RequireNATS fails startup when NATS Streaming is unreachable
	RequireNATS bool
	// ClientID overrides the NATS client id prefix
	ClientID string
}

// App holds every connection a binary needs. Optional backends are nil when
// disabled or unreachable.
type App struct {
	Config    *config.Config
	DB        *database.DB
	NATS      *messaging.NATSClient
	Publisher *messaging.EventPublisher
	Valkey    *cache.ValkeyClient
	Search    *search.ElasticsearchClient
	Payment   *external.PaymentClient
	Repos     *repository.Repositories
	Services  *service.Services
}

func New(cfg *config.Config, opts Options) (*App, error) {
	fees, err := service.ParseFeePolicy(cfg.Reconcile.FeePolicy)
	if err != nil {
		return nil, fmt.Errorf("invalid RECONCILE_FEE_POLICY: %w", err)
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:  cfg,
		DB:      db,
		Payment: external.NewPaymentClient(cfg.Payment),
		Repos:   repository.NewRepositories(db),
	}

	natsCfg := cfg.NATS
	if opts.ClientID != "" {
		natsCfg.ClientID = opts.ClientID
	}
	if natsClient, err := messaging.NewNATSClient(natsCfg); err != nil {
		if opts.RequireNATS {
			a.Close()
			return nil, err
		}
		slog.Warn("NATS unavailable, paid events go to the log only", "error", err)
	} else {
		a.NATS = natsClient
		a.Publisher = messaging.NewEventPublisher(natsClient)
	}

	if cfg.Valkey.Enabled {
		if v, err := cache.NewValkeyClient(cfg.Valkey); err != nil {
			slog.Warn("Valkey unavailable, sweep lease disabled", "error", err)
		} else {
			a.Valkey = v
		}
	}

	if cfg.Elasticsearch.Enabled {
		if es, err := search.NewElasticsearchClient(cfg.Elasticsearch); err != nil {
			slog.Warn("Elasticsearch unavailable, payment audit index disabled", "error", err)
		} else {
			a.Search = es
		}
	}

	var notifier service.Notifier
	if a.Publisher != nil {
		notifier = a.Publisher
	}
	var audit service.AuditSink
	if a.Search != nil {
		audit = a.Search
	}

	a.Services = service.NewServices(a.Repos, db, a.Payment, notifier, audit, service.Options{
		AmountTolerance: cfg.Reconcile.AmountTolerance,
		Fees:            fees,
		GatewayTimeout:  cfg.Payment.Timeout,
		Charge: service.ChargeOptions{
			EnabledChannels: cfg.Reconcile.EnabledChannels,
			ExpiryMinutes:   cfg.Payment.ExpiryMinutes,
		},
	})

	return a, nil
}

// Close releases every connection that was opened
func (a *App) Close() error {
	if a.NATS != nil {
		if err := a.NATS.Close(); err != nil {
			slog.Error("Error closing NATS connection", "error", err)
		}
	}
	if a.Valkey != nil {
		if err := a.Valkey.Close(); err != nil {
			slog.Error("Error closing Valkey connection", "error", err)
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			slog.Error("Error closing database connection", "error", err)
			return err
		}
	}
	return nil
}
