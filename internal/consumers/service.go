package consumers

import (
	"context"
	"log/slog"

	"github.com/nats-io/stan.go"

	"boothpay/internal/app"
	"boothpay/internal/models"
)

type ConsumerService struct {
	app      *app.App
	handlers *Handlers
	subs     []stan.Subscription
}

func NewConsumerService(a *app.App) *ConsumerService {
	return &ConsumerService{
		app:      a,
		handlers: NewHandlers(a.Services.Reconciler, a.Config.NATS.AckWait),
	}
}

func (cs *ConsumerService) Start() error {
	slog.Info("Starting NATS consumers...")

	sub, err := cs.app.NATS.SubscribeQueue(models.EventPaymentReconcileRequested, "reconcilers",
		cs.app.Config.NATS.AckWait, cs.handlers.HandleReconcileRequested)
	if err != nil {
		return err
	}
	cs.subs = append(cs.subs, sub)

	slog.Info("All consumers started successfully")
	return nil
}

// Shutdown closes subscriptions without removing the durable queue
func (cs *ConsumerService) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down consumer service...")

	for _, sub := range cs.subs {
		if err := sub.Close(); err != nil {
			slog.Error("Error closing subscription", "error", err)
		}
	}

	return nil
}
