package consumers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/nats-io/stan.go"

	"boothpay/internal/database"
	apperrors "boothpay/internal/errors"
	"boothpay/internal/external"
	"boothpay/internal/logger"
	"boothpay/internal/models"
	"boothpay/internal/service"
)

type OrderReconciler interface {
	ReconcileOne(ctx context.Context, orderID string) (*service.ReconcileResult, error)
}

type Handlers struct {
	reconciler OrderReconciler
	timeout    time.Duration
}

func NewHandlers(reconciler OrderReconciler, timeout time.Duration) *Handlers {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Handlers{reconciler: reconciler, timeout: timeout}
}

// HandleReconcileRequested acks unless the failure is worth a redelivery
func (h *Handlers) HandleReconcileRequested(m *stan.Msg) {
	if h.processReconcile(context.Background(), m.Data) {
		if err := m.Ack(); err != nil {
			slog.Error("Failed to ack message", "error", err, "sequence", m.Sequence)
		}
	}
}

// processReconcile returns whether the message is done with
func (h *Handlers) processReconcile(ctx context.Context, data []byte) bool {
	var event models.ReconcileRequestedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		slog.Error("Failed to unmarshal reconcile requested event", "error", err)
		return true
	}
	if event.OrderID == "" {
		slog.Error("Reconcile requested event without order id")
		return true
	}

	if event.RequestID != "" {
		ctx = logger.ContextWithRequestID(ctx, event.RequestID)
	}
	ctx = logger.ContextWithOrderID(ctx, event.OrderID)
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	log := logger.WithContext(ctx).With("source", event.Source)

	result, err := h.reconciler.ReconcileOne(ctx, event.OrderID)
	switch {
	case err == nil:
		log.Info("Processed reconcile request",
			"mapped", result.Mapped, "reconciled", result.Reconciled, "status", result.Status)
		return true
	case retryable(err):
		log.Warn("Reconcile failed, leaving for redelivery", "error", err)
		return false
	case errors.Is(err, apperrors.ErrBookingNotFound):
		log.Warn("Reconcile requested for unknown order")
		return true
	default:
		log.Error("Reconcile failed permanently", "error", err)
		return true
	}
}

func retryable(err error) bool {
	return external.IsTransient(err) || database.IsSerializationFailure(err)
}
