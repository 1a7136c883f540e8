package consumers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "boothpay/internal/errors"
	"boothpay/internal/models"
	"boothpay/internal/service"
)

type stubReconciler struct {
	err    error
	orders []string
}

func (s *stubReconciler) ReconcileOne(_ context.Context, orderID string) (*service.ReconcileResult, error) {
	s.orders = append(s.orders, orderID)
	if s.err != nil {
		return nil, s.err
	}
	return &service.ReconcileResult{OrderID: orderID, Mapped: "paid", Reconciled: true, Status: models.BookingPaid}, nil
}

func message(t *testing.T, orderID string) []byte {
	t.Helper()
	data, err := json.Marshal(models.ReconcileRequestedEvent{
		OrderID:   orderID,
		Source:    "notification",
		RequestID: "req-1",
		Timestamp: time.Now(),
	})
	require.NoError(t, err)
	return data
}

func TestProcessReconcileAck(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantAck bool
	}{
		{name: "success", wantAck: true},
		{name: "gateway unavailable", err: fmt.Errorf("fetch status: %w", apperrors.ErrGatewayUnavailable), wantAck: false},
		{name: "timeout", err: context.DeadlineExceeded, wantAck: false},
		{name: "serialization failure", err: fmt.Errorf("commit: %w", &pq.Error{Code: "40001"}), wantAck: false},
		{name: "unknown order", err: apperrors.ErrBookingNotFound, wantAck: true},
		{name: "permanent", err: errors.New("event missing"), wantAck: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &stubReconciler{err: tt.err}
			h := NewHandlers(rec, time.Second)

			ack := h.processReconcile(context.Background(), message(t, "BOOTH-1"))

			assert.Equal(t, tt.wantAck, ack)
			assert.Equal(t, []string{"BOOTH-1"}, rec.orders)
		})
	}
}

func TestProcessReconcileDropsMalformed(t *testing.T) {
	rec := &stubReconciler{}
	h := NewHandlers(rec, time.Second)

	assert.True(t, h.processReconcile(context.Background(), []byte("{not json")))
	assert.True(t, h.processReconcile(context.Background(), []byte(`{"source":"notification"}`)))
	assert.Empty(t, rec.orders)
}
