package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	apperrors "boothpay/internal/errors"
	"boothpay/internal/external"
	"boothpay/internal/logger"
	"boothpay/internal/models"
	"boothpay/internal/service"

	"github.com/gin-gonic/gin"
)

type Charger interface {
	Charge(ctx context.Context, bookingID int64) (*service.ChargeResult, error)
}

type Reconciler interface {
	ReconcileOne(ctx context.Context, orderID string) (*service.ReconcileResult, error)
	ReconcileSweep(ctx context.Context, maxAge time.Duration, limit int) ([]service.SweepItem, error)
}

type NotificationVerifier interface {
	VerifyNotification(orderID, statusCode, grossAmount, signature string) bool
}

// ReconcileQueue откладывает сверку заказа в очередь консьюмеров
type ReconcileQueue interface {
	RequestReconcile(ctx context.Context, orderID, source string) error
}

type Handlers struct {
	charges    Charger
	reconciler Reconciler
	verifier   NotificationVerifier
	queue      ReconcileQueue
	// inlineFallback - сверять в запросе, если очередь недоступна
	inlineFallback bool
}

// NewHandlers создает обработчики. queue может быть nil - тогда уведомления сверяются сразу.
func NewHandlers(charges Charger, reconciler Reconciler, verifier NotificationVerifier, queue ReconcileQueue, inlineFallback bool) *Handlers {
	return &Handlers{
		charges:        charges,
		reconciler:     reconciler,
		verifier:       verifier,
		queue:          queue,
		inlineFallback: inlineFallback,
	}
}

// writeError переводит доменные ошибки в HTTP ответ
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	body := gin.H{"error": "Internal server error"}

	var conflict *apperrors.ConflictError
	switch {
	case errors.As(err, &conflict):
		status = http.StatusConflict
		body = gin.H{"error": conflict.Error(), "conflict": string(conflict.Kind)}
	case errors.Is(err, apperrors.ErrBookingNotFound),
		errors.Is(err, apperrors.ErrEventNotFound),
		errors.Is(err, apperrors.ErrOrderNotFound):
		status = http.StatusNotFound
		body = gin.H{"error": err.Error()}
	case errors.Is(err, apperrors.ErrBookingAlreadyPaid),
		errors.Is(err, apperrors.ErrBookingCancelled),
		errors.Is(err, apperrors.ErrBookingFailed),
		errors.Is(err, apperrors.ErrBookingUnderReview):
		status = http.StatusConflict
		body = gin.H{"error": err.Error()}
	case errors.Is(err, apperrors.ErrEventNotPublished),
		errors.Is(err, apperrors.ErrSoldOut),
		errors.Is(err, apperrors.ErrInvalidAmount):
		status = http.StatusUnprocessableEntity
		body = gin.H{"error": err.Error()}
	case errors.Is(err, apperrors.ErrInvalidSignature):
		status = http.StatusUnauthorized
		body = gin.H{"error": err.Error()}
	case external.IsTransient(err):
		status = http.StatusBadGateway
		body = gin.H{"error": "Payment gateway unavailable"}
	}

	log := logger.WithContext(c.Request.Context())
	if status >= 500 {
		log.Error("Request failed", "error", err, "path", c.Request.URL.Path)
		_ = c.Error(err)
	} else {
		log.Info("Request rejected", "error", err, "status_code", status)
	}
	c.JSON(status, body)
}

func toReconcileResponse(r *service.ReconcileResult) models.ReconcileResponse {
	return models.ReconcileResponse{
		OrderID:    r.OrderID,
		BookingID:  r.BookingID,
		Mapped:     r.Mapped,
		Reconciled: r.Reconciled,
		Status:     string(r.Status),
		Reason:     r.Reason,
	}
}
