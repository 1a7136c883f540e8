package handlers

import (
	"net/http"
	"time"

	apperrors "boothpay/internal/errors"
	"boothpay/internal/logger"
	"boothpay/internal/models"

	"github.com/gin-gonic/gin"
)

// Payments handlers

// OnPaymentNotification - POST /api/payments/notifications
// Принимать уведомления от платежного шлюза. Тело уведомления не считается
// источником правды: оно только запускает сверку по заказу.
func (h *Handlers) OnPaymentNotification(c *gin.Context) {
	var notification models.PaymentNotificationPayload
	if err := c.ShouldBindJSON(&notification); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !h.verifier.VerifyNotification(notification.OrderID, notification.StatusCode,
		notification.GrossAmount, notification.SignatureKey) {
		writeError(c, apperrors.ErrInvalidSignature)
		return
	}

	ctx := logger.ContextWithOrderID(c.Request.Context(), notification.OrderID)
	log := logger.WithContext(ctx)

	if h.queue != nil {
		err := h.queue.RequestReconcile(ctx, notification.OrderID, "notification")
		if err == nil {
			c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
			return
		}
		if !h.inlineFallback {
			log.Error("Failed to queue reconciliation", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to queue reconciliation"})
			return
		}
		log.Warn("Failed to queue reconciliation, reconciling inline", "error", err)
	}

	result, err := h.reconciler.ReconcileOne(ctx, notification.OrderID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toReconcileResponse(result))
}

// ReconcileOrder - POST /api/payments/:orderId/reconcile
// Сверить заказ с платежным шлюзом
func (h *Handlers) ReconcileOrder(c *gin.Context) {
	orderID := c.Param("orderId")
	if orderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "orderId is required"})
		return
	}

	ctx := logger.ContextWithOrderID(c.Request.Context(), orderID)
	result, err := h.reconciler.ReconcileOne(ctx, orderID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toReconcileResponse(result))
}

// ReconcileSweep - POST /api/payments/reconcile/sweep
// Сверить зависшие PENDING бронирования, начиная с самых старых
func (h *Handlers) ReconcileSweep(c *gin.Context) {
	var req models.SweepRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.MaxAgeMinutes < 0 || req.Limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "max_age_minutes and limit must be >= 0"})
		return
	}

	items, err := h.reconciler.ReconcileSweep(c.Request.Context(),
		time.Duration(req.MaxAgeMinutes)*time.Minute, req.Limit)
	if err != nil {
		writeError(c, err)
		return
	}

	response := make(models.SweepResponse, 0, len(items))
	for _, item := range items {
		entry := models.SweepResponseItem{}
		entry.OrderID = item.OrderID
		if item.Result != nil {
			entry.ReconcileResponse = toReconcileResponse(item.Result)
		}
		if item.Err != nil {
			entry.Error = item.Err.Error()
		}
		response = append(response, entry)
	}

	c.JSON(http.StatusOK, response)
}
