package handlers

import (
	"net/http"
	"strconv"

	"boothpay/internal/models"

	"github.com/gin-gonic/gin"
)

// Bookings handlers

// ChargeBooking - POST /api/bookings/:id/charge
// Получить платежную сессию для бронирования. Повторный вызов возвращает ту же сессию.
func (h *Handlers) ChargeBooking(c *gin.Context) {
	bookingID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || bookingID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return
	}

	result, err := h.charges.Charge(c.Request.Context(), bookingID)
	if err != nil {
		writeError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Cached {
		status = http.StatusOK
	}
	c.JSON(status, models.ChargeResponse{
		OrderID:      result.OrderID,
		SessionToken: result.SessionToken,
		RedirectURL:  result.RedirectURL,
	})
}
