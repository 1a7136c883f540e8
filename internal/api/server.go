package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"boothpay/internal/app"
	"boothpay/internal/handlers"
	"boothpay/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server представляет HTTP сервер API
type Server struct {
	router *gin.Engine
	app    *app.App
}

// NewServer создает новый экземпляр сервера
func NewServer(a *app.App) *Server {
	gin.SetMode(a.Config.GinMode)

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())

	server := &Server{
		router: router,
		app:    a,
	}

	server.setupRoutes()

	return server
}

// setupRoutes настраивает все API роуты
func (s *Server) setupRoutes() {
	var queue handlers.ReconcileQueue
	if s.app.Publisher != nil {
		queue = s.app.Publisher
	}

	svc := s.app.Services
	h := handlers.NewHandlers(svc.Charges, svc.Reconciler, s.app.Payment, queue, s.app.Config.Reconcile.InlineFallback)

	api := s.router.Group("/api")
	{
		api.POST("/bookings/:id/charge", h.ChargeBooking)

		payments := api.Group("/payments")
		{
			payments.POST("/notifications", h.OnPaymentNotification)
			payments.POST("/:orderId/reconcile", h.ReconcileOrder)
		}

		// Административные эндпоинты
		admin := api.Group("/payments/reconcile")
		admin.Use(middleware.AdminAuth(s.app.Config.AdminUser, s.app.Config.AdminPassword))
		{
			admin.POST("/sweep", h.ReconcileSweep)
		}
	}

	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// healthCheck обрабатывает health check запросы
func (s *Server) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	db := s.app.DB.HealthCheck(ctx)
	status := http.StatusOK
	if db.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}

	deps := gin.H{
		"database": db.Status,
		"nats":     "disabled",
		"valkey":   "disabled",
		"search":   "disabled",
	}
	if s.app.NATS != nil {
		deps["nats"] = "connected"
	}
	if s.app.Valkey != nil {
		deps["valkey"] = "healthy"
		if err := s.app.Valkey.Ping(ctx); err != nil {
			deps["valkey"] = "unhealthy"
		}
	}
	if s.app.Search != nil {
		deps["search"] = "healthy"
		if err := s.app.Search.HealthCheck(ctx); err != nil {
			deps["search"] = "unhealthy"
		}
	}

	c.JSON(status, gin.H{
		"status":       db.Status,
		"service":      "boothpay-api",
		"dependencies": deps,
		"pool":         db.Stats,
	})
}

// HTTPServer собирает http.Server с таймаутами запроса из конфигурации
func (s *Server) HTTPServer() *http.Server {
	timeout := s.app.Config.RequestTimeout
	return &http.Server{
		Addr:              fmt.Sprintf(":%s", s.app.Config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       timeout,
		WriteTimeout:      timeout,
	}
}
