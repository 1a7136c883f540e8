package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"boothpay/internal/models"
)

// APIValidator - проверка развернутого API без изменения данных
type APIValidator struct {
	baseURL string
	client  *http.Client
}

// NewAPIValidator создает новый валидатор
func NewAPIValidator(baseURL string) *APIValidator {
	return &APIValidator{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// ValidateAll проверяет служебные и платежные endpoints
func (v *APIValidator) ValidateAll() error {
	slog.Info("Starting API validation", "base_url", v.baseURL)

	if err := v.validateOps(); err != nil {
		return fmt.Errorf("ops validation failed: %w", err)
	}

	if err := v.validateCharge(); err != nil {
		return fmt.Errorf("charge validation failed: %w", err)
	}

	if err := v.validatePayments(); err != nil {
		return fmt.Errorf("payments validation failed: %w", err)
	}

	slog.Info("API validation passed")
	return nil
}

func (v *APIValidator) validateOps() error {
	// GET /health
	resp, err := v.makeRequest(http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	var health struct {
		Status string `json:"status"`
	}
	err = json.NewDecoder(resp.Body).Decode(&health)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET /health: expected 200, got %d", resp.StatusCode)
	}
	if err != nil {
		return fmt.Errorf("GET /health: failed to decode response: %w", err)
	}
	if health.Status != "healthy" {
		return fmt.Errorf("GET /health: expected healthy, got %q", health.Status)
	}

	// GET /metrics
	resp, err = v.makeRequest(http.MethodGet, "/metrics", nil)
	if err != nil {
		return err
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("GET /metrics: failed to read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET /metrics: expected 200, got %d", resp.StatusCode)
	}
	if !bytes.Contains(body, []byte("boothpay_tx_serialization_retries_total")) {
		return fmt.Errorf("GET /metrics: boothpay metrics are not exported")
	}

	return nil
}

func (v *APIValidator) validateCharge() error {
	// POST /api/bookings/:id/charge с невалидным id
	return v.expectStatus(http.MethodPost, "/api/bookings/0/charge", nil, http.StatusBadRequest)
}

func (v *APIValidator) validatePayments() error {
	// POST /api/payments/notifications с неверной подписью
	notification := models.PaymentNotificationPayload{
		OrderID:           "BOOTH-validate",
		TransactionStatus: "settlement",
		StatusCode:        "200",
		GrossAmount:       "1.00",
		SignatureKey:      "invalid",
	}
	if err := v.expectStatus(http.MethodPost, "/api/payments/notifications", notification, http.StatusUnauthorized); err != nil {
		return err
	}

	// POST /api/payments/notifications без order_id
	if err := v.expectStatus(http.MethodPost, "/api/payments/notifications", map[string]string{}, http.StatusBadRequest); err != nil {
		return err
	}

	// POST /api/payments/reconcile/sweep без учетных данных
	return v.expectStatus(http.MethodPost, "/api/payments/reconcile/sweep", nil,
		http.StatusUnauthorized, http.StatusForbidden)
}

func (v *APIValidator) expectStatus(method, path string, body interface{}, want ...int) error {
	resp, err := v.makeRequest(method, path, body)
	if err != nil {
		return err
	}
	resp.Body.Close()

	for _, code := range want {
		if resp.StatusCode == code {
			return nil
		}
	}
	return fmt.Errorf("%s %s: expected %v, got %d", method, path, want, resp.StatusCode)
}

func (v *APIValidator) makeRequest(method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequest(method, v.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}
