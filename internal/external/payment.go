package external

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	apperrors "boothpay/internal/errors"
	"boothpay/internal/metrics"
)

type PaymentClient struct {
	baseURL         string
	merchantID      string
	serverKey       string
	currency        string
	notificationURL string
	finishURL       string
	expiryMinutes   int
	httpClient      *http.Client
}

type PaymentConfig struct {
	BaseURL         string
	MerchantID      string
	ServerKey       string
	Currency        string
	NotificationURL string
	FinishURL       string
	ExpiryMinutes   int
	Timeout         time.Duration
}

// Amount is a gross amount in the gateway's currency unit. The gateway sends
// it either as a JSON number or as a decimal string such as "100000.00".
type Amount int64

func (a *Amount) UnmarshalJSON(data []byte) error {
	str := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if str == "" || str == "null" {
		*a = 0
		return nil
	}
	f, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return fmt.Errorf("invalid amount value: %s", str)
	}
	*a = Amount(math.Round(f))
	return nil
}

func (a Amount) Int64() int64 {
	return int64(a)
}

// Customer details forwarded to the gateway's hosted page
type Customer struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type SessionOptions struct {
	Description     string
	EnabledChannels []string
	ExpiryMinutes   int
}

type SessionRequest struct {
	OrderID  string
	Amount   int64
	Customer Customer
	Options  SessionOptions
}

// Session is the payable handle returned by the gateway
type Session struct {
	Token       string          `json:"token"`
	RedirectURL string          `json:"redirectUrl"`
	Raw         json.RawMessage `json:"-"`
}

// Snapshot is the gateway's view of one order at fetch time
type Snapshot struct {
	OrderID           string          `json:"orderId"`
	TransactionID     string          `json:"transactionId"`
	TransactionStatus string          `json:"transactionStatus"`
	FraudStatus       string          `json:"fraudStatus"`
	StatusCode        string          `json:"statusCode"`
	PaymentType       string          `json:"paymentType"`
	GrossAmount       Amount          `json:"grossAmount"`
	TransactionTime   string          `json:"transactionTime"`
	Raw               json.RawMessage `json:"-"`
}

type sessionInitRequest struct {
	MerchantID      string   `json:"merchantId"`
	Token           string   `json:"token"`
	OrderID         string   `json:"orderId"`
	Amount          int64    `json:"amount"`
	Currency        string   `json:"currency"`
	Customer        Customer `json:"customer"`
	Description     string   `json:"description,omitempty"`
	EnabledChannels []string `json:"enabledChannels,omitempty"`
	ExpiryMinutes   int      `json:"expiryMinutes,omitempty"`
	NotificationURL string   `json:"notificationURL,omitempty"`
	FinishURL       string   `json:"finishURL,omitempty"`
}

type gatewayError struct {
	Success      bool   `json:"success"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

const errorCodeOrderIDUsed = "ORDER_ID_USED"

func NewPaymentClient(cfg PaymentConfig) *PaymentClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Currency == "" {
		cfg.Currency = "IDR"
	}

	return &PaymentClient{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		merchantID:      cfg.MerchantID,
		serverKey:       cfg.ServerKey,
		currency:        cfg.Currency,
		notificationURL: cfg.NotificationURL,
		finishURL:       cfg.FinishURL,
		expiryMinutes:   cfg.ExpiryMinutes,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

func (pc *PaymentClient) generateToken(params map[string]string) string {
	signed := make(map[string]string, len(params)+2)
	for k, v := range params {
		signed[k] = v
	}
	signed["MerchantId"] = pc.merchantID
	signed["ServerKey"] = pc.serverKey

	keys := make([]string, 0, len(signed))
	for k := range signed {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, key := range keys {
		sb.WriteString(signed[key])
	}

	hash := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(hash[:])
}

// CreateSession asks the gateway for a payable session. A reused order id is
// reported as ErrOrderIDConflict.
func (pc *PaymentClient) CreateSession(ctx context.Context, in SessionRequest) (*Session, error) {
	token := pc.generateToken(map[string]string{
		"Amount":   strconv.FormatInt(in.Amount, 10),
		"Currency": pc.currency,
		"OrderId":  in.OrderID,
	})

	expiry := in.Options.ExpiryMinutes
	if expiry == 0 {
		expiry = pc.expiryMinutes
	}

	req := sessionInitRequest{
		MerchantID:      pc.merchantID,
		Token:           token,
		OrderID:         in.OrderID,
		Amount:          in.Amount,
		Currency:        pc.currency,
		Customer:        in.Customer,
		Description:     in.Options.Description,
		EnabledChannels: in.Options.EnabledChannels,
		ExpiryMinutes:   expiry,
		NotificationURL: pc.notificationURL,
		FinishURL:       pc.finishURL,
	}

	jsonBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	body, status, err := pc.do(ctx, "create_session", http.MethodPost, pc.baseURL+"/v1/sessions", jsonBody)
	if err != nil {
		return nil, err
	}

	if status == http.StatusConflict || isOrderIDUsed(body) {
		return nil, fmt.Errorf("order %s: %w", in.OrderID, apperrors.ErrOrderIDConflict)
	}
	if err := statusError(status, body); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if session.Token == "" {
		return nil, fmt.Errorf("failed to create session: gateway returned no token")
	}
	session.Raw = body

	return &session, nil
}

// FetchStatus returns the live gateway snapshot for an order
func (pc *PaymentClient) FetchStatus(ctx context.Context, orderID string) (*Snapshot, error) {
	token := pc.generateToken(map[string]string{"OrderId": orderID})

	endpoint := fmt.Sprintf("%s/v1/orders/%s/status?merchantId=%s&token=%s",
		pc.baseURL, url.PathEscape(orderID), url.QueryEscape(pc.merchantID), token)

	body, status, err := pc.do(ctx, "fetch_status", http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	if status == http.StatusNotFound {
		return nil, fmt.Errorf("order %s: %w", orderID, apperrors.ErrOrderNotFound)
	}
	if err := statusError(status, body); err != nil {
		return nil, fmt.Errorf("failed to fetch status: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(body, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if snapshot.OrderID == "" {
		snapshot.OrderID = orderID
	}
	snapshot.Raw = body

	return &snapshot, nil
}

// VerifyNotification checks a webhook signature. It only authenticates the
// caller; the notification body is never used as payment truth.
func (pc *PaymentClient) VerifyNotification(orderID, statusCode, grossAmount, signature string) bool {
	expected := pc.generateToken(map[string]string{
		"GrossAmount": grossAmount,
		"OrderId":     orderID,
		"StatusCode":  statusCode,
	})
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(signature))) == 1
}

func (pc *PaymentClient) do(ctx context.Context, op, method, endpoint string, payload []byte) ([]byte, int, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := pc.httpClient.Do(req)
	if err != nil {
		metrics.GatewayDuration.WithLabelValues(op, "error").Observe(time.Since(start).Seconds())
		return nil, 0, fmt.Errorf("%w: %s: %v", apperrors.ErrGatewayUnavailable, op, err)
	}
	defer resp.Body.Close()
	metrics.GatewayDuration.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: %s: read body: %v", apperrors.ErrGatewayUnavailable, op, err)
	}

	return body, resp.StatusCode, nil
}

func statusError(status int, body []byte) error {
	if status >= 500 {
		return fmt.Errorf("%w: unexpected status code %d", apperrors.ErrGatewayUnavailable, status)
	}
	if status >= 400 {
		var ge gatewayError
		_ = json.Unmarshal(body, &ge)
		if ge.ErrorMessage != "" {
			return fmt.Errorf("gateway rejected request (%d %s): %s", status, ge.ErrorCode, ge.ErrorMessage)
		}
		return fmt.Errorf("unexpected status code: %d", status)
	}
	return nil
}

func isOrderIDUsed(body []byte) bool {
	var ge gatewayError
	if err := json.Unmarshal(body, &ge); err != nil {
		return false
	}
	return strings.EqualFold(ge.ErrorCode, errorCodeOrderIDUsed)
}

// IsTransient reports gateway errors that should leave state untouched and be
// retried later by the sweep
func IsTransient(err error) bool {
	return errors.Is(err, apperrors.ErrGatewayUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}
