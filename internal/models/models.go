package models

// ChargeResponse - session handle returned to the buyer
type ChargeResponse struct {
	OrderID      string `json:"order_id"`
	SessionToken string `json:"session_token"`
	RedirectURL  string `json:"redirect_url"`
}

// PaymentNotificationPayload - webhook body sent by the payment gateway.
// Only OrderID is used to trigger reconciliation; the rest is never trusted.
type PaymentNotificationPayload struct {
	OrderID           string `json:"order_id" binding:"required"`
	TransactionID     string `json:"transaction_id"`
	TransactionStatus string `json:"transaction_status"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
}

// SweepRequest - query parameters for a sweep reconciliation
type SweepRequest struct {
	MaxAgeMinutes int `form:"max_age_minutes"`
	Limit         int `form:"limit"`
}

// ReconcileResponse - outcome of reconciling one order
type ReconcileResponse struct {
	OrderID    string `json:"order_id"`
	BookingID  int64  `json:"booking_id"`
	Mapped     string `json:"mapped"`
	Reconciled bool   `json:"reconciled"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
}

// SweepResponseItem - per-order outcome of a sweep
type SweepResponseItem struct {
	ReconcileResponse
	Error string `json:"error,omitempty"`
}

// SweepResponse - list of per-order outcomes
type SweepResponse []SweepResponseItem
