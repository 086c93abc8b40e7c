package dto

import "encoding/json"

// CreateIntentRequest is decoded loosely: Amount stays raw so the validator
// can tell a missing amount from a string or a non-number.
type CreateIntentRequest struct {
	Amount         json.RawMessage `json:"amount"`
	Frequency      string          `json:"frequency"`
	ImpactPath     string          `json:"impactPath"`
	Name           string          `json:"name"`
	Email          string          `json:"email"`
	IdempotencyKey string          `json:"idempotencyKey"`
}

type CreateIntentResponse struct {
	Type            string `json:"type"`
	ClientSecret    string `json:"clientSecret"`
	DonationID      string `json:"donationId"`
	PaymentIntentID string `json:"paymentIntentId,omitempty"`
	SubscriptionID  string `json:"subscriptionId,omitempty"`
	CustomerID      string `json:"customerId,omitempty"`
}

type PaymentStatusResponse struct {
	Status   string   `json:"status"`
	Amount   *float64 `json:"amount,omitempty"`
	Currency string   `json:"currency,omitempty"`
}

type DonationConfigResponse struct {
	PublishableKey string   `json:"publishableKey"`
	Currency       string   `json:"currency"`
	MinAmount      int64    `json:"minAmount"`
	MaxAmount      int64    `json:"maxAmount"`
	Frequencies    []string `json:"frequencies"`
}

type WebhookAck struct {
	Received bool `json:"received"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}
