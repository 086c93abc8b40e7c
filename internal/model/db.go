package model

import "time"

type DonationType string

const (
	DonationTypeOneTime      DonationType = "one_time"
	DonationTypeSubscription DonationType = "subscription"
)

type DonationStatus string

const (
	DonationStatusPending       DonationStatus = "PENDING"        // reserved, provider calls in flight
	DonationStatusCreated       DonationStatus = "CREATED"        // client secret issued
	DonationStatusSucceeded     DonationStatus = "SUCCEEDED"      // one-time payment captured
	DonationStatusFailed        DonationStatus = "FAILED"         // one-time payment failed
	DonationStatusActive        DonationStatus = "ACTIVE"         // subscription invoice paid
	DonationStatusPaymentFailed DonationStatus = "PAYMENT_FAILED" // subscription invoice failed
)

// Donation links one create-intent request to the provider objects it produced.
type Donation struct {
	ID             string         `gorm:"primaryKey;size:36;not null"`
	IdempotencyKey *string        `gorm:"size:255;uniqueIndex"`
	Fingerprint    string         `gorm:"size:64;not null"` // hash of amount, currency, frequency, email
	Type           DonationType   `gorm:"size:16;index;not null"`
	Status         DonationStatus `gorm:"size:32;index;not null"`
	AmountMinor    int64          `gorm:"not null"`
	Currency       string         `gorm:"size:8;not null"`
	ImpactPath     string         `gorm:"size:128"`
	Email          string         `gorm:"size:255;index"`
	Name           string         `gorm:"size:255"`

	PaymentIntentID string `gorm:"size:64;index"`
	CustomerID      string `gorm:"size:64;index"`
	PriceID         string `gorm:"size:64"`
	SubscriptionID  string `gorm:"size:64;index"`
	InvoiceID       string `gorm:"size:64;index"`
	ClientSecret    string `gorm:"size:255"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

type WebhookEvent struct {
	EventID     string `gorm:"primaryKey;size:128;uniqueIndex;not null"`
	EventType   string `gorm:"size:64;index"`
	ObjectID    string `gorm:"size:64;index"`
	ProcessedAt time.Time
	CreatedAt   time.Time
}

// All lists the tables managed by auto-migration.
func All() []any {
	return []any{&Donation{}, &WebhookEvent{}}
}
