package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"zentrust-donations/internal/client"
	"zentrust-donations/internal/config"
	"zentrust-donations/internal/logger"
	"zentrust-donations/internal/repository"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeProvider records the order of provider calls. Unset functions succeed
// with fixed ids.
type fakeProvider struct {
	mu    sync.Mutex
	calls []string

	createPaymentIntentFn func(*client.PaymentIntentParams) (*client.PaymentSession, error)
	createCustomerFn      func(*client.CustomerParams) (string, error)
	createPriceFn         func(*client.PriceParams) (string, error)
	createSubscriptionFn  func(*client.SubscriptionParams) (*client.SubscriptionSession, error)
	retrieveFn            func(id string) (*client.PaymentIntentStatus, error)
	constructFn           func(payload []byte, signature string) (*client.WebhookEvent, error)
}

func (f *fakeProvider) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeProvider) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeProvider) CreatePaymentIntent(_ context.Context, p *client.PaymentIntentParams) (*client.PaymentSession, error) {
	f.record("payment_intent")
	if f.createPaymentIntentFn != nil {
		return f.createPaymentIntentFn(p)
	}
	return &client.PaymentSession{ID: "pi_1", ClientSecret: "pi_1_secret_one"}, nil
}

func (f *fakeProvider) CreateCustomer(_ context.Context, p *client.CustomerParams) (string, error) {
	f.record("customer")
	if f.createCustomerFn != nil {
		return f.createCustomerFn(p)
	}
	return "cus_1", nil
}

func (f *fakeProvider) CreateMonthlyPrice(_ context.Context, p *client.PriceParams) (string, error) {
	f.record("price")
	if f.createPriceFn != nil {
		return f.createPriceFn(p)
	}
	return "price_1", nil
}

func (f *fakeProvider) CreateSubscription(_ context.Context, p *client.SubscriptionParams) (*client.SubscriptionSession, error) {
	f.record("subscription")
	if f.createSubscriptionFn != nil {
		return f.createSubscriptionFn(p)
	}
	return &client.SubscriptionSession{
		ID:           "sub_1",
		Status:       "incomplete",
		InvoiceID:    "in_1",
		ClientSecret: "pi_2_secret_sub",
		SecretSource: client.SecretSourceInvoice,
	}, nil
}

func (f *fakeProvider) RetrievePaymentIntent(_ context.Context, id string) (*client.PaymentIntentStatus, error) {
	f.record("retrieve")
	if f.retrieveFn != nil {
		return f.retrieveFn(id)
	}
	return &client.PaymentIntentStatus{ID: id, Status: "processing"}, nil
}

func (f *fakeProvider) ConstructWebhookEvent(payload []byte, signature string) (*client.WebhookEvent, error) {
	f.record("construct_event")
	if f.constructFn != nil {
		return f.constructFn(payload, signature)
	}
	return nil, client.ErrInvalidSignature
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := client.InitDBClient(":memory:", logger.Discard())
	require.NoError(t, err)
	require.NoError(t, client.Migrate(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	return db
}

func testConfig() *config.Config {
	return &config.Config{
		Stripe: config.Stripe{
			MonthlyUnitAmount: 100,
		},
		Donation: config.Donation{
			MinAmount: 1,
			MaxAmount: 200000,
			Currency:  "usd",
			Purpose:   "zentrust_stewardship",

			ReservationTTL: 5 * time.Minute,
		},
	}
}

func newTestDonationService(t *testing.T, provider client.PaymentProvider, cfg *config.Config) (DonationService, repository.DonationRepository) {
	t.Helper()

	repo := repository.NewDonationRepository(setupTestDB(t))
	svc, err := NewDonationService(provider, repo, cfg, logger.Discard())
	require.NoError(t, err)

	return svc, repo
}
