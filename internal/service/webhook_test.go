package service

import (
	"context"
	"errors"
	"testing"

	"zentrust-donations/internal/client"
	"zentrust-donations/internal/logger"
	"zentrust-donations/internal/model"
	"zentrust-donations/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type webhookFixture struct {
	provider     *fakeProvider
	service      WebhookService
	eventRepo    repository.WebhookEventRepository
	donationRepo repository.DonationRepository

	// event is what the next verified delivery decodes to.
	event *client.WebhookEvent
}

func newWebhookFixture(t *testing.T, event *client.WebhookEvent) *webhookFixture {
	t.Helper()

	db := setupTestDB(t)
	f := &webhookFixture{
		eventRepo:    repository.NewWebhookEventRepository(db),
		donationRepo: repository.NewDonationRepository(db),
		event:        event,
	}
	f.provider = &fakeProvider{
		constructFn: func(payload []byte, signature string) (*client.WebhookEvent, error) {
			if signature != "valid" {
				return nil, client.ErrInvalidSignature
			}
			return f.event, nil
		},
	}
	f.service = NewWebhookService(f.provider, f.eventRepo, logger.Discard())
	return f
}

// TestHandleWebhook_MissingSignature verifies nothing is verified or dispatched without a signature.
func TestHandleWebhook_MissingSignature(t *testing.T) {
	f := newWebhookFixture(t, &client.WebhookEvent{ID: "evt_1", Type: EventInvoicePaid})

	called := false
	f.service.Register(EventInvoicePaid, func(context.Context, *client.WebhookEvent) error {
		called = true
		return nil
	})

	err := f.service.HandleWebhook(context.Background(), []byte(`{}`), "")
	requireKind(t, err, KindSignature)
	assert.False(t, called)
	assert.Empty(t, f.provider.Calls())
}

// TestHandleWebhook_InvalidSignature verifies a bad signature is rejected with no processing.
func TestHandleWebhook_InvalidSignature(t *testing.T) {
	f := newWebhookFixture(t, &client.WebhookEvent{ID: "evt_1", Type: EventInvoicePaid})

	called := false
	f.service.Register(EventInvoicePaid, func(context.Context, *client.WebhookEvent) error {
		called = true
		return nil
	})

	err := f.service.HandleWebhook(context.Background(), []byte(`{}`), "forged")
	requireKind(t, err, KindSignature)
	assert.False(t, called)

	exists, err := f.eventRepo.Exists(context.Background(), "evt_1")
	require.NoError(t, err)
	assert.False(t, exists)
}

// TestHandleWebhook_DispatchesOnce verifies a recognized event is dispatched and redeliveries are skipped.
func TestHandleWebhook_DispatchesOnce(t *testing.T) {
	f := newWebhookFixture(t, &client.WebhookEvent{ID: "evt_1", Type: EventPaymentIntentSucceeded, ObjectID: "pi_1"})

	var seen []string
	f.service.Register(EventPaymentIntentSucceeded, func(_ context.Context, e *client.WebhookEvent) error {
		seen = append(seen, e.ObjectID)
		return nil
	})

	require.NoError(t, f.service.HandleWebhook(context.Background(), []byte(`{}`), "valid"))
	require.NoError(t, f.service.HandleWebhook(context.Background(), []byte(`{}`), "valid"))

	assert.Equal(t, []string{"pi_1"}, seen)
}

// TestHandleWebhook_UnhandledTypeIsAcknowledged verifies unknown events are recorded without error.
func TestHandleWebhook_UnhandledTypeIsAcknowledged(t *testing.T) {
	f := newWebhookFixture(t, &client.WebhookEvent{ID: "evt_9", Type: "customer.created", ObjectID: "cus_1"})

	require.NoError(t, f.service.HandleWebhook(context.Background(), []byte(`{}`), "valid"))

	exists, err := f.eventRepo.Exists(context.Background(), "evt_9")
	require.NoError(t, err)
	assert.True(t, exists)
}

// TestHandleWebhook_HandlerFailureAllowsRedelivery verifies failed events are not recorded.
func TestHandleWebhook_HandlerFailureAllowsRedelivery(t *testing.T) {
	f := newWebhookFixture(t, &client.WebhookEvent{ID: "evt_2", Type: EventInvoicePaid})

	attempts := 0
	f.service.Register(EventInvoicePaid, func(context.Context, *client.WebhookEvent) error {
		attempts++
		if attempts == 1 {
			return errors.New("ledger unavailable")
		}
		return nil
	})

	err := f.service.HandleWebhook(context.Background(), []byte(`{}`), "valid")
	requireKind(t, err, KindInternal)

	require.NoError(t, f.service.HandleWebhook(context.Background(), []byte(`{}`), "valid"))
	assert.Equal(t, 2, attempts)
}

// TestDonationHandlers_OneTime verifies payment_intent.succeeded settles the matching donation.
func TestDonationHandlers_OneTime(t *testing.T) {
	ctx := context.Background()
	f := newWebhookFixture(t, &client.WebhookEvent{ID: "evt_3", Type: EventPaymentIntentSucceeded, ObjectID: "pi_42"})
	RegisterDonationHandlers(f.service, f.donationRepo, logger.Discard())

	d := &model.Donation{ID: "don-1", Fingerprint: "fp", Type: model.DonationTypeOneTime, AmountMinor: 100, Currency: "usd"}
	require.NoError(t, f.donationRepo.Reserve(ctx, d))
	d.PaymentIntentID = "pi_42"
	d.ClientSecret = "pi_42_secret"
	require.NoError(t, f.donationRepo.MarkCreated(ctx, d))

	require.NoError(t, f.service.HandleWebhook(ctx, []byte(`{}`), "valid"))

	got, err := f.donationRepo.FindByID(ctx, "don-1")
	require.NoError(t, err)
	assert.Equal(t, model.DonationStatusSucceeded, got.Status)
}

// TestDonationHandlers_RenewalInvoice verifies invoice.paid falls back to the subscription id.
func TestDonationHandlers_RenewalInvoice(t *testing.T) {
	ctx := context.Background()
	f := newWebhookFixture(t, &client.WebhookEvent{ID: "evt_4", Type: EventInvoicePaid, ObjectID: "in_renewal", SubscriptionID: "sub_7"})
	RegisterDonationHandlers(f.service, f.donationRepo, logger.Discard())

	d := &model.Donation{ID: "don-2", Fingerprint: "fp", Type: model.DonationTypeSubscription, AmountMinor: 100, Currency: "usd"}
	require.NoError(t, f.donationRepo.Reserve(ctx, d))
	d.SubscriptionID = "sub_7"
	d.InvoiceID = "in_first"
	d.ClientSecret = "pi_7_secret"
	require.NoError(t, f.donationRepo.MarkCreated(ctx, d))

	require.NoError(t, f.service.HandleWebhook(ctx, []byte(`{}`), "valid"))

	got, err := f.donationRepo.FindByID(ctx, "don-2")
	require.NoError(t, err)
	assert.Equal(t, model.DonationStatusActive, got.Status)
}

// TestDonationHandlers_UnknownObject verifies events for foreign objects are acknowledged.
func TestDonationHandlers_UnknownObject(t *testing.T) {
	f := newWebhookFixture(t, &client.WebhookEvent{ID: "evt_5", Type: EventInvoicePaymentFailed, ObjectID: "in_x"})
	RegisterDonationHandlers(f.service, f.donationRepo, logger.Discard())

	require.NoError(t, f.service.HandleWebhook(context.Background(), []byte(`{}`), "valid"))
}

// TestDonationHandlers_LateFailureKeepsSuccess verifies a payment_failed delivered
// after payment_intent.succeeded does not downgrade the donation.
func TestDonationHandlers_LateFailureKeepsSuccess(t *testing.T) {
	ctx := context.Background()
	f := newWebhookFixture(t, &client.WebhookEvent{ID: "evt_ok", Type: EventPaymentIntentSucceeded, ObjectID: "pi_43"})
	RegisterDonationHandlers(f.service, f.donationRepo, logger.Discard())

	d := &model.Donation{ID: "don-3", Fingerprint: "fp", Type: model.DonationTypeOneTime, AmountMinor: 100, Currency: "usd"}
	require.NoError(t, f.donationRepo.Reserve(ctx, d))
	d.PaymentIntentID = "pi_43"
	d.ClientSecret = "pi_43_secret"
	require.NoError(t, f.donationRepo.MarkCreated(ctx, d))

	require.NoError(t, f.service.HandleWebhook(ctx, []byte(`{}`), "valid"))

	f.event = &client.WebhookEvent{ID: "evt_late", Type: EventPaymentIntentPaymentFailed, ObjectID: "pi_43"}
	require.NoError(t, f.service.HandleWebhook(ctx, []byte(`{}`), "valid"))

	got, err := f.donationRepo.FindByID(ctx, "don-3")
	require.NoError(t, err)
	assert.Equal(t, model.DonationStatusSucceeded, got.Status)

	exists, err := f.eventRepo.Exists(ctx, "evt_late")
	require.NoError(t, err)
	assert.True(t, exists)
}

// TestDonationHandlers_LateInvoiceFailureKeepsActive verifies the first invoice
// stays paid when its failure arrives last, without touching the subscription.
func TestDonationHandlers_LateInvoiceFailureKeepsActive(t *testing.T) {
	ctx := context.Background()
	f := newWebhookFixture(t, &client.WebhookEvent{ID: "evt_paid", Type: EventInvoicePaid, ObjectID: "in_first", SubscriptionID: "sub_8"})
	RegisterDonationHandlers(f.service, f.donationRepo, logger.Discard())

	d := &model.Donation{ID: "don-4", Fingerprint: "fp", Type: model.DonationTypeSubscription, AmountMinor: 100, Currency: "usd"}
	require.NoError(t, f.donationRepo.Reserve(ctx, d))
	d.SubscriptionID = "sub_8"
	d.InvoiceID = "in_first"
	d.ClientSecret = "pi_8_secret"
	require.NoError(t, f.donationRepo.MarkCreated(ctx, d))

	require.NoError(t, f.service.HandleWebhook(ctx, []byte(`{}`), "valid"))

	f.event = &client.WebhookEvent{ID: "evt_failed", Type: EventInvoicePaymentFailed, ObjectID: "in_first", SubscriptionID: "sub_8"}
	require.NoError(t, f.service.HandleWebhook(ctx, []byte(`{}`), "valid"))

	got, err := f.donationRepo.FindByID(ctx, "don-4")
	require.NoError(t, err)
	assert.Equal(t, model.DonationStatusActive, got.Status)
}
