package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"zentrust-donations/internal/client"
	"zentrust-donations/internal/model"
	"zentrust-donations/internal/repository"
)

const (
	EventPaymentIntentSucceeded     = "payment_intent.succeeded"
	EventPaymentIntentPaymentFailed = "payment_intent.payment_failed"
	EventInvoicePaid                = "invoice.paid"
	EventInvoicePaymentFailed       = "invoice.payment_failed"
)

// EventHandler reacts to one verified provider event. Returning an error
// makes the receiver answer 500 so the provider redelivers.
type EventHandler func(ctx context.Context, event *client.WebhookEvent) error

type WebhookService interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
	Register(eventType string, handler EventHandler)
}

type webhookServiceImpl struct {
	provider         client.PaymentProvider
	webhookEventRepo repository.WebhookEventRepository
	logger           *slog.Logger

	mu       sync.RWMutex
	handlers map[string]EventHandler
}

func NewWebhookService(
	provider client.PaymentProvider,
	webhookEventRepo repository.WebhookEventRepository,
	logger *slog.Logger,
) WebhookService {
	return &webhookServiceImpl{
		provider:         provider,
		webhookEventRepo: webhookEventRepo,
		logger:           logger,
		handlers:         make(map[string]EventHandler),
	}
}

// Register installs handler for eventType, replacing any earlier one.
func (s *webhookServiceImpl) Register(eventType string, handler EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[eventType] = handler
}

func (s *webhookServiceImpl) handler(eventType string) (EventHandler, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handlers[eventType]
	return h, ok
}

func (s *webhookServiceImpl) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if signature == "" {
		return &Error{Kind: KindSignature, Message: "Missing Stripe signature."}
	}

	event, err := s.provider.ConstructWebhookEvent(payload, signature)
	if err != nil {
		s.logger.Warn("webhook signature verification failed", "error", err)
		return &Error{Kind: KindSignature, Message: "Invalid webhook signature.", Err: err}
	}

	log := s.logger.With("event_id", event.ID, "event_type", event.Type, "object_id", event.ObjectID)

	seen, err := s.webhookEventRepo.Exists(ctx, event.ID)
	if err != nil {
		log.Error("check webhook event", "error", err)
		return internalError("Webhook handler failed.", err)
	}
	if seen {
		log.Info("webhook event already processed")
		return nil
	}

	h, ok := s.handler(event.Type)
	if !ok {
		log.Info("unhandled webhook event")
	} else if err := h(ctx, event); err != nil {
		log.Error("webhook handler failed", "error", err)
		return internalError("Webhook handler failed.", err)
	}

	if err := s.webhookEventRepo.MarkProcessed(ctx, event.ID, event.Type, event.ObjectID); err != nil {
		log.Error("record webhook event", "error", err)
		return internalError("Webhook handler failed.", err)
	}

	return nil
}

// RegisterDonationHandlers wires the default reconciliation: each outcome
// event moves the matching local donation to its final status. Events for
// objects this service did not create are logged and acknowledged.
func RegisterDonationHandlers(ws WebhookService, donationRepo repository.DonationRepository, logger *slog.Logger) {
	reconcile := func(update func(ctx context.Context, event *client.WebhookEvent) (bool, error), msg string) EventHandler {
		return func(ctx context.Context, event *client.WebhookEvent) error {
			matched, err := update(ctx, event)
			if err != nil {
				return fmt.Errorf("update donation status: %w", err)
			}
			logger.Info(msg,
				"event_id", event.ID,
				"object_id", event.ObjectID,
				"subscription_id", event.SubscriptionID,
				"matched", matched,
			)
			return nil
		}
	}

	byPaymentIntent := func(status model.DonationStatus) func(context.Context, *client.WebhookEvent) (bool, error) {
		return func(ctx context.Context, event *client.WebhookEvent) (bool, error) {
			return donationRepo.UpdateStatusByPaymentIntent(ctx, event.ObjectID, status)
		}
	}

	byInvoice := func(status model.DonationStatus) func(context.Context, *client.WebhookEvent) (bool, error) {
		return func(ctx context.Context, event *client.WebhookEvent) (bool, error) {
			matched, err := donationRepo.UpdateStatusByInvoice(ctx, event.ObjectID, status)
			if err != nil || matched {
				return matched, err
			}
			// renewal invoices are not stored; fall back to the subscription
			return donationRepo.UpdateStatusBySubscription(ctx, event.SubscriptionID, status)
		}
	}

	ws.Register(EventPaymentIntentSucceeded, reconcile(byPaymentIntent(model.DonationStatusSucceeded), "one-time donation succeeded"))
	ws.Register(EventPaymentIntentPaymentFailed, reconcile(byPaymentIntent(model.DonationStatusFailed), "one-time donation failed"))
	ws.Register(EventInvoicePaid, reconcile(byInvoice(model.DonationStatusActive), "monthly donation invoice paid"))
	ws.Register(EventInvoicePaymentFailed, reconcile(byInvoice(model.DonationStatusPaymentFailed), "monthly donation payment failed"))
}
