package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"zentrust-donations/internal/config"
	"zentrust-donations/internal/money"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// PaymentProvider is the subset of the payment provider API the donation
// flow needs. Every create call accepts an idempotency key that is forwarded
// to the provider and reused across network retries.
type PaymentProvider interface {
	CreatePaymentIntent(ctx context.Context, params *PaymentIntentParams) (*PaymentSession, error)
	CreateCustomer(ctx context.Context, params *CustomerParams) (string, error)
	CreateMonthlyPrice(ctx context.Context, params *PriceParams) (string, error)
	CreateSubscription(ctx context.Context, params *SubscriptionParams) (*SubscriptionSession, error)
	RetrievePaymentIntent(ctx context.Context, id string) (*PaymentIntentStatus, error)
	ConstructWebhookEvent(payload []byte, signature string) (*WebhookEvent, error)
}

type PaymentIntentParams struct {
	Amount         money.Amount
	Currency       string
	Email          string
	Metadata       map[string]string
	IdempotencyKey string
}

type CustomerParams struct {
	Email          string
	Name           string
	Metadata       map[string]string
	IdempotencyKey string
}

type PriceParams struct {
	Amount         money.Amount
	Currency       string
	ProductName    string
	Metadata       map[string]string
	IdempotencyKey string
}

type SubscriptionParams struct {
	CustomerID     string
	PriceID        string
	Quantity       int64
	Metadata       map[string]string
	IdempotencyKey string
}

type PaymentSession struct {
	ID           string
	ClientSecret string
}

type SecretSource string

const (
	SecretSourceInvoice     SecretSource = "invoice"
	SecretSourceSetupIntent SecretSource = "setup_intent"
)

type SubscriptionSession struct {
	ID           string
	Status       string
	InvoiceID    string
	ClientSecret string
	SecretSource SecretSource
}

type PaymentIntentStatus struct {
	ID             string
	Status         string
	AmountReceived int64 // minor units
	Currency       string
}

type WebhookEvent struct {
	ID             string
	Type           string
	ObjectID       string
	SubscriptionID string
	Livemode       bool
}

type stripeClientImpl struct {
	sc            *stripe.Client
	webhookSecret string
	retry         *retrier
}

// NewStripeClient builds the provider client. The SDK's own network retries
// are disabled; retries happen in the client so API 5xx and 429 answers are
// retried too, under the same idempotency key.
func NewStripeClient(cfg *config.Stripe, logger *slog.Logger) PaymentProvider {
	backendCfg := &stripe.BackendConfig{
		HTTPClient: &http.Client{
			Timeout: cfg.CallTimeout,
		},
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripeLogger{logger: logger},
	}
	if cfg.APIURL != "" {
		backendCfg.URL = stripe.String(cfg.APIURL)
	}

	sc := stripe.NewClient(cfg.SecretKey, stripe.WithBackends(stripe.NewBackendsWithConfig(backendCfg)))

	return &stripeClientImpl{
		sc:            sc,
		webhookSecret: cfg.WebhookSecret,
		retry: &retrier{
			maxRetries:  cfg.MaxRetries,
			baseDelay:   cfg.RetryBackoff,
			callTimeout: cfg.CallTimeout,
			logger:      logger,
		},
	}
}

func (c *stripeClientImpl) CreatePaymentIntent(ctx context.Context, params *PaymentIntentParams) (*PaymentSession, error) {
	req := &stripe.PaymentIntentCreateParams{
		Amount:   stripe.Int64(params.Amount.Minor()),
		Currency: stripe.String(params.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if params.Email != "" {
		req.ReceiptEmail = stripe.String(params.Email)
	}
	addMetadata(req, params.Metadata)
	setIdempotencyKey(&req.Params, params.IdempotencyKey)

	var intent *stripe.PaymentIntent
	err := c.retry.do(ctx, "create payment intent", func(ctx context.Context) (err error) {
		intent, err = c.sc.V1PaymentIntents.Create(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	if intent.ClientSecret == "" {
		return nil, &ProviderError{Op: "create payment intent", Kind: ErrMissingClientSecret}
	}

	return &PaymentSession{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
	}, nil
}

func (c *stripeClientImpl) CreateCustomer(ctx context.Context, params *CustomerParams) (string, error) {
	req := &stripe.CustomerCreateParams{}
	if params.Email != "" {
		req.Email = stripe.String(params.Email)
	}
	if params.Name != "" {
		req.Name = stripe.String(params.Name)
	}
	addMetadata(req, params.Metadata)
	setIdempotencyKey(&req.Params, params.IdempotencyKey)

	var customer *stripe.Customer
	err := c.retry.do(ctx, "create customer", func(ctx context.Context) (err error) {
		customer, err = c.sc.V1Customers.Create(ctx, req)
		return err
	})
	if err != nil {
		return "", err
	}

	return customer.ID, nil
}

func (c *stripeClientImpl) CreateMonthlyPrice(ctx context.Context, params *PriceParams) (string, error) {
	req := &stripe.PriceCreateParams{
		Currency:   stripe.String(params.Currency),
		UnitAmount: stripe.Int64(params.Amount.Minor()),
		Recurring: &stripe.PriceCreateRecurringParams{
			Interval: stripe.String(string(stripe.PriceRecurringIntervalMonth)),
		},
		ProductData: &stripe.PriceCreateProductDataParams{
			Name: stripe.String(params.ProductName),
		},
	}
	addMetadata(req, params.Metadata)
	setIdempotencyKey(&req.Params, params.IdempotencyKey)

	var price *stripe.Price
	err := c.retry.do(ctx, "create price", func(ctx context.Context) (err error) {
		price, err = c.sc.V1Prices.Create(ctx, req)
		return err
	})
	if err != nil {
		return "", err
	}

	return price.ID, nil
}

func (c *stripeClientImpl) CreateSubscription(ctx context.Context, params *SubscriptionParams) (*SubscriptionSession, error) {
	quantity := params.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	req := &stripe.SubscriptionCreateParams{
		Customer: stripe.String(params.CustomerID),
		Items: []*stripe.SubscriptionCreateItemParams{
			{
				Price:    stripe.String(params.PriceID),
				Quantity: stripe.Int64(quantity),
			},
		},
		// the subscription stays incomplete until the browser confirms payment
		CollectionMethod: stripe.String(string(stripe.SubscriptionCollectionMethodChargeAutomatically)),
		PaymentBehavior:  stripe.String("default_incomplete"),
		PaymentSettings: &stripe.SubscriptionCreatePaymentSettingsParams{
			PaymentMethodTypes:       stripe.StringSlice([]string{"card"}),
			SaveDefaultPaymentMethod: stripe.String("on_subscription"),
		},
	}
	req.AddExpand("latest_invoice.confirmation_secret")
	req.AddExpand("pending_setup_intent")
	addMetadata(req, params.Metadata)
	setIdempotencyKey(&req.Params, params.IdempotencyKey)

	var sub *stripe.Subscription
	err := c.retry.do(ctx, "create subscription", func(ctx context.Context) (err error) {
		sub, err = c.sc.V1Subscriptions.Create(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	session := &SubscriptionSession{
		ID:     sub.ID,
		Status: string(sub.Status),
	}
	if sub.LatestInvoice != nil {
		session.InvoiceID = sub.LatestInvoice.ID
	}

	secret, source, err := subscriptionClientSecret(sub)
	if err != nil {
		return nil, &ProviderError{Op: "create subscription", Kind: err}
	}
	session.ClientSecret = secret
	session.SecretSource = source

	return session, nil
}

// subscriptionClientSecret finds the confirmation token on whichever nested
// object carries it: the first invoice when a payment is due now, or the
// pending SetupIntent when nothing is due (trials, zero-amount invoices).
func subscriptionClientSecret(sub *stripe.Subscription) (string, SecretSource, error) {
	if inv := sub.LatestInvoice; inv != nil && inv.ConfirmationSecret != nil && inv.ConfirmationSecret.ClientSecret != "" {
		return inv.ConfirmationSecret.ClientSecret, SecretSourceInvoice, nil
	}
	if si := sub.PendingSetupIntent; si != nil && si.ClientSecret != "" {
		return si.ClientSecret, SecretSourceSetupIntent, nil
	}
	return "", "", ErrMissingClientSecret
}

func (c *stripeClientImpl) RetrievePaymentIntent(ctx context.Context, id string) (*PaymentIntentStatus, error) {
	var intent *stripe.PaymentIntent
	err := c.retry.do(ctx, "retrieve payment intent", func(ctx context.Context) (err error) {
		intent, err = c.sc.V1PaymentIntents.Retrieve(ctx, id, nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &PaymentIntentStatus{
		ID:             intent.ID,
		Status:         string(intent.Status),
		AmountReceived: intent.AmountReceived,
		Currency:       string(intent.Currency),
	}, nil
}

func (c *stripeClientImpl) ConstructWebhookEvent(payload []byte, signature string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, c.webhookSecret, webhook.ConstructEventOptions{
		// events are read by type and object id only, so older API versions are fine
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &WebhookEvent{
		ID:       event.ID,
		Type:     string(event.Type),
		Livemode: event.Livemode,
	}
	if event.Data != nil {
		out.ObjectID = stringField(event.Data.Object, "id")
		out.SubscriptionID = subscriptionIDFromObject(event.Data.Object)
	}

	return out, nil
}

// subscriptionIDFromObject reads the subscription id from an invoice object,
// which carries it either at the top level or under parent.subscription_details
// depending on the API version the event was rendered with.
func subscriptionIDFromObject(obj map[string]interface{}) string {
	if id := stringField(obj, "subscription"); id != "" {
		return id
	}
	parent, _ := obj["parent"].(map[string]interface{})
	details, _ := parent["subscription_details"].(map[string]interface{})
	return stringField(details, "subscription")
}

func stringField(obj map[string]interface{}, key string) string {
	if obj == nil {
		return ""
	}
	switch v := obj[key].(type) {
	case string:
		return v
	case map[string]interface{}:
		// expanded object
		id, _ := v["id"].(string)
		return id
	}
	return ""
}

type metadataSetter interface {
	AddMetadata(key string, value string)
}

func addMetadata(p metadataSetter, metadata map[string]string) {
	for k, v := range metadata {
		p.AddMetadata(k, v)
	}
}

func setIdempotencyKey(p *stripe.Params, key string) {
	if key != "" {
		p.SetIdempotencyKey(key)
	}
}

type stripeLogger struct {
	logger *slog.Logger
}

func (l *stripeLogger) Debugf(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...), "component", "stripe")
}

func (l *stripeLogger) Infof(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...), "component", "stripe")
}

func (l *stripeLogger) Warnf(format string, v ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, v...), "component", "stripe")
}

func (l *stripeLogger) Errorf(format string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, v...), "component", "stripe")
}
