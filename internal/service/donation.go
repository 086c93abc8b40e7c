package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"zentrust-donations/internal/client"
	"zentrust-donations/internal/config"
	"zentrust-donations/internal/dto"
	"zentrust-donations/internal/model"
	"zentrust-donations/internal/money"
	"zentrust-donations/internal/repository"

	"github.com/google/uuid"
)

type DonationService interface {
	CreateIntent(ctx context.Context, req *DonationRequest) (*dto.CreateIntentResponse, error)
	GetPaymentStatus(ctx context.Context, paymentIntentID string) (*dto.PaymentStatusResponse, error)
}

type donationServiceImpl struct {
	provider     client.PaymentProvider
	donationRepo repository.DonationRepository
	logger       *slog.Logger

	currency       string
	purpose        string
	monthlyPriceID string
	monthlyUnit    money.Amount

	// reservationTTL is how long a pending reservation belongs to the request
	// that made it. After that a retry with the same key takes it over.
	reservationTTL time.Duration
	now            func() time.Time
}

func NewDonationService(
	provider client.PaymentProvider,
	donationRepo repository.DonationRepository,
	cfg *config.Config,
	logger *slog.Logger,
) (DonationService, error) {
	unit, err := money.FromMinor(cfg.Stripe.MonthlyUnitAmount)
	if err != nil {
		return nil, fmt.Errorf("monthly unit amount: %w", err)
	}

	if cfg.Donation.ReservationTTL <= 0 {
		return nil, fmt.Errorf("reservation ttl must be positive, got %s", cfg.Donation.ReservationTTL)
	}

	return &donationServiceImpl{
		provider:       provider,
		donationRepo:   donationRepo,
		logger:         logger,
		currency:       strings.ToLower(cfg.Donation.Currency),
		purpose:        cfg.Donation.Purpose,
		monthlyPriceID: cfg.Stripe.MonthlyPriceID,
		monthlyUnit:    unit,
		reservationTTL: cfg.Donation.ReservationTTL,
		now:            time.Now,
	}, nil
}

func (s *donationServiceImpl) CreateIntent(ctx context.Context, req *DonationRequest) (*dto.CreateIntentResponse, error) {
	if req.Frequency == FrequencyMonthly && s.monthlyPriceID != "" && !req.Amount.MultipleOf(s.monthlyUnit) {
		return nil, validationError(map[string]string{
			"amount": fmt.Sprintf("monthly amounts must be a multiple of %s", s.monthlyUnit),
		})
	}

	donation := &model.Donation{
		ID:          donationID(req.IdempotencyKey),
		Fingerprint: s.fingerprint(req),
		Type:        donationType(req.Frequency),
		AmountMinor: req.Amount.Minor(),
		Currency:    s.currency,
		ImpactPath:  req.ImpactPath,
		Email:       req.Email,
		Name:        req.Name,
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		donation.IdempotencyKey = &key
	}

	if err := s.donationRepo.Reserve(ctx, donation); err != nil {
		if !errors.Is(err, repository.ErrDuplicateKey) {
			s.logger.Error("reserve donation", "error", err)
			return nil, internalError("Unable to prepare payment.", err)
		}

		resp, reclaimed, err := s.replay(ctx, req.IdempotencyKey, donation.Fingerprint)
		if reclaimed == nil {
			return resp, err
		}
		donation = reclaimed
	}

	var err error
	switch req.Frequency {
	case FrequencyOnce:
		err = s.createOneTime(ctx, req, donation)
	case FrequencyMonthly:
		err = s.createMonthly(ctx, req, donation)
	default:
		err = fmt.Errorf("unsupported frequency %q", req.Frequency)
	}

	if err != nil {
		s.logProviderFailure(donation, err)
		// the reservation never produced a session; free the key for a retry
		if relErr := s.donationRepo.Release(context.WithoutCancel(ctx), donation.ID); relErr != nil {
			s.logger.Error("release donation reservation", "donation_id", donation.ID, "error", relErr)
		}
		return nil, fromProviderError(err)
	}

	if err := s.donationRepo.MarkCreated(context.WithoutCancel(ctx), donation); err != nil {
		// the session exists provider-side, so the browser can still pay
		s.logger.Error("record created donation", "donation_id", donation.ID, "error", err)
	}

	s.logger.Info("donation intent created",
		"donation_id", donation.ID,
		"type", donation.Type,
		"amount_minor", donation.AmountMinor,
		"currency", donation.Currency,
		"payment_intent_id", donation.PaymentIntentID,
		"subscription_id", donation.SubscriptionID,
	)

	return responseFor(donation), nil
}

func (s *donationServiceImpl) createOneTime(ctx context.Context, req *DonationRequest, donation *model.Donation) error {
	session, err := s.provider.CreatePaymentIntent(ctx, &client.PaymentIntentParams{
		Amount:         req.Amount,
		Currency:       s.currency,
		Email:          req.Email,
		Metadata:       s.metadata(req, donation),
		IdempotencyKey: s.providerKey(req, donation, "payment_intent"),
	})
	if err != nil {
		return err
	}

	donation.PaymentIntentID = session.ID
	donation.ClientSecret = session.ClientSecret
	return nil
}

// createMonthly runs customer, price and subscription creation in order and
// stops at the first failure. Objects already created provider-side are left
// in place.
func (s *donationServiceImpl) createMonthly(ctx context.Context, req *DonationRequest, donation *model.Donation) error {
	metadata := s.metadata(req, donation)

	customerID, err := s.provider.CreateCustomer(ctx, &client.CustomerParams{
		Email:          req.Email,
		Name:           req.Name,
		Metadata:       metadata,
		IdempotencyKey: s.providerKey(req, donation, "customer"),
	})
	if err != nil {
		return err
	}
	donation.CustomerID = customerID

	priceID, quantity := s.monthlyPriceID, int64(1)
	if priceID != "" {
		quantity = req.Amount.Minor() / s.monthlyUnit.Minor()
	} else {
		priceID, err = s.provider.CreateMonthlyPrice(ctx, &client.PriceParams{
			Amount:         req.Amount,
			Currency:       s.currency,
			ProductName:    fmt.Sprintf("Monthly donation %s %s", req.Amount, strings.ToUpper(s.currency)),
			Metadata:       metadata,
			IdempotencyKey: s.providerKey(req, donation, "price"),
		})
		if err != nil {
			return err
		}
	}
	donation.PriceID = priceID

	sub, err := s.provider.CreateSubscription(ctx, &client.SubscriptionParams{
		CustomerID:     customerID,
		PriceID:        priceID,
		Quantity:       quantity,
		Metadata:       metadata,
		IdempotencyKey: s.providerKey(req, donation, "subscription"),
	})
	if err != nil {
		return err
	}

	donation.SubscriptionID = sub.ID
	donation.InvoiceID = sub.InvoiceID
	donation.ClientSecret = sub.ClientSecret
	return nil
}

// replay answers a repeated idempotency key from the stored donation. A
// pending reservation older than reservationTTL was abandoned (crash, or the
// final write failed); it is handed back to the caller to run again. The
// provider keys derive from the same idempotency key, so the provider returns
// the objects it created the first time.
func (s *donationServiceImpl) replay(ctx context.Context, key, fingerprint string) (*dto.CreateIntentResponse, *model.Donation, error) {
	inProgress := &Error{Kind: KindConflict, Message: "Request with this idempotency key is in progress."}

	existing, err := s.donationRepo.FindByIdempotencyKey(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		// released between our insert and this lookup
		return nil, nil, inProgress
	}
	if err != nil {
		s.logger.Error("find donation by idempotency key", "error", err)
		return nil, nil, internalError("Unable to prepare payment.", err)
	}

	if existing.Fingerprint != fingerprint {
		return nil, nil, &Error{Kind: KindConflict, Message: "Idempotency key was already used with different parameters."}
	}

	if existing.Status == model.DonationStatusPending {
		claimed, err := s.donationRepo.Reclaim(ctx, existing.ID, s.now().Add(-s.reservationTTL))
		if err != nil {
			s.logger.Error("reclaim donation reservation", "donation_id", existing.ID, "error", err)
			return nil, nil, internalError("Unable to prepare payment.", err)
		}
		if !claimed {
			return nil, nil, inProgress
		}
		s.logger.Warn("reclaimed stale donation reservation", "donation_id", existing.ID)
		return nil, existing, nil
	}
	if existing.ClientSecret == "" {
		return nil, nil, inProgress
	}

	s.logger.Info("donation intent replayed", "donation_id", existing.ID)
	return responseFor(existing), nil, nil
}

func (s *donationServiceImpl) GetPaymentStatus(ctx context.Context, paymentIntentID string) (*dto.PaymentStatusResponse, error) {
	pending := &dto.PaymentStatusResponse{Status: "pending"}
	if paymentIntentID == "" {
		return pending, nil
	}

	intent, err := s.provider.RetrievePaymentIntent(ctx, paymentIntentID)
	if err != nil {
		if errors.Is(err, client.ErrProviderInvalidRequest) {
			return nil, &Error{Kind: KindNotFound, Message: "Payment not found.", Err: err}
		}
		s.logger.Error("retrieve payment intent", "payment_intent_id", paymentIntentID, "error", err)
		return nil, fromProviderError(err)
	}

	if intent.Status != "succeeded" {
		return pending, nil
	}

	resp := &dto.PaymentStatusResponse{
		Status:   "succeeded",
		Currency: intent.Currency,
	}
	if received, err := money.FromMinor(intent.AmountReceived); err == nil {
		major := received.Major().InexactFloat64()
		resp.Amount = &major
	}

	return resp, nil
}

func (s *donationServiceImpl) metadata(req *DonationRequest, donation *model.Donation) map[string]string {
	m := map[string]string{
		"purpose":      s.purpose,
		"frequency":    string(req.Frequency),
		"amount":       req.Amount.String(),
		"amount_minor": strconv.FormatInt(req.Amount.Minor(), 10),
		"currency":     s.currency,
		"donation_id":  donation.ID,
	}
	if req.ImpactPath != "" {
		m["impact_path"] = req.ImpactPath
	}
	return m
}

// providerKey derives one provider idempotency key per create call so a
// retried request maps each step onto the object it created the first time.
func (s *donationServiceImpl) providerKey(req *DonationRequest, donation *model.Donation, step string) string {
	base := req.IdempotencyKey
	if base == "" {
		base = donation.ID
	}
	return base + ":" + step
}

func (s *donationServiceImpl) fingerprint(req *DonationRequest) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%s|%s|%s", req.Frequency, req.Amount.Minor(), s.currency, strings.ToLower(req.Email), req.ImpactPath)
	return hex.EncodeToString(h.Sum(nil))
}

func (s *donationServiceImpl) logProviderFailure(donation *model.Donation, err error) {
	attrs := []any{
		"donation_id", donation.ID,
		"type", donation.Type,
		"amount_minor", donation.AmountMinor,
		"customer_id", donation.CustomerID,
		"price_id", donation.PriceID,
		"error", err,
	}

	var pe *client.ProviderError
	if errors.As(err, &pe) {
		attrs = append(attrs,
			"provider_op", pe.Op,
			"provider_status", pe.StatusCode,
			"provider_code", pe.Code,
			"provider_request_id", pe.RequestID,
		)
	}

	if errors.Is(err, client.ErrProviderAuth) {
		s.logger.Error("payment provider rejected credentials, check STRIPE_SECRET_KEY", attrs...)
		return
	}
	s.logger.Error("create donation intent failed", attrs...)
}

// idempotencyNamespace scopes donation ids derived from client keys.
var idempotencyNamespace = uuid.MustParse("6f1c9a52-4d0e-4b7e-9c41-2f8d7d1b5a30")

// donationID is stable for a given idempotency key, so provider metadata
// (and therefore the forwarded provider idempotency keys) match on retry.
func donationID(idempotencyKey string) string {
	if idempotencyKey == "" {
		return uuid.NewString()
	}
	return uuid.NewSHA1(idempotencyNamespace, []byte(idempotencyKey)).String()
}

func donationType(f Frequency) model.DonationType {
	if f == FrequencyMonthly {
		return model.DonationTypeSubscription
	}
	return model.DonationTypeOneTime
}

func responseFor(d *model.Donation) *dto.CreateIntentResponse {
	return &dto.CreateIntentResponse{
		Type:            string(d.Type),
		ClientSecret:    d.ClientSecret,
		DonationID:      d.ID,
		PaymentIntentID: d.PaymentIntentID,
		SubscriptionID:  d.SubscriptionID,
		CustomerID:      d.CustomerID,
	}
}
