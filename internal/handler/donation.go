package handler

import (
	"net/http"
	"strings"

	"zentrust-donations/internal/config"
	"zentrust-donations/internal/dto"
	"zentrust-donations/internal/service"

	"github.com/labstack/echo/v4"
)

const idempotencyKeyHeader = "Idempotency-Key"

type DonationHandler struct {
	donationService service.DonationService
	validator       *service.Validator
	publishableKey  string
	donation        config.Donation
}

func NewDonationHandler(
	donationService service.DonationService,
	validator *service.Validator,
	cfg *config.Config,
) *DonationHandler {
	return &DonationHandler{
		donationService: donationService,
		validator:       validator,
		publishableKey:  cfg.Stripe.PublishableKey,
		donation:        cfg.Donation,
	}
}

// CreateIntent serves both create-intent routes.
func (h *DonationHandler) CreateIntent(c echo.Context) error {
	ctx := c.Request().Context()

	var body dto.CreateIntentRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body.")
	}
	if key := strings.TrimSpace(c.Request().Header.Get(idempotencyKeyHeader)); key != "" {
		body.IdempotencyKey = key
	}

	req, err := h.validator.Validate(&body)
	if err != nil {
		return err
	}

	result, err := h.donationService.CreateIntent(ctx, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

func (h *DonationHandler) PaymentStatus(c echo.Context) error {
	ctx := c.Request().Context()

	result, err := h.donationService.GetPaymentStatus(ctx, c.QueryParam("payment_intent"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// Config returns the public settings the donation form needs.
func (h *DonationHandler) Config(c echo.Context) error {
	return c.JSON(http.StatusOK, &dto.DonationConfigResponse{
		PublishableKey: h.publishableKey,
		Currency:       strings.ToLower(h.donation.Currency),
		MinAmount:      h.donation.MinAmount,
		MaxAmount:      h.donation.MaxAmount,
		Frequencies:    []string{string(service.FrequencyOnce), string(service.FrequencyMonthly)},
	})
}
