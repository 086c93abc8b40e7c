package handler

import (
	"io"
	"net/http"

	"zentrust-donations/internal/dto"
	"zentrust-donations/internal/service"

	"github.com/labstack/echo/v4"
)

const stripeSignatureHeader = "Stripe-Signature"

type WebhookHandler struct {
	webhookService service.WebhookService
}

func NewWebhookHandler(webhookService service.WebhookService) *WebhookHandler {
	return &WebhookHandler{
		webhookService: webhookService,
	}
}

// StripeWebhook must see the body exactly as sent; the signature covers the
// raw bytes.
func (h *WebhookHandler) StripeWebhook(c echo.Context) error {
	ctx := c.Request().Context()

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Unable to read request body.")
	}

	err = h.webhookService.HandleWebhook(ctx, body, c.Request().Header.Get(stripeSignatureHeader))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, &dto.WebhookAck{Received: true})
}
