package handlers

import (
	"io"
	"net/http"

	"github.com/zoranhorsy/reboul-checkout/internal/logging"
	"github.com/zoranhorsy/reboul-checkout/internal/payments"
	"github.com/zoranhorsy/reboul-checkout/internal/services"

	"github.com/labstack/echo/v4"
)

// maxWebhookBody caps the raw payload read from the provider.
const maxWebhookBody = 1 << 16

type WebhookHandler struct {
	provider       payments.Provider
	webhookService *services.WebhookService
}

func NewWebhookHandler(provider payments.Provider, webhookService *services.WebhookService) *WebhookHandler {
	return &WebhookHandler{
		provider:       provider,
		webhookService: webhookService,
	}
}

// Receive verifies the provider signature and applies the event. The
// provider retries on non-2xx, so processing failures after verification
// return 500 to request redelivery while duplicates return 200.
func (h *WebhookHandler) Receive(c echo.Context) error {
	ctx := c.Request().Context()

	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read payload")
	}

	signature := c.Request().Header.Get("Stripe-Signature")
	event, err := h.provider.VerifyWebhook(payload, signature)
	if err != nil {
		logging.Warn(ctx).Err(err).Msg("webhook signature rejected")
		return echo.NewHTTPError(http.StatusBadRequest, "invalid signature")
	}

	processed, err := h.webhookService.ProcessEvent(ctx, event)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to process event")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"received":  true,
		"processed": processed,
	})
}
