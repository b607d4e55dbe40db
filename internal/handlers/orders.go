package handlers

import (
	"errors"
	"net/http"

	"github.com/zoranhorsy/reboul-checkout/internal/services"

	"github.com/labstack/echo/v4"
)

type OrderHandler struct {
	notifications *services.NotificationService
}

func NewOrderHandler(notifications *services.NotificationService) *OrderHandler {
	return &OrderHandler{notifications: notifications}
}

type sendEmailRequest struct {
	OrderNumber string `json:"order_number"`
	Type        string `json:"type"`
}

func emailKindFromType(t string) (services.EmailKind, bool) {
	switch t {
	case "pending", "":
		return services.EmailOrderPending, true
	case "confirmed":
		return services.EmailOrderConfirmed, true
	case "cancelled":
		return services.EmailOrderCancelled, true
	}
	return "", false
}

// SendEmail delivers a lifecycle email for an order synchronously and
// returns the delivery receipt.
func (h *OrderHandler) SendEmail(c echo.Context) error {
	ctx := c.Request().Context()

	var req sendEmailRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.OrderNumber == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "order_number is required")
	}

	kind, ok := emailKindFromType(req.Type)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "type must be pending, confirmed or cancelled")
	}

	receipt, err := h.notifications.SendOrderEmail(ctx, req.OrderNumber, kind)
	if err != nil {
		if errors.Is(err, services.ErrOrderNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "order not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to send email")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":   true,
		"messageId": receipt.MessageID,
		"type":      req.Type,
		"recipient": receipt.Recipient,
	})
}
