package handlers

import (
	"errors"
	"net/http"

	"github.com/zoranhorsy/reboul-checkout/internal/models"
	"github.com/zoranhorsy/reboul-checkout/internal/payments"
	"github.com/zoranhorsy/reboul-checkout/internal/services"

	"github.com/labstack/echo/v4"
)

type CheckoutHandler struct {
	checkoutService *services.CheckoutService
}

func NewCheckoutHandler(checkoutService *services.CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{checkoutService: checkoutService}
}

type createSessionRequest struct {
	Items          []models.LineItem `json:"items"`
	CartID         string            `json:"cart_id"`
	ShippingMethod string            `json:"shipping_method"`
	DiscountCode   string            `json:"discount_code"`
	ForceUserEmail string            `json:"force_user_email"`
}

type primarySession struct {
	ID          string       `json:"id"`
	URL         string       `json:"url"`
	Store       models.Store `json:"store"`
	OrderNumber string       `json:"order_number"`
}

// CreateMultiStoreSession partitions the cart by store and creates one
// checkout session per non-empty bucket.
func (h *CheckoutHandler) CreateMultiStoreSession(c echo.Context) error {
	ctx := c.Request().Context()

	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Items) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "items are required")
	}

	result, err := h.checkoutService.CreateSessions(ctx, services.CheckoutInput{
		Items:          req.Items,
		CartID:         req.CartID,
		ShippingMethod: req.ShippingMethod,
		DiscountCode:   req.DiscountCode,
		CustomerEmail:  req.ForceUserEmail,
	})
	if err != nil {
		if errors.Is(err, services.ErrNoValidItems) {
			return echo.NewHTTPError(http.StatusBadRequest, "no valid items in cart")
		}
		var provErr *payments.ProviderError
		if errors.As(err, &provErr) {
			status := provErr.HTTPStatus
			if provErr.CardError {
				status = http.StatusPaymentRequired
			}
			return c.JSON(status, map[string]interface{}{
				"error":   "failed to create checkout session",
				"details": provErr.Message,
				"code":    provErr.Code,
			})
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create checkout session")
	}

	primary := result.Primary()
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"success":       true,
		"session_count": len(result.Sessions),
		"primary_session": primarySession{
			ID:          primary.SessionID,
			URL:         primary.URL,
			Store:       primary.Store,
			OrderNumber: primary.OrderNumber,
		},
		"all_sessions":  result.Sessions,
		"order_numbers": result.OrderNumbers,
	})
}

// GetSession returns the provider state of a session plus the local order.
func (h *CheckoutHandler) GetSession(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}

	status, err := h.checkoutService.GetSessionStatus(ctx, sessionID)
	if err != nil {
		if errors.Is(err, services.ErrOrderNotFound) || errors.Is(err, payments.ErrSessionNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "session not found")
		}
		var provErr *payments.ProviderError
		if errors.As(err, &provErr) {
			return echo.NewHTTPError(provErr.HTTPStatus, provErr.Message)
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to fetch session")
	}

	return c.JSON(http.StatusOK, status)
}
