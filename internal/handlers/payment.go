package handlers

import (
	"errors"
	"net/http"

	"github.com/zoranhorsy/reboul-checkout/internal/payments"
	"github.com/zoranhorsy/reboul-checkout/internal/services"

	"github.com/labstack/echo/v4"
)

type PaymentHandler struct {
	settlementService *services.SettlementService
}

func NewPaymentHandler(settlementService *services.SettlementService) *PaymentHandler {
	return &PaymentHandler{settlementService: settlementService}
}

type captureRequest struct {
	PaymentIntentID string `json:"payment_intent_id"`
	AmountToCapture int64  `json:"amount_to_capture"`
}

// Capture captures a manually-held payment and settles store transfers. A
// settlement failure after a successful capture still returns 200: the money
// moved, and transfer_error tells support what to finish by hand.
func (h *PaymentHandler) Capture(c echo.Context) error {
	ctx := c.Request().Context()

	var req captureRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.PaymentIntentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "payment_intent_id is required")
	}

	result, err := h.settlementService.Capture(ctx, req.PaymentIntentID, req.AmountToCapture)
	if err != nil {
		if errors.Is(err, payments.ErrNotCapturable) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		var provErr *payments.ProviderError
		if errors.As(err, &provErr) {
			if provErr.CardError {
				return echo.NewHTTPError(http.StatusPaymentRequired, provErr.Message)
			}
			return echo.NewHTTPError(provErr.HTTPStatus, provErr.Message)
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to capture payment")
	}

	transferStatus := "none"
	switch {
	case result.TransferError != "":
		transferStatus = "failed"
	case result.Transfer != nil && result.Transfer.Needed:
		transferStatus = "completed"
	case result.Transfer != nil:
		transferStatus = "skipped"
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":         true,
		"payment_intent":  result.PaymentIntent,
		"amount_captured": result.PaymentIntent.AmountReceived,
		"transfer":        result.Transfer,
		"transfer_status": transferStatus,
		"transfer_error":  result.TransferError,
	})
}

type transferRequest struct {
	PaymentIntentID string `json:"payment_intent_id"`
	AmountCents     int64  `json:"amount_cents"`
}

// Transfer re-runs settlement for an already-captured payment intent. Used
// when the transfer leg failed during capture.
func (h *PaymentHandler) Transfer(c echo.Context) error {
	ctx := c.Request().Context()

	var req transferRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.PaymentIntentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "payment_intent_id is required")
	}

	outcome, err := h.settlementService.HandleStoreTransfers(ctx, req.PaymentIntentID, req.AmountCents)
	if err != nil {
		switch {
		case errors.Is(err, payments.ErrSessionNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "no session for payment intent")
		case errors.Is(err, payments.ErrMalformedMetadata),
			errors.Is(err, services.ErrUnattributableTransfer),
			errors.Is(err, services.ErrInvalidTransferAmount):
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		}
		var provErr *payments.ProviderError
		if errors.As(err, &provErr) {
			return echo.NewHTTPError(provErr.HTTPStatus, provErr.Message)
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to settle transfer")
	}

	return c.JSON(http.StatusOK, outcome)
}
