package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/zoranhorsy/reboul-checkout/internal/services"

	"github.com/labstack/echo/v4"
)

type StockHandler struct {
	stockService *services.StockService
}

func NewStockHandler(stockService *services.StockService) *StockHandler {
	return &StockHandler{stockService: stockService}
}

type variantInfo struct {
	Size  string `json:"size"`
	Color string `json:"color"`
}

type stockItemRequest struct {
	ProductID   uint        `json:"product_id"`
	VariantInfo variantInfo `json:"variant_info"`
	Quantity    int         `json:"quantity"`
}

type reserveRequest struct {
	Items            []stockItemRequest `json:"items"`
	OrderID          string             `json:"order_id"`
	ReservationHours int                `json:"reservation_duration_hours"`
}

type batchSummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

func toServiceItems(items []stockItemRequest) []services.StockItemInput {
	out := make([]services.StockItemInput, 0, len(items))
	for _, it := range items {
		out = append(out, services.StockItemInput{
			ProductID: it.ProductID,
			Size:      it.VariantInfo.Size,
			Color:     it.VariantInfo.Color,
			Quantity:  it.Quantity,
		})
	}
	return out
}

func splitResults(items []services.ItemResult) (succeeded, failed []services.ItemResult) {
	for _, it := range items {
		if it.Success {
			succeeded = append(succeeded, it)
		} else {
			failed = append(failed, it)
		}
	}
	return succeeded, failed
}

// Reserve places timed holds on the requested variants. Individual items can
// fail while the batch succeeds; the whole batch is rejected only when no
// item could be reserved.
func (h *StockHandler) Reserve(c echo.Context) error {
	ctx := c.Request().Context()

	var req reserveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.OrderID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "order_id is required")
	}
	if len(req.Items) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "items are required")
	}

	ttl := time.Duration(req.ReservationHours) * time.Hour
	result, err := h.stockService.Reserve(ctx, req.OrderID, toServiceItems(req.Items), ttl)
	if err != nil {
		if errors.Is(err, services.ErrNoReservations) {
			return echo.NewHTTPError(http.StatusBadRequest, "no items could be reserved")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to reserve stock")
	}

	reserved, failed := splitResults(result.Items)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":      true,
		"reservations": reserved,
		"errors":       failed,
		"expires_at":   result.ExpiresAt,
		"summary": batchSummary{
			Total:     len(result.Items),
			Succeeded: len(reserved),
			Failed:    len(failed),
		},
	})
}

// Release frees an order's active reservations. Idempotent.
func (h *StockHandler) Release(c echo.Context) error {
	ctx := c.Request().Context()

	orderID := c.QueryParam("order_id")
	if orderID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "order_id is required")
	}

	released, err := h.stockService.Release(ctx, orderID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to release reservations")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":               true,
		"released_reservations": len(released),
		"reservations":          released,
	})
}

type commitRequest struct {
	Items   []stockItemRequest `json:"items"`
	OrderID string             `json:"order_id"`
}

// Commit decrements on-hand stock after a confirmed payment.
func (h *StockHandler) Commit(c echo.Context) error {
	ctx := c.Request().Context()

	var req commitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Items) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "items are required")
	}

	results, err := h.stockService.Commit(ctx, req.OrderID, toServiceItems(req.Items))
	if err != nil {
		if errors.Is(err, services.ErrNoStockUpdates) {
			return echo.NewHTTPError(http.StatusBadRequest, "no stock could be updated")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to update stock")
	}

	updated, failed := splitResults(results)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":       true,
		"updated_items": updated,
		"errors":        failed,
		"summary": batchSummary{
			Total:     len(results),
			Succeeded: len(updated),
			Failed:    len(failed),
		},
	})
}
