package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/zoranhorsy/reboul-checkout/internal/models"
	"github.com/zoranhorsy/reboul-checkout/internal/services"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newStockHandler(t *testing.T) *StockHandler {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Product{}, &models.StockReservation{}))

	require.NoError(t, db.Create(&models.Product{
		ID:        1,
		Name:      "Tee",
		Price:     49.99,
		StoreType: models.StoreAdult,
		Variants:  []models.Variant{{Size: "M", Color: "Blanc", Stock: 5}},
	}).Error)

	return NewStockHandler(services.NewStockService(db, 24*time.Hour))
}

func doJSON(t *testing.T, handler echo.HandlerFunc, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := handler(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func TestReserveHandler(t *testing.T) {
	h := newStockHandler(t)

	rec := doJSON(t, h.Reserve, http.MethodPost, "/api/stock/reserve",
		`{"order_id":"ADT-1","items":[{"product_id":1,"variant_info":{"size":"M","color":"Blanc"},"quantity":2}]}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"success":true`)
	assert.Contains(t, body, `"1-M-Blanc"`)
	assert.Contains(t, body, `"expires_at"`)
	assert.Contains(t, body, `"succeeded":1`)
}

func TestReserveHandlerValidation(t *testing.T) {
	h := newStockHandler(t)

	rec := doJSON(t, h.Reserve, http.MethodPost, "/api/stock/reserve", `{"items":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h.Reserve, http.MethodPost, "/api/stock/reserve", `{"order_id":"ADT-1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReserveHandlerAllItemsFail(t *testing.T) {
	h := newStockHandler(t)

	rec := doJSON(t, h.Reserve, http.MethodPost, "/api/stock/reserve",
		`{"order_id":"ADT-1","items":[{"product_id":1,"variant_info":{"size":"M","color":"Blanc"},"quantity":99}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReserveHandlerCustomDuration(t *testing.T) {
	h := newStockHandler(t)

	rec := doJSON(t, h.Reserve, http.MethodPost, "/api/stock/reserve",
		`{"order_id":"ADT-1","reservation_duration_hours":2,"items":[{"product_id":1,"variant_info":{"size":"M","color":"Blanc"},"quantity":1}]}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		ExpiresAt time.Time `json:"expires_at"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.WithinDuration(t, time.Now().Add(2*time.Hour), resp.ExpiresAt, time.Minute)
}

func TestReleaseHandler(t *testing.T) {
	h := newStockHandler(t)

	doJSON(t, h.Reserve, http.MethodPost, "/api/stock/reserve",
		`{"order_id":"ADT-1","items":[{"product_id":1,"variant_info":{"size":"M","color":"Blanc"},"quantity":2}]}`)

	rec := doJSON(t, h.Release, http.MethodDelete, "/api/stock/reserve?order_id=ADT-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"released_reservations":1`)

	rec = doJSON(t, h.Release, http.MethodDelete, "/api/stock/reserve?order_id=ADT-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"released_reservations":0`)
}

func TestReleaseHandlerRequiresOrderID(t *testing.T) {
	h := newStockHandler(t)

	rec := doJSON(t, h.Release, http.MethodDelete, "/api/stock/reserve", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCommitHandler(t *testing.T) {
	h := newStockHandler(t)

	rec := doJSON(t, h.Commit, http.MethodPost, "/api/stock/commit",
		`{"order_id":"ADT-1","items":[{"product_id":1,"variant_info":{"size":"M","color":"Blanc"},"quantity":2}]}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"success":true`)
	assert.Contains(t, body, `"new_stock":3`)
	assert.Contains(t, body, `"succeeded":1`)
}

func TestCommitHandlerNothingUpdated(t *testing.T) {
	h := newStockHandler(t)

	rec := doJSON(t, h.Commit, http.MethodPost, "/api/stock/commit",
		`{"order_id":"ADT-1","items":[{"product_id":1,"variant_info":{"size":"M","color":"Blanc"},"quantity":99}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
