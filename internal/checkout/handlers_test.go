package checkout_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-apotek/internal/checkout"
	"github.com/noah-isme/backend-apotek/internal/common"
)

func authed(r *http.Request, session string) *http.Request {
	ctx := common.WithUserID(r.Context(), "cashier-1")
	ctx = common.WithSessionID(ctx, session)
	return r.WithContext(ctx)
}

func TestHandlerFinalize(t *testing.T) {
	f := newFixture(t)
	_, err := f.cart.AddItem(context.Background(), "s1", "paracetamol", 5, decimal.Zero)
	require.NoError(t, err)
	h := &checkout.Handler{Svc: f.svc}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoice/finalize", strings.NewReader(`{"cashPaid":"40","discountPercent":10}`))
	h.Finalize(rr, authed(req, "s1"))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Contains(t, rr.Body.String(), `"INSUFFICIENT_PAYMENT"`)
	require.Contains(t, rr.Body.String(), `"netTotal":"45.00"`)

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/invoice/finalize", strings.NewReader(`{"cashPaid":50,"discountPercent":10,"customer":"Budi"}`))
	h.Finalize(rr, authed(req, "s1"))
	require.Equal(t, http.StatusCreated, rr.Code)
	body := rr.Body.String()
	require.Contains(t, body, `"code":"INV-000001"`)
	require.Contains(t, body, `"changeDue":"5.00"`)
	require.Contains(t, body, `"cashierId":"cashier-1"`)
	require.Contains(t, body, `"unusualDiscount":false`)

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/invoice/finalize", strings.NewReader(`{"cashPaid":50}`))
	h.Finalize(rr, authed(req, "s1"))
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Contains(t, rr.Body.String(), `"NO_ACTIVE_DRAFT"`)
}

func TestHandlerFinalizeValidation(t *testing.T) {
	f := newFixture(t)
	h := &checkout.Handler{Svc: f.svc}

	rr := httptest.NewRecorder()
	h.Finalize(rr, authed(httptest.NewRequest(http.MethodPost, "/api/v1/invoice/finalize", strings.NewReader(`{}`)), "s1"))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Contains(t, rr.Body.String(), `"VALIDATION_ERROR"`)

	rr = httptest.NewRecorder()
	h.Finalize(rr, authed(httptest.NewRequest(http.MethodPost, "/api/v1/invoice/finalize", strings.NewReader(`{"cashPaid":1,"tip":2}`)), "s1"))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	h.Finalize(rr, httptest.NewRequest(http.MethodPost, "/api/v1/invoice/finalize", strings.NewReader(`{"cashPaid":1}`)))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestHandlerFinalizeInsufficientStock(t *testing.T) {
	f := newFixture(t)
	_, err := f.cart.AddItem(context.Background(), "s1", "ibuprofen", 21, decimal.Zero)
	require.NoError(t, err)
	h := &checkout.Handler{Svc: f.svc}

	rr := httptest.NewRecorder()
	h.Finalize(rr, authed(httptest.NewRequest(http.MethodPost, "/api/v1/invoice/finalize", strings.NewReader(`{"cashPaid":500}`)), "s1"))
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Contains(t, rr.Body.String(), `"INSUFFICIENT_STOCK"`)
	require.Contains(t, rr.Body.String(), `"available":20`)
}

func TestHandlerPreview(t *testing.T) {
	f := newFixture(t)
	_, err := f.cart.AddItem(context.Background(), "s1", "paracetamol", 5, decimal.Zero)
	require.NoError(t, err)
	h := &checkout.Handler{Svc: f.svc}

	rr := httptest.NewRecorder()
	h.Preview(rr, authed(httptest.NewRequest(http.MethodGet, "/api/v1/invoice/preview?discount=10", nil), "s1"))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"netTotal":"45.00"`)
	require.NotContains(t, rr.Body.String(), "unusualDiscount")

	rr = httptest.NewRecorder()
	h.Preview(rr, authed(httptest.NewRequest(http.MethodGet, "/api/v1/invoice/preview?discount=150", nil), "s1"))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"unusualDiscount":true`)

	rr = httptest.NewRecorder()
	h.Preview(rr, authed(httptest.NewRequest(http.MethodGet, "/api/v1/invoice/preview?discount=-1", nil), "s1"))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Contains(t, rr.Body.String(), `"INVALID_DISCOUNT"`)

	rr = httptest.NewRecorder()
	h.Preview(rr, authed(httptest.NewRequest(http.MethodGet, "/api/v1/invoice/preview?discount=ten", nil), "s1"))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
