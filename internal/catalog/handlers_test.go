package catalog_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-apotek/internal/catalog"
)

func newHandler(t *testing.T, seed ...catalog.Medicine) *catalog.Handler {
	t.Helper()
	svc, err := catalog.NewService(catalog.ServiceConfig{Store: catalog.NewMemoryStore(seed...)})
	require.NoError(t, err)
	return catalog.NewHandler(catalog.HandlerConfig{Service: svc})
}

func withID(r *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestHandlerGetAndList(t *testing.T) {
	h := newHandler(t, paracetamol(5), amoxicillin(0))

	rr := httptest.NewRecorder()
	h.Get(rr, withID(httptest.NewRequest(http.MethodGet, "/api/v1/medicines/paracetamol", nil), "paracetamol"))
	require.Equal(t, http.StatusOK, rr.Code)
	var one struct {
		Data catalog.MedicineView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &one))
	require.Equal(t, "10.00", one.Data.UnitSalesPrice)
	require.Equal(t, "100.00", one.Data.PackSalesPrice)
	require.Equal(t, catalog.StatusLowStock, one.Data.Status)

	rr = httptest.NewRecorder()
	h.List(rr, httptest.NewRequest(http.MethodGet, "/api/v1/medicines?q=amox", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "1", rr.Header().Get("X-Total-Count"))
	require.Contains(t, rr.Body.String(), `"out_of_stock"`)
}

func TestHandlerGetUnknownIs404(t *testing.T) {
	h := newHandler(t)
	rr := httptest.NewRecorder()
	h.Get(rr, withID(httptest.NewRequest(http.MethodGet, "/api/v1/medicines/ghost", nil), "ghost"))
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Contains(t, rr.Body.String(), `"NOT_FOUND"`)
}

func TestHandlerIncrement(t *testing.T) {
	h := newHandler(t, paracetamol(5))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/medicines/paracetamol/increment", strings.NewReader(`{"packs":2}`))
	h.Increment(rr, withID(req, "paracetamol"))
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Data struct {
			PreviousStock int                  `json:"previousStock"`
			UnitsAdded    int                  `json:"unitsAdded"`
			Medicine      catalog.MedicineView `json:"medicine"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, 5, body.Data.PreviousStock)
	require.Equal(t, 20, body.Data.UnitsAdded)
	require.Equal(t, 25, body.Data.Medicine.StockQty)

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPatch, "/api/v1/medicines/paracetamol/increment", strings.NewReader(`{"packs":0}`))
	h.Increment(rr, withID(req, "paracetamol"))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Contains(t, rr.Body.String(), `"packs"`)
}

func TestHandlerCreate(t *testing.T) {
	h := newHandler(t, paracetamol(5))

	rr := httptest.NewRecorder()
	body := `{"id":"cetirizine","name":"Cetirizine 10mg","unitSalesPrice":"4.25","unitPurchasePrice":"3.00","packSize":10,"stockQty":0}`
	h.Create(rr, httptest.NewRequest(http.MethodPost, "/api/v1/medicines", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rr.Code)
	var out struct {
		Data catalog.MedicineView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Equal(t, "cetirizine", out.Data.ID)
	require.Equal(t, "42.50", out.Data.PackSalesPrice)
	require.Equal(t, catalog.StatusOutOfStock, out.Data.Status)

	rr = httptest.NewRecorder()
	h.Create(rr, httptest.NewRequest(http.MethodPost, "/api/v1/medicines", strings.NewReader(body)))
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Contains(t, rr.Body.String(), `"DUPLICATE"`)

	rr = httptest.NewRecorder()
	h.Create(rr, httptest.NewRequest(http.MethodPost, "/api/v1/medicines", strings.NewReader(`{"name":"No price","packSize":1,"stockQty":1}`)))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Contains(t, rr.Body.String(), `"unitSalesPrice"`)
}

func TestHandlerUpdate(t *testing.T) {
	h := newHandler(t, paracetamol(5))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/medicines/paracetamol", strings.NewReader(`{"unitSalesPrice":"11.50"}`))
	h.Update(rr, withID(req, "paracetamol"))
	require.Equal(t, http.StatusOK, rr.Code)
	var out struct {
		Data catalog.MedicineView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Equal(t, "11.50", out.Data.UnitSalesPrice)
	require.Equal(t, "Paracetamol 500mg", out.Data.Name)
	require.Equal(t, 5, out.Data.StockQty)

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPatch, "/api/v1/medicines/paracetamol", strings.NewReader(`{"unitSalesPrice":"-1"}`))
	h.Update(rr, withID(req, "paracetamol"))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPatch, "/api/v1/medicines/ghost", strings.NewReader(`{"stockQty":3}`))
	h.Update(rr, withID(req, "ghost"))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandlerDelete(t *testing.T) {
	h := newHandler(t, paracetamol(5))

	rr := httptest.NewRecorder()
	h.Delete(rr, withID(httptest.NewRequest(http.MethodDelete, "/api/v1/medicines/paracetamol", nil), "paracetamol"))
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = httptest.NewRecorder()
	h.Get(rr, withID(httptest.NewRequest(http.MethodGet, "/api/v1/medicines/paracetamol", nil), "paracetamol"))
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	h.Delete(rr, withID(httptest.NewRequest(http.MethodDelete, "/api/v1/medicines/paracetamol", nil), "paracetamol"))
	require.Equal(t, http.StatusNotFound, rr.Code)
}
