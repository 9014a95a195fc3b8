package invoice_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-apotek/internal/invoice"
)

func seededHandler(t *testing.T, n int) *invoice.Handler {
	t.Helper()
	repo := invoice.NewMemoryRepository()
	for i := 0; i < n; i++ {
		num, err := repo.NextNumber(context.Background())
		require.NoError(t, err)
		require.NoError(t, repo.Save(context.Background(), sample(t, num, "60")))
	}
	return &invoice.Handler{Repo: repo, Receipt: invoice.ReceiptOptions{Org: invoice.Organization{Title: "Apotek Sehat"}}}
}

func withNumber(r *http.Request, number string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("number", number)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestHandlerListPaginates(t *testing.T) {
	h := seededHandler(t, 5)
	rr := httptest.NewRecorder()
	h.List(rr, httptest.NewRequest(http.MethodGet, "/api/v1/invoices?page=2&limit=2", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "5", rr.Header().Get("X-Total-Count"))

	var body struct {
		Data       []invoice.View `json:"data"`
		Pagination struct {
			Page       int `json:"page"`
			PerPage    int `json:"per_page"`
			TotalItems int `json:"total_items"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	require.Equal(t, "INV-000003", body.Data[0].Code)
	require.Equal(t, "49.50", body.Data[0].NetTotal)
	require.Equal(t, 5, body.Pagination.TotalItems)
	require.Equal(t, 2, body.Pagination.Page)
}

func TestHandlerSummary(t *testing.T) {
	h := seededHandler(t, 2)
	rr := httptest.NewRecorder()
	h.Summary(rr, httptest.NewRequest(http.MethodGet, "/api/v1/invoices/summary", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"data":{"count":2,"completed":2,"revenue":"99.00"}}`, rr.Body.String())
}

func TestHandlerGetAndErrors(t *testing.T) {
	h := seededHandler(t, 1)

	rr := httptest.NewRecorder()
	h.Get(rr, withNumber(httptest.NewRequest(http.MethodGet, "/api/v1/invoices/INV-000001", nil), "INV-000001"))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"code":"INV-000001"`)

	rr = httptest.NewRecorder()
	h.Get(rr, withNumber(httptest.NewRequest(http.MethodGet, "/api/v1/invoices/9", nil), "9"))
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	h.Get(rr, withNumber(httptest.NewRequest(http.MethodGet, "/api/v1/invoices/nope", nil), "nope"))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerExport(t *testing.T) {
	h := seededHandler(t, 1)
	rr := httptest.NewRecorder()
	h.Export(rr, withNumber(httptest.NewRequest(http.MethodGet, "/api/v1/invoices/1/export", nil), "1"))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
	require.Contains(t, rr.Header().Get("Content-Disposition"), "INV-000001.csv")
	require.Contains(t, rr.Body.String(), "Apotek Sehat\n")
	require.Contains(t, rr.Body.String(), "Net Total,49.50\n")
}
