package catalog

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-apotek/internal/common"
	"github.com/noah-isme/backend-apotek/internal/pricing"
)

// Handler exposes catalog endpoints.
type Handler struct {
	service *Service
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service}
}

// MedicineView is the response shape for a medicine.
type MedicineView struct {
	ID                string      `json:"id"`
	Name              string      `json:"name"`
	UnitSalesPrice    string      `json:"unitSalesPrice"`
	UnitPurchasePrice string      `json:"unitPurchasePrice"`
	PackSalesPrice    string      `json:"packSalesPrice"`
	PackSize          int         `json:"packSize"`
	StockQty          int         `json:"stockQty"`
	Status            StockStatus `json:"status"`
}

func (h *Handler) view(m Medicine) MedicineView {
	return MedicineView{
		ID:                m.ID,
		Name:              m.Name,
		UnitSalesPrice:    pricing.Format(m.UnitSalesPrice),
		UnitPurchasePrice: pricing.Format(m.UnitPurchasePrice),
		PackSalesPrice:    pricing.Format(m.PackSalesPrice()),
		PackSize:          m.PackSize,
		StockQty:          m.StockQty,
		Status:            m.StockStatus(h.service.LowStockThreshold()),
	}
}

func (h *Handler) views(ms []Medicine) []MedicineView {
	out := make([]MedicineView, 0, len(ms))
	for _, m := range ms {
		out = append(out, h.view(m))
	}
	return out
}

// List handles GET /api/v1/medicines.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	items, err := h.service.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(len(items)))
	common.JSON(w, http.StatusOK, map[string]any{"data": h.views(items)})
}

// LowStock handles GET /api/v1/medicines/low-stock.
func (h *Handler) LowStock(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	items, err := h.service.LowStock(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":      h.views(items),
		"threshold": h.service.LowStockThreshold(),
	})
}

// Get handles GET /api/v1/medicines/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	m, err := h.service.Lookup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": h.view(m)})
}

type incrementRequest struct {
	Packs int `json:"packs" validate:"required,min=1"`
}

// Increment handles PATCH /api/v1/medicines/{id}/increment.
func (h *Handler) Increment(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	var req incrementRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	res, err := h.service.Restock(r.Context(), chi.URLParam(r, "id"), req.Packs)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"medicine":      h.view(res.Medicine),
			"previousStock": res.PreviousStock,
			"unitsAdded":    res.UnitsAdded,
		},
	})
}

type createRequest struct {
	ID                string           `json:"id" validate:"omitempty,max=64"`
	Name              string           `json:"name" validate:"required,max=200"`
	UnitSalesPrice    *decimal.Decimal `json:"unitSalesPrice" validate:"required"`
	UnitPurchasePrice *decimal.Decimal `json:"unitPurchasePrice" validate:"required"`
	PackSize          *int             `json:"packSize" validate:"required,min=1"`
	StockQty          *int             `json:"stockQty" validate:"required,min=0"`
}

// Create handles POST /api/v1/medicines.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	var req createRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	m, err := h.service.Create(r.Context(), Medicine{
		ID:                req.ID,
		Name:              req.Name,
		UnitSalesPrice:    *req.UnitSalesPrice,
		UnitPurchasePrice: *req.UnitPurchasePrice,
		PackSize:          *req.PackSize,
		StockQty:          *req.StockQty,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": h.view(m)})
}

type updateRequest struct {
	Name              *string          `json:"name" validate:"omitempty,min=1,max=200"`
	UnitSalesPrice    *decimal.Decimal `json:"unitSalesPrice"`
	UnitPurchasePrice *decimal.Decimal `json:"unitPurchasePrice"`
	PackSize          *int             `json:"packSize" validate:"omitempty,min=1"`
	StockQty          *int             `json:"stockQty" validate:"omitempty,min=0"`
}

// Update handles PATCH /api/v1/medicines/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	var req updateRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	m, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), MedicinePatch{
		Name:              req.Name,
		UnitSalesPrice:    req.UnitSalesPrice,
		UnitPurchasePrice: req.UnitPurchasePrice,
		PackSize:          req.PackSize,
		StockQty:          req.StockQty,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": h.view(m)})
}

// Delete handles DELETE /api/v1/medicines/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if common.WriteKnownError(w, err) {
		return
	}
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, ErrDuplicate):
		common.JSONError(w, http.StatusConflict, "DUPLICATE", err.Error(), nil)
	case errors.Is(err, ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}
