package cart

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-apotek/internal/catalog"
	"github.com/noah-isme/backend-apotek/internal/common"
	"github.com/noah-isme/backend-apotek/internal/pricing"
)

// Handler wires draft operations to HTTP. The session comes from the auth context.
type Handler struct {
	Svc *Service
}

// DraftView is the response shape of a draft with its undiscounted pricing summary.
type DraftView struct {
	ID        string       `json:"id,omitempty"`
	SessionID string       `json:"sessionId"`
	Items     []ItemView   `json:"items"`
	Pricing   pricing.View `json:"pricing"`
	CreatedAt *time.Time   `json:"createdAt,omitempty"`
	UpdatedAt *time.Time   `json:"updatedAt,omitempty"`
}

// ItemView is the response shape of a line item.
type ItemView struct {
	MedicineID      string `json:"medicineId"`
	Name            string `json:"name"`
	UnitSalesPrice  string `json:"unitSalesPrice"`
	Qty             int    `json:"qty"`
	DiscountPercent string `json:"discountPercent"`
}

// NewDraftView renders d. An empty draft renders with no id and zero totals.
func NewDraftView(sessionID string, d Draft) (DraftView, error) {
	breakdown, err := pricing.Compute(d.PricingLines(), decimal.Zero)
	if err != nil {
		return DraftView{}, err
	}
	v := DraftView{
		SessionID: sessionID,
		Items:     make([]ItemView, 0, len(d.Items)),
		Pricing:   breakdown.View(),
	}
	for _, it := range d.Items {
		v.Items = append(v.Items, ItemView{
			MedicineID:      it.MedicineID,
			Name:            it.Name,
			UnitSalesPrice:  pricing.Format(it.UnitSalesPrice),
			Qty:             it.Qty,
			DiscountPercent: it.DiscountPercent.String(),
		})
	}
	if !d.IsEmpty() {
		v.ID = d.ID
		created, updated := d.CreatedAt, d.UpdatedAt
		v.CreatedAt, v.UpdatedAt = &created, &updated
	}
	return v, nil
}

// Current handles GET /api/v1/invoice/current.
func (h *Handler) Current(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	d, _, err := h.Svc.Get(r.Context(), session)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respond(w, http.StatusOK, session, d)
}

// Discard handles DELETE /api/v1/invoice/current.
func (h *Handler) Discard(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := h.Svc.Discard(r.Context(), session); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addItemRequest struct {
	MedicineID      string           `json:"medicineId" validate:"required"`
	Qty             *decimal.Decimal `json:"qty"`
	DiscountPercent *decimal.Decimal `json:"discountPercent"`
}

// AddItem handles POST /api/v1/invoice/items.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req addItemRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Qty == nil {
		h.writeError(w, ErrInvalidQuantity)
		return
	}
	qty, err := ParseQuantity(*req.Qty)
	if err != nil {
		h.writeError(w, err)
		return
	}
	discount := decimal.Zero
	if req.DiscountPercent != nil {
		discount = *req.DiscountPercent
	}
	d, err := h.Svc.AddItem(r.Context(), session, req.MedicineID, qty, discount)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respond(w, http.StatusOK, session, d)
}

type updateItemRequest struct {
	Qty *decimal.Decimal `json:"qty"`
}

// UpdateItem handles PATCH /api/v1/invoice/items/{medicineId}.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req updateItemRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Qty == nil {
		h.writeError(w, ErrInvalidQuantity)
		return
	}
	qty, err := ParseQuantity(*req.Qty)
	if err != nil {
		h.writeError(w, err)
		return
	}
	d, err := h.Svc.UpdateItem(r.Context(), session, chi.URLParam(r, "medicineId"), qty)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respond(w, http.StatusOK, session, d)
}

// RemoveItem handles DELETE /api/v1/invoice/items/{medicineId}.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	d, err := h.Svc.RemoveItem(r.Context(), session, chi.URLParam(r, "medicineId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respond(w, http.StatusOK, session, d)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return "", false
	}
	session, ok := common.SessionID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "operator session required", nil)
		return "", false
	}
	return session, true
}

func (h *Handler) respond(w http.ResponseWriter, status int, session string, d Draft) {
	view, err := NewDraftView(session, d)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, status, map[string]any{"data": view})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if common.WriteKnownError(w, err) {
		return
	}
	switch {
	case errors.Is(err, ErrInvalidQuantity):
		common.JSONError(w, http.StatusUnprocessableEntity, "INVALID_QUANTITY", err.Error(), nil)
	case errors.Is(err, ErrInvalidDiscount):
		common.JSONError(w, http.StatusUnprocessableEntity, "INVALID_DISCOUNT", err.Error(), nil)
	case errors.Is(err, catalog.ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, ErrLineNotFound):
		common.JSONError(w, http.StatusNotFound, "LINE_NOT_FOUND", err.Error(), nil)
	case errors.Is(err, ErrOutOfStock):
		common.JSONError(w, http.StatusConflict, "OUT_OF_STOCK", err.Error(), nil)
	case errors.Is(err, ErrNoSession):
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}
