package checkout

import (
	"errors"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-apotek/internal/cart"
	"github.com/noah-isme/backend-apotek/internal/catalog"
	"github.com/noah-isme/backend-apotek/internal/common"
	"github.com/noah-isme/backend-apotek/internal/invoice"
	"github.com/noah-isme/backend-apotek/internal/pricing"
)

// Handler exposes preview and finalize for the authenticated session.
type Handler struct {
	Svc *Service
}

type finalizeRequest struct {
	CashPaid        *decimal.Decimal `json:"cashPaid"`
	DiscountPercent *decimal.Decimal `json:"discountPercent"`
	Customer        string           `json:"customer" validate:"max=120"`
}

// Finalize handles POST /api/v1/invoice/finalize.
func (h *Handler) Finalize(w http.ResponseWriter, r *http.Request) {
	session, cashier, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req finalizeRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.CashPaid == nil {
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "cashPaid is required",
			map[string]any{"fields": map[string]string{"cashPaid": "required"}})
		return
	}
	discount := decimal.Zero
	if req.DiscountPercent != nil {
		discount = *req.DiscountPercent
	}
	inv, err := h.Svc.Finalize(r.Context(), FinalizeInput{
		SessionID:       session,
		CashierID:       cashier,
		CustomerName:    req.Customer,
		CashPaid:        *req.CashPaid,
		DiscountPercent: discount,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{
		"data": map[string]any{
			"invoice":         invoice.NewView(inv),
			"unusualDiscount": inv.DiscountPercent.GreaterThan(decimal.NewFromInt(100)),
		},
	})
}

// Preview handles GET /api/v1/invoice/preview?discount=.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	session, _, ok := h.identity(w, r)
	if !ok {
		return
	}
	discount := decimal.Zero
	if raw := strings.TrimSpace(r.URL.Query().Get("discount")); raw != "" {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "discount must be a number", nil)
			return
		}
		discount = d
	}
	p, err := h.Svc.Preview(r.Context(), session, discount)
	if err != nil {
		writeError(w, err)
		return
	}
	draft, err := cart.NewDraftView(session, p.Draft)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"items":   draft.Items,
			"pricing": p.Breakdown.View(),
		},
	})
}

func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return "", "", false
	}
	session, ok := common.SessionID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "operator session required", nil)
		return "", "", false
	}
	cashier, _ := common.UserID(r.Context())
	return session, cashier, true
}

// classify maps finalize and preview errors to an HTTP status and error code.
func classify(err error) (int, string) {
	var appErr *common.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr.HTTPStatus, appErr.Code
	case errors.Is(err, common.ErrUnavailable):
		return http.StatusServiceUnavailable, "UNAVAILABLE"
	case errors.Is(err, ErrNoActiveDraft):
		return http.StatusConflict, "NO_ACTIVE_DRAFT"
	case errors.Is(err, ErrEmptyDraft):
		return http.StatusUnprocessableEntity, "EMPTY_DRAFT"
	case errors.Is(err, ErrInsufficientPayment):
		return http.StatusUnprocessableEntity, "INSUFFICIENT_PAYMENT"
	case errors.Is(err, ErrInvalidPayment):
		return http.StatusUnprocessableEntity, "INVALID_PAYMENT"
	case errors.Is(err, ErrInvalidDiscount):
		return http.StatusUnprocessableEntity, "INVALID_DISCOUNT"
	case errors.Is(err, cart.ErrInvalidQuantity):
		return http.StatusUnprocessableEntity, "INVALID_QUANTITY"
	case errors.Is(err, catalog.ErrInsufficientStock):
		return http.StatusConflict, "INSUFFICIENT_STOCK"
	case errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, cart.ErrNoSession):
		return http.StatusUnauthorized, "UNAUTHORIZED"
	}
	return http.StatusInternalServerError, "INTERNAL"
}

func writeError(w http.ResponseWriter, err error) {
	if common.WriteKnownError(w, err) {
		return
	}
	status, code := classify(err)
	var details any
	var payErr *PaymentError
	var stockErr *catalog.InsufficientStockError
	switch {
	case errors.As(err, &payErr):
		details = map[string]string{"cashPaid": pricing.Format(payErr.CashPaid), "netTotal": pricing.Format(payErr.NetTotal)}
	case errors.As(err, &stockErr):
		details = map[string]any{"medicineId": stockErr.MedicineID, "requested": stockErr.Requested, "available": stockErr.Available}
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	common.JSONError(w, status, code, msg, details)
}
