package invoice

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-apotek/internal/common"
	"github.com/noah-isme/backend-apotek/internal/pricing"
)

// Handler exposes invoice history and receipt export.
type Handler struct {
	Repo    Repository
	Receipt ReceiptOptions
}

// LineView is the response shape of an invoice line.
type LineView struct {
	MedicineID          string `json:"medicineId"`
	Name                string `json:"name"`
	UnitPrice           string `json:"unitPrice"`
	Qty                 int    `json:"qty"`
	DiscountPercent     string `json:"discountPercent"`
	DiscountedUnitPrice string `json:"discountedUnitPrice"`
	Gross               string `json:"gross"`
	DiscountAmount      string `json:"discountAmount"`
	Net                 string `json:"net"`
}

// View is the response shape of an invoice.
type View struct {
	Number          int64      `json:"number"`
	Code            string     `json:"code"`
	CreatedAt       time.Time  `json:"createdAt"`
	CustomerName    string     `json:"customerName,omitempty"`
	CashierID       string     `json:"cashierId"`
	Lines           []LineView `json:"lines"`
	GrossTotal      string     `json:"grossTotal"`
	DiscountPercent string     `json:"discountPercent"`
	DiscountAmount  string     `json:"discountAmount"`
	NetTotal        string     `json:"netTotal"`
	CashPaid        string     `json:"cashPaid"`
	ChangeDue       string     `json:"changeDue"`
	Status          Status     `json:"status"`
}

// NewView renders inv for responses.
func NewView(inv Invoice) View {
	lines := make([]LineView, 0, len(inv.Lines))
	for _, l := range inv.Lines {
		lines = append(lines, LineView{
			MedicineID:          l.MedicineID,
			Name:                l.Name,
			UnitPrice:           pricing.Format(l.UnitPrice),
			Qty:                 l.Qty,
			DiscountPercent:     l.DiscountPercent.String(),
			DiscountedUnitPrice: pricing.Format(l.DiscountedUnitPrice),
			Gross:               pricing.Format(l.Gross),
			DiscountAmount:      pricing.Format(l.DiscountAmount),
			Net:                 pricing.Format(l.Net),
		})
	}
	return View{
		Number:          inv.Number,
		Code:            inv.Code(),
		CreatedAt:       inv.CreatedAt,
		CustomerName:    inv.CustomerName,
		CashierID:       inv.CashierID,
		Lines:           lines,
		GrossTotal:      pricing.Format(inv.GrossTotal),
		DiscountPercent: inv.DiscountPercent.String(),
		DiscountAmount:  pricing.Format(inv.DiscountAmount),
		NetTotal:        pricing.Format(inv.NetTotal),
		CashPaid:        pricing.Format(inv.CashPaid),
		ChangeDue:       pricing.Format(inv.ChangeDue),
		Status:          inv.Status,
	}
}

// List handles GET /api/v1/invoices.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Repo == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "invoice repository not configured", nil)
		return
	}
	page := common.ParsePagination(r, 20)
	items, total, err := h.Repo.List(r.Context(), Filter{
		Query:  r.URL.Query().Get("q"),
		Limit:  page.PerPage,
		Offset: page.Offset(),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	views := make([]View, 0, len(items))
	for _, inv := range items {
		views = append(views, NewView(inv))
	}
	page.TotalItems = total
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	common.JSON(w, http.StatusOK, map[string]any{"data": views, "pagination": page})
}

// Summary handles GET /api/v1/invoices/summary.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	if h.Repo == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "invoice repository not configured", nil)
		return
	}
	s, err := h.Repo.Summary(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"count":     s.Count,
			"completed": s.Completed,
			"revenue":   pricing.Format(s.Revenue),
		},
	})
}

// Get handles GET /api/v1/invoices/{number}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	inv, ok := h.load(w, r)
	if !ok {
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": NewView(inv)})
}

// Export handles GET /api/v1/invoices/{number}/export.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	inv, ok := h.load(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+inv.Code()+`.csv"`)
	w.WriteHeader(http.StatusOK)
	_ = WriteReceipt(w, inv, h.Receipt)
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (Invoice, bool) {
	if h.Repo == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "invoice repository not configured", nil)
		return Invoice{}, false
	}
	number, err := ParseCode(chi.URLParam(r, "number"))
	if err != nil {
		h.writeError(w, err)
		return Invoice{}, false
	}
	inv, err := h.Repo.Get(r.Context(), number)
	if err != nil {
		h.writeError(w, err)
		return Invoice{}, false
	}
	return inv, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if common.WriteKnownError(w, err) {
		return
	}
	switch {
	case errors.Is(err, ErrInvalidCode):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}
