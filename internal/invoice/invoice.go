package invoice

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-apotek/internal/pricing"
)

var (
	// ErrNotFound is returned for unknown invoice numbers.
	ErrNotFound = errors.New("invoice not found")
	// ErrDuplicateNumber is returned when saving an invoice whose number is taken.
	ErrDuplicateNumber = errors.New("invoice number already used")
	// ErrInvalidCode is returned when an invoice code cannot be parsed.
	ErrInvalidCode = errors.New("invalid invoice code")
)

// Status of a stored invoice. Finalized is the only state a stored invoice can have.
type Status string

const StatusFinalized Status = "finalized"

// Line is the immutable snapshot of a draft line at finalize time.
type Line struct {
	MedicineID          string          `json:"medicineId"`
	Name                string          `json:"name"`
	UnitPrice           decimal.Decimal `json:"unitPrice"`
	Qty                 int             `json:"qty"`
	DiscountPercent     decimal.Decimal `json:"discountPercent"`
	DiscountedUnitPrice decimal.Decimal `json:"discountedUnitPrice"`
	Gross               decimal.Decimal `json:"gross"`
	DiscountAmount      decimal.Decimal `json:"discountAmount"`
	Net                 decimal.Decimal `json:"net"`
}

// Invoice is a finalized sale. Amounts are stored rounded to two places.
type Invoice struct {
	Number          int64           `json:"number"`
	CreatedAt       time.Time       `json:"createdAt"`
	CustomerName    string          `json:"customerName,omitempty"`
	CashierID       string          `json:"cashierId"`
	SessionID       string          `json:"sessionId"`
	Lines           []Line          `json:"lines"`
	GrossTotal      decimal.Decimal `json:"grossTotal"`
	DiscountPercent decimal.Decimal `json:"discountPercent"`
	DiscountAmount  decimal.Decimal `json:"discountAmount"`
	NetTotal        decimal.Decimal `json:"netTotal"`
	CashPaid        decimal.Decimal `json:"cashPaid"`
	ChangeDue       decimal.Decimal `json:"changeDue"`
	Status          Status          `json:"status"`
}

// Code renders the display number, e.g. INV-000042.
func (inv Invoice) Code() string { return FormatCode(inv.Number) }

// FormatCode renders number zero-padded to six digits.
func FormatCode(number int64) string { return fmt.Sprintf("INV-%06d", number) }

// ParseCode accepts "INV-000042", "#INV-000042" or plain digits.
func ParseCode(s string) (int64, error) {
	v := strings.TrimSpace(s)
	v = strings.TrimPrefix(v, "#")
	if len(v) >= 4 && strings.EqualFold(v[:4], "INV-") {
		v = v[4:]
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%q: %w", s, ErrInvalidCode)
	}
	return n, nil
}

// Snapshot describes what finalize hands over to build an invoice.
type Snapshot struct {
	Number       int64
	CreatedAt    time.Time
	CustomerName string
	CashierID    string
	SessionID    string
	Names        map[string]string
	Pricing      pricing.Breakdown
	CashPaid     decimal.Decimal
}

// New builds an invoice from a pricing breakdown, rounding every amount for storage.
// ChangeDue is cash paid minus the rounded net total.
func New(s Snapshot) Invoice {
	r := s.Pricing.Rounded()
	lines := make([]Line, 0, len(r.Lines))
	for _, l := range r.Lines {
		lines = append(lines, Line{
			MedicineID:          l.MedicineID,
			Name:                s.Names[l.MedicineID],
			UnitPrice:           l.UnitPrice.Round(pricing.Scale),
			Qty:                 l.Qty,
			DiscountPercent:     l.DiscountPercent,
			DiscountedUnitPrice: l.DiscountedUnitPrice,
			Gross:               l.Gross,
			DiscountAmount:      l.DiscountAmount,
			Net:                 l.Net,
		})
	}
	cash := s.CashPaid.Round(pricing.Scale)
	return Invoice{
		Number:          s.Number,
		CreatedAt:       s.CreatedAt.UTC(),
		CustomerName:    strings.TrimSpace(s.CustomerName),
		CashierID:       s.CashierID,
		SessionID:       s.SessionID,
		Lines:           lines,
		GrossTotal:      r.GrossTotal,
		DiscountPercent: r.DiscountPercent,
		DiscountAmount:  r.DiscountAmount,
		NetTotal:        r.NetTotal,
		CashPaid:        cash,
		ChangeDue:       cash.Sub(r.NetTotal),
		Status:          StatusFinalized,
	}
}

// Matches reports whether the invoice matches a free-text history search on number,
// cashier, customer or status.
func (inv Invoice) Matches(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	if n, err := ParseCode(q); err == nil && n == inv.Number {
		return true
	}
	for _, field := range []string{strings.ToLower(inv.Code()), inv.CashierID, inv.CustomerName, string(inv.Status)} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}
