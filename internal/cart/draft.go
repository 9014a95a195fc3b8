package cart

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-apotek/internal/catalog"
	"github.com/noah-isme/backend-apotek/internal/pricing"
)

var (
	// ErrInvalidQuantity is returned for quantities that are not positive integers.
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")
	// ErrInvalidDiscount is returned for item discounts outside [0,100] or with more than
	// four fractional digits.
	ErrInvalidDiscount = errors.New("item discount must be between 0 and 100")
	// ErrOutOfStock is returned when adding a medicine whose stock is zero.
	ErrOutOfStock = errors.New("medicine is out of stock")
	// ErrLineNotFound is returned when updating a medicine that is not in the draft.
	ErrLineNotFound = errors.New("medicine is not in the draft")
	// ErrNoSession is returned when an operation is missing its session identifier.
	ErrNoSession = errors.New("session id is required")
)

// MaxQuantity caps a single line.
const MaxQuantity = 1_000_000

var hundred = decimal.NewFromInt(100)

// LineItem is one medicine entry of a draft. UnitSalesPrice is snapshotted when the
// medicine is added.
type LineItem struct {
	MedicineID      string          `json:"medicineId"`
	Name            string          `json:"name"`
	UnitSalesPrice  decimal.Decimal `json:"unitSalesPrice"`
	Qty             int             `json:"qty"`
	DiscountPercent decimal.Decimal `json:"discountPercent"`
}

// NewLineItem builds a validated line from a catalog record.
func NewLineItem(m catalog.Medicine, qty int, discountPercent decimal.Decimal) (LineItem, error) {
	if err := validateQty(qty); err != nil {
		return LineItem{}, err
	}
	if err := validateDiscount(discountPercent); err != nil {
		return LineItem{}, err
	}
	return LineItem{
		MedicineID:      m.ID,
		Name:            m.Name,
		UnitSalesPrice:  m.UnitSalesPrice,
		Qty:             qty,
		DiscountPercent: discountPercent,
	}, nil
}

func validateQty(qty int) error {
	if qty <= 0 || qty > MaxQuantity {
		return fmt.Errorf("%d: %w", qty, ErrInvalidQuantity)
	}
	return nil
}

func validateDiscount(pct decimal.Decimal) error {
	if pct.IsNegative() || pct.GreaterThan(hundred) || !pricing.FitsScale(pct, pricing.PercentScale) {
		return fmt.Errorf("%s: %w", pct, ErrInvalidDiscount)
	}
	return nil
}

// ParseQuantity converts a decoded JSON number to a quantity, rejecting fractions.
// The sign is kept so update callers can treat non-positive values as removal.
func ParseQuantity(d decimal.Decimal) (int, error) {
	if !d.IsInteger() {
		return 0, fmt.Errorf("%s: %w", d, ErrInvalidQuantity)
	}
	if d.Abs().GreaterThan(decimal.NewFromInt(MaxQuantity)) {
		return 0, fmt.Errorf("%s: %w", d, ErrInvalidQuantity)
	}
	return int(d.IntPart()), nil
}

// Draft is the open sale of one operator session. Items keep insertion order and hold
// at most one line per medicine.
type Draft struct {
	ID        string     `json:"id"`
	SessionID string     `json:"sessionId"`
	Items     []LineItem `json:"items"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// IsEmpty reports whether the draft has no lines. An empty draft is the same as no draft.
func (d Draft) IsEmpty() bool { return len(d.Items) == 0 }

// Find returns the line for medicineID.
func (d Draft) Find(medicineID string) (LineItem, bool) {
	for _, it := range d.Items {
		if it.MedicineID == medicineID {
			return it, true
		}
	}
	return LineItem{}, false
}

// Put stores item, replacing an existing line for the same medicine in place.
func (d *Draft) Put(item LineItem) {
	for i := range d.Items {
		if d.Items[i].MedicineID == item.MedicineID {
			d.Items[i] = item
			return
		}
	}
	d.Items = append(d.Items, item)
}

// Remove deletes the line for medicineID and reports whether it existed.
func (d *Draft) Remove(medicineID string) bool {
	for i := range d.Items {
		if d.Items[i].MedicineID == medicineID {
			d.Items = append(d.Items[:i], d.Items[i+1:]...)
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (d Draft) Clone() Draft {
	out := d
	if d.Items != nil {
		out.Items = append([]LineItem(nil), d.Items...)
	}
	return out
}

// PricingLines converts the draft into pricing input.
func (d Draft) PricingLines() []pricing.Line {
	lines := make([]pricing.Line, 0, len(d.Items))
	for _, it := range d.Items {
		lines = append(lines, pricing.Line{
			MedicineID:      it.MedicineID,
			UnitPrice:       it.UnitSalesPrice,
			Qty:             it.Qty,
			DiscountPercent: it.DiscountPercent,
		})
	}
	return lines
}

// Adjustments lists the stock each line consumes.
func (d Draft) Adjustments() []catalog.StockAdjustment {
	out := make([]catalog.StockAdjustment, 0, len(d.Items))
	for _, it := range d.Items {
		out = append(out, catalog.StockAdjustment{MedicineID: it.MedicineID, Qty: it.Qty})
	}
	return out
}

func normalizeSession(sessionID string) (string, error) {
	s := strings.TrimSpace(sessionID)
	if s == "" {
		return "", ErrNoSession
	}
	return s, nil
}
