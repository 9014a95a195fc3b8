package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits kept when amounts are displayed or persisted.
const Scale = 2

// PercentScale is the number of fractional digits a discount percent may carry.
const PercentScale = 4

var (
	// ErrNegativeDiscount is returned when the invoice-level discount is below zero.
	ErrNegativeDiscount = errors.New("discount percent must not be negative")
	// ErrInvalidLine is returned for lines with a non-positive quantity or an item discount outside [0,100].
	ErrInvalidLine = errors.New("invalid line")
	// ErrDiscountOutOfRange is returned for an invoice discount above MaxDiscountPercent or
	// with more than PercentScale fractional digits.
	ErrDiscountOutOfRange = errors.New("discount percent out of range")

	hundred = decimal.NewFromInt(100)

	// MaxDiscountPercent bounds the invoice discount. Values above 100 are still accepted
	// and flagged Unusual.
	MaxDiscountPercent = decimal.RequireFromString("999.9999")
)

// FitsScale reports whether d has at most places fractional digits.
func FitsScale(d decimal.Decimal, places int32) bool {
	return d.Equal(d.Truncate(places))
}

// Line is a priced input row: a unit price snapshot, a quantity and an optional item discount.
type Line struct {
	MedicineID      string
	UnitPrice       decimal.Decimal
	Qty             int
	DiscountPercent decimal.Decimal
}

// LineTotal carries the per-item figures derived from a Line.
type LineTotal struct {
	MedicineID          string
	UnitPrice           decimal.Decimal
	Qty                 int
	DiscountPercent     decimal.Decimal
	DiscountedUnitPrice decimal.Decimal
	Gross               decimal.Decimal
	DiscountAmount      decimal.Decimal
	Net                 decimal.Decimal
}

// Breakdown aggregates computed pricing components.
//
// GrossTotal is the sum of undiscounted line totals; item discounts show up only in the
// per-line Net values and ItemNetTotal. DiscountAmount and NetTotal apply the invoice-level
// discount to GrossTotal.
type Breakdown struct {
	Lines           []LineTotal
	GrossTotal      decimal.Decimal
	ItemNetTotal    decimal.Decimal
	DiscountPercent decimal.Decimal
	DiscountAmount  decimal.Decimal
	NetTotal        decimal.Decimal
	// Unusual is set when the invoice discount exceeds 100 percent. The figures are still
	// computed so the caller can decide whether to warn or refuse.
	Unusual bool
}

// Percent returns pct percent of amount without rounding.
func Percent(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct.Shift(-2))
}

// Compute prices lines with the invoice-level discount percent. No rounding happens here;
// call Rounded for display or persistence.
func Compute(lines []Line, discountPercent decimal.Decimal) (Breakdown, error) {
	if discountPercent.IsNegative() {
		return Breakdown{}, ErrNegativeDiscount
	}
	if discountPercent.GreaterThan(MaxDiscountPercent) || !FitsScale(discountPercent, PercentScale) {
		return Breakdown{}, fmt.Errorf("%s: %w", discountPercent, ErrDiscountOutOfRange)
	}
	out := Breakdown{
		Lines:           make([]LineTotal, 0, len(lines)),
		GrossTotal:      decimal.Zero,
		ItemNetTotal:    decimal.Zero,
		DiscountPercent: discountPercent,
		Unusual:         discountPercent.GreaterThan(hundred),
	}
	for _, l := range lines {
		if l.Qty <= 0 {
			return Breakdown{}, fmt.Errorf("%s: quantity %d: %w", l.MedicineID, l.Qty, ErrInvalidLine)
		}
		if l.DiscountPercent.IsNegative() || l.DiscountPercent.GreaterThan(hundred) || !FitsScale(l.DiscountPercent, PercentScale) {
			return Breakdown{}, fmt.Errorf("%s: item discount %s: %w", l.MedicineID, l.DiscountPercent, ErrInvalidLine)
		}
		gross := l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Qty)))
		disc := Percent(gross, l.DiscountPercent)
		lt := LineTotal{
			MedicineID:          l.MedicineID,
			UnitPrice:           l.UnitPrice,
			Qty:                 l.Qty,
			DiscountPercent:     l.DiscountPercent,
			DiscountedUnitPrice: l.UnitPrice.Sub(Percent(l.UnitPrice, l.DiscountPercent)),
			Gross:               gross,
			DiscountAmount:      disc,
			Net:                 gross.Sub(disc),
		}
		out.Lines = append(out.Lines, lt)
		out.GrossTotal = out.GrossTotal.Add(lt.Gross)
		out.ItemNetTotal = out.ItemNetTotal.Add(lt.Net)
	}
	out.DiscountAmount = Percent(out.GrossTotal, discountPercent)
	out.NetTotal = out.GrossTotal.Sub(out.DiscountAmount)
	return out, nil
}

// Rounded returns a copy with every amount rounded half away from zero to Scale places.
// Net figures are derived from the rounded gross and discount so that
// Net == Gross - Discount keeps holding after rounding.
func (b Breakdown) Rounded() Breakdown {
	out := b
	out.Lines = make([]LineTotal, len(b.Lines))
	itemNet := decimal.Zero
	for i, l := range b.Lines {
		l.Gross = l.Gross.Round(Scale)
		l.DiscountAmount = l.DiscountAmount.Round(Scale)
		l.Net = l.Gross.Sub(l.DiscountAmount)
		l.DiscountedUnitPrice = l.DiscountedUnitPrice.Round(Scale)
		itemNet = itemNet.Add(l.Net)
		out.Lines[i] = l
	}
	out.GrossTotal = b.GrossTotal.Round(Scale)
	out.ItemNetTotal = itemNet
	out.DiscountAmount = b.DiscountAmount.Round(Scale)
	out.NetTotal = out.GrossTotal.Sub(out.DiscountAmount)
	return out
}

// Format renders an amount with exactly Scale fractional digits.
func Format(d decimal.Decimal) string {
	return d.StringFixed(Scale)
}
