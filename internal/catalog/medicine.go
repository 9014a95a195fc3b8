package catalog

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-apotek/internal/pricing"
)

var (
	// ErrNotFound is returned when a medicine id is unknown.
	ErrNotFound = errors.New("medicine not found")
	// ErrInsufficientStock is returned when a decrement would take stock below zero.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrDuplicate is returned when creating a medicine whose id is taken.
	ErrDuplicate = errors.New("medicine already exists")
	// ErrInvalidInput is returned for malformed catalog writes.
	ErrInvalidInput = errors.New("invalid input")
)

// StockStatus classifies on-hand quantity for display.
type StockStatus string

const (
	StatusInStock    StockStatus = "in_stock"
	StatusLowStock   StockStatus = "low_stock"
	StatusOutOfStock StockStatus = "out_of_stock"
)

// DefaultLowStockThreshold is used when no threshold is configured.
const DefaultLowStockThreshold = 10

// Medicine is a catalog record. Prices are per single unit.
type Medicine struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	UnitSalesPrice    decimal.Decimal `json:"unitSalesPrice"`
	UnitPurchasePrice decimal.Decimal `json:"unitPurchasePrice"`
	PackSize          int             `json:"packSize"`
	StockQty          int             `json:"stockQty"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// PackSalesPrice is the sales price of one full pack.
func (m Medicine) PackSalesPrice() decimal.Decimal {
	return m.UnitSalesPrice.Mul(decimal.NewFromInt(int64(m.PackSize)))
}

// StockStatus reports the stock classification for the given low-stock threshold.
func (m Medicine) StockStatus(threshold int) StockStatus {
	switch {
	case m.StockQty <= 0:
		return StatusOutOfStock
	case m.StockQty < threshold:
		return StatusLowStock
	default:
		return StatusInStock
	}
}

// Validate checks the record invariants.
func (m Medicine) Validate() error {
	switch {
	case strings.TrimSpace(m.ID) == "":
		return fmt.Errorf("id is required: %w", ErrInvalidInput)
	case strings.TrimSpace(m.Name) == "":
		return fmt.Errorf("name is required: %w", ErrInvalidInput)
	case m.UnitSalesPrice.IsNegative() || m.UnitPurchasePrice.IsNegative():
		return fmt.Errorf("prices must not be negative: %w", ErrInvalidInput)
	case !pricing.FitsScale(m.UnitSalesPrice, pricing.Scale) || !pricing.FitsScale(m.UnitPurchasePrice, pricing.Scale):
		return fmt.Errorf("prices take at most two decimals: %w", ErrInvalidInput)
	case m.PackSize < 1:
		return fmt.Errorf("pack size must be at least 1: %w", ErrInvalidInput)
	case m.StockQty < 0:
		return fmt.Errorf("stock must not be negative: %w", ErrInvalidInput)
	}
	return nil
}

// StockAdjustment is a quantity change for one medicine.
type StockAdjustment struct {
	MedicineID string
	Qty        int
}

// InsufficientStockError names the medicine whose stock could not cover a decrement.
type InsufficientStockError struct {
	MedicineID string
	Requested  int
	Available  int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.MedicineID, e.Requested, e.Available)
}

// Is lets errors.Is match ErrInsufficientStock.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// mergeAdjustments sums quantities per medicine and rejects non-positive amounts.
func mergeAdjustments(adjs []StockAdjustment) (map[string]int, []string, error) {
	totals := make(map[string]int, len(adjs))
	order := make([]string, 0, len(adjs))
	for _, a := range adjs {
		if a.Qty <= 0 {
			return nil, nil, fmt.Errorf("%s: quantity %d: %w", a.MedicineID, a.Qty, ErrInvalidInput)
		}
		if _, seen := totals[a.MedicineID]; !seen {
			order = append(order, a.MedicineID)
		}
		totals[a.MedicineID] += a.Qty
	}
	return totals, order, nil
}
