package app

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-apotek/internal/catalog"
)

// DefaultMedicines is the starter catalog loaded by the seeder and by the in-memory store.
// Prices are per unit.
func DefaultMedicines() []catalog.Medicine {
	return []catalog.Medicine{
		{ID: "paracetamol-500", Name: "Paracetamol 500mg", UnitSalesPrice: decimal.RequireFromString("10"), UnitPurchasePrice: decimal.RequireFromString("7.5"), PackSize: 10, StockQty: 100},
		{ID: "amoxicillin-500", Name: "Amoxicillin 500mg", UnitSalesPrice: decimal.RequireFromString("12.5"), UnitPurchasePrice: decimal.RequireFromString("9"), PackSize: 10, StockQty: 60},
		{ID: "cetirizine-10", Name: "Cetirizine 10mg", UnitSalesPrice: decimal.RequireFromString("4.25"), UnitPurchasePrice: decimal.RequireFromString("2.8"), PackSize: 10, StockQty: 40},
		{ID: "omeprazole-20", Name: "Omeprazole 20mg", UnitSalesPrice: decimal.RequireFromString("6"), UnitPurchasePrice: decimal.RequireFromString("4.1"), PackSize: 14, StockQty: 8},
		{ID: "ors-sachet", Name: "Oral Rehydration Salts", UnitSalesPrice: decimal.RequireFromString("3.5"), UnitPurchasePrice: decimal.RequireFromString("2"), PackSize: 20, StockQty: 0},
		{ID: "vitamin-c-500", Name: "Vitamin C 500mg", UnitSalesPrice: decimal.RequireFromString("2.75"), UnitPurchasePrice: decimal.RequireFromString("1.6"), PackSize: 30, StockQty: 150},
	}
}
