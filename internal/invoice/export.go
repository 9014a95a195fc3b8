package invoice

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/noah-isme/backend-apotek/internal/pricing"
)

// Organization is printed at the top of every receipt.
type Organization struct {
	Title   string
	Address string
	Phone   string
	Email   string
}

// ReceiptOptions controls receipt rendering.
type ReceiptOptions struct {
	Org      Organization
	Currency string
	Location *time.Location
}

// WriteReceipt renders inv as CSV: organization header, invoice number, timestamp,
// cashier, optional customer, one row per line, then the totals. Fields containing the
// delimiter or quotes are quoted with embedded quotes doubled.
func WriteReceipt(w io.Writer, inv Invoice, opts ReceiptOptions) error {
	cw := csv.NewWriter(w)
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	cur := opts.Currency
	money := func(label string) string {
		if cur == "" {
			return label
		}
		return fmt.Sprintf("%s (%s)", label, cur)
	}

	rows := [][]string{}
	for _, v := range []string{opts.Org.Title, opts.Org.Address, opts.Org.Phone, opts.Org.Email} {
		if v != "" {
			rows = append(rows, []string{v})
		}
	}
	rows = append(rows,
		[]string{},
		[]string{"Invoice", inv.Code()},
		[]string{"Date", inv.CreatedAt.In(loc).Format("2006-01-02 15:04:05")},
		[]string{"Cashier", inv.CashierID},
	)
	if inv.CustomerName != "" {
		rows = append(rows, []string{"Customer", inv.CustomerName})
	}
	rows = append(rows,
		[]string{},
		[]string{"Medicine", money("Unit Price"), "Discount %", money("Discounted Unit Price"), "Qty", money("Line Total")},
	)
	for _, l := range inv.Lines {
		rows = append(rows, []string{
			l.Name,
			pricing.Format(l.UnitPrice),
			l.DiscountPercent.String(),
			pricing.Format(l.DiscountedUnitPrice),
			fmt.Sprintf("%d", l.Qty),
			pricing.Format(l.Net),
		})
	}
	rows = append(rows,
		[]string{},
		[]string{money("Gross Total"), pricing.Format(inv.GrossTotal)},
		[]string{fmt.Sprintf("Discount (%s%%)", inv.DiscountPercent.String()), pricing.Format(inv.DiscountAmount)},
		[]string{money("Net Total"), pricing.Format(inv.NetTotal)},
		[]string{money("Cash Paid"), pricing.Format(inv.CashPaid)},
		[]string{money("Change"), pricing.Format(inv.ChangeDue)},
	)
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write receipt %s: %w", inv.Code(), err)
	}
	return nil
}

// LedgerHeader is the header row of the ledger export.
var LedgerHeader = []string{"invoice", "created_at", "cashier", "customer", "lines", "gross_total", "discount_percent", "discount_amount", "net_total", "cash_paid", "change_due"}

// LedgerRow renders inv as one ledger line.
func LedgerRow(inv Invoice) []string {
	return []string{
		inv.Code(),
		inv.CreatedAt.UTC().Format(time.RFC3339),
		inv.CashierID,
		inv.CustomerName,
		fmt.Sprintf("%d", len(inv.Lines)),
		pricing.Format(inv.GrossTotal),
		inv.DiscountPercent.String(),
		pricing.Format(inv.DiscountAmount),
		pricing.Format(inv.NetTotal),
		pricing.Format(inv.CashPaid),
		pricing.Format(inv.ChangeDue),
	}
}
