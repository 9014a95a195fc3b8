package pricing

// LineView is the JSON shape of a priced line.
type LineView struct {
	MedicineID          string `json:"medicineId"`
	UnitPrice           string `json:"unitPrice"`
	Qty                 int    `json:"qty"`
	DiscountPercent     string `json:"discountPercent"`
	DiscountedUnitPrice string `json:"discountedUnitPrice"`
	Gross               string `json:"gross"`
	DiscountAmount      string `json:"discountAmount"`
	Net                 string `json:"net"`
}

// View is the JSON shape of a Breakdown with amounts fixed to two decimals.
type View struct {
	Lines           []LineView `json:"lines"`
	GrossTotal      string     `json:"grossTotal"`
	ItemNetTotal    string     `json:"itemNetTotal"`
	DiscountPercent string     `json:"discountPercent"`
	DiscountAmount  string     `json:"discountAmount"`
	NetTotal        string     `json:"netTotal"`
	Unusual         bool       `json:"unusualDiscount,omitempty"`
}

// View rounds the breakdown and renders it for responses.
func (b Breakdown) View() View {
	r := b.Rounded()
	lines := make([]LineView, 0, len(r.Lines))
	for _, l := range r.Lines {
		lines = append(lines, LineView{
			MedicineID:          l.MedicineID,
			UnitPrice:           Format(l.UnitPrice),
			Qty:                 l.Qty,
			DiscountPercent:     l.DiscountPercent.String(),
			DiscountedUnitPrice: Format(l.DiscountedUnitPrice),
			Gross:               Format(l.Gross),
			DiscountAmount:      Format(l.DiscountAmount),
			Net:                 Format(l.Net),
		})
	}
	return View{
		Lines:           lines,
		GrossTotal:      Format(r.GrossTotal),
		ItemNetTotal:    Format(r.ItemNetTotal),
		DiscountPercent: r.DiscountPercent.String(),
		DiscountAmount:  Format(r.DiscountAmount),
		NetTotal:        Format(r.NetTotal),
		Unusual:         r.Unusual,
	}
}
