package reconciliation

import (
	"fmt"

	"github.com/davidmoltin/procurement-workflows/internal/models"
	"github.com/shopspring/decimal"
)

// DefaultProformaTolerance is the allowed gap between request and proforma totals
var DefaultProformaTolerance = decimal.RequireFromString("1.00")

// ProformaDiscrepancies lists differences between a request and its proforma.
// An empty result means the proforma agrees with the request or none was
// uploaded.
func ProformaDiscrepancies(r *models.PurchaseRequest, tolerance decimal.Decimal) []string {
	p := r.ProformaData
	if p == nil {
		return nil
	}
	if p.Error != "" {
		return []string{"proforma could not be read: " + p.Error}
	}

	var out []string
	if p.Amount == nil {
		out = append(out, "proforma amount could not be extracted")
	} else if p.Amount.Sub(r.Amount).Abs().GreaterThan(tolerance) {
		out = append(out, fmt.Sprintf("amount mismatch: request %s, proforma %s",
			r.Amount.StringFixed(2), p.Amount.StringFixed(2)))
	}

	used := make([]bool, len(p.Items))
	for _, item := range r.Items {
		idx := findItem(item.Name, p.Items, used)
		if idx < 0 {
			out = append(out, fmt.Sprintf("item missing from proforma: %s", item.Name))
			continue
		}
		used[idx] = true
		got := p.Items[idx]
		if got.Quantity != item.Quantity {
			out = append(out, fmt.Sprintf("quantity mismatch for %s: request %d, proforma %d", item.Name, item.Quantity, got.Quantity))
		}
		if got.UnitPrice.Sub(item.UnitPrice).Abs().GreaterThan(DefaultAmountTolerance) {
			out = append(out, fmt.Sprintf("unit price mismatch for %s: request %s, proforma %s",
				item.Name, item.UnitPrice.StringFixed(2), got.UnitPrice.StringFixed(2)))
		}
	}
	for i, got := range p.Items {
		if !used[i] {
			out = append(out, fmt.Sprintf("item not in request: %s", got.Name))
		}
	}
	return out
}
