// Package reconciliation compares extracted documents against the request
// and purchase order they belong to.
package reconciliation

import (
	"errors"
	"fmt"
	"time"

	"github.com/davidmoltin/procurement-workflows/internal/models"
	"github.com/davidmoltin/procurement-workflows/internal/purchaseorder"
	"github.com/shopspring/decimal"
)

// DefaultAmountTolerance absorbs rounding between receipt and purchase order totals
var DefaultAmountTolerance = decimal.RequireFromString("0.01")

// ErrNoPurchaseOrder is returned when a receipt is validated before a purchase order exists
var ErrNoPurchaseOrder = errors.New("request has no purchase order")

// Validator reconciles receipts against purchase orders
type Validator struct {
	amountTolerance decimal.Decimal
	priceTolerance  decimal.Decimal
	now             func() time.Time
}

// NewValidator creates a validator. A non-positive tolerance falls back to the default.
func NewValidator(amountTolerance decimal.Decimal) *Validator {
	if !amountTolerance.IsPositive() {
		amountTolerance = DefaultAmountTolerance
	}
	return &Validator{
		amountTolerance: amountTolerance,
		priceTolerance:  DefaultAmountTolerance,
		now:             time.Now,
	}
}

// Validate reconciles receipt data against the request's purchase order.
// The receipt amount is compared with the sum of the PO line totals. Amount
// and item count mismatches are errors; everything else is a warning.
func (v *Validator) Validate(r *models.PurchaseRequest, receipt *models.DocumentData) (*models.ReceiptValidationResult, error) {
	if r.PurchaseOrderData == nil {
		return nil, ErrNoPurchaseOrder
	}
	po := r.PurchaseOrderData

	result := &models.ReceiptValidationResult{
		Errors:      []string{},
		Warnings:    []string{},
		ReceiptData: receipt,
		ValidatedAt: v.now().UTC(),
	}

	if receipt.Error != "" && receipt.Amount != nil {
		result.Warnings = append(result.Warnings, "receipt extraction reported: "+receipt.Error)
	}

	v.checkVendor(result, po, receipt)

	expected := po.TotalAmount
	if len(po.Items) > 0 {
		expected = po.ItemsTotal()
		if !expected.Equal(po.TotalAmount) {
			result.Warnings = append(result.Warnings, fmt.Sprintf("declared amount %s differs from line item total %s",
				po.TotalAmount.StringFixed(2), expected.StringFixed(2)))
		}
	}

	if receipt.Amount == nil {
		result.Errors = append(result.Errors, "receipt amount could not be extracted")
	} else if receipt.Amount.Sub(expected).Abs().GreaterThan(v.amountTolerance) {
		result.Errors = append(result.Errors, fmt.Sprintf("amount mismatch: expected %s, got %s",
			expected.StringFixed(2), receipt.Amount.StringFixed(2)))
	} else {
		result.AmountMatch = true
	}

	countMatch := len(receipt.Items) == len(po.Items)
	if !countMatch {
		result.Errors = append(result.Errors, fmt.Sprintf("item count mismatch: expected %d, got %d",
			len(po.Items), len(receipt.Items)))
	}
	itemWarnings := v.compareItems(po.Items, receipt.Items)
	result.Warnings = append(result.Warnings, itemWarnings...)
	result.ItemsMatch = countMatch && len(itemWarnings) == 0

	result.IsValid = len(result.Errors) == 0
	return result, nil
}

func (v *Validator) checkVendor(result *models.ReceiptValidationResult, po *models.PurchaseOrderData, receipt *models.DocumentData) {
	if po.Vendor == "" || po.Vendor == purchaseorder.UnknownVendor {
		return
	}
	if receipt.Vendor == "" {
		result.Warnings = append(result.Warnings, "vendor could not be extracted from receipt")
		return
	}
	if VendorMatches(po.Vendor, receipt.Vendor) {
		result.VendorMatch = true
		return
	}
	result.Warnings = append(result.Warnings, fmt.Sprintf("vendor mismatch: expected %q, got %q", po.Vendor, receipt.Vendor))
}

// compareItems matches receipt lines to purchase order lines by normalized name
func (v *Validator) compareItems(expected []models.PurchaseOrderItem, actual []models.ExtractedItem) []string {
	warnings := []string{}
	used := make([]bool, len(actual))

	for _, want := range expected {
		idx := findItem(want.Name, actual, used)
		if idx < 0 {
			warnings = append(warnings, fmt.Sprintf("missing item: %s", want.Name))
			continue
		}
		used[idx] = true
		got := actual[idx]
		if got.Quantity != want.Quantity {
			warnings = append(warnings, fmt.Sprintf("quantity mismatch for %s: expected %d, got %d", want.Name, want.Quantity, got.Quantity))
		}
		if got.UnitPrice.Sub(want.UnitPrice).Abs().GreaterThan(v.priceTolerance) {
			warnings = append(warnings, fmt.Sprintf("price mismatch for %s: expected %s, got %s",
				want.Name, want.UnitPrice.StringFixed(2), got.UnitPrice.StringFixed(2)))
		}
	}

	for i, got := range actual {
		if !used[i] {
			warnings = append(warnings, fmt.Sprintf("unexpected item: %s", got.Name))
		}
	}
	return warnings
}

func findItem(name string, items []models.ExtractedItem, used []bool) int {
	key := NormalizeName(name)
	for i, item := range items {
		if !used[i] && NormalizeName(item.Name) == key {
			return i
		}
	}
	return -1
}
