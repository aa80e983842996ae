package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DocumentKind names the document slot a blob or extraction result belongs to
type DocumentKind string

const (
	DocumentProforma      DocumentKind = "proforma"
	DocumentPurchaseOrder DocumentKind = "purchase_order"
	DocumentReceipt       DocumentKind = "receipt"
)

// ExtractedItem is a line item parsed out of a proforma or receipt
type ExtractedItem struct {
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Total     decimal.Decimal `json:"total"`
}

// DocumentData is the structured result of parsing a proforma or receipt.
// A nil Amount means no amount could be found.
type DocumentData struct {
	Vendor        string           `json:"vendor,omitempty"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	AmountDerived bool             `json:"amount_derived,omitempty"`
	Items         []ExtractedItem  `json:"items"`
	Terms         string           `json:"terms,omitempty"`
	ExtractedText string           `json:"extracted_text"`
	Error         string           `json:"error,omitempty"`
}

// Failed reports whether extraction recorded an error
func (d *DocumentData) Failed() bool {
	return d.Error != ""
}

// Clone returns a deep copy
func (d *DocumentData) Clone() *DocumentData {
	c := *d
	c.Items = append([]ExtractedItem(nil), d.Items...)
	if d.Amount != nil {
		a := *d.Amount
		c.Amount = &a
	}
	return &c
}

// PurchaseOrderItem is a line item frozen into a purchase order
type PurchaseOrderItem struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
}

// PurchaseOrderApprover records who approved the request the order was raised for
type PurchaseOrderApprover struct {
	ApproverID uuid.UUID     `json:"approver_id"`
	Level      ApprovalLevel `json:"level"`
	ApprovedAt time.Time     `json:"approved_at"`
}

// PurchaseOrderData is the immutable purchase order snapshot
type PurchaseOrderData struct {
	PONumber    string                  `json:"po_number"`
	RequestID   uuid.UUID               `json:"request_id"`
	Title       string                  `json:"title"`
	Vendor      string                  `json:"vendor"`
	Items       []PurchaseOrderItem     `json:"items"`
	TotalAmount decimal.Decimal         `json:"total_amount"`
	Terms       string                  `json:"terms"`
	RequestedBy uuid.UUID               `json:"requested_by"`
	ApprovedBy  []PurchaseOrderApprover `json:"approved_by"`
	CreatedAt   time.Time               `json:"created_at"`
}

// ItemsTotal sums the line totals. Receipts are reconciled against this
// rather than the declared TotalAmount.
func (po *PurchaseOrderData) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range po.Items {
		total = total.Add(item.TotalPrice)
	}
	return total
}

// ReceiptValidationResult is the verdict of reconciling a receipt against its purchase order
type ReceiptValidationResult struct {
	IsValid     bool          `json:"is_valid"`
	Errors      []string      `json:"errors"`
	Warnings    []string      `json:"warnings"`
	VendorMatch bool          `json:"vendor_match"`
	AmountMatch bool          `json:"amount_match"`
	ItemsMatch  bool          `json:"items_match"`
	ReceiptData *DocumentData `json:"receipt_data"`
	ValidatedAt time.Time     `json:"validated_at"`
}
