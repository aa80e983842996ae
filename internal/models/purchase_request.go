package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RequestStatus is the top-level workflow status of a purchase request
type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusApproved  RequestStatus = "approved"
	StatusRejected  RequestStatus = "rejected"
	StatusCancelled RequestStatus = "cancelled"
)

// Valid reports whether s is a known status
func (s RequestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further approvals or edits are allowed
func (s RequestStatus) IsTerminal() bool {
	return s == StatusRejected || s == StatusCancelled
}

// PurchaseRequest is a request for purchase routed through two approval levels
type PurchaseRequest struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	Title       string          `json:"title" db:"title"`
	Description string          `json:"description" db:"description"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	Status      RequestStatus   `json:"status" db:"status"`
	CreatedBy   uuid.UUID       `json:"created_by" db:"created_by"`

	RequiresLevel1Approval bool `json:"requires_level_1_approval" db:"requires_level_1_approval"`
	RequiresLevel2Approval bool `json:"requires_level_2_approval" db:"requires_level_2_approval"`
	Level1Approved         bool `json:"level_1_approved" db:"level_1_approved"`
	Level2Approved         bool `json:"level_2_approved" db:"level_2_approved"`

	ProformaKey       *string                  `json:"proforma_key,omitempty" db:"proforma_key"`
	ProformaData      *DocumentData            `json:"proforma_data,omitempty" db:"proforma_data"`
	PurchaseOrderKey  *string                  `json:"purchase_order_key,omitempty" db:"purchase_order_key"`
	PurchaseOrderData *PurchaseOrderData       `json:"purchase_order_data,omitempty" db:"purchase_order_data"`
	ReceiptKey        *string                  `json:"receipt_key,omitempty" db:"receipt_key"`
	ReceiptData       *DocumentData            `json:"receipt_data,omitempty" db:"receipt_data"`
	ReceiptValidation *ReceiptValidationResult `json:"receipt_validation_result,omitempty" db:"receipt_validation_result"`

	// Version is bumped on every successful save and used for conditional updates
	Version   int       `json:"version" db:"version"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	Items     []RequestItem `json:"items" db:"-"`
	Approvals []Approval    `json:"approvals,omitempty" db:"-"`
}

// RequestItem is a line item declared by the request owner
type RequestItem struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	RequestID   uuid.UUID       `json:"request_id" db:"request_id"`
	Position    int             `json:"-" db:"position"`
	Name        string          `json:"name" db:"name"`
	Description string          `json:"description,omitempty" db:"description"`
	Quantity    int             `json:"quantity" db:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price" db:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price" db:"total_price"`
}

// Recalculate refreshes the derived total price
func (i *RequestItem) Recalculate() {
	i.TotalPrice = i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// HasPurchaseOrder reports whether a purchase order snapshot has been generated
func (r *PurchaseRequest) HasPurchaseOrder() bool {
	return r.PurchaseOrderData != nil
}

// SetItems replaces the line items, assigning ids, positions and totals
func (r *PurchaseRequest) SetItems(inputs []RequestItemInput) {
	items := make([]RequestItem, 0, len(inputs))
	for i, in := range inputs {
		item := RequestItem{
			ID:          uuid.New(),
			RequestID:   r.ID,
			Position:    i,
			Name:        strings.TrimSpace(in.Name),
			Description: strings.TrimSpace(in.Description),
			Quantity:    in.Quantity,
			UnitPrice:   in.UnitPrice,
		}
		item.Recalculate()
		items = append(items, item)
	}
	r.Items = items
}

// Clone returns a deep copy suitable for handing out of an in-memory store
func (r *PurchaseRequest) Clone() *PurchaseRequest {
	c := *r
	c.Items = append([]RequestItem(nil), r.Items...)
	c.Approvals = append([]Approval(nil), r.Approvals...)
	c.ProformaKey = cloneString(r.ProformaKey)
	c.PurchaseOrderKey = cloneString(r.PurchaseOrderKey)
	c.ReceiptKey = cloneString(r.ReceiptKey)
	if r.ProformaData != nil {
		c.ProformaData = r.ProformaData.Clone()
	}
	if r.ReceiptData != nil {
		c.ReceiptData = r.ReceiptData.Clone()
	}
	if r.PurchaseOrderData != nil {
		po := *r.PurchaseOrderData
		po.Items = append([]PurchaseOrderItem(nil), r.PurchaseOrderData.Items...)
		po.ApprovedBy = append([]PurchaseOrderApprover(nil), r.PurchaseOrderData.ApprovedBy...)
		c.PurchaseOrderData = &po
	}
	if r.ReceiptValidation != nil {
		v := *r.ReceiptValidation
		v.Errors = append([]string(nil), r.ReceiptValidation.Errors...)
		v.Warnings = append([]string(nil), r.ReceiptValidation.Warnings...)
		if r.ReceiptValidation.ReceiptData != nil {
			v.ReceiptData = r.ReceiptValidation.ReceiptData.Clone()
		}
		c.ReceiptValidation = &v
	}
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// Request DTOs

// RequestItemInput represents a line item in a create or update request
type RequestItemInput struct {
	Name        string          `json:"name" validate:"required,max=200"`
	Description string          `json:"description,omitempty"`
	Quantity    int             `json:"quantity" validate:"gt=0"`
	UnitPrice   decimal.Decimal `json:"unit_price" validate:"dgte0"`
}

// CreatePurchaseRequestRequest represents a request to submit a purchase request
type CreatePurchaseRequestRequest struct {
	Title       string             `json:"title" validate:"required,max=200"`
	Description string             `json:"description"`
	Amount      decimal.Decimal    `json:"amount" validate:"dgt0"`
	Items       []RequestItemInput `json:"items" validate:"required,min=1,dive"`
}

// UpdatePurchaseRequestRequest replaces the editable fields of a pending request
type UpdatePurchaseRequestRequest struct {
	Title       string             `json:"title" validate:"required,max=200"`
	Description string             `json:"description"`
	Amount      decimal.Decimal    `json:"amount" validate:"dgt0"`
	Items       []RequestItemInput `json:"items" validate:"required,min=1,dive"`
}

// PurchaseRequestFilter narrows a request listing
type PurchaseRequestFilter struct {
	Status *RequestStatus
	// Viewer scopes the listing to what the caller may see
	Viewer Actor
	Limit  int
	Offset int
}

// PurchaseRequestListResponse represents a paginated list of requests
type PurchaseRequestListResponse struct {
	Requests []*PurchaseRequest `json:"requests"`
	Total    int64              `json:"total"`
	Limit    int                `json:"limit"`
	Offset   int                `json:"offset"`
}
