// Package purchaseorder synthesizes the immutable purchase order snapshot for
// a fully approved request and renders it to PDF.
package purchaseorder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/davidmoltin/procurement-workflows/internal/models"
)

// UnknownVendor is used when no proforma named the vendor
const UnknownVendor = "Unknown Vendor"

const maxNumberAttempts = 100

var (
	// ErrPurchaseOrderExists is returned when a request already has a purchase order
	ErrPurchaseOrderExists = errors.New("purchase order already exists")
	// ErrNotApproved is returned when the request has not cleared both levels
	ErrNotApproved = errors.New("purchase order requires an approved request")
	// ErrNumberExhausted is returned when no free purchase order number could be found
	ErrNumberExhausted = errors.New("could not allocate a unique purchase order number")
)

// NumberChecker reports whether a purchase order number is already taken
type NumberChecker interface {
	PONumberExists(ctx context.Context, poNumber string) (bool, error)
}

// Generator builds purchase order snapshots
type Generator struct {
	now func() time.Time
}

// NewGenerator creates a generator using the wall clock
func NewGenerator() *Generator {
	return &Generator{now: time.Now}
}

// BaseNumber is the content-derived number for a request:
// PO-<first 8 hex digits of the id>-<creation date>
func BaseNumber(r *models.PurchaseRequest) string {
	id := strings.ToUpper(strings.ReplaceAll(r.ID.String(), "-", ""))
	return fmt.Sprintf("PO-%s-%s", id[:8], r.CreatedAt.UTC().Format("20060102"))
}

// Generate builds the purchase order for an approved request. Items and total
// come from the request itself; the proforma only contributes vendor and terms.
// It does not mutate the request.
func (g *Generator) Generate(ctx context.Context, r *models.PurchaseRequest, numbers NumberChecker) (*models.PurchaseOrderData, error) {
	if r.HasPurchaseOrder() {
		return nil, ErrPurchaseOrderExists
	}
	if r.Status != models.StatusApproved || !r.Level2Approved {
		return nil, ErrNotApproved
	}

	number, err := g.allocateNumber(ctx, r, numbers)
	if err != nil {
		return nil, err
	}

	vendor := UnknownVendor
	terms := ""
	if r.ProformaData != nil {
		if v := strings.TrimSpace(r.ProformaData.Vendor); v != "" {
			vendor = v
		}
		terms = r.ProformaData.Terms
	}

	items := make([]models.PurchaseOrderItem, 0, len(r.Items))
	for _, item := range r.Items {
		items = append(items, models.PurchaseOrderItem{
			Name:        item.Name,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			TotalPrice:  item.TotalPrice,
		})
	}

	approvers := make([]models.PurchaseOrderApprover, 0, 2)
	for _, a := range r.Approvals {
		if a.Action == models.ActionApproved {
			approvers = append(approvers, models.PurchaseOrderApprover{
				ApproverID: a.ApproverID,
				Level:      a.Level,
				ApprovedAt: a.CreatedAt,
			})
		}
	}

	return &models.PurchaseOrderData{
		PONumber:    number,
		RequestID:   r.ID,
		Title:       r.Title,
		Vendor:      vendor,
		Items:       items,
		TotalAmount: r.Amount,
		Terms:       terms,
		RequestedBy: r.CreatedBy,
		ApprovedBy:  approvers,
		CreatedAt:   g.now().UTC(),
	}, nil
}

func (g *Generator) allocateNumber(ctx context.Context, r *models.PurchaseRequest, numbers NumberChecker) (string, error) {
	base := BaseNumber(r)
	candidate := base
	for attempt := 1; attempt <= maxNumberAttempts; attempt++ {
		if attempt > 1 {
			candidate = fmt.Sprintf("%s-%d", base, attempt)
		}
		taken, err := numbers.PONumberExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("failed to check purchase order number: %w", err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", ErrNumberExhausted
}
