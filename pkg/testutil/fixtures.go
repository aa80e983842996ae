package testutil

import (
	"time"

	"github.com/davidmoltin/procurement-workflows/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FixtureBuilder provides methods to create test fixtures
type FixtureBuilder struct{}

// NewFixtureBuilder creates a new fixture builder
func NewFixtureBuilder() *FixtureBuilder {
	return &FixtureBuilder{}
}

// User creates a test user holding role
func (fb *FixtureBuilder) User(role models.Role, overrides ...func(*models.User)) *models.User {
	id := uuid.New()
	now := time.Now().UTC()

	user := &models.User{
		ID:        id,
		Username:  string(role) + "-" + id.String()[:8],
		Email:     string(role) + "-" + id.String()[:8] + "@example.com",
		Role:      role,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	for _, override := range overrides {
		override(user)
	}

	return user
}

// PurchaseRequest creates a pending request owned by owner with two items
// totalling 150.00
func (fb *FixtureBuilder) PurchaseRequest(owner uuid.UUID, overrides ...func(*models.PurchaseRequest)) *models.PurchaseRequest {
	now := time.Now().UTC()

	req := &models.PurchaseRequest{
		ID:                     uuid.New(),
		Title:                  "Office supplies",
		Description:            "Quarterly restock",
		Amount:                 Dec("150.00"),
		Status:                 models.StatusPending,
		CreatedBy:              owner,
		RequiresLevel1Approval: true,
		RequiresLevel2Approval: true,
		Version:                1,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	req.SetItems([]models.RequestItemInput{
		{Name: "Printer paper", Quantity: 10, UnitPrice: Dec("5.00")},
		{Name: "Toner cartridge", Quantity: 2, UnitPrice: Dec("50.00")},
	})

	for _, override := range overrides {
		override(req)
	}

	return req
}

// Approval creates an approval record on request
func (fb *FixtureBuilder) Approval(request uuid.UUID, approver *models.User, level models.ApprovalLevel, action models.ApprovalAction) models.Approval {
	return models.Approval{
		ID:           uuid.New(),
		RequestID:    request,
		ApproverID:   approver.ID,
		ApproverRole: approver.Role,
		Level:        level,
		Action:       action,
		Comments:     "fixture",
		CreatedAt:    time.Now().UTC(),
	}
}

// Dec parses a decimal literal, panicking on malformed input
func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// DecPtr parses a decimal literal and returns its address
func DecPtr(s string) *decimal.Decimal {
	d := Dec(s)
	return &d
}

// StringPtr returns a pointer to s
func StringPtr(s string) *string {
	return &s
}
