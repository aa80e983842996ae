package models

import (
	"time"

	"github.com/google/uuid"
)

// ApprovalLevel identifies which review step an approval record belongs to
type ApprovalLevel string

const (
	LevelOne             ApprovalLevel = "level_1"
	LevelTwo             ApprovalLevel = "level_2"
	LevelAdminOverride   ApprovalLevel = "admin_override"
	LevelFinanceOverride ApprovalLevel = "finance_override"
)

// IsOverride reports whether the record was written through an override path
func (l ApprovalLevel) IsOverride() bool {
	return l == LevelAdminOverride || l == LevelFinanceOverride
}

// ApprovalAction is the decision recorded by an approval
type ApprovalAction string

const (
	ActionApproved  ApprovalAction = "approved"
	ActionRejected  ApprovalAction = "rejected"
	ActionCancelled ApprovalAction = "cancelled"
)

// Approval is an append-only review record owned by a purchase request
type Approval struct {
	ID           uuid.UUID      `json:"id" db:"id"`
	RequestID    uuid.UUID      `json:"request_id" db:"request_id"`
	ApproverID   uuid.UUID      `json:"approver_id" db:"approver_id"`
	ApproverRole Role           `json:"approver_role" db:"approver_role"`
	Level        ApprovalLevel  `json:"level" db:"level"`
	Action       ApprovalAction `json:"action" db:"action"`
	Comments     string         `json:"comments" db:"comments"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
}

// ApprovalActionRequest carries the reviewer comments for approve, reject and cancel
type ApprovalActionRequest struct {
	Comments string `json:"comments" validate:"required"`
}
