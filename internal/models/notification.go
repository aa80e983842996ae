package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NotificationEventType names a workflow event worth telling someone about
type NotificationEventType string

const (
	EventApproved         NotificationEventType = "approved"
	EventRejected         NotificationEventType = "rejected"
	EventCancelled        NotificationEventType = "cancelled"
	EventAwaitingApproval NotificationEventType = "awaiting_approval"
)

// NotificationEvent is a snapshot of a committed transition handed to the
// notification dispatcher
type NotificationEvent struct {
	Type      NotificationEventType `json:"type"`
	RequestID uuid.UUID             `json:"request_id"`
	Title     string                `json:"title"`
	Amount    decimal.Decimal       `json:"amount"`
	OwnerID   uuid.UUID             `json:"owner_id"`
	ActorID   uuid.UUID             `json:"actor_id"`
	ActorRole Role                  `json:"actor_role"`
	Level     ApprovalLevel         `json:"level,omitempty"`
	// AwaitingRole is set for awaiting_approval events
	AwaitingRole Role      `json:"awaiting_role,omitempty"`
	Comments     string    `json:"comments,omitempty"`
	PONumber     string    `json:"po_number,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// NewNotificationEvent snapshots r for an event
func NewNotificationEvent(t NotificationEventType, r *PurchaseRequest, actor Actor) NotificationEvent {
	e := NotificationEvent{
		Type:       t,
		RequestID:  r.ID,
		Title:      r.Title,
		Amount:     r.Amount,
		OwnerID:    r.CreatedBy,
		ActorID:    actor.UserID,
		ActorRole:  actor.Role,
		OccurredAt: time.Now().UTC(),
	}
	if r.PurchaseOrderData != nil {
		e.PONumber = r.PurchaseOrderData.PONumber
	}
	return e
}
