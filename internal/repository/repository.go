// Package repository defines the storage contracts shared by the postgres
// implementation and the in-memory test doubles.
package repository

import (
	"context"
	"errors"

	"github.com/davidmoltin/procurement-workflows/internal/models"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a row does not exist
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict is returned when a conditional save loses to a concurrent writer
	ErrVersionConflict = errors.New("version conflict")
	// ErrDuplicate is returned when a unique constraint rejects a write
	ErrDuplicate = errors.New("duplicate")
)

// RequestStore is the set of operations available inside a transition
// transaction. Every call made through one store commits or rolls back together.
type RequestStore interface {
	// LoadRequest reads a request with its items and approvals, locking the row
	LoadRequest(ctx context.Context, id uuid.UUID) (*models.PurchaseRequest, error)
	// SaveRequest writes r if its stored version still equals r.Version,
	// then increments r.Version
	SaveRequest(ctx context.Context, r *models.PurchaseRequest) error
	// ReplaceItems swaps the line items of a request
	ReplaceItems(ctx context.Context, requestID uuid.UUID, items []models.RequestItem) error
	// AppendApproval records an approval action
	AppendApproval(ctx context.Context, a *models.Approval) error
	// PONumberExists reports whether a purchase order number is taken
	PONumberExists(ctx context.Context, number string) (bool, error)
}

// PurchaseRequestRepository persists purchase requests
type PurchaseRequestRepository interface {
	CreateRequest(ctx context.Context, r *models.PurchaseRequest) error
	GetRequest(ctx context.Context, id uuid.UUID) (*models.PurchaseRequest, error)
	ListRequests(ctx context.Context, filter models.PurchaseRequestFilter) ([]*models.PurchaseRequest, int64, error)
	// DeleteRequest removes a request if its stored version equals version
	DeleteRequest(ctx context.Context, id uuid.UUID, version int) error
	// WithinTx runs fn in a single transaction. fn's error rolls it back.
	WithinTx(ctx context.Context, fn func(store RequestStore) error) error
}

// UserRepository persists users
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	ListByRole(ctx context.Context, role models.Role) ([]*models.User, error)
}
